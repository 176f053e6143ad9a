package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Distance is the metric a collection is indexed with.
type Distance string

const (
	Cosine Distance = "cosine"
	Dot    Distance = "dot"
	Euclid Distance = "euclid"
)

// ErrCollectionNotFound is returned when an operation targets a collection that does not exist.
var ErrCollectionNotFound = errors.New("collection not found")

// ParseDistance accepts the metric names used in configuration files, case-insensitively.
func ParseDistance(s string) (Distance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return Cosine, nil
	case "dot":
		return Dot, nil
	case "euclid", "euclidean":
		return Euclid, nil
	default:
		return "", fmt.Errorf("unsupported distance %q", s)
	}
}

// Point is a single vector with its identifier and payload.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload map[string]any
}

// Hit is a search result. Higher scores are more similar for every Distance.
type Hit struct {
	ID      uint64
	Payload map[string]any
	Score   float32
}

// Store is the vector database collaborator.
type Store interface {
	// RecreateCollection drops the named collection if it exists and creates it empty.
	RecreateCollection(ctx context.Context, name string, dimension int, distance Distance) error
	Upsert(ctx context.Context, name string, points []Point) error
	Search(ctx context.Context, name string, vector []float32, limit int) ([]Hit, error)
}

// Payload is the document payload stored next to each resume vector.
type Payload struct {
	Text string `mapstructure:"text"`
}

// NewPayload builds the raw payload for a resume text.
func NewPayload(text string) map[string]any {
	return map[string]any{"text": text}
}

// DecodePayload converts a raw payload returned by a backend to Payload.
func DecodePayload(raw map[string]any) (Payload, error) {
	var p Payload
	if err := mapstructure.Decode(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// SortHits orders hits by descending score, keeping insertion order for ties.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
}
