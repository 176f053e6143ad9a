// Package memory is an in-process vector store. All data is lost when the process exits.
package memory

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/spigell/resume-matcher/internal/vectorstore"
)

type collection struct {
	dimension int
	distance  vectorstore.Distance
	order     []uint64
	points    map[uint64]vectorstore.Point
}

// Store keeps collections in memory and searches them by brute force.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

var _ vectorstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) RecreateCollection(_ context.Context, name string, dimension int, distance vectorstore.Distance) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[name] = &collection{
		dimension: dimension,
		distance:  distance,
		points:    make(map[uint64]vectorstore.Point),
	}
	return nil
}

func (s *Store) Upsert(_ context.Context, name string, points []vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, vectorstore.ErrCollectionNotFound)
	}

	for _, p := range points {
		if len(p.Vector) != c.dimension {
			return fmt.Errorf("point %d: vector dimension %d, collection expects %d", p.ID, len(p.Vector), c.dimension)
		}
	}

	for _, p := range points {
		if _, exists := c.points[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		vector := make([]float32, len(p.Vector))
		copy(vector, p.Vector)
		c.points[p.ID] = vectorstore.Point{ID: p.ID, Vector: vector, Payload: p.Payload}
	}
	return nil
}

func (s *Store) Search(_ context.Context, name string, vector []float32, limit int) ([]vectorstore.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, vectorstore.ErrCollectionNotFound)
	}
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("query dimension %d, collection expects %d", len(vector), c.dimension)
	}

	hits := make([]vectorstore.Hit, 0, len(c.order))
	for _, id := range c.order {
		p := c.points[id]
		hits = append(hits, vectorstore.Hit{
			ID:      id,
			Payload: p.Payload,
			Score:   score(c.distance, vector, p.Vector),
		})
	}

	vectorstore.SortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func score(distance vectorstore.Distance, a, b []float32) float32 {
	switch distance {
	case vectorstore.Dot:
		return float32(dot(a, b))
	case vectorstore.Euclid:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return float32(-math.Sqrt(sum))
	default:
		return cosineSimilarity(a, b)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cosineSimilarity(a, b []float32) float32 {
	var normA, normB float64
	for i := range a {
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot(a, b) / (math.Sqrt(normA) * math.Sqrt(normB)))
}
