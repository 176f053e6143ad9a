package embedding

import (
	"context"
	"errors"
)

// Purpose tells the provider how the text is going to be used.
// Providers with asymmetric models embed documents and queries differently.
type Purpose int

const (
	PurposeDocument Purpose = iota
	PurposeQuery
)

func (p Purpose) String() string {
	switch p {
	case PurposeQuery:
		return "query"
	default:
		return "document"
	}
}

// ErrPermanent marks provider failures that will not succeed on retry
// (bad credentials, rejected input).
var ErrPermanent = errors.New("permanent embedding failure")

// Embedder turns free text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string, purpose Purpose) ([]float32, error)
	// Dimension is the length of every vector returned by Embed.
	Dimension() int
	Model() string
}
