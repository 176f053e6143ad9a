package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/resume-matcher/internal/embedding"
	"github.com/spigell/resume-matcher/internal/lock"
	"github.com/spigell/resume-matcher/internal/utils"
	"github.com/spigell/resume-matcher/internal/vectorstore"

	"go.uber.org/zap"
)

const (
	DefaultCollection    = "collection_resume_matcher"
	DefaultLimit         = 30
	DefaultSnippetLength = 30
	previewLength        = 80
)

var (
	ErrEmbedding         = errors.New("embedding failed")
	ErrVectorStore       = errors.New("vector store failed")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmptyDocument     = errors.New("empty document")
	ErrLock              = errors.New("collection lock failed")
)

// MatchResult is one scored resume.
type MatchResult struct {
	ID uint64 `json:"id"`
	// Text is the stored payload rendered as JSON and cut to the snippet length.
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

type Options struct {
	Collection    string
	Distance      vectorstore.Distance
	Limit         int
	SnippetLength int
	// Locker guards the collection for the whole recreate/upsert/search sequence.
	Locker lock.Locker
}

type Matcher struct {
	embedder embedding.Embedder
	store    vectorstore.Store
	opts     Options
	logger   *zap.Logger
}

func New(embedder embedding.Embedder, store vectorstore.Store, opts Options, logger *zap.Logger) (*Matcher, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.Distance == "" {
		opts.Distance = vectorstore.Cosine
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.SnippetLength <= 0 {
		opts.SnippetLength = DefaultSnippetLength
	}
	if opts.Locker == nil {
		opts.Locker = lock.Noop{}
	}

	return &Matcher{
		embedder: embedder,
		store:    store,
		opts:     opts,
		logger:   logger.With(zap.String("collection", opts.Collection)),
	}, nil
}

// Score compares a single resume against a job description.
func (m *Matcher) Score(ctx context.Context, resume, jobDescription string) ([]MatchResult, error) {
	return m.ComputeSimilarity(ctx, []string{resume}, jobDescription)
}

// ComputeSimilarity indexes resumes into a freshly recreated collection and ranks them
// against the job description. Resume i gets id i. Prior collection contents are discarded.
func (m *Matcher) ComputeSimilarity(ctx context.Context, resumes []string, jobDescription string) ([]MatchResult, error) {
	if strings.TrimSpace(jobDescription) == "" {
		return nil, fmt.Errorf("%w: job description", ErrEmptyDocument)
	}
	for i, r := range resumes {
		if strings.TrimSpace(r) == "" {
			return nil, fmt.Errorf("%w: resume %d", ErrEmptyDocument, i)
		}
	}

	m.logger.Info("started getting similarity score", zap.Int("resumes", len(resumes)))

	release, err := m.opts.Locker.Acquire(ctx, m.opts.Collection)
	if err != nil {
		m.logger.Error("acquiring collection lock", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrLock, err)
	}
	defer func() {
		// release even when ctx has been canceled
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			m.logger.Warn("releasing collection lock", zap.Error(rerr))
		}
	}()

	dimension := m.embedder.Dimension()

	if err := m.store.RecreateCollection(ctx, m.opts.Collection, dimension, m.opts.Distance); err != nil {
		m.logger.Error("error recreating the collection", zap.Int("dimension", dimension), zap.Error(err))
		return nil, fmt.Errorf("%w: recreate collection: %w", ErrVectorStore, err)
	}

	points := make([]vectorstore.Point, 0, len(resumes))
	for i, r := range resumes {
		vector, err := m.embed(ctx, r, embedding.PurposeDocument, dimension)
		if err != nil {
			return nil, fmt.Errorf("resume %d: %w", i, err)
		}
		points = append(points, vectorstore.Point{
			ID:      uint64(i),
			Vector:  vector,
			Payload: vectorstore.NewPayload(r),
		})
	}

	if err := m.store.Upsert(ctx, m.opts.Collection, points); err != nil {
		m.logger.Error("error upserting the vectors to the collection", zap.Int("points", len(points)), zap.Error(err))
		return nil, fmt.Errorf("%w: upsert: %w", ErrVectorStore, err)
	}

	query, err := m.embed(ctx, jobDescription, embedding.PurposeQuery, dimension)
	if err != nil {
		return nil, fmt.Errorf("job description: %w", err)
	}

	hits, err := m.store.Search(ctx, m.opts.Collection, query, m.opts.Limit)
	if err != nil {
		m.logger.Error("error searching the collection", zap.Int("limit", m.opts.Limit), zap.Error(err))
		return nil, fmt.Errorf("%w: search: %w", ErrVectorStore, err)
	}

	vectorstore.SortHits(hits)
	if len(hits) > m.opts.Limit {
		hits = hits[:m.opts.Limit]
	}

	results := make([]MatchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, MatchResult{
			ID:    hit.ID,
			Text:  m.snippet(hit.Payload),
			Score: hit.Score,
		})
		m.logHit(hit)
	}

	m.logger.Info("finished getting similarity score", zap.Int("results", len(results)))
	return results, nil
}

func (m *Matcher) embed(ctx context.Context, text string, purpose embedding.Purpose, dimension int) ([]float32, error) {
	vector, err := m.embedder.Embed(ctx, text, purpose)
	if err != nil {
		m.logger.Error("error getting embeddings",
			zap.String("purpose", purpose.String()),
			zap.String("text", utils.TruncateForLog(text, previewLength)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	if len(vector) != dimension {
		m.logger.Error("embedding has unexpected dimension",
			zap.String("purpose", purpose.String()),
			zap.Int("got", len(vector)),
			zap.Int("want", dimension),
		)
		return nil, fmt.Errorf("%w: got %d, collection expects %d", ErrDimensionMismatch, len(vector), dimension)
	}

	return vector, nil
}

// snippet renders the payload as JSON and keeps the first SnippetLength runes.
func (m *Matcher) snippet(payload map[string]any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return utils.Snippet(fmt.Sprint(payload), m.opts.SnippetLength)
	}
	return utils.Snippet(strings.TrimSuffix(buf.String(), "\n"), m.opts.SnippetLength)
}

func (m *Matcher) logHit(hit vectorstore.Hit) {
	if ce := m.logger.Check(zap.DebugLevel, "search hit"); ce != nil {
		p, err := vectorstore.DecodePayload(hit.Payload)
		if err != nil {
			ce.Write(zap.Uint64("id", hit.ID), zap.Float32("score", hit.Score), zap.Error(err))
			return
		}
		ce.Write(
			zap.Uint64("id", hit.ID),
			zap.Float32("score", hit.Score),
			zap.String("text", utils.TruncateForLog(p.Text, previewLength)),
		)
	}
}
