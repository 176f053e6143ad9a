package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/resume-matcher/internal/embedding"
	"github.com/spigell/resume-matcher/internal/utils"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultModel      = "gemini-embedding-001"
	defaultDimension  = 3072
	defaultMaxRetries = 3
	baseRetryDelay    = time.Second
	// Quota errors asking to come back later than this are not retried.
	maxRetryDelay = 10 * time.Second
)

var (
	waitFor         = utils.WaitFor
	retryDelayRegex = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*s`)
)

// contentEmbedder is the part of genai.Models used here.
type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Config configures the Gemini embedder.
type Config struct {
	APIKey     string
	Model      string
	Dimension  int
	MaxRetries int
}

// Embedder wraps the Google GenAI client to produce embeddings.
type Embedder struct {
	models     contentEmbedder
	model      string
	dimension  int
	maxRetries int
	logger     *zap.Logger
}

var _ embedding.Embedder = (*Embedder)(nil)

// New creates an Embedder configured for the Gemini API backend.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Embedder, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newEmbedder(client.Models, cfg, logger), nil
}

func newEmbedder(models contentEmbedder, cfg Config, logger *zap.Logger) *Embedder {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = defaultDimension
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		models:     models,
		model:      model,
		dimension:  dimension,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

func (e *Embedder) Embed(ctx context.Context, text string, purpose embedding.Purpose) ([]float32, error) {
	if e == nil || e.models == nil {
		return nil, errors.New("gemini embedder is not initialized")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text must not be empty")
	}

	dimension := int32(e.dimension)
	config := &genai.EmbedContentConfig{
		TaskType:             taskType(purpose),
		OutputDimensionality: &dimension,
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		resp, err := e.models.EmbedContent(ctx, e.model, contents, config)
		if err == nil {
			return firstVector(resp)
		}
		lastErr = err

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == e.maxRetries {
			break
		}

		e.logger.Warn("gemini embed failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := waitFor(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, classify(lastErr)
}

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Model() string { return e.model }

func firstVector(resp *genai.EmbedContentResponse) ([]float32, error) {
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini returned empty embedding result")
	}
	return resp.Embeddings[0].Values, nil
}

func taskType(purpose embedding.Purpose) string {
	if purpose == embedding.PurposeQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

// retryDelay reports whether err is temporary and how long to wait before the next attempt.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		return backoff(attempt), true
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		if m := retryDelayRegex.FindStringSubmatch(apiErr.Message); m != nil {
			seconds, perr := strconv.ParseFloat(m[1], 64)
			if perr == nil {
				delay := time.Duration(seconds * float64(time.Second))
				if delay > maxRetryDelay {
					return 0, false
				}
				return delay, true
			}
		}
		return backoff(attempt), true
	case apiErr.Code >= http.StatusInternalServerError:
		return backoff(attempt), true
	default:
		return 0, false
	}
}

func backoff(attempt int) time.Duration {
	return baseRetryDelay << (attempt - 1)
}

func classify(err error) error {
	apiErr, ok := asAPIError(err)
	if !ok {
		return fmt.Errorf("gemini embed: %w", err)
	}

	switch apiErr.Code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return fmt.Errorf("gemini embed (%d %s): %s: %w", apiErr.Code, apiErr.Status, apiErr.Message, embedding.ErrPermanent)
	default:
		return fmt.Errorf("gemini embed: %w", err)
	}
}
