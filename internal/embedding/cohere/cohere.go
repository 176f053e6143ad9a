package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spigell/resume-matcher/internal/embedding"
	"github.com/spigell/resume-matcher/internal/utils"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.cohere.ai/v1"
	defaultModel   = "embed-english-v3.0"
	contentType    = "application/json"
	maxErrorBody   = 300
)

// Config configures the Cohere embedder.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// Dimension overrides the model table for models it does not know.
	Dimension int
}

// Embedder calls the Cohere /embed endpoint.
type Embedder struct {
	apiKey     string
	model      string
	baseURL    string
	dimension  int
	httpClient *http.Client
	logger     *zap.Logger
}

var _ embedding.Embedder = (*Embedder)(nil)

type embedRequest struct {
	Model     string   `json:"model"`
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type,omitempty"`
	Truncate  string   `json:"truncate"`
}

type embedResponse struct {
	ID         string      `json:"id"`
	Embeddings [][]float32 `json:"embeddings"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Embedder, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("cohere api key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = modelDimension(model)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		dimension:  dimension,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Embed returns the vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string, purpose embedding.Purpose) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text must not be empty")
	}

	body, err := json.Marshal(embedRequest{
		Model:     e.model,
		Texts:     []string{text},
		InputType: inputType(e.model, purpose),
		Truncate:  "END",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)

	e.logger.Debug("cohere embed request",
		zap.String("purpose", purpose.String()),
		zap.Int("text_length", len(text)),
		zap.String("text_preview", utils.TruncateForLog(text, 80)),
	)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cohere embed request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read cohere response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, data)
	}

	var parsed embedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse cohere response: %w", err)
	}

	if len(parsed.Embeddings) == 0 || len(parsed.Embeddings[0]) == 0 {
		return nil, errors.New("cohere returned empty embedding result")
	}

	e.logger.Debug("cohere embed response",
		zap.String("response_id", parsed.ID),
		zap.Int("dimension", len(parsed.Embeddings[0])),
	)

	return parsed.Embeddings[0], nil
}

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Model() string { return e.model }

func statusError(resp *http.Response, body []byte) error {
	message := strings.TrimSpace(string(body))
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		message = parsed.Message
	}
	message = utils.TruncateForLog(message, maxErrorBody)

	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError &&
		resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("cohere embed: bad status %s: %s: %w", resp.Status, message, embedding.ErrPermanent)
	}

	return fmt.Errorf("cohere embed: bad status %s: %s", resp.Status, message)
}

// inputType is required by v3 models and rejected by the legacy ones.
func inputType(model string, purpose embedding.Purpose) string {
	if !strings.Contains(model, "v3") {
		return ""
	}
	if purpose == embedding.PurposeQuery {
		return "search_query"
	}
	return "search_document"
}

func modelDimension(model string) int {
	switch model {
	case "large":
		return 4096
	case "small":
		return 1024
	case "multilingual-22-12":
		return 768
	case "embed-english-light-v3.0", "embed-multilingual-light-v3.0",
		"embed-english-light-v2.0":
		return 384
	case "embed-english-v2.0":
		return 4096
	case "embed-multilingual-v2.0":
		return 768
	default:
		return 1024
	}
}
