package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/spigell/resume-matcher/internal/utils"
	"github.com/spigell/resume-matcher/internal/vectorstore"

	"go.uber.org/zap"
)

const (
	contentType  = "application/json"
	apiKeyHeader = "api-key"
	maxErrorBody = 300
)

// Config holds the Qdrant endpoint and credentials.
type Config struct {
	URL    string
	APIKey string
}

// Client talks to the Qdrant REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger

	mu sync.Mutex
	// metrics caches the distance of collections, keyed by name
	metrics map[string]string
}

var _ vectorstore.Store = (*Client)(nil)

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type createCollectionRequest struct {
	Vectors vectorParams `json:"vectors"`
}

type point struct {
	ID      uint64         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

type upsertRequest struct {
	Points []point `json:"points"`
}

type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type scoredPoint struct {
	ID      uint64         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type searchResponse struct {
	Result []scoredPoint `json:"result"`
}

type collectionInfoResponse struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors vectorParams `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

type errorResponse struct {
	Status struct {
		Error string `json:"error"`
	} `json:"status"`
}

// statusError keeps the HTTP status so callers can tell a missing collection apart.
type statusError struct {
	code    int
	status  string
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("bad status: %s: %s", e.status, e.message)
}

func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, errors.New("qdrant url is required")
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid qdrant url %q", raw)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimRight(raw, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: httpClient,
		logger:     logger,
		metrics:    make(map[string]string),
	}, nil
}

// RecreateCollection deletes the collection (a missing one is fine) and creates it again.
func (c *Client) RecreateCollection(ctx context.Context, name string, dimension int, distance vectorstore.Distance) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}

	metric, err := qdrantDistance(distance)
	if err != nil {
		return err
	}

	err = c.do(ctx, http.MethodDelete, collectionPath(name), nil, nil)
	var se *statusError
	if err != nil && !(errors.As(err, &se) && se.code == http.StatusNotFound) {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}

	body := createCollectionRequest{Vectors: vectorParams{Size: dimension, Distance: metric}}
	if err := c.do(ctx, http.MethodPut, collectionPath(name), body, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}

	c.mu.Lock()
	c.metrics[name] = metric
	c.mu.Unlock()

	c.logger.Debug("qdrant collection recreated",
		zap.String("collection", name),
		zap.Int("dimension", dimension),
		zap.String("distance", metric),
	)
	return nil
}

func (c *Client) Upsert(ctx context.Context, name string, points []vectorstore.Point) error {
	if len(points) == 0 {
		c.logger.Debug("qdrant upsert skipped", zap.String("collection", name), zap.String("reason", "empty batch"))
		return nil
	}

	body := upsertRequest{Points: make([]point, 0, len(points))}
	for _, p := range points {
		body.Points = append(body.Points, point{ID: p.ID, Vector: p.Vector, Payload: p.Payload})
	}

	path := collectionPath(name) + "/points?wait=true"
	if err := c.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return wrapNotFound(fmt.Errorf("upsert into %s: %w", name, err), err)
	}

	c.logger.Debug("qdrant points upserted", zap.String("collection", name), zap.Int("count", len(points)))
	return nil
}

func (c *Client) Search(ctx context.Context, name string, vector []float32, limit int) ([]vectorstore.Hit, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid limit %d", limit)
	}

	metric, err := c.metric(ctx, name)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	body := searchRequest{Vector: vector, Limit: limit, WithPayload: true}
	if err := c.do(ctx, http.MethodPost, collectionPath(name)+"/points/search", body, &resp); err != nil {
		return nil, wrapNotFound(fmt.Errorf("search %s: %w", name, err), err)
	}

	hits := make([]vectorstore.Hit, 0, len(resp.Result))
	for _, sp := range resp.Result {
		hits = append(hits, vectorstore.Hit{ID: sp.ID, Payload: sp.Payload, Score: similarity(metric, sp.Score)})
	}
	return hits, nil
}

// metric returns the collection distance, asking Qdrant for collections this client
// did not create.
func (c *Client) metric(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	metric, ok := c.metrics[name]
	c.mu.Unlock()
	if ok {
		return metric, nil
	}

	var info collectionInfoResponse
	if err := c.do(ctx, http.MethodGet, collectionPath(name), nil, &info); err != nil {
		return "", wrapNotFound(fmt.Errorf("get collection %s: %w", name, err), err)
	}

	metric = info.Result.Config.Params.Vectors.Distance
	c.mu.Lock()
	c.metrics[name] = metric
	c.mu.Unlock()

	return metric, nil
}

// similarity turns a Qdrant score into a higher-is-better value. Euclid scores are
// distances, so they are negated.
func similarity(metric string, score float32) float32 {
	if metric == "Euclid" {
		return -score
	}
	return score
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}

	req = c.setHeaders(req)
	if in != nil {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("make request", zap.String("method", method), zap.String("url", req.URL.Redacted()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp, data)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Accept", contentType)
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	return req
}

func newStatusError(resp *http.Response, body []byte) error {
	message := strings.TrimSpace(string(body))
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Status.Error != "" {
		message = parsed.Status.Error
	}

	return &statusError{
		code:    resp.StatusCode,
		status:  resp.Status,
		message: utils.TruncateForLog(message, maxErrorBody),
	}
}

func wrapNotFound(wrapped, cause error) error {
	var se *statusError
	if errors.As(cause, &se) && se.code == http.StatusNotFound {
		return fmt.Errorf("%w: %w", wrapped, vectorstore.ErrCollectionNotFound)
	}
	return wrapped
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func qdrantDistance(d vectorstore.Distance) (string, error) {
	switch d {
	case vectorstore.Cosine, "":
		return "Cosine", nil
	case vectorstore.Dot:
		return "Dot", nil
	case vectorstore.Euclid:
		return "Euclid", nil
	default:
		return "", fmt.Errorf("unsupported distance %q", d)
	}
}
