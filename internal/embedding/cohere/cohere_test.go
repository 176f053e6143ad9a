package cohere

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spigell/resume-matcher/internal/embedding"

	"go.uber.org/zap"
)

func newTestEmbedder(t *testing.T, model string, handler http.HandlerFunc) *Embedder {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e, err := New(Config{APIKey: "secret", Model: model, BaseURL: srv.URL + "/"}, srv.Client(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return e
}

func TestEmbedSendsRequest(t *testing.T) {
	var got embedRequest
	e := newTestEmbedder(t, "", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"abc","embeddings":[[0.1,0.2,0.3]]}`))
	})

	vec, err := e.Embed(context.Background(), " backend engineer python containers ", embedding.PurposeQuery)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(vec) != 3 || vec[1] != 0.2 {
		t.Fatalf("unexpected vector %v", vec)
	}
	if got.Model != defaultModel {
		t.Fatalf("expected default model, got %q", got.Model)
	}
	if got.InputType != "search_query" {
		t.Fatalf("expected search_query input type, got %q", got.InputType)
	}
	if len(got.Texts) != 1 || got.Texts[0] != "backend engineer python containers" {
		t.Fatalf("unexpected texts %v", got.Texts)
	}
	if got.Truncate != "END" {
		t.Fatalf("expected END truncation, got %q", got.Truncate)
	}
}

func TestEmbedLegacyModelOmitsInputType(t *testing.T) {
	var raw map[string]any
	e := newTestEmbedder(t, "large", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(`{"embeddings":[[1]]}`))
	})

	if _, err := e.Embed(context.Background(), "python", embedding.PurposeDocument); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := raw["input_type"]; ok {
		t.Fatalf("legacy model must not receive input_type: %v", raw)
	}
	if e.Dimension() != 4096 {
		t.Fatalf("expected 4096 dimension for large, got %d", e.Dimension())
	}
}

func TestEmbedErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"invalid api token"}`, permanent: true},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
		{name: "empty result", status: http.StatusOK, body: `{"embeddings":[]}`},
		{name: "malformed json", status: http.StatusOK, body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEmbedder(t, "", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := e.Embed(context.Background(), "python", embedding.PurposeDocument)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, embedding.ErrPermanent); got != tt.permanent {
				t.Fatalf("permanent = %v, want %v (err: %v)", got, tt.permanent, err)
			}
		})
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{APIKey: "  "}, nil, nil); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestEmbedRejectsEmptyText(t *testing.T) {
	e, err := New(Config{APIKey: "secret"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Embed(context.Background(), "   ", embedding.PurposeDocument); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestModelDimension(t *testing.T) {
	tests := map[string]int{
		"large":                    4096,
		"embed-english-v3.0":       1024,
		"embed-english-light-v3.0": 384,
		"unknown":                  1024,
	}
	for model, want := range tests {
		if got := modelDimension(model); got != want {
			t.Errorf("modelDimension(%q) = %d, want %d", model, got, want)
		}
	}
}
