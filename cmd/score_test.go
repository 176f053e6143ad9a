package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spigell/resume-matcher/internal/config"
	"github.com/spigell/resume-matcher/internal/document"
	"github.com/spigell/resume-matcher/internal/matcher"

	"go.uber.org/zap"
)

const fakeDimension = 8

func newFakeCohere(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" || r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"invalid api token"}`))
			return
		}

		var req struct {
			Texts []string `json:"texts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Texts) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		vector := make([]float32, fakeDimension)
		for _, word := range strings.Fields(req.Texts[0]) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(word))
			vector[h.Sum32()%fakeDimension]++
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "fake", "embeddings": [][]float32{vector}})
	}))
	t.Cleanup(server.Close)

	return server
}

func writeTestFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func memoryConfig(t *testing.T, dir, baseURL string) string {
	return writeTestFile(t, filepath.Join(dir, "config.yml"), fmt.Sprintf(`
cohere:
  api_key: test-key
  base_url: %s
  dimension: %d
vector_store:
  provider: memory
`, baseURL, fakeDimension))
}

func TestRunScoreMalformedConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestFile(t, filepath.Join(dir, "config.yml"), "cohere: [broken\n")

	err := runScore(context.Background(), scoreOptions{
		ConfigPath: cfgPath,
		Resumes:    []string{"r.json"},
		Job:        "j.json",
		Output:     outputText,
	}, zap.NewNop(), &bytes.Buffer{})

	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if hint(err) == "" {
		t.Fatal("expected a hint for configuration errors")
	}
}

func TestRunScoreJSON(t *testing.T) {
	dir := t.TempDir()
	server := newFakeCohere(t)
	cfgPath := memoryConfig(t, dir, server.URL)

	resume := writeTestFile(t, filepath.Join(dir, "resume.json"), `{"extracted_keywords": ["react", "typescript", "frontend"]}`)
	other := writeTestFile(t, filepath.Join(dir, "other.json"), `{"extracted_keywords": ["accounting", "excel"]}`)
	job := writeTestFile(t, filepath.Join(dir, "job.json"), `{"extracted_keywords": ["frontend", "react", "engineer"]}`)

	var out bytes.Buffer
	err := runScore(context.Background(), scoreOptions{
		ConfigPath: cfgPath,
		Resumes:    []string{resume, other},
		Job:        job,
		Output:     outputJSON,
	}, zap.NewNop(), &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var results []matcher.MatchResult
	if err := json.Unmarshal(out.Bytes(), &results); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Score < results[1].Score {
		t.Fatalf("results are not ordered: %+v", results)
	}
	if !strings.HasPrefix(results[0].Text, `{"text":"`) {
		t.Fatalf("unexpected snippet %q", results[0].Text)
	}
}

func TestRunScoreParseError(t *testing.T) {
	dir := t.TempDir()
	server := newFakeCohere(t)
	cfgPath := memoryConfig(t, dir, server.URL)

	resume := writeTestFile(t, filepath.Join(dir, "resume.json"), `not json`)
	job := writeTestFile(t, filepath.Join(dir, "job.json"), `{"extracted_keywords": ["go"]}`)

	err := runScore(context.Background(), scoreOptions{
		ConfigPath: cfgPath,
		Resumes:    []string{resume},
		Job:        job,
		Output:     outputText,
	}, zap.NewNop(), &bytes.Buffer{})

	if !errors.Is(err, document.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestRunScoreEmbeddingFailure(t *testing.T) {
	dir := t.TempDir()
	server := newFakeCohere(t)
	cfgPath := writeTestFile(t, filepath.Join(dir, "config.yml"), fmt.Sprintf(`
cohere:
  api_key: wrong-key
  base_url: %s
  dimension: %d
vector_store:
  provider: memory
`, server.URL, fakeDimension))

	resume := writeTestFile(t, filepath.Join(dir, "resume.json"), `{"extracted_keywords": ["go"]}`)
	job := writeTestFile(t, filepath.Join(dir, "job.json"), `{"extracted_keywords": ["go"]}`)

	err := runScore(context.Background(), scoreOptions{
		ConfigPath: cfgPath,
		Resumes:    []string{resume},
		Job:        job,
		Output:     outputText,
	}, zap.NewNop(), &bytes.Buffer{})

	if !errors.Is(err, matcher.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestRunScoreDefaultsToExamplePair(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Resume-Matcher")
	layout := document.Layout{Root: root}
	server := newFakeCohere(t)

	writeTestFile(t, layout.ConfigFile(), fmt.Sprintf(`
cohere:
  api_key: test-key
  base_url: %s
  dimension: %d
vector_store:
  provider: memory
`, server.URL, fakeDimension))
	writeTestFile(t, layout.ExampleResume(), `{"extracted_keywords": ["batman", "fullstack"]}`)
	writeTestFile(t, layout.ExampleJob(), `{"extracted_keywords": ["frontend", "engineer"]}`)

	var out bytes.Buffer
	err := runScore(context.Background(), scoreOptions{Root: root, Output: outputText}, zap.NewNop(), &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(out.String(), "id=0 score=") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunScoreRejectsUnknownOutput(t *testing.T) {
	err := runScore(context.Background(), scoreOptions{Output: "yaml"}, zap.NewNop(), &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for unknown output format")
	}
}

func TestSelectDocuments(t *testing.T) {
	layout := document.Layout{Root: "/project"}
	layoutCalls := 0
	resolve := func() (document.Layout, error) {
		layoutCalls++
		return layout, nil
	}

	resumes, job, err := selectDocuments(scoreOptions{Resumes: []string{"a.json"}, Job: "j.json"}, resolve)
	if err != nil || job != "j.json" || len(resumes) != 1 {
		t.Fatalf("explicit selection = %v, %q, %v", resumes, job, err)
	}
	if layoutCalls != 0 {
		t.Fatal("layout must not be resolved when both documents are given")
	}

	resumes, job, err = selectDocuments(scoreOptions{Job: "j.json"}, resolve)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resumes[0] != layout.ExampleResume() || job != "j.json" {
		t.Fatalf("defaults = %v, %q", resumes, job)
	}

	rootErr := fmt.Errorf("%w: Resume-Matcher", document.ErrRootNotFound)
	_, _, err = selectDocuments(scoreOptions{}, func() (document.Layout, error) { return document.Layout{}, rootErr })
	if !errors.Is(err, document.ErrRootNotFound) {
		t.Fatalf("expected ErrRootNotFound, got %v", err)
	}
}

func TestPrintResultsText(t *testing.T) {
	var out bytes.Buffer
	err := printResults(&out, []matcher.MatchResult{
		{ID: 0, Text: `{"text":"go"}`, Score: 0.5},
		{ID: 1, Text: `{"text":"sql"}`, Score: 0.25},
	}, outputText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "id=0 score=0.500000 text={\"text\":\"go\"}\nid=1 score=0.250000 text={\"text\":\"sql\"}\n"
	if out.String() != want {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "resume-matcher version: unknown\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestProjectRootFolderOverride(t *testing.T) {
	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("eval symlinks: %v", err)
	}
	for _, dir := range []string{"ATS_hacking", "Custom"} {
		if err := os.MkdirAll(filepath.Join(base, dir), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	t.Chdir(base)

	root := projectRoot{}

	l, err := root.layout(document.DefaultRootFolder)
	if err != nil || l.Root != filepath.Join(base, "ATS_hacking") {
		t.Fatalf("default layout = %q, %v", l.Root, err)
	}

	// a different folder name is discovered again, not served from the cache
	l, err = root.layout("Custom")
	if err != nil || l.Root != filepath.Join(base, "Custom") {
		t.Fatalf("custom layout = %q, %v", l.Root, err)
	}

	explicit := projectRoot{explicit: "/srv/project"}
	if l, _ := explicit.layout("Custom"); l.Root != "/srv/project" {
		t.Fatalf("explicit root ignored: %q", l.Root)
	}
}

func TestRunScoreRootFolderFromEnv(t *testing.T) {
	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("eval symlinks: %v", err)
	}
	layout := document.Layout{Root: filepath.Join(base, "Custom")}
	server := newFakeCohere(t)

	writeTestFile(t, layout.ConfigFile(), fmt.Sprintf(`
cohere:
  api_key: test-key
  base_url: %s
  dimension: %d
vector_store:
  provider: memory
`, server.URL, fakeDimension))
	writeTestFile(t, layout.ExampleResume(), `{"extracted_keywords": ["react"]}`)
	writeTestFile(t, layout.ExampleJob(), `{"extracted_keywords": ["react"]}`)

	t.Setenv("RESUME_MATCHER_DOCUMENTS_ROOT_FOLDER", "Custom")
	t.Chdir(filepath.Dir(layout.ConfigFile()))

	var out bytes.Buffer
	if err := runScore(context.Background(), scoreOptions{Output: outputText}, zap.NewNop(), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "id=0 score=") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunScoreCanceledContext(t *testing.T) {
	dir := t.TempDir()
	server := newFakeCohere(t)
	cfgPath := memoryConfig(t, dir, server.URL)
	resume := writeTestFile(t, filepath.Join(dir, "resume.json"), `{"extracted_keywords": ["go"]}`)
	job := writeTestFile(t, filepath.Join(dir, "job.json"), `{"extracted_keywords": ["go"]}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runScore(ctx, scoreOptions{
		ConfigPath: cfgPath,
		Resumes:    []string{resume},
		Job:        job,
		Output:     outputText,
	}, zap.NewNop(), &bytes.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
