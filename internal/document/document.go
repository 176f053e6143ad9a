package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrParse        = errors.New("document parse error")
	ErrRootNotFound = errors.New("project root not found")
)

// Document is a processed resume or job description.
type Document struct {
	Path     string
	Keywords []string
	// Text is Keywords joined with single spaces, the form sent to the embedder.
	Text string
}

type processed struct {
	ExtractedKeywords *[]string `json:"extracted_keywords"`
}

// Read loads a processed JSON document through src.
func Read(ctx context.Context, src Source, path string) (*Document, error) {
	if src == nil {
		src = Local{}
	}

	raw, err := src.ReadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return Parse(path, raw)
}

// Parse decodes raw as a processed document. The extracted_keywords field is required.
func Parse(path string, raw []byte) (*Document, error) {
	var doc processed
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, path, err)
	}

	if doc.ExtractedKeywords == nil {
		return nil, fmt.Errorf("%w: %s: extracted_keywords is missing", ErrParse, path)
	}

	keywords := *doc.ExtractedKeywords

	return &Document{
		Path:     path,
		Keywords: keywords,
		Text:     strings.Join(keywords, " "),
	}, nil
}

// FindRoot walks up from start until it finds a directory containing folder and returns
// the path of folder itself.
func FindRoot(start, folder string) (string, error) {
	curr, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", start, err)
	}

	for {
		candidate := filepath.Join(curr, folder)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(curr)
		if parent == curr {
			return "", fmt.Errorf("%w: folder %q above %s", ErrRootNotFound, folder, start)
		}
		curr = parent
	}
}

// List returns the processed JSON files in dir, sorted by name.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}

	sort.Strings(files)
	return files, nil
}
