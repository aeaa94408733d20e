// Package source supplies ingestion batches from the local filesystem and
// from S3-compatible object storage.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/alem-hub/tutoring-hub/internal/application/ingest"
)

// File is a batch read from one local file.
type File struct {
	Path string
}

var _ ingest.Source = File{}

// Name implements ingest.Source.
func (f File) Name() string { return filepath.Base(f.Path) }

// Open implements ingest.Source.
func (f File) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(f.Path)
}

// Files turns paths into sources, keeping their order.
func Files(paths ...string) []ingest.Source {
	out := make([]ingest.Source, len(paths))
	for i, p := range paths {
		out[i] = File{Path: p}
	}
	return out
}

// Glob expands every pattern and returns one source per matched file.
// Matches of one pattern are sorted by name; a file matched twice is
// listed once. A pattern that matches nothing is an error.
func Glob(patterns ...string) ([]ingest.Source, error) {
	seen := make(map[string]bool)
	var out []ingest.Source

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("glob %q: no files matched", pattern)
		}
		sort.Strings(matches)

		for _, m := range matches {
			if seen[m] {
				continue
			}
			info, err := os.Stat(m)
			if err != nil {
				return nil, err
			}
			if info.IsDir() {
				continue
			}
			seen[m] = true
			out = append(out, File{Path: m})
		}
	}
	return out, nil
}
