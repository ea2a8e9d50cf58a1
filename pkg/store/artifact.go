// Package store persists crawl output: one JSON artifact per completed
// batch, and an append-only CSV log of permanently failed identifiers.
//
// Artifact existence is the sole completion signal for a batch; there is no
// separate checkpoint file. Artifacts are written to a temporary name and
// atomically renamed so a crash mid-write can never leave a truncated file
// that later passes for a complete batch.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tikitools/tiki-crawler/pkg/catalog"
	"github.com/tikitools/tiki-crawler/pkg/logging"
)

const (
	artifactPrefix = "tiki_batch_"
	artifactExt    = ".json"
)

// ArtifactStore writes and enumerates batch artifacts in one directory.
type ArtifactStore struct {
	dir    string
	logger zerolog.Logger
}

// NewArtifactStore creates the output directory if needed.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %q: %w", dir, err)
	}
	return &ArtifactStore{
		dir:    dir,
		logger: logging.NewLogger("store"),
	}, nil
}

// Path returns the artifact path for a batch index.
func (s *ArtifactStore) Path(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%d%s", artifactPrefix, index, artifactExt))
}

// WriteBatch persists the success records of one batch. The write is
// atomic: the artifact appears complete or not at all.
func (s *ArtifactStore) WriteBatch(index int, products []*catalog.Product) error {
	if index < 1 {
		return fmt.Errorf("batch index must be >= 1 (got %d)", index)
	}
	if products == nil {
		products = []*catalog.Product{}
	}

	data, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return fmt.Errorf("encode batch %d: %w", index, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+artifactPrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact for batch %d: %w", index, err)
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp artifact for batch %d: %w", index, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp artifact for batch %d: %w", index, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp artifact for batch %d: %w", index, err)
	}

	if err := os.Rename(tmpName, s.Path(index)); err != nil {
		return fmt.Errorf("publish artifact for batch %d: %w", index, err)
	}

	s.logger.Debug().
		Int("batch", index).
		Int("products", len(products)).
		Str("path", s.Path(index)).
		Msg("Batch artifact written")
	return nil
}

// ReadBatch loads a persisted batch artifact.
func (s *ArtifactStore) ReadBatch(index int) ([]*catalog.Product, error) {
	data, err := os.ReadFile(s.Path(index))
	if err != nil {
		return nil, fmt.Errorf("read artifact for batch %d: %w", index, err)
	}
	var products []*catalog.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode artifact for batch %d: %w", index, err)
	}
	return products, nil
}

// CompletedBatches returns the indices of all persisted artifacts.
// Temporary files and unrelated names are ignored.
func (s *ArtifactStore) CompletedBatches() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan output directory: %w", err)
	}

	var indices []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, artifactPrefix) || !strings.HasSuffix(name, artifactExt) {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, artifactPrefix), artifactExt)
		index, err := strconv.Atoi(raw)
		if err != nil || index < 1 {
			continue
		}
		indices = append(indices, index)
	}
	return indices, nil
}

// NextBatch resolves the resume point: one past the highest completed batch
// index, or 1 when no artifact exists.
func (s *ArtifactStore) NextBatch() (int, error) {
	indices, err := s.CompletedBatches()
	if err != nil {
		return 0, err
	}

	highest := 0
	for _, index := range indices {
		if index > highest {
			highest = index
		}
	}
	return highest + 1, nil
}
