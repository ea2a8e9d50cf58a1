package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tikitools/tiki-crawler/pkg/logging"
)

// FailureRecord is one permanently failed identifier with its reason.
type FailureRecord struct {
	ID     string
	Reason string
}

// FailureLog is the durable, append-only sink for failed identifiers.
// Rows are never deduplicated: an identifier retried across restarts may
// appear more than once.
type FailureLog struct {
	path   string
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewFailureLog creates a failure log writing to path. The file itself is
// created lazily on the first append.
func NewFailureLog(path string) (*FailureLog, error) {
	if path == "" {
		return nil, fmt.Errorf("failure log path is required")
	}
	return &FailureLog{
		path:   path,
		logger: logging.NewLogger("store"),
	}, nil
}

// Append flushes records to disk. The header row is written only when the
// file does not yet exist or is empty, so it appears exactly once across
// any number of flushes and restarts.
func (l *FailureLog) Append(records []FailureRecord) error {
	if len(records) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open failure log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat failure log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write([]string{"id", "error"}); err != nil {
			return fmt.Errorf("write failure log header: %w", err)
		}
	}

	for _, record := range records {
		if err := w.Write([]string{record.ID, record.Reason}); err != nil {
			return fmt.Errorf("write failure record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush failure log: %w", err)
	}

	l.logger.Warn().
		Int("count", len(records)).
		Str("path", l.path).
		Msg("Failed identifiers appended to failure log")
	return nil
}

// Count returns the number of failure rows on disk (header excluded).
// A missing file counts as zero.
func (l *FailureLog) Count() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open failure log: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return 0, fmt.Errorf("read failure log: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return len(rows) - 1, nil
}
