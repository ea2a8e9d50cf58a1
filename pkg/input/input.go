// Package input loads the identifier list produced by the upstream
// dedup-and-chunk step.
//
// The input is a CSV file with an `id` column. Deduplication is the
// upstream collaborator's job; identifiers are consumed in file order and
// never reordered, since batch membership is positional.
package input

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadIDs reads the identifier column from a CSV file. A header row is
// detected by looking for an `id` column; headerless single-column files
// are accepted as-is. Blank rows are skipped.
func LoadIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identifier list: %w", err)
	}
	defer f.Close()

	ids, err := readIDs(f)
	if err != nil {
		return nil, fmt.Errorf("read identifier list %q: %w", path, err)
	}
	return ids, nil
}

func readIDs(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	column := 0
	start := 0
	if idx, ok := headerColumn(rows[0]); ok {
		column = idx
		start = 1
	}

	ids := make([]string, 0, len(rows)-start)
	for _, row := range rows[start:] {
		if column >= len(row) {
			continue
		}
		id := strings.TrimSpace(row[column])
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// headerColumn reports which column of a header row is named `id`.
func headerColumn(row []string) (int, bool) {
	for i, field := range row {
		if strings.EqualFold(strings.TrimSpace(field), "id") {
			return i, true
		}
	}
	return 0, false
}
