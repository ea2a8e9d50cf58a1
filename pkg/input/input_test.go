package input

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ids.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write input file: %v", err)
	}
	return path
}

func TestLoadIDs(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected []string
	}{
		{
			name:     "header with id column",
			content:  "id\n1001\n1002\n1003\n",
			expected: []string{"1001", "1002", "1003"},
		},
		{
			name:     "headerless single column",
			content:  "1001\n1002\n",
			expected: []string{"1001", "1002"},
		},
		{
			name:     "multi column header picks id",
			content:  "name,id,category\nfoo,1001,home\nbar,1002,beauty\n",
			expected: []string{"1001", "1002"},
		},
		{
			name:     "blank rows skipped",
			content:  "id\n1001\n\n1002\n   \n",
			expected: []string{"1001", "1002"},
		},
		{
			name:     "values trimmed",
			content:  "id\n 1001 \n",
			expected: []string{"1001"},
		},
		{
			name:     "header only",
			content:  "id\n",
			expected: nil,
		},
		{
			name:     "empty file",
			content:  "",
			expected: nil,
		},
		{
			name:     "uppercase header",
			content:  "ID\n1001\n",
			expected: []string{"1001"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := LoadIDs(writeFile(t, tt.content))
			if err != nil {
				t.Fatalf("LoadIDs() error: %v", err)
			}
			if len(ids) != len(tt.expected) {
				t.Fatalf("LoadIDs() = %v, want %v", ids, tt.expected)
			}
			for i := range tt.expected {
				if ids[i] != tt.expected[i] {
					t.Errorf("LoadIDs()[%d] = %q, want %q", i, ids[i], tt.expected[i])
				}
			}
		})
	}
}

func TestLoadIDs_MissingFile(t *testing.T) {
	if _, err := LoadIDs(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("LoadIDs() should fail for a missing file")
	}
}

func TestLoadIDs_PreservesOrder(t *testing.T) {
	// Batch membership is positional, so order must survive loading.
	ids, err := LoadIDs(writeFile(t, "id\n3\n1\n2\n"))
	if err != nil {
		t.Fatalf("LoadIDs() error: %v", err)
	}
	want := []string{"3", "1", "2"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("LoadIDs() = %v, want %v (order preserved)", ids, want)
		}
	}
}
