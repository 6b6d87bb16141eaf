package etl

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/raaihank/medscrub/internal/scrub"
)

// TestDetectFileFormat tests format detection from extensions
func TestDetectFileFormat(t *testing.T) {
	tests := []struct {
		filename string
		expected FileFormat
	}{
		{"notes.csv", FormatCSV},
		{"notes.parquet", FormatParquet},
		{"notes.jsonl", FormatJSON},
		{"notes.json", FormatJSON},
		{"notes.txt", FormatCSV}, // default
		{"notes", FormatCSV},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := DetectFileFormat(tt.filename); got != tt.expected {
				t.Errorf("DetectFileFormat(%q) = %s, want %s", tt.filename, got, tt.expected)
			}
		})
	}
}

func newTestPipeline(t *testing.T, config *Config) *Pipeline {
	t.Helper()
	scrubConfig := scrub.DefaultConfig()
	scrubConfig.EnableStatistical = false
	scrubber := scrub.New(scrubConfig, nil, zap.NewNop())
	return NewPipeline(scrubber, config, zap.NewNop())
}

// TestProcessFileCSV tests the CSV path end to end
func TestProcessFileCSV(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "notes.csv")
	outputPath := filepath.Join(dir, "notes.scrubbed.csv")

	input := strings.Join([]string{
		`note_id,text`,
		`n1,"Patient Name: John Smith, SSN: 123-45-6789"`,
		`n2,"Stable overnight in the ICU"`,
		`n3,"Patient Name: John Smith, returning next week"`,
		`,""`, // dropped by validation
	}, "\n") + "\n"
	if err := os.WriteFile(inputPath, []byte(input), 0o644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	p := newTestPipeline(t, &Config{BatchSize: 2, WorkerCount: 2, ValidateData: true})
	result, err := p.ProcessFile(context.Background(), inputPath, outputPath)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	if result.TotalRecords != 3 || result.ProcessedOK != 3 || result.ProcessedFailed != 0 {
		t.Fatalf("Unexpected counts: %+v", result)
	}
	if result.TotalRedactions != 3 {
		t.Errorf("Expected 3 redactions across the dataset, got %d", result.TotalRedactions)
	}

	out, err := os.Open(outputPath)
	if err != nil {
		t.Fatalf("Failed to open output: %v", err)
	}
	defer out.Close()

	rows, err := csv.NewReader(out).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read output CSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("Expected header + 3 rows, got %d", len(rows))
	}
	if got := strings.Join(rows[0], ","); got != "note_id,text,count,confidence,warnings" {
		t.Errorf("Wrong header: %q", got)
	}

	// Input order is preserved regardless of worker scheduling.
	for i, wantID := range []string{"n1", "n2", "n3"} {
		if rows[i+1][0] != wantID {
			t.Errorf("Row %d has note_id %q, want %q", i+1, rows[i+1][0], wantID)
		}
	}
	for _, row := range rows[1:] {
		for _, raw := range []string{"John Smith", "123-45-6789"} {
			if strings.Contains(row[1], raw) {
				t.Errorf("Raw PII %q survived in output row %q", raw, row[0])
			}
		}
	}

	// Same salt across the run: the same patient gets the same token in
	// both notes that mention them.
	tokenOf := func(text string) string {
		i := strings.Index(text, "[NAME_")
		if i < 0 {
			return ""
		}
		return text[i : i+15]
	}
	if a, b := tokenOf(rows[1][1]), tokenOf(rows[3][1]); a == "" || a != b {
		t.Errorf("Cross-note token mismatch: %q vs %q", a, b)
	}
}

// TestProcessFileJSONL tests the JSONL path
func TestProcessFileJSONL(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "notes.jsonl")
	outputPath := filepath.Join(dir, "notes.scrubbed.jsonl")

	input := `{"note_id":"n1","text":"SSN: 123-45-6789"}` + "\n" +
		`{"note_id":"n2","text":"No identifiers here"}` + "\n"
	if err := os.WriteFile(inputPath, []byte(input), 0o644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	p := newTestPipeline(t, &Config{BatchSize: 10, WorkerCount: 2, ValidateData: true})
	result, err := p.ProcessFile(context.Background(), inputPath, outputPath)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if result.ProcessedOK != 2 {
		t.Fatalf("Expected 2 records, got %d", result.ProcessedOK)
	}

	out, err := os.Open(outputPath)
	if err != nil {
		t.Fatalf("Failed to open output: %v", err)
	}
	defer out.Close()

	decoder := json.NewDecoder(out)
	var first ScrubbedRecord
	if err := decoder.Decode(&first); err != nil {
		t.Fatalf("Failed to decode output record: %v", err)
	}
	if first.NoteID != "n1" || first.Count != 1 {
		t.Errorf("Unexpected first record: %+v", first)
	}
	if strings.Contains(first.Text, "123-45-6789") {
		t.Errorf("Raw PII survived: %q", first.Text)
	}
	if !strings.Contains(first.Text, "[NATIONAL_ID_") {
		t.Errorf("Missing placeholder: %q", first.Text)
	}
}

// TestProcessFileCancelled tests context cancellation between batches
func TestProcessFileCancelled(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "notes.csv")
	outputPath := filepath.Join(dir, "out.csv")

	var b strings.Builder
	b.WriteString("note_id,text\n")
	for i := 0; i < 50; i++ {
		b.WriteString("n,plain note text\n")
	}
	if err := os.WriteFile(inputPath, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(t, &Config{BatchSize: 5, WorkerCount: 2})
	if _, err := p.ProcessFile(ctx, inputPath, outputPath); err == nil {
		t.Fatal("Expected cancellation error")
	}
}
