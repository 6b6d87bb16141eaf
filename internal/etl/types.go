package etl

import (
	"time"
)

// NoteRecord represents a single clinical note from the input dataset
type NoteRecord struct {
	NoteID string `csv:"note_id" parquet:"note_id" json:"note_id"`
	Text   string `csv:"text" parquet:"text" json:"text"`
}

// ScrubbedRecord is one de-identified output row
type ScrubbedRecord struct {
	NoteID     string  `csv:"note_id" parquet:"note_id" json:"note_id"`
	Text       string  `csv:"text" parquet:"text" json:"text"`
	Count      int     `csv:"count" parquet:"count" json:"count"`
	Confidence float64 `csv:"confidence" parquet:"confidence" json:"confidence"`
	Warnings   int     `csv:"warnings" parquet:"warnings" json:"warnings"`
}

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	TotalRecords    int64         `json:"total_records"`
	ProcessedOK     int64         `json:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed"`
	TotalRedactions int64         `json:"total_redactions"`
	Duration        time.Duration `json:"duration"`
	ScrubTime       time.Duration `json:"scrub_time"`
	WriteTime       time.Duration `json:"write_time"`
	Errors          []string      `json:"errors,omitempty"`
}

// Config contains ETL pipeline configuration
type Config struct {
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`           // 500
	WorkerCount    int    `yaml:"worker_count" mapstructure:"worker_count"`       // 4
	ValidateData   bool   `yaml:"validate_data" mapstructure:"validate_data"`     // true
	ProgressReport int    `yaml:"progress_report" mapstructure:"progress_report"` // 1000
	SessionSalt    string `yaml:"session_salt" mapstructure:"session_salt"`       // one salt per dataset run
}

// ProcessingStats tracks real-time processing statistics
type ProcessingStats struct {
	StartTime      time.Time `json:"start_time"`
	RecordsRead    int64     `json:"records_read"`
	RecordsValid   int64     `json:"records_valid"`
	RecordsInvalid int64     `json:"records_invalid"`
	ProcessingRate float64   `json:"processing_rate"` // records per second
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch {
	case len(filename) >= 4 && filename[len(filename)-4:] == ".csv":
		return FormatCSV
	case len(filename) >= 8 && filename[len(filename)-8:] == ".parquet":
		return FormatParquet
	case len(filename) >= 6 && filename[len(filename)-6:] == ".jsonl":
		return FormatJSON
	case len(filename) >= 5 && filename[len(filename)-5:] == ".json":
		return FormatJSON
	default:
		return FormatCSV // Default to CSV
	}
}
