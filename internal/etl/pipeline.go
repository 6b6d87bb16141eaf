package etl

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/raaihank/medscrub/internal/scrub"
)

// Pipeline runs batch de-identification over clinical note datasets
type Pipeline struct {
	scrubber *scrub.Scrubber
	config   *Config
	logger   *zap.Logger
	stats    *ProcessingStats
	mu       sync.RWMutex
}

// NewPipeline creates a new ETL pipeline
func NewPipeline(scrubber *scrub.Scrubber, config *Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		scrubber: scrubber,
		config:   config,
		logger:   logger,
		stats: &ProcessingStats{
			StartTime: time.Now(),
		},
	}
}

// ProcessFile de-identifies a dataset file (CSV, Parquet, or JSONL) and
// writes the scrubbed records to outputPath in the same format. One
// session salt covers the whole run, so a patient mentioned in two notes
// maps to the same placeholder across the dataset.
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string) (*ProcessingResult, error) {
	p.logger.Info("Starting ETL pipeline",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	start := time.Now()
	result := &ProcessingResult{}

	salt := p.config.SessionSalt
	if salt == "" {
		generated, err := scrub.NewSessionSalt()
		if err != nil {
			return result, err
		}
		salt = generated
	}

	format := DetectFileFormat(inputPath)
	p.logger.Info("Detected file format", zap.String("format", string(format)))

	p.resetStats()

	writer, err := newRecordWriter(outputPath, DetectFileFormat(outputPath))
	if err != nil {
		return result, fmt.Errorf("failed to open output: %w", err)
	}
	defer writer.Close()

	switch format {
	case FormatCSV:
		err = p.processCSV(ctx, inputPath, salt, writer, result)
	case FormatParquet:
		err = p.processParquet(ctx, inputPath, salt, writer, result)
	case FormatJSON:
		err = p.processJSON(ctx, inputPath, salt, writer, result)
	default:
		return result, fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return result, fmt.Errorf("%s processing failed: %w", format, err)
	}

	if err := writer.Close(); err != nil {
		return result, fmt.Errorf("failed to finalize output: %w", err)
	}

	result.Duration = time.Since(start)

	p.logger.Info("ETL pipeline completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("total_redactions", result.TotalRedactions),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("scrub_time", result.ScrubTime))

	return result, nil
}

// processCSV processes CSV files with a note_id,text header
func (p *Pipeline) processCSV(ctx context.Context, filePath, salt string, writer *recordWriter, result *ProcessingResult) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 2 // note_id, text

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	p.logger.Info("CSV header detected", zap.Strings("columns", header))

	return p.processBatches(ctx, salt, func() ([]*NoteRecord, error) {
		var batch []*NoteRecord
		for len(batch) < p.config.BatchSize {
			record, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read CSV record", zap.Error(err))
				continue
			}
			if len(record) != 2 {
				p.logger.Warn("Invalid CSV record length", zap.Int("length", len(record)))
				continue
			}

			note := &NoteRecord{
				NoteID: strings.TrimSpace(record[0]),
				Text:   record[1],
			}
			if p.validateRecord(note) {
				batch = append(batch, note)
			}
		}
		return batch, nil
	}, writer, result)
}

// processParquet processes Parquet files
func (p *Pipeline) processParquet(ctx context.Context, filePath, salt string, writer *recordWriter, result *ProcessingResult) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	return p.processBatches(ctx, salt, func() ([]*NoteRecord, error) {
		var batch []*NoteRecord
		for len(batch) < p.config.BatchSize {
			var record NoteRecord
			err := reader.Read(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read Parquet record", zap.Error(err))
				continue
			}
			if p.validateRecord(&record) {
				batch = append(batch, &record)
			}
		}
		return batch, nil
	}, writer, result)
}

// processJSON processes JSONL files (one JSON object per line)
func (p *Pipeline) processJSON(ctx context.Context, filePath, salt string, writer *recordWriter, result *ProcessingResult) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	return p.processBatches(ctx, salt, func() ([]*NoteRecord, error) {
		var batch []*NoteRecord
		for len(batch) < p.config.BatchSize {
			var record NoteRecord
			err := decoder.Decode(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read JSON record", zap.Error(err))
				continue
			}
			if p.validateRecord(&record) {
				batch = append(batch, &record)
			}
		}
		return batch, nil
	}, writer, result)
}

// processBatches processes data in batches using the provided reader function
func (p *Pipeline) processBatches(ctx context.Context, salt string, readBatch func() ([]*NoteRecord, error), writer *recordWriter, result *ProcessingResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := readBatch()
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			break // End of file
		}

		if err := p.processBatch(ctx, salt, batch, writer, result); err != nil {
			p.logger.Error("Batch processing failed", zap.Error(err))
			result.ProcessedFailed += int64(len(batch))
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		result.TotalRecords += int64(len(batch))

		if p.config.ProgressReport > 0 && result.TotalRecords%int64(p.config.ProgressReport) == 0 {
			p.reportProgress(result)
		}
	}

	return nil
}

// processBatch scrubs one batch with a bounded worker pool, preserving
// the input order of records in the output file.
func (p *Pipeline) processBatch(ctx context.Context, salt string, batch []*NoteRecord, writer *recordWriter, result *ProcessingResult) error {
	scrubStart := time.Now()

	workers := p.config.WorkerCount
	if workers <= 0 {
		workers = 4
	}

	scrubbed := make([]*ScrubbedRecord, len(batch))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, note := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, note *NoteRecord) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := p.scrubber.ScrubWithSalt(ctx, note.Text, salt)
			if err != nil {
				p.logger.Warn("Failed to scrub note",
					zap.String("note_id", note.NoteID),
					zap.Error(err))
				return
			}
			scrubbed[i] = &ScrubbedRecord{
				NoteID:     note.NoteID,
				Text:       res.Text,
				Count:      res.Count,
				Confidence: res.Confidence,
				Warnings:   len(res.Warnings),
			}
		}(i, note)
	}
	wg.Wait()
	result.ScrubTime += time.Since(scrubStart)

	writeStart := time.Now()
	for _, rec := range scrubbed {
		if rec == nil {
			result.ProcessedFailed++
			continue
		}
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		result.ProcessedOK++
		result.TotalRedactions += int64(rec.Count)
	}
	result.WriteTime += time.Since(writeStart)

	return nil
}

// validateRecord validates a data record
func (p *Pipeline) validateRecord(record *NoteRecord) bool {
	if !p.config.ValidateData {
		return true
	}

	if strings.TrimSpace(record.NoteID) == "" {
		p.logger.Debug("Invalid record: empty note_id")
		return false
	}
	if strings.TrimSpace(record.Text) == "" {
		p.logger.Debug("Invalid record: empty text")
		return false
	}

	return true
}

// reportProgress reports current processing progress
func (p *Pipeline) reportProgress(result *ProcessingResult) {
	elapsed := time.Since(p.stats.StartTime)
	rate := float64(result.TotalRecords) / elapsed.Seconds()

	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_ok", result.ProcessedOK),
		zap.Int64("records_failed", result.ProcessedFailed),
		zap.Float64("rate_per_sec", rate),
		zap.Duration("elapsed", elapsed))
}

// resetStats resets processing statistics
func (p *Pipeline) resetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats = &ProcessingStats{
		StartTime: time.Now(),
	}
}

// GetStats returns current processing statistics
func (p *Pipeline) GetStats() *ProcessingStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := *p.stats
	return &stats
}

// recordWriter writes scrubbed records in the requested output format.
type recordWriter struct {
	format  FileFormat
	file    *os.File
	csv     *csv.Writer
	json    *json.Encoder
	parquet *parquet.Writer
	closed  bool
}

func newRecordWriter(path string, format FileFormat) (*recordWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := &recordWriter{format: format, file: file}
	switch format {
	case FormatCSV:
		w.csv = csv.NewWriter(file)
		if err := w.csv.Write([]string{"note_id", "text", "count", "confidence", "warnings"}); err != nil {
			file.Close()
			return nil, err
		}
	case FormatJSON:
		w.json = json.NewEncoder(file)
	case FormatParquet:
		w.parquet = parquet.NewWriter(file, parquet.SchemaOf(ScrubbedRecord{}))
	default:
		file.Close()
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	return w, nil
}

func (w *recordWriter) Write(rec *ScrubbedRecord) error {
	switch w.format {
	case FormatCSV:
		return w.csv.Write([]string{
			rec.NoteID,
			rec.Text,
			strconv.Itoa(rec.Count),
			strconv.FormatFloat(rec.Confidence, 'f', 4, 64),
			strconv.Itoa(rec.Warnings),
		})
	case FormatJSON:
		return w.json.Encode(rec)
	case FormatParquet:
		return w.parquet.Write(rec)
	}
	return fmt.Errorf("unsupported output format: %s", w.format)
}

// Close flushes and closes the output. Safe to call twice.
func (w *recordWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	switch w.format {
	case FormatCSV:
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			w.file.Close()
			return err
		}
	case FormatParquet:
		if err := w.parquet.Close(); err != nil {
			w.file.Close()
			return err
		}
	}
	return w.file.Close()
}
