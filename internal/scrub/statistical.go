package scrub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entity is one span returned by the statistical oracle.
type Entity struct {
	Label string  `json:"label"`
	Text  string  `json:"text"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
}

// Recognizer is the opaque named-entity-recognition oracle boundary. The
// engine tolerates it being slow, absent, or wrong; failures degrade to
// regex+context coverage instead of failing the scrub.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
}

// StatisticalConfig bounds the oracle integration.
type StatisticalConfig struct {
	ChunkSize     int
	Timeout       time.Duration
	Threshold     float64
	WarnThreshold float64
	Workers       int
}

// statisticalTargets maps oracle labels onto the entity types this engine
// redacts. Everything else the oracle reports is ignored.
var statisticalTargets = map[string]EntityType{
	"PER":          EntityPerson,
	"PERSON":       EntityPerson,
	"B-PER":        EntityPerson,
	"I-PER":        EntityPerson,
	"LOC":          EntityLocation,
	"LOCATION":     EntityLocation,
	"GPE":          EntityLocation,
	"B-LOC":        EntityLocation,
	"ORG":          EntityOrganization,
	"ORGANIZATION": EntityOrganization,
	"B-ORG":        EntityOrganization,
}

// StatisticalDetector chunks the document and runs the oracle per chunk
// with bounded concurrency. Results are restored to original chunk order
// before they reach the merger; concurrency affects latency only.
type StatisticalDetector struct {
	oracle Recognizer
	config StatisticalConfig
	logger *zap.Logger
}

// NewStatistical wraps an oracle with chunking, timeouts and filtering.
func NewStatistical(oracle Recognizer, config StatisticalConfig, logger *zap.Logger) *StatisticalDetector {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 2000
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Threshold <= 0 {
		config.Threshold = 0.75
	}
	if config.WarnThreshold <= 0 || config.WarnThreshold > config.Threshold {
		config.WarnThreshold = config.Threshold - 0.15
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	return &StatisticalDetector{oracle: oracle, config: config, logger: logger}
}

type chunkOutcome struct {
	detections []Detection
	warnings   []Warning
}

// Detect runs the oracle over every chunk of text. A timed-out, failed or
// panicking chunk contributes no detections and one MODEL_ERROR warning;
// sibling chunks are unaffected.
func (d *StatisticalDetector) Detect(ctx context.Context, text string) ([]Detection, []Warning) {
	chunks := ChunkText(text, d.config.ChunkSize)
	if len(chunks) == 0 {
		return nil, nil
	}

	outcomes := make([]chunkOutcome, len(chunks))
	sem := make(chan struct{}, d.config.Workers)
	var wg sync.WaitGroup

	for _, chunk := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(c Chunk) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[c.Index] = d.detectChunk(ctx, c)
		}(chunk)
	}
	wg.Wait()

	// Join in original chunk order; downstream replacement logic is
	// position-dependent.
	var detections []Detection
	var warnings []Warning
	for _, o := range outcomes {
		detections = append(detections, o.detections...)
		warnings = append(warnings, o.warnings...)
	}

	d.logger.Debug("statistical pass complete",
		zap.Int("chunks", len(chunks)),
		zap.Int("detections", len(detections)),
		zap.Int("warnings", len(warnings)))

	return detections, warnings
}

func (d *StatisticalDetector) detectChunk(ctx context.Context, chunk Chunk) (out chunkOutcome) {
	// The oracle runs on this goroutine; a panic here would escape every
	// recover the orchestrator installs.
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("statistical oracle panicked, degrading chunk to regex+context coverage",
				zap.Int("chunk", chunk.Index),
				zap.Any("panic", r))
			out = chunkOutcome{warnings: []Warning{{
				Kind:    WarnModelError,
				Message: fmt.Sprintf("statistical model panicked on chunk %d: %v", chunk.Index, r),
			}}}
		}
	}()

	chunkCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	entities, err := d.oracle.Recognize(chunkCtx, chunk.Text)
	if err != nil {
		d.logger.Warn("statistical oracle failed, degrading chunk to regex+context coverage",
			zap.Int("chunk", chunk.Index),
			zap.Error(err))
		return chunkOutcome{warnings: []Warning{{
			Kind:    WarnModelError,
			Message: fmt.Sprintf("statistical model failed on chunk %d: %v", chunk.Index, err),
		}}}
	}

	for _, e := range entities {
		entityType, targeted := statisticalTargets[e.Label]
		if !targeted {
			continue
		}
		if e.Start < 0 || e.End > len(chunk.Text) || e.Start >= e.End {
			continue
		}
		// The span slice is authoritative. An oracle text field that
		// disagrees with its own offsets names an entity the replacement
		// stage could never place.
		value := chunk.Text[e.Start:e.End]
		if placeholderRe.MatchString(value) {
			continue
		}

		switch {
		case e.Score >= d.config.Threshold:
			out.detections = append(out.detections, Detection{
				EntityText:  value,
				EntityType:  entityType,
				StartOffset: chunk.Start + e.Start,
				EndOffset:   chunk.Start + e.End,
				Confidence:  e.Score,
				Method:      MethodStatistical,
			})
		case e.Score >= d.config.WarnThreshold:
			// Below the redaction threshold but close enough to deserve
			// human review. The warning carries offsets, never the value.
			out.warnings = append(out.warnings, Warning{
				Kind: WarnLowConfidence,
				Message: fmt.Sprintf("possible %s at offset %d-%d scored %.2f, below threshold %.2f",
					entityType, chunk.Start+e.Start, chunk.Start+e.End, e.Score, d.config.Threshold),
			})
		}
	}
	return out
}
