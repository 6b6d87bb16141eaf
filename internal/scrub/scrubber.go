package scrub

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Stage identifies a pipeline state for observers and logging.
type Stage string

const (
	StageValidating  Stage = "VALIDATING"
	StageStructural  Stage = "STRUCTURAL_PASS"
	StageContext     Stage = "CONTEXT_PASS"
	StageChunking    Stage = "CHUNKING"
	StageStatistical Stage = "STATISTICAL_PASS"
	StageMerging     Stage = "MERGING"
	StageReplacing   Stage = "REPLACING"
	StageAuditing    Stage = "AUDITING"
	StageDone        Stage = "DONE"
	StageFailed      Stage = "FAILED"
)

// StageEvent is published to the optional observer on every transition.
type StageEvent struct {
	Stage      Stage `json:"stage"`
	Detections int   `json:"detections"`
}

// Config holds the per-scrubber settings. Zero values are replaced by
// defaults at construction, so a zero Config is usable.
type Config struct {
	Enabled             bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxInputSize        int           `yaml:"max_input_size" mapstructure:"max_input_size"`
	ChunkSize           int           `yaml:"chunk_size" mapstructure:"chunk_size"`
	StatisticalTimeout  time.Duration `yaml:"statistical_timeout" mapstructure:"statistical_timeout"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	WarnThreshold       float64       `yaml:"warn_threshold" mapstructure:"warn_threshold"`
	SessionSalt         string        `yaml:"session_salt" mapstructure:"session_salt"`
	EnableStatistical   bool          `yaml:"enable_statistical" mapstructure:"enable_statistical"`
	EnableContext       bool          `yaml:"enable_context" mapstructure:"enable_context"`
	Workers             int           `yaml:"workers" mapstructure:"workers"`
}

// DefaultConfig returns the settings used when a field is unset.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		MaxInputSize:        1_000_000,
		ChunkSize:           2000,
		StatisticalTimeout:  30 * time.Second,
		ConfidenceThreshold: 0.75,
		WarnThreshold:       0.60,
		EnableStatistical:   true,
		EnableContext:       true,
		Workers:             4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxInputSize <= 0 {
		c.MaxInputSize = d.MaxInputSize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.StatisticalTimeout <= 0 {
		c.StatisticalTimeout = d.StatisticalTimeout
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if c.WarnThreshold <= 0 {
		c.WarnThreshold = d.WarnThreshold
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}

// Scrubber sequences the de-identification pipeline. Each Scrub call owns
// its own state; a Scrubber is safe for concurrent use because the
// detectors and configuration are read-only after construction.
type Scrubber struct {
	config      Config
	structural  *StructuralDetector
	context     *ContextDetector
	statistical *StatisticalDetector
	logger      *zap.Logger
	observer    func(StageEvent)
}

// New creates a scrubber. The oracle may be nil, in which case the
// statistical pass is skipped regardless of configuration.
func New(config Config, oracle Recognizer, logger *zap.Logger) *Scrubber {
	config = config.withDefaults()

	s := &Scrubber{
		config:     config,
		structural: NewStructural(logger.Named("structural")),
		context:    NewContext(logger.Named("context")),
		logger:     logger,
	}
	if oracle != nil {
		s.statistical = NewStatistical(oracle, StatisticalConfig{
			ChunkSize:     config.ChunkSize,
			Timeout:       config.StatisticalTimeout,
			Threshold:     config.ConfidenceThreshold,
			WarnThreshold: config.WarnThreshold,
			Workers:       config.Workers,
		}, logger.Named("statistical"))
	}

	logger.Info("scrubber initialized",
		zap.Int("max_input_size", config.MaxInputSize),
		zap.Int("chunk_size", config.ChunkSize),
		zap.Bool("statistical", s.statistical != nil && config.EnableStatistical),
		zap.Bool("context", config.EnableContext))

	return s
}

// SetObserver registers a stage-transition callback. Pass nil to remove
// it. The callback must not block; it runs on the scrub goroutine.
func (s *Scrubber) SetObserver(fn func(StageEvent)) {
	s.observer = fn
}

func (s *Scrubber) transition(stage Stage, detections int) {
	if s.observer != nil {
		s.observer(StageEvent{Stage: stage, Detections: detections})
	}
	s.logger.Debug("stage transition", zap.String("stage", string(stage)), zap.Int("detections", detections))
}

// Scrub de-identifies text under the configured session salt (a random
// one-shot salt when unconfigured).
func (s *Scrubber) Scrub(ctx context.Context, text string) (*ScrubResult, error) {
	salt := s.config.SessionSalt
	if salt == "" {
		var err error
		if salt, err = NewSessionSalt(); err != nil {
			return nil, err
		}
	}
	return s.ScrubWithSalt(ctx, text, salt)
}

// ScrubWithSalt runs the full pipeline. The only error return is input
// validation failure; every later stage degrades into warnings and the
// call still produces a result.
func (s *Scrubber) ScrubWithSalt(ctx context.Context, text string, sessionSalt string) (*ScrubResult, error) {
	audit := newAuditEngine()

	s.transition(StageValidating, 0)
	if err := validateInput(text, s.config.MaxInputSize); err != nil {
		s.transition(StageFailed, 0)
		s.logger.Warn("input rejected", zap.Error(err), zap.Int("length", len(text)))
		return nil, err
	}

	state := newScrubState(text)
	passDetections := make(map[string][]Detection)
	passElapsed := make(map[string]time.Duration)

	// Structural pass.
	s.transition(StageStructural, len(state.detections))
	structural, elapsed := s.runPass(audit, "structural", func() []Detection {
		return s.structural.Detect(state.text)
	})
	state = state.withDetections(structural)
	passDetections["structural"] = structural
	passElapsed["structural"] = elapsed

	// Context pass.
	if s.config.EnableContext {
		s.transition(StageContext, len(state.detections))
		contextual, elapsed := s.runPass(audit, "context", func() []Detection {
			return s.context.Detect(state.text)
		})
		state = state.withDetections(contextual)
		passDetections["context"] = contextual
		passElapsed["context"] = elapsed
	}

	// Statistical pass, configuration-gated; skipping is not a failure.
	if s.config.EnableStatistical && s.statistical != nil {
		s.transition(StageChunking, len(state.detections))
		s.transition(StageStatistical, len(state.detections))
		start := time.Now()
		statistical, warnings := s.statistical.Detect(ctx, state.text)
		audit.warnings = append(audit.warnings, warnings...)
		state = state.withDetections(statistical)
		passDetections["statistical"] = statistical
		passElapsed["statistical"] = time.Since(start)
	}

	// Merge.
	s.transition(StageMerging, len(state.detections))
	winners := mergeDetections(state.detections)

	// Replace.
	s.transition(StageReplacing, len(winners))
	scrubbed, replacements, redactedChars := applyReplacements(state.text, state.detections, winners, sessionSalt)

	// Audit.
	s.transition(StageAuditing, len(winners))
	for _, name := range []string{"structural", "context", "statistical"} {
		ds, ok := passDetections[name]
		if !ok {
			continue
		}
		audit.Record(name, "", passReplacements(ds, replacements), passElapsed[name])
	}
	confidence, summary := audit.Finalize(winners, redactedChars, len(text))

	detections := make([]Detection, 0, len(winners))
	for _, d := range winners {
		detections = append(detections, d)
	}
	sort.Slice(detections, func(i, j int) bool { return detections[i].StartOffset < detections[j].StartOffset })

	result := &ScrubResult{
		Text:         scrubbed,
		Replacements: replacements,
		Count:        len(replacements),
		Confidence:   confidence,
		Detections:   detections,
		Warnings:     audit.warnings,
		AuditTrail:   audit.entries,
		Summary:      summary,
	}

	// Output validation is advisory: refusing to return a scrub result is
	// worse than returning an imperfect one.
	if err := validateResult(result); err != nil {
		s.logger.Error("scrub result failed output validation", zap.Error(err))
		result.Warnings = append(result.Warnings, Warning{Kind: WarnOutputInvalid, Message: err.Error()})
	}

	s.transition(StageDone, result.Count)
	s.logger.Info("scrub complete",
		zap.Int("count", result.Count),
		zap.Float64("confidence", result.Confidence),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("duration", summary.Duration))

	return result, nil
}

// runPass executes a detector, converting a panic into a recoverable
// warning so a single bad pattern cannot abort the pipeline.
func (s *Scrubber) runPass(audit *auditEngine, name string, fn func() []Detection) (detections []Detection, elapsed time.Duration) {
	start := time.Now()
	defer func() {
		elapsed = time.Since(start)
		if r := recover(); r != nil {
			s.logger.Error("detector pass failed", zap.String("detector", name), zap.Any("panic", r))
			audit.Warn(WarnStageFailure, fmt.Sprintf("%s pass failed: %v", name, r))
			detections = nil
		}
	}()
	return fn(), time.Since(start)
}

// passReplacements builds the audit replacement list for one pass, one
// entry per unique entity text that survived the merge.
func passReplacements(detections []Detection, replacements map[string]string) []Replacement {
	seen := make(map[string]bool)
	var out []Replacement
	for _, d := range detections {
		token, won := replacements[d.EntityText]
		if !won || seen[d.EntityText] {
			continue
		}
		seen[d.EntityText] = true
		out = append(out, Replacement{Original: d.EntityText, Placeholder: token})
	}
	return out
}

// validateResult asserts the ScrubResult invariants.
func validateResult(r *ScrubResult) error {
	if r.Count != len(r.Replacements) {
		return fmt.Errorf("count %d != replacements %d", r.Count, len(r.Replacements))
	}
	if r.Count != len(r.Detections) {
		return fmt.Errorf("count %d != detections %d", r.Count, len(r.Detections))
	}
	for _, e := range r.AuditTrail {
		if e.MatchCount != len(e.Replacements) {
			return fmt.Errorf("audit entry %q: matchCount %d != replacements %d", e.DetectorName, e.MatchCount, len(e.Replacements))
		}
	}
	return nil
}
