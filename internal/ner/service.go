package ner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/medscrub/internal/cache"
	"github.com/raaihank/medscrub/internal/scrub"
)

// Service is the statistical oracle: BERT-style token classification over
// one chunk of text, decoded into entity spans. It implements
// scrub.Recognizer. When no inference backend is compiled in or the model
// is missing, every call returns ErrModelNotLoaded and the pipeline
// degrades gracefully.
type Service struct {
	config    ModelConfig
	logger    *zap.Logger
	tokenizer *Tokenizer
	backend   InferenceBackend
	cache     *cache.EntityCache
	stats     ModelStats
	mu        sync.RWMutex
}

var _ scrub.Recognizer = (*Service)(nil)

// NewService loads the tokenizer and inference backend. The entity cache
// is optional; pass nil to disable chunk-result caching.
func NewService(config ModelConfig, logger *zap.Logger, entityCache *cache.EntityCache) (*Service, error) {
	start := time.Now()

	if config.MaxLength <= 0 {
		config.MaxLength = 512
	}
	if config.ModelTimeout <= 0 {
		config.ModelTimeout = 30 * time.Second
	}

	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotLoaded, config.ModelPath)
	}

	tokenizer, err := NewTokenizer(config.VocabPath, config.MaxLength)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}

	backend := NewInferenceBackend(logger, config.ModelPath, config.MaxLength)
	if backend == nil || !backend.IsReady() {
		return nil, fmt.Errorf("%w: no inference backend available (build with -tags onnx)", ErrModelNotLoaded)
	}

	s := &Service{
		config:    config,
		logger:    logger,
		tokenizer: tokenizer,
		backend:   backend,
		cache:     entityCache,
	}
	s.stats.ModelLoadTime = time.Since(start)

	logger.Info("NER service initialized",
		zap.String("model", config.ModelName),
		zap.String("model_path", config.ModelPath),
		zap.Int("max_length", config.MaxLength),
		zap.Bool("cache", entityCache != nil),
		zap.Duration("load_time", s.stats.ModelLoadTime))

	return s, nil
}

// Recognize runs token classification over text and decodes BIO tags into
// entity spans with byte offsets into text.
func (s *Service) Recognize(ctx context.Context, text string) ([]scrub.Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	if s.cache != nil {
		if spans, ok := s.cache.Get(ctx, text); ok {
			s.recordRun(0, true, true)
			return spansToEntities(text, spans), nil
		}
	}

	start := time.Now()

	inferCtx, cancel := context.WithTimeout(ctx, s.config.ModelTimeout)
	defer cancel()

	tokens, err := s.tokenizer.Tokenize(text)
	if err != nil {
		s.recordRun(time.Since(start), false, false)
		return nil, fmt.Errorf("%w: %v", ErrTokenizationFailed, err)
	}

	predictions, err := s.backend.Predict(inferCtx, tokens)
	if err != nil {
		s.recordRun(time.Since(start), false, false)
		return nil, err
	}

	entities := decodeBIO(text, tokens, predictions)
	s.recordRun(time.Since(start), true, false)

	if s.cache != nil {
		spans := make([]cache.EntitySpan, len(entities))
		for i, e := range entities {
			spans[i] = cache.EntitySpan{Label: e.Label, Start: e.Start, End: e.End, Score: e.Score}
		}
		if err := s.cache.Set(context.Background(), text, spans); err != nil {
			s.logger.Warn("failed to cache entity spans", zap.Error(err))
		}
	}

	return entities, nil
}

// decodeBIO folds token-level BIO predictions into entity spans. An
// entity's score is the minimum of its token scores, so one uncertain
// token drags the whole span below the redaction threshold.
func decodeBIO(text string, tokens *TokenizedInput, predictions []TokenPrediction) []scrub.Entity {
	var entities []scrub.Entity
	var current *scrub.Entity

	flush := func() {
		if current != nil {
			current.Text = text[current.Start:current.End]
			entities = append(entities, *current)
			current = nil
		}
	}

	for i := 0; i < tokens.Length && i < len(predictions); i++ {
		span := tokens.TokenSpans[i]
		if span[0] == span[1] {
			continue // special token
		}
		p := predictions[i]
		label := Labels[p.LabelIndex]

		switch {
		case label == "O":
			flush()
		case strings.HasPrefix(label, "B-"):
			flush()
			current = &scrub.Entity{
				Label: strings.TrimPrefix(label, "B-"),
				Start: span[0],
				End:   span[1],
				Score: p.Score,
			}
		case strings.HasPrefix(label, "I-"):
			tag := strings.TrimPrefix(label, "I-")
			if current != nil && current.Label == tag {
				current.End = span[1]
				if p.Score < current.Score {
					current.Score = p.Score
				}
			} else {
				// Dangling I- tag; treat as a fresh entity.
				current = &scrub.Entity{Label: tag, Start: span[0], End: span[1], Score: p.Score}
			}
		}
	}
	flush()
	return entities
}

func spansToEntities(text string, spans []cache.EntitySpan) []scrub.Entity {
	entities := make([]scrub.Entity, 0, len(spans))
	for _, sp := range spans {
		if sp.Start < 0 || sp.End > len(text) || sp.Start >= sp.End {
			continue
		}
		entities = append(entities, scrub.Entity{
			Label: sp.Label,
			Text:  text[sp.Start:sp.End],
			Start: sp.Start,
			End:   sp.End,
			Score: sp.Score,
		})
	}
	return entities
}

func (s *Service) recordRun(elapsed time.Duration, success, cacheHit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalInferences++
	s.stats.LastInferenceTime = time.Now()
	if cacheHit {
		s.stats.CacheHits++
	}
	if success {
		s.stats.SuccessfulRuns++
		if !cacheHit {
			if s.stats.AvgInferenceTime == 0 {
				s.stats.AvgInferenceTime = elapsed
			} else {
				s.stats.AvgInferenceTime = (s.stats.AvgInferenceTime + elapsed) / 2
			}
		}
	} else {
		s.stats.FailedRuns++
	}
	if total := s.stats.SuccessfulRuns + s.stats.FailedRuns; total > 0 {
		s.stats.ErrorRate = float64(s.stats.FailedRuns) / float64(total)
	}
}

// GetStats returns a copy of the oracle performance counters.
func (s *Service) GetStats() ModelStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// HealthCheck verifies the tokenizer and backend are usable.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.backend == nil || !s.backend.IsReady() {
		return ErrModelNotLoaded
	}
	if _, err := s.tokenizer.Tokenize("health check"); err != nil {
		return fmt.Errorf("tokenizer health check failed: %w", err)
	}
	return nil
}

// Close releases backend resources.
func (s *Service) Close() error {
	if s.backend != nil {
		return s.backend.Close()
	}
	return nil
}
