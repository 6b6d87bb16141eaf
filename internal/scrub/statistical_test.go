package scrub

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newTestStatistical(oracle Recognizer, config StatisticalConfig) *StatisticalDetector {
	return NewStatistical(oracle, config, zap.NewNop())
}

// TestStatisticalDetector tests the oracle integration layer
func TestStatisticalDetector(t *testing.T) {
	t.Run("ScoreAboveThreshold", func(t *testing.T) {
		oracle := recognizerFunc(func(ctx context.Context, text string) ([]Entity, error) {
			i := strings.Index(text, "Maria")
			if i < 0 {
				return nil, nil
			}
			return []Entity{{Label: "PER", Text: "Maria", Start: i, End: i + 5, Score: 0.91}}, nil
		})
		d := newTestStatistical(oracle, StatisticalConfig{Threshold: 0.75})

		detections, warnings := d.Detect(context.Background(), "Seen by Maria this morning")
		if len(warnings) != 0 {
			t.Fatalf("Unexpected warnings: %+v", warnings)
		}
		if len(detections) != 1 {
			t.Fatalf("Expected 1 detection, got %d", len(detections))
		}
		got := detections[0]
		if got.EntityType != EntityPerson || got.Method != MethodStatistical {
			t.Errorf("Wrong classification: %+v", got)
		}
		if got.Confidence != 0.91 {
			t.Errorf("Score must carry through as confidence, got %f", got.Confidence)
		}
	})

	t.Run("ChunkOffsetsRebased", func(t *testing.T) {
		oracle := recognizerFunc(func(ctx context.Context, text string) ([]Entity, error) {
			i := strings.Index(text, "Maria")
			if i < 0 {
				return nil, nil
			}
			return []Entity{{Label: "PER", Start: i, End: i + 5, Score: 0.95}}, nil
		})
		d := newTestStatistical(oracle, StatisticalConfig{ChunkSize: 40, Threshold: 0.75})

		// Long enough that the name lands in a later chunk.
		text := "The patient rested overnight. Vitals were stable throughout. Maria reviewed the chart."
		detections, _ := d.Detect(context.Background(), text)
		if len(detections) != 1 {
			t.Fatalf("Expected 1 detection, got %d", len(detections))
		}
		got := detections[0]
		if got.StartOffset == 0 {
			t.Fatal("Offsets were not rebased to the original document")
		}
		if text[got.StartOffset:got.EndOffset] != "Maria" {
			t.Errorf("Offsets [%d,%d) slice to %q", got.StartOffset, got.EndOffset,
				text[got.StartOffset:got.EndOffset])
		}
	})

	t.Run("WarnBandReportsWithoutRedacting", func(t *testing.T) {
		oracle := recognizerFunc(func(ctx context.Context, text string) ([]Entity, error) {
			return []Entity{{Label: "PER", Text: "Maria", Start: 0, End: 5, Score: 0.65}}, nil
		})
		d := newTestStatistical(oracle, StatisticalConfig{Threshold: 0.75, WarnThreshold: 0.60})

		detections, warnings := d.Detect(context.Background(), "Maria reviewed the chart")
		if len(detections) != 0 {
			t.Fatalf("Below-threshold entity must not be redacted: %+v", detections)
		}
		if len(warnings) != 1 || warnings[0].Kind != WarnLowConfidence {
			t.Fatalf("Expected one LOW_CONFIDENCE warning, got %+v", warnings)
		}
		if strings.Contains(warnings[0].Message, "Maria") {
			t.Errorf("Warning leaked the entity value: %q", warnings[0].Message)
		}
	})

	t.Run("BelowWarnBandSilent", func(t *testing.T) {
		oracle := recognizerFunc(func(ctx context.Context, text string) ([]Entity, error) {
			return []Entity{{Label: "PER", Text: "Maria", Start: 0, End: 5, Score: 0.30}}, nil
		})
		d := newTestStatistical(oracle, StatisticalConfig{Threshold: 0.75, WarnThreshold: 0.60})

		detections, warnings := d.Detect(context.Background(), "Maria reviewed the chart")
		if len(detections) != 0 || len(warnings) != 0 {
			t.Fatalf("Noise-level score must be dropped silently: %+v %+v", detections, warnings)
		}
	})

	t.Run("OracleErrorBecomesWarning", func(t *testing.T) {
		oracle := recognizerFunc(func(ctx context.Context, text string) ([]Entity, error) {
			return nil, errors.New("inference session closed")
		})
		d := newTestStatistical(oracle, StatisticalConfig{})

		detections, warnings := d.Detect(context.Background(), "Maria reviewed the chart")
		if len(detections) != 0 {
			t.Fatalf("Failed oracle must contribute no detections: %+v", detections)
		}
		if len(warnings) != 1 || warnings[0].Kind != WarnModelError {
			t.Fatalf("Expected one MODEL_ERROR warning, got %+v", warnings)
		}
	})

	t.Run("PanickingOracleDegradesToWarning", func(t *testing.T) {
		oracle := recognizerFunc(func(ctx context.Context, text string) ([]Entity, error) {
			panic("inference session corrupted")
		})
		d := newTestStatistical(oracle, StatisticalConfig{})

		detections, warnings := d.Detect(context.Background(), "Maria reviewed the chart")
		if len(detections) != 0 {
			t.Fatalf("Panicking oracle must contribute no detections: %+v", detections)
		}
		if len(warnings) != 1 || warnings[0].Kind != WarnModelError {
			t.Fatalf("Expected one MODEL_ERROR warning, got %+v", warnings)
		}
	})

	t.Run("PanickingChunkDoesNotPoisonSiblings", func(t *testing.T) {
		oracle := recognizerFunc(func(ctx context.Context, text string) ([]Entity, error) {
			if i := strings.Index(text, "Maria"); i >= 0 {
				return []Entity{{Label: "PER", Start: i, End: i + 5, Score: 0.95}}, nil
			}
			panic("inference session corrupted")
		})
		d := newTestStatistical(oracle, StatisticalConfig{ChunkSize: 40})

		text := "The patient rested overnight. Vitals were stable throughout. Maria reviewed the chart."
		detections, warnings := d.Detect(context.Background(), text)
		if len(detections) != 1 {
			t.Errorf("Healthy chunk should still detect, got %d", len(detections))
		}
		if len(warnings) == 0 {
			t.Error("Panicking chunks should surface MODEL_ERROR warnings")
		}
	})

	t.Run("SpanSliceOverridesOracleText", func(t *testing.T) {
		// An oracle that normalizes entity text ("Bob" -> "Robert") must
		// not be trusted over its own offsets, or the replacement stage
		// would count a redaction it never applied.
		oracle := recognizerFunc(func(ctx context.Context, text string) ([]Entity, error) {
			i := strings.Index(text, "Bob")
			if i < 0 {
				return nil, nil
			}
			return []Entity{{Label: "PER", Text: "Robert", Start: i, End: i + 3, Score: 0.95}}, nil
		})
		d := newTestStatistical(oracle, StatisticalConfig{Threshold: 0.75})

		detections, _ := d.Detect(context.Background(), "Seen by Bob today.")
		if len(detections) != 1 {
			t.Fatalf("Expected 1 detection, got %d", len(detections))
		}
		if detections[0].EntityText != "Bob" {
			t.Errorf("EntityText must come from the span slice, got %q", detections[0].EntityText)
		}
	})

	t.Run("FailedChunkDoesNotPoisonSiblings", func(t *testing.T) {
		oracle := recognizerFunc(func(ctx context.Context, text string) ([]Entity, error) {
			if i := strings.Index(text, "Maria"); i >= 0 {
				return []Entity{{Label: "PER", Start: i, End: i + 5, Score: 0.95}}, nil
			}
			return nil, errors.New("inference session closed")
		})
		d := newTestStatistical(oracle, StatisticalConfig{ChunkSize: 40})

		text := "The patient rested overnight. Vitals were stable throughout. Maria reviewed the chart."
		detections, warnings := d.Detect(context.Background(), text)
		if len(detections) != 1 {
			t.Errorf("Healthy chunk should still detect, got %d", len(detections))
		}
		if len(warnings) == 0 {
			t.Error("Failing chunks should surface MODEL_ERROR warnings")
		}
	})

	t.Run("UntargetedLabelIgnored", func(t *testing.T) {
		oracle := recognizerFunc(func(ctx context.Context, text string) ([]Entity, error) {
			return []Entity{{Label: "MISC", Text: "aspirin", Start: 0, End: 7, Score: 0.99}}, nil
		})
		d := newTestStatistical(oracle, StatisticalConfig{})

		detections, warnings := d.Detect(context.Background(), "aspirin 81mg daily")
		if len(detections) != 0 || len(warnings) != 0 {
			t.Fatalf("MISC entities must be ignored: %+v %+v", detections, warnings)
		}
	})

	t.Run("OutOfRangeSpanSkipped", func(t *testing.T) {
		oracle := recognizerFunc(func(ctx context.Context, text string) ([]Entity, error) {
			return []Entity{
				{Label: "PER", Start: 0, End: len(text) + 10, Score: 0.99},
				{Label: "PER", Start: -3, End: 2, Score: 0.99},
				{Label: "PER", Start: 5, End: 5, Score: 0.99},
			}, nil
		})
		d := newTestStatistical(oracle, StatisticalConfig{})

		detections, _ := d.Detect(context.Background(), "short note")
		if len(detections) != 0 {
			t.Fatalf("Malformed spans must be skipped: %+v", detections)
		}
	})

	t.Run("PlaceholderNeverRedetected", func(t *testing.T) {
		oracle := recognizerFunc(func(ctx context.Context, text string) ([]Entity, error) {
			return []Entity{{Label: "PER", Start: 0, End: 15, Score: 0.99}}, nil
		})
		d := newTestStatistical(oracle, StatisticalConfig{})

		detections, _ := d.Detect(context.Background(), "[NAME_0a1b2c3d] was readmitted")
		if len(detections) != 0 {
			t.Fatalf("Placeholder tokens must not be re-redacted: %+v", detections)
		}
	})

	t.Run("EmptyText", func(t *testing.T) {
		calls := 0
		oracle := recognizerFunc(func(ctx context.Context, text string) ([]Entity, error) {
			calls++
			return nil, nil
		})
		d := newTestStatistical(oracle, StatisticalConfig{})

		detections, warnings := d.Detect(context.Background(), "")
		if detections != nil || warnings != nil {
			t.Fatalf("Empty input must produce nothing: %+v %+v", detections, warnings)
		}
		if calls != 0 {
			t.Errorf("Oracle should not be invoked for empty input, got %d calls", calls)
		}
	})
}
