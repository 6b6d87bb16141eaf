package scrub

import (
	"strings"
	"testing"
)

// TestMergeDetections tests conflict resolution between detector passes
func TestMergeDetections(t *testing.T) {
	t.Run("StatisticalOverridesRegex", func(t *testing.T) {
		winners := mergeDetections([]Detection{
			{EntityText: "SMITH", EntityType: EntityPerson, Confidence: 0.70, Method: MethodRegex},
			{EntityText: "SMITH", EntityType: EntityPerson, Confidence: 0.80, Method: MethodStatistical},
		})
		if len(winners) != 1 {
			t.Fatalf("Expected 1 winner, got %d", len(winners))
		}
		if w := winners["SMITH"]; w.Method != MethodStatistical {
			t.Errorf("STATISTICAL should win, got %s", w.Method)
		}
	})

	t.Run("ContextOverridesRegex", func(t *testing.T) {
		winners := mergeDetections([]Detection{
			{EntityText: "847-291", EntityType: EntityPhone, Confidence: 0.95, Method: MethodRegex},
			{EntityText: "847-291", EntityType: EntityMedicalRecord, Confidence: 0.90, Method: MethodContext},
		})
		if w := winners["847-291"]; w.Method != MethodContext {
			t.Errorf("CONTEXT should win over REGEX even at lower confidence, got %s", w.Method)
		}
	})

	t.Run("HigherConfidenceWinsWithinMethod", func(t *testing.T) {
		winners := mergeDetections([]Detection{
			{EntityText: "x@y.co", EntityType: EntityEmail, Confidence: 0.90, Method: MethodRegex},
			{EntityText: "x@y.co", EntityType: EntityEmail, Confidence: 0.98, Method: MethodRegex},
		})
		if w := winners["x@y.co"]; w.Confidence != 0.98 {
			t.Errorf("Higher confidence should survive, got %f", w.Confidence)
		}
	})

	t.Run("DistinctTextsNeverMerge", func(t *testing.T) {
		winners := mergeDetections([]Detection{
			{EntityText: "John Smith", EntityType: EntityPerson, Confidence: 0.92, Method: MethodContext},
			{EntityText: "Smith", EntityType: EntityPerson, Confidence: 0.80, Method: MethodStatistical},
		})
		if len(winners) != 2 {
			t.Fatalf("Distinct texts must both survive, got %d", len(winners))
		}
	})
}

// TestApplyReplacements tests span arbitration and buffer splicing
func TestApplyReplacements(t *testing.T) {
	t.Run("AllOccurrencesReplaced", func(t *testing.T) {
		text := "John called. Later John called again."
		all := []Detection{
			{EntityText: "John", EntityType: EntityPerson, StartOffset: 0, EndOffset: 4, Confidence: 0.9, Method: MethodStatistical},
			{EntityText: "John", EntityType: EntityPerson, StartOffset: 19, EndOffset: 23, Confidence: 0.9, Method: MethodStatistical},
		}
		winners := mergeDetections(all)
		out, replacements, redacted := applyReplacements(text, all, winners, "salt")

		token := replacements["John"]
		if token == "" {
			t.Fatal("No placeholder generated")
		}
		if strings.Contains(out, "John") {
			t.Fatalf("Raw entity survived: %q", out)
		}
		if got := strings.Count(out, token); got != 2 {
			t.Errorf("Expected token twice, got %d in %q", got, out)
		}
		if redacted != 8 {
			t.Errorf("Redacted chars = %d, want 8", redacted)
		}
	})

	t.Run("LongerEntityClaimsOverlap", func(t *testing.T) {
		text := "Seen by John Smith today"
		all := []Detection{
			{EntityText: "John Smith", EntityType: EntityPerson, StartOffset: 8, EndOffset: 18, Confidence: 0.92, Method: MethodContext},
			{EntityText: "Smith", EntityType: EntityPerson, StartOffset: 13, EndOffset: 18, Confidence: 0.95, Method: MethodStatistical},
		}
		winners := mergeDetections(all)
		out, replacements, _ := applyReplacements(text, all, winners, "salt")

		if strings.Contains(out, "Smith") || strings.Contains(out, "John") {
			t.Fatalf("Raw entity survived: %q", out)
		}
		// The longer text owns the span; the shorter winner gets no slot.
		if !strings.Contains(out, replacements["John Smith"]) {
			t.Errorf("Long entity token missing from %q", out)
		}
		if strings.Contains(out, replacements["Smith"]) {
			t.Errorf("Short entity token should not appear inside the claimed span: %q", out)
		}
	})

	t.Run("StaleOffsetsDropped", func(t *testing.T) {
		text := "nothing to see"
		all := []Detection{
			{EntityText: "John", EntityType: EntityPerson, StartOffset: 0, EndOffset: 4, Confidence: 0.9, Method: MethodRegex},
		}
		winners := mergeDetections(all)
		out, _, redacted := applyReplacements(text, all, winners, "salt")
		if out != text {
			t.Fatalf("Buffer corrupted: %q", out)
		}
		if redacted != 0 {
			t.Errorf("Redacted chars = %d, want 0", redacted)
		}
	})

	t.Run("DescendingOffsetsPreservePositions", func(t *testing.T) {
		text := "a@b.co wrote to c@d.co about e@f.co"
		all := []Detection{
			{EntityText: "a@b.co", EntityType: EntityEmail, StartOffset: 0, EndOffset: 6, Confidence: 0.98, Method: MethodRegex},
			{EntityText: "c@d.co", EntityType: EntityEmail, StartOffset: 16, EndOffset: 22, Confidence: 0.98, Method: MethodRegex},
			{EntityText: "e@f.co", EntityType: EntityEmail, StartOffset: 29, EndOffset: 35, Confidence: 0.98, Method: MethodRegex},
		}
		winners := mergeDetections(all)
		out, replacements, _ := applyReplacements(text, all, winners, "salt")

		want := replacements["a@b.co"] + " wrote to " + replacements["c@d.co"] + " about " + replacements["e@f.co"]
		if out != want {
			t.Fatalf("Got %q, want %q", out, want)
		}
	})
}
