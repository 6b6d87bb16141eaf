package ner

import (
	"testing"

	"github.com/raaihank/medscrub/internal/cache"
)

// label indexes into Labels
const (
	tagO = iota
	tagBPer
	tagIPer
	tagBLoc
	tagILoc
	tagBOrg
	tagIOrg
)

// TestDecodeBIO tests folding token predictions into entity spans
func TestDecodeBIO(t *testing.T) {
	t.Run("FoldsBIIntoOneEntity", func(t *testing.T) {
		text := "John Smith visited Paris"
		tokens := &TokenizedInput{
			TokenSpans: [][2]int{{0, 0}, {0, 4}, {5, 10}, {11, 18}, {19, 24}, {0, 0}},
			Length:     6,
		}
		predictions := []TokenPrediction{
			{tagO, 0.99},
			{tagBPer, 0.95},
			{tagIPer, 0.90},
			{tagO, 0.99},
			{tagBLoc, 0.88},
			{tagO, 0.99},
		}

		entities := decodeBIO(text, tokens, predictions)
		if len(entities) != 2 {
			t.Fatalf("Expected 2 entities, got %d: %+v", len(entities), entities)
		}
		person := entities[0]
		if person.Label != "PER" || person.Text != "John Smith" {
			t.Errorf("Wrong person entity: %+v", person)
		}
		if person.Start != 0 || person.End != 10 {
			t.Errorf("Wrong person span: [%d,%d)", person.Start, person.End)
		}
		if person.Score != 0.90 {
			t.Errorf("Entity score must be the minimum token score, got %f", person.Score)
		}
		location := entities[1]
		if location.Label != "LOC" || location.Text != "Paris" {
			t.Errorf("Wrong location entity: %+v", location)
		}
	})

	t.Run("ConsecutiveBStartsNewEntity", func(t *testing.T) {
		text := "John Mary"
		tokens := &TokenizedInput{
			TokenSpans: [][2]int{{0, 0}, {0, 4}, {5, 9}, {0, 0}},
			Length:     4,
		}
		predictions := []TokenPrediction{
			{tagO, 0.99},
			{tagBPer, 0.95},
			{tagBPer, 0.92},
			{tagO, 0.99},
		}

		entities := decodeBIO(text, tokens, predictions)
		if len(entities) != 2 {
			t.Fatalf("Expected 2 entities, got %d: %+v", len(entities), entities)
		}
		if entities[0].Text != "John" || entities[1].Text != "Mary" {
			t.Errorf("Wrong entity texts: %+v", entities)
		}
	})

	t.Run("DanglingITreatedAsFreshEntity", func(t *testing.T) {
		text := "Smith arrived"
		tokens := &TokenizedInput{
			TokenSpans: [][2]int{{0, 0}, {0, 5}, {6, 13}, {0, 0}},
			Length:     4,
		}
		predictions := []TokenPrediction{
			{tagO, 0.99},
			{tagIPer, 0.85},
			{tagO, 0.99},
			{tagO, 0.99},
		}

		entities := decodeBIO(text, tokens, predictions)
		if len(entities) != 1 {
			t.Fatalf("Expected 1 entity, got %d: %+v", len(entities), entities)
		}
		if entities[0].Label != "PER" || entities[0].Text != "Smith" {
			t.Errorf("Dangling I- should open an entity: %+v", entities[0])
		}
	})

	t.Run("SpecialTokensSkipped", func(t *testing.T) {
		text := "Paris"
		tokens := &TokenizedInput{
			TokenSpans: [][2]int{{0, 0}, {0, 5}, {0, 0}},
			Length:     3,
		}
		// Confident predictions on [CLS] and [SEP] must be ignored.
		predictions := []TokenPrediction{
			{tagBPer, 0.99},
			{tagBLoc, 0.90},
			{tagBPer, 0.99},
		}

		entities := decodeBIO(text, tokens, predictions)
		if len(entities) != 1 {
			t.Fatalf("Expected 1 entity, got %d: %+v", len(entities), entities)
		}
		if entities[0].Label != "LOC" {
			t.Errorf("Only the real token should decode: %+v", entities[0])
		}
	})

	t.Run("EntityAtSequenceEndFlushed", func(t *testing.T) {
		text := "seen in Paris"
		tokens := &TokenizedInput{
			TokenSpans: [][2]int{{0, 0}, {0, 4}, {5, 7}, {8, 13}, {0, 0}},
			Length:     5,
		}
		predictions := []TokenPrediction{
			{tagO, 0.99},
			{tagO, 0.99},
			{tagO, 0.99},
			{tagBLoc, 0.93},
			{tagO, 0.99},
		}

		entities := decodeBIO(text, tokens, predictions)
		if len(entities) != 1 || entities[0].Text != "Paris" {
			t.Fatalf("Trailing entity must be flushed, got %+v", entities)
		}
	})
}

// TestSpansToEntities tests rehydrating cached spans
func TestSpansToEntities(t *testing.T) {
	text := "John Smith arrived"
	entities := spansToEntities(text, []cache.EntitySpan{
		{Label: "PER", Start: 0, End: 10, Score: 0.9},
		{Label: "PER", Start: 5, End: 100, Score: 0.9}, // out of range
		{Label: "PER", Start: 8, End: 4, Score: 0.9},   // inverted
	})
	if len(entities) != 1 {
		t.Fatalf("Expected 1 valid entity, got %d", len(entities))
	}
	if entities[0].Text != "John Smith" {
		t.Errorf("Wrong rehydrated text: %q", entities[0].Text)
	}
}
