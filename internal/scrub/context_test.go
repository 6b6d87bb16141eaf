package scrub

import (
	"testing"

	"go.uber.org/zap"
)

// TestContextDetector tests label-anchored detection
func TestContextDetector(t *testing.T) {
	detector := NewContext(zap.NewNop())

	single := func(t *testing.T, text string) Detection {
		t.Helper()
		ds := detector.Detect(text)
		if len(ds) != 1 {
			t.Fatalf("Expected 1 detection in %q, got %d: %+v", text, len(ds), ds)
		}
		return ds[0]
	}

	t.Run("PatientName", func(t *testing.T) {
		d := single(t, "Patient Name: John Smith, admitted overnight")
		if d.EntityType != EntityPerson {
			t.Errorf("Wrong entity type: %s", d.EntityType)
		}
		if d.EntityText != "John Smith" {
			t.Errorf("Wrong entity text: %q", d.EntityText)
		}
		if d.Method != MethodContext {
			t.Errorf("Wrong method: %s", d.Method)
		}
	})

	t.Run("HonorificStripped", func(t *testing.T) {
		d := single(t, "Attending: Dr. Jane Roe")
		if d.EntityText != "Jane Roe" {
			t.Errorf("Honorific should not be part of the entity: %q", d.EntityText)
		}
	})

	t.Run("MedicalRecordNumber", func(t *testing.T) {
		d := single(t, "MRN: A847-291 per chart")
		if d.EntityType != EntityMedicalRecord {
			t.Errorf("Wrong entity type: %s", d.EntityType)
		}
		if d.EntityText != "A847-291" {
			t.Errorf("Wrong entity text: %q", d.EntityText)
		}
	})

	t.Run("MRNRequiresDigit", func(t *testing.T) {
		if ds := detector.Detect("MRN: PENDING review"); len(ds) != 0 {
			t.Fatalf("All-letter MRN value must be rejected, got %+v", ds)
		}
	})

	t.Run("DateOfBirth", func(t *testing.T) {
		d := single(t, "DOB: 01/15/1980")
		if d.EntityType != EntityDate {
			t.Errorf("Wrong entity type: %s", d.EntityType)
		}
		if d.EntityText != "01/15/1980" {
			t.Errorf("Wrong entity text: %q", d.EntityText)
		}
	})

	t.Run("LabelCaseInsensitive", func(t *testing.T) {
		d := single(t, "patient name: Mary Jones")
		if d.EntityText != "Mary Jones" {
			t.Errorf("Wrong entity text: %q", d.EntityText)
		}
	})

	t.Run("LabelWithoutSeparatorIgnored", func(t *testing.T) {
		if ds := detector.Detect("The patient was resting comfortably"); len(ds) != 0 {
			t.Fatalf("Label keyword without a separator must not trigger, got %+v", ds)
		}
	})

	t.Run("PlaceholderValueSkipped", func(t *testing.T) {
		if ds := detector.Detect("Patient Name: [NAME_0a1b2c3d] readmitted"); len(ds) != 0 {
			t.Fatalf("Placeholder values must be skipped, got %+v", ds)
		}
	})

	t.Run("OffsetsMatchText", func(t *testing.T) {
		text := "Patient Name: John Smith\nMRN: X99-1234\nDOB: 02/02/1990"
		for _, d := range detector.Detect(text) {
			if text[d.StartOffset:d.EndOffset] != d.EntityText {
				t.Errorf("Offsets [%d,%d) do not slice to %q", d.StartOffset, d.EndOffset, d.EntityText)
			}
		}
	})
}
