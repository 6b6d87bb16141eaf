package scrub

import (
	"testing"

	"go.uber.org/zap"
)

// TestStructuralDetector tests the regex pattern table
func TestStructuralDetector(t *testing.T) {
	detector := NewStructural(zap.NewNop())

	find := func(text string, entityType EntityType) []Detection {
		var out []Detection
		for _, d := range detector.Detect(text) {
			if d.EntityType == entityType {
				out = append(out, d)
			}
		}
		return out
	}

	t.Run("NationalID", func(t *testing.T) {
		ds := find("SSN is 123-45-6789 on file", EntityNationalID)
		if len(ds) != 1 {
			t.Fatalf("Expected 1 national ID, got %d", len(ds))
		}
		if ds[0].EntityText != "123-45-6789" {
			t.Errorf("Wrong entity text: %q", ds[0].EntityText)
		}
		if ds[0].Confidence != 0.99 {
			t.Errorf("Wrong confidence: %f", ds[0].Confidence)
		}
	})

	t.Run("Email", func(t *testing.T) {
		ds := find("Reach me at john.smith+work@example.org anytime", EntityEmail)
		if len(ds) != 1 {
			t.Fatalf("Expected 1 email, got %d", len(ds))
		}
		if ds[0].EntityText != "john.smith+work@example.org" {
			t.Errorf("Wrong entity text: %q", ds[0].EntityText)
		}
	})

	t.Run("Phone", func(t *testing.T) {
		for _, text := range []string{
			"Call (555) 123-4567 today",
			"Call 555-123-4567 today",
			"Call +1 555.123.4567 today",
		} {
			if ds := find(text, EntityPhone); len(ds) != 1 {
				t.Errorf("Expected 1 phone in %q, got %d", text, len(ds))
			}
		}
	})

	t.Run("CreditCard", func(t *testing.T) {
		ds := find("card 4111 1111 1111 1111 charged", EntityCreditCard)
		if len(ds) != 1 {
			t.Fatalf("Expected 1 credit card, got %d", len(ds))
		}
	})

	t.Run("DateFormats", func(t *testing.T) {
		for _, text := range []string{
			"seen on 01/15/2024",
			"seen on 1-15-24",
			"seen on 2024-01-15",
			"seen on January 15, 2024",
			"seen on Jan 15",
		} {
			if ds := find(text, EntityDate); len(ds) != 1 {
				t.Errorf("Expected 1 date in %q, got %d", text, len(ds))
			}
		}
	})

	t.Run("StreetAddress", func(t *testing.T) {
		ds := find("Lives at 123 North Main Street since 2019.", EntityAddress)
		if len(ds) != 1 {
			t.Fatalf("Expected 1 address, got %d", len(ds))
		}
		if ds[0].EntityText != "123 North Main Street" {
			t.Errorf("Wrong entity text: %q", ds[0].EntityText)
		}
	})

	t.Run("POBox", func(t *testing.T) {
		if ds := find("Mail to P.O. Box 1234 please", EntityPOBox); len(ds) != 1 {
			t.Fatalf("Expected 1 PO box, got %d", len(ds))
		}
	})

	t.Run("ZipWithPlus4", func(t *testing.T) {
		ds := find("zip 62704-1111 area", EntityZip)
		if len(ds) != 1 {
			t.Fatalf("Expected 1 zip, got %d", len(ds))
		}
		if ds[0].EntityText != "62704-1111" {
			t.Errorf("Plus-4 zip not captured whole: %q", ds[0].EntityText)
		}
	})

	t.Run("CityState", func(t *testing.T) {
		ds := find("Transferred from Springfield, IL overnight", EntityCityState)
		if len(ds) != 1 {
			t.Fatalf("Expected 1 city/state, got %d", len(ds))
		}
		if ds[0].EntityText != "Springfield, IL" {
			t.Errorf("Wrong entity text: %q", ds[0].EntityText)
		}
	})

	t.Run("WhitelistProtectsClinicalAcronyms", func(t *testing.T) {
		ds := detector.Detect("Patient was seen in the ICU for COPD after an MRI")
		if len(ds) != 0 {
			t.Fatalf("Clinical acronyms must not be detected, got %d: %+v", len(ds), ds)
		}
	})

	t.Run("CapsNameHeuristic", func(t *testing.T) {
		ds := find("Reviewed by SMITH before discharge", EntityPerson)
		if len(ds) != 1 {
			t.Fatalf("Expected 1 caps-name candidate, got %d", len(ds))
		}
		if ds[0].Confidence != capsNameConfidence {
			t.Errorf("Wrong confidence: %f", ds[0].Confidence)
		}
	})

	t.Run("PlaceholdersNeverRedetected", func(t *testing.T) {
		ds := detector.Detect("Patient [NAME_0a1b2c3d] called from [PHONE_00ff00ff]")
		if len(ds) != 0 {
			t.Fatalf("Placeholder tokens must be skipped, got %d: %+v", len(ds), ds)
		}
	})

	t.Run("OffsetsMatchText", func(t *testing.T) {
		text := "Email a@b.co and SSN 123-45-6789."
		for _, d := range detector.Detect(text) {
			if text[d.StartOffset:d.EndOffset] != d.EntityText {
				t.Errorf("Offsets [%d,%d) do not slice to %q", d.StartOffset, d.EndOffset, d.EntityText)
			}
		}
	})

	t.Run("Whitelisted", func(t *testing.T) {
		if !detector.Whitelisted("icu") {
			t.Error("Whitelist lookup should be case-insensitive")
		}
		if detector.Whitelisted("ZEBRA") {
			t.Error("ZEBRA should not be whitelisted")
		}
	})
}
