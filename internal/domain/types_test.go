package domain

import (
	"testing"
)

func TestProvenanceConstants(t *testing.T) {
	tests := []struct {
		name     string
		value    Provenance
		expected string
	}{
		{"Manual", PROVENANCE_MANUAL, "manual"},
		{"Derived", PROVENANCE_DERIVED, "ohdsi_relationships"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.value) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, string(tt.value))
			}
		})
	}
}

func TestProvenanceIsValid(t *testing.T) {
	if !PROVENANCE_MANUAL.IsValid() {
		t.Error("manual provenance should be valid")
	}
	if !PROVENANCE_DERIVED.IsValid() {
		t.Error("derived provenance should be valid")
	}
	if Provenance("guesswork").IsValid() {
		t.Error("unknown provenance should be invalid")
	}
}

func TestStandardTierFromCode(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		expected StandardTier
	}{
		{"Standard", "S", STANDARD},
		{"Classification", "C", CLASSIFICATION},
		{"Non-standard empty", "", NON_STANDARD},
		{"Non-standard other", "X", NON_STANDARD},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StandardTierFromCode(tt.code); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestStandardTierCodeRoundTrip(t *testing.T) {
	for _, tier := range []StandardTier{STANDARD, CLASSIFICATION, NON_STANDARD} {
		if got := StandardTierFromCode(tier.Code()); got != tier {
			t.Errorf("Expected %s after round trip, got %s", tier, got)
		}
	}
}

func TestVocabularySet(t *testing.T) {
	set := NewVocabularySet(AllowedVocabularies)

	for _, id := range []string{"RxNorm", "RxNorm Extension", "LOINC", "SNOMED", "ICD10"} {
		if !set.Contains(id) {
			t.Errorf("Expected allow-list to contain %s", id)
		}
	}
	if set.Contains("Custom") {
		t.Error("Expected allow-list not to contain Custom")
	}
}
