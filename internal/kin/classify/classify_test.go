package classify_test

import (
	"testing"

	"github.com/bdobrica/kin/internal/kin/classify"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		utterance  string
		wake       string
		wantWake   bool
		normalized string
	}{
		{"phrase at start", "hey kin turn on the light", "hey kin", true, "hey kin turn on the light"},
		{"substring over-match", "hey king", "hey kin", true, "hey king"},
		{"mixed case utterance", "Hey KIN what time is it", "hey kin", true, "hey kin what time is it"},
		{"mixed case phrase", "hey kin", "Hey Kin", true, "hey kin"},
		{"phrase in the middle", "okay so hey kin stop", "hey kin", true, "okay so hey kin stop"},
		{"no match", "hello there", "hey kin", false, "hello there"},
		{"split phrase", "hey there kin", "hey kin", false, "hey there kin"},
		{"empty utterance", "", "hey kin", false, ""},
		{"empty phrase never wakes", "anything", "", false, "anything"},
		{"blank phrase never wakes", "anything", "   ", false, "anything"},
		{"non-ascii folding", "HÉ KIN", "hé kin", true, "hé kin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify.Classify(tt.utterance, tt.wake)
			if got.IsWake != tt.wantWake {
				t.Errorf("IsWake = %v, want %v", got.IsWake, tt.wantWake)
			}
			if got.Normalized != tt.normalized {
				t.Errorf("Normalized = %q, want %q", got.Normalized, tt.normalized)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := classify.Normalize("STRASSE"); got != "strasse" {
		t.Errorf("Normalize(STRASSE) = %q", got)
	}
	if got := classify.Normalize("Hey Kin"); got != "hey kin" {
		t.Errorf("Normalize(Hey Kin) = %q", got)
	}
}
