package tokens

import (
	"strings"
	"testing"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"single short word", "hi", 1},
		{"whitespace only", "   ", 1},
		// 10 words * 1.3 = 13, 40 chars / 4 = 10 -> floor(23 / 2) = 11
		{"sentence", "Do you want me to continue? 1) Yes 2) No", 11},
		// 100 words * 1.3 = 130, 499 chars / 4 = 124.75 -> floor(254.75 / 2) = 127
		{"long", strings.TrimSpace(strings.Repeat("word ", 100)), 127},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Estimate(tc.text); got != tc.want {
				t.Errorf("Estimate(%q) = %d, want %d", tc.text, got, tc.want)
			}
		})
	}
}

func TestEstimate_MonotonicInLength(t *testing.T) {
	prev := 0
	for n := 1; n <= 200; n++ {
		text := strings.TrimSpace(strings.Repeat("alpha ", n))
		got := Estimate(text)
		if got < prev {
			t.Fatalf("estimate decreased at %d words: %d < %d", n, got, prev)
		}
		prev = got
	}
}

func TestEstimate_CountsRunes(t *testing.T) {
	// 1 word * 1.3 = 1.3, 8 runes / 4 = 2 -> floor(3.3 / 2) = 1
	if got := Estimate("çğışöüçğ"); got != 1 {
		t.Errorf("Estimate of 8 multibyte runes = %d, want 1", got)
	}
}
