// Package tokens estimates token counts from text and aggregates them per
// source and per local calendar day against daily thresholds.
package tokens

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Estimate approximates the token count of text by averaging a word-based
// heuristic (words * 1.3) with a character-based one (chars / 4). Empty
// text is 0 and any other text is at least 1.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	words := float64(len(strings.Fields(text)))
	chars := float64(utf8.RuneCountInString(text))

	n := int(math.Floor((words*1.3 + chars/4) / 2))
	return max(n, 1)
}
