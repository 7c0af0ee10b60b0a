package oracle

import (
	"fmt"
	"strings"
)

// ScoreKeywords scores an output against expected keywords by
// case-insensitive containment and builds per-keyword feedback lines. The
// feedback is what the reflection role later consumes as evidence, so it
// names each hit and miss explicitly.
func ScoreKeywords(output string, keywords []string) (float64, string) {
	if output == "" {
		return 0.0, "No valid output generated."
	}
	if len(keywords) == 0 {
		return 0.0, "No evaluation criteria found."
	}

	lowered := strings.ToLower(output)
	found := 0
	var b strings.Builder
	for _, keyword := range keywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			found++
			fmt.Fprintf(&b, "SUCCESS: Output contained %q.\n", keyword)
		} else {
			fmt.Fprintf(&b, "FAILURE: Output missing %q.\n", keyword)
		}
	}

	score := float64(found) / float64(len(keywords))
	fmt.Fprintf(&b, "Final Score: %.2f", score)
	return score, b.String()
}

// MissingKeywords returns the expected keywords absent from the output.
func MissingKeywords(output string, keywords []string) []string {
	lowered := strings.ToLower(output)
	var missing []string
	for _, keyword := range keywords {
		if !strings.Contains(lowered, strings.ToLower(keyword)) {
			missing = append(missing, keyword)
		}
	}
	return missing
}
