package fusion

import (
	"fmt"
	"strings"
)

// charsPerToken is the rough chars-per-token estimate used for budgeting.
const charsPerToken = 4

// Fragment is a rendered, size-bounded prompt fragment.
type Fragment struct {
	Text   string `json:"text"`
	Items  []Item `json:"items"`
	Tokens int    `json:"tokens"`
}

// Empty reports whether the fragment carries no context.
func (f Fragment) Empty() bool {
	return len(f.Items) == 0
}

// EstimateTokens estimates the token count of s (len/4 heuristic).
func EstimateTokens(s string) int {
	return len(s) / charsPerToken
}

// Assemble renders fused items into a prompt fragment bounded by
// tokenBudget. Items are appended in ranked order; the first item whose
// rendered entry would exceed the remaining budget ends assembly — items
// are never truncated mid-content, favoring fewer complete items over
// partial ones. Pure function of its inputs; no external calls.
func Assemble(items []Item, tokenBudget int) Fragment {
	if len(items) == 0 || tokenBudget <= 0 {
		return Fragment{}
	}

	var b strings.Builder
	var used []Item
	tokens := 0

	for i, item := range items {
		entry := renderEntry(i+1, item)
		cost := EstimateTokens(entry)
		if tokens+cost > tokenBudget {
			break
		}
		b.WriteString(entry)
		used = append(used, item)
		tokens += cost
	}

	if len(used) == 0 {
		return Fragment{}
	}
	return Fragment{Text: b.String(), Items: used, Tokens: tokens}
}

// renderEntry formats one context entry with its source labels and score.
func renderEntry(n int, item Item) string {
	labels := make([]string, len(item.Sources))
	for i, s := range item.Sources {
		labels[i] = string(s)
	}
	return fmt.Sprintf("%d. [%s] (%.2f) %s\n", n, strings.Join(labels, ", "), item.Score, sanitizeContent(item.Content))
}

// sanitizeContent prevents prompt injection when retrieved content is
// injected into the live chat prompt: strips angle brackets and backticks,
// collapses newlines to spaces.
func sanitizeContent(s string) string {
	return strings.NewReplacer(
		"<", "",
		">", "",
		"`", "",
		"\n", " ",
		"\r", " ",
	).Replace(s)
}
