// Package pipeline connects the event sources to the dispatcher: dedup,
// keyword matching and the single dispatch attempt per comment.
package pipeline

import (
	"strings"

	"github.com/p-blackswan/reply-agent/internal/rules"
)

// Match finds the first rule whose keyword occurs in text, walking rules in
// insertion order. Matching is a case-insensitive substring test; keywords
// are stored lowercased, so only the comment text needs folding.
func Match(text string, list []rules.Rule) (rules.Rule, bool) {
	folded := strings.ToLower(text)
	for _, r := range list {
		if strings.Contains(folded, r.Keyword) {
			return r, true
		}
	}
	return rules.Rule{}, false
}
