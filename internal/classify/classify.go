// Package classify implements the keyword rule matching engine.
package classify

import (
	"slices"
	"strings"

	"tg_harvest/internal/model"
	"tg_harvest/internal/rules"
)

// Classify returns the categories of every rule that matches rec, in rule
// order, without duplicates. Chat rules match the source chat name and
// message rules match the message text.
func Classify(rec model.Record, rs *rules.RuleSet) []string {
	var labels []string
	add := func(label string) {
		if !slices.Contains(labels, label) {
			labels = append(labels, label)
		}
	}

	for _, r := range rs.ChatRules {
		if matchesRule(rec.SourceChat, r) {
			add(r.Category)
		}
	}

	if rec.Message != "" {
		for _, r := range rs.MessageRules {
			if matchesRule(rec.Message, r) {
				add(r.Category)
			}
		}
	}
	return labels
}

// ContainsKeyword reports whether keyword occurs in text, ignoring case.
// There is no tokenization, so partial words match.
func ContainsKeyword(text, keyword string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}

// JoinLabels renders labels in the corpus category field format.
func JoinLabels(labels []string) string {
	return strings.Join(labels, ", ")
}

// matchesRule reports whether any keyword of r occurs in text.
func matchesRule(text string, r model.CategoryRule) bool {
	return slices.ContainsFunc(r.Keywords, func(k string) bool {
		return ContainsKeyword(text, k)
	})
}
