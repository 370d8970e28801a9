// Package rules loads the ordered category rules and the location labels
// that drive classification and retention.
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"tg_harvest/internal/model"
)

// DefaultLocationPrefix marks every label in the location namespace.
const DefaultLocationPrefix = "Thailand"

// RuleSet is the validated rule configuration.
type RuleSet struct {
	LocationCategories []string             `yaml:"locationCategories"`
	LocationPrefix     string               `yaml:"locationPrefix"`
	ChatRules          []model.CategoryRule `yaml:"chatRules"`
	MessageRules       []model.CategoryRule `yaml:"messageRules"`
}

// ValidationError lists every problem found in a rule document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid rules: " + strings.Join(e.Problems, "; ")
}

// IsLocation reports whether label belongs to the location namespace.
func (rs *RuleSet) IsLocation(label string) bool {
	if slices.Contains(rs.LocationCategories, label) {
		return true
	}
	return rs.LocationPrefix != "" && strings.HasPrefix(label, rs.LocationPrefix)
}

// LocationOnly reports whether labels is non-empty and made up of
// location labels only.
func (rs *RuleSet) LocationOnly(labels []string) bool {
	if len(labels) == 0 {
		return false
	}
	for _, l := range labels {
		if !rs.IsLocation(l) {
			return false
		}
	}
	return true
}

// LoadFile reads and validates the rule document at path.
func LoadFile(path string) (*RuleSet, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("open rules %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	rs, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("load rules %s: %w", path, err)
	}
	return rs, nil
}

// Parse decodes a YAML (or JSON) rule document. Unknown keys are
// rejected and the result is validated.
func Parse(r io.Reader) (*RuleSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("rules document is empty")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	rs := &RuleSet{LocationPrefix: DefaultLocationPrefix}
	if err := dec.Decode(rs); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if err := rs.validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *RuleSet) validate() error {
	var problems []string
	if len(rs.ChatRules) == 0 && len(rs.MessageRules) == 0 {
		problems = append(problems, "no rules defined")
	}
	problems = append(problems, checkRules("chatRules", rs.ChatRules)...)
	problems = append(problems, checkRules("messageRules", rs.MessageRules)...)
	for i, c := range rs.LocationCategories {
		if strings.TrimSpace(c) == "" {
			problems = append(problems, fmt.Sprintf("locationCategories[%d]: empty label", i))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// checkRules validates one scope and fills in default rule names.
func checkRules(scope string, rules []model.CategoryRule) []string {
	var problems []string
	for i := range rules {
		r := &rules[i]
		if r.Name == "" {
			r.Name = fmt.Sprintf("%s[%d]", scope, i)
		}
		if strings.TrimSpace(r.Category) == "" {
			problems = append(problems, fmt.Sprintf("%s: empty category", r.Name))
		}
		if len(r.Keywords) == 0 {
			problems = append(problems, fmt.Sprintf("%s: no keywords", r.Name))
		}
		for j, k := range r.Keywords {
			if strings.TrimSpace(k) == "" {
				problems = append(problems, fmt.Sprintf("%s: keyword %d is blank", r.Name, j))
			}
		}
	}
	return problems
}
