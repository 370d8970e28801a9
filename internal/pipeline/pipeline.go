// Package pipeline categorizes the whole corpus and applies the retention
// policy before writing it back.
package pipeline

import (
	"fmt"
	"log/slog"

	"tg_harvest/internal/classify"
	"tg_harvest/internal/metrics"
	"tg_harvest/internal/model"
	"tg_harvest/internal/rules"
)

// Store is the corpus the pipeline reads and rewrites.
type Store interface {
	Read() ([]model.Record, error)
	Write(records []model.Record) error
}

// Policy decides which categorized records stay in the corpus.
type Policy struct {
	// DeleteLocationOnly drops records whose labels are all location labels.
	DeleteLocationOnly bool
}

// Retain reports whether a record with the given labels is kept.
// Records without labels are always kept.
func (p Policy) Retain(labels []string, rs *rules.RuleSet) bool {
	if !p.DeleteLocationOnly {
		return true
	}
	return !rs.LocationOnly(labels)
}

// Result summarizes one pipeline run.
type Result struct {
	Categorized int
	Deleted     int
	Records     []model.Record
}

// Pipeline runs the classifier and the retention policy over a corpus.
type Pipeline struct {
	rules  *rules.RuleSet
	policy Policy
	log    *slog.Logger
}

// New creates a Pipeline for a fixed rule set and policy.
func New(rs *rules.RuleSet, policy Policy, log *slog.Logger) *Pipeline {
	return &Pipeline{rules: rs, policy: policy, log: log}
}

// Apply categorizes records and filters them. The input slice is not
// modified. A record with no matching rule gets an empty category.
func (p *Pipeline) Apply(records []model.Record) Result {
	res := Result{Records: make([]model.Record, 0, len(records))}
	for _, rec := range records {
		labels := classify.Classify(rec, p.rules)
		rec.Category = classify.JoinLabels(labels)
		if len(labels) > 0 {
			res.Categorized++
		}
		if !p.policy.Retain(labels, p.rules) {
			res.Deleted++
			p.log.Debug("dropping location-only record", "source_chat", rec.SourceChat, "category", rec.Category)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res
}

// Run reads the corpus, applies the pipeline and writes the retained
// records back in a single write. A corpus that cannot be read aborts the
// run without writing.
func (p *Pipeline) Run(store Store) (Result, error) {
	records, err := store.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read corpus: %w", err)
	}

	res := p.Apply(records)

	if err := store.Write(res.Records); err != nil {
		return Result{}, fmt.Errorf("write corpus: %w", err)
	}

	metrics.RecordsCategorized.Add(float64(res.Categorized))
	metrics.RecordsDeleted.Add(float64(res.Deleted))
	p.log.Info("categorization complete",
		"categorized", res.Categorized,
		"deleted", res.Deleted,
		"remaining", len(res.Records),
		"delete_location_only", p.policy.DeleteLocationOnly,
	)
	return res, nil
}
