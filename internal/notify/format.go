package notify

import (
	"fmt"
	"strings"

	"tg_harvest/internal/harvester"
	"tg_harvest/internal/model"
	"tg_harvest/internal/pipeline"
)

const timeLayout = "2006-01-02 15:04 UTC"

// FormatSummary formats the outcome of a harvest, join or leave run.
func FormatSummary(s harvester.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] run %s\n\n", s.Kind, s.RunID)
	fmt.Fprintf(&b, "Endpoints: %d\n", s.Total)
	fmt.Fprintf(&b, "Succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(&b, "Failed: %d\n", s.Failed)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, "Skipped (already done): %d\n", s.Skipped)
	}
	if s.Kind == model.RunHarvest {
		fmt.Fprintf(&b, "Records saved: %d\n", s.Records)
	}
	return b.String()
}

// FormatCategorize formats the outcome of a categorization pass.
func FormatCategorize(r pipeline.Result, deleteLocationOnly bool) string {
	var b strings.Builder
	b.WriteString("[categorize]\n\n")
	fmt.Fprintf(&b, "Categorized: %d\n", r.Categorized)
	if deleteLocationOnly {
		fmt.Fprintf(&b, "Deleted (location only): %d\n", r.Deleted)
		fmt.Fprintf(&b, "Remaining: %d\n", len(r.Records))
	}
	return b.String()
}

// FormatRuns formats journal runs, newest first.
func FormatRuns(runs []model.Run) string {
	if len(runs) == 0 {
		return "No runs recorded yet."
	}
	var b strings.Builder
	for _, r := range runs {
		status := "unfinished"
		if r.FinishedAt != nil {
			status = "finished " + r.FinishedAt.UTC().Format(timeLayout)
		}
		fmt.Fprintf(&b, "%s  %-7s  started %s  [%s]\n", r.ID, r.Kind, r.StartedAt.UTC().Format(timeLayout), status)
		fmt.Fprintf(&b, "   %d ok, %d failed\n", r.OK, r.Failed)
	}
	return b.String()
}

// FormatRunResults formats one run followed by the outcome of each endpoint.
func FormatRunResults(run *model.Run, results []model.EndpointResult) string {
	var b strings.Builder
	b.WriteString(FormatRuns([]model.Run{*run}))
	if len(results) == 0 {
		b.WriteString("\nNo endpoints processed.\n")
		return b.String()
	}
	b.WriteString("\n")
	for _, r := range results {
		switch r.Status {
		case model.StatusFailed:
			fmt.Fprintf(&b, "FAIL  %s: %s\n", r.Endpoint, r.Error)
		default:
			fmt.Fprintf(&b, "ok    %s (%d records)\n", r.Endpoint, r.Records)
		}
	}
	return b.String()
}
