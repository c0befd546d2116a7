package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// printSubgroupTables prints a Target | Before | After table per subgroup.
func printSubgroupTables(w io.Writer, results []unitResult) {
	current := -1
	for _, res := range results {
		if res.Subgroup != current {
			current = res.Subgroup
			fmt.Fprintf(w, "\nSubgroup %d: %s\n\n", res.Subgroup, res.Filter)
			fmt.Fprintf(w, "%-24s | %14s | %14s | %14s\n", "Column", "Target", "Before", "After")
			fmt.Fprintln(w, "---------------------------------------------------------------------------")
		}
		if res.Status != statusOptimized {
			fmt.Fprintf(w, "%-24s | skipped: %s\n", res.Category.Name, res.Reason)
			continue
		}
		fmt.Fprintf(w, "%-24s | %14.2f | %14.2f | %14.2f\n", res.Category.Name, res.Target, res.Before, res.After)
	}
}

var reportHeader = []string{
	"run_id", "subgroup", "filter", "column", "status", "target", "before", "after",
	"cost", "divergence", "proximity", "penalty", "bandwidth", "trials", "rejected", "fit", "reason",
}

// writeReport writes one CSV row per unit.
func writeReport(filename, runID string, results []unitResult) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create report file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(reportHeader); err != nil {
		return fmt.Errorf("error writing report header: %w", err)
	}
	for _, res := range results {
		if err := w.Write(reportRow(runID, res)); err != nil {
			return fmt.Errorf("error writing report row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func reportRow(runID string, res unitResult) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	row := []string{
		runID,
		strconv.Itoa(res.Subgroup),
		res.Filter.String(),
		res.Category.Name,
		res.Status,
		f(res.Target),
		f(res.Before),
		f(res.After),
	}
	if res.Status != statusOptimized {
		return append(row, "", "", "", "", "", "", "", "", res.Reason)
	}
	return append(row,
		f(res.Objective.Cost),
		f(res.Objective.Divergence),
		f(res.Objective.Proximity),
		f(res.Objective.Penalty),
		f(res.Bandwidth),
		strconv.Itoa(res.Trials),
		strconv.Itoa(res.Rejected),
		f(res.Fit),
		"",
	)
}

// summarize counts optimized and skipped units.
func summarize(results []unitResult) (optimized, skipped int) {
	for _, res := range results {
		if res.Status == statusOptimized {
			optimized++
		} else {
			skipped++
		}
	}
	return optimized, skipped
}
