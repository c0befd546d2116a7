package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Condition restricts one column to a set of accepted values. A single
// value is an equality test; several values are OR-ed.
type Condition struct {
	Column string
	Values []string
}

// Filter is a conjunction of conditions identifying a subgroup.
type Filter []Condition

func (f Filter) String() string {
	parts := make([]string, len(f))
	for i, c := range f {
		if len(c.Values) == 1 {
			parts[i] = fmt.Sprintf("%s=%s", c.Column, c.Values[0])
		} else {
			parts[i] = fmt.Sprintf("%s in [%s]", c.Column, strings.Join(c.Values, ","))
		}
	}
	return strings.Join(parts, " & ")
}

// FiltersFor builds the filter of subgroup row index from the columns of
// the subgroup table that are also features of the data. Target columns
// never take part in the filter.
func FiltersFor(index int, featureColumns []string, subgroups *Table, targetColumns []int) (Filter, error) {
	if index < 0 || index >= subgroups.Len() {
		return nil, fmt.Errorf("subgroup %d outside table of %d rows", index, subgroups.Len())
	}
	features := make(map[string]bool, len(featureColumns))
	for _, c := range featureColumns {
		features[strings.TrimSpace(c)] = true
	}

	targets := make(map[int]bool, len(targetColumns))
	for _, c := range targetColumns {
		targets[c] = true
	}

	var f Filter
	for col, name := range subgroups.Header {
		name = strings.TrimSpace(name)
		if !features[name] || targets[col] {
			continue
		}
		f = append(f, Condition{Column: name, Values: parseFilterValue(subgroups.Rows[index][col])})
	}
	return f, nil
}

// parseFilterValue splits list cells written as "[a, 'b']" into their
// items; any other cell is a single value.
func parseFilterValue(raw string) []string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "[") || !strings.HasSuffix(raw, "]") {
		return []string{raw}
	}
	var values []string
	for _, item := range strings.Split(strings.Trim(raw, "[]"), ",") {
		item = strings.Trim(item, ` '"`)
		if item != "" {
			values = append(values, item)
		}
	}
	return values
}

// ResolveStatus tells whether a subgroup filter selected any records.
type ResolveStatus int

const (
	Matched ResolveStatus = iota
	NoRows
	Malformed
)

func (s ResolveStatus) String() string {
	switch s {
	case Matched:
		return "matched"
	case NoRows:
		return "no rows"
	case Malformed:
		return "malformed filter"
	}
	return fmt.Sprintf("ResolveStatus(%d)", int(s))
}

// Resolution is the outcome of applying a filter to a table.
type Resolution struct {
	Status ResolveStatus
	Rows   []int
	Err    error
}

// Resolve returns the rows of t satisfying every condition of f.
func Resolve(t *Table, f Filter) Resolution {
	if len(f) == 0 {
		return Resolution{Status: Malformed, Err: fmt.Errorf("filter has no conditions")}
	}
	cols := make([]int, len(f))
	for i, c := range f {
		col, ok := t.Column(c.Column)
		if !ok {
			return Resolution{Status: Malformed, Err: fmt.Errorf("column %q does not exist", c.Column)}
		}
		if len(c.Values) == 0 {
			return Resolution{Status: Malformed, Err: fmt.Errorf("column %q: empty value list", c.Column)}
		}
		cols[i] = col
	}

	var rows []int
	for r, row := range t.Rows {
		ok := true
		for i, c := range f {
			if !matchesAny(row[cols[i]], c.Values) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return Resolution{Status: NoRows}
	}
	return Resolution{Status: Matched, Rows: rows}
}

// matchesAny compares a cell with the accepted values, numerically when
// both sides are numbers so that "3" matches "3.0".
func matchesAny(cell string, values []string) bool {
	cell = strings.TrimSpace(cell)
	cellNum, cellErr := strconv.ParseFloat(cell, 64)
	for _, v := range values {
		if cell == v {
			return true
		}
		if cellErr != nil {
			continue
		}
		if n, err := strconv.ParseFloat(v, 64); err == nil && n == cellNum {
			return true
		}
	}
	return false
}

// Gather picks values at rows, in order.
func Gather(values []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = values[r]
	}
	return out
}

// SumAt sums values at rows, skipping missing entries.
func SumAt(values []float64, rows []int) (float64, error) {
	var sum float64
	for _, r := range rows {
		if r < 0 || r >= len(values) {
			return 0, fmt.Errorf("row %d is out of bounds of %d values", r, len(values))
		}
		if !math.IsNaN(values[r]) {
			sum += values[r]
		}
	}
	return sum, nil
}
