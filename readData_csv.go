package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Table is a CSV file held as strings, so that columns the tool does not
// touch are written back exactly as they were read.
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// ReadTableCSV reads a CSV file with a header line.
func ReadTableCSV(filename string) (*Table, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	return readTable(file, filename)
}

func readTable(r io.Reader, name string) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", name, err)
	}

	t := &Table{Header: header, index: make(map[string]int, len(header))}
	for i, h := range header {
		t.index[strings.TrimSpace(h)] = i
	}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", name, line, err)
		}
		if len(row) != len(header) {
			return nil, fmt.Errorf("%s line %d: %d fields, header has %d", name, line, len(row), len(header))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Column returns the position of a named column.
func (t *Table) Column(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Len is the number of records.
func (t *Table) Len() int { return len(t.Rows) }

// Floats parses a whole column. Empty cells and NA markers become NaN.
func (t *Table) Floats(col int) ([]float64, error) {
	values := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		v, err := parseCell(row[col])
		if err != nil {
			return nil, fmt.Errorf("row %d column %q: %w", i, t.Header[col], err)
		}
		values[i] = v
	}
	return values, nil
}

// Float parses one cell.
func (t *Table) Float(row, col int) (float64, error) {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Header) {
		return 0, fmt.Errorf("cell (%d, %d) outside %dx%d table", row, col, len(t.Rows), len(t.Header))
	}
	return parseCell(t.Rows[row][col])
}

// SetFloats writes values into col at the given rows, in order.
func (t *Table) SetFloats(col int, rows []int, values []float64) {
	for i, r := range rows {
		if math.IsNaN(values[i]) {
			t.Rows[r][col] = ""
			continue
		}
		t.Rows[r][col] = strconv.FormatFloat(values[i], 'f', -1, 64)
	}
}

// WriteCSV writes the table, header first.
func (t *Table) WriteCSV(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", filename, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(t.Header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("error writing rows: %w", err)
	}
	return file.Sync()
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null", "none":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// Dataset is the three tables a run works on.
type Dataset struct {
	Input     *Table // reference records
	Output    *Table // synthetic records, perturbed in place
	Subgroups *Table
}

// loadInputData reads the tables named in the config.
func loadInputData(cfg Config) (*Dataset, error) {
	input, err := ReadTableCSV(cfg.InputFile)
	if err != nil {
		return nil, fmt.Errorf("input data: %w", err)
	}
	output, err := ReadTableCSV(cfg.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("output data: %w", err)
	}
	subgroups, err := ReadTableCSV(cfg.SubgroupFile)
	if err != nil {
		return nil, fmt.Errorf("subgroup data: %w", err)
	}

	for _, cat := range cfg.Categories {
		if _, ok := input.Column(cat.Name); !ok {
			return nil, fmt.Errorf("column %q not in %s", cat.Name, cfg.InputFile)
		}
		if _, ok := output.Column(cat.Name); !ok {
			return nil, fmt.Errorf("column %q not in %s", cat.Name, cfg.OutputFile)
		}
		if cat.TargetColumn >= len(subgroups.Header) {
			return nil, fmt.Errorf("category %q: target column %d not in %s (%d columns)",
				cat.Name, cat.TargetColumn, cfg.SubgroupFile, len(subgroups.Header))
		}
	}
	return &Dataset{Input: input, Output: output, Subgroups: subgroups}, nil
}
