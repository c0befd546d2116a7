package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"synthPerturb/internal/perturb"
)

const (
	inputCSV = `REGION,AGE,SPEND
North,young,10
North,young,20
North,young,30
South,old,5
South,old,7
`
	outputCSV = `REGION,AGE,SPEND
North,young,10
North,young,20
North,young,30
South,old,6
`
	subgroupCSV = `REGION,AGE,SPEND_TARGET
North,young,120
East,young,50
"[South, West]",old,20
`
)

func writeFixtures(t *testing.T) (dir string, cfg Config) {
	t.Helper()
	dir = t.TempDir()
	for name, content := range map[string]string{
		"input.csv":     inputCSV,
		"output.csv":    outputCSV,
		"subgroups.csv": subgroupCSV,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	seed := int64(42)
	cfg = Config{
		InputFile:     filepath.Join(dir, "input.csv"),
		OutputFile:    filepath.Join(dir, "output.csv"),
		SubgroupFile:  filepath.Join(dir, "subgroups.csv"),
		PerturbedFile: filepath.Join(dir, "perturbed.csv"),
		Categories: []Category{
			{Name: "SPEND", TargetColumn: 2, Bounds: perturb.Bounds{MinValue: 0, MinMult: 1, MaxMult: 4}},
		},
		Trials:          100,
		Bandwidth:       perturb.DefaultBandwidth,
		BandwidthPolicy: "fixed",
		CostPolicy:      "linear",
		Backend:         perturb.BackendSerial,
		ReportMetric:    "MANHATTAN",
		Workers:         2,
		UseRandomSeed:   "yes",
		RandomSeed:      &seed,
		LogLevel:        "error",
		LogFormat:       "text",
	}
	require.NoError(t, cfg.Validate())
	return dir, cfg
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestPlanUnits(t *testing.T) {
	_, cfg := writeFixtures(t)
	data, err := loadInputData(cfg)
	require.NoError(t, err)

	units, err := planUnits(cfg, data, initializeRNG(cfg))
	require.NoError(t, err)
	require.Len(t, units, 3)

	require.Empty(t, units[0].skip)
	require.Equal(t, []int{0, 1, 2}, units[0].Rows)
	require.Equal(t, []float64{10, 20, 30}, units[0].Original)
	require.Equal(t, []float64{10, 20, 30}, units[0].Reference)
	require.Equal(t, 60.0, units[0].Before)
	require.Equal(t, 120.0, units[0].Target)

	require.Contains(t, units[1].skip, "no rows matched")

	require.Empty(t, units[2].skip)
	require.Equal(t, []float64{6}, units[2].Original)
	require.Equal(t, []float64{5, 7}, units[2].Reference)

	again, err := planUnits(cfg, data, initializeRNG(cfg))
	require.NoError(t, err)
	for i := range units {
		require.Equal(t, units[i].Seed, again[i].Seed, "seeds follow plan order")
	}
}

func TestParallelRun(t *testing.T) {
	_, cfg := writeFixtures(t)
	data, err := loadInputData(cfg)
	require.NoError(t, err)

	var progress bytes.Buffer
	results, err := parallelRun(context.Background(), cfg, data, quietLog(), &progress)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Contains(t, progress.String(), "Completed 3 units")

	north := results[0]
	require.Equal(t, statusOptimized, north.Status)
	require.Less(t, math.Abs(north.After-120), math.Abs(north.Before-120))
	require.Len(t, north.Values, 3)
	require.Equal(t, 100, north.Trials)
	col, _ := data.Output.Column("SPEND")
	for i, r := range north.Rows {
		require.Equal(t, strconv.FormatFloat(north.Values[i], 'f', -1, 64), data.Output.Rows[r][col])
	}

	east := results[1]
	require.Equal(t, statusSkipped, east.Status)
	require.Contains(t, east.Reason, "no rows matched")
	require.Equal(t, east.Before, east.After)

	south := results[2]
	require.Equal(t, statusOptimized, south.Status)
	require.GreaterOrEqual(t, south.After, 6.0)
	require.LessOrEqual(t, south.After, 24.0)

	// Same seed, different scheduling and backend: same outcome.
	cfg.Workers = 1
	cfg.Backend = perturb.BackendParallel
	data2, err := loadInputData(cfg)
	require.NoError(t, err)
	again, err := parallelRun(context.Background(), cfg, data2, quietLog(), io.Discard)
	require.NoError(t, err)
	for i := range results {
		require.Equal(t, results[i].Values, again[i].Values)
		require.Equal(t, results[i].Objective, again[i].Objective)
	}
}

func TestPlanChains(t *testing.T) {
	spend := Category{Name: "SPEND"}
	income := Category{Name: "INCOME"}
	units := []unit{
		{ID: 0, Category: spend, Rows: []int{0, 1}},
		{ID: 1, Category: income, Rows: []int{0, 1}},
		{ID: 2, Category: spend, Rows: []int{5}},
		{ID: 3, Category: spend, Rows: []int{1, 5}},
		{ID: 4, Category: spend},
		{ID: 5, Category: spend, Rows: []int{7}},
	}

	var ids [][]int
	for _, chain := range planChains(units) {
		var c []int
		for _, u := range chain {
			c = append(c, u.ID)
		}
		ids = append(ids, c)
	}
	require.Equal(t, [][]int{{0, 2, 3}, {1}, {4}, {5}}, ids)
}

func TestParallelRun_OverlappingSubgroups(t *testing.T) {
	dir, cfg := writeFixtures(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "subgroups.csv"),
		[]byte("REGION,AGE,SPEND_TARGET\nNorth,young,120\nNorth,\"[young, old]\",150\n"), 0o644))
	data, err := loadInputData(cfg)
	require.NoError(t, err)

	results, err := parallelRun(context.Background(), cfg, data, quietLog(), io.Discard)
	require.NoError(t, err)
	require.Len(t, results, 2)
	first, second := results[0], results[1]
	require.Equal(t, statusOptimized, first.Status)
	require.Equal(t, statusOptimized, second.Status)
	require.Equal(t, first.Rows, second.Rows)

	// The second subgroup starts from what the first one wrote.
	require.Equal(t, first.Values, second.Original)
	require.Equal(t, first.After, second.Before)

	sum := 0.0
	for _, v := range first.Values {
		sum += v
	}
	require.InDelta(t, sum, first.After, 1e-9)

	col, _ := data.Output.Column("SPEND")
	final, err := data.Output.Floats(col)
	require.NoError(t, err)
	after, err := SumAt(final, second.Rows)
	require.NoError(t, err)
	require.InDelta(t, after, second.After, 1e-9)
	for i, r := range second.Rows {
		require.Equal(t, strconv.FormatFloat(second.Values[i], 'f', -1, 64), data.Output.Rows[r][col])
	}

	// Worker count does not change a chained outcome.
	cfg.Workers = 1
	data2, err := loadInputData(cfg)
	require.NoError(t, err)
	again, err := parallelRun(context.Background(), cfg, data2, quietLog(), io.Discard)
	require.NoError(t, err)
	for i := range results {
		require.Equal(t, results[i].Values, again[i].Values)
	}
}

func TestParallelRun_SkipsInvalidTarget(t *testing.T) {
	dir, cfg := writeFixtures(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "subgroups.csv"),
		[]byte("REGION,AGE,SPEND_TARGET\nNorth,young,n/a\n"), 0o644))
	data, err := loadInputData(cfg)
	require.NoError(t, err)

	results, err := parallelRun(context.Background(), cfg, data, quietLog(), io.Discard)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, statusSkipped, results[0].Status)
	require.Contains(t, results[0].Reason, "invalid target")
}

func TestParallelRun_Cancelled(t *testing.T) {
	_, cfg := writeFixtures(t)
	data, err := loadInputData(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = parallelRun(ctx, cfg, data, quietLog(), io.Discard)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadInputData_MissingColumn(t *testing.T) {
	_, cfg := writeFixtures(t)
	cfg.Categories[0].Name = "INCOME"
	_, err := loadInputData(cfg)
	require.ErrorContains(t, err, `column "INCOME"`)

	_, cfg = writeFixtures(t)
	cfg.Categories[0].TargetColumn = 9
	_, err = loadInputData(cfg)
	require.ErrorContains(t, err, "target column 9")
}

func TestRootCommand(t *testing.T) {
	dir, _ := writeFixtures(t)
	plotDir := filepath.Join(dir, "plots")
	content := fmt.Sprintf(`{
  "inputFile": %q,
  "outputFile": %q,
  "subgroupFile": %q,
  "perturbedFile": %q,
  "reportFile": %q,
  "categories": [{"name": "SPEND", "targetColumn": 2, "bounds": {"minValue": 0, "minMult": 1, "maxMult": 4}}],
  "trials": 20,
  "useRandomSeed": "yes",
  "randomSeed": 1,
  "logLevel": "error"
}`,
		filepath.Join(dir, "input.csv"), filepath.Join(dir, "output.csv"), filepath.Join(dir, "subgroups.csv"),
		filepath.Join(dir, "perturbed.csv"), filepath.Join(dir, "report.csv"))
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	var stdout bytes.Buffer
	cmd := newRootCmd(&stdout)
	cmd.SetArgs([]string{"-f", configPath, "--plot-dir", plotDir, "--workers", "1"})
	require.NoError(t, cmd.Execute())

	out := stdout.String()
	require.Contains(t, out, "Subgroup 0: REGION=North & AGE=young")
	require.Contains(t, out, "skipped: reference table: no rows matched")
	require.Contains(t, out, "2 units optimized, 1 skipped")

	perturbed, err := ReadTableCSV(filepath.Join(dir, "perturbed.csv"))
	require.NoError(t, err)
	require.Equal(t, 4, perturbed.Len())

	report, err := ReadTableCSV(filepath.Join(dir, "report.csv"))
	require.NoError(t, err)
	require.Equal(t, reportHeader, report.Header)
	require.Equal(t, 3, report.Len())
	status, _ := report.Column("status")
	require.Equal(t, statusSkipped, report.Rows[1][status])

	require.FileExists(t, filepath.Join(plotDir, "sg0_SPEND.png"))
	require.FileExists(t, filepath.Join(plotDir, "sg2_SPEND.png"))
	require.NoFileExists(t, filepath.Join(plotDir, "sg1_SPEND.png"))
}

func TestRootCommand_MissingConfig(t *testing.T) {
	cmd := newRootCmd(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"-f", filepath.Join(t.TempDir(), "none.json")})
	require.ErrorContains(t, cmd.Execute(), "not found")
}
