package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"synthPerturb/internal/perturb"
)

// unit is one (subgroup, category) piece of work.
type unit struct {
	ID        int
	Subgroup  int
	Filter    Filter
	Category  Category
	Rows      []int // rows of the synthetic table
	Original  []float64
	Reference []float64
	Target    float64
	Before    float64
	Seed      int64
	skip      string
}

const (
	statusOptimized = "optimized"
	statusSkipped   = "skipped"
)

type unitResult struct {
	unit
	Status    string
	Reason    string
	After     float64
	Values    []float64
	Objective perturb.ObjectiveResult
	Bandwidth float64
	Trials    int
	Rejected  int
	Fit       float64
}

// initializeRNG returns the master random source unit seeds are drawn
// from.
func initializeRNG(cfg Config) *rand.Rand {
	if cfg.seeded() {
		// Deterministic mode
		return rand.New(rand.NewSource(*cfg.RandomSeed))
	}
	// Production mode (non-deterministic)
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// categoryColumns parses the category columns of t.
func categoryColumns(cfg Config, t *Table) (map[string][]float64, error) {
	cols := make(map[string][]float64, len(cfg.Categories))
	for _, cat := range cfg.Categories {
		col, _ := t.Column(cat.Name)
		values, err := t.Floats(col)
		if err != nil {
			return nil, err
		}
		cols[cat.Name] = values
	}
	return cols, nil
}

// planUnits resolves every subgroup against both tables and extracts the
// arrays each unit works on. Units that cannot run carry a skip reason.
func planUnits(cfg Config, data *Dataset, master *rand.Rand) ([]unit, error) {
	inputCols, err := categoryColumns(cfg, data.Input)
	if err != nil {
		return nil, fmt.Errorf("input data: %w", err)
	}
	outputCols, err := categoryColumns(cfg, data.Output)
	if err != nil {
		return nil, fmt.Errorf("output data: %w", err)
	}
	targetCols := make([]int, len(cfg.Categories))
	for i, cat := range cfg.Categories {
		targetCols[i] = cat.TargetColumn
	}

	n := data.Subgroups.Len()
	if cfg.SubgroupLimit > 0 && cfg.SubgroupLimit < n {
		n = cfg.SubgroupLimit
	}

	var units []unit
	for sg := 0; sg < n; sg++ {
		filter, err := FiltersFor(sg, data.Input.Header, data.Subgroups, targetCols)
		if err != nil {
			return nil, err
		}
		inRes := Resolve(data.Input, filter)
		outRes := Resolve(data.Output, filter)

		for _, cat := range cfg.Categories {
			u := unit{
				ID:       len(units),
				Subgroup: sg,
				Filter:   filter,
				Category: cat,
				Seed:     master.Int63(),
			}
			units = append(units, u)
			p := &units[len(units)-1]

			if reason := resolutionProblem("reference", inRes); reason != "" {
				p.skip = reason
			}
			if reason := resolutionProblem("synthetic", outRes); reason != "" && p.skip == "" {
				p.skip = reason
			}
			if p.skip != "" {
				continue
			}

			p.Rows = outRes.Rows
			p.Original = Gather(outputCols[cat.Name], outRes.Rows)
			p.Reference = Gather(inputCols[cat.Name], inRes.Rows)
			if p.Before, err = SumAt(outputCols[cat.Name], outRes.Rows); err != nil {
				return nil, err
			}
			target, err := data.Subgroups.Float(sg, cat.TargetColumn)
			if err != nil || math.IsNaN(target) {
				p.skip = fmt.Sprintf("invalid target in column %d", cat.TargetColumn)
				continue
			}
			p.Target = target
		}
	}
	return units, nil
}

// planChains groups units of one category whose synthetic rows overlap,
// directly or through other units. Every chain keeps plan order and the
// chains are ordered by their first unit.
func planChains(units []unit) [][]unit {
	parent := make([]int, len(units))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	owners := make(map[string]map[int]int)
	for i, u := range units {
		owner := owners[u.Category.Name]
		if owner == nil {
			owner = make(map[int]int)
			owners[u.Category.Name] = owner
		}
		for _, r := range u.Rows {
			if j, ok := owner[r]; ok {
				a, b := find(i), find(j)
				parent[max(a, b)] = min(a, b)
			}
			owner[r] = i
		}
	}

	index := make(map[int]int)
	var chains [][]unit
	for i, u := range units {
		root := find(i)
		k, ok := index[root]
		if !ok {
			k = len(chains)
			index[root] = k
			chains = append(chains, nil)
		}
		chains[k] = append(chains[k], u)
	}
	return chains
}

// chainColumn is a category column as a chain of units sees it: the
// loaded values overlaid with what earlier units of the chain wrote.
type chainColumn struct {
	base    []float64
	written map[int]float64
}

func (c *chainColumn) gather(rows []int) []float64 {
	out := Gather(c.base, rows)
	for i, r := range rows {
		if v, ok := c.written[r]; ok {
			out[i] = v
		}
	}
	return out
}

func (c *chainColumn) sum(rows []int) (float64, error) {
	var sum float64
	for _, r := range rows {
		if r < 0 || r >= len(c.base) {
			return 0, fmt.Errorf("row %d is out of bounds of %d values", r, len(c.base))
		}
		v, ok := c.written[r]
		if !ok {
			v = c.base[r]
		}
		if !math.IsNaN(v) {
			sum += v
		}
	}
	return sum, nil
}

func (c *chainColumn) write(rows []int, values []float64) {
	for i, r := range rows {
		c.written[r] = values[i]
	}
}

func resolutionProblem(table string, r Resolution) string {
	switch r.Status {
	case Matched:
		return ""
	case NoRows:
		return fmt.Sprintf("%s table: no rows matched", table)
	default:
		return fmt.Sprintf("%s table: %s: %v", table, r.Status, r.Err)
	}
}

// runner holds what workers share. Backends are stateless and safe for
// concurrent use.
type runner struct {
	cfg     Config
	search  perturb.Config
	backend perturb.Backend
	columns map[string][]float64 // synthetic category columns as loaded
	log     *logrus.Entry
}

// processChain runs the units of one chain in order. Each unit starts from
// the values the previous units wrote, and its After is the sum of its rows
// right after its own write.
func (r *runner) processChain(ctx context.Context, chain []unit, emit func(unitResult)) {
	col := &chainColumn{base: r.columns[chain[0].Category.Name], written: make(map[int]float64)}
	if len(chain) > 1 {
		subgroups := make([]int, len(chain))
		for i, u := range chain {
			subgroups[i] = u.Subgroup
		}
		r.log.WithFields(logrus.Fields{
			"column":    chain[0].Category.Name,
			"subgroups": subgroups,
		}).Warn("overlapping subgroups run in sequence")
	}

	for _, u := range chain {
		if u.skip == "" && len(chain) > 1 {
			u.Original = col.gather(u.Rows)
			before, err := col.sum(u.Rows)
			if err != nil {
				u.skip = err.Error()
			}
			u.Before = before
		}
		res := r.process(ctx, u)
		if res.Status == statusOptimized {
			col.write(res.Rows, res.Values)
			after, err := col.sum(res.Rows)
			if err != nil {
				res.Status, res.Reason, res.Values = statusSkipped, err.Error(), nil
				after = res.Before
			}
			res.After = after
		}
		emit(res)
	}
}

func (r *runner) process(ctx context.Context, u unit) unitResult {
	res := unitResult{unit: u, After: u.Before}
	log := r.log.WithFields(logrus.Fields{
		"subgroup": u.Subgroup,
		"filter":   u.Filter.String(),
		"column":   u.Category.Name,
	})
	skip := func(reason string) unitResult {
		res.Status = statusSkipped
		res.Reason = reason
		log.WithField("reason", reason).Warn("unit skipped")
		return res
	}
	if u.skip != "" {
		return skip(u.skip)
	}

	opt, err := perturb.NewOptimizer(r.search,
		perturb.WithSeed(u.Seed),
		perturb.WithLogger(log),
		perturb.WithBackend(r.backend),
	)
	if err != nil {
		return skip(err.Error())
	}
	best, err := opt.Optimize(ctx, u.Original, u.Reference, u.Target, u.Category.Bounds)
	if err != nil {
		return skip(err.Error())
	}

	res.Status = statusOptimized
	res.Values = best.Values
	res.Objective = best.Objective
	res.Bandwidth = best.Bandwidth
	res.Trials = len(best.Study.Trials)
	res.Rejected = best.Study.Rejected()

	obj, err := perturb.NewObjective(u.Original, u.Reference, u.Target, r.search.Bandwidth, r.search.CostPolicy, r.backend)
	if err == nil {
		grid, ref, before, after, derr := obj.Densities(best.Factors)
		if derr == nil {
			res.Fit = Distance(r.cfg.ReportMetric, ref, after, grid.DX)
			if r.cfg.PlotDir != "" {
				if perr := plotDensities(r.cfg.PlotDir, u, grid, ref, before, after); perr != nil {
					log.WithError(perr).Warn("density plot failed")
				}
			}
		}
	}
	log.WithFields(logrus.Fields{
		"target": u.Target,
		"before": u.Before,
		"cost":   best.Objective.Cost,
	}).Info("unit optimized")
	return res
}

// parallelRun optimizes every (subgroup, category) unit on a pool of
// workers and writes the perturbed values back into the synthetic table.
// Units are planned, seeded and applied in subgroup order, and units whose
// rows overlap run as one chain, so the outcome does not depend on
// scheduling.
//
// Parameters:
//   - ctx: cancels the run between trials
//   - cfg: validated configuration
//   - data: the loaded tables; data.Output is modified in place
//   - log: diagnostics logger
//   - progress: where the progress line is printed
//
// Returns:
//   - One result per unit, in plan order
//   - error: planning failures or cancellation
func parallelRun(ctx context.Context, cfg Config, data *Dataset, log *logrus.Entry, progress io.Writer) ([]unitResult, error) {
	search, err := cfg.SearchConfig()
	if err != nil {
		return nil, err
	}
	backend, err := perturb.NewBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	units, err := planUnits(cfg, data, initializeRNG(cfg))
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, nil
	}
	columns, err := categoryColumns(cfg, data.Output)
	if err != nil {
		return nil, fmt.Errorf("output data: %w", err)
	}
	chains := planChains(units)

	// Dynamic worker count - CPU count unless configured, never more than chains
	numWorkers := cfg.Workers
	if numWorkers == 0 {
		numWorkers = runtime.NumCPU()
	}
	numWorkers = min(numWorkers, len(chains))
	fmt.Fprintf(progress, "🚀 Starting %d workers for %d units\n", numWorkers, len(units))

	r := &runner{cfg: cfg, search: search, backend: backend, columns: columns, log: log}
	jobs := make(chan []unit, numWorkers*2)
	resultsChan := make(chan unitResult, numWorkers*2)
	results := make([]unitResult, len(units))

	var (
		processed      atomic.Int32
		totalJobs      = len(units)
		startTime      = time.Now()
		progressTicker = time.NewTicker(2 * time.Second)
		stopProgress   = make(chan struct{})
		progressDone   = make(chan struct{})
	)
	defer progressTicker.Stop()

	go func() {
		defer close(progressDone)
		for {
			select {
			case <-stopProgress:
				return
			case <-progressTicker.C:
			}
			elapsed := time.Since(startTime).Round(time.Second)
			done := processed.Load()
			remaining := totalJobs - int(done)
			percent := float64(done) / float64(totalJobs) * 100

			var eta time.Duration
			if done > 0 {
				perItem := elapsed / time.Duration(done)
				eta = time.Duration(remaining) * perItem
			}

			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			fmt.Fprintf(progress, "\r📊 Progress: %d/%d (%.1f%%) | ⏱️ Elapsed: %v | 🕒 ETA: %v | 🧠 Memory: %s",
				done, totalJobs, percent, elapsed, eta.Round(time.Second), humanize.Bytes(m.Alloc))
		}
	}()

	// Collector goroutine - the only writer of results
	var collectWg sync.WaitGroup
	collectWg.Add(1)
	go func() {
		defer collectWg.Done()
		for res := range resultsChan {
			results[res.ID] = res
			processed.Add(1)
		}
	}()

	var workerWg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for chain := range jobs {
				r.processChain(ctx, chain, func(res unitResult) { resultsChan <- res })
			}
		}()
	}

	var runErr error
feed:
	for _, chain := range chains {
		select {
		case jobs <- chain:
		case <-ctx.Done():
			runErr = ctx.Err()
			break feed
		}
	}
	close(jobs)
	workerWg.Wait()
	close(resultsChan)
	collectWg.Wait()
	close(stopProgress)
	<-progressDone

	if runErr == nil {
		runErr = ctx.Err()
	}
	if runErr != nil {
		return nil, fmt.Errorf("run interrupted: %w", runErr)
	}

	applyResults(data, results)

	elapsed := time.Since(startTime).Round(time.Millisecond)
	fmt.Fprintf(progress, "\n✅ Completed %d units in %v\n", totalJobs, elapsed)
	return results, nil
}

// applyResults writes optimized values into the synthetic table in plan
// order. Overlapping units share a chain, so the last writer of a row is
// also the last unit that optimized it.
func applyResults(data *Dataset, results []unitResult) {
	for _, res := range results {
		if res.Status != statusOptimized {
			continue
		}
		col, _ := data.Output.Column(res.Category.Name)
		data.Output.SetFloats(col, res.Rows, res.Values)
	}
}
