package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"synthPerturb/internal/perturb"
)

// Category is one numeric column to perturb: its name in the data tables,
// the column of the subgroup table holding its target sum, and the range
// its scale factors may take.
type Category struct {
	Name         string         `mapstructure:"name"`
	TargetColumn int            `mapstructure:"targetColumn"`
	Bounds       perturb.Bounds `mapstructure:"bounds"`
}

// Config is the whole run configuration, read from one JSON file.
type Config struct {
	// ── Files ────────────────────────────────────────────────────
	InputFile     string `mapstructure:"inputFile"`     // reference ("before") records
	OutputFile    string `mapstructure:"outputFile"`    // synthetic records to perturb
	SubgroupFile  string `mapstructure:"subgroupFile"`  // subgroup definitions and targets
	PerturbedFile string `mapstructure:"perturbedFile"` // perturbed synthetic records
	ReportFile    string `mapstructure:"reportFile"`    // per-unit report, optional
	PlotDir       string `mapstructure:"plotDir"`       // density plots, optional

	Categories []Category `mapstructure:"categories"`

	// ── Search ───────────────────────────────────────────────────
	Trials          int     `mapstructure:"trials"`
	TrialsPerRecord float64 `mapstructure:"trialsPerRecord"`
	MaxTrials       int     `mapstructure:"maxTrials"`
	Bandwidth       float64 `mapstructure:"bandwidth"`
	BandwidthPolicy string  `mapstructure:"bandwidthPolicy"`
	CostPolicy      string  `mapstructure:"costPolicy"`
	Backend         string  `mapstructure:"backend"`
	ReportMetric    string  `mapstructure:"reportMetric"`
	Workers         int     `mapstructure:"workers"`
	SubgroupLimit   int     `mapstructure:"subgroupLimit"`
	UseRandomSeed   string  `mapstructure:"useRandomSeed"`
	RandomSeed      *int64  `mapstructure:"randomSeed"` // required when useRandomSeed is "yes"

	// ── Logging ──────────────────────────────────────────────────
	LogLevel  string `mapstructure:"logLevel"`
	LogFile   string `mapstructure:"logFile"`
	LogFormat string `mapstructure:"logFormat"`
}

var ValidMetrics = []string{"MANHATTAN", "EUCLIDEAN", "CHI_SQUARED", "KL_DIVERGENCE", "JSDIVERGENCE"}

var ValidLogFormats = []string{"text", "json"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("perturbedFile", "PERTURBED_OUTPUT.csv")
	v.SetDefault("trials", perturb.DefaultTrials)
	v.SetDefault("bandwidth", perturb.DefaultBandwidth)
	v.SetDefault("bandwidthPolicy", "fixed")
	v.SetDefault("costPolicy", "linear")
	v.SetDefault("backend", perturb.BackendSerial)
	v.SetDefault("reportMetric", "MANHATTAN")
	v.SetDefault("workers", 1)
	v.SetDefault("useRandomSeed", "no")
	v.SetDefault("logLevel", "info")
	v.SetDefault("logFormat", "text")
}

// LoadConfig reads the JSON config file and applies any flags the user set
// on the command line. flags may be nil.
func LoadConfig(filename string, flags *pflag.FlagSet) (Config, error) {
	var cfg Config

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filename)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if flags != nil {
		for key, flag := range flagKeys {
			if f := flags.Lookup(flag); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return cfg, fmt.Errorf("failed to bind flag %s: %w", flag, err)
				}
			}
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// flagKeys maps config keys to the command line flags overriding them.
var flagKeys = map[string]string{
	"trials":        "trials",
	"workers":       "workers",
	"backend":       "backend",
	"subgroupLimit": "subgroups",
	"logLevel":      "log-level",
	"plotDir":       "plot-dir",
}

// Validate fails fast on anything that would leave the search undefined.
func (c Config) Validate() error {
	for name, file := range map[string]string{
		"inputFile":     c.InputFile,
		"outputFile":    c.OutputFile,
		"subgroupFile":  c.SubgroupFile,
		"perturbedFile": c.PerturbedFile,
	} {
		if strings.TrimSpace(file) == "" {
			return fmt.Errorf("missing %s", name)
		}
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("no categories configured")
	}
	seen := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.Name == "" {
			return fmt.Errorf("category with empty name")
		}
		if seen[cat.Name] {
			return fmt.Errorf("category %q configured twice", cat.Name)
		}
		seen[cat.Name] = true
		if cat.TargetColumn < 0 {
			return fmt.Errorf("category %q: negative target column %d", cat.Name, cat.TargetColumn)
		}
		if err := cat.Bounds.Validate(); err != nil {
			return fmt.Errorf("category %q: %w", cat.Name, err)
		}
	}
	if _, err := c.SearchConfig(); err != nil {
		return err
	}
	if _, err := perturb.NewBackend(c.Backend); err != nil {
		return err
	}
	if !contains(ValidMetrics, strings.ToUpper(c.ReportMetric)) {
		return fmt.Errorf("invalid report metric '%s'. Must be one of: %v", c.ReportMetric, ValidMetrics)
	}
	if !contains(ValidLogFormats, strings.ToLower(c.LogFormat)) {
		return fmt.Errorf("invalid log format '%s'. Must be one of: %v", c.LogFormat, ValidLogFormats)
	}
	if c.Workers < 0 || c.SubgroupLimit < 0 {
		return fmt.Errorf("workers (%d) and subgroupLimit (%d) must not be negative", c.Workers, c.SubgroupLimit)
	}
	if c.seeded() && c.RandomSeed == nil {
		return fmt.Errorf("useRandomSeed is yes but no randomSeed is set")
	}
	return nil
}

// SearchConfig translates the search section into optimizer settings.
func (c Config) SearchConfig() (perturb.Config, error) {
	bwPolicy, err := perturb.ParseBandwidthPolicy(c.BandwidthPolicy)
	if err != nil {
		return perturb.Config{}, err
	}
	costPolicy, err := perturb.ParseCostPolicy(c.CostPolicy)
	if err != nil {
		return perturb.Config{}, err
	}
	sc := perturb.Config{
		Trials:          c.Trials,
		TrialsPerRecord: c.TrialsPerRecord,
		MaxTrials:       c.MaxTrials,
		Bandwidth:       perturb.Bandwidth{Policy: bwPolicy, Value: c.Bandwidth},
		CostPolicy:      costPolicy,
	}
	return sc, sc.Validate()
}

func (c Config) seeded() bool {
	return strings.ToLower(strings.TrimSpace(c.UseRandomSeed)) == "yes"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
