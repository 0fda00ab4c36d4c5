// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is assembled once at
// startup (config file + environment + CLI flags) and then threaded through
// the pipeline as an immutable value; nothing reads ambient state afterwards.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Solver   SolverConfig   `mapstructure:"solver" yaml:"solver"`
	Detailed DetailedConfig `mapstructure:"detailed" yaml:"detailed"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	// Run gets its marching orders from CLI flags, not the config file.
	Run RunConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig controls the zap logger set up by internal/observability.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// SolverConfig tunes the optimization backend shared by every score
// calculation.
type SolverConfig struct {
	// Backend selects the LP/MILP implementation ("gonum" is the default and
	// currently the only built-in backend).
	Backend string `mapstructure:"backend" yaml:"backend"`
	// MaxUptake is the per-organism uptake bound; the community-level bound
	// scales with community size.
	MaxUptake float64 `mapstructure:"max_uptake" yaml:"max_uptake"`
	// MinGrowth is the growth rate that feasibility queries must reach.
	MinGrowth float64 `mapstructure:"min_growth" yaml:"min_growth"`
	// AbsTol is the tolerance below which a flux counts as zero.
	AbsTol float64 `mapstructure:"abstol" yaml:"abstol"`
	// SolveTimeout is the wall-clock limit for a single solve; zero disables.
	SolveTimeout time.Duration `mapstructure:"solve_timeout" yaml:"solve_timeout"`
}

// DetailedConfig tunes the randomized multi-trial protocol of detailed mode.
type DetailedConfig struct {
	// Trials is the number of independent randomized solves per score.
	Trials int `mapstructure:"trials" yaml:"trials"`
	// Perturbation is the half-width of the uniform interval around 1.0 from
	// which per-trial objective weights are drawn.
	Perturbation float64 `mapstructure:"perturbation" yaml:"perturbation"`
	// CouplingFraction is the minimum fraction of community growth every
	// organism must sustain; 0 disables growth coupling.
	CouplingFraction float64 `mapstructure:"coupling_fraction" yaml:"coupling_fraction"`
	// IgnoreCoupling skips SCS entirely and reports SMETANA = MUS x MPS.
	IgnoreCoupling bool `mapstructure:"ignore_coupling" yaml:"ignore_coupling"`
	// Seed makes trial randomization reproducible; 0 seeds from entropy.
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

// EngineConfig controls the worker pool running independent trials and
// organism-pair computations.
type EngineConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// RunConfig captures the per-invocation inputs supplied on the command line.
type RunConfig struct {
	Mode        string   // "global" or "detailed"
	Models      []string // model file paths or glob patterns
	Communities string   // communities TSV, empty = all models as one community
	Media       []string // medium ids to evaluate, empty = complete medium
	MediaDB     string   // media library TSV, required when Media is set
	Exclude     string   // excluded-compound list file
	Output      string   // output path prefix
	Format      string   // output format, "tsv" (default) or "json"
	Zeros       bool     // keep zero-valued detailed records
}

// Modes accepted by RunConfig.Mode.
const (
	ModeGlobal   = "global"
	ModeDetailed = "detailed"
)

// SetDefaults registers defaults on the given viper instance so that partial
// config files and environment overrides fill in sensibly.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "smetana")
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("solver.backend", "gonum")
	v.SetDefault("solver.max_uptake", 10.0)
	v.SetDefault("solver.min_growth", 0.1)
	v.SetDefault("solver.abstol", 1e-6)
	v.SetDefault("solver.solve_timeout", time.Duration(0))

	v.SetDefault("detailed.trials", 100)
	v.SetDefault("detailed.perturbation", 0.5)
	v.SetDefault("detailed.coupling_fraction", 0.0)
	v.SetDefault("detailed.ignore_coupling", false)
	v.SetDefault("detailed.seed", int64(0))

	v.SetDefault("engine.workers", 4)
}

// Validate rejects configurations that cannot produce a meaningful run.
// Configuration errors are the only fatal errors in the system.
func (c Config) Validate() error {
	if c.Run.Mode != ModeGlobal && c.Run.Mode != ModeDetailed {
		return fmt.Errorf("invalid mode %q: must be %q or %q", c.Run.Mode, ModeGlobal, ModeDetailed)
	}
	if len(c.Run.Models) == 0 {
		return fmt.Errorf("no model files given")
	}
	if c.Run.Format != "" && c.Run.Format != "tsv" && c.Run.Format != "json" {
		return fmt.Errorf("invalid output format %q: must be tsv or json", c.Run.Format)
	}
	if len(c.Run.Media) > 0 && c.Run.MediaDB == "" {
		return fmt.Errorf("--media requires a media library (--mediadb)")
	}
	if c.Solver.MaxUptake <= 0 {
		return fmt.Errorf("solver.max_uptake must be positive, got %g", c.Solver.MaxUptake)
	}
	if c.Solver.MinGrowth <= 0 {
		return fmt.Errorf("solver.min_growth must be positive, got %g", c.Solver.MinGrowth)
	}
	if c.Detailed.Trials <= 0 {
		return fmt.Errorf("detailed.trials must be positive, got %d", c.Detailed.Trials)
	}
	if c.Detailed.Perturbation < 0 || c.Detailed.Perturbation >= 1 {
		return fmt.Errorf("detailed.perturbation must be in [0,1), got %g", c.Detailed.Perturbation)
	}
	if c.Detailed.CouplingFraction < 0 || c.Detailed.CouplingFraction > 1 {
		return fmt.Errorf("detailed.coupling_fraction must be in [0,1], got %g", c.Detailed.CouplingFraction)
	}
	return nil
}
