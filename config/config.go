// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidConfiguration is wrapped by every validation failure.
// A simulation never starts from a config that fails Validate.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Config holds all simulation configuration parameters.
type Config struct {
	Grid       GridConfig       `yaml:"grid"`
	Diffusion  DiffusionConfig  `yaml:"diffusion"`
	Simulation SimulationConfig `yaml:"simulation"`
	Population PopulationConfig `yaml:"population"`
	Placements []Placement      `yaml:"placements"`
	Car        CarConfig        `yaml:"car"`
	Factory    FactoryConfig    `yaml:"factory"`
	Tree       TreeConfig       `yaml:"tree"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// GridConfig holds lattice dimensions and the neighborhood policy.
type GridConfig struct {
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	MaxPollution float64 `yaml:"max_pollution"` // Saturation ceiling per cell
	Neighborhood string  `yaml:"neighborhood"`  // "moore" (Chebyshev) or "von_neumann" (Manhattan)
	Wrap         bool    `yaml:"wrap"`          // Toroidal edges
}

// DiffusionConfig holds the spreading and decay parameters.
type DiffusionConfig struct {
	Coefficient float64 `yaml:"coefficient"` // [0,1]
	DecayRate   float64 `yaml:"decay_rate"`  // [0,1] multiplicative loss per tick
}

// SimulationConfig holds run control parameters.
type SimulationConfig struct {
	Seed             int64 `yaml:"seed"`
	MaxTicks         int   `yaml:"max_ticks"`            // 0 = unbounded
	StopWhenTreesDie bool  `yaml:"stop_when_trees_dead"` // Halt once every tree is dead
}

// PopulationConfig holds the number of randomly placed agents per variant.
// Explicit placements are added on top of these counts.
type PopulationConfig struct {
	Cars      int `yaml:"cars"`
	Factories int `yaml:"factories"`
	Trees     int `yaml:"trees"`
	Monitors  int `yaml:"monitors"`
}

// Placement pins one agent to a cell.
type Placement struct {
	Kind string `yaml:"kind"` // car, factory, tree, monitor
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
}

// CarConfig holds car parameters.
type CarConfig struct {
	Emission          float64 `yaml:"emission"`           // Deposited at the new cell after each move
	ToxicityThreshold float64 `yaml:"toxicity_threshold"` // Cells above this are avoided
}

// FactoryConfig holds factory parameters.
type FactoryConfig struct {
	BaseEmission      float64 `yaml:"base_emission"`
	DemandScale       float64 `yaml:"demand_scale"`       // Noise frequency along time (0 disables demand)
	DemandHigh        float64 `yaml:"demand_high"`        // Raise output at or above this demand
	DemandLow         float64 `yaml:"demand_low"`         // Relax output toward 1 at or below this demand
	ModifierStep      float64 `yaml:"modifier_step"`      // Modifier change per tick
	MinModifier       float64 `yaml:"min_modifier"`
	MaxModifier       float64 `yaml:"max_modifier"`
	ThrottleThreshold float64 `yaml:"throttle_threshold"` // Local pollution that self-damages (0 = not modeled)
}

// TreeConfig holds tree parameters.
type TreeConfig struct {
	AbsorptionRate float64 `yaml:"absorption_rate"` // Fraction of local pollution absorbed per tick
	Tolerance      float64 `yaml:"tolerance"`       // Local pollution a tree endures without stress
	StressTicks    int     `yaml:"stress_ticks"`    // Consecutive exceeding ticks before Healthy -> Stressed
	Damage         float64 `yaml:"damage"`          // Health lost per exceeding tick while Stressed
}

// MonitorConfig holds monitor parameters.
type MonitorConfig struct {
	CriticalThreshold float64 `yaml:"critical_threshold"`
	Radius            int     `yaml:"radius"` // Sampling and advisory radius in cells
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow int `yaml:"stats_window"` // Ticks per logged stats window
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Cells       int // Grid.Width * Grid.Height
	TotalAgents int // Population counts plus placements
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Defaults returns a fresh copy of the embedded defaults.
func Defaults() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are broken: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Grid.Neighborhood = strings.ToLower(strings.TrimSpace(c.Grid.Neighborhood))
	if c.Grid.Neighborhood == "" {
		c.Grid.Neighborhood = "moore"
	}
	c.Derived.Cells = c.Grid.Width * c.Grid.Height
	p := c.Population
	c.Derived.TotalAgents = p.Cars + p.Factories + p.Trees + p.Monitors + len(c.Placements)
}

// Refresh recomputes derived values after fields were changed in code.
func (c *Config) Refresh() {
	c.computeDerived()
}

// Validate checks the configuration for values a simulation cannot start from.
func (c *Config) Validate() error {
	var problems []string
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	g := c.Grid
	if g.Width <= 0 || g.Height <= 0 {
		bad("grid size %dx%d must be positive", g.Width, g.Height)
	}
	if g.MaxPollution <= 0 {
		bad("grid.max_pollution %v must be positive", g.MaxPollution)
	}
	switch g.Neighborhood {
	case "moore", "von_neumann", "":
	default:
		bad("grid.neighborhood %q is not moore or von_neumann", g.Neighborhood)
	}

	if !unit(c.Diffusion.Coefficient) {
		bad("diffusion.coefficient %v outside [0,1]", c.Diffusion.Coefficient)
	}
	if !unit(c.Diffusion.DecayRate) {
		bad("diffusion.decay_rate %v outside [0,1]", c.Diffusion.DecayRate)
	}
	if c.Simulation.MaxTicks < 0 {
		bad("simulation.max_ticks %d is negative", c.Simulation.MaxTicks)
	}

	p := c.Population
	if p.Cars < 0 || p.Factories < 0 || p.Trees < 0 || p.Monitors < 0 {
		bad("population counts must be non-negative")
	}

	cars := p.Cars
	for i, pl := range c.Placements {
		switch pl.Kind {
		case "car":
			cars++
		case "factory", "tree", "monitor":
		default:
			bad("placements[%d]: unknown kind %q", i, pl.Kind)
		}
		if pl.X < 0 || pl.Y < 0 || pl.X >= g.Width || pl.Y >= g.Height {
			bad("placements[%d]: (%d,%d) outside %dx%d grid", i, pl.X, pl.Y, g.Width, g.Height)
		}
	}
	if g.Width > 0 && g.Height > 0 && cars > g.Width*g.Height {
		bad("%d cars cannot fit on %d cells", cars, g.Width*g.Height)
	}

	if c.Car.Emission < 0 || c.Car.ToxicityThreshold <= 0 {
		bad("car.emission must be >= 0 and car.toxicity_threshold > 0")
	}

	f := c.Factory
	if f.BaseEmission < 0 || f.ThrottleThreshold < 0 || f.DemandScale < 0 {
		bad("factory emission, demand_scale and throttle_threshold must be non-negative")
	}
	if f.MinModifier < 0 || f.MaxModifier < f.MinModifier || f.MinModifier > 1 || f.MaxModifier < 1 {
		bad("factory modifier range [%v,%v] must contain 1", f.MinModifier, f.MaxModifier)
	}
	if f.ModifierStep < 0 {
		bad("factory.modifier_step %v is negative", f.ModifierStep)
	}
	if !unit(f.DemandLow) || !unit(f.DemandHigh) || f.DemandLow > f.DemandHigh {
		bad("factory demand band [%v,%v] must be ordered within [0,1]", f.DemandLow, f.DemandHigh)
	}

	t := c.Tree
	if !unit(t.AbsorptionRate) {
		bad("tree.absorption_rate %v outside [0,1]", t.AbsorptionRate)
	}
	if t.Tolerance < 0 {
		bad("tree.tolerance %v is negative", t.Tolerance)
	}
	if t.StressTicks < 1 {
		bad("tree.stress_ticks %d must be at least 1", t.StressTicks)
	}
	if t.Damage <= 0 || t.Damage > 1 {
		bad("tree.damage %v outside (0,1]", t.Damage)
	}

	if c.Monitor.CriticalThreshold <= 0 || c.Monitor.Radius < 0 {
		bad("monitor.critical_threshold must be > 0 and monitor.radius >= 0")
	}
	if c.Telemetry.StatsWindow < 0 {
		bad("telemetry.stats_window %d is negative", c.Telemetry.StatsWindow)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Clone returns a deep copy, used when runs must not share placement slices.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Placements = append([]Placement(nil), c.Placements...)
	return &cp
}
