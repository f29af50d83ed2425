package design

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved cluster configuration. It mirrors the
// sections of the configuration document.
type Config struct {
	NoC      NoCConfig      `yaml:"noc"`
	Adapters AdapterConfig  `yaml:"noc_adapters"`
	Cluster  ClusterConfig  `yaml:"cluster"`
	Designs  []DesignConfig `yaml:"configs"`
}

// NoCConfig describes the fabric of each RAD.
type NoCConfig struct {
	Topology          string `yaml:"topology"`
	DimX              int    `yaml:"dim_x"`
	DimY              int    `yaml:"dim_y"`
	NumVCs            int    `yaml:"num_vcs"`
	BufferDepth       int    `yaml:"buffer_depth"`
	VCAllocPolicy     string `yaml:"vc_alloc_policy"`
	AllocIterations   int    `yaml:"alloc_iterations"`
	RouteDelay        int    `yaml:"route_delay"`
	VCAllocDelay      int    `yaml:"vc_alloc_delay"`
	SWAllocDelay      int    `yaml:"sw_alloc_delay"`
	CreditDelay       int    `yaml:"credit_delay"`
	FlitByteSize      int    `yaml:"flit_byte_size"`
	LinkStages        int    `yaml:"link_stages"`
	LinkCyclePerStage int    `yaml:"link_cycle_per_stage"`
}

// AdapterConfig describes the module-facing adapters.
type AdapterConfig struct {
	FIFODepth          int    `yaml:"fifo_depth"`
	SendTimeoutCycles  uint64 `yaml:"send_timeout_cycles"`
	PendingDeliveryCap int    `yaml:"pending_delivery_cap"`
}

// ClusterConfig describes the cluster as a whole.
type ClusterConfig struct {
	NumRADs            int     `yaml:"num_rads"`
	PeriodNS           float64 `yaml:"sim_driver_period_ns"`
	TelemetryVerbosity int     `yaml:"telemetry_verbosity"`
}

// DesignConfig binds one RAD to its placement and clock files.
type DesignConfig struct {
	Name           string    `yaml:"name"`
	PlacementFile  string    `yaml:"placement_file"`
	ClockFile      string    `yaml:"clock_file"`
	ClockPeriodsNS []float64 `yaml:"clock_periods_ns"`
}

// LoadConfig reads and validates a cluster configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with workable defaults for every
// field a document may omit.
func DefaultConfig() *Config {
	return &Config{
		NoC: NoCConfig{
			Topology:          "mesh",
			DimX:              4,
			DimY:              4,
			NumVCs:            2,
			BufferDepth:       4,
			VCAllocPolicy:     "islip",
			AllocIterations:   1,
			RouteDelay:        1,
			VCAllocDelay:      1,
			SWAllocDelay:      1,
			CreditDelay:       1,
			FlitByteSize:      32,
			LinkStages:        1,
			LinkCyclePerStage: 1,
		},
		Adapters: AdapterConfig{
			FIFODepth:          16,
			PendingDeliveryCap: 64,
		},
		Cluster: ClusterConfig{
			NumRADs:            1,
			PeriodNS:           1.0,
			TelemetryVerbosity: 1,
		},
	}
}

// Validate rejects configurations that cannot produce a runnable design.
func (c *Config) Validate() error {
	if c.NoC.Topology != "mesh" {
		return fmt.Errorf("unsupported topology %q", c.NoC.Topology)
	}

	if c.NoC.DimX < 1 || c.NoC.DimY < 1 {
		return fmt.Errorf("mesh dimensions must be at least 1x1, got %dx%d",
			c.NoC.DimX, c.NoC.DimY)
	}

	if c.NoC.NumVCs < 1 {
		return fmt.Errorf("num_vcs must be at least 1, got %d", c.NoC.NumVCs)
	}

	if c.NoC.BufferDepth < 1 {
		return fmt.Errorf("buffer_depth must be at least 1, got %d",
			c.NoC.BufferDepth)
	}

	if c.Adapters.FIFODepth < 1 {
		return fmt.Errorf("fifo_depth must be at least 1, got %d",
			c.Adapters.FIFODepth)
	}

	if c.Adapters.PendingDeliveryCap < 1 {
		return fmt.Errorf("pending_delivery_cap must be at least 1, got %d",
			c.Adapters.PendingDeliveryCap)
	}

	switch c.NoC.VCAllocPolicy {
	case "islip", "fixed_rr", "priority_rr":
	default:
		return fmt.Errorf("unknown vc_alloc_policy %q", c.NoC.VCAllocPolicy)
	}

	if c.NoC.FlitByteSize < 1 {
		return fmt.Errorf("flit_byte_size must be at least 1, got %d",
			c.NoC.FlitByteSize)
	}

	if c.Cluster.NumRADs < 1 {
		return fmt.Errorf("num_rads must be at least 1, got %d",
			c.Cluster.NumRADs)
	}

	if c.Cluster.PeriodNS <= 0 {
		return fmt.Errorf("sim_driver_period_ns must be positive, got %g",
			c.Cluster.PeriodNS)
	}

	if len(c.Designs) > c.Cluster.NumRADs {
		return fmt.Errorf("%d design bindings for %d RADs",
			len(c.Designs), c.Cluster.NumRADs)
	}

	return nil
}

// NoCFreq derives the fabric frequency from the driver period.
func (c *Config) NoCFreq() float64 {
	return 1e9 / c.Cluster.PeriodNS
}
