package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Service    Service          `yaml:"service"`
	Models     map[string]Model `yaml:"models"`
	Budget     Budget           `yaml:"budget"`
	Generation Generation       `yaml:"generation"`
	Engine     Engine           `yaml:"engine"`
	Discovery  Discovery        `yaml:"discovery"`
	Output     Output           `yaml:"output"`
	Server     Server           `yaml:"server"`
}

// Service configures the external text-generation endpoint.
type Service struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
}

// Model holds the static price table entry and call limits for one model.
type Model struct {
	ServiceModel     string  `yaml:"service_model"` // model identifier sent to the service
	InputPricePer1K  float64 `yaml:"input_price_per_1k"`
	OutputPricePer1K float64 `yaml:"output_price_per_1k"`
	SingleCallLimit  int     `yaml:"single_call_limit"` // max words for one direct call
}

// Budget holds the spending ceilings. A ceiling of 0 means unlimited.
type Budget struct {
	DailyLimit   float64 `yaml:"daily_limit"`
	MonthlyLimit float64 `yaml:"monthly_limit"`
}

type Generation struct {
	DefaultModel        string  `yaml:"default_model"`
	SectionSize         int     `yaml:"section_size"` // words per outline section
	SectionPauseSeconds int     `yaml:"section_pause_seconds"`
	Temperature         float64 `yaml:"temperature"`
	DensityTarget       float64 `yaml:"density_target"` // target keyword density, percent
	MaxInsertions       int     `yaml:"max_insertions"` // density leveling cap per topic
}

type Engine struct {
	TickSeconds int `yaml:"tick_seconds"`
	Workers     int `yaml:"workers"`
}

type Discovery struct {
	Feeds         []Feed `yaml:"feeds"`
	DefaultDemand int    `yaml:"default_demand"`
}

type Feed struct {
	URL      string `yaml:"url"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

// ConfigDir returns the XDG config directory for inkmill.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "inkmill")
}

// DataDir returns the XDG data directory for inkmill.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "inkmill")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/inkmill/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'inkmill init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses, and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults and validating.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Service: Service{
			BaseURL:           "https://api.openai.com/v1",
			APIKeyEnv:         "OPENAI_API_KEY",
			TimeoutSeconds:    120,
			RequestsPerMinute: 20,
		},
		Generation: Generation{
			DefaultModel:        "standard",
			SectionSize:         5000,
			SectionPauseSeconds: 2,
			Temperature:         0.7,
			DensityTarget:       1.0,
			MaxInsertions:       3,
		},
		Engine:    Engine{TickSeconds: 60, Workers: 2},
		Discovery: Discovery{DefaultDemand: 10},
		Server:    Server{Port: 8000},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.Models) == 0 {
		cfg.Models = map[string]Model{
			"standard": {InputPricePer1K: 0.00015, OutputPricePer1K: 0.0006, SingleCallLimit: 1500},
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, ok := c.Models[c.Generation.DefaultModel]; !ok {
		return fmt.Errorf("default model %q not present in models table", c.Generation.DefaultModel)
	}
	for name, m := range c.Models {
		if m.InputPricePer1K < 0 || m.OutputPricePer1K < 0 {
			return fmt.Errorf("model %q has negative prices", name)
		}
		if m.SingleCallLimit <= 0 {
			return fmt.Errorf("model %q needs a positive single_call_limit", name)
		}
		if m.ServiceModel == "" {
			m.ServiceModel = name
			c.Models[name] = m
		}
	}
	if c.Generation.SectionSize <= 0 {
		return fmt.Errorf("generation.section_size must be positive")
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be at least 1")
	}
	if c.Budget.DailyLimit < 0 || c.Budget.MonthlyLimit < 0 {
		return fmt.Errorf("budget limits cannot be negative")
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
