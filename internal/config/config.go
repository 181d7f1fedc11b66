package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/ReviewLens/internal/forest"
	"github.com/TobiSchelling/ReviewLens/internal/logging"
	"github.com/TobiSchelling/ReviewLens/internal/train"
	"github.com/TobiSchelling/ReviewLens/internal/vectorize"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

var validate = validator.New()

type Config struct {
	Dataset    Dataset          `yaml:"dataset"`
	Model      Model            `yaml:"model"`
	Training   Training         `yaml:"training"`
	Vectorizer vectorize.Params `yaml:"vectorizer"`
	Catalog    Catalog          `yaml:"catalog"`
	Output     Output           `yaml:"output"`
	Server     Server           `yaml:"server"`
	Logging    logging.Config   `yaml:"logging"`
}

type Dataset struct {
	CSVPath string `yaml:"csv_path"`
}

type Model struct {
	Dir string `yaml:"dir"`
}

type Training struct {
	TestSize       float64    `yaml:"test_size" validate:"gt=0,lt=1"`
	Folds          int        `yaml:"folds" validate:"gte=2,lte=20"`
	Seed           uint64     `yaml:"seed"`
	Workers        int        `yaml:"workers" validate:"gte=0"`
	MaxFeatures    string     `yaml:"max_features" validate:"oneof=sqrt log2 all"`
	Bootstrap      bool       `yaml:"bootstrap"`
	TimeoutMinutes int        `yaml:"timeout_minutes" validate:"gte=0"`
	Grid           train.Grid `yaml:"grid"`
}

type Catalog struct {
	SubstringFallback bool `yaml:"substring_fallback"`
}

type Output struct {
	DataDir    string `yaml:"data_dir"`
	ResultsDir string `yaml:"results_dir"`
}

type Server struct {
	Port int `yaml:"port" validate:"min=1,max=65535"`
}

// ConfigDir returns the XDG config directory for reviewlens.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "reviewlens")
}

// DataDir returns the XDG data directory for reviewlens.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "reviewlens")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/reviewlens/config.yaml > ./config.yaml
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
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'reviewlens init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaults()
}

func defaults() *Config {
	fp := forest.DefaultParams()
	return &Config{
		Training: Training{
			TestSize:    train.DefaultTestSize,
			Folds:       train.DefaultFolds,
			Seed:        train.DefaultSeed,
			MaxFeatures: fp.MaxFeatures,
			Bootstrap:   fp.Bootstrap,
			Grid:        train.DefaultGrid(),
		},
		Vectorizer: vectorize.DefaultParams(),
		Catalog:    Catalog{SubstringFallback: true},
		Server:     Server{Port: 8000},
		Logging:    logging.Config{Level: "info"},
	}
}

// parse parses YAML bytes into a Config, applying defaults, and validates
// the result.
func parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
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

// ModelDir is where the model bundle is stored.
func (c *Config) ModelDir() string {
	if c.Model.Dir != "" {
		return c.Model.Dir
	}
	return filepath.Join(c.GetDataDir(), "model")
}

// ResultsDir is where analysis documents are written.
func (c *Config) ResultsDir() string {
	if c.Output.ResultsDir != "" {
		return c.Output.ResultsDir
	}
	return filepath.Join(c.GetDataDir(), "results")
}

// DBPath is the SQLite database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "reviewlens.db")
}

// LogFile is the log file path, defaulting into the data directory.
func (c *Config) LogFile() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.GetDataDir(), "logs", "reviewlens.log")
}

// ForestParams returns the base forest parameters the grid is expanded on.
func (c *Config) ForestParams() forest.Params {
	p := forest.DefaultParams()
	p.MaxFeatures = c.Training.MaxFeatures
	p.Bootstrap = c.Training.Bootstrap
	p.Seed = c.Training.Seed
	return p
}

// TrainingTimeout is zero when training is unbounded.
func (c *Config) TrainingTimeout() time.Duration {
	return time.Duration(c.Training.TimeoutMinutes) * time.Minute
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
