// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration
// and test suite documents.
package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mwiater/edgeprompt/internal/providers"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// legacyConfigPath is the path to the configuration file used in previous versions.
	legacyConfigPath = "config.json"
	// defaultRequestTimeout is the default timeout for model requests.
	defaultRequestTimeout = 600 * time.Second
	// defaultSampleInterval is how often resource usage is sampled during a run.
	defaultSampleInterval = 250 * time.Millisecond
	defaultOutputDir      = "results"
	defaultWorkers        = 1
	defaultScoreScale     = 10.0
)

// Model tiers.
const (
	TierCloud = "cloud"
	TierEdge  = "edge"
)

// Supported model providers.
const (
	ProviderOllama    = "ollama"
	ProviderLlamaCpp  = "llama.cpp"
	ProviderOpenAI    = "openai"
	ProviderLMStudio  = "lmstudio"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Config represents the top-level application configuration.
type Config struct {
	Suite            string  `json:"suite" mapstructure:"suite"`
	OutputDir        string  `json:"outputDir,omitempty" mapstructure:"outputDir"`
	LogFile          string  `json:"logFile,omitempty" mapstructure:"logFile"`
	Debug            bool    `json:"debug" mapstructure:"debug"`
	Workers          int     `json:"workers,omitempty" mapstructure:"workers"`
	TimeoutSeconds   int     `json:"timeout,omitempty" mapstructure:"timeout"`
	SampleIntervalMs int     `json:"sampleIntervalMs,omitempty" mapstructure:"sampleIntervalMs"`
	ScoreScale       float64 `json:"scoreScale,omitempty" mapstructure:"scoreScale"`
	DryRun           bool    `json:"dryRun" mapstructure:"dryRun"`
	Models           []Model `json:"models" mapstructure:"models"`
	ConfigPath       string  `json:"-" mapstructure:"-"`
}

// Model is a single model endpoint the suite can reference by ID.
type Model struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"`
	URL      string `json:"url,omitempty" mapstructure:"url"`
	Model    string `json:"model" mapstructure:"model"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv        string                     `json:"apiKeyEnv,omitempty" mapstructure:"apiKeyEnv"`
	Tier             string                     `json:"tier,omitempty" mapstructure:"tier"`
	ParameterProfile string                     `json:"parameterProfile,omitempty" mapstructure:"parameterProfile"`
	Parameters       providers.GenerationParams `json:"parameters,omitempty" mapstructure:"parameters"`
}

// APIKey resolves the model's API key from the environment.
func (m Model) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(m.APIKeyEnv))
}

// GenerationDefaults returns the model's parameter profile with any explicit
// parameters applied on top.
func (m Model) GenerationDefaults() providers.GenerationParams {
	return ParamsForProfile(m.ParameterProfile).Merge(m.Parameters)
}

// RequestTimeout returns the timeout duration for model requests, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SampleInterval returns the resource sampling interval.
func (c Config) SampleInterval() time.Duration {
	if c.SampleIntervalMs <= 0 {
		return defaultSampleInterval
	}
	return time.Duration(c.SampleIntervalMs) * time.Millisecond
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "edgeprompt.log"
}

// OutputDirPath returns the results root directory.
func (c Config) OutputDirPath() string {
	if dir := strings.TrimSpace(c.OutputDir); dir != "" {
		return dir
	}
	return defaultOutputDir
}

// WorkerCount returns how many combinations may run concurrently.
func (c Config) WorkerCount() int {
	if c.Workers <= 0 {
		return defaultWorkers
	}
	return c.Workers
}

// OutputScale returns the scale aggregate scores are reported on.
func (c Config) OutputScale() float64 {
	if c.ScoreScale <= 0 {
		return defaultScoreScale
	}
	return c.ScoreScale
}

// ModelByID returns the configured model with the given ID.
func (c Config) ModelByID(id string) (Model, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// Validate checks the model list for duplicates and unknown providers.
func (c Config) Validate() error {
	if len(c.Models) == 0 {
		return errors.New("config must contain at least one model")
	}
	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return fmt.Errorf("models[%d]: id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("models[%d]: duplicate model id %q", i, id)
		}
		seen[id] = true
		if !knownProvider(m.Provider) {
			return fmt.Errorf("model %q: unsupported provider %q", id, m.Provider)
		}
		if strings.TrimSpace(m.Model) == "" {
			return fmt.Errorf("model %q: model name is required", id)
		}
		switch m.Tier {
		case "", TierCloud, TierEdge:
		default:
			return fmt.Errorf("model %q: tier must be %q or %q", id, TierCloud, TierEdge)
		}
	}
	return nil
}

// NormalizeProvider maps provider aliases to their canonical name.
func NormalizeProvider(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "ollama":
		return ProviderOllama
	case "llama.cpp", "llamacpp", "llama-cpp":
		return ProviderLlamaCpp
	case "openai":
		return ProviderOpenAI
	case "lmstudio", "lm-studio":
		return ProviderLMStudio
	case "anthropic", "claude":
		return ProviderAnthropic
	case "mock":
		return ProviderMock
	default:
		return ""
	}
}

func knownProvider(p string) bool { return NormalizeProvider(p) != "" }

// Load reads the application configuration from the specified path, with fallback to a legacy path.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	config, err := loadFromPath(path)
	if err == nil {
		if err := config.Validate(); err != nil {
			return Config{}, err
		}
		config.ConfigPath = path
		return config, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		if path == DefaultConfigPath {
			config, legacyErr := loadFromPath(legacyConfigPath)
			if legacyErr == nil {
				if err := config.Validate(); err != nil {
					return Config{}, err
				}
				config.ConfigPath = legacyConfigPath
				return config, nil
			}
			if errors.Is(legacyErr, os.ErrNotExist) {
				return Config{}, fmt.Errorf("no configuration file found (searched %q and %q)", DefaultConfigPath, legacyConfigPath)
			}
			return Config{}, fmt.Errorf("could not read config file %q: %w", legacyConfigPath, legacyErr)
		}
		return Config{}, fmt.Errorf("no configuration file found at %q", path)
	}

	return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
}

// loadFromPath is a helper function that loads the configuration from a specific file path.
func loadFromPath(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return Config{}, err
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = int(defaultRequestTimeout.Seconds())
	}

	return config, nil
}
