// Package cfg loads service configuration from a YAML file with
// environment-variable overrides, and validates every value before the
// service starts.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"edurisk/internal/ml"
	"edurisk/internal/risk"
)

type Settings struct {
	ListenAddr  string
	ModelDir    string
	DataPath    string
	DatasetPath string
	DatasetURL  string

	Thresholds risk.Thresholds

	TopK          int
	KernelSamples int
	ExplainSeed   int64

	Trainer      ml.TrainerConfig
	TestFraction float64
	SplitSeed    int64

	FetchTimeout time.Duration
	RecentLimit  int
}

type ConfigFile struct {
	Server struct {
		ListenAddr  string `yaml:"listenAddr"`
		RecentLimit int    `yaml:"recentLimit"`
	} `yaml:"server"`

	Risk risk.Thresholds `yaml:"risk"`

	Explain struct {
		TopK          int   `yaml:"topK"`
		KernelSamples int   `yaml:"kernelSamples"`
		Seed          int64 `yaml:"seed"`
	} `yaml:"explain"`

	Training struct {
		Trainer      ml.TrainerConfig `yaml:"trainer"`
		TestFraction float64          `yaml:"testFraction"`
		SplitSeed    int64            `yaml:"splitSeed"`
	} `yaml:"training"`

	Data struct {
		ModelDir     string `yaml:"modelDir"`
		DataPath     string `yaml:"dataPath"`
		DatasetPath  string `yaml:"datasetPath"`
		DatasetURL   string `yaml:"datasetURL"`
		FetchTimeout string `yaml:"fetchTimeout"`
	} `yaml:"data"`
}

// Load reads configuration from the file named by CONFIG_FILE, falling
// back to environment variables alone when it is unset. Environment
// variables always win over file values.
func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	fetchTimeout, err := time.ParseDuration(config.Data.FetchTimeout)
	if err != nil {
		fetchTimeout = 30 * time.Second
	}

	thresholds := config.Risk
	if thresholds.Low == 0 && thresholds.High == 0 {
		thresholds = risk.Default
	}

	trainer := mergeTrainerDefaults(config.Training.Trainer)

	settings := Settings{
		ListenAddr:    getEnvOrDefault("LISTEN_ADDR", defaultString(config.Server.ListenAddr, ":8090")),
		ModelDir:      getEnvOrDefault("MODEL_DIR", defaultString(config.Data.ModelDir, "models")),
		DataPath:      getEnvOrDefault("DATA_PATH", defaultString(config.Data.DataPath, "data")),
		DatasetPath:   getEnvOrDefault("DATASET_PATH", defaultString(config.Data.DatasetPath, "data/students.csv")),
		DatasetURL:    getEnvOrDefault("DATASET_URL", config.Data.DatasetURL),
		Thresholds:    thresholds,
		TopK:          getIntFromEnvOrConfig("EXPLAIN_TOP_K", config.Explain.TopK, 3),
		KernelSamples: getIntFromEnvOrConfig("KERNEL_SAMPLES", config.Explain.KernelSamples, 50),
		ExplainSeed:   int64(getIntFromEnvOrConfig("EXPLAIN_SEED", int(config.Explain.Seed), 42)),
		Trainer:       trainer,
		TestFraction:  getFloatFromEnvOrConfig("TEST_FRACTION", config.Training.TestFraction, 0.2),
		SplitSeed:     int64(getIntFromEnvOrConfig("SPLIT_SEED", int(config.Training.SplitSeed), 42)),
		FetchTimeout:  fetchTimeout,
		RecentLimit:   getIntFromEnvOrConfig("RECENT_LIMIT", config.Server.RecentLimit, 50),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ListenAddr:  getEnvOrDefault("LISTEN_ADDR", ":8090"),
		ModelDir:    getEnvOrDefault("MODEL_DIR", "models"),
		DataPath:    getEnvOrDefault("DATA_PATH", "data"),
		DatasetPath: getEnvOrDefault("DATASET_PATH", "data/students.csv"),
		DatasetURL:  os.Getenv("DATASET_URL"), // optional
		Thresholds: risk.Thresholds{
			Low:  getFloatOrDefault("RISK_LOW_THRESHOLD", risk.Default.Low),
			High: getFloatOrDefault("RISK_HIGH_THRESHOLD", risk.Default.High),
		},
		TopK:          getIntOrDefault("EXPLAIN_TOP_K", 3),
		KernelSamples: getIntOrDefault("KERNEL_SAMPLES", 50),
		ExplainSeed:   int64(getIntOrDefault("EXPLAIN_SEED", 42)),
		Trainer:       ml.DefaultTrainerConfig(),
		TestFraction:  getFloatOrDefault("TEST_FRACTION", 0.2),
		SplitSeed:     int64(getIntOrDefault("SPLIT_SEED", 42)),
		FetchTimeout:  getDurationOrDefault("FETCH_TIMEOUT", 30*time.Second),
		RecentLimit:   getIntOrDefault("RECENT_LIMIT", 50),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

// mergeTrainerDefaults fills omitted trainer subsections with the
// production defaults, so a config file that only tunes one candidate
// keeps the rest intact. A fully absent block takes the defaults
// wholesale, which keeps the candidate toggles enabled.
func mergeTrainerDefaults(trainer ml.TrainerConfig) ml.TrainerConfig {
	defaults := ml.DefaultTrainerConfig()

	absent := trainer.Forest.Trees == 0 &&
		trainer.Boosting.Rounds == 0 &&
		len(trainer.Network.HiddenLayers) == 0 &&
		trainer.CVFolds == 0 &&
		!trainer.EnableNetwork &&
		!trainer.EnableEnsemble
	if absent {
		return defaults
	}

	if trainer.Forest.Trees == 0 {
		trainer.Forest = defaults.Forest
	}
	if trainer.Boosting.Rounds == 0 {
		trainer.Boosting = defaults.Boosting
	}
	if len(trainer.Network.HiddenLayers) == 0 {
		trainer.Network = defaults.Network
	}
	if trainer.CVFolds == 0 {
		trainer.CVFolds = defaults.CVFolds
	}
	return trainer
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func defaultString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration
// values before anything starts serving.
func validateSettings(settings *Settings) error {
	if settings.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if settings.ModelDir == "" {
		return fmt.Errorf("model directory cannot be empty")
	}
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}

	if err := settings.Thresholds.Validate(); err != nil {
		return err
	}

	if settings.TopK < 1 || settings.TopK > 8 {
		return fmt.Errorf("explanation top-K must be between 1 and 8, got %d", settings.TopK)
	}
	if settings.KernelSamples < 1 || settings.KernelSamples > 50 {
		return fmt.Errorf("kernel samples must be between 1 and 50, got %d", settings.KernelSamples)
	}

	if settings.TestFraction <= 0 || settings.TestFraction > 0.5 {
		return fmt.Errorf("test fraction must be between 0 and 0.5, got %f", settings.TestFraction)
	}
	if settings.Trainer.CVFolds < 2 || settings.Trainer.CVFolds > 10 {
		return fmt.Errorf("cross-validation folds must be between 2 and 10, got %d", settings.Trainer.CVFolds)
	}

	if settings.FetchTimeout < time.Second || settings.FetchTimeout > 5*time.Minute {
		return fmt.Errorf("fetch timeout must be between 1s and 5m, got %v", settings.FetchTimeout)
	}
	if settings.RecentLimit < 1 || settings.RecentLimit > 1000 {
		return fmt.Errorf("recent limit must be between 1 and 1000, got %d", settings.RecentLimit)
	}

	return nil
}
