package config

import (
	"os"
	"strconv"

	"abtrust/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Profiling  ProfilingConfig
	Experiment ExperimentConfig
}

// DatabaseConfig holds database connection settings. An empty URL disables persistence.
type DatabaseConfig struct {
	URL string
}

// Enabled reports whether audit runs should be persisted
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// ProfilingConfig holds the ops server settings (health, metrics, pprof)
type ProfilingConfig struct {
	Port    string
	Enabled bool
}

// Load reads configuration from environment variables and validates it.
// EXPERIMENT_CONFIG points at an optional YAML experiment definition; individual
// experiment fields can then be overridden from the environment.
func Load() (*Config, error) {
	config := &Config{
		Database: DatabaseConfig{
			URL: getEnvOrDefault("DATABASE_URL", ""),
		},
		Server:    *loadServerConfig(),
		Profiling: *loadProfilingConfig(),
	}

	experiment, err := loadExperimentConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load experiment configuration")
	}
	config.Experiment = experiment

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func loadProfilingConfig() *ProfilingConfig {
	return &ProfilingConfig{
		Port:    getEnvOrDefault("OPS_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("OPS_ENABLED", true),
	}
}

func loadExperimentConfig() (ExperimentConfig, error) {
	cfg := DefaultExperimentConfig()
	if path := os.Getenv("EXPERIMENT_CONFIG"); path != "" {
		loaded, err := LoadExperimentFile(path)
		if err != nil {
			return ExperimentConfig{}, err
		}
		cfg = loaded
	}

	cfg.BaselineRate = getEnvFloatOrDefault("BASELINE_RATE", cfg.BaselineRate)
	cfg.MDETarget = getEnvFloatOrDefault("MDE_TARGET", cfg.MDETarget)
	cfg.Alpha = getEnvFloatOrDefault("ALPHA", cfg.Alpha)
	cfg.PowerTarget = getEnvFloatOrDefault("POWER_TARGET", cfg.PowerTarget)
	cfg.DailyVolume = getEnvIntOrDefault("DAILY_VOLUME", cfg.DailyVolume)
	cfg.AASampleSize = getEnvIntOrDefault("AA_SAMPLE_SIZE", cfg.AASampleSize)
	cfg.MonteCarloSamples = getEnvIntOrDefault("MC_SAMPLES", cfg.MonteCarloSamples)
	cfg.DecisionThreshold = getEnvFloatOrDefault("DECISION_THRESHOLD", cfg.DecisionThreshold)
	cfg.Seed = int64(getEnvIntOrDefault("RNG_SEED", int(cfg.Seed)))

	return cfg, nil
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}
	if config.Profiling.Enabled && config.Profiling.Port == config.Server.Port {
		return errors.ConfigInvalid("ops port must differ from the API port")
	}
	return config.Experiment.Validate()
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
