package config

import (
	"os"
	"path/filepath"
	"testing"

	"abtrust/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultExperimentConfig_IsValid(t *testing.T) {
	cfg := DefaultExperimentConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "UI_EXP", cfg.Primary().Salt)
	assert.Equal(t, 5000, cfg.AASampleSize)
	assert.Equal(t, 20000, cfg.MonteCarloSamples)
	assert.Equal(t, 0.95, cfg.DecisionThreshold)
}

func TestParseExperimentYAML(t *testing.T) {
	doc := []byte(`
name: checkout_button
baseline_rate: 0.12
mde_target: 0.08
daily_volume: 25000
layers:
  - name: checkout
    salt: CHECKOUT_2024
  - name: ranking
    salt: RANK_V3
primary_layer: checkout
seed: 42
`)
	cfg, err := ParseExperimentYAML(doc)
	require.NoError(t, err)

	assert.Equal(t, "checkout_button", cfg.Name)
	assert.Equal(t, 0.12, cfg.BaselineRate)
	assert.Equal(t, 25000, cfg.DailyVolume)
	assert.Len(t, cfg.Layers, 2)
	assert.Equal(t, "CHECKOUT_2024", cfg.Primary().Salt)
	assert.Equal(t, int64(42), cfg.Seed)
	// omitted fields keep their defaults
	assert.Equal(t, 0.05, cfg.Alpha)
	assert.Equal(t, 0.8, cfg.PowerTarget)
}

func TestParseExperimentYAML_Invalid(t *testing.T) {
	cases := map[string]string{
		"too many mc samples":   "monte_carlo_samples: 2000000000\n",
		"bad decision bar":      "decision_threshold: 1.5\n",
		"unknown primary layer": "primary_layer: nope\n",
		"layer without salt":    "layers:\n  - name: L1\nprimary_layer: L1\n",
		"duplicate layer":       "layers:\n  - {name: L1, salt: a}\n  - {name: L1, salt: b}\n",
		"malformed yaml":        "layers: [",
	}

	for name, doc := range cases {
		_, err := ParseExperimentYAML([]byte(doc))
		assert.Error(t, err, name)
		assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err), name)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "experiment.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: from_file\nmde_target: 0.1\n"), 0o644))

	t.Setenv("EXPERIMENT_CONFIG", path)
	t.Setenv("DAILY_VOLUME", "2500")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from_file", cfg.Experiment.Name)
	assert.Equal(t, 0.1, cfg.Experiment.MDETarget)
	assert.Equal(t, 2500, cfg.Experiment.DailyVolume)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.False(t, cfg.Database.Enabled())
}

func TestLoad_RejectsInvalidOverride(t *testing.T) {
	t.Setenv("AA_SAMPLE_SIZE", "2000000000")

	_, err := Load()
	assert.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestValidate_LeavesPlanningParametersToPlanner(t *testing.T) {
	for _, baseline := range []float64{0, 1.2} {
		cfg := DefaultExperimentConfig()
		cfg.BaselineRate = baseline

		assert.NoError(t, cfg.Validate(), "baseline %v", baseline)
		assert.NoError(t, cfg.ValidateLayers(), "baseline %v", baseline)

		err := cfg.ValidatePlanning()
		assert.Error(t, err, "baseline %v", baseline)
		assert.True(t, errors.IsInvalidParameter(err), "baseline %v", baseline)
	}

	assert.NoError(t, DefaultExperimentConfig().ValidatePlanning())
}

func TestValidate_BoundsWorkSizes(t *testing.T) {
	cfg := DefaultExperimentConfig()
	cfg.MonteCarloSamples = 2_000_000_000
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(cfg.Validate()))

	cfg = DefaultExperimentConfig()
	cfg.AASampleSize = 2_000_000_000
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(cfg.Validate()))

	cfg = DefaultExperimentConfig()
	cfg.MonteCarloSamples = MaxMonteCarloSamples
	cfg.AASampleSize = MaxAASampleSize
	assert.NoError(t, cfg.Validate())
}

func TestValidateLayers(t *testing.T) {
	cfg := DefaultExperimentConfig()
	cfg.Layers = nil
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(cfg.ValidateLayers()))

	cfg = DefaultExperimentConfig()
	cfg.Layers[1].Salt = ""
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(cfg.ValidateLayers()))

	// assignment does not care which layer is primary
	cfg = DefaultExperimentConfig()
	cfg.PrimaryLayer = "nope"
	assert.NoError(t, cfg.ValidateLayers())
	assert.Error(t, cfg.Validate())
}
