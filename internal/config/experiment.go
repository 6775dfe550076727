package config

import (
	"fmt"
	"os"
	"strings"

	"abtrust/domain/experiment"
	"abtrust/internal/errors"
	"abtrust/internal/planning"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Upper bounds on request-supplied work sizes
const (
	MaxAASampleSize      = 1_000_000
	MaxMonteCarloSamples = 1_000_000
)

// ExperimentConfig is the immutable description of one experiment, passed by value.
// The planning parameters carry no struct-tag rules: they are checked by ValidatePlanning
// so that a bad plan never blocks bucketing or the posterior comparison.
type ExperimentConfig struct {
	Name         string             `yaml:"name" json:"name" validate:"required"`
	BaselineRate float64            `yaml:"baseline_rate" json:"baseline_rate"`
	MDETarget    float64            `yaml:"mde_target" json:"mde_target"`
	Alpha        float64            `yaml:"alpha" json:"alpha"`
	PowerTarget  float64            `yaml:"power_target" json:"power_target"`
	DailyVolume  int                `yaml:"daily_volume" json:"daily_volume"`
	Layers       []experiment.Layer `yaml:"layers" json:"layers" validate:"required,min=1,dive"`

	// PrimaryLayer is the layer whose A/B comparison is analysed and audited
	PrimaryLayer string `yaml:"primary_layer" json:"primary_layer" validate:"required"`

	// AASampleSize is the subject count of the A/A self-check. It is configured on its
	// own and never derived from the planner's requirement.
	AASampleSize      int   `yaml:"aa_sample_size" json:"aa_sample_size" validate:"gt=0,lte=1000000"`
	MonteCarloSamples int   `yaml:"monte_carlo_samples" json:"monte_carlo_samples" validate:"gt=0,lte=1000000"`
	Seed              int64 `yaml:"seed" json:"seed"` // 0 means unseeded

	// DecisionThreshold is the P(B > A) above which the posterior comparison calls B
	// the winner. Zero means 0.95.
	DecisionThreshold float64 `yaml:"decision_threshold" json:"decision_threshold" validate:"omitempty,gt=0,lt=1"`
}

// DefaultExperimentConfig mirrors the demonstration setup: 1,000 daily users, 10% baseline,
// 5% target lift and two orthogonal layers.
func DefaultExperimentConfig() ExperimentConfig {
	return ExperimentConfig{
		Name:         "default",
		BaselineRate: 0.10,
		MDETarget:    0.05,
		Alpha:        0.05,
		PowerTarget:  0.8,
		DailyVolume:  1000,
		Layers: []experiment.Layer{
			{Name: "L1", Salt: "UI_EXP"},
			{Name: "L2", Salt: "ALG_EXP"},
		},
		PrimaryLayer:      "L1",
		AASampleSize:      5000,
		MonteCarloSamples: 20000,
		DecisionThreshold: 0.95,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the structural fields, the work-size bounds and that the primary layer
// is one of the configured layers. Planning parameters are left to ValidatePlanning.
func (c ExperimentConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.ConfigInvalid(describeValidation(err))
	}
	if err := c.ValidateLayers(); err != nil {
		return err
	}
	if _, ok := c.Layer(c.PrimaryLayer); !ok {
		return errors.ConfigInvalid(fmt.Sprintf("primary layer %q is not among the configured layers", c.PrimaryLayer))
	}
	return nil
}

// ValidateLayers checks only what bucketing needs: at least one layer, each named and
// salted, with no duplicate names
func (c ExperimentConfig) ValidateLayers() error {
	if len(c.Layers) == 0 {
		return errors.ConfigInvalid("at least one layer is required")
	}
	seen := make(map[string]bool, len(c.Layers))
	for _, l := range c.Layers {
		if err := validate.Struct(l); err != nil {
			return errors.ConfigInvalid(describeValidation(err))
		}
		if seen[l.Name] {
			return errors.ConfigInvalid(fmt.Sprintf("layer %q is defined more than once", l.Name))
		}
		seen[l.Name] = true
	}
	return nil
}

// PlanInput extracts the planner's parameters
func (c ExperimentConfig) PlanInput() planning.PlanInput {
	return planning.PlanInput{
		BaselineRate: c.BaselineRate,
		MDETarget:    c.MDETarget,
		Alpha:        c.Alpha,
		PowerTarget:  c.PowerTarget,
		DailyVolume:  c.DailyVolume,
	}
}

// ValidatePlanning checks the planner's parameters; failures carry INVALID_PARAMETER
func (c ExperimentConfig) ValidatePlanning() error {
	return c.PlanInput().Validate()
}

// Layer looks up a configured layer by name
func (c ExperimentConfig) Layer(name string) (experiment.Layer, bool) {
	for _, l := range c.Layers {
		if l.Name == name {
			return l, true
		}
	}
	return experiment.Layer{}, false
}

// Primary returns the primary layer
func (c ExperimentConfig) Primary() experiment.Layer {
	l, _ := c.Layer(c.PrimaryLayer)
	return l
}

// LoadExperimentFile reads a YAML experiment definition. Fields missing from the file keep
// their defaults.
func LoadExperimentFile(path string) (ExperimentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ExperimentConfig{}, errors.Wrapf(err, "failed to read experiment config %s", path)
	}
	return ParseExperimentYAML(data)
}

// ParseExperimentYAML decodes and validates a YAML experiment definition
func ParseExperimentYAML(data []byte) (ExperimentConfig, error) {
	cfg := DefaultExperimentConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ExperimentConfig{}, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return ExperimentConfig{}, err
	}
	return cfg, nil
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !asValidationErrors(err, &fieldErrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s is %s", fe.Namespace(), fe.Tag()))
		}
	}
	return "invalid experiment config: " + strings.Join(parts, "; ")
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = fieldErrs
	}
	return ok
}
