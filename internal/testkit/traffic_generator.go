package testkit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"abtrust/domain/experiment"
	"abtrust/internal/bucketing"
	"abtrust/internal/errors"
	"abtrust/ports"

	"gonum.org/v1/gonum/stat/distuv"
)

// TrafficGeneratorConfig configures the synthetic traffic generator
type TrafficGeneratorConfig struct {
	DailyVolume   int                `json:"daily_volume"`
	Days          int                `json:"days"`
	BaselineRate  float64            `json:"baseline_rate"`
	TrueLift      float64            `json:"true_lift"` // relative lift applied to B in EffectLayer
	Layers        []experiment.Layer `json:"layers"`
	EffectLayer   string             `json:"effect_layer"`
	SubjectPrefix string             `json:"subject_prefix"`
}

// DefaultTrafficConfig returns a week of 1,000 daily users over the two demo layers
// with a true +5% lift in L1
func DefaultTrafficConfig() TrafficGeneratorConfig {
	return TrafficGeneratorConfig{
		DailyVolume:  1000,
		Days:         7,
		BaselineRate: 0.10,
		TrueLift:     0.05,
		Layers: []experiment.Layer{
			{Name: "L1", Salt: "UI_EXP"},
			{Name: "L2", Salt: "ALG_EXP"},
		},
		EffectLayer:   "L1",
		SubjectPrefix: "user_",
	}
}

// Subjects returns the total number of simulated subjects
func (c TrafficGeneratorConfig) Subjects() int {
	return c.DailyVolume * c.Days
}

// TrafficGenerator simulates the upstream event source. Each subject converts at most once;
// the outcome depends only on its variant in EffectLayer and is reported in every layer,
// so layers without an effect should read as A/A.
type TrafficGenerator struct {
	config    TrafficGeneratorConfig
	assigners []*bucketing.Assigner
	effect    *bucketing.Assigner
	rng       ports.RNGPort
}

var _ ports.ObservationSource = (*TrafficGenerator)(nil)

// NewTrafficGenerator validates the config and prepares one assigner per layer
func NewTrafficGenerator(config TrafficGeneratorConfig, rng ports.RNGPort) (*TrafficGenerator, error) {
	if config.DailyVolume <= 0 || config.Days <= 0 {
		return nil, errors.InvalidParameter("daily volume %d and days %d must be positive", config.DailyVolume, config.Days)
	}
	if config.BaselineRate < 0 || config.BaselineRate > 1 {
		return nil, errors.InvalidParameter("baseline rate %v must be in [0,1]", config.BaselineRate)
	}
	treated := config.BaselineRate * (1 + config.TrueLift)
	if treated < 0 || treated > 1 {
		return nil, errors.InvalidParameter("treated rate %v must be in [0,1]", treated)
	}
	if len(config.Layers) == 0 {
		return nil, errors.InvalidParameter("at least one layer is required")
	}
	if rng == nil {
		return nil, errors.InvalidParameter("a random source is required")
	}

	g := &TrafficGenerator{config: config, rng: rng}
	for _, layer := range config.Layers {
		a, err := bucketing.NewEvenAssigner(layer)
		if err != nil {
			return nil, err
		}
		g.assigners = append(g.assigners, a)
		if layer.Name == config.EffectLayer {
			g.effect = a
		}
	}
	if g.effect == nil && config.TrueLift != 0 {
		return nil, errors.InvalidParameter("effect layer %q is not among the simulated layers", config.EffectLayer)
	}

	return g, nil
}

// SubjectID names the i-th simulated subject
func (g *TrafficGenerator) SubjectID(i int) string {
	return fmt.Sprintf("%s%d", g.config.SubjectPrefix, i)
}

// Observations implements ports.ObservationSource
func (g *TrafficGenerator) Observations(ctx context.Context) ([]experiment.Observation, error) {
	control := distuv.Bernoulli{P: g.config.BaselineRate, Src: g.rng.Stream("traffic_control")}
	treated := distuv.Bernoulli{P: g.config.BaselineRate * (1 + g.config.TrueLift), Src: g.rng.Stream("traffic_treated")}

	subjects := g.config.Subjects()
	out := make([]experiment.Observation, 0, subjects*len(g.assigners))

	for i := 0; i < subjects; i++ {
		if i%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		id := g.SubjectID(i)
		outcome := control
		if g.effect != nil && g.effect.VariantFor(id) == experiment.VariantB {
			outcome = treated
		}
		converted := outcome.Rand() == 1

		for _, a := range g.assigners {
			out = append(out, experiment.Observation{
				SubjectID: id,
				Layer:     a.LayerName(),
				Outcome:   converted,
			})
		}
	}

	return out, nil
}

// WriteJSONL writes observations as one JSON object per line
func WriteJSONL(w io.Writer, observations []experiment.Observation) error {
	enc := json.NewEncoder(w)
	for _, obs := range observations {
		if err := enc.Encode(obs); err != nil {
			return fmt.Errorf("failed to encode observation for %s: %w", obs.SubjectID, err)
		}
	}
	return nil
}

// WriteToFile generates observations and writes them to a JSON-lines file
func (g *TrafficGenerator) WriteToFile(ctx context.Context, filename string) error {
	observations, err := g.Observations(ctx)
	if err != nil {
		return err
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return writeAndClose(file, observations)
}

// writeAndClose reports a failed close when the write itself succeeded
func writeAndClose(w io.WriteCloser, observations []experiment.Observation) error {
	if err := WriteJSONL(w, observations); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}
