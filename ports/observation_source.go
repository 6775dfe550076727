package ports

import (
	"context"

	"abtrust/domain/experiment"
)

// ObservationSource supplies a consistent snapshot of binary outcomes.
// The core only aggregates what a source returns; it never generates production observations.
type ObservationSource interface {
	Observations(ctx context.Context) ([]experiment.Observation, error)
}
