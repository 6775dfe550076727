package experiment

import (
	"fmt"

	"abtrust/internal/errors"
)

// Variant identifies the experience served to a subject within one layer
type Variant string

const (
	VariantA Variant = "A"
	VariantB Variant = "B"
)

// Layer is an independent partition of traffic. Distinct salts keep layers orthogonal.
type Layer struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	Salt string `json:"salt" yaml:"salt" validate:"required"`
}

// Allocation is one variant's share of a layer, in whole percentage points
type Allocation struct {
	Variant Variant `json:"variant" yaml:"variant"`
	Weight  int     `json:"weight" yaml:"weight"`
}

// Split is an ordered set of allocations whose weights sum to 100.
// Buckets are handed out in order: the first allocation owns [0, w1), the next [w1, w1+w2), ...
type Split []Allocation

// EvenSplit returns the 50/50 A/B split
func EvenSplit() Split {
	return Split{
		{Variant: VariantA, Weight: 50},
		{Variant: VariantB, Weight: 50},
	}
}

// Validate checks that the split covers exactly 100 buckets with distinct variants
func (s Split) Validate() error {
	if len(s) == 0 {
		return errors.InvalidParameter("split must contain at least one variant")
	}
	seen := make(map[Variant]bool, len(s))
	total := 0
	for _, a := range s {
		if a.Variant == "" {
			return errors.InvalidParameter("split contains an unnamed variant")
		}
		if a.Weight <= 0 {
			return errors.InvalidParameter("variant %s has non-positive weight %d", a.Variant, a.Weight)
		}
		if seen[a.Variant] {
			return errors.InvalidParameter("variant %s appears more than once in split", a.Variant)
		}
		seen[a.Variant] = true
		total += a.Weight
	}
	if total != 100 {
		return errors.InvalidParameter("split weights sum to %d, want 100", total)
	}
	return nil
}

// Variants lists the variants in allocation order
func (s Split) Variants() []Variant {
	out := make([]Variant, len(s))
	for i, a := range s {
		out[i] = a.Variant
	}
	return out
}

// Assignment records the variant a subject received in a layer
type Assignment struct {
	SubjectID string  `json:"subject_id"`
	Layer     string  `json:"layer"`
	Variant   Variant `json:"variant"`
}

// Observation is one binary outcome reported by the event source
type Observation struct {
	SubjectID string `json:"subject_id"`
	Layer     string `json:"layer"`
	Outcome   bool   `json:"outcome"`
}

// GroupCounts holds the exposure and success totals of one variant
type GroupCounts struct {
	N         int `json:"n"`
	Successes int `json:"successes"`
}

// Validate rejects negative counts and more successes than exposures
func (g GroupCounts) Validate() error {
	if g.N < 0 || g.Successes < 0 {
		return errors.InvalidParameter("counts must be non-negative (n=%d, successes=%d)", g.N, g.Successes)
	}
	if g.Successes > g.N {
		return errors.InvalidParameter("successes %d exceed exposures %d", g.Successes, g.N)
	}
	return nil
}

// Failures returns N - Successes
func (g GroupCounts) Failures() int {
	return g.N - g.Successes
}

// Rate returns the observed conversion rate, failing when the group is empty
func (g GroupCounts) Rate() (float64, error) {
	if g.N == 0 {
		return 0, errors.InsufficientData("group has zero observations")
	}
	return float64(g.Successes) / float64(g.N), nil
}

func (g GroupCounts) String() string {
	return fmt.Sprintf("%d/%d", g.Successes, g.N)
}

// AggregateCounts is a consistent snapshot of both variants' totals
type AggregateCounts struct {
	A GroupCounts `json:"variant_a"`
	B GroupCounts `json:"variant_b"`
}

// Total returns the number of exposed subjects across both variants
func (c AggregateCounts) Total() int {
	return c.A.N + c.B.N
}

// Validate validates both groups
func (c AggregateCounts) Validate() error {
	if err := c.A.Validate(); err != nil {
		return errors.Wrap(err, "variant A")
	}
	if err := c.B.Validate(); err != nil {
		return errors.Wrap(err, "variant B")
	}
	return nil
}
