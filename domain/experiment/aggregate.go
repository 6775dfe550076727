package experiment

// VariantResolver re-derives a subject's variant for a single layer
type VariantResolver interface {
	LayerName() string
	VariantFor(subjectID string) Variant
}

// Aggregate sums observations per variant for the resolver's layer.
// Counts are always rebuilt from the full observation slice; observations from other
// layers and variants other than A/B are ignored.
func Aggregate(observations []Observation, resolver VariantResolver) AggregateCounts {
	var counts AggregateCounts
	layer := resolver.LayerName()

	for _, obs := range observations {
		if obs.Layer != layer {
			continue
		}

		var group *GroupCounts
		switch resolver.VariantFor(obs.SubjectID) {
		case VariantA:
			group = &counts.A
		case VariantB:
			group = &counts.B
		default:
			continue
		}

		group.N++
		if obs.Outcome {
			group.Successes++
		}
	}

	return counts
}
