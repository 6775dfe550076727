package bucketing

import (
	"context"
	"runtime"
	"strconv"

	"abtrust/domain/experiment"

	"golang.org/x/sync/errgroup"
)

const minChunk = 1024

// AssignBatch assigns every subject in every layer using a bounded worker pool.
// The result is subject-major: result[i*len(assigners)+j] is subject i in layer j.
// Workers write disjoint index ranges, so no locking is needed.
func AssignBatch(ctx context.Context, subjects []string, assigners []*Assigner, workers int) ([]experiment.Assignment, error) {
	if len(subjects) == 0 || len(assigners) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make([]experiment.Assignment, len(subjects)*len(assigners))

	chunk := (len(subjects) + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < len(subjects); start += chunk {
		end := start + chunk
		if end > len(subjects) {
			end = len(subjects)
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				base := i * len(assigners)
				for j, a := range assigners {
					out[base+j] = a.Assign(subjects[i])
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SubjectIDs returns n synthetic subject ids: prefix0 .. prefix(n-1)
func SubjectIDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = prefix + strconv.Itoa(i)
	}
	return ids
}
