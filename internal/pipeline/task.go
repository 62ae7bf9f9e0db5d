// Package pipeline implements the generic task lifecycle (preprocess,
// execute, postprocess) and the nine concrete ingestion stages built on
// top of it, plus the pure arithmetic (uniform sampling, ASR overlap) the
// stages share.
package pipeline

import (
	"context"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/persist"
	"go.uber.org/zap"
)

// Item pairs a produced artifact descriptor with the payload to persist,
// if any. A nil Payload with Skipped true means execute found the artifact
// already done and skipped the external call entirely.
type Item struct {
	Artifact artifact.Artifact
	Payload  any
	Skipped  bool
}

// Stage is the generic task contract from spec.md §4.7: preprocess builds
// descriptors without external calls beyond small parent reads, execute
// lazily (here: over a channel) checks existence and calls out only for
// missing descriptors, postprocess persists non-skipped results through
// the visitor.
type Stage interface {
	Name() string
	// Preprocess builds the full set of candidate artifacts for this run.
	Preprocess(ctx context.Context) ([]artifact.Artifact, error)
	// Execute is handed one candidate artifact at a time; it must check
	// v.Exists first (skip-when-exists) and only then call the external
	// service or compute the payload.
	Execute(ctx context.Context, a artifact.Artifact, v *persist.Visitor) (Item, error)
}

// Run drives one Stage through preprocess → execute → postprocess for
// every candidate, fanning execute out over a bounded worker pool and
// persisting results in the order they complete (artifact identity, not
// slice position, is what matters — content-addressing makes completion
// order safe per spec.md §5 "Ordering guarantees").
func Run(ctx context.Context, stage Stage, v *persist.Visitor, concurrency int, log *zap.Logger) ([]Item, error) {
	candidates, err := stage.Preprocess(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	type result struct {
		item Item
		err  error
	}

	work := make(chan artifact.Artifact)
	results := make(chan result)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for w := 0; w < concurrency; w++ {
		go func() {
			for a := range work {
				item, err := stage.Execute(runCtx, a, v)
				select {
				case results <- result{item: item, err: err}:
				case <-runCtx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, a := range candidates {
			select {
			case work <- a:
			case <-runCtx.Done():
				return
			}
		}
	}()

	items := make([]Item, 0, len(candidates))
	for i := 0; i < len(candidates); i++ {
		r := <-results
		if r.err != nil {
			cancel()
			log.Error("stage item failed", zap.String("stage", stage.Name()), zap.Error(r.err))
			return items, r.err
		}
		if !r.item.Skipped && r.item.Payload != nil {
			if err := v.Persist(runCtx, r.item.Artifact, r.item.Payload); err != nil {
				cancel()
				return items, err
			}
		}
		items = append(items, r.item)
	}
	return items, nil
}

// CheckExists is the shared skip-when-exists guard every stage's Execute
// calls first.
func CheckExists(ctx context.Context, v *persist.Visitor, a artifact.Artifact) (Item, bool, error) {
	ok, err := v.Exists(ctx, a)
	if err != nil {
		return Item{}, false, err
	}
	if ok {
		return Item{Artifact: a, Skipped: true}, true, nil
	}
	return Item{}, false, nil
}
