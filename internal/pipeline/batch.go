package pipeline

import "context"

// BatchFn calls an external batching service once per batch and must
// return one result per input item, in the same order, per spec.md §5's
// "embedding batch results are returned in the same order as inputs"
// contract.
type BatchFn[TIn any, TOut any] func(ctx context.Context, batch []TIn) ([]TOut, error)

// RunBatches accumulates items into batches of at most batchSize and
// invokes fn once per batch, serially (one batch at a time, to bound
// device memory on the server side per spec.md §5), flattening results
// back into input order.
func RunBatches[TIn any, TOut any](ctx context.Context, items []TIn, batchSize int, fn BatchFn[TIn, TOut]) ([]TOut, error) {
	if batchSize <= 0 {
		batchSize = len(items)
	}
	if batchSize == 0 {
		return nil, nil
	}

	out := make([]TOut, 0, len(items))
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]
		results, err := fn(ctx, batch)
		if err != nil {
			return out, err
		}
		out = append(out, results...)
	}
	return out, nil
}
