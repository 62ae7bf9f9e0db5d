package pipeline

import (
	"context"
	"reflect"
	"testing"
)

func TestRunBatchesPreservesOrderAcrossBatches(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	var batchesSeen [][]int

	out, err := RunBatches(context.Background(), items, 3, func(_ context.Context, batch []int) ([]string, error) {
		batchesSeen = append(batchesSeen, append([]int(nil), batch...))
		results := make([]string, len(batch))
		for i, v := range batch {
			results[i] = string(rune('a' + v))
		}
		return results, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(out))
	}
	if !reflect.DeepEqual(batchesSeen, [][]int{{1, 2, 3}, {4, 5, 6}, {7}}) {
		t.Fatalf("unexpected batching: %v", batchesSeen)
	}
	if !reflect.DeepEqual(out, []string{"b", "c", "d", "e", "f", "g", "h"}) {
		t.Fatalf("results out of input order: %v", out)
	}
}

func TestRunBatchesStopsOnError(t *testing.T) {
	items := []int{1, 2, 3, 4}
	calls := 0
	_, err := RunBatches(context.Background(), items, 2, func(_ context.Context, batch []int) ([]int, error) {
		calls++
		if calls == 2 {
			return nil, errBoom
		}
		return batch, nil
	})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if calls != 2 {
		t.Fatalf("expected batching to stop after the failing batch, got %d calls", calls)
	}
}

var errBoom = errBoomType{}

type errBoomType struct{}

func (errBoomType) Error() string { return "boom" }
