package pipeline

import (
	"reflect"
	"testing"
)

func TestUniformFrameIndicesSpacing(t *testing.T) {
	got := UniformFrameIndices(0, 100, 3)
	want := []int{25, 50, 75}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestUniformFrameIndicesSingleFrameIsMidpoint(t *testing.T) {
	got := UniformFrameIndices(0, 100, 1)
	want := []int{50}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestUniformFrameIndicesZeroReturnsNil(t *testing.T) {
	if got := UniformFrameIndices(0, 100, 0); got != nil {
		t.Fatalf("expected nil for n=0, got %v", got)
	}
}
