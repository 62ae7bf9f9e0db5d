package pipeline

import "testing"

func TestWithinSegmentFullyInside(t *testing.T) {
	segment := TimeSpan{Start: 10, End: 20}
	token := TimeSpan{Start: 12, End: 18}
	if !WithinSegment(token, segment) {
		t.Fatal("expected fully-inside token to be included")
	}
}

func TestWithinSegmentAtOverlapThreshold(t *testing.T) {
	segment := TimeSpan{Start: 0, End: 10}

	// token spans [8,18): 2s of its 10s length overlap the segment -> 0.2, excluded
	excluded := TimeSpan{Start: 8, End: 18}
	if WithinSegment(excluded, segment) {
		t.Fatal("expected low-overlap token to be excluded")
	}

	// token spans [-2,8): 10s long, 8s of it overlaps [0,10) -> ratio 0.8, included
	included := TimeSpan{Start: -2, End: 8}
	if !WithinSegment(included, segment) {
		t.Fatal("expected token at the 0.8 overlap threshold to be included")
	}
}

func TestWithinSegmentNoOverlap(t *testing.T) {
	segment := TimeSpan{Start: 0, End: 5}
	token := TimeSpan{Start: 10, End: 15}
	if WithinSegment(token, segment) {
		t.Fatal("expected disjoint token to be excluded")
	}
}
