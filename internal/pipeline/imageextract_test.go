package pipeline

import "testing"

func TestFrameTimestampMatchesWorkedExample(t *testing.T) {
	// spec.md §8: fps=25, sampled frames 33/66/150/200.
	cases := []struct {
		frame int
		fps   float64
		want  float64
	}{
		{33, 25, 1.32},
		{66, 25, 2.64},
		{150, 25, 6.0},
		{200, 25, 8.0},
	}
	for _, c := range cases {
		if got := frameTimestamp(c.frame, c.fps); got != c.want {
			t.Errorf("frameTimestamp(%d, %v) = %v, want %v", c.frame, c.fps, got, c.want)
		}
	}
}

func TestFrameTimestampZeroFPSReturnsZero(t *testing.T) {
	if got := frameTimestamp(100, 0); got != 0 {
		t.Errorf("frameTimestamp with fps=0 = %v, want 0", got)
	}
}
