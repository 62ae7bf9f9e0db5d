package pipeline

// UniformFrameIndices returns n frame indices evenly spaced strictly inside
// [start, end], computed as start + (i+1)*(end-start)/(n+1) for i in [0, n)
// per spec.md §4.8.4/§4.8.5's uniform sampling rule.
func UniformFrameIndices(start, end, n int) []int {
	if n <= 0 {
		return nil
	}
	span := end - start
	indices := make([]int, n)
	for i := 0; i < n; i++ {
		indices[i] = start + (i+1)*span/(n+1)
	}
	return indices
}
