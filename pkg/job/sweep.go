package job

// BipolarSweep returns the five-segment current loop used for I-V curves:
// 0 up to +max, back to 0, down to -max, back to 0, and up to +max again.
// Segment joins are not duplicated. step must be positive; max is rounded
// down to a whole number of steps.
func BipolarSweep(max, step float64) []float64 {
	if max <= 0 || step <= 0 {
		return nil
	}
	n := int(max / step)
	if n == 0 {
		return nil
	}

	var points []float64
	// 0 -> +max
	for i := 0; i <= n; i++ {
		points = append(points, float64(i)*step)
	}
	// +max -> 0
	for i := n - 1; i >= 0; i-- {
		points = append(points, float64(i)*step)
	}
	// 0 -> -max
	for i := 1; i <= n; i++ {
		points = append(points, -float64(i)*step)
	}
	// -max -> 0
	for i := n - 1; i >= 0; i-- {
		points = append(points, -float64(i)*step)
	}
	// 0 -> +max
	for i := 1; i <= n; i++ {
		points = append(points, float64(i)*step)
	}
	return points
}

// LinearSweep returns steps values from start to stop inclusive.
func LinearSweep(start, stop float64, steps int) []float64 {
	if steps < 2 {
		return nil
	}
	points := make([]float64, steps)
	delta := (stop - start) / float64(steps-1)
	for i := range points {
		points[i] = start + float64(i)*delta
	}
	// Pin the endpoint to avoid accumulated float error.
	points[steps-1] = stop
	return points
}
