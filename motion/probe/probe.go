// Package probe holds bed-probing results consumed by kinematics
// auto-calibration.
package probe

import "math"

// Point is a single probe result: the XY position that was probed and the
// measured Z deviation from the expected bed height.
type Point struct {
	X      float64
	Y      float64
	ZError float64
}

// PointSet is an ordered collection of probe results.
type PointSet struct {
	points []Point
}

// NewPointSet creates an empty point set.
func NewPointSet() *PointSet {
	return &PointSet{points: make([]Point, 0, 16)}
}

// Add appends a probe result.
func (s *PointSet) Add(p Point) {
	s.points = append(s.points, p)
}

// Len returns the number of probe results.
func (s *PointSet) Len() int {
	return len(s.points)
}

// Point returns the i-th probe result.
func (s *PointSet) Point(i int) Point {
	return s.points[i]
}

// MeanError returns the average Z deviation, or 0 for an empty set.
func (s *PointSet) MeanError() float64 {
	if len(s.points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range s.points {
		sum += p.ZError
	}
	return sum / float64(len(s.points))
}

// RMSError returns the root-mean-square Z deviation, or 0 for an empty set.
func (s *PointSet) RMSError() float64 {
	if len(s.points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range s.points {
		sum += p.ZError * p.ZError
	}
	return math.Sqrt(sum / float64(len(s.points)))
}
