package probe

import (
	"math"
	"testing"
)

func TestPointSetStats(t *testing.T) {
	s := NewPointSet()
	if s.Len() != 0 || s.MeanError() != 0 || s.RMSError() != 0 {
		t.Error("empty set has non-zero stats")
	}

	s.Add(Point{X: 10, Y: 0, ZError: 0.3})
	s.Add(Point{X: -10, Y: 5, ZError: -0.3})
	s.Add(Point{X: 0, Y: -5, ZError: 0.6})

	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if got := s.Point(1); got.X != -10 || got.ZError != -0.3 {
		t.Errorf("Point(1) = %+v", got)
	}
	if mean := s.MeanError(); math.Abs(mean-0.2) > 1e-9 {
		t.Errorf("MeanError() = %v, want 0.2", mean)
	}
	wantRMS := math.Sqrt((0.09 + 0.09 + 0.36) / 3.0)
	if rms := s.RMSError(); math.Abs(rms-wantRMS) > 1e-9 {
		t.Errorf("RMSError() = %v, want %v", rms, wantRMS)
	}
}
