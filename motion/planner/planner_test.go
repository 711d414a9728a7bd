package planner

import (
	"bytes"
	"errors"
	"testing"

	"kinema/motion/gcode"
	"kinema/motion/kinematics"
)

var (
	cartSteps  = []float64{80.0, 80.0, 400.0}
	scaraSteps = []float64{100.0, 100.0, 400.0}
	driveNames = []string{"x", "y", "z"}
)

func TestExecuteCartesian(t *testing.T) {
	p := New(kinematics.NewCartesian(), driveNames)

	move := Move{
		Start:    []float64{0.0, 0.0, 0.0},
		End:      []float64{10.0, -5.0, 2.0},
		Feedrate: 50.0,
	}
	if err := p.Execute(move, cartSteps); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := []int32{800, -400, 800}
	for i, d := range p.Drives() {
		if d.Position() != want[i] {
			t.Errorf("drive %s at %d steps, want %d", d.Name(), d.Position(), want[i])
		}
	}
}

func TestSegmentCount(t *testing.T) {
	// A 0.25mm minimum segment length divides the test distances exactly.
	kin := kinematics.NewScara()
	cmd, err := gcode.NewParser().ParseLine("M669 T0.25")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := kin.SetOrReportParameters(669, cmd, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	scara := New(kin, driveNames)
	cart := New(kinematics.NewCartesian(), driveNames)

	cases := []struct {
		name string
		p    *Planner
		move Move
		want int
	}{
		{
			// 10mm at 10mm/s: 200 segs/sec allows 200, but the 0.25mm
			// minimum length caps it at 40.
			name: "length cap",
			p:    scara,
			move: Move{Start: []float64{120, 0, 0}, End: []float64{130, 0, 0}, Feedrate: 10.0},
			want: 40,
		},
		{
			// 10mm at 100mm/s: time allows only 20 segments.
			name: "time cap",
			p:    scara,
			move: Move{Start: []float64{120, 0, 0}, End: []float64{130, 0, 0}, Feedrate: 100.0},
			want: 20,
		},
		{
			name: "raw G0 travel exempt",
			p:    scara,
			move: Move{Start: []float64{120, 0, 0}, End: []float64{130, 0, 0}, Feedrate: 10.0, Travel: true},
			want: 1,
		},
		{
			name: "zero length move",
			p:    scara,
			move: Move{Start: []float64{120, 0, 0}, End: []float64{120, 0, 0}, Feedrate: 10.0},
			want: 1,
		},
		{
			name: "unsegmented geometry",
			p:    cart,
			move: Move{Start: []float64{0, 0, 0}, End: []float64{100, 0, 0}, Feedrate: 10.0},
			want: 1,
		},
	}
	for _, tc := range cases {
		if got := tc.p.segmentCount(tc.move); got != tc.want {
			t.Errorf("%s: segmentCount = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestExecuteSegmentedMatchesDirectSolve(t *testing.T) {
	kin := kinematics.NewScara()
	p := New(kin, driveNames)
	start := []float64{120.0, 0.0, 0.0}
	if err := p.SetPosition(start, scaraSteps); err != nil {
		t.Fatalf("SetPosition failed: %v", err)
	}

	end := []float64{130.0, 20.0, 1.0}
	move := Move{Start: start, End: end, Feedrate: 10.0}
	if err := p.Execute(move, scaraSteps); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// The final segment is exactly the end point, so the drives must land
	// on the direct conversion of the end point.
	want := make([]int32, 3)
	if err := kin.CartesianToMotorSteps(end, scaraSteps, 3, want); err != nil {
		t.Fatalf("direct solve failed: %v", err)
	}
	for i, d := range p.Drives() {
		if d.Position() != want[i] {
			t.Errorf("drive %s at %d steps, want %d", d.Name(), d.Position(), want[i])
		}
	}
}

func TestExecuteAbortsWithoutPartialMotion(t *testing.T) {
	kin := kinematics.NewScara()
	p := New(kin, driveNames)
	start := []float64{120.0, 0.0, 0.0}
	if err := p.SetPosition(start, scaraSteps); err != nil {
		t.Fatalf("SetPosition failed: %v", err)
	}
	before := make([]int32, 3)
	for i, d := range p.Drives() {
		before[i] = d.Position()
	}

	// The move leaves the workspace partway through: early segments are
	// solvable, later ones are not. No drive may have moved.
	move := Move{Start: start, End: []float64{250.0, 0.0, 0.0}, Feedrate: 10.0}
	err := p.Execute(move, scaraSteps)
	if !errors.Is(err, kinematics.ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	for i, d := range p.Drives() {
		if d.Position() != before[i] {
			t.Errorf("drive %s moved to %d steps after aborted move (was %d)",
				d.Name(), d.Position(), before[i])
		}
	}
}

func TestSetPositionRoundTrip(t *testing.T) {
	p := New(kinematics.NewCoreXY(), driveNames)

	pos := []float64{25.0, -10.0, 3.0}
	if err := p.SetPosition(pos, cartSteps); err != nil {
		t.Fatalf("SetPosition failed: %v", err)
	}

	got := make([]float64, 3)
	p.CurrentPosition(cartSteps, got)
	for i := range pos {
		if diff := got[i] - pos[i]; diff > 0.01 || diff < -0.01 {
			t.Errorf("CurrentPosition[%d] = %v, want %v", i, got[i], pos[i])
		}
	}
}

func TestSetPositionRejectsUnreachable(t *testing.T) {
	p := New(kinematics.NewScara(), driveNames)
	if err := p.SetPosition([]float64{0.0, 0.0, 0.0}, scaraSteps); err == nil {
		t.Error("SetPosition at the fold singularity did not fail")
	}
}
