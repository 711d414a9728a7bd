package kinematics

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"kinema/motion/gcode"
)

// testScara builds a SCARA instance with 90mm arms and the given joint
// limits, applied through the normal parameter path.
func testScara(t *testing.T, line string) *ScaraKinematics {
	t.Helper()
	k := NewScara()
	cmd := parseTestCommand(t, line)
	var reply bytes.Buffer
	if _, err := k.SetOrReportParameters(669, cmd, &reply); err != nil {
		t.Fatalf("SetOrReportParameters(%q) failed: %v (%s)", line, err, reply.String())
	}
	return k
}

func parseTestCommand(t *testing.T, line string) *gcode.Command {
	t.Helper()
	cmd, err := gcode.NewParser().ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine(%q) failed: %v", line, err)
	}
	if cmd == nil {
		t.Fatalf("ParseLine(%q) returned no command", line)
	}
	return cmd
}

var scaraSteps = []float64{100.0, 100.0, 400.0} // steps/deg, steps/deg, steps/mm

func solveScara(t *testing.T, k *ScaraKinematics, x, y, z float64) []int32 {
	t.Helper()
	motorPos := make([]int32, 3)
	err := k.CartesianToMotorSteps([]float64{x, y, z}, scaraSteps, 3, motorPos)
	if err != nil {
		t.Fatalf("CartesianToMotorSteps(%.1f, %.1f, %.1f) failed: %v", x, y, z, err)
	}
	return motorPos
}

func TestScaraDefaults(t *testing.T) {
	k := NewScara()

	if k.Kind() != ScaraKind {
		t.Errorf("Kind() = %v, want %v", k.Kind(), ScaraKind)
	}
	if k.GetName(false) != "Scara" {
		t.Errorf("GetName(false) = %q, want %q", k.GetName(false), "Scara")
	}
	if !k.UseSegmentation() {
		t.Error("UseSegmentation() = false, want true")
	}
	if !k.UseRawG0() {
		t.Error("UseRawG0() = false, want true")
	}
	if k.ShowCoordinatesWhenNotHomed() {
		t.Error("ShowCoordinatesWhenNotHomed() = true, want false")
	}

	segs, err := k.SegmentsPerSecond()
	if err != nil || segs != 200.0 {
		t.Errorf("SegmentsPerSecond() = %v, %v; want 200, nil", segs, err)
	}
	minSeg, err := k.MinSegmentLength()
	if err != nil || minSeg != 0.2 {
		t.Errorf("MinSegmentLength() = %v, %v; want 0.2, nil", minSeg, err)
	}

	// 100mm arms with elbow limits of +-270 degrees: the worst-case elbow
	// fold has cos(270deg) = 0, so the inner bound is the proximal length
	// plus margin.
	if math.Abs(k.MinRadius()-101.0) > 1e-9 {
		t.Errorf("MinRadius() = %v, want 101", k.MinRadius())
	}
	if math.Abs(k.MaxRadius()-198.0) > 1e-9 {
		t.Errorf("MaxRadius() = %v, want 198", k.MaxRadius())
	}
}

func TestScaraParameterReport(t *testing.T) {
	k := testScara(t, "M669 P90 D90 A-90:90 B-140:140 C1:2:3")

	var reply bytes.Buffer
	changed, err := k.SetOrReportParameters(669, parseTestCommand(t, "M669"), &reply)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if changed {
		t.Error("bare M669 reported a parameter change")
	}
	want := "Printer mode is Scara with proximal arm 90.00mm range -90.0 to 90.0°" +
		", distal arm 90.00mm range -140.0 to 140.0°, crosstalk 1.0:2.0:3.0" +
		", segments/sec 200, min. segment length 0.20"
	if reply.String() != want {
		t.Errorf("report = %q, want %q", reply.String(), want)
	}
}

func TestScaraDerivedValues(t *testing.T) {
	k := testScara(t, "M669 P90 D90 B-140:140")

	// minRadius = (90 + 90*cos(140deg)) * 1.01, maxRadius = 180 * 0.99.
	wantMin := (90.0 + 90.0*math.Cos(140.0*DegreesToRadians)) * 1.01
	if math.Abs(k.MinRadius()-wantMin) > 1e-9 {
		t.Errorf("MinRadius() = %v, want %v", k.MinRadius(), wantMin)
	}
	if math.Abs(k.MaxRadius()-178.2) > 1e-9 {
		t.Errorf("MaxRadius() = %v, want 178.2", k.MaxRadius())
	}

	// Derived values follow every parameter change, even when only one
	// scalar is touched.
	var reply bytes.Buffer
	if _, err := k.SetOrReportParameters(669, parseTestCommand(t, "M669 P100"), &reply); err != nil {
		t.Fatalf("P change failed: %v", err)
	}
	if math.Abs(k.MaxRadius()-188.1) > 1e-9 {
		t.Errorf("MaxRadius() after P100 = %v, want 188.1", k.MaxRadius())
	}
}

func TestScaraRoundTrip(t *testing.T) {
	k := testScara(t, "M669 P90 D90 A-90:90 B-140:140")

	points := []struct{ x, y, z float64 }{
		{120.0, 0.0, 0.0},
		{100.0, 40.0, 5.0},
		{60.0, -30.0, 12.5},
		{30.0, 120.0, 0.0},
		{25.0, 5.0, 50.0},
	}
	for _, pt := range points {
		motorPos := solveScara(t, k, pt.x, pt.y, pt.z)

		machinePos := make([]float64, 3)
		k.MotorStepsToCartesian(motorPos, scaraSteps, 3, machinePos)

		// At 100 steps/degree one step moves the tool well under 0.05mm.
		if math.Abs(machinePos[XAxis]-pt.x) > 0.1 ||
			math.Abs(machinePos[YAxis]-pt.y) > 0.1 ||
			math.Abs(machinePos[ZAxis]-pt.z) > 0.01 {
			t.Errorf("round trip (%.1f, %.1f, %.1f) -> %v steps -> (%.4f, %.4f, %.4f)",
				pt.x, pt.y, pt.z, motorPos,
				machinePos[XAxis], machinePos[YAxis], machinePos[ZAxis])
		}
	}
}

func TestScaraRoundTripWithCrosstalk(t *testing.T) {
	k := testScara(t, "M669 P90 D90 A-90:90 B-140:140 C0.5:0.25:0.1")

	motorPos := solveScara(t, k, 100.0, 40.0, 10.0)
	machinePos := make([]float64, 3)
	k.MotorStepsToCartesian(motorPos, scaraSteps, 3, machinePos)

	if math.Abs(machinePos[XAxis]-100.0) > 0.1 ||
		math.Abs(machinePos[YAxis]-40.0) > 0.1 ||
		math.Abs(machinePos[ZAxis]-10.0) > 0.01 {
		t.Errorf("round trip with crosstalk -> (%.4f, %.4f, %.4f)",
			machinePos[XAxis], machinePos[YAxis], machinePos[ZAxis])
	}
}

func TestScaraCrosstalkCoupling(t *testing.T) {
	plain := testScara(t, "M669 P90 D90 A-90:90 B-140:140")
	coupled := testScara(t, "M669 P90 D90 A-90:90 B-140:140 C0.5:0.25:0.1")

	a := solveScara(t, plain, 100.0, 40.0, 10.0)
	b := solveScara(t, coupled, 100.0, 40.0, 10.0)

	if a[XAxis] != b[XAxis] {
		t.Errorf("X steps changed by crosstalk: %d vs %d", a[XAxis], b[XAxis])
	}
	// Y steps lose half the X steps, Z steps lose the weighted X and Y
	// contributions. Allow one step of rounding.
	wantY := float64(a[YAxis]) - 0.5*float64(b[XAxis])
	if math.Abs(float64(b[YAxis])-wantY) > 1.0 {
		t.Errorf("Y steps = %d, want about %.1f", b[YAxis], wantY)
	}
	wantZ := float64(a[ZAxis]) - 0.25*float64(b[XAxis]) - 0.1*float64(b[YAxis])
	if math.Abs(float64(b[ZAxis])-wantZ) > 1.0 {
		t.Errorf("Z steps = %d, want about %.1f", b[ZAxis], wantZ)
	}
}

func TestScaraUnreachable(t *testing.T) {
	k := testScara(t, "M669 P90 D90 A-90:90 B-140:140")

	cases := []struct {
		name string
		x, y float64
	}{
		{"beyond full reach", 181.0, 0.0},
		{"near full extension", 179.9, 0.0},
		{"fully folded", 0.0, 0.0},
	}
	motorPos := make([]int32, 3)
	for _, tc := range cases {
		err := k.CartesianToMotorSteps([]float64{tc.x, tc.y, 0.0}, scaraSteps, 3, motorPos)
		if !errors.Is(err, ErrUnreachable) {
			t.Errorf("%s (%.1f, %.1f): err = %v, want ErrUnreachable", tc.name, tc.x, tc.y, err)
		}
	}
}

func TestScaraBothArmModesExhausted(t *testing.T) {
	// Joint limits so tight that (30, 120) fails in both elbow
	// configurations: mode 0 needs theta about -29 degrees, mode 1 about
	// +123 degrees.
	k := testScara(t, "M669 P90 D90 A-20:90 B-170:170")

	motorPos := make([]int32, 3)
	err := k.CartesianToMotorSteps([]float64{30.0, 120.0, 0.0}, scaraSteps, 3, motorPos)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestScaraArmModeSticky(t *testing.T) {
	// (30, 120) needs theta about -29 degrees in the default mode, which is
	// below the -20 degree joint limit, so the solver must switch modes.
	// (100, 60) is solvable in both modes and must keep the switched mode.
	k := testScara(t, "M669 P90 D90 A-20:135 B-170:170")

	solveScara(t, k, 30.0, 120.0, 0.0)
	switched := solveScara(t, k, 100.0, 60.0, 0.0)

	fresh := testScara(t, "M669 P90 D90 A-20:135 B-170:170")
	def := solveScara(t, fresh, 100.0, 60.0, 0.0)

	if switched[XAxis] == def[XAxis] {
		t.Fatalf("arm mode did not stick: both solves gave X steps %d", def[XAxis])
	}

	// Both solutions still land on the same Cartesian point.
	machinePos := make([]float64, 3)
	k.MotorStepsToCartesian(switched, scaraSteps, 3, machinePos)
	if math.Abs(machinePos[XAxis]-100.0) > 0.1 || math.Abs(machinePos[YAxis]-60.0) > 0.1 {
		t.Errorf("switched-mode solution lands at (%.3f, %.3f), want (100, 60)",
			machinePos[XAxis], machinePos[YAxis])
	}

	// Resetting restores the default elbow configuration.
	k.ResetArmMode()
	reset := solveScara(t, k, 100.0, 60.0, 0.0)
	if reset[XAxis] != def[XAxis] {
		t.Errorf("after reset X steps = %d, want %d", reset[XAxis], def[XAxis])
	}
}

func TestScaraIsReachable(t *testing.T) {
	k := testScara(t, "M669 P90 D90 B-140:140")

	cases := []struct {
		x, y float64
		want bool
	}{
		{120.0, 0.0, true},
		{100.0, 40.0, true},
		{178.0, 0.0, true},
		{179.0, 0.0, false},  // beyond maxRadius
		{10.0, 0.0, false},   // inside minRadius
		{0.0, 0.0, false},    // origin
		{-50.0, 0.0, false},  // behind the shoulder
		{-50.0, 90.0, false}, // behind the shoulder, in annulus
	}
	for _, tc := range cases {
		if got := k.IsReachable(tc.x, tc.y); got != tc.want {
			t.Errorf("IsReachable(%.1f, %.1f) = %v, want %v", tc.x, tc.y, got, tc.want)
		}
	}
}

func TestScaraLimitPosition(t *testing.T) {
	k := testScara(t, "M669 P90 D90 B-140:140")
	homed := MakeAxesBitmap(XAxis, YAxis, ZAxis)
	minR := k.MinRadius()
	maxR := k.MaxRadius()

	t.Run("outer boundary scales radially", func(t *testing.T) {
		coords := []float64{200.0, 150.0, 0.0}
		k.LimitPosition(coords, 3, homed)
		r := math.Hypot(coords[XAxis], coords[YAxis])
		if math.Abs(r-maxR) > 1e-6 {
			t.Errorf("clamped radius = %v, want %v", r, maxR)
		}
		// Direction preserved.
		if math.Abs(coords[YAxis]/coords[XAxis]-150.0/200.0) > 1e-6 {
			t.Errorf("clamp changed direction: (%v, %v)", coords[XAxis], coords[YAxis])
		}
	})

	t.Run("inner boundary upper half lands on arc", func(t *testing.T) {
		coords := []float64{10.0, 10.0, 0.0}
		k.LimitPosition(coords, 3, homed)
		r := math.Hypot(coords[XAxis], coords[YAxis])
		if math.Abs(r-minR) > 1e-6 {
			t.Errorf("clamped radius = %v, want %v", r, minR)
		}
		if coords[XAxis] < 0.0 || coords[YAxis] < 0.0 {
			t.Errorf("clamp left the quadrant: (%v, %v)", coords[XAxis], coords[YAxis])
		}
	})

	t.Run("origin maps to top of arc", func(t *testing.T) {
		coords := []float64{0.0, 0.0, 0.0}
		k.LimitPosition(coords, 3, homed)
		if math.Abs(coords[XAxis]) > 1e-6 || math.Abs(coords[YAxis]-minR) > 1e-6 {
			t.Errorf("origin clamped to (%v, %v), want (0, %v)", coords[XAxis], coords[YAxis], minR)
		}
	})

	t.Run("inner boundary lower half stays continuous", func(t *testing.T) {
		// Deep in the lower dead zone the point unwraps past the quarter
		// arc onto the vertical boundary line.
		arcLength := math.Pi / 2.0 * minR
		coords := []float64{minR * 0.9, -3.0 * arcLength, 0.0}
		k.LimitPosition(coords, 3, homed)
		if math.Abs(coords[XAxis]-minR) > 1e-6 {
			t.Errorf("deep lower clamp X = %v, want %v", coords[XAxis], minR)
		}
		wantY := -0.9*(3.0*arcLength+arcLength) + arcLength
		if math.Abs(coords[YAxis]-wantY) > 1e-6 {
			t.Errorf("deep lower clamp Y = %v, want %v", coords[YAxis], wantY)
		}

		// Shallow lower-half points wrap onto the arc itself.
		coords = []float64{5.0, -5.0, 0.0}
		k.LimitPosition(coords, 3, homed)
		r := math.Hypot(coords[XAxis], coords[YAxis])
		if math.Abs(r-minR) > 1e-6 {
			t.Errorf("shallow lower clamp radius = %v, want %v", r, minR)
		}
	})

	t.Run("reachable positions untouched", func(t *testing.T) {
		coords := []float64{120.0, 30.0, 7.0}
		k.LimitPosition(coords, 3, homed)
		if coords[XAxis] != 120.0 || coords[YAxis] != 30.0 || coords[ZAxis] != 7.0 {
			t.Errorf("reachable position moved: %v", coords)
		}
	})
}

func TestScaraBadParameterRejected(t *testing.T) {
	k := NewScara()
	before := k.MaxRadius()

	var reply bytes.Buffer
	_, err := k.SetOrReportParameters(669, parseTestCommand(t, "M669 A-90"), &reply)
	if err == nil {
		t.Fatal("expected error for wrong A array arity")
	}
	if k.MaxRadius() != before {
		t.Error("failed parameter change altered derived values")
	}
}

func TestScaraDerivedValuesFollowPartialParameterError(t *testing.T) {
	k := NewScara()

	// The valid P is applied before the malformed A is reached, so the
	// derived radii must reflect the new arm length despite the error.
	var reply bytes.Buffer
	_, err := k.SetOrReportParameters(669, parseTestCommand(t, "M669 P120 A-90"), &reply)
	if err == nil {
		t.Fatal("expected error for wrong A array arity")
	}
	wantMax := (120.0 + 100.0) * 0.99
	if math.Abs(k.MaxRadius()-wantMax) > 1e-9 {
		t.Errorf("MaxRadius() = %v, want %v after partial parameter error", k.MaxRadius(), wantMax)
	}

	// The next solve must use the new geometry: (210, 0) is only within
	// reach of the 120mm proximal arm.
	motorPos := make([]int32, 3)
	if err := k.CartesianToMotorSteps([]float64{210, 0, 0}, scaraSteps, 3, motorPos); err != nil {
		t.Errorf("solve after partial parameter error failed: %v", err)
	}
}
