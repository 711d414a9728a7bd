// SCARA kinematics: a two-link rotary arm with an optional cross-talk
// coupled Z axis.
//
// Conventions: theta is the proximal arm angle relative to the X axis, psi
// is the distal arm angle relative to the X axis, so the elbow angle is
// (psi - theta). The X and Y steps-per-unit entries are interpreted as
// steps per degree of theta and psi respectively.
package kinematics

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"kinema/motion/gcode"
)

// SCARA defaults, applied by NewScara and restorable with M669.
const (
	defaultScaraSegmentsPerSecond = 200.0
	defaultScaraMinSegmentLength  = 0.2
	defaultProximalArmLength      = 100.0
	defaultDistalArmLength        = 100.0
	defaultMinTheta               = -180.0
	defaultMaxTheta               = 180.0
	defaultMinPhiMinusTheta       = -270.0
	defaultMaxPhiMinusTheta       = 270.0
)

// ScaraKinematics implements the kinematics contract for a SCARA arm.
type ScaraKinematics struct {
	base

	// Primary parameters, mutated only through SetOrReportParameters.
	proximalArmLength   float64
	distalArmLength     float64
	thetaLimits         [2]float64 // proximal joint angle range, degrees
	phiMinusThetaLimits [2]float64 // elbow angle range, degrees
	crosstalk           [3]float64 // X->Y, X->Z, Y->Z step coupling

	// Derived parameters, recomputed only by recalc.
	minRadius                float64
	maxRadius                float64
	proximalArmLengthSquared float64
	distalArmLengthSquared   float64

	// isDefaultArmMode records which of the two elbow configurations the
	// last successful inverse solve chose. It outlives the call so that
	// successive nearby targets keep the same elbow and the arm does not
	// flip between solutions mid-print.
	isDefaultArmMode bool
}

// NewScara creates a SCARA kinematics instance with default parameters.
func NewScara() *ScaraKinematics {
	k := &ScaraKinematics{
		base: newSegmentedBase(ScaraKind,
			defaultScaraSegmentsPerSecond, defaultScaraMinSegmentLength, true),
		proximalArmLength: defaultProximalArmLength,
		distalArmLength:   defaultDistalArmLength,
		isDefaultArmMode:  true,
	}
	k.thetaLimits = [2]float64{defaultMinTheta, defaultMaxTheta}
	k.phiMinusThetaLimits = [2]float64{defaultMinPhiMinusTheta, defaultMaxPhiMinusTheta}
	k.recalc()
	return k
}

// GetName returns the geometry name.
func (k *ScaraKinematics) GetName(forStatusReport bool) string {
	return "Scara"
}

// CartesianToMotorSteps runs the inverse kinematics. There are two candidate
// solutions ("arm modes") for most targets; the mode chosen by the previous
// successful solve is tried first so the elbow configuration stays sticky.
func (k *ScaraKinematics) CartesianToMotorSteps(machinePos, stepsPerUnit []float64, numAxes int, motorPos []int32) error {
	x := machinePos[XAxis]
	y := machinePos[YAxis]
	cosPsiMinusTheta := (x*x + y*y - k.proximalArmLengthSquared - k.distalArmLengthSquared) /
		(2.0 * k.proximalArmLength * k.distalArmLength)

	// The arm position is undefined when |cos| >= 1, and ill-conditioned
	// well before that; the 0.01 band is a deliberate safety margin around
	// the full-extension singularity.
	square := 1.0 - cosPsiMinusTheta*cosPsiMinusTheta
	if square < 0.01 {
		return fmt.Errorf("%w: (%.3f, %.3f) at or beyond arm reach", ErrUnreachable, x, y)
	}

	sinPsiMinusTheta := math.Sqrt(square)
	psiMinusTheta := math.Atan2(sinPsiMinusTheta, cosPsiMinusTheta)
	k1 := k.proximalArmLength + k.distalArmLength*cosPsiMinusTheta
	k2 := k.distalArmLength * sinPsiMinusTheta

	thetaMin := k.thetaLimits[0] * DegreesToRadians
	thetaMax := k.thetaLimits[1] * DegreesToRadians

	// Try the current arm mode, then the other one.
	var theta float64
	switchedMode := false
	for {
		if k.isDefaultArmMode {
			// Arm mode 0: distal arm rotated anticlockwise relative to the
			// proximal arm.
			theta = math.Atan2(k2*x-k1*y, k1*x+k2*y)
			if theta >= thetaMin {
				break
			}
		} else {
			// Arm mode 1: distal arm rotated clockwise.
			theta = math.Atan2(k2*x+k1*y, k1*x-k2*y)
			if theta <= thetaMax {
				psiMinusTheta = -psiMinusTheta
				break
			}
		}

		if switchedMode {
			return fmt.Errorf("%w: (%.3f, %.3f) outside joint limits in both arm modes", ErrUnreachable, x, y)
		}
		k.isDefaultArmMode = !k.isDefaultArmMode
		switchedMode = true
	}

	psi := theta + psiMinusTheta
	motorPos[XAxis] = stepRound(theta * RadiansToDegrees * stepsPerUnit[XAxis])
	motorPos[YAxis] = stepRound(psi*RadiansToDegrees*stepsPerUnit[YAxis] -
		k.crosstalk[0]*float64(motorPos[XAxis]))
	motorPos[ZAxis] = stepRound(machinePos[ZAxis]*stepsPerUnit[ZAxis] -
		float64(motorPos[XAxis])*k.crosstalk[1] -
		float64(motorPos[YAxis])*k.crosstalk[2])
	passThroughSteps(machinePos, stepsPerUnit, ZAxis+1, numAxes, motorPos)
	return nil
}

// MotorStepsToCartesian runs the forward kinematics: the exact algebraic
// inverse of the step conversion including the cross-talk coupling.
func (k *ScaraKinematics) MotorStepsToCartesian(motorPos []int32, stepsPerUnit []float64, numDrives int, machinePos []float64) {
	arm1Angle := float64(motorPos[XAxis]) / stepsPerUnit[XAxis] * DegreesToRadians
	arm2Angle := (float64(motorPos[YAxis]) + float64(motorPos[XAxis])*k.crosstalk[0]) /
		stepsPerUnit[YAxis] * DegreesToRadians

	machinePos[XAxis] = math.Cos(arm1Angle)*k.proximalArmLength + math.Cos(arm2Angle)*k.distalArmLength
	machinePos[YAxis] = math.Sin(arm1Angle)*k.proximalArmLength + math.Sin(arm2Angle)*k.distalArmLength

	// On some machines the X and Y arm motors also deflect the Z height.
	machinePos[ZAxis] = (float64(motorPos[ZAxis]) +
		float64(motorPos[XAxis])*k.crosstalk[1] +
		float64(motorPos[YAxis])*k.crosstalk[2]) / stepsPerUnit[ZAxis]
	passThroughCartesian(motorPos, stepsPerUnit, ZAxis+1, numDrives, machinePos)
}

// SetOrReportParameters handles M669 for the SCARA geometry. Any derived
// values are recomputed once at the end of parameter handling, regardless of
// whether scalars, arrays or both were set.
func (k *ScaraKinematics) SetOrReportParameters(mCode int, cmd *gcode.Command, reply *bytes.Buffer) (bool, error) {
	if mCode != 669 {
		return k.base.SetOrReportParameters(mCode, cmd, reply)
	}

	seen := false
	err := k.setParameters(cmd, &seen)

	// Letters before a malformed one stay applied, so the derived values
	// must follow the primary parameters on the error path too.
	if seen {
		k.recalc()
	}
	if err != nil {
		return true, k.paramError(err, reply)
	}
	if seen {
		return true, nil
	}

	fmt.Fprintf(reply,
		"Printer mode is Scara with proximal arm %.2fmm range %.1f to %.1f°"+
			", distal arm %.2fmm range %.1f to %.1f°, crosstalk %.1f:%.1f:%.1f"+
			", segments/sec %d, min. segment length %.2f",
		k.proximalArmLength, k.thetaLimits[0], k.thetaLimits[1],
		k.distalArmLength, k.phiMinusThetaLimits[0], k.phiMinusThetaLimits[1],
		k.crosstalk[0], k.crosstalk[1], k.crosstalk[2],
		int(k.segmentsPerSec), k.minSegLength)
	return false, nil
}

// setParameters applies the M669 letters in order, stopping at the first
// malformed one.
func (k *ScaraKinematics) setParameters(cmd *gcode.Command, seen *bool) error {
	if err := cmd.TryFloat('P', &k.proximalArmLength, seen); err != nil {
		return err
	}
	if err := cmd.TryFloat('D', &k.distalArmLength, seen); err != nil {
		return err
	}
	if err := cmd.TryFloat('S', &k.segmentsPerSec, seen); err != nil {
		return err
	}
	if err := cmd.TryFloat('T', &k.minSegLength, seen); err != nil {
		return err
	}
	if err := cmd.TryFloatArray('A', 2, k.thetaLimits[:], seen); err != nil {
		return err
	}
	if err := cmd.TryFloatArray('B', 2, k.phiMinusThetaLimits[:], seen); err != nil {
		return err
	}
	return cmd.TryFloatArray('C', 3, k.crosstalk[:], seen)
}

func (k *ScaraKinematics) paramError(err error, reply *bytes.Buffer) error {
	fmt.Fprintf(reply, "Error: %v", err)
	return err
}

// ShowCoordinatesWhenNotHomed is false: the angular reference positions are
// unknown before homing.
func (k *ScaraKinematics) ShowCoordinatesWhenNotHomed() bool {
	return false
}

// IsReachable restricts targets to the reachable annulus in the half-plane
// the arm can cover.
func (k *ScaraKinematics) IsReachable(x, y float64) bool {
	r := math.Hypot(x, y)
	return r >= k.minRadius && r <= k.maxRadius && x > 0.0
}

// LimitPosition clamps the target onto the reachable workspace. Near the
// inner boundary the point is blended onto the minRadius arc through an
// arc-length parameterization instead of snapped, so that a path crossing
// the boundary stays continuous.
func (k *ScaraKinematics) LimitPosition(coords []float64, numAxes int, axesHomed AxesBitmap) {
	const halfPi = math.Pi / 2.0

	x := coords[XAxis]
	y := coords[YAxis]
	r := math.Hypot(x, y)
	arcLength := halfPi * k.minRadius

	switch {
	case r < k.minRadius && y >= 0.0:
		// Inner boundary, upper half: preserve the proportional horizontal
		// position, mapped onto the arc.
		xmax := math.Sqrt(k.minRadius*k.minRadius - y*y)
		arc := halfPi - math.Atan2(y, xmax)
		p := x / xmax
		pArcLength := arc * p
		coords[XAxis] = k.minRadius * math.Cos(halfPi-pArcLength)
		coords[YAxis] = k.minRadius * math.Sin(halfPi-pArcLength)

	case (r < k.minRadius || math.Abs(x) < k.minRadius) && y < 0.0:
		// Inner boundary, lower half: blend linearly beyond the arc, wrap
		// onto the arc within it.
		length := -y + arcLength
		p := x / k.minRadius
		subLength := p * length
		if math.Abs(subLength) > arcLength {
			coords[XAxis] = math.Copysign(k.minRadius, x)
			coords[YAxis] = -math.Abs(subLength) + arcLength
		} else {
			angle := halfPi * (1.0 - subLength/arcLength)
			coords[XAxis] = k.minRadius * math.Cos(angle)
			coords[YAxis] = k.minRadius * math.Sin(angle)
		}

	case r > k.maxRadius:
		// Outer boundary: scale radially.
		coords[XAxis] = x * k.maxRadius / r
		coords[YAxis] = y * k.maxRadius / r
	}
}

// WriteCalibrationParameters writes nothing: SCARA has no auto-calibrated
// parameters.
func (k *ScaraKinematics) WriteCalibrationParameters(w io.Writer) error {
	return nil
}

// HomedMotorSteps returns the motor step positions at the homing switches:
// both joints at their lower angle limits.
func (k *ScaraKinematics) HomedMotorSteps(stepsPerUnit []float64, motorPos []int32) {
	theta := k.thetaLimits[0]
	psi := theta + k.phiMinusThetaLimits[0]
	motorPos[XAxis] = stepRound(theta * stepsPerUnit[XAxis])
	motorPos[YAxis] = stepRound(psi*stepsPerUnit[YAxis] - k.crosstalk[0]*float64(motorPos[XAxis]))
	motorPos[ZAxis] = stepRound(-float64(motorPos[XAxis])*k.crosstalk[1] -
		float64(motorPos[YAxis])*k.crosstalk[2])
}

// ResetArmMode restores the preferred arm mode to the default elbow
// configuration. Called after homing so behavior is deterministic across a
// configuration change.
func (k *ScaraKinematics) ResetArmMode() {
	k.isDefaultArmMode = true
}

// MinRadius returns the derived inner workspace bound.
func (k *ScaraKinematics) MinRadius() float64 { return k.minRadius }

// MaxRadius returns the derived outer workspace bound.
func (k *ScaraKinematics) MaxRadius() float64 { return k.maxRadius }

// recalc recomputes the derived parameters. It is the only place they are
// computed; every raw parameter change goes through it before the next
// conversion. The 1.01 and 0.99 factors are safety margins against
// numerical edge effects at the workspace boundary.
func (k *ScaraKinematics) recalc() {
	cosMin := math.Cos(k.phiMinusThetaLimits[0] * DegreesToRadians)
	cosMax := math.Cos(k.phiMinusThetaLimits[1] * DegreesToRadians)
	k.minRadius = (k.proximalArmLength + k.distalArmLength*math.Max(cosMin, cosMax)) * 1.01
	k.maxRadius = (k.proximalArmLength + k.distalArmLength) * 0.99
	k.proximalArmLengthSquared = k.proximalArmLength * k.proximalArmLength
	k.distalArmLengthSquared = k.distalArmLength * k.distalArmLength
}
