// Linear delta kinematics: three towers at 120-degree intervals, each with
// a carriage connected to the effector by a fixed-length diagonal rod.
package kinematics

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"kinema/motion/gcode"
	"kinema/motion/probe"
)

// Delta defaults for a mid-size machine, adjustable with M665/M666.
const (
	defaultDeltaDiagonal    = 215.0
	defaultDeltaRadius      = 105.0
	defaultDeltaHomedHeight = 240.0
	defaultDeltaPrintRadius = 85.0
)

// Tower angular positions before corrections, degrees from the X axis.
var deltaTowerAngles = [3]float64{210.0, 330.0, 90.0}

// LinearDeltaKinematics implements the contract for linear delta machines.
type LinearDeltaKinematics struct {
	base

	// Primary parameters (M665/M666).
	diagonal         float64    // rod length, mm
	radius           float64    // delta radius, mm
	homedHeight      float64    // effector height after homing, mm
	printRadius      float64    // usable bed radius, mm
	angleCorrections [3]float64 // per-tower angular corrections, degrees
	endstopAdj       [3]float64 // per-tower endstop corrections, mm
	xTilt            float64    // bed tilt fraction along X
	yTilt            float64    // bed tilt fraction along Y

	// Derived values, recomputed only by recalc.
	towers          [3][2]float64
	diagonalSquared float64
}

// NewLinearDelta creates a delta kinematics instance with default
// parameters. Delta moves are solved per step by the motion layer, so no
// segmentation policy applies.
func NewLinearDelta() *LinearDeltaKinematics {
	k := &LinearDeltaKinematics{
		base:        newBase(LinearDeltaKind, SegmentFreeDeltaMotion),
		diagonal:    defaultDeltaDiagonal,
		radius:      defaultDeltaRadius,
		homedHeight: defaultDeltaHomedHeight,
		printRadius: defaultDeltaPrintRadius,
	}
	k.recalc()
	return k
}

// GetName returns the geometry name.
func (k *LinearDeltaKinematics) GetName(forStatusReport bool) string {
	if forStatusReport {
		return "delta"
	}
	return "Linear delta"
}

// CartesianToMotorSteps solves the per-tower carriage heights:
// carriage = z + sqrt(rod^2 - (towerX-x)^2 - (towerY-y)^2).
func (k *LinearDeltaKinematics) CartesianToMotorSteps(machinePos, stepsPerUnit []float64, numAxes int, motorPos []int32) error {
	x := machinePos[XAxis]
	y := machinePos[YAxis]
	z := machinePos[ZAxis]
	for i := 0; i < 3; i++ {
		dx := k.towers[i][0] - x
		dy := k.towers[i][1] - y
		radicand := k.diagonalSquared - dx*dx - dy*dy
		if radicand <= 0 {
			return fmt.Errorf("%w: (%.3f, %.3f) beyond rod reach of tower %d", ErrUnreachable, x, y, i)
		}
		carriage := z + math.Sqrt(radicand)
		motorPos[i] = stepRound((carriage + k.endstopAdj[i]) * stepsPerUnit[i])
	}
	passThroughSteps(machinePos, stepsPerUnit, ZAxis+1, numAxes, motorPos)
	return nil
}

// MotorStepsToCartesian finds the effector position by trilateration of the
// three carriage-centered rod spheres.
func (k *LinearDeltaKinematics) MotorStepsToCartesian(motorPos []int32, stepsPerUnit []float64, numDrives int, machinePos []float64) {
	var carriages [3]float64
	for i := 0; i < 3; i++ {
		carriages[i] = float64(motorPos[i])/stepsPerUnit[i] - k.endstopAdj[i]
	}
	x, y, z := k.trilaterate(carriages)
	machinePos[XAxis] = x
	machinePos[YAxis] = y
	machinePos[ZAxis] = z
	passThroughCartesian(motorPos, stepsPerUnit, ZAxis+1, numDrives, machinePos)
}

// trilaterate intersects the three spheres centered on the tower carriages.
func (k *LinearDeltaKinematics) trilaterate(carriages [3]float64) (float64, float64, float64) {
	p1 := [3]float64{k.towers[0][0], k.towers[0][1], carriages[0]}
	p2 := [3]float64{k.towers[1][0], k.towers[1][1], carriages[1]}
	p3 := [3]float64{k.towers[2][0], k.towers[2][1], carriages[2]}

	s21 := [3]float64{p2[0] - p1[0], p2[1] - p1[1], p2[2] - p1[2]}
	s31 := [3]float64{p3[0] - p1[0], p3[1] - p1[1], p3[2] - p1[2]}

	d := math.Sqrt(s21[0]*s21[0] + s21[1]*s21[1] + s21[2]*s21[2])
	ex := [3]float64{s21[0] / d, s21[1] / d, s21[2] / d}

	i := ex[0]*s31[0] + ex[1]*s31[1] + ex[2]*s31[2]
	vy := [3]float64{s31[0] - ex[0]*i, s31[1] - ex[1]*i, s31[2] - ex[2]*i}
	vyMag := math.Sqrt(vy[0]*vy[0] + vy[1]*vy[1] + vy[2]*vy[2])
	ey := [3]float64{vy[0] / vyMag, vy[1] / vyMag, vy[2] / vyMag}

	ez := [3]float64{
		ex[1]*ey[2] - ex[2]*ey[1],
		ex[2]*ey[0] - ex[0]*ey[2],
		ex[0]*ey[1] - ex[1]*ey[0],
	}

	j := ey[0]*s31[0] + ey[1]*s31[1] + ey[2]*s31[2]

	// All rods have the same length, so the sphere radii are equal.
	r2 := k.diagonalSquared
	x := (d * d) / (2.0 * d)
	y := (-x*x + (x-i)*(x-i) + j*j) / (2.0 * j)
	z := -math.Sqrt(r2 - x*x - y*y)

	return p1[0] + ex[0]*x + ey[0]*y + ez[0]*z,
		p1[1] + ex[1]*x + ey[1]*y + ez[1]*z,
		p1[2] + ex[2]*x + ey[2]*y + ez[2]*z
}

// SetOrReportParameters handles M665 (geometry) and M666 (endstop
// corrections and bed tilt) for the delta geometry.
func (k *LinearDeltaKinematics) SetOrReportParameters(mCode int, cmd *gcode.Command, reply *bytes.Buffer) (bool, error) {
	switch mCode {
	case 665:
		seen := false
		err := k.setGeometryParameters(cmd, &seen)

		// Letters before a malformed one stay applied, so the tower
		// positions must follow the primary parameters on the error path
		// too.
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
			"Diagonal %.3f, delta radius %.3f, homed height %.3f, bed radius %.1f"+
				", tower corrections %.2f:%.2f:%.2f°",
			k.diagonal, k.radius, k.homedHeight, k.printRadius,
			k.angleCorrections[0], k.angleCorrections[1], k.angleCorrections[2])
		return false, nil

	case 666:
		seen := false
		if err := cmd.TryFloat('X', &k.endstopAdj[0], &seen); err != nil {
			return true, k.paramError(err, reply)
		}
		if err := cmd.TryFloat('Y', &k.endstopAdj[1], &seen); err != nil {
			return true, k.paramError(err, reply)
		}
		if err := cmd.TryFloat('Z', &k.endstopAdj[2], &seen); err != nil {
			return true, k.paramError(err, reply)
		}
		var tiltPercent float64
		tiltSeen := false
		if err := cmd.TryFloat('A', &tiltPercent, &tiltSeen); err != nil {
			return true, k.paramError(err, reply)
		}
		if tiltSeen {
			k.xTilt = tiltPercent / 100.0
			seen = true
		}
		tiltSeen = false
		if err := cmd.TryFloat('B', &tiltPercent, &tiltSeen); err != nil {
			return true, k.paramError(err, reply)
		}
		if tiltSeen {
			k.yTilt = tiltPercent / 100.0
			seen = true
		}
		if seen {
			return true, nil
		}
		fmt.Fprintf(reply,
			"Endstop adjustments X%.2f Y%.2f Z%.2f, tilt X%.2f%% Y%.2f%%",
			k.endstopAdj[0], k.endstopAdj[1], k.endstopAdj[2],
			k.xTilt*100.0, k.yTilt*100.0)
		return false, nil
	}
	return k.base.SetOrReportParameters(mCode, cmd, reply)
}

// setGeometryParameters applies the M665 letters in order, stopping at the
// first malformed one.
func (k *LinearDeltaKinematics) setGeometryParameters(cmd *gcode.Command, seen *bool) error {
	if err := cmd.TryFloat('L', &k.diagonal, seen); err != nil {
		return err
	}
	if err := cmd.TryFloat('R', &k.radius, seen); err != nil {
		return err
	}
	if err := cmd.TryFloat('H', &k.homedHeight, seen); err != nil {
		return err
	}
	if err := cmd.TryFloat('B', &k.printRadius, seen); err != nil {
		return err
	}
	if err := cmd.TryFloat('X', &k.angleCorrections[0], seen); err != nil {
		return err
	}
	if err := cmd.TryFloat('Y', &k.angleCorrections[1], seen); err != nil {
		return err
	}
	return cmd.TryFloat('Z', &k.angleCorrections[2], seen)
}

func (k *LinearDeltaKinematics) paramError(err error, reply *bytes.Buffer) error {
	fmt.Fprintf(reply, "Error: %v", err)
	return err
}

// ShowCoordinatesWhenNotHomed is false: carriage reference positions are
// unknown before homing.
func (k *LinearDeltaKinematics) ShowCoordinatesWhenNotHomed() bool {
	return false
}

// IsReachable restricts targets to the circular printable area.
func (k *LinearDeltaKinematics) IsReachable(x, y float64) bool {
	return math.Hypot(x, y) <= k.printRadius
}

// LimitPosition clamps XY radially to the printable area and Z to the
// homed-height range.
func (k *LinearDeltaKinematics) LimitPosition(coords []float64, numAxes int, axesHomed AxesBitmap) {
	if axesHomed.Has(XAxis) && axesHomed.Has(YAxis) {
		r := math.Hypot(coords[XAxis], coords[YAxis])
		if r > k.printRadius {
			scale := k.printRadius / r
			coords[XAxis] *= scale
			coords[YAxis] *= scale
		}
	}
	if axesHomed.Has(ZAxis) {
		if coords[ZAxis] < 0 {
			coords[ZAxis] = 0
		} else if coords[ZAxis] > k.homedHeight {
			coords[ZAxis] = k.homedHeight
		}
	}
}

// HomedMotorSteps returns the carriage step positions after homing, with
// the effector centred at the homed height.
func (k *LinearDeltaKinematics) HomedMotorSteps(stepsPerUnit []float64, motorPos []int32) {
	for i := 0; i < 3; i++ {
		r2 := k.towers[i][0]*k.towers[i][0] + k.towers[i][1]*k.towers[i][1]
		carriage := k.homedHeight + math.Sqrt(k.diagonalSquared-r2)
		motorPos[i] = stepRound((carriage + k.endstopAdj[i]) * stepsPerUnit[i])
	}
}

// AxesToHomeBeforeProbing requires all three towers homed.
func (k *LinearDeltaKinematics) AxesToHomeBeforeProbing() AxesBitmap {
	return MakeAxesBitmap(XAxis, YAxis, ZAxis)
}

// SupportsAutoCalibration is true for delta.
func (k *LinearDeltaKinematics) SupportsAutoCalibration() bool {
	return true
}

// DoAutoCalibration adjusts the per-tower endstop corrections (3 factors)
// and optionally the bed tilt (5 factors) from probe deviations. The full
// least-squares geometry solve (rod length, delta radius) is left to an
// external calibration tool.
func (k *LinearDeltaKinematics) DoAutoCalibration(numFactors int, points *probe.PointSet, reply *bytes.Buffer) error {
	if numFactors != 3 && numFactors != 5 {
		return fmt.Errorf("delta calibration requires 3 or 5 factors, got %d", numFactors)
	}
	if points.Len() < numFactors {
		return fmt.Errorf("delta calibration with %d factors requires at least %d probe points, got %d",
			numFactors, numFactors, points.Len())
	}

	before := points.RMSError()

	// Per-tower weighted mean of the deviations: points in a tower's
	// direction weigh most toward that tower's endstop correction.
	var corrections [3]float64
	for i := 0; i < 3; i++ {
		towerX, towerY := k.towers[i][0], k.towers[i][1]
		towerR := math.Hypot(towerX, towerY)
		sum, weightSum := 0.0, 0.0
		for p := 0; p < points.Len(); p++ {
			pt := points.Point(p)
			w := 0.5
			r := math.Hypot(pt.X, pt.Y)
			if r > 0 && towerR > 0 {
				cosA := (pt.X*towerX + pt.Y*towerY) / (r * towerR)
				w = (1.0 + cosA) / 2.0
			}
			sum += w * pt.ZError
			weightSum += w
		}
		if weightSum > 0 {
			corrections[i] = sum / weightSum
		}
	}
	for i := 0; i < 3; i++ {
		k.endstopAdj[i] -= corrections[i]
	}

	if numFactors == 5 {
		// Closed-form least-squares slopes for the bed tilt.
		mean := points.MeanError()
		sxx, sxe, syy, sye := 0.0, 0.0, 0.0, 0.0
		for p := 0; p < points.Len(); p++ {
			pt := points.Point(p)
			sxx += pt.X * pt.X
			sxe += pt.X * (pt.ZError - mean)
			syy += pt.Y * pt.Y
			sye += pt.Y * (pt.ZError - mean)
		}
		if sxx > 0 {
			k.xTilt += sxe / sxx
		}
		if syy > 0 {
			k.yTilt += sye / syy
		}
	}

	after := k.residualRMS(points, corrections, numFactors)
	fmt.Fprintf(reply, "Calibrated %d factors using %d points, deviation before %.3f after %.3f",
		numFactors, points.Len(), before, after)
	return nil
}

// residualRMS estimates the remaining deviation after applying the computed
// corrections to the probe results.
func (k *LinearDeltaKinematics) residualRMS(points *probe.PointSet, corrections [3]float64, numFactors int) float64 {
	if points.Len() == 0 {
		return 0
	}
	mean := points.MeanError()
	sum := 0.0
	for p := 0; p < points.Len(); p++ {
		pt := points.Point(p)
		predicted := 0.0
		r := math.Hypot(pt.X, pt.Y)
		weightSum := 0.0
		var weights [3]float64
		for i := 0; i < 3; i++ {
			towerX, towerY := k.towers[i][0], k.towers[i][1]
			towerR := math.Hypot(towerX, towerY)
			w := 0.5
			if r > 0 && towerR > 0 {
				cosA := (pt.X*towerX + pt.Y*towerY) / (r * towerR)
				w = (1.0 + cosA) / 2.0
			}
			weights[i] = w
			weightSum += w
		}
		for i := 0; i < 3; i++ {
			predicted += corrections[i] * weights[i] / weightSum
		}
		residual := pt.ZError - predicted
		if numFactors == 5 {
			residual -= mean
		}
		sum += residual * residual
	}
	return math.Sqrt(sum / float64(points.Len()))
}

// SetCalibrationDefaults zeroes the values changed by auto calibration.
func (k *LinearDeltaKinematics) SetCalibrationDefaults() {
	k.endstopAdj = [3]float64{}
	k.xTilt = 0
	k.yTilt = 0
}

// WriteCalibrationParameters emits the M665/M666 commands that recreate the
// calibrated state.
func (k *LinearDeltaKinematics) WriteCalibrationParameters(w io.Writer) error {
	_, err := fmt.Fprintf(w, "M665 L%.3f R%.3f H%.3f B%.1f X%.3f Y%.3f Z%.3f\n",
		k.diagonal, k.radius, k.homedHeight, k.printRadius,
		k.angleCorrections[0], k.angleCorrections[1], k.angleCorrections[2])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "M666 X%.3f Y%.3f Z%.3f A%.2f B%.2f\n",
		k.endstopAdj[0], k.endstopAdj[1], k.endstopAdj[2],
		k.xTilt*100.0, k.yTilt*100.0)
	return err
}

// GetTiltCorrection returns the calibrated bed tilt fraction.
func (k *LinearDeltaKinematics) GetTiltCorrection(axis int) float64 {
	switch axis {
	case XAxis:
		return k.xTilt
	case YAxis:
		return k.yTilt
	}
	return 0
}

// recalc recomputes the tower positions and cached squares after any raw
// parameter change.
func (k *LinearDeltaKinematics) recalc() {
	for i := 0; i < 3; i++ {
		angle := (deltaTowerAngles[i] + k.angleCorrections[i]) * DegreesToRadians
		k.towers[i][0] = math.Cos(angle) * k.radius
		k.towers[i][1] = math.Sin(angle) * k.radius
	}
	k.diagonalSquared = k.diagonal * k.diagonal
}
