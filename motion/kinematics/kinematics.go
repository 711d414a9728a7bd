// Package kinematics converts between machine coordinates and motor step
// positions for the supported machine geometries.
package kinematics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"kinema/motion/gcode"
	"kinema/motion/probe"
)

// Axis indices into machine position vectors.
const (
	XAxis = 0
	YAxis = 1
	ZAxis = 2

	// MinAxes is the smallest axis/drive count any conversion accepts.
	MinAxes = 3
)

const (
	DegreesToRadians = math.Pi / 180.0
	RadiansToDegrees = 180.0 / math.Pi
)

// GeometryKind identifies a machine geometry. The numeric values are a wire
// contract: they must match the K parameter of the geometry-selection
// command and must not be renumbered.
type GeometryKind uint8

const (
	CartesianKind GeometryKind = iota
	CoreXYKind
	CoreXZKind
	LinearDeltaKind
	ScaraKind

	UnknownKind // must be last
)

// String returns the configuration name of the geometry.
func (k GeometryKind) String() string {
	switch k {
	case CartesianKind:
		return "cartesian"
	case CoreXYKind:
		return "corexy"
	case CoreXZKind:
		return "corexz"
	case LinearDeltaKind:
		return "delta"
	case ScaraKind:
		return "scara"
	}
	return "unknown"
}

// MotionType describes how the motion layer must execute straight moves for
// a geometry.
type MotionType uint8

const (
	// LinearMotion means straight machine-space moves map to straight
	// motor-space moves (possibly after segmentation).
	LinearMotion MotionType = iota

	// SegmentFreeDeltaMotion means the motion layer solves the delta
	// geometry directly per step and no segmentation is required.
	SegmentFreeDeltaMotion
)

// AxesBitmap is a bitmask of axis indices.
type AxesBitmap uint16

// MakeAxesBitmap builds a bitmap from axis indices.
func MakeAxesBitmap(axes ...int) AxesBitmap {
	var b AxesBitmap
	for _, a := range axes {
		b |= 1 << uint(a)
	}
	return b
}

// Has reports whether the bitmap contains the axis.
func (b AxesBitmap) Has(axis int) bool {
	return b&(1<<uint(axis)) != 0
}

// Sentinel errors returned by the kinematics contract.
var (
	// ErrUnreachable means inverse kinematics found no valid solution for
	// the requested position. Callers must abort the move; the contents of
	// the output vector are unspecified.
	ErrUnreachable = errors.New("position unreachable")

	// ErrNotSegmented is returned by the segmentation policy accessors of
	// geometries that do not use segmentation.
	ErrNotSegmented = errors.New("kinematics does not use segmentation")

	// ErrNoCalibration is returned by DoAutoCalibration when the geometry
	// does not support auto calibration.
	ErrNoCalibration = errors.New("kinematics does not support auto calibration")

	// ErrUnsupportedCommand means the parameter command code does not apply
	// to the active geometry.
	ErrUnsupportedCommand = errors.New("command not supported by kinematics")
)

// Kinematics is the contract every machine geometry implements. One instance
// is created by the factory at configuration time and lives for the process
// lifetime. Implementations are not safe for concurrent use; the caller's
// single motion-processing context provides exclusion.
type Kinematics interface {
	// Kind returns the geometry identifier.
	Kind() GeometryKind

	// MotionType returns the low-level motion type of the geometry.
	MotionType() MotionType

	// GetName returns the geometry name. When forStatusReport is true the
	// string matches the external status-report vocabulary.
	GetName(forStatusReport bool) string

	// SetOrReportParameters applies or reports geometry parameters from an
	// M-code command. If mCode configures this geometry and recognized
	// parameter letters are present, they are applied, derived values are
	// recomputed, and (true, nil) is returned; a malformed parameter writes
	// a diagnostic to reply and returns (true, err). If no recognized
	// letter is present, the current values are formatted into reply and
	// (false, nil) is returned. An mCode that does not apply to the
	// geometry writes a diagnostic and returns (false,
	// ErrUnsupportedCommand).
	SetOrReportParameters(mCode int, cmd *gcode.Command, reply *bytes.Buffer) (bool, error)

	// CartesianToMotorSteps converts a machine position to motor steps
	// (inverse kinematics). stepsPerUnit is steps/mm, or steps/degree for
	// rotary drives. The first numAxes entries of motorPos are written. On
	// error the contents of motorPos are unspecified.
	CartesianToMotorSteps(machinePos, stepsPerUnit []float64, numAxes int, motorPos []int32) error

	// MotorStepsToCartesian converts motor steps to a machine position
	// (forward kinematics). Always well defined.
	MotorStepsToCartesian(motorPos []int32, stepsPerUnit []float64, numDrives int, machinePos []float64)

	// MotorFactor returns the drive's share of a unit Cartesian direction
	// vector. Identity except for geometries with coupled drives.
	MotorFactor(drive int, directionVector []float64) float64

	// SupportsAutoCalibration reports whether the geometry can be
	// auto-calibrated from bed probing.
	SupportsAutoCalibration() bool

	// DoAutoCalibration adjusts geometry parameters from probe results.
	// Returns ErrNoCalibration when unsupported.
	DoAutoCalibration(numFactors int, points *probe.PointSet, reply *bytes.Buffer) error

	// SetCalibrationDefaults restores the parameters changed by auto
	// calibration to their defaults.
	SetCalibrationDefaults()

	// WriteCalibrationParameters writes the parameters set by auto
	// calibration as commands that recreate them.
	WriteCalibrationParameters(w io.Writer) error

	// GetTiltCorrection returns the bed tilt fraction for an axis.
	GetTiltCorrection(axis int) float64

	// ShowCoordinatesWhenNotHomed reports whether the motor-to-machine
	// mapping is valid before homing.
	ShowCoordinatesWhenNotHomed() bool

	// IsReachable reports whether the XY position is reachable by the head
	// reference point.
	IsReachable(x, y float64) bool

	// LimitPosition clamps the position to the reachable workspace. Only
	// homed axes are clamped.
	LimitPosition(coords []float64, numAxes int, axesHomed AxesBitmap)

	// AxesToHomeBeforeProbing returns the axes that must be homed before
	// bed probing is allowed.
	AxesToHomeBeforeProbing() AxesBitmap

	// SetAxisLimits configures the rectangular workspace bound for an axis.
	SetAxisLimits(axis int, min, max float64)

	// UseSegmentation reports whether straight machine-space moves must be
	// approximated with short linear segments.
	UseSegmentation() bool

	// UseRawG0 reports whether non-printing travel moves may skip
	// segmentation.
	UseRawG0() bool

	// SegmentsPerSecond returns the target segment rate. Returns
	// ErrNotSegmented when the geometry does not use segmentation.
	SegmentsPerSecond() (float64, error)

	// MinSegmentLength returns the minimum segment size. Returns
	// ErrNotSegmented when the geometry does not use segmentation.
	MinSegmentLength() (float64, error)
}

// base carries the state and default behaviors shared by all geometries.
// Simple geometries use the defaults as-is; others override selectively.
type base struct {
	kind            GeometryKind
	motionType      MotionType
	segmentsPerSec  float64
	minSegLength    float64
	useSegmentation bool
	useRawG0        bool

	// Rectangular workspace bounds per axis, used by the default
	// IsReachable and LimitPosition.
	limits [MinAxes][2]float64
}

// newBase is used by geometries with simple non-segmented linear motion.
func newBase(kind GeometryKind, m MotionType) base {
	b := base{kind: kind, motionType: m}
	b.setDefaultLimits()
	return b
}

// newSegmentedBase is used by geometries that approximate linear motion
// with segmentation. rawG0 records whether travel moves may skip it.
func newSegmentedBase(kind GeometryKind, segsPerSecond, minSegLength float64, rawG0 bool) base {
	b := base{
		kind:            kind,
		motionType:      LinearMotion,
		segmentsPerSec:  segsPerSecond,
		minSegLength:    minSegLength,
		useSegmentation: true,
		useRawG0:        rawG0,
	}
	b.setDefaultLimits()
	return b
}

func (b *base) setDefaultLimits() {
	b.limits[XAxis] = [2]float64{0, 220}
	b.limits[YAxis] = [2]float64{0, 220}
	b.limits[ZAxis] = [2]float64{0, 250}
}

func (b *base) Kind() GeometryKind     { return b.kind }
func (b *base) MotionType() MotionType { return b.motionType }
func (b *base) UseSegmentation() bool  { return b.useSegmentation }
func (b *base) UseRawG0() bool         { return b.useRawG0 }

func (b *base) SegmentsPerSecond() (float64, error) {
	if !b.useSegmentation {
		return 0, ErrNotSegmented
	}
	return b.segmentsPerSec, nil
}

func (b *base) MinSegmentLength() (float64, error) {
	if !b.useSegmentation {
		return 0, ErrNotSegmented
	}
	return b.minSegLength, nil
}

// SetOrReportParameters is the shared default for command codes that do not
// apply to the geometry.
func (b *base) SetOrReportParameters(mCode int, cmd *gcode.Command, reply *bytes.Buffer) (bool, error) {
	fmt.Fprintf(reply, "M%d parameters do not apply to %s kinematics", mCode, b.kind)
	return false, ErrUnsupportedCommand
}

// MotorFactor defaults to the identity mapping between drives and axes.
func (b *base) MotorFactor(drive int, directionVector []float64) float64 {
	return directionVector[drive]
}

func (b *base) SupportsAutoCalibration() bool { return false }

func (b *base) DoAutoCalibration(numFactors int, points *probe.PointSet, reply *bytes.Buffer) error {
	return ErrNoCalibration
}

func (b *base) SetCalibrationDefaults() {}

func (b *base) WriteCalibrationParameters(w io.Writer) error { return nil }

func (b *base) GetTiltCorrection(axis int) float64 { return 0 }

// IsReachable defaults to the rectangular bed boundary.
func (b *base) IsReachable(x, y float64) bool {
	return x >= b.limits[XAxis][0] && x <= b.limits[XAxis][1] &&
		y >= b.limits[YAxis][0] && y <= b.limits[YAxis][1]
}

// LimitPosition defaults to clamping each homed axis independently to its
// rectangular range.
func (b *base) LimitPosition(coords []float64, numAxes int, axesHomed AxesBitmap) {
	n := numAxes
	if n > len(b.limits) {
		n = len(b.limits)
	}
	for axis := 0; axis < n; axis++ {
		if !axesHomed.Has(axis) {
			continue
		}
		if coords[axis] < b.limits[axis][0] {
			coords[axis] = b.limits[axis][0]
		} else if coords[axis] > b.limits[axis][1] {
			coords[axis] = b.limits[axis][1]
		}
	}
}

func (b *base) AxesToHomeBeforeProbing() AxesBitmap {
	return MakeAxesBitmap(XAxis, YAxis)
}

func (b *base) SetAxisLimits(axis int, min, max float64) {
	if axis < 0 || axis >= len(b.limits) {
		return
	}
	b.limits[axis] = [2]float64{min, max}
}

// stepRound converts a continuous step position to a signed step count.
func stepRound(x float64) int32 {
	return int32(math.Round(x))
}

// passThroughSteps converts the axes beyond the geometry-specific ones
// (extruders and other linear extras) one-to-one.
func passThroughSteps(machinePos, stepsPerUnit []float64, from, numAxes int, motorPos []int32) {
	for axis := from; axis < numAxes; axis++ {
		motorPos[axis] = stepRound(machinePos[axis] * stepsPerUnit[axis])
	}
}

// passThroughCartesian is the forward counterpart of passThroughSteps.
func passThroughCartesian(motorPos []int32, stepsPerUnit []float64, from, numDrives int, machinePos []float64) {
	for drive := from; drive < numDrives; drive++ {
		machinePos[drive] = float64(motorPos[drive]) / stepsPerUnit[drive]
	}
}
