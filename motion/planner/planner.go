// Package planner turns straight machine-space moves into motor step
// targets, applying the segmentation policy the kinematics reports.
package planner

import (
	"fmt"
	"math"

	"kinema/motion/kinematics"
	"kinema/motion/stepgen"
)

// Move is a straight machine-space move request.
type Move struct {
	Start    []float64
	End      []float64
	Feedrate float64 // mm/s
	Travel   bool    // non-printing move (G0)
}

// Planner converts moves for a fixed set of drives. It is not safe for
// concurrent use; the motion-processing context provides exclusion.
type Planner struct {
	kin     kinematics.Kinematics
	drives  []*stepgen.Drive
	numAxes int

	// Scratch buffers reused across moves.
	segPos   []float64
	motorPos []int32
	staged   [][]int32
}

// New creates a planner for the given kinematics and drive names.
func New(kin kinematics.Kinematics, driveNames []string) *Planner {
	n := len(driveNames)
	drives := make([]*stepgen.Drive, n)
	for i, name := range driveNames {
		drives[i] = stepgen.NewDrive(name)
	}
	return &Planner{
		kin:      kin,
		drives:   drives,
		numAxes:  n,
		segPos:   make([]float64, n),
		motorPos: make([]int32, n),
	}
}

// NumAxes returns the axis/drive count.
func (p *Planner) NumAxes() int {
	return p.numAxes
}

// SetKinematics swaps the geometry. Drive positions are kept; the caller
// re-establishes the machine position afterwards.
func (p *Planner) SetKinematics(kin kinematics.Kinematics) {
	p.kin = kin
}

// Drives returns the drive trackers.
func (p *Planner) Drives() []*stepgen.Drive {
	return p.drives
}

// Execute converts a move and commits the resulting step targets. For
// segmented geometries the move is subdivided per the reported policy
// unless it is a travel move and the geometry allows raw G0. Every segment
// is converted before any drive moves, so an unreachable target aborts the
// whole move without partial step output.
func (p *Planner) Execute(move Move, stepsPerUnit []float64) error {
	segments := p.segmentCount(move)

	p.staged = p.staged[:0]
	for s := 1; s <= segments; s++ {
		frac := float64(s) / float64(segments)
		for axis := 0; axis < p.numAxes; axis++ {
			p.segPos[axis] = move.Start[axis] + (move.End[axis]-move.Start[axis])*frac
		}
		if err := p.kin.CartesianToMotorSteps(p.segPos, stepsPerUnit, p.numAxes, p.motorPos); err != nil {
			return fmt.Errorf("segment %d/%d: %w", s, segments, err)
		}
		target := make([]int32, p.numAxes)
		copy(target, p.motorPos)
		p.staged = append(p.staged, target)
	}

	for _, target := range p.staged {
		for i, d := range p.drives {
			d.Commit(target[i])
		}
	}
	return nil
}

// segmentCount applies the segmentation policy to a move.
func (p *Planner) segmentCount(move Move) int {
	if !p.kin.UseSegmentation() {
		return 1
	}
	if move.Travel && p.kin.UseRawG0() {
		return 1
	}

	distance := moveDistance(move.Start, move.End)
	if distance <= 0 {
		return 1
	}

	// Both accessors are valid here: UseSegmentation was checked above.
	segsPerSecond, err := p.kin.SegmentsPerSecond()
	if err != nil {
		return 1
	}
	minSegLength, err := p.kin.MinSegmentLength()
	if err != nil {
		return 1
	}

	feedrate := move.Feedrate
	if feedrate <= 0 {
		feedrate = 1.0
	}
	byTime := distance / feedrate * segsPerSecond
	byLength := math.MaxFloat64
	if minSegLength > 0 {
		byLength = distance / minSegLength
	}
	n := int(math.Min(byTime, byLength))
	if n < 1 {
		n = 1
	}
	return n
}

// SetPosition resets the drive trackers to the step positions matching a
// machine position, without motion (homing, G92).
func (p *Planner) SetPosition(machinePos, stepsPerUnit []float64) error {
	if err := p.kin.CartesianToMotorSteps(machinePos, stepsPerUnit, p.numAxes, p.motorPos); err != nil {
		return err
	}
	for i, d := range p.drives {
		d.SetPosition(p.motorPos[i])
	}
	return nil
}

// SetMotorPositions resets the drive trackers to explicit step positions.
func (p *Planner) SetMotorPositions(motorPos []int32) {
	for i, d := range p.drives {
		d.SetPosition(motorPos[i])
	}
}

// CurrentPosition derives the machine position from the current drive step
// positions (forward kinematics).
func (p *Planner) CurrentPosition(stepsPerUnit []float64, machinePos []float64) {
	for i, d := range p.drives {
		p.motorPos[i] = d.Position()
	}
	p.kin.MotorStepsToCartesian(p.motorPos, stepsPerUnit, p.numAxes, machinePos)
}

// moveDistance is the Euclidean XYZ length of a move, falling back to the
// largest extra-axis delta for axis-only moves.
func moveDistance(start, end []float64) float64 {
	dx := end[kinematics.XAxis] - start[kinematics.XAxis]
	dy := end[kinematics.YAxis] - start[kinematics.YAxis]
	dz := end[kinematics.ZAxis] - start[kinematics.ZAxis]
	d := math.Sqrt(dx*dx + dy*dy + dz*dz)
	if d > 0 {
		return d
	}
	for axis := kinematics.ZAxis + 1; axis < len(start) && axis < len(end); axis++ {
		if delta := math.Abs(end[axis] - start[axis]); delta > d {
			d = delta
		}
	}
	return d
}
