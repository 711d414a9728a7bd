package motion

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"kinema/motion/config"
	"kinema/motion/gcode"
	"kinema/motion/kinematics"
	"kinema/motion/planner"
	"kinema/motion/probe"
)

const defaultFeedRate = 50.0 // mm/s

// MachineState is the interpreter-visible machine state.
type MachineState struct {
	Position     []float64
	Homed        kinematics.AxesBitmap
	AbsoluteMode bool
	FeedRate     float64 // mm/s
}

// Interpreter executes parsed commands against the kinematics and planner.
type Interpreter struct {
	state       *MachineState
	cfg         *config.MachineConfig
	planner     *planner.Planner
	kin         kinematics.Kinematics
	axisLetters []byte

	stepsPerUnit []float64
	axisLimits   [][2]float64

	probePoints    *probe.PointSet
	overrideTarget io.Writer
}

// armModeResetter is implemented by geometries whose inverse solution is
// history-dependent and must be re-anchored after homing.
type armModeResetter interface {
	ResetArmMode()
}

// homedPose is implemented by geometries whose homing switches define a
// motor-space pose rather than the motor-space origin.
type homedPose interface {
	HomedMotorSteps(stepsPerUnit []float64, motorPos []int32)
}

// NewInterpreter creates an interpreter bound to a planner and geometry.
func NewInterpreter(cfg *config.MachineConfig, pl *planner.Planner, kin kinematics.Kinematics) *Interpreter {
	n := pl.NumAxes()
	letters := make([]byte, n)
	for i, name := range cfg.DriveNames() {
		letters[i] = name[0] &^ 0x20 // upper case
	}
	limits := make([][2]float64, n)
	for i := range limits {
		min, max := cfg.AxisLimits(i)
		limits[i] = [2]float64{min, max}
		kin.SetAxisLimits(i, min, max)
	}
	return &Interpreter{
		state: &MachineState{
			Position:     make([]float64, n),
			AbsoluteMode: true,
			FeedRate:     defaultFeedRate,
		},
		cfg:          cfg,
		planner:      pl,
		kin:          kin,
		axisLetters:  letters,
		stepsPerUnit: cfg.StepsPerUnit(),
		axisLimits:   limits,
		probePoints:  probe.NewPointSet(),
	}
}

// GetState returns the machine state.
func (in *Interpreter) GetState() *MachineState {
	return in.state
}

// Kinematics returns the active geometry.
func (in *Interpreter) Kinematics() kinematics.Kinematics {
	return in.kin
}

// SetOverrideTarget sets the destination for M500 calibration saves.
func (in *Interpreter) SetOverrideTarget(w io.Writer) {
	in.overrideTarget = w
}

// Execute runs a parsed command. Human-readable output is appended to
// reply.
func (in *Interpreter) Execute(cmd *gcode.Command, reply *bytes.Buffer) error {
	if cmd == nil {
		return nil
	}
	switch cmd.Type {
	case 'G':
		return in.executeG(cmd, reply)
	case 'M':
		return in.executeM(cmd, reply)
	case 'T':
		// Single-tool machine.
		return nil
	}
	return nil
}

func (in *Interpreter) executeG(cmd *gcode.Command, reply *bytes.Buffer) error {
	switch cmd.Number {
	case 0: // rapid move
		return in.doMove(cmd, true)
	case 1: // linear move
		return in.doMove(cmd, false)
	case 28: // home
		return in.doHome()
	case 30: // record probe point
		return in.doProbePoint(cmd)
	case 32: // auto calibration from recorded points
		return in.doAutoCalibrate(cmd, reply)
	case 90:
		in.state.AbsoluteMode = true
	case 91:
		in.state.AbsoluteMode = false
	case 92:
		return in.doSetPosition(cmd)
	}
	return nil
}

func (in *Interpreter) executeM(cmd *gcode.Command, reply *bytes.Buffer) error {
	switch cmd.Number {
	case 92:
		return in.doStepsPerUnit(cmd, reply)
	case 114:
		in.reportPosition(reply)
	case 208:
		return in.doAxisLimits(cmd, reply)
	case 500:
		return in.doSaveCalibration()
	case 665, 666:
		_, err := in.kin.SetOrReportParameters(cmd.Number, cmd, reply)
		return err
	case 669:
		return in.doGeometryParameters(cmd, reply)
	}
	return nil
}

// doMove executes G0/G1. The target is first clamped onto the workspace
// boundary so a path crossing it stays continuous. A target the clamp does
// not move is rejected when unreachable; a clamped one is handed to the
// planner, whose staged solve fails the whole move if no joint solution
// exists.
func (in *Interpreter) doMove(cmd *gcode.Command, travel bool) error {
	if cmd.HasParam('F') {
		if f := cmd.Float('F', 0); f > 0 {
			in.state.FeedRate = f / 60.0 // mm/min to mm/s
		}
	}

	n := in.planner.NumAxes()
	target := make([]float64, n)
	copy(target, in.state.Position)
	for i := 0; i < n; i++ {
		if !cmd.HasParam(in.axisLetters[i]) {
			continue
		}
		v := cmd.Float(in.axisLetters[i], 0)
		if in.state.AbsoluteMode {
			target[i] = v
		} else {
			target[i] += v
		}
	}

	requested := append([]float64(nil), target...)
	in.kin.LimitPosition(target, n, in.state.Homed)
	clamped := false
	for i := range target {
		if target[i] != requested[i] {
			clamped = true
			break
		}
	}
	if !clamped && !in.kin.IsReachable(target[kinematics.XAxis], target[kinematics.YAxis]) {
		return fmt.Errorf("%w: X%.3f Y%.3f", kinematics.ErrUnreachable,
			target[kinematics.XAxis], target[kinematics.YAxis])
	}

	move := planner.Move{
		Start:    in.state.Position,
		End:      target,
		Feedrate: in.state.FeedRate,
		Travel:   travel,
	}
	if err := in.planner.Execute(move, in.stepsPerUnit); err != nil {
		return err
	}
	copy(in.state.Position, target)
	return nil
}

// doHome places every drive at its homing-switch step position and derives
// the machine position from the forward transform, so the post-home
// position is always consistent with the motor state. History-dependent
// geometries are re-anchored first.
func (in *Interpreter) doHome() error {
	if r, ok := in.kin.(armModeResetter); ok {
		r.ResetArmMode()
	}
	n := in.planner.NumAxes()
	motorPos := make([]int32, n)
	if hp, ok := in.kin.(homedPose); ok {
		hp.HomedMotorSteps(in.stepsPerUnit, motorPos)
	}
	in.planner.SetMotorPositions(motorPos)
	in.planner.CurrentPosition(in.stepsPerUnit, in.state.Position)
	for axis := 0; axis < n; axis++ {
		in.state.Homed |= kinematics.MakeAxesBitmap(axis)
	}
	return nil
}

// doSetPosition executes G92. The new position must have an inverse
// solution or the command is rejected and the old position kept.
func (in *Interpreter) doSetPosition(cmd *gcode.Command) error {
	n := in.planner.NumAxes()
	target := make([]float64, n)
	copy(target, in.state.Position)
	seen := false
	for i := 0; i < n; i++ {
		if cmd.HasParam(in.axisLetters[i]) {
			target[i] = cmd.Float(in.axisLetters[i], target[i])
			seen = true
		}
	}
	if !seen {
		return nil
	}
	if err := in.planner.SetPosition(target, in.stepsPerUnit); err != nil {
		return err
	}
	copy(in.state.Position, target)
	return nil
}

func (in *Interpreter) doStepsPerUnit(cmd *gcode.Command, reply *bytes.Buffer) error {
	n := in.planner.NumAxes()
	seen := false
	for i := 0; i < n; i++ {
		if !cmd.HasParam(in.axisLetters[i]) {
			continue
		}
		v := cmd.Float(in.axisLetters[i], 0)
		if v <= 0 {
			return fmt.Errorf("M92: steps per unit for %c must be positive", in.axisLetters[i])
		}
		in.stepsPerUnit[i] = v
		seen = true
	}
	if !seen {
		reply.WriteString("Steps per unit:")
		for i := 0; i < n; i++ {
			fmt.Fprintf(reply, " %c:%.2f", in.axisLetters[i], in.stepsPerUnit[i])
		}
	}
	return nil
}

func (in *Interpreter) reportPosition(reply *bytes.Buffer) {
	if in.state.Homed == 0 && !in.kin.ShowCoordinatesWhenNotHomed() {
		reply.WriteString("Coordinates unavailable before homing")
		return
	}
	n := in.planner.NumAxes()
	for i := 0; i < n; i++ {
		if i > 0 {
			reply.WriteByte(' ')
		}
		fmt.Fprintf(reply, "%c:%.3f", in.axisLetters[i], in.state.Position[i])
	}
}

// doAxisLimits executes M208. S0 (default) sets maxima, S1 sets minima.
func (in *Interpreter) doAxisLimits(cmd *gcode.Command, reply *bytes.Buffer) error {
	setMin := cmd.Int('S', 0) == 1
	n := in.planner.NumAxes()
	seen := false
	for i := 0; i < n; i++ {
		if !cmd.HasParam(in.axisLetters[i]) {
			continue
		}
		v := cmd.Float(in.axisLetters[i], 0)
		if setMin {
			in.axisLimits[i][0] = v
		} else {
			in.axisLimits[i][1] = v
		}
		in.kin.SetAxisLimits(i, in.axisLimits[i][0], in.axisLimits[i][1])
		seen = true
	}
	if !seen {
		reply.WriteString("Axis limits:")
		for i := 0; i < n; i++ {
			fmt.Fprintf(reply, " %c%.1f:%.1f", in.axisLetters[i], in.axisLimits[i][0], in.axisLimits[i][1])
		}
	}
	return nil
}

func (in *Interpreter) doSaveCalibration() error {
	if in.overrideTarget == nil {
		return errors.New("M500: no override storage configured")
	}
	return config.NewOverride(in.overrideTarget).Save(in.kin)
}

// doGeometryParameters executes M669. A K parameter switches the geometry;
// remaining parameters are applied to the (possibly new) geometry.
func (in *Interpreter) doGeometryParameters(cmd *gcode.Command, reply *bytes.Buffer) error {
	if cmd.HasParam('K') {
		kind := kinematics.GeometryKind(cmd.Int('K', -1))
		if kind != in.kin.Kind() {
			kin, err := kinematics.New(kind)
			if err != nil {
				return err
			}
			for i := range in.axisLimits {
				kin.SetAxisLimits(i, in.axisLimits[i][0], in.axisLimits[i][1])
			}
			in.kin = kin
			in.planner.SetKinematics(kin)
			// Drive positions no longer map to a known machine position.
			in.state.Homed = 0
		}
	}
	_, err := in.kin.SetOrReportParameters(669, cmd, reply)
	if errors.Is(err, kinematics.ErrUnsupportedCommand) {
		// Geometries without M669 parameters still answer the query.
		reply.Reset()
		fmt.Fprintf(reply, "Kinematics is %s", in.kin.GetName(false))
		return nil
	}
	return err
}

// doProbePoint executes G30: records a bed probe point for calibration.
// X and Y give the probe location, Z the measured height error.
func (in *Interpreter) doProbePoint(cmd *gcode.Command) error {
	pt := probe.Point{
		X:      cmd.Float('X', in.state.Position[kinematics.XAxis]),
		Y:      cmd.Float('Y', in.state.Position[kinematics.YAxis]),
		ZError: cmd.Float('Z', 0),
	}
	if !in.kin.IsReachable(pt.X, pt.Y) {
		return fmt.Errorf("%w: probe point X%.3f Y%.3f", kinematics.ErrUnreachable, pt.X, pt.Y)
	}
	in.probePoints.Add(pt)
	return nil
}

// doAutoCalibrate executes G32 using the points recorded with G30.
func (in *Interpreter) doAutoCalibrate(cmd *gcode.Command, reply *bytes.Buffer) error {
	if !in.kin.SupportsAutoCalibration() {
		return fmt.Errorf("%w: %s kinematics", kinematics.ErrNoCalibration, in.kin.GetName(false))
	}
	required := in.kin.AxesToHomeBeforeProbing()
	if in.state.Homed&required != required {
		return errors.New("G32: home the machine before calibrating")
	}
	numFactors := cmd.Int('P', 3)
	if err := in.kin.DoAutoCalibration(numFactors, in.probePoints, reply); err != nil {
		return err
	}
	in.probePoints = probe.NewPointSet()
	return nil
}
