// Package stepgen tracks the commanded step position of each motor drive.
package stepgen

// Drive represents a single motor drive as a signed step counter. The
// planner commits absolute step targets after a move (or all of its
// segments) converted successfully, so a failed conversion never moves a
// drive.
type Drive struct {
	name     string
	position int32
}

// NewDrive creates a drive tracker at step position zero.
func NewDrive(name string) *Drive {
	return &Drive{name: name}
}

// Name returns the drive name.
func (d *Drive) Name() string {
	return d.name
}

// Position returns the current step position.
func (d *Drive) Position() int32 {
	return d.position
}

// Commit moves the drive to an absolute step target and returns the step
// delta.
func (d *Drive) Commit(target int32) int32 {
	delta := target - d.position
	d.position = target
	return delta
}

// SetPosition resets the step counter without motion (homing, G92).
func (d *Drive) SetPosition(position int32) {
	d.position = position
}
