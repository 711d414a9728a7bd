// Package motion coordinates the command pipeline: parser, interpreter,
// planner and the geometry transform.
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
)

// Manager owns the command pipeline and the serial-style line buffers.
type Manager struct {
	config      *config.MachineConfig
	parser      *gcode.Parser
	interpreter *Interpreter
	planner     *planner.Planner

	inputBuffer  []byte
	outputBuffer []byte

	running bool
}

// NewManager creates a manager from JSON configuration data.
func NewManager(configData []byte) (*Manager, error) {
	cfg, err := config.LoadConfig(configData)
	if err != nil {
		return nil, err
	}
	return NewManagerWithConfig(cfg)
}

// NewManagerWithConfig creates a manager from an existing configuration.
// The geometry parameter blocks are applied through the normal command
// path, so a bad configuration fails here rather than mid-stream.
func NewManagerWithConfig(cfg *config.MachineConfig) (*Manager, error) {
	cfg.ApplyDefaults()
	kind, err := kinematics.ParseGeometry(cfg.Geometry)
	if err != nil {
		return nil, err
	}
	kin, err := kinematics.New(kind)
	if err != nil {
		return nil, err
	}

	pl := planner.New(kin, cfg.DriveNames())
	mgr := &Manager{
		config:       cfg,
		parser:       gcode.NewParser(),
		interpreter:  NewInterpreter(cfg, pl, kin),
		planner:      pl,
		inputBuffer:  make([]byte, 0, 256),
		outputBuffer: make([]byte, 0, 256),
	}

	for _, line := range cfg.KinematicsCommands() {
		if err := mgr.ProcessLine(line); err != nil {
			return nil, fmt.Errorf("config command %q: %w", line, err)
		}
	}
	// Discard any reports the configuration commands produced.
	mgr.outputBuffer = mgr.outputBuffer[:0]

	return mgr, nil
}

// Interpreter returns the command interpreter.
func (m *Manager) Interpreter() *Interpreter {
	return m.interpreter
}

// Kinematics returns the active geometry.
func (m *Manager) Kinematics() kinematics.Kinematics {
	return m.interpreter.Kinematics()
}

// SetOverrideTarget sets where M500 writes the calibration override.
func (m *Manager) SetOverrideTarget(w io.Writer) {
	m.interpreter.SetOverrideTarget(w)
}

// ProcessLine parses and executes one line. Command replies are queued on
// the output buffer.
func (m *Manager) ProcessLine(line string) error {
	cmd, err := m.parser.ParseLine(line)
	if err != nil {
		return err
	}
	if cmd == nil {
		return nil
	}

	var reply bytes.Buffer
	err = m.interpreter.Execute(cmd, &reply)
	if reply.Len() > 0 {
		m.SendResponse(reply.String() + "\n")
	}
	return err
}

// ProcessByte feeds one byte of serial input. Complete lines are executed
// and acknowledged with "ok"; errors are reported on the output stream the
// way a firmware console does, and do not stop the stream.
func (m *Manager) ProcessByte(b byte) error {
	if b != '\n' && b != '\r' {
		m.inputBuffer = append(m.inputBuffer, b)
		return nil
	}

	line := string(m.inputBuffer)
	m.inputBuffer = m.inputBuffer[:0]
	for len(line) > 0 && line[len(line)-1] == ' ' {
		line = line[:len(line)-1]
	}
	if len(line) == 0 {
		return nil
	}

	if err := m.ProcessLine(line); err != nil {
		m.SendResponse("Error: " + err.Error() + "\n")
		return err
	}
	m.SendResponse("ok\n")
	return nil
}

// SendResponse queues a response for the host.
func (m *Manager) SendResponse(response string) {
	m.outputBuffer = append(m.outputBuffer, []byte(response)...)
}

// GetOutput returns pending output and clears the buffer.
func (m *Manager) GetOutput() []byte {
	if len(m.outputBuffer) == 0 {
		return nil
	}
	out := make([]byte, len(m.outputBuffer))
	copy(out, m.outputBuffer)
	m.outputBuffer = m.outputBuffer[:0]
	return out
}

// Start begins accepting commands.
func (m *Manager) Start() error {
	if m.running {
		return errors.New("already running")
	}
	m.running = true
	m.SendResponse(fmt.Sprintf("Kinema ready, %s kinematics\n", m.Kinematics().GetName(false)))
	return nil
}

// Stop halts command processing.
func (m *Manager) Stop() {
	m.running = false
	m.inputBuffer = m.inputBuffer[:0]
}

// IsRunning reports whether the manager accepts commands.
func (m *Manager) IsRunning() bool {
	return m.running
}

// GetState returns the interpreter machine state.
func (m *Manager) GetState() *MachineState {
	return m.interpreter.GetState()
}
