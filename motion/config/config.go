// Package config loads the JSON machine configuration and renders the
// geometry parameter blocks as commands, so startup configuration flows
// through the same parameter path as runtime changes.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AxisConfig configures a single machine axis.
type AxisConfig struct {
	StepsPerUnit float64 `json:"steps_per_unit"` // steps/mm, or steps/degree for rotary drives
	MinPosition  float64 `json:"min_position"`
	MaxPosition  float64 `json:"max_position"`
}

// ScaraConfig holds the SCARA geometry parameters. Zero-valued fields keep
// the compiled-in defaults.
type ScaraConfig struct {
	ProximalArmLength   float64   `json:"proximal_arm_length"`
	DistalArmLength     float64   `json:"distal_arm_length"`
	ThetaLimits         []float64 `json:"theta_limits"`           // [min, max] degrees
	PhiMinusThetaLimits []float64 `json:"phi_minus_theta_limits"` // [min, max] degrees
	Crosstalk           []float64 `json:"crosstalk"`              // 3 coupling coefficients
	SegmentsPerSecond   float64   `json:"segments_per_second"`
	MinSegmentLength    float64   `json:"min_segment_length"`
}

// DeltaConfig holds the linear delta geometry parameters. Zero-valued
// fields keep the compiled-in defaults.
type DeltaConfig struct {
	DiagonalRod        float64   `json:"diagonal_rod"`
	Radius             float64   `json:"radius"`
	HomedHeight        float64   `json:"homed_height"`
	PrintRadius        float64   `json:"print_radius"`
	EndstopCorrections []float64 `json:"endstop_corrections"` // 3 values, mm
}

// MachineConfig is the complete machine configuration.
type MachineConfig struct {
	Geometry string                `json:"geometry"`
	Axes     map[string]AxisConfig `json:"axes"`
	Scara    *ScaraConfig          `json:"scara,omitempty"`
	Delta    *DeltaConfig          `json:"delta,omitempty"`
}

// axisOrder fixes the drive order of the axis map.
var axisOrder = []string{"x", "y", "z", "e", "u", "v", "w"}

// LoadConfig parses a JSON configuration and applies defaults.
func LoadConfig(jsonData []byte) (*MachineConfig, error) {
	var cfg MachineConfig
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills in missing configuration values. LoadConfig calls it;
// hand-built configurations must call it before use.
func (cfg *MachineConfig) ApplyDefaults() {
	if cfg.Geometry == "" {
		cfg.Geometry = "cartesian"
	}
	if cfg.Axes == nil {
		cfg.Axes = make(map[string]AxisConfig)
	}
	for _, name := range []string{"x", "y", "z"} {
		if _, ok := cfg.Axes[name]; !ok {
			cfg.Axes[name] = AxisConfig{}
		}
	}
	for name, axis := range cfg.Axes {
		if axis.StepsPerUnit == 0 {
			axis.StepsPerUnit = 80.0 // common value
		}
		if axis.MaxPosition == 0 && axis.MinPosition == 0 {
			axis.MaxPosition = 220.0
		}
		cfg.Axes[name] = axis
	}
}

func validate(cfg *MachineConfig) error {
	for name := range cfg.Axes {
		if !knownAxis(name) {
			return fmt.Errorf("unknown axis %q (expected one of %s)", name, strings.Join(axisOrder, ", "))
		}
	}
	return nil
}

func knownAxis(name string) bool {
	for _, a := range axisOrder {
		if a == name {
			return true
		}
	}
	return false
}

// DriveNames returns the configured axes in drive order (x, y, z first).
func (cfg *MachineConfig) DriveNames() []string {
	names := make([]string, 0, len(cfg.Axes))
	for _, name := range axisOrder {
		if _, ok := cfg.Axes[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// NumAxes returns the configured axis count.
func (cfg *MachineConfig) NumAxes() int {
	return len(cfg.DriveNames())
}

// StepsPerUnit returns the per-axis steps-per-unit vector in drive order.
func (cfg *MachineConfig) StepsPerUnit() []float64 {
	names := cfg.DriveNames()
	spu := make([]float64, len(names))
	for i, name := range names {
		spu[i] = cfg.Axes[name].StepsPerUnit
	}
	return spu
}

// AxisLimits returns the position range of the i-th drive.
func (cfg *MachineConfig) AxisLimits(i int) (float64, float64) {
	names := cfg.DriveNames()
	axis := cfg.Axes[names[i]]
	return axis.MinPosition, axis.MaxPosition
}

// KinematicsCommands renders the geometry parameter blocks as the M-code
// commands that apply them. Parameters are only ever mutated through the
// kinematics parameter path, so configuration is applied the same way a
// runtime command would be.
func (cfg *MachineConfig) KinematicsCommands() []string {
	var cmds []string
	if s := cfg.Scara; s != nil {
		var b strings.Builder
		b.WriteString("M669")
		if s.ProximalArmLength > 0 {
			fmt.Fprintf(&b, " P%g", s.ProximalArmLength)
		}
		if s.DistalArmLength > 0 {
			fmt.Fprintf(&b, " D%g", s.DistalArmLength)
		}
		if s.SegmentsPerSecond > 0 {
			fmt.Fprintf(&b, " S%g", s.SegmentsPerSecond)
		}
		if s.MinSegmentLength > 0 {
			fmt.Fprintf(&b, " T%g", s.MinSegmentLength)
		}
		if len(s.ThetaLimits) == 2 {
			fmt.Fprintf(&b, " A%g:%g", s.ThetaLimits[0], s.ThetaLimits[1])
		}
		if len(s.PhiMinusThetaLimits) == 2 {
			fmt.Fprintf(&b, " B%g:%g", s.PhiMinusThetaLimits[0], s.PhiMinusThetaLimits[1])
		}
		if len(s.Crosstalk) == 3 {
			fmt.Fprintf(&b, " C%g:%g:%g", s.Crosstalk[0], s.Crosstalk[1], s.Crosstalk[2])
		}
		if b.Len() > len("M669") {
			cmds = append(cmds, b.String())
		}
	}
	if d := cfg.Delta; d != nil {
		var b strings.Builder
		b.WriteString("M665")
		if d.DiagonalRod > 0 {
			fmt.Fprintf(&b, " L%g", d.DiagonalRod)
		}
		if d.Radius > 0 {
			fmt.Fprintf(&b, " R%g", d.Radius)
		}
		if d.HomedHeight > 0 {
			fmt.Fprintf(&b, " H%g", d.HomedHeight)
		}
		if d.PrintRadius > 0 {
			fmt.Fprintf(&b, " B%g", d.PrintRadius)
		}
		if b.Len() > len("M665") {
			cmds = append(cmds, b.String())
		}
		if len(d.EndstopCorrections) == 3 {
			cmds = append(cmds, fmt.Sprintf("M666 X%g Y%g Z%g",
				d.EndstopCorrections[0], d.EndstopCorrections[1], d.EndstopCorrections[2]))
		}
	}
	return cmds
}

// DefaultScaraConfig returns a working configuration for a SCARA machine
// with 90mm arms.
func DefaultScaraConfig() *MachineConfig {
	cfg := &MachineConfig{
		Geometry: "scara",
		Axes: map[string]AxisConfig{
			// X and Y drive the arm joints: steps per degree.
			"x": {StepsPerUnit: 100.0, MinPosition: -180.0, MaxPosition: 180.0},
			"y": {StepsPerUnit: 100.0, MinPosition: -270.0, MaxPosition: 270.0},
			"z": {StepsPerUnit: 400.0, MinPosition: 0.0, MaxPosition: 200.0},
		},
		Scara: &ScaraConfig{
			ProximalArmLength:   90.0,
			DistalArmLength:     90.0,
			ThetaLimits:         []float64{-90.0, 90.0},
			PhiMinusThetaLimits: []float64{-140.0, 140.0},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}
