package config

import (
	"fmt"
	"io"
	"time"
)

// CalibrationWriter is implemented by kinematics that can persist their
// calibration as command lines.
type CalibrationWriter interface {
	WriteCalibrationParameters(w io.Writer) error
}

// Override writes a calibration override file: a header comment followed
// by the commands that restore the current calibration.
type Override struct {
	w io.Writer
}

// NewOverride returns an override writer targeting w.
func NewOverride(w io.Writer) *Override {
	return &Override{w: w}
}

// Save writes the calibration override for kin.
func (o *Override) Save(kin CalibrationWriter) error {
	if _, err := fmt.Fprintf(o.w, "; calibration override saved %s\n", time.Now().Format(time.RFC3339)); err != nil {
		return err
	}
	return kin.WriteCalibrationParameters(o.w)
}
