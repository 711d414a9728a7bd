package gcode

import (
	"testing"
)

func TestParseBasicCommands(t *testing.T) {
	p := NewParser()

	cases := []struct {
		line     string
		wantType byte
		wantNum  int
	}{
		{"G1 X10 Y20", 'G', 1},
		{"G28", 'G', 28},
		{"M669 P100", 'M', 669},
		{"m114", 'M', 114},
		{"T0", 'T', 0},
	}
	for _, tc := range cases {
		cmd, err := p.ParseLine(tc.line)
		if err != nil {
			t.Errorf("ParseLine(%q) failed: %v", tc.line, err)
			continue
		}
		if cmd.Type != tc.wantType || cmd.Number != tc.wantNum {
			t.Errorf("ParseLine(%q) = %c%d, want %c%d",
				tc.line, cmd.Type, cmd.Number, tc.wantType, tc.wantNum)
		}
	}
}

func TestParseParameters(t *testing.T) {
	p := NewParser()

	cmd, err := p.ParseLine("G1 X10.5 Y-20 Z+3 F1500")
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if got := cmd.Float('X', 0); got != 10.5 {
		t.Errorf("X = %v, want 10.5", got)
	}
	if got := cmd.Float('Y', 0); got != -20.0 {
		t.Errorf("Y = %v, want -20", got)
	}
	if got := cmd.Float('Z', 0); got != 3.0 {
		t.Errorf("Z = %v, want 3", got)
	}
	if got := cmd.Int('F', 0); got != 1500 {
		t.Errorf("F = %v, want 1500", got)
	}
	if cmd.HasParam('E') {
		t.Error("phantom E parameter")
	}
	if got := cmd.Float('E', 7.5); got != 7.5 {
		t.Errorf("absent parameter default = %v, want 7.5", got)
	}
}

func TestParseArrayParameters(t *testing.T) {
	p := NewParser()

	cmd, err := p.ParseLine("M669 P90 A-90:90 C0.5:0.25:0.1")
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}

	theta := make([]float64, 2)
	seen := false
	if err := cmd.TryFloatArray('A', 2, theta, &seen); err != nil {
		t.Fatalf("TryFloatArray(A) failed: %v", err)
	}
	if !seen || theta[0] != -90.0 || theta[1] != 90.0 {
		t.Errorf("A = %v (seen %v), want [-90 90]", theta, seen)
	}

	crosstalk := make([]float64, 3)
	seen = false
	if err := cmd.TryFloatArray('C', 3, crosstalk, &seen); err != nil {
		t.Fatalf("TryFloatArray(C) failed: %v", err)
	}
	if crosstalk[0] != 0.5 || crosstalk[1] != 0.25 || crosstalk[2] != 0.1 {
		t.Errorf("C = %v", crosstalk)
	}

	// Wrong arity fails and leaves the destination untouched.
	tooMany := []float64{1.0, 2.0}
	seen = false
	if err := cmd.TryFloatArray('C', 2, tooMany, &seen); err == nil {
		t.Error("arity mismatch did not fail")
	}
	if seen || tooMany[0] != 1.0 || tooMany[1] != 2.0 {
		t.Errorf("arity mismatch modified destination: %v (seen %v)", tooMany, seen)
	}
}

func TestTryFloat(t *testing.T) {
	p := NewParser()
	cmd, _ := p.ParseLine("M669 P100.5")

	v := 1.0
	seen := false
	if err := cmd.TryFloat('P', &v, &seen); err != nil || v != 100.5 || !seen {
		t.Errorf("TryFloat(P) = %v, %v (seen %v)", v, err, seen)
	}

	// Absent letter: untouched, no error.
	v = 42.0
	seen = false
	if err := cmd.TryFloat('D', &v, &seen); err != nil || v != 42.0 || seen {
		t.Errorf("TryFloat(D) = %v, %v (seen %v)", v, err, seen)
	}

	// Malformed value is an error.
	cmd, _ = p.ParseLine("M669 P1.2.3")
	if err := cmd.TryFloat('P', &v, &seen); err == nil {
		t.Error("malformed value did not fail")
	}
}

func TestParseCommentsAndBlanks(t *testing.T) {
	p := NewParser()

	cmd, err := p.ParseLine("")
	if err != nil || cmd != nil {
		t.Errorf("empty line = %v, %v; want nil, nil", cmd, err)
	}
	cmd, err = p.ParseLine("   ")
	if err != nil || cmd != nil {
		t.Errorf("blank line = %v, %v; want nil, nil", cmd, err)
	}

	cmd, err = p.ParseLine("; just a comment")
	if err != nil {
		t.Fatalf("comment line failed: %v", err)
	}
	if cmd.Type != 0 || cmd.Comment == "" {
		t.Errorf("comment line = %+v", cmd)
	}

	cmd, err = p.ParseLine("G1 X5 ; move a bit")
	if err != nil {
		t.Fatalf("trailing comment failed: %v", err)
	}
	if cmd.Number != 1 || cmd.Float('X', 0) != 5.0 {
		t.Errorf("trailing comment broke parsing: %+v", cmd)
	}
	if cmd.Comment != "; move a bit" {
		t.Errorf("Comment = %q", cmd.Comment)
	}
}
