package gcode

import (
	"fmt"
	"strconv"
	"strings"
)

// Command represents a parsed G-code command. Parameter values are kept as
// raw tokens so that callers can interpret them as scalars or as
// colon-separated arrays.
type Command struct {
	Type    byte   // 'G', 'M', 'T'
	Number  int    // Command number (e.g. 1 for G1, 669 for M669)
	Comment string // Comment text, if any

	params map[byte]string
}

// HasParam checks if a parameter letter is present.
func (cmd *Command) HasParam(letter byte) bool {
	_, ok := cmd.params[letter]
	return ok
}

// Param returns the raw parameter token and whether it was present.
func (cmd *Command) Param(letter byte) (string, bool) {
	v, ok := cmd.params[letter]
	return v, ok
}

// Float returns the parameter as a float, or the default if not present or
// not parseable.
func (cmd *Command) Float(letter byte, defaultValue float64) float64 {
	raw, ok := cmd.params[letter]
	if !ok {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

// Int returns the parameter as an integer, or the default if not present or
// not parseable.
func (cmd *Command) Int(letter byte, defaultValue int) int {
	raw, ok := cmd.params[letter]
	if !ok {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

// TryFloat stores the parameter into dst and sets seen if the letter is
// present. dst is left untouched when the letter is absent. A present but
// malformed value is an error.
func (cmd *Command) TryFloat(letter byte, dst *float64, seen *bool) error {
	raw, ok := cmd.params[letter]
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%c parameter: invalid number %q", letter, raw)
	}
	*dst = v
	*seen = true
	return nil
}

// TryFloatArray parses a colon-separated array parameter of exactly
// expected values into dst and sets seen. dst is left untouched when the
// letter is absent. Wrong arity or a malformed element is an error.
func (cmd *Command) TryFloatArray(letter byte, expected int, dst []float64, seen *bool) error {
	raw, ok := cmd.params[letter]
	if !ok {
		return nil
	}
	fields := strings.Split(raw, ":")
	if len(fields) != expected {
		return fmt.Errorf("%c parameter: expected %d values, got %d", letter, expected, len(fields))
	}
	parsed := make([]float64, expected)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return fmt.Errorf("%c parameter: invalid number %q", letter, f)
		}
		parsed[i] = v
	}
	copy(dst, parsed)
	*seen = true
	return nil
}
