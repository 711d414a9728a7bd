// Package gcode parses G-code lines into commands with letter parameters.
package gcode

// Parser handles G-code parsing.
type Parser struct{}

// NewParser creates a new G-code parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseLine parses a single line of G-code. Returns nil for an empty line.
func (p *Parser) ParseLine(line string) (*Command, error) {
	i := skipSpace(line, 0)
	if i >= len(line) {
		return nil, nil
	}

	cmd := &Command{params: make(map[byte]string)}

	// Comment-only line
	if line[i] == ';' || line[i] == '(' {
		cmd.Comment = line[i:]
		return cmd, nil
	}

	// Command word (G, M, T)
	if line[i] == 'G' || line[i] == 'M' || line[i] == 'T' ||
		line[i] == 'g' || line[i] == 'm' || line[i] == 't' {
		cmd.Type = toUpper(line[i])
		i++
		start := i
		for i < len(line) && line[i] >= '0' && line[i] <= '9' {
			cmd.Number = cmd.Number*10 + int(line[i]-'0')
			i++
		}
		if i == start {
			// A bare letter with no number is not a command word;
			// treat it as a parameter of an empty command.
			i = start - 1
			cmd.Type = 0
			cmd.Number = 0
		}
	}

	// Parameters: a letter followed by a value token. Values may contain
	// digits, signs, a decimal point and ':' separators for arrays.
	for i < len(line) {
		i = skipSpace(line, i)
		if i >= len(line) {
			break
		}
		if line[i] == ';' || line[i] == '(' {
			cmd.Comment = line[i:]
			break
		}
		if !isLetter(line[i]) {
			i++
			continue
		}
		letter := toUpper(line[i])
		i++
		start := i
		for i < len(line) && isValueByte(line[i]) {
			i++
		}
		cmd.params[letter] = line[start:i]
	}

	return cmd, nil
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isValueByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == ':'
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
