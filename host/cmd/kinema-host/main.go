// Command kinema-host streams G-code to a machine. With no -device it runs
// the built-in interpreter, which is useful for checking a job against a
// machine geometry before sending it anywhere.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"kinema/host/serial"
	"kinema/motion"
	"kinema/motion/config"
)

var (
	device       = flag.String("device", "", "serial device of the machine (empty runs the built-in interpreter)")
	baud         = flag.Int("baud", 115200, "baud rate (ignored for USB CDC)")
	configPath   = flag.String("config", "", "machine configuration JSON (built-in interpreter only)")
	gcodePath    = flag.String("gcode", "", "G-code file to stream (default stdin)")
	overridePath = flag.String("override", "config-override.g", "file M500 saves calibration to (built-in interpreter only)")
	verbose      = flag.Bool("verbose", false, "echo every command")
)

func main() {
	flag.Parse()

	input := os.Stdin
	if *gcodePath != "" {
		f, err := os.Open(*gcodePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		input = f
	}

	var err error
	if *device != "" {
		err = runSerial(input)
	} else {
		err = runLocal(input)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runLocal feeds the G-code to an in-process interpreter.
func runLocal(input io.Reader) error {
	var cfg *config.MachineConfig
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return err
		}
		cfg, err = config.LoadConfig(data)
		if err != nil {
			return err
		}
	} else {
		cfg = config.DefaultScaraConfig()
	}

	mgr, err := motion.NewManagerWithConfig(cfg)
	if err != nil {
		return err
	}

	override, err := os.Create(*overridePath)
	if err != nil {
		return err
	}
	defer override.Close()
	mgr.SetOverrideTarget(override)

	if err := mgr.Start(); err != nil {
		return err
	}
	os.Stdout.Write(mgr.GetOutput())

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := scanner.Text()
		if *verbose {
			fmt.Println("> " + line)
		}
		for i := 0; i < len(line); i++ {
			mgr.ProcessByte(line[i])
		}
		mgr.ProcessByte('\n')
		if out := mgr.GetOutput(); out != nil {
			os.Stdout.Write(out)
		}
	}
	return scanner.Err()
}

// runSerial streams the G-code over a serial link, waiting for each
// command to be acknowledged before sending the next.
func runSerial(input io.Reader) error {
	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud

	port, err := serial.Open(cfg)
	if err != nil {
		return err
	}
	defer port.Close()

	responses := bufio.NewScanner(port)
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if *verbose {
			fmt.Println("> " + line)
		}
		if _, err := port.Write([]byte(line + "\n")); err != nil {
			return err
		}
		if err := awaitAck(responses); err != nil {
			return fmt.Errorf("%q: %w", line, err)
		}
	}
	return scanner.Err()
}

// awaitAck reads responses until the machine acknowledges the command.
func awaitAck(responses *bufio.Scanner) error {
	for responses.Scan() {
		resp := strings.TrimSpace(responses.Text())
		if resp == "" {
			continue
		}
		if resp == "ok" {
			return nil
		}
		if strings.HasPrefix(resp, "Error:") {
			return fmt.Errorf("machine reported %q", resp)
		}
		fmt.Println(resp)
	}
	if err := responses.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}
