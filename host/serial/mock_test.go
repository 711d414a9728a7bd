package serial

import (
	"bufio"
	"testing"
)

func TestMockPortRoundTrip(t *testing.T) {
	p := NewMockPort()

	if _, err := p.Write([]byte("G28\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := string(p.Written()); got != "G28\n" {
		t.Errorf("Written() = %q", got)
	}

	p.QueueRead([]byte("ok\n"))
	scanner := bufio.NewScanner(p)
	if !scanner.Scan() || scanner.Text() != "ok" {
		t.Errorf("read %q, want ok", scanner.Text())
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := p.Write([]byte("x")); err == nil {
		t.Error("write after close did not fail")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM0")
	if cfg.Device != "/dev/ttyACM0" || cfg.Baud != 115200 {
		t.Errorf("DefaultConfig = %+v", cfg)
	}
}
