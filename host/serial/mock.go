package serial

import (
	"bytes"
	"io"
	"sync"
)

// MockPort is an in-memory Port for tests. Reads drain data queued with
// QueueRead; writes accumulate and can be inspected with Written.
type MockPort struct {
	mu      sync.Mutex
	read    bytes.Buffer
	written bytes.Buffer
	closed  bool
}

// NewMockPort creates an empty mock port.
func NewMockPort() *MockPort {
	return &MockPort{}
}

// QueueRead appends data to be returned by subsequent Reads.
func (p *MockPort) QueueRead(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.read.Write(data)
}

// Written returns everything written so far.
func (p *MockPort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, p.written.Len())
	copy(out, p.written.Bytes())
	return out
}

func (p *MockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.EOF
	}
	return p.read.Read(b)
}

func (p *MockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	return p.written.Write(b)
}

func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *MockPort) Flush() error {
	return nil
}
