package xmodem

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// MockPort is a scripted transport. Reads are served from queued chunks in
// order; writes are recorded and may trigger a reply through OnWrite.
type MockPort struct {
	mu       sync.Mutex
	in       chan []byte
	leftover []byte
	writes   [][]byte
	readErr  error
	writeErr error

	// OnWrite is called with a copy of every successful write
	OnWrite func(m *MockPort, p []byte)
}

func NewMockPort() *MockPort {
	return &MockPort{in: make(chan []byte, 4096)}
}

// Push queues one chunk to be returned by a single Read.
func (m *MockPort) Push(chunks ...[]byte) {
	for _, c := range chunks {
		m.in <- append([]byte(nil), c...)
	}
}

// Close ends the input stream; further reads return readErr or io.EOF.
func (m *MockPort) Close() {
	close(m.in)
}

func (m *MockPort) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

func (m *MockPort) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

func (m *MockPort) Read(p []byte) (int, error) {
	if len(m.leftover) > 0 {
		n := copy(p, m.leftover)
		m.leftover = m.leftover[n:]
		return n, nil
	}

	chunk, ok := <-m.in
	if !ok {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.readErr != nil {
			return 0, m.readErr
		}
		return 0, io.EOF
	}
	n := copy(p, chunk)
	m.leftover = chunk[n:]
	return n, nil
}

func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return 0, err
	}
	c := append([]byte(nil), p...)
	m.writes = append(m.writes, c)
	hook := m.OnWrite
	m.mu.Unlock()

	if hook != nil {
		hook(m, c)
	}
	return len(p), nil
}

// Writes returns every write so far.
func (m *MockPort) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// Written returns all written bytes concatenated.
func (m *MockPort) Written() []byte {
	var buf bytes.Buffer
	for _, w := range m.Writes() {
		buf.Write(w)
	}
	return buf.Bytes()
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(d time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

// eventLog collects published events for assertions.
type eventLog struct {
	mu       sync.Mutex
	logs     []string
	statuses []int64
	commands []Command
}

func (e *eventLog) attach(r *Registry) {
	r.Subscribe(EventLog, func(args ...interface{}) {
		e.mu.Lock()
		e.logs = append(e.logs, args[0].(string))
		e.mu.Unlock()
	})
	r.Subscribe(EventStatus, func(args ...interface{}) {
		e.mu.Lock()
		e.statuses = append(e.statuses, args[0].(int64))
		e.mu.Unlock()
	})
	r.Subscribe(EventCommand, func(args ...interface{}) {
		e.mu.Lock()
		e.commands = append(e.commands, args[0].(Command))
		e.mu.Unlock()
	})
}

func (e *eventLog) lastStatus() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.statuses) == 0 {
		return -1
	}
	return e.statuses[len(e.statuses)-1]
}

func (e *eventLog) hasLogPrefix(prefix string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, l := range e.logs {
		if len(l) >= len(prefix) && l[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func seqPayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i + 1)
	}
	return p
}

func blockBytes(seq uint8, payload []byte) []byte {
	b := Encode(seq, payload)
	return b[:]
}
