package xmodem

import (
	"fmt"
	"strings"
	"sync"

	"github.com/armon/circbuf"
)

// CommandTrace keeps the most recent control bytes seen on a transfer, for
// dumping when something goes wrong. Subscribe Handler() to EventCommand.
type CommandTrace struct {
	mu  sync.Mutex
	buf *circbuf.Buffer
}

// NewCommandTrace creates a trace holding the last size control bytes.
func NewCommandTrace(size int64) (*CommandTrace, error) {
	buf, err := circbuf.NewBuffer(size)
	if err != nil {
		return nil, err
	}
	return &CommandTrace{buf: buf}, nil
}

// Handler returns an event handler suitable for EventCommand.
func (t *CommandTrace) Handler() Handler {
	return func(args ...interface{}) {
		if len(args) == 0 {
			return
		}
		if c, ok := args[0].(Command); ok {
			t.Record(c)
		}
	}
}

// Record appends one control byte.
func (t *CommandTrace) Record(c Command) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write([]byte{byte(c)})
}

// Commands returns the retained control bytes, oldest first.
func (t *CommandTrace) Commands() []Command {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw := t.buf.Bytes()
	out := make([]Command, len(raw))
	for i, b := range raw {
		out[i] = Command(b)
	}
	return out
}

// Total returns how many control bytes were ever recorded.
func (t *CommandTrace) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.TotalWritten()
}

// String renders the trace as space separated mnemonics.
func (t *CommandTrace) String() string {
	cmds := t.Commands()
	parts := make([]string, len(cmds))
	for i, c := range cmds {
		parts[i] = c.String()
	}
	s := strings.Join(parts, " ")
	if dropped := t.Total() - int64(len(cmds)); dropped > 0 {
		s = fmt.Sprintf("(%d earlier) %s", dropped, s)
	}
	return s
}
