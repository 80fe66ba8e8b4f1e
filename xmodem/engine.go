package xmodem

import (
	"errors"
	"fmt"
	"io"
)

// engine holds what the sender and receiver share: the transport, the event
// registry and the diagnostic logger.
type engine struct {
	io     *xmodemIO
	events *Registry
	logger Logger
}

func newEngine(rw io.ReadWriter, config *Config) engine {
	return engine{
		io:     newXmodemIO(rw, config.ReadSize),
		events: NewRegistry(),
		logger: config.Logger,
	}
}

// Events returns the registry the engine publishes log, status and cmd
// events to.
func (e *engine) Events() *Registry {
	return e.events
}

func (e *engine) log(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	e.logger.Debug("%s", msg)
	e.events.Publish(EventLog, msg)
}

func (e *engine) status(n int64) {
	e.events.Publish(EventStatus, n)
}

// received reports a control byte read from the peer.
func (e *engine) received(b byte) {
	e.events.Publish(EventCommand, Command(b))
	e.log("< %s", Command(b))
}

// writeCommand reports and writes a single control byte.
func (e *engine) writeCommand(b byte) error {
	e.events.Publish(EventCommand, Command(b))
	e.log("> %s", Command(b))
	return e.io.WriteByte(b)
}

// failure publishes the reason a transfer aborted. Protocol errors and
// transport errors alike are reported before they reach the caller.
func (e *engine) failure(err error) {
	var xerr *Error
	if errors.As(err, &xerr) {
		e.logger.Error("transfer failed: %v", err)
	} else {
		e.logger.Error("transport failed: %v", err)
	}
	e.events.Publish(EventLog, fmt.Sprintf("FAILURE: %v", err))
}
