package xmodem

import (
	"context"
	"io"
	"time"
)

// Session represents an XMODEM endpoint on one transport.
// It provides a high-level API for sending and receiving files; every call
// runs a fresh Sender or Receiver.
type Session struct {
	rw io.ReadWriter

	// Configuration
	config *Config

	// Subscribers attached to every engine the session creates
	subscribers []subscriber

	// Context
	ctx context.Context

	// last is the receiver of the most recent ReceiveFile call
	last *Receiver
}

type subscriber struct {
	name string
	fn   Handler
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the session configuration.
func WithConfig(config *Config) Option {
	return func(s *Session) {
		if config == nil {
			return
		}
		c := *config
		s.config = &c
	}
}

// WithLogger sets a logger for protocol debugging.
func WithLogger(logger Logger) Option {
	return func(s *Session) {
		s.config.Logger = logger
	}
}

// WithContext sets the default context used when a call passes nil.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		s.ctx = ctx
	}
}

// WithPrimeInterval sets how often the receiver repeats its initial NAK.
func WithPrimeInterval(d time.Duration) Option {
	return func(s *Session) {
		s.config.PrimeInterval = d
	}
}

// WithTrace records accepted sequence numbers on receive.
func WithTrace(trace bool) Option {
	return func(s *Session) {
		s.config.Trace = trace
	}
}

// WithSubscriber subscribes h to the named event on every engine.
func WithSubscriber(name string, h Handler) Option {
	return func(s *Session) {
		s.subscribers = append(s.subscribers, subscriber{name: name, fn: h})
	}
}

// NewSession creates a new XMODEM session over rw.
func NewSession(rw io.ReadWriter, opts ...Option) *Session {
	s := &Session{
		rw:     rw,
		config: DefaultConfig(),
		ctx:    context.Background(),
	}

	for _, opt := range opts {
		opt(s)
	}
	s.config = s.config.withDefaults()

	return s
}

// Config returns the effective configuration.
func (s *Session) Config() *Config {
	return s.config
}

func (s *Session) attach(r *Registry) {
	for _, sub := range s.subscribers {
		r.Subscribe(sub.name, sub.fn)
	}
}

// SendFile reads everything from file and sends it.
func (s *Session) SendFile(ctx context.Context, file io.Reader) error {
	if ctx == nil {
		ctx = s.ctx
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return newErrorf(ErrIO, "read source: %v", err)
	}

	sender := NewSender(s.rw, s.config)
	s.attach(sender.Events())

	s.config.Logger.Info("SendFile: %d bytes", len(data))
	return sender.Send(ctx, data)
}

// ReceiveFile receives one transfer and writes the blocks to file in order.
// The output is a multiple of PayloadSize bytes; trailing Filler is kept.
// It returns the number of bytes written.
func (s *Session) ReceiveFile(ctx context.Context, file io.Writer) (int64, error) {
	if ctx == nil {
		ctx = s.ctx
	}

	receiver := NewReceiver(s.rw, s.config)
	s.attach(receiver.Events())
	s.last = receiver

	packets, err := receiver.Receive(ctx)
	if err != nil {
		return 0, err
	}

	var written int64
	for _, p := range packets {
		n, err := file.Write(p)
		written += int64(n)
		if err != nil {
			s.config.Logger.Error("ReceiveFile: write error: %v", err)
			return written, err
		}
	}

	s.config.Logger.Info("ReceiveFile: completed, %d bytes", written)
	return written, nil
}

// Sequences returns the sequence numbers accepted by the last ReceiveFile
// call. Empty unless tracing is enabled.
func (s *Session) Sequences() []uint8 {
	if s.last == nil {
		return nil
	}
	return s.last.Sequences()
}
