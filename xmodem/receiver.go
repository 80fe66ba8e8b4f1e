package xmodem

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ReceiverState is a state of the receive-side state machine.
type ReceiverState int32

const (
	ReceiverPriming ReceiverState = iota
	ReceiverAwaitingBlock
	ReceiverValidatingBlock
	ReceiverAwaitingEOT
	ReceiverDone
	ReceiverFailed
)

func (s ReceiverState) String() string {
	switch s {
	case ReceiverPriming:
		return "Priming"
	case ReceiverAwaitingBlock:
		return "AwaitingBlock"
	case ReceiverValidatingBlock:
		return "ValidatingBlock"
	case ReceiverAwaitingEOT:
		return "AwaitingEOT"
	case ReceiverDone:
		return "Done"
	case ReceiverFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Receiver accepts one payload from a sending peer.
//
// Flow:
//  1. Send NAK now and every PrimeInterval until the first byte arrives
//  2. Buffer reads into 132-byte blocks; validate, ACK or NAK each one
//  3. First EOT is answered with NAK, the second one with ACK
//
// A Receiver performs exactly one transfer.
type Receiver struct {
	engine

	state atomic.Int32
	used  atomic.Bool

	primeInterval time.Duration
	trace         bool

	expected  uint8
	packets   [][]byte
	pending   []byte
	sequences []uint8
}

// NewReceiver creates a receiver that will use rw as its transport for a
// single transfer. The caller keeps ownership of rw.
func NewReceiver(rw io.ReadWriter, config *Config) *Receiver {
	config = config.withDefaults()
	r := &Receiver{
		engine:        newEngine(rw, config),
		primeInterval: config.PrimeInterval,
		trace:         config.Trace,
		expected:      StartBlock,
	}
	r.logger.Info("Receiver created (prime=%v, trace=%v)", config.PrimeInterval, config.Trace)
	return r
}

// State returns the current state.
func (r *Receiver) State() ReceiverState {
	return ReceiverState(r.state.Load())
}

func (r *Receiver) setState(st ReceiverState) {
	old := ReceiverState(r.state.Swap(int32(st)))
	if old != st {
		r.logger.Debug("receiver: %s -> %s", old, st)
	}
}

// Sequences returns the sequence numbers of the accepted blocks, in order.
// It is only populated when Config.Trace is set.
func (r *Receiver) Sequences() []uint8 {
	out := make([]uint8, len(r.sequences))
	copy(out, r.sequences)
	return out
}

// Receive runs the transfer and returns the accepted payloads in order, each
// PayloadSize bytes and still padded with Filler.
//
// Corrupt or out-of-sequence blocks are NAKed and retried without limit.
// Protocol violations fail with ErrUnexpectedByte; transport errors are
// returned unchanged.
func (r *Receiver) Receive(ctx context.Context) ([][]byte, error) {
	if !r.used.CompareAndSwap(false, true) {
		return nil, NewError(ErrSessionUsed, "receiver already used")
	}

	r.log("start receive")

	// immediately keep sending a NAK to tell the sender we want data
	if err := r.writeCommand(NAK); err != nil {
		return nil, r.abort(err)
	}
	p := r.startPriming()
	defer p.stop()

	for {
		chunk, err := r.io.ReadChunk(ctx)
		if err != nil {
			return nil, r.abort(err)
		}
		if p.stop() {
			r.setState(ReceiverAwaitingBlock)
		}

		r.pending = append(r.pending, chunk...)

		done, err := r.drain()
		if err != nil {
			return nil, r.abort(err)
		}
		if done {
			r.logger.Info("receiver: completed, %d blocks", len(r.packets))
			return r.packets, nil
		}
	}
}

func (r *Receiver) abort(err error) error {
	r.setState(ReceiverFailed)
	r.failure(err)
	return err
}

// drain consumes every complete frame in the pending buffer. A partial block
// stays buffered until more data arrives.
func (r *Receiver) drain() (bool, error) {
	for len(r.pending) > 0 {
		lead := r.pending[0]

		if r.State() == ReceiverAwaitingEOT {
			r.received(lead)
			r.pending = r.pending[1:]
			switch classify(lead) {
			case kindEOT:
				if err := r.writeCommand(ACK); err != nil {
					return false, err
				}
				r.setState(ReceiverDone)
				r.log("completed receive transmission")
				return true, nil
			default:
				if err := r.writeCommand(NAK); err != nil {
					return false, err
				}
				r.log("expected EOT, got %s", Command(lead))
				return false, NewByteError(ErrUnexpectedByte, "expected EOT", lead, ReceiverAwaitingEOT.String())
			}
		}

		switch classify(lead) {
		case kindEOT:
			// The first EOT is challenged once; only a repeated EOT ends
			// the transfer.
			r.received(lead)
			r.pending = r.pending[1:]
			if err := r.writeCommand(NAK); err != nil {
				return false, err
			}
			r.setState(ReceiverAwaitingEOT)
		case kindSOH:
			if len(r.pending) < BlockSize {
				return false, nil
			}
			raw := r.pending[:BlockSize]
			r.pending = r.pending[BlockSize:]
			if err := r.process(raw); err != nil {
				return false, err
			}
		default:
			r.received(lead)
			r.pending = r.pending[1:]
			if err := r.writeCommand(NAK); err != nil {
				return false, err
			}
			return false, NewByteError(ErrUnexpectedByte, "expected SOH or EOT", lead, r.State().String())
		}
	}
	return false, nil
}

// process validates one full block and answers it.
func (r *Receiver) process(raw []byte) error {
	r.setState(ReceiverValidatingBlock)
	defer func() {
		if r.State() == ReceiverValidatingBlock {
			r.setState(ReceiverAwaitingBlock)
		}
	}()

	r.events.Publish(EventCommand, Command(SOH))
	r.log("< SOH packetId: %d", raw[1])

	seq, payload, err := Decode(raw)
	if err != nil {
		// bad packet, ask for it again
		r.log("%s", err.(*Error).Message)
		return r.writeCommand(NAK)
	}

	if seq != r.expected {
		r.log("unexpected packetId %d (want %d) - sending NAK", seq, r.expected)
		return r.writeCommand(NAK)
	}

	// roll the expected sequence allowing for more than 255 packets
	r.expected++

	r.packets = append(r.packets, payload)
	if r.trace {
		r.sequences = append(r.sequences, seq)
	}

	r.status(int64(len(r.packets)) * PayloadSize)

	// ask for more
	return r.writeCommand(ACK)
}

// primer repeats NAK on a timer until stopped.
type primer struct {
	done chan struct{}
	once sync.Once

	// mu is held across a priming write, so once stop returns no further
	// NAK can reach the wire.
	mu      sync.Mutex
	stopped bool
}

func (r *Receiver) startPriming() *primer {
	p := &primer{done: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(r.primeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				if err := p.tick(r); err != nil {
					r.logger.Error("priming NAK failed: %v", err)
					return
				}
			}
		}
	}()

	return p
}

func (p *primer) tick(r *Receiver) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	return r.writeCommand(NAK)
}

// stop cancels the timer, waiting for a NAK already being written. It
// reports true only for the call that actually stopped it.
func (p *primer) stop() bool {
	first := false
	p.once.Do(func() {
		first = true
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.done)
	})
	return first
}
