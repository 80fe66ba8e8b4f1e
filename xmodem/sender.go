package xmodem

import (
	"context"
	"io"
	"sync/atomic"
)

// SenderState is a state of the send-side state machine.
type SenderState int32

const (
	SenderAwaitingStart SenderState = iota
	SenderSending
	SenderAwaitingFinalAck
	SenderDone
	SenderFailed
)

func (s SenderState) String() string {
	switch s {
	case SenderAwaitingStart:
		return "AwaitingStart"
	case SenderSending:
		return "Sending"
	case SenderAwaitingFinalAck:
		return "AwaitingFinalAck"
	case SenderDone:
		return "Done"
	case SenderFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Sender pushes one payload to a receiving peer.
//
// Flow:
//  1. Wait for the peer's NAK (an ACK is accepted as well)
//  2. Send block n, wait for ACK/NAK
//  3. NAK: step back one block and send it again
//  4. ACK after the last block: send EOT
//  5. Wait for the final ACK, answering each NAK with another EOT
//
// Step 5 departs from the plain protocol, where anything but ACK after EOT
// is an error: the receiver challenges the first EOT with a NAK, and stale
// NAKs from its priming timer can still be in flight.
//
// A Sender performs exactly one transfer.
type Sender struct {
	engine

	state atomic.Int32
	used  atomic.Bool

	pages [][]byte

	// index is the unwrapped position of the next block to send; the wire
	// sequence is derived from it so that wraparound never confuses the
	// step-back on NAK.
	index int

	// bytes is the highest progress value published so far
	bytes int64

	// eotRetries counts NAKs answered in AwaitingFinalAck
	eotRetries int
}

// maxEOTRetries bounds the NAKs answered with EOT while waiting for the
// final ACK.
const maxEOTRetries = 10

// NewSender creates a sender that will use rw as its transport for a single
// transfer. The caller keeps ownership of rw.
func NewSender(rw io.ReadWriter, config *Config) *Sender {
	config = config.withDefaults()
	return &Sender{engine: newEngine(rw, config)}
}

// State returns the current state.
func (s *Sender) State() SenderState {
	return SenderState(s.state.Load())
}

func (s *Sender) setState(st SenderState) {
	old := SenderState(s.state.Swap(int32(st)))
	if old != st {
		s.logger.Debug("sender: %s -> %s", old, st)
	}
}

// Send transmits payload and returns once the peer acknowledged the final
// EOT. Protocol violations fail with ErrUnexpectedResponse; transport errors
// are returned unchanged.
func (s *Sender) Send(ctx context.Context, payload []byte) error {
	if !s.used.CompareAndSwap(false, true) {
		return NewError(ErrSessionUsed, "sender already used")
	}

	s.pages = Chunk(payload)
	s.log("sending %d bytes", len(payload))
	s.log("created %d pages of %d bytes", len(s.pages), PayloadSize)
	s.log("start send, waiting for NAK")

	for {
		chunk, err := s.io.ReadChunk(ctx)
		if err != nil {
			return s.abort(err)
		}

		for _, b := range chunk {
			done, err := s.handle(b)
			if err != nil {
				return s.abort(err)
			}
			if done {
				s.logger.Info("sender: completed, %d blocks", len(s.pages))
				return nil
			}
		}
	}
}

func (s *Sender) abort(err error) error {
	s.setState(SenderFailed)
	s.failure(err)
	return err
}

// handle runs one state transition for a byte from the peer.
func (s *Sender) handle(b byte) (bool, error) {
	s.received(b)
	state := s.State()

	if state == SenderAwaitingFinalAck {
		switch classify(b) {
		case kindACK:
			s.setState(SenderDone)
			s.log("completed send transmission")
			return true, nil
		case kindNAK:
			if s.eotRetries < maxEOTRetries {
				s.eotRetries++
				s.log("EOT challenged, repeating EOT")
				return false, s.writeCommand(EOT)
			}
			return false, NewByteError(ErrUnexpectedResponse, "EOT never acknowledged", b, state.String())
		default:
			return false, NewByteError(ErrUnexpectedResponse, "sent EOT but unexpected response", b, state.String())
		}
	}

	switch classify(b) {
	case kindNAK:
		if s.index > 0 {
			s.log("resending last packet")
			s.index--
		}
		return false, s.advance()
	case kindACK:
		return false, s.advance()
	default:
		return false, NewByteError(ErrUnexpectedResponse, "unexpected response", b, state.String())
	}
}

// advance sends the block at the current index, or EOT once every block has
// gone out.
func (s *Sender) advance() error {
	if s.index == len(s.pages) {
		s.setState(SenderAwaitingFinalAck)
		return s.writeCommand(EOT)
	}

	s.setState(SenderSending)

	seq := sequenceFor(s.index)
	block := Encode(seq, s.pages[s.index])

	s.events.Publish(EventCommand, Command(SOH))
	s.log("> SOH packetId: %d", seq)
	s.logger.Debug("%s", FormatBlockLog(">", &block))

	if err := s.io.Write(block[:]); err != nil {
		return err
	}

	s.index++
	if sent := int64(s.index) * PayloadSize; sent > s.bytes {
		s.bytes = sent
	}
	s.status(s.bytes)
	return nil
}
