package xmodem

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

// quietConfig keeps the priming timer out of the way.
func quietConfig() *Config {
	c := DefaultConfig()
	c.PrimeInterval = time.Hour
	return c
}

func TestReceiverCleanTransfer(t *testing.T) {
	payload := seqPayload(10)
	block := blockBytes(1, payload)

	port := NewMockPort()
	// deliver the block in arbitrary pieces
	port.Push(block[:1], block[1:50], block[50:131], block[131:])
	port.Push([]byte{EOT}, []byte{EOT})

	r := NewReceiver(port, quietConfig())
	var events eventLog
	events.attach(r.Events())

	packets, err := r.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	if r.State() != ReceiverDone {
		t.Errorf("state = %s, want Done", r.State())
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	want := Encode(1, payload)
	if !bytes.Equal(packets[0], want.Payload()) {
		t.Error("payload mismatch (expected filler-padded block)")
	}
	if got := port.Written(); !bytes.Equal(got, []byte{NAK, ACK, NAK, ACK}) {
		t.Errorf("written = % x, want NAK ACK NAK ACK", got)
	}
	if got := events.lastStatus(); got != 128 {
		t.Errorf("last status = %d, want 128", got)
	}
}

func TestReceiverRejectsBadBlocks(t *testing.T) {
	good := blockBytes(1, seqPayload(128))

	badSum := append([]byte(nil), good...)
	badSum[ChecksumOffset] ^= 0xFF

	badComplement := append([]byte(nil), good...)
	badComplement[2] = 0

	outOfOrder := blockBytes(2, seqPayload(128))

	tests := []struct {
		name  string
		first []byte
	}{
		{name: "checksum", first: badSum},
		{name: "complement", first: badComplement},
		{name: "sequence", first: outOfOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := NewMockPort()
			port.Push(tt.first, good, []byte{EOT}, []byte{EOT})

			r := NewReceiver(port, quietConfig())
			packets, err := r.Receive(context.Background())
			if err != nil {
				t.Fatalf("Receive() error = %v", err)
			}
			if len(packets) != 1 {
				t.Fatalf("got %d packets, want 1", len(packets))
			}
			want := []byte{NAK, NAK, ACK, NAK, ACK}
			if got := port.Written(); !bytes.Equal(got, want) {
				t.Errorf("written = % x, want % x", got, want)
			}
		})
	}
}

func TestReceiverDuplicateBlockIsNAKed(t *testing.T) {
	b1 := blockBytes(1, seqPayload(128))
	b2 := blockBytes(2, seqPayload(128))

	port := NewMockPort()
	port.Push(b1, b1, b2, []byte{EOT}, []byte{EOT})

	r := NewReceiver(port, quietConfig())
	packets, err := r.Receive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}
	want := []byte{NAK, ACK, NAK, ACK, NAK, ACK}
	if got := port.Written(); !bytes.Equal(got, want) {
		t.Errorf("written = % x, want % x", got, want)
	}
}

func TestReceiverSeveralFramesInOneChunk(t *testing.T) {
	var chunk []byte
	chunk = append(chunk, blockBytes(1, seqPayload(128))...)
	chunk = append(chunk, blockBytes(2, seqPayload(5))...)
	chunk = append(chunk, EOT, EOT)

	port := NewMockPort()
	port.Push(chunk)

	r := NewReceiver(port, quietConfig())
	packets, err := r.Receive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}
}

// The first EOT is challenged with NAK; a data block in its place is a
// protocol violation.
func TestReceiverBlockInsteadOfSecondEOT(t *testing.T) {
	block := blockBytes(1, seqPayload(10))

	port := NewMockPort()
	port.Push(block, []byte{EOT}, blockBytes(2, seqPayload(10)))

	r := NewReceiver(port, quietConfig())
	var events eventLog
	events.attach(r.Events())

	_, err := r.Receive(context.Background())
	if !isType(err, ErrUnexpectedByte) {
		t.Fatalf("error = %v, want unexpected byte", err)
	}
	if b, ok := OffendingByte(err); !ok || b != SOH {
		t.Errorf("offending byte = 0x%02x, want 0x01", b)
	}
	var xerr *Error
	if errors.As(err, &xerr) && xerr.State != "AwaitingEOT" {
		t.Errorf("state in error = %q, want AwaitingEOT", xerr.State)
	}
	if r.State() != ReceiverFailed {
		t.Errorf("state = %s, want Failed", r.State())
	}

	want := []byte{NAK, ACK, NAK, NAK}
	if got := port.Written(); !bytes.Equal(got, want) {
		t.Errorf("written = % x, want % x", got, want)
	}
	if !events.hasLogPrefix("FAILURE") {
		t.Error("failure not published before returning")
	}
}

func TestReceiverUnknownLeadByte(t *testing.T) {
	port := NewMockPort()
	port.Push([]byte{'C'})

	r := NewReceiver(port, quietConfig())
	_, err := r.Receive(context.Background())
	if !isType(err, ErrUnexpectedByte) {
		t.Fatalf("error = %v, want unexpected byte", err)
	}
	if got := port.Written(); !bytes.Equal(got, []byte{NAK, NAK}) {
		t.Errorf("written = % x, want NAK NAK", got)
	}
}

func TestReceiverEmptyTransfer(t *testing.T) {
	port := NewMockPort()
	port.Push([]byte{EOT}, []byte{EOT})

	r := NewReceiver(port, quietConfig())
	packets, err := r.Receive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(packets) != 0 {
		t.Errorf("got %d packets, want 0", len(packets))
	}
}

func TestReceiverPrimingStopsOnFirstByte(t *testing.T) {
	config := DefaultConfig()
	config.PrimeInterval = 5 * time.Millisecond

	port := NewMockPort()
	r := NewReceiver(port, config)

	type result struct {
		packets [][]byte
		err     error
	}
	done := make(chan result, 1)
	go func() {
		p, err := r.Receive(context.Background())
		done <- result{p, err}
	}()

	primed := waitFor(2*time.Second, func() bool {
		return len(port.Writes()) >= 3
	})
	if !primed {
		t.Fatal("receiver did not repeat NAK while idle")
	}
	for _, w := range port.Writes() {
		if !bytes.Equal(w, []byte{NAK}) {
			t.Fatalf("priming wrote % x, want NAK only", w)
		}
	}

	port.Push(blockBytes(1, seqPayload(10)), []byte{EOT}, []byte{EOT})

	res := <-done
	if res.err != nil {
		t.Fatalf("Receive() error = %v", res.err)
	}

	after := len(port.Writes())
	time.Sleep(30 * time.Millisecond)
	if n := len(port.Writes()); n != after {
		t.Errorf("%d writes after completion, priming not cancelled", n-after)
	}

	writes := port.Writes()
	tail := bytes.Join(writes[len(writes)-3:], nil)
	if !bytes.Equal(tail, []byte{ACK, NAK, ACK}) {
		t.Errorf("tail = % x, want ACK NAK ACK", tail)
	}
}

func TestReceiverTrace(t *testing.T) {
	config := quietConfig()
	config.Trace = true

	port := NewMockPort()
	port.Push(blockBytes(1, nil), blockBytes(2, nil), []byte{EOT}, []byte{EOT})

	r := NewReceiver(port, config)
	if _, err := r.Receive(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.Sequences(); !bytes.Equal(got, []uint8{1, 2}) {
		t.Errorf("sequences = %v, want [1 2]", got)
	}
}

func TestReceiverTransportErrors(t *testing.T) {
	t.Run("end of stream", func(t *testing.T) {
		port := NewMockPort()
		port.Push(blockBytes(1, nil)[:40])
		port.Close()

		r := NewReceiver(port, quietConfig())
		if _, err := r.Receive(context.Background()); err != io.ErrUnexpectedEOF {
			t.Fatalf("error = %v, want io.ErrUnexpectedEOF", err)
		}
	})

	t.Run("write error", func(t *testing.T) {
		writeErr := errors.New("port gone")
		port := NewMockPort()
		port.SetWriteError(writeErr)

		r := NewReceiver(port, quietConfig())
		if _, err := r.Receive(context.Background()); err != writeErr {
			t.Fatalf("error = %v, want %v", err, writeErr)
		}
		if r.State() != ReceiverFailed {
			t.Errorf("state = %s, want Failed", r.State())
		}
	})
}

func TestReceiverSingleUse(t *testing.T) {
	port := NewMockPort()
	port.Push([]byte{EOT}, []byte{EOT})

	r := NewReceiver(port, quietConfig())
	if _, err := r.Receive(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Receive(context.Background()); !isType(err, ErrSessionUsed) {
		t.Errorf("second Receive error = %v, want session used", err)
	}
}
