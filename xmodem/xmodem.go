// Package xmodem implements the XMODEM file transfer protocol.
//
// This is the original 128-byte block variant with a one byte additive
// checksum. A sender pushes a payload to a receiver in fixed size blocks over
// any ordered byte stream (a serial line, an SSH session, a pipe), using
// stop-and-wait flow control and retransmission on NAK.
//
// The receiver deliberately challenges the first EOT with a NAK and only
// accepts the second one. The sender answers that challenge by repeating EOT
// once. Peers built against this behaviour depend on it, so it is not
// normalised to the single EOT handshake.
//
// Received blocks are returned still padded with Filler bytes. The protocol
// carries no length field, so trimming is left to the caller.
package xmodem

import "fmt"

// Control bytes
const (
	// SOH starts a 128-byte data block
	SOH = 0x01

	// EOT ends the transmission
	EOT = 0x04

	// ACK acknowledges a block, or requests the next one
	ACK = 0x06

	// NAK rejects a block, or requests (re)transmission
	NAK = 0x15

	// Filler pads a short final block (CP/M EOF)
	Filler = 0x1A
)

// Block geometry
const (
	// PayloadSize is the number of data bytes carried by a block
	PayloadSize = 128

	// BlockSize is the on-wire size: SOH, seq, ^seq, payload, checksum
	BlockSize = PayloadSize + 4

	// ChecksumOffset is the position of the checksum byte within a block
	ChecksumOffset = BlockSize - 1

	// payloadOffset is the position of the first payload byte
	payloadOffset = 3
)

// StartBlock is the sequence number of the first block. Don't change this
// unless you need a non-standard peer.
const StartBlock = 1

// Command is a single control byte as seen on the wire.
type Command byte

var commandNames = map[byte]string{
	SOH: "SOH",
	EOT: "EOT",
	ACK: "ACK",
	NAK: "NAK",
}

// String returns the mnemonic for known control bytes and hex otherwise.
func (c Command) String() string {
	if name, ok := commandNames[byte(c)]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", byte(c))
}

// frameKind is the closed set of things a leading byte can announce.
type frameKind int

const (
	kindUnknown frameKind = iota
	kindSOH
	kindEOT
	kindACK
	kindNAK
)

func classify(b byte) frameKind {
	switch b {
	case SOH:
		return kindSOH
	case EOT:
		return kindEOT
	case ACK:
		return kindACK
	case NAK:
		return kindNAK
	default:
		return kindUnknown
	}
}
