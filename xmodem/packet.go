package xmodem

// Block is one framed data block as transmitted.
//
// Layout:
//
//	[0]      SOH
//	[1]      sequence
//	[2]      255 - sequence
//	[3:131]  payload
//	[131]    checksum (sum of payload mod 256)
type Block [BlockSize]byte

// Sequence returns the block number.
func (b *Block) Sequence() uint8 { return b[1] }

// Complement returns the one's complement check of the block number.
func (b *Block) Complement() uint8 { return b[2] }

// Payload returns the 128 payload bytes. The slice aliases the block.
func (b *Block) Payload() []byte { return b[payloadOffset:ChecksumOffset] }

// Checksum returns the transmitted checksum byte.
func (b *Block) Checksum() byte { return b[ChecksumOffset] }

// Checksum computes the additive checksum: the sum of all bytes modulo 256.
func Checksum(data []byte) byte {
	var sum byte
	for _, c := range data {
		sum += c
	}
	return sum
}

// Encode builds the block carrying payload under sequence seq. A payload
// shorter than PayloadSize is padded with Filler; anything past PayloadSize is
// ignored.
func Encode(seq uint8, payload []byte) Block {
	var b Block
	b[0] = SOH
	b[1] = seq
	b[2] = 0xFF - seq

	n := copy(b[payloadOffset:ChecksumOffset], payload)
	for i := payloadOffset + n; i < ChecksumOffset; i++ {
		b[i] = Filler
	}

	b[ChecksumOffset] = Checksum(b[payloadOffset:ChecksumOffset])
	return b
}

// Decode validates a raw block and returns its sequence number and a copy of
// its payload.
//
// The checksum is verified before the sequence complement, so a block that is
// broken in both places reports ErrChecksum. The leading control byte is not
// inspected; the caller has already used it to frame the block.
func Decode(raw []byte) (uint8, []byte, error) {
	if len(raw) != BlockSize {
		return 0, nil, newErrorf(ErrInvalidBlock, "block is %d bytes, want %d", len(raw), BlockSize)
	}

	seq := raw[1]
	check := raw[2]
	payload := raw[payloadOffset:ChecksumOffset]

	if sum := Checksum(payload); sum != raw[ChecksumOffset] {
		return seq, nil, newErrorf(ErrChecksum, "bad checksum %d != %d", sum, raw[ChecksumOffset])
	}

	if int(seq)+int(check) != 0xFF {
		return seq, nil, newErrorf(ErrSequence, "1s complement bad %d + %d != 255", seq, check)
	}

	out := make([]byte, PayloadSize)
	copy(out, payload)
	return seq, out, nil
}

// Chunk splits data into PayloadSize pages, padding the last page with
// Filler. An empty payload yields no pages.
func Chunk(data []byte) [][]byte {
	pages := make([][]byte, 0, (len(data)+PayloadSize-1)/PayloadSize)
	for len(data) > 0 {
		page := make([]byte, PayloadSize)
		n := copy(page, data)
		for i := n; i < PayloadSize; i++ {
			page[i] = Filler
		}
		pages = append(pages, page)
		data = data[n:]
	}
	return pages
}

// sequenceFor maps an unwrapped block index to its 8-bit wire sequence.
func sequenceFor(index int) uint8 {
	return uint8((StartBlock + index) % 256)
}
