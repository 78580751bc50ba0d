package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrShortFrame means more bytes are needed to complete a block
	ErrShortFrame = errors.New("incomplete frame")
	// ErrBadFrame means the bytes at the head of the stream are not a
	// valid block and the reader must resynchronise on the next sync byte
	ErrBadFrame = errors.New("malformed frame")
)

// Frame is one decoded serial block
type Frame struct {
	Sequence uint8
	Payload  []byte
}

// IsAck reports whether the block carries no payload. Such blocks
// acknowledge the previous command.
func (f Frame) IsAck() bool {
	return len(f.Payload) == 0
}

// EncodeFrame wraps payload with the header, CRC and sync trailer
func EncodeFrame(seq uint8, payload []byte) ([]byte, error) {
	n := MessageHeaderSize + len(payload) + MessageTrailerSize
	if n > MessageLengthMax {
		return nil, fmt.Errorf("message too long: %d bytes (max %d)", n, MessageLengthMax)
	}

	block := make([]byte, 0, n)
	block = append(block, uint8(n), seq)
	block = append(block, payload...)
	crc := CRC16(block)
	block = append(block, uint8(crc>>8), uint8(crc), MessageValueSync)
	return block, nil
}

// DecodeFrame parses the block at the head of data. It returns the frame
// and the number of bytes it occupied.
func DecodeFrame(data []byte) (Frame, int, error) {
	if len(data) < MessageLengthMin {
		return Frame{}, 0, ErrShortFrame
	}

	n := int(data[MessagePositionLen])
	if n < MessageLengthMin || n > MessageLengthMax {
		return Frame{}, 0, ErrBadFrame
	}
	if len(data) < n {
		return Frame{}, 0, ErrShortFrame
	}
	if data[n-MessageTrailerSync] != MessageValueSync {
		return Frame{}, 0, ErrBadFrame
	}

	want := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
	if CRC16(data[:n-MessageTrailerSize]) != want {
		return Frame{}, 0, ErrBadFrame
	}

	payload := make([]byte, n-MessageHeaderSize-MessageTrailerSize)
	copy(payload, data[MessageHeaderSize:n-MessageTrailerSize])
	return Frame{Sequence: data[MessagePositionSeq], Payload: payload}, n, nil
}

// NextSequence advances a host sequence number within 0x10-0x1F
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
