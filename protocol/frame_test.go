package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte{0x05, 0x01, 0x02}
	block, err := EncodeFrame(MessageDest, payload)
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	if len(block) != MessageLengthMin+len(payload) {
		t.Errorf("Expected %d bytes, got %d", MessageLengthMin+len(payload), len(block))
	}
	if block[len(block)-1] != MessageValueSync {
		t.Errorf("Expected trailing sync byte, got 0x%02x", block[len(block)-1])
	}

	frame, n, err := DecodeFrame(block)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if n != len(block) {
		t.Errorf("Expected %d bytes consumed, got %d", len(block), n)
	}
	if frame.Sequence != MessageDest || !bytes.Equal(frame.Payload, payload) {
		t.Errorf("Unexpected frame: %+v", frame)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	block, _ := EncodeFrame(MessageDest, []byte{1, 2, 3})

	if _, _, err := DecodeFrame(block[:4]); !errors.Is(err, ErrShortFrame) {
		t.Errorf("Expected ErrShortFrame, got %v", err)
	}

	corrupt := append([]byte(nil), block...)
	corrupt[2] ^= 0xFF
	if _, _, err := DecodeFrame(corrupt); !errors.Is(err, ErrBadFrame) {
		t.Errorf("Expected ErrBadFrame for CRC mismatch, got %v", err)
	}

	if _, err := EncodeFrame(MessageDest, make([]byte, MessageLengthMax)); err == nil {
		t.Error("Expected oversize payload to be rejected")
	}
}

func TestNextSequence(t *testing.T) {
	if s := NextSequence(0x10); s != 0x11 {
		t.Errorf("Expected 0x11, got 0x%02x", s)
	}
	if s := NextSequence(0x1F); s != 0x10 {
		t.Errorf("Expected wrap to 0x10, got 0x%02x", s)
	}
}

func TestVLQ(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 95, 96, -32, -33, 1000, -1000, 1 << 20, -(1 << 27)} {
		out := NewScratchOutput()
		EncodeVLQInt(out, v)
		data := out.Result()
		got, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("DecodeVLQInt(%d) failed: %v", v, err)
			continue
		}
		if got != v {
			t.Errorf("VLQ mismatch: expected %d, got %d", v, got)
		}
		if len(data) != 0 {
			t.Errorf("VLQ decode left %d bytes for %d", len(data), v)
		}
	}

	out := NewScratchOutput()
	EncodeVLQBytes(out, []byte("cub"))
	data := out.Result()
	b, err := DecodeVLQBytes(&data)
	if err != nil || string(b) != "cub" {
		t.Errorf("Expected cub, got %q (%v)", b, err)
	}
}

func TestFifoBufferWrap(t *testing.T) {
	f := NewFifoBuffer(8)
	f.Write([]byte{1, 2, 3, 4, 5})
	f.Pop(4)
	f.Write([]byte{6, 7, 8, 9})
	if got := f.Data(); !bytes.Equal(got, []byte{5, 6, 7, 8, 9}) {
		t.Errorf("Expected contiguous data across wrap, got %v", got)
	}
	if n := f.Write([]byte{10, 11, 12}); n != 2 {
		t.Errorf("Expected 2 bytes to fit, got %d", n)
	}
}
