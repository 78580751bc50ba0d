package protocol

import (
	"errors"
	"net"
	"testing"
	"time"
)

// fakeMCU acknowledges every command block and answers command 7 with a
// response carrying the same arguments.
func fakeMCU(t *testing.T, conn net.Conn) {
	t.Helper()
	go func() {
		buf := make([]byte, 256)
		var pending []byte
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			pending = append(pending, buf[:n]...)
			for {
				frame, used, err := DecodeFrame(pending)
				if err != nil {
					break
				}
				pending = pending[used:]

				ack, _ := EncodeFrame(NextSequence(frame.Sequence), nil)
				if _, err := conn.Write(ack); err != nil {
					return
				}

				payload := frame.Payload
				cmdID, _ := DecodeVLQUint(&payload)
				if cmdID == 7 {
					resp := NewScratchOutput()
					EncodeVLQUint(resp, 8)
					resp.Output(payload)
					block, _ := EncodeFrame(0, resp.Result())
					if _, err := conn.Write(block); err != nil {
						return
					}
				}
			}
		}
	}()
}

func TestHostTransportRoundTrip(t *testing.T) {
	host, mcu := net.Pipe()
	fakeMCU(t, mcu)
	defer mcu.Close()

	tr := NewHostTransport(host)
	defer tr.Close()

	for i := 0; i < 20; i++ {
		err := tr.SendCommand(7, func(out OutputBuffer) {
			EncodeVLQUint(out, uint32(i))
		})
		if err != nil {
			t.Fatalf("SendCommand %d failed: %v", i, err)
		}

		resp, err := tr.ReceiveResponse(time.Second)
		if err != nil {
			t.Fatalf("ReceiveResponse %d failed: %v", i, err)
		}
		payload := resp.Payload
		id, _ := DecodeVLQUint(&payload)
		arg, _ := DecodeVLQUint(&payload)
		if id != 8 || arg != uint32(i) {
			t.Errorf("Expected response 8 with arg %d, got %d/%d", i, id, arg)
		}
	}
}

func TestHostTransportAckTimeout(t *testing.T) {
	host, mcu := net.Pipe()
	defer mcu.Close()

	// drain without acknowledging
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := mcu.Read(buf); err != nil {
				return
			}
		}
	}()

	tr := NewHostTransport(host)
	defer tr.Close()

	if err := tr.SendCommandWithTimeout(1, nil, 50*time.Millisecond); err == nil {
		t.Fatal("Expected ACK timeout")
	}
}

func TestHostTransportClose(t *testing.T) {
	host, mcu := net.Pipe()
	defer mcu.Close()

	tr := NewHostTransport(host)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := tr.ReceiveResponse(time.Second); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Expected ErrTransportClosed, got %v", err)
	}
}
