package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// DefaultAckTimeout bounds the wait for the MCU to acknowledge a block
const DefaultAckTimeout = 2 * time.Second

var ErrTransportClosed = errors.New("transport stopped")

// HostTransport speaks the framed protocol from the host side: it sends
// one command block at a time, waits for the MCU to acknowledge it and
// queues response blocks for the caller.
type HostTransport struct {
	port io.ReadWriteCloser

	// serialises command/ack round trips
	sendMu sync.Mutex
	seq    uint8

	input *FifoBuffer

	ackChan      chan Frame
	responseChan chan Frame

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewHostTransport starts the background reader on port
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		seq:          MessageDest,
		input:        NewFifoBuffer(512),
		ackChan:      make(chan Frame, 1),
		responseChan: make(chan Frame, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}

	go t.readLoop()

	return t
}

// SendCommand sends a command and waits for its acknowledgement
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultAckTimeout)
}

// SendCommandWithTimeout sends a command with a custom ack timeout
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	scratch := NewScratchOutput()
	EncodeVLQUint(scratch, uint32(cmdID))
	if args != nil {
		args(scratch)
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	block, err := EncodeFrame(t.seq, scratch.Result())
	if err != nil {
		return fmt.Errorf("failed to build command: %w", err)
	}

	n, err := t.port.Write(block)
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if n != len(block) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(block))
	}

	if err := t.waitForAck(timeout); err != nil {
		return fmt.Errorf("ACK timeout or error: %w", err)
	}
	return nil
}

// waitForAck expects an empty block carrying the next sequence number.
// Must be called with sendMu held.
func (t *HostTransport) waitForAck(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-t.ackChan:
		next := NextSequence(t.seq)
		if ack.Sequence != next {
			return fmt.Errorf("sequence mismatch: expected 0x%02x, got 0x%02x", next, ack.Sequence)
		}
		t.seq = next
		return nil

	case <-timer.C:
		return fmt.Errorf("ACK timeout after %v", timeout)

	case <-t.stopChan:
		return ErrTransportClosed
	}
}

// ReceiveResponse returns the next response block
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-timer.C:
		return Frame{}, fmt.Errorf("response timeout after %v", timeout)
	case <-t.stopChan:
		return Frame{}, ErrTransportClosed
	}
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buf := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n > 0 {
			t.input.Write(buf[:n])
			t.processFrames()
		}
	}
}

// processFrames parses every complete block in the input buffer and
// drops garbage up to the next sync byte on a malformed block.
func (t *HostTransport) processFrames() {
	data := t.input.Data()
	for len(data) > 0 {
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		frame, n, err := DecodeFrame(data)
		if errors.Is(err, ErrShortFrame) {
			break
		}
		if err != nil {
			skip := 1
			for skip < len(data) && data[skip] != MessageValueSync {
				skip++
			}
			data = data[skip:]
			continue
		}

		data = data[n:]
		t.dispatch(frame)
	}

	t.input.Pop(t.input.Available() - len(data))
}

func (t *HostTransport) dispatch(frame Frame) {
	if frame.IsAck() {
		select {
		case t.ackChan <- frame:
		default:
		}
		return
	}

	select {
	case t.responseChan <- frame:
	default:
		// full: drop the oldest response
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- frame
	}
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}
