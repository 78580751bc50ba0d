package protocol

// OutputBuffer collects encoded message bytes
type OutputBuffer interface {
	Output(data []byte)
}

// ScratchOutput is a fixed-size OutputBuffer for one payload
type ScratchOutput struct {
	buf [MessageMax]byte
	pos int
}

// NewScratchOutput creates an empty scratch buffer
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

// Result returns the bytes written so far
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Reset empties the buffer
func (s *ScratchOutput) Reset() {
	s.pos = 0
}

// FifoBuffer is a ring buffer between the serial reader and the frame
// parser. One slot is kept free to tell full from empty.
type FifoBuffer struct {
	buf   []byte
	read  int
	write int
}

// NewFifoBuffer creates a ring buffer holding capacity-1 bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count
func (f *FifoBuffer) Write(data []byte) int {
	n := 0
	for _, b := range data {
		next := (f.write + 1) % len(f.buf)
		if next == f.read {
			break
		}
		f.buf[f.write] = b
		f.write = next
		n++
	}
	return n
}

// Available returns the number of buffered bytes
func (f *FifoBuffer) Available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return len(f.buf) - f.read + f.write
}

// Data returns the buffered bytes as one contiguous slice
func (f *FifoBuffer) Data() []byte {
	if f.read <= f.write {
		return f.buf[f.read:f.write]
	}
	out := make([]byte, 0, f.Available())
	out = append(out, f.buf[f.read:]...)
	return append(out, f.buf[:f.write]...)
}

// Pop drops n bytes from the front
func (f *FifoBuffer) Pop(n int) {
	for i := 0; i < n && f.read != f.write; i++ {
		f.read = (f.read + 1) % len(f.buf)
	}
}

// Reset empties the buffer
func (f *FifoBuffer) Reset() {
	f.read, f.write = 0, 0
}
