// Package protocol defines the messages exchanged between the CUB
// supervisor and its actuator controllers (commands, acknowledgements,
// cell patterns) and the framed serial protocol spoken to the I/O
// expander MCU.
package protocol

// Serial block layout: <len><seq><payload...><crc hi><crc lo><sync>
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F

	// MessageMax bounds a scratch payload
	MessageMax = 512
)
