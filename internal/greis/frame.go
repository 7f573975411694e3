package greis

import "encoding/binary"

const (
	// SyncWord opens every binary message. Little-endian on the wire, so
	// the byte stream carries 0xFF then 0x81.
	SyncWord = 0x81FF

	headerWords = 6
	headerLen   = headerWords * 2

	// maxBuffer bounds the scanner. Real frames and terminal lines are far
	// smaller; anything that cannot complete within this is garbage.
	maxBuffer       = 512
	maxPayloadWords = (maxBuffer-headerLen)/2 - 1
)

// Binary message ids, decimal, as the receiver manual lists them.
const (
	MsgGeodeticPosition = 1000
	MsgTimePulse        = 1108
)

// Header flag bits.
const (
	FlagLog        = 0x0100
	FlagQuery      = 0x0200
	FlagDisconnect = 0x0400
	FlagConnect    = 0x0800
	FlagRequest    = 0x2000
	FlagNAK        = 0x4000
	FlagACK        = 0x8000
)

// Kind discriminates scanner output.
type Kind int

const (
	KindLine Kind = iota
	KindMessage
)

// Frame is one complete unit recovered from the byte stream: a terminal
// response line (terminator stripped) or a binary message with its payload
// words normalized to host order and the payload checksum removed.
type Frame struct {
	Kind Kind

	Text string // KindLine

	ID      uint16 // KindMessage
	Seq     uint16
	Flags   uint16
	Payload []uint16
}

// DoubleShort assembles a 32-bit value from two words, low word first.
func DoubleShort(w []uint16) uint32 {
	return uint32(w[1])<<16 | uint32(w[0])
}

// Encode builds a complete binary frame: the six-word header closed by its
// own checksum, then the payload words closed by theirs. A nil payload
// produces a header-only message.
func Encode(id, seq, flags uint16, payload []uint16) []byte {
	words := make([]uint16, 0, headerWords+len(payload)+1)
	words = append(words, SyncWord, id, uint16(len(payload)), seq, flags)
	words = append(words, Checksum(words))
	if len(payload) > 0 {
		words = append(words, payload...)
		words = append(words, Checksum(payload))
	}
	out := make([]byte, len(words)*2)
	for i, w := range words {
		binary.LittleEndian.PutUint16(out[i*2:], w)
	}
	return out
}
