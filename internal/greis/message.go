package greis

import "fmt"

// Pulse flag bits.
const (
	pulseFlagValid = 0x0001
	pulseFlagUTC   = 0x0002
)

// Pulse is the decoded UTC time-mark message (id 1108). It announces the
// second boundary the receiver's next output pulse will mark.
type Pulse struct {
	SecondsIntoWeek uint32
	Valid           bool // the mark is aligned to the announced second
	UTC             bool // the receiver is synchronized to UTC
}

// DecodePulse decodes a time-mark payload: sweek as a double short, the
// UTC offset word (unused here), then the flags word.
func DecodePulse(payload []uint16) (Pulse, error) {
	if len(payload) < 4 {
		return Pulse{}, fmt.Errorf("greis: pulse payload too short: %d words", len(payload))
	}
	flags := payload[3]
	return Pulse{
		SecondsIntoWeek: DoubleShort(payload[0:2]),
		Valid:           flags&pulseFlagValid != 0,
		UTC:             flags&pulseFlagUTC != 0,
	}, nil
}

// EncodePulsePayload is the inverse of DecodePulse.
func EncodePulsePayload(p Pulse) []uint16 {
	var flags uint16
	if p.Valid {
		flags |= pulseFlagValid
	}
	if p.UTC {
		flags |= pulseFlagUTC
	}
	return []uint16{uint16(p.SecondsIntoWeek), uint16(p.SecondsIntoWeek >> 16), 0, flags}
}

// Position is the decoded geodetic solution message (id 1000). Only the
// time fields matter for time transfer; the position words proper are
// carried after these and ignored here.
type Position struct {
	Valid           bool // navigation solution valid
	Week            uint32
	SecondsIntoWeek uint32 // may exceed one week, callers normalize
}

// DecodePosition decodes a geodetic payload: solution status word
// (0 = valid), week word, sweek as a double short. Longer payloads are
// accepted; the tail is position data this package does not interpret.
func DecodePosition(payload []uint16) (Position, error) {
	if len(payload) < 4 {
		return Position{}, fmt.Errorf("greis: position payload too short: %d words", len(payload))
	}
	return Position{
		Valid:           payload[0] == 0,
		Week:            uint32(payload[1]),
		SecondsIntoWeek: DoubleShort(payload[2:4]),
	}, nil
}

// EncodePositionPayload is the inverse of DecodePosition.
func EncodePositionPayload(p Position) []uint16 {
	status := uint16(1)
	if p.Valid {
		status = 0
	}
	return []uint16{status, uint16(p.Week), uint16(p.SecondsIntoWeek), uint16(p.SecondsIntoWeek >> 16)}
}

// Request builds a binary frame asking the receiver to emit message id
// every interval seconds. An interval of zero asks for output on trigger
// instead of a period.
func Request(id, interval uint16) []byte {
	trigger := uint16(0)
	if interval == 0 {
		trigger = 1
	}
	return Encode(id, 0, FlagRequest|FlagNAK|FlagConnect|FlagLog, []uint16{trigger, interval, 0})
}

// Cancel builds a binary frame stopping emission of message id.
func Cancel(id uint16) []byte {
	return Encode(id, 0, FlagRequest|FlagNAK|FlagDisconnect, nil)
}

// Command formats a terminal-channel command: the text terminated by CR.
func Command(text string) []byte {
	return append([]byte(text), '\r')
}
