package greis

import (
	"bytes"
	"encoding/binary"
)

// Mode selects which wire discipline the scanner expects.
type Mode int

const (
	// ModeLine frames CR LF terminated terminal output.
	ModeLine Mode = iota
	// ModeBinary frames sync-delimited checksummed messages.
	ModeBinary
)

// Stats counts scanner activity. Counters accumulate across Reset.
type Stats struct {
	Lines       uint64
	Messages    uint64
	ResyncBytes uint64 // bytes discarded hunting for the sync pattern
	Flushes     uint64 // whole-buffer flushes after checksum failures
	Truncated   uint64 // bytes dropped to keep the buffer bounded
}

// Scanner accumulates raw serial bytes and yields complete frames for the
// current mode. It never blocks and never errors: malformed input costs
// buffered bytes, counted in Stats, and scanning continues.
type Scanner struct {
	mode  Mode
	buf   []byte
	stats Stats
}

func NewScanner(mode Mode) *Scanner {
	return &Scanner{mode: mode, buf: make([]byte, 0, maxBuffer)}
}

// Mode reports the current discipline.
func (s *Scanner) Mode() Mode { return s.mode }

// Stats returns a copy of the activity counters.
func (s *Scanner) Stats() Stats { return s.stats }

// Reset discards all buffered bytes and switches the scanner to mode.
// Bytes received under the old discipline must not leak into the new one.
func (s *Scanner) Reset(mode Mode) {
	s.mode = mode
	s.buf = s.buf[:0]
}

// Feed appends raw receiver bytes. The buffer is bounded; when an append
// would exceed it the oldest bytes are dropped first, so a receiver that
// never terminates its output cannot wedge the scanner.
func (s *Scanner) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	if len(p) > maxBuffer {
		s.stats.Truncated += uint64(len(p) - maxBuffer)
		p = p[len(p)-maxBuffer:]
	}
	if over := len(s.buf) + len(p) - maxBuffer; over > 0 {
		s.stats.Truncated += uint64(over)
		s.consume(over)
	}
	s.buf = append(s.buf, p...)
}

// Scan extracts at most one complete frame. It returns false once the
// buffered bytes no longer form one; callers loop until then. The emitted
// frame sequence depends only on the bytes fed, not on how they were
// chunked.
func (s *Scanner) Scan() (Frame, bool) {
	if s.mode == ModeLine {
		return s.scanLine()
	}
	return s.scanMessage()
}

var lineEnd = []byte{'\r', '\n'}

func (s *Scanner) scanLine() (Frame, bool) {
	i := bytes.Index(s.buf, lineEnd)
	if i < 0 {
		return Frame{}, false
	}
	line := string(s.buf[:i])
	s.consume(i + len(lineEnd))
	s.stats.Lines++
	return Frame{Kind: KindLine, Text: line}, true
}

func (s *Scanner) scanMessage() (Frame, bool) {
	if !s.resync() {
		return Frame{}, false
	}
	if len(s.buf) < headerLen {
		return Frame{}, false
	}

	var hw [headerWords]uint16
	for i := range hw {
		hw[i] = binary.LittleEndian.Uint16(s.buf[i*2:])
	}
	if Checksum(hw[:headerWords-1]) != hw[headerWords-1] {
		s.flush()
		return Frame{}, false
	}
	plen := int(hw[2])
	if plen > maxPayloadWords {
		// Declared length can never complete within the buffer bound.
		s.flush()
		return Frame{}, false
	}

	total := headerLen
	var payload []uint16
	if plen > 0 {
		total += 2 * (plen + 1)
		if len(s.buf) < total {
			return Frame{}, false
		}
		region := s.buf[headerLen:total]
		if ChecksumBytes(region) != 0 {
			s.flush()
			return Frame{}, false
		}
		payload = make([]uint16, plen)
		for i := range payload {
			payload[i] = binary.LittleEndian.Uint16(region[i*2:])
		}
	}

	f := Frame{Kind: KindMessage, ID: hw[1], Seq: hw[3], Flags: hw[4], Payload: payload}
	s.consume(total)
	s.stats.Messages++
	return f, true
}

// resync discards bytes until the buffer starts with the sync pattern and
// reports whether it does. A trailing first sync byte is kept: the second
// half of the pattern may arrive with the next read.
func (s *Scanner) resync() bool {
	const b0, b1 = byte(SyncWord & 0xFF), byte(SyncWord >> 8)
	i := 0
	for ; i+1 < len(s.buf); i++ {
		if s.buf[i] == b0 && s.buf[i+1] == b1 {
			if i > 0 {
				s.stats.ResyncBytes += uint64(i)
				s.consume(i)
			}
			return true
		}
	}
	keep := 0
	if n := len(s.buf); n > 0 && s.buf[n-1] == b0 {
		keep = 1
	}
	if drop := len(s.buf) - keep; drop > 0 {
		s.stats.ResyncBytes += uint64(drop)
		s.consume(drop)
	}
	return false
}

func (s *Scanner) flush() {
	s.stats.Flushes++
	s.buf = s.buf[:0]
}

func (s *Scanner) consume(n int) {
	s.buf = s.buf[:copy(s.buf, s.buf[n:])]
}
