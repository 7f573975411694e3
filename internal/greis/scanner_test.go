package greis

import (
	"bytes"
	"reflect"
	"testing"
)

// drain feeds chunks in order and collects every frame the scanner yields.
func drain(s *Scanner, chunks ...[]byte) []Frame {
	var out []Frame
	for _, c := range chunks {
		s.Feed(c)
		for {
			f, ok := s.Scan()
			if !ok {
				break
			}
			out = append(out, f)
		}
	}
	return out
}

func pulseFrame(seq uint16, sweek uint32) []byte {
	return Encode(MsgTimePulse, seq, 0, EncodePulsePayload(Pulse{SecondsIntoWeek: sweek, Valid: true, UTC: true}))
}

func TestScanner_LineMode_YieldsTerminatedLines(t *testing.T) {
	s := NewScanner(ModeLine)
	got := drain(s, []byte("RE,ok\r\n$GPRMC,x*00\r\npartial"))
	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if got[0].Kind != KindLine || got[0].Text != "RE,ok" {
		t.Fatalf("frame 0 = %+v", got[0])
	}
	if got[1].Text != "$GPRMC,x*00" {
		t.Fatalf("frame 1 = %+v", got[1])
	}
	if _, ok := s.Scan(); ok {
		t.Fatalf("partial tail yielded a frame")
	}
}

func TestScanner_LineMode_TerminatorSplitAcrossFeeds(t *testing.T) {
	s := NewScanner(ModeLine)
	if got := drain(s, []byte("hello\r")); len(got) != 0 {
		t.Fatalf("lone CR yielded %d frames", len(got))
	}
	got := drain(s, []byte("\nnext"))
	if len(got) != 1 || got[0].Text != "hello" {
		t.Fatalf("got %+v, want hello", got)
	}
}

func TestScanner_ZeroLengthFeedIsNoop(t *testing.T) {
	s := NewScanner(ModeLine)
	s.Feed(nil)
	s.Feed([]byte{})
	if _, ok := s.Scan(); ok {
		t.Fatalf("empty feed yielded a frame")
	}
}

func TestScanner_LineMode_BoundedBufferDropsOldest(t *testing.T) {
	s := NewScanner(ModeLine)
	junk := bytes.Repeat([]byte{'x'}, 700)
	got := drain(s, junk, []byte("tail\r\nnext\r\n"))
	if s.Stats().Truncated == 0 {
		t.Fatalf("expected truncation")
	}
	// The first line is the corrupted remainder of the junk; the scanner
	// must still recover the line after it.
	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if got[1].Text != "next" {
		t.Fatalf("frame 1 = %q", got[1].Text)
	}
}

func TestScanner_Binary_DecodesEncodedFrame(t *testing.T) {
	s := NewScanner(ModeBinary)
	got := drain(s, Encode(MsgGeodeticPosition, 3, FlagACK, []uint16{0, 2191, 30, 0}))
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	f := got[0]
	if f.Kind != KindMessage || f.ID != MsgGeodeticPosition || f.Seq != 3 || f.Flags != FlagACK {
		t.Fatalf("frame = %+v", f)
	}
	if !reflect.DeepEqual(f.Payload, []uint16{0, 2191, 30, 0}) {
		t.Fatalf("payload = %v", f.Payload)
	}
}

func TestScanner_Binary_HeaderOnlyMessage(t *testing.T) {
	s := NewScanner(ModeBinary)
	got := drain(s, Encode(MsgTimePulse, 9, FlagNAK, nil))
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	if got[0].ID != MsgTimePulse || got[0].Payload != nil {
		t.Fatalf("frame = %+v", got[0])
	}
}

func TestScanner_Binary_ResyncPastGarbage(t *testing.T) {
	s := NewScanner(ModeBinary)
	stream := append([]byte{0x00, 0x13, 0xFF, 0x42}, pulseFrame(1, 10)...)
	got := drain(s, stream)
	if len(got) != 1 || got[0].ID != MsgTimePulse {
		t.Fatalf("got %+v, want one pulse frame", got)
	}
	if s.Stats().ResyncBytes != 4 {
		t.Fatalf("resync bytes = %d, want 4", s.Stats().ResyncBytes)
	}
}

func TestScanner_Binary_SyncSplitAcrossFeeds(t *testing.T) {
	frame := pulseFrame(2, 20)
	s := NewScanner(ModeBinary)
	var got []Frame
	got = append(got, drain(s, []byte{0x55}, frame[:1])...)
	got = append(got, drain(s, frame[1:])...)
	if len(got) != 1 || got[0].ID != MsgTimePulse {
		t.Fatalf("got %+v, want one pulse frame", got)
	}
}

func TestScanner_Binary_IncompletePayloadWaits(t *testing.T) {
	frame := pulseFrame(3, 30)
	s := NewScanner(ModeBinary)
	if got := drain(s, frame[:len(frame)-3]); len(got) != 0 {
		t.Fatalf("incomplete frame yielded %+v", got)
	}
	if st := s.Stats(); st.Flushes != 0 || st.ResyncBytes != 0 {
		t.Fatalf("incomplete frame cost bytes: %+v", st)
	}
	got := drain(s, frame[len(frame)-3:])
	if len(got) != 1 {
		t.Fatalf("got %d frames after completion, want 1", len(got))
	}
}

func TestScanner_Binary_HeaderCorruptionFlushes(t *testing.T) {
	frame := pulseFrame(4, 40)
	bad := append([]byte{}, frame...)
	bad[4] ^= 0xFF // payload length word
	s := NewScanner(ModeBinary)
	if got := drain(s, bad); len(got) != 0 {
		t.Fatalf("corrupt header yielded %+v", got)
	}
	if s.Stats().Flushes != 1 {
		t.Fatalf("flushes = %d, want 1", s.Stats().Flushes)
	}
}

func TestScanner_Binary_AnyPayloadByteCorruptionFlushes(t *testing.T) {
	frame := pulseFrame(5, 123456)
	for i := headerLen; i < len(frame); i++ {
		bad := append([]byte{}, frame...)
		bad[i] ^= 0x01
		s := NewScanner(ModeBinary)
		if got := drain(s, bad); len(got) != 0 {
			t.Fatalf("corruption at byte %d yielded %+v", i, got)
		}
		if s.Stats().Flushes != 1 {
			t.Fatalf("corruption at byte %d: flushes = %d, want 1", i, s.Stats().Flushes)
		}
	}
}

func TestScanner_Binary_OversizedLengthFlushes(t *testing.T) {
	words := []uint16{SyncWord, MsgTimePulse, maxPayloadWords + 1, 0, 0}
	header := make([]byte, 0, headerLen)
	for _, w := range append(words, Checksum(words)) {
		header = append(header, byte(w), byte(w>>8))
	}
	s := NewScanner(ModeBinary)
	if got := drain(s, header); len(got) != 0 {
		t.Fatalf("oversized length yielded %+v", got)
	}
	if s.Stats().Flushes != 1 {
		t.Fatalf("flushes = %d, want 1", s.Stats().Flushes)
	}
}

func TestScanner_Reset_DiscardsBufferAndSwitchesMode(t *testing.T) {
	s := NewScanner(ModeLine)
	s.Feed([]byte("half a line"))
	s.Reset(ModeBinary)
	got := drain(s, pulseFrame(6, 60))
	if len(got) != 1 || got[0].Kind != KindMessage {
		t.Fatalf("got %+v after reset", got)
	}
	s.Reset(ModeLine)
	if got := drain(s, []byte("fresh\r\n")); len(got) != 1 || got[0].Text != "fresh" {
		t.Fatalf("got %+v after second reset", got)
	}
}

func TestScanner_ChunkingInvariance(t *testing.T) {
	// Garbage, two frames split by a stray sync first byte, a line-mode
	// terminator posing as binary noise, then a trailing frame.
	stream := []byte{0x00, 0xFF, 0x13}
	stream = append(stream, pulseFrame(1, 100)...)
	stream = append(stream, 0xFF)
	stream = append(stream, Encode(MsgGeodeticPosition, 2, 0, []uint16{0, 2191, 30, 0})...)
	stream = append(stream, '\r', '\n', 0x81)
	stream = append(stream, pulseFrame(3, 101)...)

	whole := drain(NewScanner(ModeBinary), stream)

	perByte := NewScanner(ModeBinary)
	var byByte []Frame
	for i := range stream {
		byByte = append(byByte, drain(perByte, stream[i:i+1])...)
	}

	if !reflect.DeepEqual(whole, byByte) {
		t.Fatalf("whole=%+v byByte=%+v", whole, byByte)
	}
	if len(whole) != 3 {
		t.Fatalf("got %d frames, want 3", len(whole))
	}

	lineStream := []byte("a\r\nbb\rc\r\n\r\nd")
	wholeLines := drain(NewScanner(ModeLine), lineStream)
	perByteLine := NewScanner(ModeLine)
	var byByteLines []Frame
	for i := range lineStream {
		byByteLines = append(byByteLines, drain(perByteLine, lineStream[i:i+1])...)
	}
	if !reflect.DeepEqual(wholeLines, byByteLines) {
		t.Fatalf("lines whole=%+v byByte=%+v", wholeLines, byByteLines)
	}
}
