package greis

import (
	"bytes"
	"reflect"
	"testing"
)

func TestEncode_HeaderChecksumCoversFirstFiveWords(t *testing.T) {
	frame := Encode(MsgTimePulse, 12, FlagACK, nil)
	if len(frame) != headerLen {
		t.Fatalf("header-only frame is %d bytes, want %d", len(frame), headerLen)
	}
	words := make([]uint16, headerWords)
	for i := range words {
		words[i] = uint16(frame[i*2]) | uint16(frame[i*2+1])<<8
	}
	if words[0] != SyncWord {
		t.Fatalf("sync = %#04x", words[0])
	}
	if !Verify(words) {
		t.Fatalf("header checksum invalid: %v", words)
	}
}

func TestPulse_Roundtrip(t *testing.T) {
	in := Pulse{SecondsIntoWeek: 345678, Valid: true, UTC: false}
	got, err := DecodePulse(EncodePulsePayload(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != in {
		t.Fatalf("got %+v, want %+v", got, in)
	}
}

func TestDecodePulse_ShortPayload(t *testing.T) {
	if _, err := DecodePulse([]uint16{1, 2, 3}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPosition_Roundtrip(t *testing.T) {
	in := Position{Valid: true, Week: 2191, SecondsIntoWeek: 604830}
	got, err := DecodePosition(EncodePositionPayload(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != in {
		t.Fatalf("got %+v, want %+v", got, in)
	}
}

func TestDecodePosition_InvalidSolution(t *testing.T) {
	got, err := DecodePosition([]uint16{7, 2191, 30, 0})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Valid {
		t.Fatalf("nonzero status decoded as valid")
	}
}

func TestDecodePosition_IgnoresTrailingWords(t *testing.T) {
	payload := append(EncodePositionPayload(Position{Valid: true, Week: 2191, SecondsIntoWeek: 30}), 0x1111, 0x2222, 0x3333)
	got, err := DecodePosition(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Week != 2191 || got.SecondsIntoWeek != 30 {
		t.Fatalf("got %+v", got)
	}
}

func TestRequest_ScansBackToPayload(t *testing.T) {
	s := NewScanner(ModeBinary)
	got := drain(s, Request(MsgTimePulse, 1))
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	f := got[0]
	if f.ID != MsgTimePulse {
		t.Fatalf("id = %d", f.ID)
	}
	if f.Flags&FlagRequest == 0 || f.Flags&FlagConnect == 0 {
		t.Fatalf("flags = %#04x", f.Flags)
	}
	// Periodic output: trigger off, interval set.
	if !reflect.DeepEqual(f.Payload, []uint16{0, 1, 0}) {
		t.Fatalf("payload = %v", f.Payload)
	}
}

func TestRequest_ZeroIntervalMeansOnTrigger(t *testing.T) {
	s := NewScanner(ModeBinary)
	got := drain(s, Request(MsgGeodeticPosition, 0))
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	if !reflect.DeepEqual(got[0].Payload, []uint16{1, 0, 0}) {
		t.Fatalf("payload = %v", got[0].Payload)
	}
}

func TestCancel_HeaderOnly(t *testing.T) {
	s := NewScanner(ModeBinary)
	got := drain(s, Cancel(MsgGeodeticPosition))
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	f := got[0]
	if f.Flags&FlagDisconnect == 0 || len(f.Payload) != 0 {
		t.Fatalf("frame = %+v", f)
	}
}

func TestCommand_TerminatesWithCR(t *testing.T) {
	got := Command("dm,/cur/term")
	if !bytes.Equal(got, []byte("dm,/cur/term\r")) {
		t.Fatalf("got %q", got)
	}
}

func TestDoubleShort_LowWordFirst(t *testing.T) {
	if got := DoubleShort([]uint16{0xE240, 0x0001}); got != 123456 {
		t.Fatalf("got %d, want 123456", got)
	}
}
