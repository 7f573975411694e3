package javad

import (
	"fmt"
	"testing"
	"time"
)

func nmeaLine(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}

func TestParseSentence_ChecksumOK(t *testing.T) {
	line := nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	s, err := parseSentence(line)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.Type != "RMC" {
		t.Fatalf("expected type RMC, got %q", s.Type)
	}
}

func TestParseSentence_ChecksumMismatch(t *testing.T) {
	good := nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	bad := good[:len(good)-2] + "00"
	if _, err := parseSentence(bad); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRMCTime_ActiveFix(t *testing.T) {
	line := nmeaLine("GNRMC,170003,A,3723.2475,N,12158.3416,W,0.13,309.62,230826,,")
	s, err := parseSentence(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	at, valid, err := rmcTime(s.Fields)
	if err != nil {
		t.Fatalf("rmcTime: %v", err)
	}
	if !valid {
		t.Fatalf("expected valid fix")
	}
	want := time.Date(2026, 8, 23, 17, 0, 3, 0, time.UTC)
	if !at.Equal(want) {
		t.Fatalf("expected %v, got %v", want, at)
	}
}

func TestRMCTime_FractionalSecondsTruncated(t *testing.T) {
	at, _, err := rmcTime([]string{"GPRMC", "170003.00", "A", "", "", "", "", "", "", "230826"})
	if err != nil {
		t.Fatalf("rmcTime: %v", err)
	}
	if at.Second() != 3 || at.Nanosecond() != 0 {
		t.Fatalf("expected whole second, got %v", at)
	}
}

func TestRMCTime_VoidStatus(t *testing.T) {
	at, valid, err := rmcTime([]string{"GPRMC", "170003", "V", "", "", "", "", "", "", "230826"})
	if err != nil {
		t.Fatalf("rmcTime: %v", err)
	}
	if valid {
		t.Fatalf("expected invalid fix")
	}
	if at.IsZero() {
		t.Fatalf("void fix still carries a timestamp")
	}
}

func TestRMCTime_Rejects(t *testing.T) {
	cases := [][]string{
		{"GPRMC", "170003", "A"},                                       // too short
		{"GPRMC", "1700", "A", "", "", "", "", "", "", "230826"},       // short time
		{"GPRMC", "999999", "A", "", "", "", "", "", "", "230826"},     // out of range
		{"GPRMC", "170003", "A", "", "", "", "", "", "", "23xx26"},     // non-numeric
		{"GPRMC", "170003", "A", "", "", "", "", "", "", "000026"},     // day zero
		{"GPRMC", "17003.5", "A", "", "", "", "", "", "", "230826"},    // short time with fraction
		{"GPRMC", "170003", "A", "", "", "", "", "", "", "2308260000"}, // long date
	}
	for i, f := range cases {
		if _, _, err := rmcTime(f); err == nil {
			t.Fatalf("case %d: expected error for %v", i, f)
		}
	}
}
