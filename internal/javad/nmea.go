package javad

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The receiver's terminal channel carries NMEA once RMC output is enabled.
// Only RMC matters here, and only its clock fields: date, time and fix
// status pin down the GPS week the same way a binary position message
// does.

type nmeaSentence struct {
	Type string
	// Fields is the comma-split payload (excluding $ and checksum).
	Fields []string
}

func parseSentence(line string) (nmeaSentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nmeaSentence{}, fmt.Errorf("nmea: missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return nmeaSentence{}, fmt.Errorf("nmea: missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return nmeaSentence{}, fmt.Errorf("nmea: short checksum")
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return nmeaSentence{}, fmt.Errorf("nmea: bad checksum")
	}
	got := byte(0)
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	if got != want[0] {
		return nmeaSentence{}, fmt.Errorf("nmea: checksum mismatch")
	}

	parts := strings.Split(payload, ",")
	typeField := parts[0]
	if len(typeField) < 3 {
		return nmeaSentence{}, fmt.Errorf("nmea: short type")
	}
	// Accept GPxxx/GNxxx etc; normalize to the last 3 chars.
	t := typeField
	if len(t) > 3 {
		t = t[len(t)-3:]
	}
	return nmeaSentence{Type: strings.ToUpper(t), Fields: parts}, nil
}

// rmcTime extracts the UTC timestamp and fix status from an RMC sentence.
//
// Fields (NMEA 0183):
//
//	1: time (hhmmss or hhmmss.sss)
//	2: status (A=active, V=void)
//	9: date (ddmmyy)
func rmcTime(f []string) (at time.Time, valid bool, err error) {
	if len(f) < 10 {
		return time.Time{}, false, fmt.Errorf("nmea: rmc too short: %d fields", len(f))
	}
	valid = strings.TrimSpace(f[2]) == "A"

	hms := strings.TrimSpace(f[1])
	if dot := strings.IndexByte(hms, '.'); dot != -1 {
		hms = hms[:dot]
	}
	dmy := strings.TrimSpace(f[9])
	if len(hms) != 6 || len(dmy) != 6 {
		return time.Time{}, false, fmt.Errorf("nmea: rmc time %q date %q", f[1], f[9])
	}

	hh, err1 := strconv.Atoi(hms[0:2])
	mi, err2 := strconv.Atoi(hms[2:4])
	ss, err3 := strconv.Atoi(hms[4:6])
	dd, err4 := strconv.Atoi(dmy[0:2])
	mo, err5 := strconv.Atoi(dmy[2:4])
	yy, err6 := strconv.Atoi(dmy[4:6])
	for _, e := range []error{err1, err2, err3, err4, err5, err6} {
		if e != nil {
			return time.Time{}, false, fmt.Errorf("nmea: rmc time %q date %q", f[1], f[9])
		}
	}
	if hh > 23 || mi > 59 || ss > 60 || dd < 1 || dd > 31 || mo < 1 || mo > 12 {
		return time.Time{}, false, fmt.Errorf("nmea: rmc time %q date %q out of range", f[1], f[9])
	}

	// Two-digit years started counting from 2000 well before any receiver
	// spoke this firmware.
	return time.Date(2000+yy, time.Month(mo), dd, hh, mi, ss, 0, time.UTC), valid, nil
}
