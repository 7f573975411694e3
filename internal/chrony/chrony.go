// Package chrony feeds timing samples to chronyd's SOCK refclock driver:
// one fixed-layout datagram per sample on a unix datagram socket that
// chronyd creates next to its own state.
package chrony

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// magic tags a valid SOCK sample ("SOCK" little-endian).
const magic = 0x534f434b

// sockSample is chronyd's wire layout, native-endian on the platforms we
// run on.
type sockSample struct {
	Tv     unix.Timeval
	Offset float64
	Pulse  int32
	Leap   int32
	Pad    int32
	Magic  int32
}

type sockConn interface {
	Write([]byte) (int, error)
	Close() error
}

// Feeder delivers samples to one SOCK path. chronyd recreates the socket
// whenever it restarts, so a dead connection is dropped and redialed on
// the next sample instead of being held open.
type Feeder struct {
	// sent is read by telemetry from other goroutines; keep it first so
	// 64-bit atomics stay aligned on 32-bit hosts.
	sent uint64

	path string
	dial func(path string) (sockConn, error)
	conn sockConn
}

func NewFeeder(path string) *Feeder {
	return &Feeder{path: path, dial: dialUnixgram}
}

func dialUnixgram(path string) (sockConn, error) {
	return net.Dial("unixgram", path)
}

// Send delivers one absolute sample: the system clock capture of a pulse
// and the true-minus-system offset at that instant.
func (f *Feeder) Send(at time.Time, offset time.Duration) error {
	if f.conn == nil {
		c, err := f.dial(f.path)
		if err != nil {
			return fmt.Errorf("chrony: dial %s: %w", f.path, err)
		}
		f.conn = c
	}
	buf, err := encodeSample(at, offset)
	if err != nil {
		return fmt.Errorf("chrony: encode: %w", err)
	}
	if _, err := f.conn.Write(buf); err != nil {
		f.conn.Close()
		f.conn = nil
		return fmt.Errorf("chrony: send: %w", err)
	}
	atomic.AddUint64(&f.sent, 1)
	return nil
}

// Sent reports how many samples have been delivered.
func (f *Feeder) Sent() uint64 { return atomic.LoadUint64(&f.sent) }

func (f *Feeder) Close() error {
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close()
	f.conn = nil
	return err
}

func encodeSample(at time.Time, offset time.Duration) ([]byte, error) {
	s := sockSample{
		Tv:     unix.NsecToTimeval(at.UnixNano()),
		Offset: offset.Seconds(),
		Magic:  magic,
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
