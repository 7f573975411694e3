// Package refclock defines the contract between a reference-clock driver
// and the daemon hosting it: the fixed-point timestamp format samples are
// expressed in, the clock-health events a driver can raise, and the
// driver/host capability interfaces. Drivers never assume a specific host
// loop; hosts never see protocol internals.
package refclock

import (
	"fmt"
	"time"
)

// unixEraOffset is the number of seconds between the NTP era origin
// (1900-01-01) and the Unix epoch.
const unixEraOffset = 2208988800

// Timestamp is a 64-bit NTP timestamp: seconds since the 1900 era and a
// 32-bit binary fraction of a second.
type Timestamp struct {
	Seconds  uint32
	Fraction uint32
}

// FromUnix converts a Unix second count plus nanoseconds within the second.
func FromUnix(sec, nsec int64) Timestamp {
	return Timestamp{
		Seconds:  uint32(sec + unixEraOffset),
		Fraction: uint32(uint64(nsec) << 32 / 1e9),
	}
}

// FromTime converts an absolute time.
func FromTime(t time.Time) Timestamp {
	return FromUnix(t.Unix(), int64(t.Nanosecond()))
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%08x.%08x", t.Seconds, t.Fraction)
}

// Sample is one completed reference measurement: a hardware edge captured
// by the system clock, and the absolute time that edge marked according to
// the receiver.
type Sample struct {
	At    time.Time // system clock capture of the edge
	Stamp Timestamp // the capture as an NTP timestamp
	Ref   time.Time // receiver truth for the same instant
}

// Offset is the correction the system clock needs: reference minus local.
func (s Sample) Offset() time.Duration {
	return s.Ref.Sub(s.At)
}

// Event is a clock-health condition surfaced to the daemon.
type Event int

const (
	// EventTimeout: the receiver stopped producing usable frames.
	EventTimeout Event = iota + 1
	// EventBadTime: the receiver delivered a time mark it flagged unusable.
	EventBadTime
	// EventUnreachable: the receiver could not be written to.
	EventUnreachable
)

func (e Event) String() string {
	switch e {
	case EventTimeout:
		return "timeout"
	case EventBadTime:
		return "badtime"
	case EventUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Control carries the runtime-adjustable driver settings. The host applies
// a full Control on every change; drivers react to transitions.
type Control struct {
	// CaptureClear times the falling edge instead of the rising one.
	CaptureClear bool
	// Mobile marks a moving platform. A transition re-runs receiver
	// configuration.
	Mobile bool
}

// Driver is the receiver side of the contract. The host owns the serial
// byte stream and the poll timer; the driver owns the protocol. All calls
// are made from one goroutine.
type Driver interface {
	// Start configures the receiver. A failure leaves the driver unusable.
	Start() error
	// Receive hands the driver raw serial bytes, possibly a partial frame,
	// possibly several.
	Receive(p []byte)
	// Poll is the periodic tick: PPS correlation and health accounting.
	Poll()
	// Control applies updated runtime settings.
	Control(Control)
	// Shutdown releases hardware handles. The driver must not be used
	// afterwards.
	Shutdown()
}

// Host is what the daemon exposes to a driver.
type Host interface {
	// Sample delivers a completed reference measurement.
	Sample(Sample)
	// ReportEvent raises a clock-health condition.
	ReportEvent(Event)
}
