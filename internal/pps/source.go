// Package pps times pulse-per-second edges. A Source is any hardware that
// can report "the last edge of each polarity, when it happened and how many
// there have been"; the Correlator turns that into deduplicated edge
// observations for the driver core.
package pps

// EdgeMode selects which electrical transition is timed.
type EdgeMode int

const (
	CaptureAssert EdgeMode = iota
	CaptureClear
)

func (m EdgeMode) String() string {
	if m == CaptureClear {
		return "clear"
	}
	return "assert"
}

// State is one observation of a source's capture registers: cumulative
// per-edge counts and the system-clock capture of each polarity's most
// recent transition.
type State struct {
	AssertSeq  uint64
	AssertSec  int64
	AssertNsec int64

	ClearSeq  uint64
	ClearSec  int64
	ClearNsec int64
}

// Source is a hardware PPS capture device.
type Source interface {
	// SelectEdge arms capture of the given transition.
	SelectEdge(EdgeMode) error
	// Fetch returns the current capture state. It must not block: no new
	// edge simply means unchanged sequence numbers.
	Fetch() (State, error)
	Close() error
}
