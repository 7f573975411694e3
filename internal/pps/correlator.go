package pps

import (
	"time"

	"github.com/leres/ntp/internal/refclock"
)

// Edge is a newly observed PPS transition.
type Edge struct {
	Seq   uint64
	At    time.Time          // system clock capture
	Stamp refclock.Timestamp // the same instant in NTP fixed point
}

// Stats counts correlator activity.
type Stats struct {
	Polls      uint64
	Edges      uint64
	Duplicates uint64 // same timestamp delivered again under a new sequence
}

// Correlator extracts new edges from a Source. An edge is new only when
// the selected polarity's sequence number moved since the previous poll
// and its timestamp differs from the last one emitted; hardware that
// re-delivers an edge under a fresh sequence number is deduplicated by
// the timestamp comparison.
type Correlator struct {
	src  Source
	mode EdgeMode

	prev State

	emittedSec  int64
	emittedNsec int64

	stats Stats
}

func NewCorrelator(src Source, mode EdgeMode) *Correlator {
	return &Correlator{src: src, mode: mode}
}

// Mode reports the selected capture edge.
func (c *Correlator) Mode() EdgeMode { return c.mode }

// Stats returns a copy of the activity counters.
func (c *Correlator) Stats() Stats { return c.stats }

// SetMode re-arms the source for a different capture edge.
func (c *Correlator) SetMode(mode EdgeMode) error {
	c.mode = mode
	return c.src.SelectEdge(mode)
}

// Close releases the underlying source.
func (c *Correlator) Close() error { return c.src.Close() }

// Poll fetches the capture state and reports whether a new edge occurred.
// It never blocks.
func (c *Correlator) Poll() (Edge, bool, error) {
	c.stats.Polls++
	st, err := c.src.Fetch()
	if err != nil {
		return Edge{}, false, err
	}
	prev := c.prev
	c.prev = st

	var seq, prevSeq uint64
	var sec, nsec int64
	if c.mode == CaptureClear {
		seq, prevSeq = st.ClearSeq, prev.ClearSeq
		sec, nsec = st.ClearSec, st.ClearNsec
	} else {
		seq, prevSeq = st.AssertSeq, prev.AssertSeq
		sec, nsec = st.AssertSec, st.AssertNsec
	}

	if seq == prevSeq {
		return Edge{}, false, nil
	}
	if sec == c.emittedSec && nsec == c.emittedNsec {
		c.stats.Duplicates++
		return Edge{}, false, nil
	}

	c.emittedSec, c.emittedNsec = sec, nsec
	c.stats.Edges++
	return Edge{
		Seq:   seq,
		At:    time.Unix(sec, nsec),
		Stamp: refclock.FromUnix(sec, nsec),
	}, true, nil
}
