//go:build linux

package pps

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOSource times pulses on a plain GPIO line through the character
// device, for receivers whose PPS output is wired to a header pin with no
// kernel pps-gpio overlay configured. The kernel stamps each event with
// the realtime clock; this source keeps its own per-polarity counters.
type GPIOSource struct {
	line *gpiocdev.Line
	last atomic.Value // State
}

// OpenGPIO requests line offset on chip (a name like "gpiochip0" or a
// /dev path) with both edges reported.
func OpenGPIO(chip string, offset int) (*GPIOSource, error) {
	g := &GPIOSource{}
	g.last.Store(State{})
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithRealtimeEventClock,
		gpiocdev.WithConsumer("javadclockd"),
		gpiocdev.WithEventHandler(g.handle))
	if err != nil {
		return nil, fmt.Errorf("pps: gpio %s line %d: %w", chip, offset, err)
	}
	g.line = line
	return g, nil
}

// handle runs on the gpiocdev event goroutine; State is published whole
// through the atomic so Fetch sees a consistent observation.
func (g *GPIOSource) handle(evt gpiocdev.LineEvent) {
	st := g.last.Load().(State)
	sec := int64(evt.Timestamp / time.Second)
	nsec := int64(evt.Timestamp % time.Second)
	switch evt.Type {
	case gpiocdev.LineEventRisingEdge:
		st.AssertSeq++
		st.AssertSec, st.AssertNsec = sec, nsec
	case gpiocdev.LineEventFallingEdge:
		st.ClearSeq++
		st.ClearSec, st.ClearNsec = sec, nsec
	}
	g.last.Store(st)
}

// SelectEdge is a no-op: both edges are always captured and the caller
// picks which side of the State to read.
func (g *GPIOSource) SelectEdge(EdgeMode) error { return nil }

func (g *GPIOSource) Fetch() (State, error) {
	return g.last.Load().(State), nil
}

func (g *GPIOSource) Close() error {
	return g.line.Close()
}
