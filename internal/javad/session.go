package javad

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/leres/ntp/internal/greis"
	"github.com/leres/ntp/internal/pps"
	"github.com/leres/ntp/internal/refclock"
)

// Receiver bring-up commands, in order: silence spontaneous output, keep
// NMEA quiet until UTC is known, then ask for the 1 Hz time source.
const (
	cmdSilence = "dm,/cur/term"
	cmdNoTime  = "set,/par/nmea/notime,off"
	cmdRMC     = "em,,nmea/RMC:1"
)

// Config controls a Session.
type Config struct {
	// Binary drives the receiver's binary channel instead of 1 Hz NMEA.
	Binary bool
	// PositionInterval is the binary position request cadence in seconds.
	PositionInterval int
	// TimeoutPolls is how many frameless polls to tolerate before
	// reporting a timeout and reconfiguring. Zero disables the watchdog.
	TimeoutPolls int
	// Debug dumps received terminal lines.
	Debug bool
	// Control is the initial runtime state.
	Control refclock.Control
}

// SessionStats counts session activity.
type SessionStats struct {
	Lines        uint64
	Messages     uint64
	BadSentences uint64
	BadPayloads  uint64
	Samples      uint64
	Unpaired     uint64 // edges with no receiver mark to pair with
	Timeouts     uint64
	Reconfigs    uint64
}

// Snapshot is the session state as visible from outside the driver
// goroutine.
type Snapshot struct {
	Binary    bool
	WeekKnown bool
	Week      uint32
	LastSweek uint32
	LastUTC   time.Time

	HaveSample bool
	LastEdge   time.Time
	LastOffset time.Duration

	Scanner greis.Stats
	Tracker TrackerStats
	PPS     pps.Stats
	Session SessionStats
}

// Session owns one receiver: it configures it, frames and routes its
// output, pairs PPS edges with announced time marks, and reports samples
// and health to the host. All methods except Snapshot must be called from
// a single goroutine.
type Session struct {
	port io.Writer
	corr *pps.Correlator // nil when no PPS hardware is available
	host refclock.Host
	cfg  Config

	scanner *greis.Scanner
	tracker *Tracker

	ctl refclock.Control

	// Announced time marks. next describes the upcoming pulse edge,
	// prev the one before it; markRecv is when next was announced, used
	// to decide which of the two an edge belongs to.
	prevMark time.Time
	nextMark time.Time
	prevOK   bool
	nextOK   bool
	markRecv time.Time

	quiet int // polls since the last complete frame

	lastSample refclock.Sample
	haveSample bool

	stats SessionStats
	last  atomic.Value // Snapshot

	now func() time.Time
}

// NewSession wires a session to its receiver port, optional PPS
// correlator and host. The port is only written to; received bytes are
// handed in via Receive by whoever owns the read side.
func NewSession(port io.Writer, corr *pps.Correlator, host refclock.Host, cfg Config) *Session {
	if cfg.PositionInterval <= 0 {
		cfg.PositionInterval = 30
	}
	s := &Session{
		port:    port,
		corr:    corr,
		host:    host,
		cfg:     cfg,
		scanner: greis.NewScanner(greis.ModeLine),
		tracker: NewTracker(),
		ctl:     cfg.Control,
		now:     time.Now,
	}
	s.publish()
	return s
}

// Start resets receiver state, arms the PPS source and runs the bring-up
// sequence. A failure leaves the receiver unconfigured and is fatal to the
// session, not the process.
func (s *Session) Start() error {
	s.resetState()
	if s.corr == nil {
		log.Printf("javad: no pps source, running without edge correlation")
	} else if err := s.corr.SetMode(s.edgeMode()); err != nil {
		return fmt.Errorf("javad: arm pps: %w", err)
	}
	return s.configure()
}

// Receive feeds raw serial bytes through the scanner and routes every
// complete frame. Zero-length deliveries are normal (port read timeout).
func (s *Session) Receive(p []byte) {
	s.scanner.Feed(p)
	for {
		f, ok := s.scanner.Scan()
		if !ok {
			break
		}
		s.quiet = 0
		s.route(f)
	}
	s.publish()
}

// Poll is the once-per-tick path: correlate any new PPS edge, then account
// for receiver health. A receiver silent for the configured number of
// polls gets a timeout report and a fresh configuration, since a deaf
// receiver is most often a reset one.
func (s *Session) Poll() {
	if s.corr != nil {
		s.pollEdge()
	}
	if s.cfg.TimeoutPolls > 0 {
		s.quiet++
		if s.quiet >= s.cfg.TimeoutPolls {
			s.quiet = 0
			s.stats.Timeouts++
			s.host.ReportEvent(refclock.EventTimeout)
			s.stats.Reconfigs++
			if err := s.configure(); err != nil {
				log.Printf("javad: reconfigure: %v", err)
			}
		}
	}
	s.publish()
}

// Control applies updated runtime settings. An edge change re-arms the
// source; a mobile-platform transition changes receiver dynamics enough
// to warrant a clean reconfiguration.
func (s *Session) Control(ctl refclock.Control) {
	prev := s.ctl
	s.ctl = ctl
	if s.corr != nil && ctl.CaptureClear != prev.CaptureClear {
		if err := s.corr.SetMode(s.edgeMode()); err != nil {
			log.Printf("javad: select %s edge: %v", s.edgeMode(), err)
		}
	}
	if ctl.Mobile != prev.Mobile {
		s.resetState()
		s.stats.Reconfigs++
		if err := s.configure(); err != nil {
			log.Printf("javad: reconfigure: %v", err)
		}
	}
	s.publish()
}

// Shutdown releases the PPS source. The serial port stays with its owner.
func (s *Session) Shutdown() {
	if s.corr != nil {
		if err := s.corr.Close(); err != nil {
			log.Printf("javad: close pps: %v", err)
		}
		s.corr = nil
	}
}

// Snapshot returns the most recently published session state. Safe from
// any goroutine.
func (s *Session) Snapshot() Snapshot {
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}

func (s *Session) edgeMode() pps.EdgeMode {
	if s.ctl.CaptureClear {
		return pps.CaptureClear
	}
	return pps.CaptureAssert
}

// resetState returns protocol state to power-on: scanner back in line
// mode, week and anchors forgotten, pending marks cleared.
func (s *Session) resetState() {
	s.scanner.Reset(greis.ModeLine)
	s.tracker.Reset()
	s.prevOK, s.nextOK = false, false
	s.quiet = 0
}

// configure runs the bring-up sequence, aborting on the first failure so
// a half-configured receiver is never treated as ready.
func (s *Session) configure() error {
	s.scanner.Reset(greis.ModeLine)
	for _, cmd := range []string{cmdSilence, cmdNoTime} {
		if err := s.send(cmd); err != nil {
			return err
		}
	}
	if !s.cfg.Binary {
		return s.send(cmdRMC)
	}
	s.scanner.Reset(greis.ModeBinary)
	if err := s.sendRaw(greis.Request(greis.MsgTimePulse, 1), "request pulse"); err != nil {
		return err
	}
	return s.sendRaw(greis.Request(greis.MsgGeodeticPosition, uint16(s.cfg.PositionInterval)), "request position")
}

func (s *Session) send(cmd string) error {
	return s.sendRaw(greis.Command(cmd), fmt.Sprintf("startup %q", cmd))
}

func (s *Session) sendRaw(buf []byte, what string) error {
	n, err := s.port.Write(buf)
	if err != nil {
		s.host.ReportEvent(refclock.EventUnreachable)
		return fmt.Errorf("javad: %s: %w", what, err)
	}
	if n < len(buf) {
		s.host.ReportEvent(refclock.EventUnreachable)
		return fmt.Errorf("javad: %s: short write %d < %d", what, n, len(buf))
	}
	return nil
}

func (s *Session) route(f greis.Frame) {
	switch f.Kind {
	case greis.KindLine:
		s.routeLine(f.Text)
	case greis.KindMessage:
		s.routeMessage(f)
	}
}

func (s *Session) routeLine(line string) {
	s.stats.Lines++
	if s.cfg.Debug {
		log.Printf("javad: < %q", line)
	}
	if !strings.HasPrefix(line, "$") {
		// Terminal acknowledgement or unsolicited chatter.
		log.Printf("javad: receiver: %q", line)
		return
	}
	sent, err := parseSentence(line)
	if err != nil {
		s.stats.BadSentences++
		return
	}
	if sent.Type != "RMC" {
		return
	}
	at, valid, err := rmcTime(sent.Fields)
	if err != nil {
		s.stats.BadSentences++
		return
	}
	s.applyRMC(at, valid)
}

// applyRMC treats a 1 Hz RMC fix like the binary pair of messages it
// replaces: the date pins the week down like a position solution, and the
// timestamp announces the next pulse the way a time-mark message does.
func (s *Session) applyRMC(at time.Time, valid bool) {
	if !valid {
		s.tracker.OnPosition(greis.Position{})
		return
	}
	secs := at.Unix() - gpsEpoch
	if secs < 0 {
		return
	}
	s.tracker.OnPosition(greis.Position{
		Valid:           true,
		Week:            uint32(secs / weekSeconds),
		SecondsIntoWeek: uint32(secs % weekSeconds),
	})
	// RMC reports the fix just made; the receiver's next pulse marks the
	// following second.
	s.onPulse(greis.Pulse{
		SecondsIntoWeek: uint32((secs + 1) % weekSeconds),
		Valid:           true,
		UTC:             true,
	})
}

func (s *Session) routeMessage(f greis.Frame) {
	s.stats.Messages++
	switch f.ID {
	case greis.MsgTimePulse:
		p, err := greis.DecodePulse(f.Payload)
		if err != nil {
			s.stats.BadPayloads++
			return
		}
		s.onPulse(p)
	case greis.MsgGeodeticPosition:
		g, err := greis.DecodePosition(f.Payload)
		if err != nil {
			s.stats.BadPayloads++
			return
		}
		s.tracker.OnPosition(g)
	default:
		// Acks for our own requests land here; nothing to do.
	}
}

func (s *Session) onPulse(p greis.Pulse) {
	utc, err := s.tracker.OnPulse(p)
	switch {
	case err == nil:
		s.prevMark, s.prevOK = s.nextMark, s.nextOK
		s.nextMark, s.nextOK = utc, true
		s.markRecv = s.now()
	case errors.Is(err, ErrBadMark):
		s.host.ReportEvent(refclock.EventBadTime)
	case errors.Is(err, ErrNoAnchor):
		// Dropped quietly; the tracker already logged it.
	}
}

func (s *Session) pollEdge() {
	edge, ok, err := s.corr.Poll()
	if err != nil {
		log.Printf("javad: pps poll: %v", err)
		return
	}
	if !ok {
		return
	}
	mark, ok := s.takeMark(edge.At)
	if !ok {
		s.stats.Unpaired++
		return
	}
	s.lastSample = refclock.Sample{At: edge.At, Stamp: edge.Stamp, Ref: mark}
	s.haveSample = true
	s.stats.Samples++
	s.host.Sample(s.lastSample)
}

// takeMark picks the announcement an edge belongs to and consumes it. An
// edge captured before the latest announcement was received belongs to
// the announcement preceding it; marks are consumed once so a receiver
// going quiet cannot pin stale truth onto later edges.
func (s *Session) takeMark(at time.Time) (time.Time, bool) {
	if at.Before(s.markRecv) {
		if !s.prevOK {
			return time.Time{}, false
		}
		s.prevOK = false
		return s.prevMark, true
	}
	if !s.nextOK {
		return time.Time{}, false
	}
	s.nextOK = false
	return s.nextMark, true
}

func (s *Session) publish() {
	week, known := s.tracker.Week()
	sweek, _ := s.tracker.LastSweek()
	snap := Snapshot{
		Binary:    s.cfg.Binary,
		WeekKnown: known,
		Week:      week,
		LastSweek: sweek,
		LastUTC:   s.tracker.LastUTC(),
		Scanner:   s.scanner.Stats(),
		Tracker:   s.tracker.Stats(),
		Session:   s.stats,
	}
	if s.corr != nil {
		snap.PPS = s.corr.Stats()
	}
	if s.haveSample {
		snap.HaveSample = true
		snap.LastEdge = s.lastSample.At
		snap.LastOffset = s.lastSample.Offset()
	}
	s.last.Store(snap)
}
