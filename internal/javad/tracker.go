package javad

import (
	"errors"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/leres/ntp/internal/greis"
)

const (
	// gpsEpoch is the Unix time of the GPS origin, 1980-01-06T00:00:00Z.
	gpsEpoch = 315964800
	// weekSeconds is one GPS week.
	weekSeconds = 7 * 86400

	// lastNone marks "no previous seconds-into-week yet". It sits outside
	// [0, weekSeconds) so it can never match a real value.
	lastNone = 2 * weekSeconds
)

var (
	// ErrNoAnchor: a pulse arrived before any valid position established
	// the week. The pulse is dropped; no daemon event until resolved.
	ErrNoAnchor = errors.New("javad: no position anchor, cannot reconstruct time")
	// ErrBadMark: the receiver flagged the time mark invalid or not yet
	// UTC-synchronized.
	ErrBadMark = errors.New("javad: time mark not valid or not utc-synced")
)

// TrackerStats counts tracker activity. Counters survive Reset.
type TrackerStats struct {
	Pulses    uint64
	Anchors   uint64
	Rollovers uint64
	Warps     uint64 // seconds-into-week jumped non-sequentially
	Stalls    uint64 // seconds-into-week repeated
	Rejected  uint64 // marks flagged unusable by the receiver
	Dropped   uint64 // pulses with no anchor to derive the week from
}

// Tracker reconstructs absolute UTC time from the receiver's week-relative
// second counter.
//
// The receiver reports seconds into the GPS week; the week number itself
// only appears in position solutions, and only those computed under a
// valid fix are trusted. The tracker anchors the week from positions,
// carries it across natural rollovers, and resolves the ambiguity when a
// pulse and its anchor straddle a week boundary.
type Tracker struct {
	week uint32 // 0 means unknown
	last uint32 // previous seconds-into-week, lastNone before the first pulse

	// Most recent valid position solution; posWeek 0 means none yet.
	posWeek  uint32
	posSweek uint32

	lastUTC time.Time

	stats TrackerStats

	// Warp and stall chatter is receiver-driven; keep it out of the log
	// at full rate.
	logLimit *rate.Limiter
}

func NewTracker() *Tracker {
	return &Tracker{
		last:     lastNone,
		logLimit: rate.NewLimiter(rate.Every(10*time.Second), 5),
	}
}

// Reset returns the tracker to its power-on state. Counters are kept.
func (t *Tracker) Reset() {
	t.week = 0
	t.last = lastNone
	t.posWeek, t.posSweek = 0, 0
	t.lastUTC = time.Time{}
}

// Week returns the current GPS week and whether it is known.
func (t *Tracker) Week() (uint32, bool) {
	return t.week, t.week != 0
}

// LastSweek returns the previous seconds-into-week value, if any pulse has
// been seen since the last reset.
func (t *Tracker) LastSweek() (uint32, bool) {
	if t.last == lastNone {
		return 0, false
	}
	return t.last, true
}

// LastUTC returns the most recent reconstructed absolute time.
func (t *Tracker) LastUTC() time.Time { return t.lastUTC }

// Stats returns a copy of the activity counters.
func (t *Tracker) Stats() TrackerStats { return t.stats }

// OnPosition folds a geodetic solution into the week anchor. Whatever the
// outcome, the current week is re-derived from scratch by the next pulse:
// a fresh anchor always outranks a carried week.
func (t *Tracker) OnPosition(p greis.Position) {
	if !p.Valid {
		// A week learned while the fix was invalid cannot be trusted.
		t.posWeek, t.posSweek = 0, 0
		t.week = 0
		return
	}
	week, sweek := p.Week, p.SecondsIntoWeek
	for sweek >= weekSeconds {
		sweek -= weekSeconds
		week++
	}
	t.posWeek, t.posSweek = week, sweek
	t.week = 0
	t.stats.Anchors++
}

// OnPulse processes a time-mark announcement and returns the absolute UTC
// time of the next pulse edge. The value returned by the previous call is
// the time of the edge arriving now; callers pair edges accordingly.
func (t *Tracker) OnPulse(p greis.Pulse) (time.Time, error) {
	t.stats.Pulses++
	s := p.SecondsIntoWeek % weekSeconds

	if t.week == 0 {
		if t.posWeek == 0 {
			t.stats.Dropped++
			if t.logLimit.Allow() {
				log.Printf("javad: pulse with unknown week and no anchor, dropped")
			}
			return time.Time{}, ErrNoAnchor
		}
		t.week = t.posWeek
		// The anchor and the pulse can straddle a week boundary; more
		// than half a week apart means they sit in different weeks.
		if t.posSweek >= s {
			if t.posSweek-s > weekSeconds/2 {
				t.week++
			}
		} else {
			if s-t.posSweek > weekSeconds/2 {
				t.week--
			}
		}
	} else if s == 0 && t.last == weekSeconds-1 {
		t.week++
		t.stats.Rollovers++
	}

	switch {
	case t.last == s:
		t.stats.Stalls++
		if t.logLimit.Allow() {
			log.Printf("javad: time mark not incrementing: sweek %d", s)
		}
	case t.last != lastNone && t.last+1 != s && !(s == 0 && t.last == weekSeconds-1):
		t.stats.Warps++
		if t.logLimit.Allow() {
			log.Printf("javad: sweek jumped: %d -> %d", t.last, s)
		}
	}
	t.last = s

	utc := time.Unix(gpsEpoch+int64(t.week)*weekSeconds+int64(s), 0).UTC()
	if !p.Valid || !p.UTC {
		t.stats.Rejected++
		return time.Time{}, ErrBadMark
	}
	t.lastUTC = utc
	return utc, nil
}
