// Package ntpcheck cross-checks the system clock against outside NTP
// servers. The refclock disciplines the local clock from its own
// receiver; a wrong week anchor or a dead antenna would look healthy
// from the inside, and only a disagreement with independent servers
// gives it away.
package ntpcheck

import (
	"context"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"
)

// Verdict is the outcome of one polling round.
type Verdict struct {
	At      time.Time
	Servers int
	Failed  int
	Median  time.Duration // median offset across the servers that answered
}

// Valid reports whether at least one server answered.
func (v Verdict) Valid() bool { return v.Servers > v.Failed }

type queryFunc func(server string) (*ntp.Response, error)

// Checker polls a fixed server list on an interval and keeps the latest
// verdict for logging and telemetry.
type Checker struct {
	servers  []string
	interval time.Duration
	query    queryFunc
	last     atomic.Value // Verdict
}

func New(servers []string, interval time.Duration) *Checker {
	return &Checker{
		servers:  servers,
		interval: interval,
		query: func(server string) (*ntp.Response, error) {
			return ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: 5 * time.Second})
		},
	}
}

// Last returns the most recent verdict, if any round has completed.
func (c *Checker) Last() (Verdict, bool) {
	v := c.last.Load()
	if v == nil {
		return Verdict{}, false
	}
	return v.(Verdict), true
}

// Run polls immediately and then on every interval until the context is
// cancelled. Operators get a reading at startup, not one interval later.
func (c *Checker) Run(ctx context.Context) error {
	c.checkOnce()
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			c.checkOnce()
		}
	}
}

func (c *Checker) checkOnce() Verdict {
	offsets := make([]time.Duration, 0, len(c.servers))
	failed := 0
	for _, server := range c.servers {
		r, err := c.query(server)
		if err != nil {
			failed++
			log.Printf("ntpcheck: %s: %v", server, err)
			continue
		}
		offsets = append(offsets, r.ClockOffset)
	}

	v := Verdict{At: time.Now(), Servers: len(c.servers), Failed: failed}
	if len(offsets) > 0 {
		v.Median = medianOffset(offsets)
	}
	c.last.Store(v)

	if v.Valid() {
		log.Printf("ntpcheck: median offset %v across %d/%d servers",
			v.Median, v.Servers-v.Failed, v.Servers)
	} else if v.Servers > 0 {
		log.Printf("ntpcheck: no server answered (%d tried)", v.Servers)
	}
	return v
}

// medianOffset returns the middle offset, or the mean of the two middle
// offsets for even counts. The input is not modified.
func medianOffset(offsets []time.Duration) time.Duration {
	sorted := append([]time.Duration(nil), offsets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
