// Package telemetry exposes the daemon's counters to Prometheus. Every
// value is read from published snapshots, so a scrape never touches live
// driver state.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leres/ntp/internal/javad"
	"github.com/leres/ntp/internal/ntpcheck"
)

var (
	descFrames = prometheus.NewDesc("javadclock_frames_total",
		"Complete frames accepted from the receiver.", []string{"kind"}, nil)
	descRejects = prometheus.NewDesc("javadclock_rejected_frames_total",
		"Frames discarded after framing succeeded.", []string{"reason"}, nil)
	descResyncBytes = prometheus.NewDesc("javadclock_resync_bytes_total",
		"Bytes skipped hunting for a sync word.", nil, nil)
	descFlushes = prometheus.NewDesc("javadclock_buffer_flushes_total",
		"Receive buffer flushes after checksum failures.", nil, nil)
	descTruncated = prometheus.NewDesc("javadclock_truncated_bytes_total",
		"Bytes dropped to keep the receive buffer bounded.", nil, nil)

	descPulses = prometheus.NewDesc("javadclock_pulses_total",
		"Time-mark announcements processed.", nil, nil)
	descAnchors = prometheus.NewDesc("javadclock_anchors_total",
		"Valid position solutions anchoring the GPS week.", nil, nil)
	descRollovers = prometheus.NewDesc("javadclock_week_rollovers_total",
		"Natural GPS week rollovers carried.", nil, nil)
	descWarps = prometheus.NewDesc("javadclock_warps_total",
		"Non-sequential seconds-into-week jumps.", nil, nil)
	descStalls = prometheus.NewDesc("javadclock_stalls_total",
		"Repeated seconds-into-week values.", nil, nil)
	descBadMarks = prometheus.NewDesc("javadclock_bad_marks_total",
		"Time marks not usable for samples.", []string{"reason"}, nil)

	descPolls = prometheus.NewDesc("javadclock_pps_polls_total",
		"PPS source fetches.", nil, nil)
	descEdges = prometheus.NewDesc("javadclock_pps_edges_total",
		"New PPS edges observed.", nil, nil)
	descDuplicates = prometheus.NewDesc("javadclock_pps_duplicates_total",
		"PPS edges re-delivered under a fresh sequence number.", nil, nil)

	descSamples = prometheus.NewDesc("javadclock_samples_total",
		"Edge-mark pairs delivered to the host.", nil, nil)
	descUnpaired = prometheus.NewDesc("javadclock_unpaired_edges_total",
		"PPS edges with no receiver mark to pair with.", nil, nil)
	descTimeouts = prometheus.NewDesc("javadclock_timeouts_total",
		"Watchdog expiries on a silent receiver.", nil, nil)
	descReconfigs = prometheus.NewDesc("javadclock_reconfigs_total",
		"Receiver bring-up sequences after the initial one.", nil, nil)

	descChronySamples = prometheus.NewDesc("javadclock_chrony_samples_total",
		"Samples delivered to chronyd's SOCK driver.", nil, nil)

	descWeek = prometheus.NewDesc("javadclock_gps_week",
		"Current GPS week, 0 while unknown.", nil, nil)
	descOffset = prometheus.NewDesc("javadclock_last_offset_seconds",
		"True minus system time at the most recent paired edge.", nil, nil)

	descNTPOffset = prometheus.NewDesc("javadclock_ntpcheck_offset_seconds",
		"Median system clock offset against the check servers.", nil, nil)
	descNTPServers = prometheus.NewDesc("javadclock_ntpcheck_servers",
		"Check servers by outcome in the last round.", []string{"state"}, nil)
)

// Sources supplies the collector with read-only views of the daemon.
// ChronySent and NTPCheck may be nil when those subsystems are disabled.
type Sources struct {
	Snapshot   func() javad.Snapshot
	ChronySent func() uint64
	NTPCheck   func() (ntpcheck.Verdict, bool)
}

// Collector implements the prometheus.Collector interface.
type Collector struct {
	src Sources
}

func NewCollector(src Sources) *Collector {
	return &Collector{src: src}
}

// Describe implements the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descFrames, descRejects, descResyncBytes, descFlushes, descTruncated,
		descPulses, descAnchors, descRollovers, descWarps, descStalls,
		descBadMarks, descPolls, descEdges, descDuplicates, descSamples,
		descUnpaired, descTimeouts, descReconfigs, descChronySamples,
		descWeek, descOffset, descNTPOffset, descNTPServers,
	} {
		ch <- d
	}
}

// Collect implements the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.src.Snapshot()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	counter(descFrames, snap.Scanner.Lines, "line")
	counter(descFrames, snap.Scanner.Messages, "message")
	counter(descRejects, snap.Session.BadSentences, "sentence")
	counter(descRejects, snap.Session.BadPayloads, "payload")
	counter(descResyncBytes, snap.Scanner.ResyncBytes)
	counter(descFlushes, snap.Scanner.Flushes)
	counter(descTruncated, snap.Scanner.Truncated)

	counter(descPulses, snap.Tracker.Pulses)
	counter(descAnchors, snap.Tracker.Anchors)
	counter(descRollovers, snap.Tracker.Rollovers)
	counter(descWarps, snap.Tracker.Warps)
	counter(descStalls, snap.Tracker.Stalls)
	counter(descBadMarks, snap.Tracker.Rejected, "rejected")
	counter(descBadMarks, snap.Tracker.Dropped, "no_anchor")

	counter(descPolls, snap.PPS.Polls)
	counter(descEdges, snap.PPS.Edges)
	counter(descDuplicates, snap.PPS.Duplicates)

	counter(descSamples, snap.Session.Samples)
	counter(descUnpaired, snap.Session.Unpaired)
	counter(descTimeouts, snap.Session.Timeouts)
	counter(descReconfigs, snap.Session.Reconfigs)

	if c.src.ChronySent != nil {
		counter(descChronySamples, c.src.ChronySent())
	}

	week := float64(0)
	if snap.WeekKnown {
		week = float64(snap.Week)
	}
	ch <- prometheus.MustNewConstMetric(descWeek, prometheus.GaugeValue, week)
	if snap.HaveSample {
		ch <- prometheus.MustNewConstMetric(descOffset, prometheus.GaugeValue, snap.LastOffset.Seconds())
	}

	if c.src.NTPCheck != nil {
		if v, ok := c.src.NTPCheck(); ok {
			if v.Valid() {
				ch <- prometheus.MustNewConstMetric(descNTPOffset, prometheus.GaugeValue, v.Median.Seconds())
			}
			answered := float64(v.Servers - v.Failed)
			ch <- prometheus.MustNewConstMetric(descNTPServers, prometheus.GaugeValue, answered, "answered")
			ch <- prometheus.MustNewConstMetric(descNTPServers, prometheus.GaugeValue, float64(v.Failed), "failed")
		}
	}
}
