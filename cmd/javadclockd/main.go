// Command javadclockd disciplines the system clock from a Javad GNSS
// receiver. It pairs the receiver's per-second time marks with PPS edge
// captures and hands the resulting offsets to chronyd over a SOCK
// refclock, with optional Prometheus metrics, a msgpack status feed,
// and an NTP cross-check of the local clock.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/leres/ntp/internal/chrony"
	"github.com/leres/ntp/internal/config"
	"github.com/leres/ntp/internal/javad"
	"github.com/leres/ntp/internal/monitor"
	"github.com/leres/ntp/internal/ntpcheck"
	"github.com/leres/ntp/internal/pps"
	"github.com/leres/ntp/internal/refclock"
	"github.com/leres/ntp/internal/telemetry"
)

// serialReadTimeout bounds each blocking serial read so the poll ticker,
// control updates, and shutdown are serviced promptly even when the
// receiver goes quiet.
const serialReadTimeout = 200 * time.Millisecond

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "/etc/javadclockd.yaml", "Path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Configuration load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	port, err := javad.OpenSerial(cfg.Serial.Device, cfg.Serial.Baud, serialReadTimeout)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer port.Close()

	corr := openPPS(cfg.PPS)

	var feeder *chrony.Feeder
	if cfg.Chrony.Sock != "" {
		feeder = chrony.NewFeeder(cfg.Chrony.Sock)
		defer feeder.Close()
	}

	sess := javad.NewSession(port, corr, &chronyHost{feeder: feeder}, javad.Config{
		Binary:           cfg.Driver.Binary,
		PositionInterval: cfg.Driver.PositionInterval,
		TimeoutPolls:     cfg.Driver.TimeoutPolls,
		Debug:            cfg.Driver.Debug,
		Control:          controlFrom(cfg),
	})
	if err := sess.Start(); err != nil {
		log.Fatalf("Receiver bring-up failed: %v", err)
	}
	defer sess.Shutdown()

	log.Printf("javadclockd starting, device=%s baud=%d pps=%s",
		cfg.Serial.Device, cfg.Serial.Baud, cfg.PPS.Source)

	g, ctx := errgroup.WithContext(ctx)

	ctl := make(chan refclock.Control, 1)
	g.Go(func() error {
		return runSession(ctx, sess, port, cfg.Driver.PollInterval, ctl)
	})
	g.Go(func() error {
		return watchReload(ctx, configPath, ctl)
	})

	var checker *ntpcheck.Checker
	if len(cfg.NTPCheck.Servers) > 0 {
		checker = ntpcheck.New(cfg.NTPCheck.Servers, cfg.NTPCheck.Interval)
		g.Go(func() error {
			return checker.Run(ctx)
		})
	}

	if cfg.Metrics.Listen != "" {
		src := telemetry.Sources{Snapshot: sess.Snapshot}
		if feeder != nil {
			src.ChronySent = feeder.Sent
		}
		if checker != nil {
			src.NTPCheck = checker.Last
		}
		prometheus.MustRegister(telemetry.NewCollector(src))
		g.Go(func() error {
			return serveMetrics(ctx, cfg.Metrics.Listen)
		})
	}

	if cfg.Monitor.Dest != "" {
		mon, err := monitor.New(cfg.Monitor.Dest, cfg.Monitor.Interval, statusSource(sess, feeder))
		if err != nil {
			log.Fatalf("Status broadcaster setup failed: %v", err)
		}
		defer mon.Close()
		g.Go(func() error {
			return mon.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("javadclockd failed: %v", err)
	}
	log.Printf("javadclockd stopping")
}

// runSession owns the receiver session: every Receive, Poll, and Control
// call happens on this goroutine. The serial read timeout keeps the loop
// turning when the receiver is silent.
func runSession(ctx context.Context, sess *javad.Session, port io.Reader, interval time.Duration, ctl <-chan refclock.Control) error {
	tick := time.NewTicker(interval)
	defer tick.Stop()

	buf := make([]byte, 512)
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-ctl:
			sess.Control(c)
			continue
		case <-tick.C:
			sess.Poll()
		default:
		}
		n, err := port.Read(buf)
		if n > 0 {
			sess.Receive(buf[:n])
		}
		// The port returns io.EOF when the read timeout expires with
		// nothing buffered. That is idleness, not an error.
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("serial read: %w", err)
		}
	}
}

// watchReload rereads the configuration on SIGHUP and forwards the
// receiver control flags to the session goroutine. Serial and transport
// settings still need a restart.
func watchReload(ctx context.Context, path string, ctl chan<- refclock.Control) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
		}
		cfg, err := config.Load(path)
		if err != nil {
			log.Printf("Reload ignored: %v", err)
			continue
		}
		select {
		case ctl <- controlFrom(cfg):
			log.Printf("Reloaded control settings, edge=%s mobile=%t",
				cfg.PPS.Edge, cfg.Driver.Mobile)
		case <-ctx.Done():
			return nil
		}
	}
}

// openPPS opens the configured pulse source. Failure is not fatal: the
// driver still delivers coarse serial-only time without a pulse.
func openPPS(cfg config.PPSConfig) *pps.Correlator {
	mode := pps.CaptureAssert
	if cfg.Edge == "clear" {
		mode = pps.CaptureClear
	}
	var (
		src pps.Source
		err error
	)
	switch cfg.Source {
	case "off":
		return nil
	case "gpio":
		src, err = pps.OpenGPIO(cfg.GPIOChip, cfg.GPIOLine)
	default:
		src, err = pps.OpenKernel(cfg.Device)
	}
	if err != nil {
		log.Printf("PPS unavailable, running without it: %v", err)
		return nil
	}
	return pps.NewCorrelator(src, mode)
}

// serveMetrics runs the Prometheus exposition endpoint until ctx ends.
func serveMetrics(ctx context.Context, listenAddr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>
		<head><title>javadclockd</title></head>
		<body>
		<h1>javadclockd</h1>
		<p><a href="/metrics">Metrics</a></p>
		</body>
		</html>`))
	})

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("metrics listener: %w", err)
	}
}

// statusSource flattens the session snapshot into the datagram schema.
func statusSource(sess *javad.Session, feeder *chrony.Feeder) func() monitor.Status {
	return func() monitor.Status {
		snap := sess.Snapshot()
		st := monitor.Status{
			Time:        time.Now().UTC(),
			Binary:      snap.Binary,
			WeekKnown:   snap.WeekKnown,
			Week:        snap.Week,
			Sweek:       snap.LastSweek,
			LastUTC:     snap.LastUTC,
			HaveSample:  snap.HaveSample,
			OffsetNs:    snap.LastOffset.Nanoseconds(),
			Lines:       snap.Scanner.Lines,
			Messages:    snap.Scanner.Messages,
			ResyncBytes: snap.Scanner.ResyncBytes,
			Flushes:     snap.Scanner.Flushes,
			Pulses:      snap.Tracker.Pulses,
			Warps:       snap.Tracker.Warps,
			Stalls:      snap.Tracker.Stalls,
			Edges:       snap.PPS.Edges,
			Duplicates:  snap.PPS.Duplicates,
			Samples:     snap.Session.Samples,
			Unpaired:    snap.Session.Unpaired,
			Timeouts:    snap.Session.Timeouts,
		}
		if feeder != nil {
			st.ChronySent = feeder.Sent()
		}
		return st
	}
}

func controlFrom(cfg config.Config) refclock.Control {
	return refclock.Control{
		CaptureClear: cfg.PPS.Edge == "clear",
		Mobile:       cfg.Driver.Mobile,
	}
}

// chronyHost is the daemon-side refclock host: samples go to chronyd,
// health events go to the log.
type chronyHost struct {
	feeder *chrony.Feeder // nil leaves samples unsent
}

func (h *chronyHost) Sample(s refclock.Sample) {
	if h.feeder == nil {
		return
	}
	if err := h.feeder.Send(s.At, s.Offset()); err != nil {
		log.Printf("%v", err)
	}
}

func (h *chronyHost) ReportEvent(e refclock.Event) {
	log.Printf("Receiver event: %s", e)
}
