// Package monitor pushes periodic daemon status over UDP for fleet
// monitoring: one msgpack datagram per interval, fire and forget.
package monitor

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/vmihailenco/msgpack/v4"
)

// Status is the wire format. Tags are kept short; receivers decode by
// name, not position.
type Status struct {
	Time       time.Time `msgpack:"t"`
	Binary     bool      `msgpack:"bin"`
	WeekKnown  bool      `msgpack:"wk"`
	Week       uint32    `msgpack:"w"`
	Sweek      uint32    `msgpack:"sw"`
	LastUTC    time.Time `msgpack:"utc"`
	HaveSample bool      `msgpack:"hs"`
	OffsetNs   int64     `msgpack:"off"`

	Lines       uint64 `msgpack:"ln"`
	Messages    uint64 `msgpack:"ms"`
	ResyncBytes uint64 `msgpack:"rb"`
	Flushes     uint64 `msgpack:"fl"`
	Pulses      uint64 `msgpack:"pu"`
	Warps       uint64 `msgpack:"wp"`
	Stalls      uint64 `msgpack:"st"`
	Edges       uint64 `msgpack:"ed"`
	Duplicates  uint64 `msgpack:"du"`
	Samples     uint64 `msgpack:"sa"`
	Unpaired    uint64 `msgpack:"un"`
	Timeouts    uint64 `msgpack:"to"`
	ChronySent  uint64 `msgpack:"cs"`
}

type udpConn interface {
	Write([]byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

type Broadcaster struct {
	dest     string
	conn     udpConn
	interval time.Duration
	source   func() Status
}

// New connects a status broadcaster to its destination. The source
// callback is invoked once per tick from the broadcaster's goroutine and
// must be safe to call concurrently with the rest of the daemon.
func New(dest string, interval time.Duration, source func() Status) (*Broadcaster, error) {
	resolve := net.ResolveUDPAddr
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	}
	return newBroadcaster(dest, interval, source, resolve, dial)
}

func newBroadcaster(dest string, interval time.Duration, source func() Status, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}

	return &Broadcaster{
		dest:     dest,
		conn:     conn,
		interval: interval,
		source:   source,
	}, nil
}

// Run broadcasts until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			b.send()
		}
	}
}

func (b *Broadcaster) send() {
	st := b.source()
	payload, err := msgpack.Marshal(&st)
	if err != nil {
		log.Printf("monitor: encode status: %v", err)
		return
	}
	if _, err := b.conn.Write(payload); err != nil {
		log.Printf("monitor: send %s: %v", b.dest, err)
	}
}

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
