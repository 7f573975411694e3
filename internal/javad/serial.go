package javad

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// OpenSerial opens the receiver's port, 8N1 at the given rate. The read
// timeout keeps the session loop ticking while the receiver is silent so
// the watchdog still runs.
func OpenSerial(device string, baud int, readTimeout time.Duration) (*serial.Port, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("javad: open %s: %w", device, err)
	}
	return port, nil
}
