// Package greis speaks the wire side of Javad GREIS receivers.
//
// The receiver exposes two disciplines on the same serial port:
//   - a terminal channel: CR-terminated commands out, CR LF lines back
//   - a binary channel: sync-delimited messages with 16-bit word checksums
//
// Scanner recovers complete frames from either discipline; the message
// helpers decode the two payloads the time-transfer path cares about
// (geodetic position and the UTC time-mark pulse) and build the
// request/cancel messages that drive the binary channel.
package greis
