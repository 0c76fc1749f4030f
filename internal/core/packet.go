// Package core defines core data structures with zero external dependencies.
package core

import "time"

// RawPacket is one frame read from a link-layer channel.
type RawPacket struct {
	Data           []byte    // Raw frame data, starting at the Ethernet header
	Timestamp      time.Time // Capture timestamp (kernel timestamp preferred)
	CaptureLen     uint32    // Actual captured length
	OrigLen        uint32    // Original frame length
	InterfaceIndex int       // Network interface index
}

// Truncated reports whether the frame was cut short by the snapshot length.
func (p RawPacket) Truncated() bool {
	return p.CaptureLen < p.OrigLen
}
