// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with fmt.Errorf("...: %w") and match with errors.Is.
var (
	// Packet decoding errors
	ErrMalformed = errors.New("pktcraft: malformed input")

	// Transmission errors
	ErrAddressing          = errors.New("pktcraft: addressing error")
	ErrUnsupportedPlatform = errors.New("pktcraft: raw sockets not supported on this platform")

	// Chain construction errors
	ErrInvalidChain = errors.New("pktcraft: invalid layer chain")

	// Opt-in integrity checking
	ErrChecksumMismatch = errors.New("pktcraft: checksum mismatch")

	// DNS answer extraction
	ErrNoAnswer = errors.New("pktcraft: no usable answer record")

	// Configuration errors
	ErrConfigInvalid = errors.New("pktcraft: invalid configuration")
)
