package core

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRawPacketZeroValue(t *testing.T) {
	var raw RawPacket
	if raw.Data != nil {
		t.Errorf("expected Data=nil, got %v", raw.Data)
	}
	if !raw.Timestamp.IsZero() {
		t.Errorf("expected zero Timestamp, got %v", raw.Timestamp)
	}
	if raw.Truncated() {
		t.Errorf("zero RawPacket must not report truncation")
	}
}

func TestRawPacketTruncated(t *testing.T) {
	raw := RawPacket{
		Data:       make([]byte, 64),
		Timestamp:  time.Now(),
		CaptureLen: 64,
		OrigLen:    1514,
	}
	if !raw.Truncated() {
		t.Errorf("expected truncated frame, CaptureLen=%d OrigLen=%d", raw.CaptureLen, raw.OrigLen)
	}
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrMalformed,
		ErrAddressing,
		ErrUnsupportedPlatform,
		ErrInvalidChain,
		ErrChecksumMismatch,
		ErrNoAnswer,
		ErrConfigInvalid,
	}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v must not match %v", a, b)
			}
		}
	}

	wrapped := fmt.Errorf("ipv4: need 20 bytes, got 10: %w", ErrMalformed)
	if !errors.Is(wrapped, ErrMalformed) {
		t.Errorf("wrapped error lost its sentinel: %v", wrapped)
	}
}
