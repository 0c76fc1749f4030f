package driver

import "fmt"

const (
	tpacketAlignment = 16 // TPACKET_ALIGNMENT
	tpacketHdrLen    = 52 // TPACKET3_HDRLEN, rounded
)

// ringSize picks AF_PACKET ring geometry for one receive channel:
//  1. frameSize holds the tpacket header plus snapLen and is a whole number
//     of pages, which also satisfies TPACKET_ALIGNMENT
//  2. blockSize is one frame, so it divides evenly by both page and frame size
//  3. numBlocks fills ringSizeMB, with at least one block
//
// Channels live for a single call, so the ring is kept small.
func ringSize(ringSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	if ringSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("ring size must be positive, got %d MB", ringSizeMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snap length must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be positive and a multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = roundUp(tpacketHdrLen+snapLen, pageSize)
	blockSize = frameSize
	numBlocks = ringSizeMB * 1024 * 1024 / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func roundUp(n, multiple int) int {
	return (n + multiple - 1) / multiple * multiple
}
