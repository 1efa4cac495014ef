package literal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/swarmguard/yarad/services/yarad/scanner"
)

const defaultChunkSize = 64 * 1024

// streamScan feeds r through a in fixed-size chunks. The last maxLen-1 bytes of
// each chunk are carried into the next one so patterns spanning a boundary are
// found; hits lying entirely inside the carried region were already reported and
// are suppressed. The deadline and ctx are checked before every read.
func streamScan(ctx context.Context, r io.Reader, a *automaton, chunkSize int, deadline time.Time, emit func(hit)) error {
	overlapSize := a.maxLen - 1
	if overlapSize < 0 {
		overlapSize = 0
	}
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkSize <= overlapSize {
		chunkSize = overlapSize + 1
	}
	buffer := make([]byte, overlapSize+chunkSize)
	carried := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return fmt.Errorf("literal scan: %w", scanner.ErrScanTimeout)
		}
		nr, err := io.ReadFull(r, buffer[carried:carried+chunkSize])
		if nr > 0 {
			chunk := buffer[:carried+nr]
			skip := carried
			a.scan(chunk, func(h hit) {
				if h.end > skip {
					emit(h)
				}
			})
			keep := overlapSize
			if keep > len(chunk) {
				keep = len(chunk)
			}
			copy(buffer, chunk[len(chunk)-keep:])
			carried = keep
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
	}
}
