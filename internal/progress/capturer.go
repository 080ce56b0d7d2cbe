package progress

import (
	"context"
	"time"

	"polistep/internal/logging"
)

// FrameSource produces one screenshot of the live page.
type FrameSource interface {
	Screenshot() ([]byte, error)
}

// FrameCapturer publishes screenshots to a Sink at a fixed interval
// until its context is cancelled. Capture failures back off and retry;
// oversized frames are dropped.
type FrameCapturer struct {
	source    Sink
	from      FrameSource
	interval  time.Duration
	sizeLimit int
	maxErrors int
}

// NewFrameCapturer wires a frame source to a sink.
func NewFrameCapturer(from FrameSource, to Sink, interval time.Duration, sizeLimit int) *FrameCapturer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if sizeLimit <= 0 {
		sizeLimit = 2 << 20
	}
	return &FrameCapturer{
		source:    to,
		from:      from,
		interval:  interval,
		sizeLimit: sizeLimit,
		maxErrors: 5,
	}
}

// Run captures until ctx is done. Blocking; callers run it in its own
// goroutine and cancel the context to stop it.
func (f *FrameCapturer) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		png, err := f.from.Screenshot()
		if err != nil {
			consecutiveErrors++
			if consecutiveErrors >= f.maxErrors {
				logging.Progress("frame capture giving up after %d consecutive failures: %v", consecutiveErrors, err)
				return
			}
			// Back off before the next tick fires again.
			backoff := time.Duration(consecutiveErrors) * f.interval
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}
		consecutiveErrors = 0

		if len(png) > f.sizeLimit {
			logging.Progress("frame dropped: %d bytes over %d limit", len(png), f.sizeLimit)
			continue
		}
		f.source.Frame(png)
	}
}
