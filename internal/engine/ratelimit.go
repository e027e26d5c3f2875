package engine

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// NewBWLimiter builds the shared token bucket for a bytes-per-second cap.
// Burst is 1 MiB, clamped down to the rate itself for smaller caps.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := min(bytesPerSec, 1<<20)
	return rate.NewLimiter(rate.Limit(bytesPerSec), int(burst))
}

// limitReader throttles r by limiter; a nil limiter passes r through.
// Throttling happens on the read side so every transfer path (whole-file
// and delta) shares one token bucket across workers.
func limitReader(ctx context.Context, r io.Reader, limiter *rate.Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &rateLimitedReader{r: r, limiter: limiter, ctx: ctx}
}

// rateLimitedReader charges the bucket for bytes already read. Read blocks
// until the tokens are granted or ctx ends.
type rateLimitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func (rl *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := rl.r.Read(p)
	if n == 0 {
		return n, err
	}
	if waitErr := rl.limiter.WaitN(rl.ctx, n); waitErr != nil {
		return n, waitErr
	}
	return n, err
}
