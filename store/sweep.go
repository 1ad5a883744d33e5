package store

import (
	"context"
	"time"
)

// Sweeper periodically reclaims dead records. It only ever removes
// contexts that are already expired or consumed, so it is safe to run
// alongside active verifications.
type Sweeper struct {
	store    ContextStore
	interval time.Duration
	logf     func(format string, args ...any)
}

// NewSweeper builds a sweeper over st. logf may be nil; otherwise it
// receives a line per sweep that removed anything.
func NewSweeper(st ContextStore, interval time.Duration, logf func(format string, args ...any)) *Sweeper {
	return &Sweeper{store: st, interval: interval, logf: logf}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
// Sweep errors are reported through logf and never stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.store.Cleanup(ctx)
			if err != nil {
				if s.logf != nil {
					s.logf("sweep failed: %v", err)
				}
				continue
			}
			if n > 0 && s.logf != nil {
				s.logf("swept %d dead contexts", n)
			}
		}
	}
}
