package fetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostPacer enforces a minimum spacing between requests to the same host.
// All concurrent fetches observe the same per-host schedule. The limiter's
// internal clock is monotonic, so wall-clock jumps do not distort pacing.
type hostPacer struct {
	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

func newHostPacer() *hostPacer {
	return &hostPacer{hosts: make(map[string]*rate.Limiter)}
}

// Wait blocks until the host's next slot. A changed delay takes effect for
// subsequent waits on the same host. delay <= 0 never blocks.
func (p *hostPacer) Wait(ctx context.Context, host string, delay time.Duration) error {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}

	p.mu.Lock()
	lim, ok := p.hosts[host]
	if !ok {
		lim = rate.NewLimiter(limit, 1)
		p.hosts[host] = lim
	} else if lim.Limit() != limit {
		lim.SetLimit(limit)
	}
	p.mu.Unlock()

	return lim.Wait(ctx)
}
