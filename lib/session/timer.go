package session

import (
	"context"
	"sync"
	"time"
)

// periodic calls a function on a fixed interval from a single goroutine.
// Start and Stop may be called any number of times.
type periodic struct {
	mutex  sync.Mutex
	cancel context.CancelFunc
}

func (p *periodic) Start(ctx context.Context, interval time.Duration, tick func(ctx context.Context)) {
	p.Stop()
	ctx, cancel := context.WithCancel(ctx)
	p.mutex.Lock()
	p.cancel = cancel
	p.mutex.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick(ctx)
			}
		}
	}()
}

// Stop cancels the timer. A tick that is already running completes.
func (p *periodic) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}
