package events

import (
	"context"
	"sync"
	"time"

	"github.com/cosmomed/pharmacy-locator/interfaces"
	"github.com/cosmomed/pharmacy-locator/logging"
	"github.com/cosmomed/pharmacy-locator/pharmacy"
)

var _ interfaces.Publisher = (*AsyncPublisher)(nil)

// AsyncPublisher hands each event to next on its own goroutine so callers
// never wait on the broker. Failures are logged.
type AsyncPublisher struct {
	next    interfaces.Publisher
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsyncPublisher wraps next. Each publish gets timeout to complete.
func NewAsyncPublisher(next interfaces.Publisher, timeout time.Duration) *AsyncPublisher {
	return &AsyncPublisher{next: next, timeout: timeout}
}

// PublishSelection queues evt and returns immediately. The caller's
// cancellation does not reach the background publish.
func (p *AsyncPublisher) PublishSelection(ctx context.Context, evt pharmacy.SelectionEvent) error {
	ctx = context.WithoutCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if err := p.next.PublishSelection(ctx, evt); err != nil {
			logging.Warn("Failed to publish selection",
				"session_id", evt.SessionID, "pharmacy_id", evt.PharmacyID, "error", err)
		}
	}()
	return nil
}

// Close waits for queued publishes, then closes next.
func (p *AsyncPublisher) Close() error {
	p.wg.Wait()
	return p.next.Close()
}
