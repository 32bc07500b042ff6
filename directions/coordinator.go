package directions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cosmomed/pharmacy-locator/geo"
	"github.com/cosmomed/pharmacy-locator/logging"
)

// Coordinator issues route requests and holds the rendered route. Only the
// latest request for the current destination may replace it.
type Coordinator struct {
	provider  Provider
	timeout   time.Duration
	onOutcome func(outcome string)

	mu            sync.Mutex
	generation    uint64
	destinationID string
	current       *RouteResult
}

// CoordinatorOption customises a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.timeout = d }
}

// WithOutcomeHook receives "ok", "superseded" or an ErrorKind string per request.
func WithOutcomeHook(fn func(outcome string)) CoordinatorOption {
	return func(c *Coordinator) { c.onOutcome = fn }
}

// NewCoordinator returns a coordinator backed by provider.
func NewCoordinator(provider Provider, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{provider: provider, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestRoute asks the provider for a route from origin to destination.
// On success the result becomes the rendered route. On failure the rendered
// route is left as it was and a *RouteError is returned. A completion that
// lost to a newer request or a selection change returns ErrSuperseded.
func (c *Coordinator) RequestRoute(ctx context.Context, origin *geo.Coordinates, destination *Destination, mode TravelMode) (*RouteResult, error) {
	if origin == nil {
		return nil, c.fail(&RouteError{Kind: OriginUnavailable, Err: geo.ErrLocationUnavailable})
	}
	if destination == nil {
		return nil, c.fail(&RouteError{Kind: DestinationUnavailable})
	}
	if mode == "" {
		mode = Driving
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.destinationID = destination.ID
	c.mu.Unlock()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	result, err := c.provider.Route(ctx, *origin, destination.Coordinates, mode)
	if err == nil && result == nil {
		err = &RouteError{Kind: NoRouteFound}
	}

	c.mu.Lock()
	stale := gen != c.generation || destination.ID != c.destinationID
	if !stale && err == nil {
		result.DestinationID = destination.ID
		result.Mode = mode
		c.current = result
	}
	c.mu.Unlock()

	if stale {
		c.record("superseded")
		logging.Debug("Discarded superseded route", "destination", destination.ID, "generation", gen)
		return nil, ErrSuperseded
	}
	if err != nil {
		var re *RouteError
		if !errors.As(err, &re) {
			re = &RouteError{Kind: ProviderUnreachable, Err: err}
		}
		return nil, c.fail(re)
	}

	c.record("ok")
	return result, nil
}

func (c *Coordinator) fail(err *RouteError) error {
	c.record(err.Kind.String())
	if err.Kind == ProviderUnreachable {
		logging.Warn("Route request failed", "kind", err.Kind.String(), "status", err.Status, "error", err.Err)
	}
	return err
}

func (c *Coordinator) record(outcome string) {
	if c.onOutcome != nil {
		c.onOutcome(outcome)
	}
}

// Clear drops the rendered route and invalidates requests in flight.
// It runs on deselection, on a new selection and on visible list changes.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.destinationID = ""
	c.current = nil
}

// Current returns the rendered route, if any.
func (c *Coordinator) Current() (*RouteResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, false
	}
	r := *c.current
	return &r, true
}
