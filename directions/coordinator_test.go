package directions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cosmomed/pharmacy-locator/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type providerReply struct {
	result *RouteResult
	err    error
}

// fakeProvider answers each call with the next reply sent on its channel.
type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	replies chan providerReply
	started chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{replies: make(chan providerReply), started: make(chan struct{}, 8)}
}

func (f *fakeProvider) Route(ctx context.Context, origin, destination geo.Coordinates, mode TravelMode) (*RouteResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	f.started <- struct{}{}

	select {
	case r := <-f.replies:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// staticProvider always returns the same reply.
type staticProvider providerReply

func (s staticProvider) Route(context.Context, geo.Coordinates, geo.Coordinates, TravelMode) (*RouteResult, error) {
	return s.result, s.err
}

var pharmacyDest = &Destination{ID: "p2", Name: "Two", Coordinates: geo.Coordinates{Lat: 7.9450, Lng: 80.7718}}

func okRoute(distance string) *RouteResult {
	return &RouteResult{DistanceText: distance, DurationText: "12 mins"}
}

func TestRequestRouteSuccessReplacesCurrent(t *testing.T) {
	var outcomes []string
	c := NewCoordinator(staticProvider{result: okRoute("8.1 km")}, WithOutcomeHook(func(o string) { outcomes = append(outcomes, o) }))

	r, err := c.RequestRoute(context.Background(), &origin, pharmacyDest, "")
	require.NoError(t, err)
	assert.Equal(t, "8.1 km", r.DistanceText)
	assert.Equal(t, "p2", r.DestinationID)
	assert.Equal(t, Driving, r.Mode)

	current, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, "8.1 km", current.DistanceText)
	assert.Equal(t, []string{"ok"}, outcomes)
}

func TestRequestRouteMissingInputs(t *testing.T) {
	c := NewCoordinator(staticProvider{result: okRoute("1 km")})

	_, err := c.RequestRoute(context.Background(), nil, pharmacyDest, Driving)
	assert.Equal(t, OriginUnavailable, KindOf(err))
	assert.ErrorIs(t, err, geo.ErrLocationUnavailable)

	_, err = c.RequestRoute(context.Background(), &origin, nil, Driving)
	assert.Equal(t, DestinationUnavailable, KindOf(err))

	_, ok := c.Current()
	assert.False(t, ok)
}

func TestRequestRouteFailureLeavesCurrentUnchanged(t *testing.T) {
	provider := &switchProvider{reply: providerReply{result: okRoute("8.1 km")}}
	c := NewCoordinator(provider)

	_, err := c.RequestRoute(context.Background(), &origin, pharmacyDest, Driving)
	require.NoError(t, err)

	provider.reply = providerReply{err: &RouteError{Kind: NoRouteFound, Status: "ZERO_RESULTS"}}
	_, err = c.RequestRoute(context.Background(), &origin, pharmacyDest, Driving)
	assert.Equal(t, NoRouteFound, KindOf(err))

	current, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, "8.1 km", current.DistanceText)
}

func TestRequestRouteWrapsUnknownErrors(t *testing.T) {
	c := NewCoordinator(staticProvider{err: errors.New("dial tcp: refused")})
	_, err := c.RequestRoute(context.Background(), &origin, pharmacyDest, Driving)
	assert.Equal(t, ProviderUnreachable, KindOf(err))

	c = NewCoordinator(staticProvider{})
	_, err = c.RequestRoute(context.Background(), &origin, pharmacyDest, Driving)
	assert.Equal(t, NoRouteFound, KindOf(err))
}

func TestRequestRouteTimeout(t *testing.T) {
	c := NewCoordinator(newFakeProvider(), WithTimeout(20*time.Millisecond))
	_, err := c.RequestRoute(context.Background(), &origin, pharmacyDest, Driving)
	assert.Equal(t, ProviderUnreachable, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOlderRequestIsSuperseded(t *testing.T) {
	provider := newFakeProvider()
	c := NewCoordinator(provider)

	type outcome struct {
		result *RouteResult
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		r, err := c.RequestRoute(context.Background(), &origin, pharmacyDest, Driving)
		first <- outcome{r, err}
	}()
	<-provider.started

	second := make(chan outcome, 1)
	go func() {
		r, err := c.RequestRoute(context.Background(), &origin, pharmacyDest, Walking)
		second <- outcome{r, err}
	}()
	<-provider.started

	// Whichever call receives a reply first, only the second request may win.
	provider.replies <- providerReply{result: okRoute("A")}
	provider.replies <- providerReply{result: okRoute("B")}

	a, b := <-first, <-second
	require.ErrorIs(t, a.err, ErrSuperseded)
	assert.Nil(t, a.result)
	require.NoError(t, b.err)

	current, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, b.result.DistanceText, current.DistanceText)
	assert.Equal(t, Walking, current.Mode)
}

func TestClearDiscardsInFlightRequest(t *testing.T) {
	provider := newFakeProvider()
	c := NewCoordinator(provider)

	done := make(chan error, 1)
	go func() {
		_, err := c.RequestRoute(context.Background(), &origin, pharmacyDest, Driving)
		done <- err
	}()
	<-provider.started

	c.Clear()
	provider.replies <- providerReply{result: okRoute("late")}

	assert.ErrorIs(t, <-done, ErrSuperseded)
	_, ok := c.Current()
	assert.False(t, ok)
}

// switchProvider returns whatever reply is currently set.
type switchProvider struct {
	reply providerReply
}

func (s *switchProvider) Route(context.Context, geo.Coordinates, geo.Coordinates, TravelMode) (*RouteResult, error) {
	if s.reply.result != nil {
		r := *s.reply.result
		return &r, nil
	}
	return nil, s.reply.err
}
