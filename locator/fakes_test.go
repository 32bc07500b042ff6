package locator

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/cosmomed/pharmacy-locator/directions"
	"github.com/cosmomed/pharmacy-locator/geo"
	"github.com/cosmomed/pharmacy-locator/pharmacy"
)

// pendingFetch is one call to chanSource waiting for the test to answer it.
type pendingFetch struct {
	query pharmacy.Query
	reply chan fetchReply
}

type fetchReply struct {
	batch *pharmacy.Batch
	err   error
}

func (p *pendingFetch) resolve(batch *pharmacy.Batch) { p.reply <- fetchReply{batch: batch} }
func (p *pendingFetch) fail(err error)                { p.reply <- fetchReply{err: err} }

// chanSource hands every fetch to the test so completions can be reordered.
type chanSource struct {
	calls chan *pendingFetch
}

func newChanSource() *chanSource {
	return &chanSource{calls: make(chan *pendingFetch, 8)}
}

func (s *chanSource) Fetch(ctx context.Context, q pharmacy.Query) (*pharmacy.Batch, error) {
	p := &pendingFetch{query: q, reply: make(chan fetchReply, 1)}
	s.calls <- p
	select {
	case r := <-p.reply:
		return r.batch, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// staticSource answers every fetch with the same batch.
type staticSource struct {
	mu      sync.Mutex
	batch   *pharmacy.Batch
	err     error
	queries []pharmacy.Query
}

func (s *staticSource) Fetch(_ context.Context, q pharmacy.Query) (*pharmacy.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	return s.batch, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []pharmacy.SelectionEvent
	err    error
}

func (p *recordingPublisher) PublishSelection(_ context.Context, evt pharmacy.SelectionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []pharmacy.SelectionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pharmacy.SelectionEvent(nil), p.events...)
}

// fixedProvider returns the same route or error for every request.
type fixedProvider struct {
	result *directions.RouteResult
	err    error
	calls  int
}

func (p *fixedProvider) Route(_ context.Context, _, _ geo.Coordinates, mode directions.TravelMode) (*directions.RouteResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	r := *p.result
	r.Mode = mode
	return &r, nil
}

var errDirectoryDown = errors.New("directory down")

// northOf returns the point km kilometres due north of c.
func northOf(c geo.Coordinates, km float64) geo.Coordinates {
	const kmPerDegree = geo.EarthRadiusKm * math.Pi / 180
	return geo.Coordinates{Lat: c.Lat + km/kmPerDegree, Lng: c.Lng}
}

func record(id, name string, at geo.Coordinates) pharmacy.Record {
	return pharmacy.Record{ID: id, Name: name, Address: name + " address", Coordinates: at}
}

func batchOf(records ...pharmacy.Record) *pharmacy.Batch {
	return &pharmacy.Batch{
		Records: records,
		Stats:   pharmacy.Stats{Total: len(records) + 1, WithCoords: len(records)},
	}
}

func ids(records []pharmacy.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
