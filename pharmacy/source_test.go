package pharmacy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoPharmacies = `[
	{"id": 1, "pharmacy_name": "One", "address": "a", "lat": "7.0", "lng": "80.0"},
	{"id": 2, "pharmacy_name": "Two", "address": "b", "lat": "", "lng": ""}
]`

func newTestSource(url string, retries int) *HTTPSource {
	return NewHTTPSource(url, 2*time.Second, retries, WithRetryInterval(time.Millisecond))
}

func TestHTTPSourceURL(t *testing.T) {
	s := newTestSource("http://directory.local/", 0)

	assert.Equal(t, "http://directory.local/pharmacies", s.URL(Query{}))
	assert.Equal(t, "http://directory.local/pharmacies?district=Kandy&moh=Gampola&search=city+care",
		s.URL(Query{Search: "city care", District: "Kandy", MOH: "Gampola"}))
}

func TestHTTPSourceFetch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pharmacies", r.URL.Path)
		gotQuery = r.URL.Query().Get("search")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(twoPharmacies))
	}))
	defer srv.Close()

	batch, err := newTestSource(srv.URL, 2).Fetch(context.Background(), Query{Search: "one"})
	require.NoError(t, err)
	assert.Equal(t, "one", gotQuery)
	assert.Equal(t, Stats{Total: 2, WithCoords: 1}, batch.Stats)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "One", batch.Records[0].Name)
}

func TestHTTPSourceRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(twoPharmacies))
	}))
	defer srv.Close()

	batch, err := newTestSource(srv.URL, 2).Fetch(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, batch.Records, 1)
}

func TestHTTPSourceRetriesRateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(twoPharmacies))
	}))
	defer srv.Close()

	batch, err := newTestSource(srv.URL, 2).Fetch(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, batch.Records, 1)
}

func TestHTTPSourceRetriesAreBounded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestSource(srv.URL, 2).Fetch(context.Background(), Query{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")
}

func TestHTTPSourceDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestSource(srv.URL, 3).Fetch(context.Background(), Query{})
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPSourceDoesNotRetryMalformedBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"broken":`))
	}))
	defer srv.Close()

	_, err := newTestSource(srv.URL, 3).Fetch(context.Background(), Query{})
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPSourceHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPSource(srv.URL, time.Second, 5, WithRetryInterval(time.Second)).Fetch(ctx, Query{})
	require.ErrorIs(t, err, ErrFetchFailed)
}
