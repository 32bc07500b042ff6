package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cosmomed/pharmacy-locator/access"
	"github.com/cosmomed/pharmacy-locator/data"
	"github.com/cosmomed/pharmacy-locator/directions"
	"github.com/cosmomed/pharmacy-locator/geo"
	"github.com/cosmomed/pharmacy-locator/locator"
	"github.com/cosmomed/pharmacy-locator/pharmacy"
	"github.com/cosmomed/pharmacy-locator/validation"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var colombo = geo.Coordinates{Lat: 6.9271, Lng: 79.8612}

type stubSource struct {
	mu    sync.Mutex
	batch *pharmacy.Batch
	err   error
}

func (s *stubSource) Fetch(context.Context, pharmacy.Query) (*pharmacy.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.batch, nil
}

func (s *stubSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type stubProvider struct {
	err error
}

func (p *stubProvider) Route(_ context.Context, _, _ geo.Coordinates, mode directions.TravelMode) (*directions.RouteResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &directions.RouteResult{Mode: mode, DistanceText: "1.2 km", DurationText: "4 mins"}, nil
}

type stubDirectory struct {
	listings []pharmacy.Listing
	err      error
	got      pharmacy.Query
}

func (d *stubDirectory) Search(_ context.Context, q pharmacy.Query) ([]pharmacy.Listing, error) {
	d.got = q
	return d.listings, d.err
}

func (d *stubDirectory) Stats(context.Context) (pharmacy.Stats, error) { return pharmacy.Stats{}, nil }
func (d *stubDirectory) Ping(context.Context) error                    { return nil }

type stubHealth struct{}

func (stubHealth) HealthCheck() (string, map[string]any, int) {
	return "healthy", map[string]any{"total": 3}, http.StatusOK
}

type testEnv struct {
	router   chi.Router
	source   *stubSource
	provider *stubProvider
	catalog  *data.Catalog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		source: &stubSource{batch: &pharmacy.Batch{
			Records: []pharmacy.Record{
				{ID: "near", Name: "Union Chemists", Address: "Colombo 03", Coordinates: geo.Coordinates{Lat: 6.9300, Lng: 79.8600}},
				{ID: "far", Name: "Kandy Pharmacy", Address: "Kandy", Coordinates: geo.Coordinates{Lat: 7.2906, Lng: 80.6337}},
			},
			Stats: pharmacy.Stats{Total: 3, WithCoords: 2},
		}},
		provider: &stubProvider{},
		catalog:  data.NewCatalog(),
	}
	env.catalog.UpdateStats(pharmacy.Stats{Total: 120, WithCoords: 97})

	registry := locator.NewRegistry(locator.Deps{Source: env.source, Provider: env.provider})
	h := NewSessionHandler(registry, validation.NewValidator(), env.catalog)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if role := req.Header.Get("X-Test-Role"); role != "" {
				parsed, err := access.ParseRole(role)
				require.NoError(t, err)
				req = req.WithContext(access.WithPrincipal(req.Context(), access.Principal{Subject: req.Header.Get("X-Test-Subject"), Role: parsed}))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/v1/sessions", h.CreateSession)
	r.Route("/v1/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Put("/location", h.SetLocation)
		r.Put("/filter", h.SetFilter)
		r.Post("/fetch", h.Fetch)
		r.Post("/nearby", h.FindNearby)
		r.Post("/reset", h.Reset)
		r.Post("/map/ready", h.MapReady)
		r.Get("/map", h.GetMap)
		r.Put("/map/zoom", h.SetZoom)
		r.Post("/markers/{markerID}/click", h.ClickMarker)
		r.Delete("/selection", h.Deselect)
		r.Post("/route", h.RequestRoute)
		r.Get("/navigation", h.Navigation)
		r.Get("/stats", h.Stats)
	})
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) createSession(t *testing.T, headers ...string) locator.View {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/v1/sessions", nil, headers...)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var view locator.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	return view
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestCreateSessionFetchesInitialList(t *testing.T) {
	env := newTestEnv(t)

	view := env.createSession(t)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "general_user", view.Role)
	assert.Equal(t, locator.LocationPending, view.LocationStatus)
	assert.Equal(t, locator.VisibleStats{Visible: 2, Total: 3, WithCoords: 2}, view.Stats)
	assert.Equal(t, 5, view.Filter.RadiusKm)
}

func TestCreateSessionSurvivesFetchFailure(t *testing.T) {
	env := newTestEnv(t)
	env.source.setErr(errors.New("directory down"))

	view := env.createSession(t)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, locator.KindFetchFailure, view.Messages[0].Kind)
	assert.True(t, view.Messages[0].Retry)
	assert.Zero(t, view.Stats.Visible)
}

func TestUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/v1/sessions/nope", "/v1/sessions/nope/map", "/v1/sessions/nope/stats"} {
		rr := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}

func TestSessionIsPrivateToItsSubject(t *testing.T) {
	env := newTestEnv(t)
	view := env.createSession(t, "X-Test-Role", "pharmacist", "X-Test-Subject", "slmc-1")

	rr := env.do(t, http.MethodGet, "/v1/sessions/"+view.ID, nil, "X-Test-Role", "pharmacist", "X-Test-Subject", "slmc-2")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, "/v1/sessions/"+view.ID, nil, "X-Test-Role", "pharmacist", "X-Test-Subject", "slmc-1")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	view := env.createSession(t)

	rr := env.do(t, http.MethodDelete, "/v1/sessions/"+view.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodGet, "/v1/sessions/"+view.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSetLocation(t *testing.T) {
	env := newTestEnv(t)
	view := env.createSession(t)
	path := "/v1/sessions/" + view.ID + "/location"

	rr := env.do(t, http.MethodPut, path, map[string]any{"latitude": 91.0, "longitude": 79.8})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPut, path, map[string]any{"latitude": colombo.Lat, "longitude": colombo.Lng})
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[locator.View](t, rr)
	assert.Equal(t, locator.LocationAvailable, got.LocationStatus)
	require.NotNil(t, got.Location)
	assert.Equal(t, colombo, *got.Location)

	rr = env.do(t, http.MethodPut, path, map[string]any{"error": "permission denied"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestLocationFailureDisablesNearby(t *testing.T) {
	env := newTestEnv(t)
	view := env.createSession(t)

	rr := env.do(t, http.MethodPut, "/v1/sessions/"+view.ID+"/location", map[string]any{"error": "timeout"})
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[locator.View](t, rr)
	assert.Equal(t, locator.LocationUnavailable, got.LocationStatus)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, locator.KindLocationUnavailable, got.Messages[0].Kind)

	rr = env.do(t, http.MethodPost, "/v1/sessions/"+view.ID+"/nearby", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, locator.KindLocationUnavailable, body["kind"])
}

func TestSetFilterValidation(t *testing.T) {
	env := newTestEnv(t)
	view := env.createSession(t)
	path := "/v1/sessions/" + view.ID + "/filter"

	tests := []struct {
		name string
		body map[string]any
		code int
	}{
		{"default radius", map[string]any{"search": "union"}, http.StatusOK},
		{"allowed radius", map[string]any{"radius_km": 10}, http.StatusOK},
		{"radius not offered", map[string]any{"radius_km": 7}, http.StatusBadRequest},
		{"script in search", map[string]any{"search": "<script>alert(1)</script>"}, http.StatusBadRequest},
		{"unknown field", map[string]any{"colour": "red"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPut, path, tt.body)
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
		})
	}
}

func TestNearbyAndReset(t *testing.T) {
	env := newTestEnv(t)
	view := env.createSession(t)
	base := "/v1/sessions/" + view.ID

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, base+"/location", map[string]any{"latitude": colombo.Lat, "longitude": colombo.Lng}).Code)

	rr := env.do(t, http.MethodPost, base+"/nearby", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[ListResponse](t, rr)
	require.Len(t, list.Pharmacies, 1)
	assert.Equal(t, "near", list.Pharmacies[0].ID)
	assert.Equal(t, 1, list.Stats.Visible)

	rr = env.do(t, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list = decode[ListResponse](t, rr)
	assert.Len(t, list.Pharmacies, 2)
}

func TestFetchFailureIsRetryable(t *testing.T) {
	env := newTestEnv(t)
	view := env.createSession(t)
	env.source.setErr(errors.New("directory down"))

	rr := env.do(t, http.MethodPost, "/v1/sessions/"+view.ID+"/fetch", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, locator.KindFetchFailure, body["kind"])
	assert.Equal(t, true, body["retry"])

	env.source.setErr(nil)
	rr = env.do(t, http.MethodPost, "/v1/sessions/"+view.ID+"/fetch", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[ListResponse](t, rr).Pharmacies, 2)
}

func TestMarkerClickRouteAndNavigation(t *testing.T) {
	env := newTestEnv(t)
	view := env.createSession(t)
	base := "/v1/sessions/" + view.ID

	rr := env.do(t, http.MethodPost, base+"/markers/anything/click", nil)
	assert.Equal(t, http.StatusConflict, rr.Code, "click before the map is ready")

	rr = env.do(t, http.MethodPost, base+"/map/ready", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	mv := decode[locator.MapView](t, rr)
	assert.Equal(t, "idle", mv.State)
	assert.Equal(t, locator.DefaultCenter, mv.Viewport.Center)
	require.Len(t, mv.Surface.Markers, 2)

	rr = env.do(t, http.MethodPost, base+"/markers/missing/click", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	var markerID string
	for _, m := range mv.Surface.Markers {
		if m.PharmacyID == "near" {
			markerID = m.ID
		}
	}
	require.NotEmpty(t, markerID)

	rr = env.do(t, http.MethodPost, base+"/markers/"+markerID+"/click", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPost, base+"/route", map[string]any{"mode": "walking"})
	assert.Equal(t, http.StatusConflict, rr.Code, "route without a location")
	body := decode[map[string]any](t, rr)
	assert.Equal(t, "origin_unavailable", body["kind"])

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, base+"/location", map[string]any{"latitude": colombo.Lat, "longitude": colombo.Lng}).Code)

	rr = env.do(t, http.MethodPost, base+"/route", map[string]any{"mode": "flying"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, base+"/route", map[string]any{"mode": "walking"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	route := decode[directions.RouteResult](t, rr)
	assert.Equal(t, directions.Walking, route.Mode)
	assert.Equal(t, "1.2 km", route.DistanceText)

	rr = env.do(t, http.MethodGet, base+"/navigation?mode=driving", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, decode[map[string]string](t, rr)["url"], "https://www.google.com/maps/dir/")

	rr = env.do(t, http.MethodDelete, base+"/selection", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodGet, base+"/navigation", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "destination_unavailable", decode[map[string]any](t, rr)["kind"])
}

func TestSetZoomRegroupsClusters(t *testing.T) {
	env := newTestEnv(t)
	view := env.createSession(t)
	base := "/v1/sessions/" + view.ID
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/map/ready", nil).Code)

	// Colombo and Kandy share a cell at world zoom.
	rr := env.do(t, http.MethodPut, base+"/map/zoom", map[string]any{"zoom": 0})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	mv := decode[locator.MapView](t, rr)
	assert.Equal(t, 0, mv.Viewport.Zoom)
	require.Len(t, mv.Surface.Clusters, 1)
	assert.Equal(t, 2, mv.Surface.Clusters[0].Count)

	rr = env.do(t, http.MethodPut, base+"/map/zoom", map[string]any{"zoom": 22})
	require.Equal(t, http.StatusOK, rr.Code)
	mv = decode[locator.MapView](t, rr)
	assert.Equal(t, 22, mv.Viewport.Zoom)
	assert.Empty(t, mv.Surface.Clusters)

	for _, body := range []any{map[string]any{"zoom": 23}, map[string]any{"zoom": -1}, map[string]any{}} {
		rr = env.do(t, http.MethodPut, base+"/map/zoom", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "%v", body)
	}
	assert.Equal(t, 22, decode[locator.MapView](t, env.do(t, http.MethodGet, base+"/map", nil)).Viewport.Zoom)
}

func TestRouteProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.provider.err = &directions.RouteError{Kind: directions.NoRouteFound, Status: "ZERO_RESULTS"}
	view := env.createSession(t)
	base := "/v1/sessions/" + view.ID

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, base+"/location", map[string]any{"latitude": colombo.Lat, "longitude": colombo.Lng}).Code)
	mv := decode[locator.MapView](t, env.do(t, http.MethodPost, base+"/map/ready", nil))
	require.NotEmpty(t, mv.Surface.Markers)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/markers/"+mv.Surface.Markers[0].ID+"/click", nil).Code)

	rr := env.do(t, http.MethodPost, base+"/route", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, "no_route_found", body["kind"])
	assert.Equal(t, true, body["retry"])

	mv = decode[locator.MapView](t, env.do(t, http.MethodGet, base+"/map", nil))
	require.NotNil(t, mv.RouteError)
	assert.Equal(t, "no_route_found", mv.RouteError.Kind)
}

func TestStatsByRole(t *testing.T) {
	env := newTestEnv(t)

	view := env.createSession(t)
	rr := env.do(t, http.MethodGet, "/v1/sessions/"+view.ID+"/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	public := decode[StatsResponse](t, rr)
	assert.Equal(t, 2, public.Visible)
	assert.Nil(t, public.Directory)

	headers := []string{"X-Test-Role", "nmra_official", "X-Test-Subject", "nmra-7"}
	view = env.createSession(t, headers...)
	rr = env.do(t, http.MethodGet, "/v1/sessions/"+view.ID+"/stats", nil, headers...)
	require.Equal(t, http.StatusOK, rr.Code)
	staff := decode[StatsResponse](t, rr)
	require.NotNil(t, staff.Directory)
	assert.Equal(t, 120, staff.Directory.Total)
	assert.Equal(t, 97, staff.Directory.WithCoords)
	assert.WithinDuration(t, time.Now(), staff.Directory.LastUpdated, time.Minute)
}

func TestListPharmacies(t *testing.T) {
	lat := 6.9271
	store := &stubDirectory{listings: []pharmacy.Listing{{ID: 1, Name: "Union Chemists", Lat: "6.9271", Latitude: &lat}}}
	h := NewDirectoryHandler(store, validation.NewValidator())

	req := httptest.NewRequest(http.MethodGet, "/pharmacies?search=+union+&district=Colombo", nil)
	rr := httptest.NewRecorder()
	h.ListPharmacies(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, pharmacy.Query{Search: "union", District: "Colombo"}, store.got)
	listings := decode[[]pharmacy.Listing](t, rr)
	require.Len(t, listings, 1)
	assert.Equal(t, "Union Chemists", listings[0].Name)
}

func TestListPharmaciesErrors(t *testing.T) {
	h := NewDirectoryHandler(&stubDirectory{}, validation.NewValidator())
	rr := httptest.NewRecorder()
	h.ListPharmacies(rr, httptest.NewRequest(http.MethodGet, "/pharmacies?search=1%27+or+1%3D1", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	h = NewDirectoryHandler(&stubDirectory{err: errors.New("db gone")}, validation.NewValidator())
	rr = httptest.NewRecorder()
	h.ListPharmacies(rr, httptest.NewRequest(http.MethodGet, "/pharmacies", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, "Internal Server Error", body["error"])
	assert.Equal(t, float64(500), body["code"])
}

func TestHealthCheckHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthCheck(stubHealth{})(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[HealthResponse](t, rr)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, float64(3), resp.Data["total"])
}
