package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cosmomed/pharmacy-locator/geo"
	"github.com/cosmomed/pharmacy-locator/logging"
)

// Provider computes a route between two points.
type Provider interface {
	Route(ctx context.Context, origin, destination geo.Coordinates, mode TravelMode) (*RouteResult, error)
}

// Provider statuses that mean the request was understood but no route exists.
var noRouteStatuses = map[string]struct{}{
	"ZERO_RESULTS":              {},
	"NOT_FOUND":                 {},
	"MAX_ROUTE_LENGTH_EXCEEDED": {},
}

type textValue struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Legs []struct {
			Distance textValue `json:"distance"`
			Duration textValue `json:"duration"`
		} `json:"legs"`
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
	} `json:"routes"`
}

// HTTPProvider calls a directions web service that speaks the Google
// Directions JSON format.
type HTTPProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPProvider returns a provider for endpoint. A zero timeout keeps
// the client's default of no timeout; callers pass a context deadline instead.
func NewHTTPProvider(endpoint, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Route implements Provider. Every failure is a *RouteError.
func (p *HTTPProvider) Route(ctx context.Context, origin, destination geo.Coordinates, mode TravelMode) (*RouteResult, error) {
	target, err := p.requestURL(origin, destination, mode)
	if err != nil {
		return nil, &RouteError{Kind: ProviderUnreachable, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &RouteError{Kind: ProviderUnreachable, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &RouteError{Kind: ProviderUnreachable, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn("Failed to close directions response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RouteError{Kind: ProviderUnreachable, Err: fmt.Errorf("directions service returned HTTP %d", resp.StatusCode)}
	}

	var body directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &RouteError{Kind: ProviderUnreachable, Err: fmt.Errorf("failed to decode directions response: %w", err)}
	}

	return body.result(mode)
}

func (p *HTTPProvider) requestURL(origin, destination geo.Coordinates, mode TravelMode) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid directions endpoint: %w", err)
	}
	q := u.Query()
	q.Set("origin", origin.String())
	q.Set("destination", destination.String())
	q.Set("mode", string(mode))
	if p.apiKey != "" {
		q.Set("key", p.apiKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// result maps the provider body to a RouteResult using the first leg of the
// first route.
func (d directionsResponse) result(mode TravelMode) (*RouteResult, error) {
	if d.Status != "OK" {
		kind := ProviderUnreachable
		if _, ok := noRouteStatuses[d.Status]; ok {
			kind = NoRouteFound
		}
		var err error
		if d.ErrorMessage != "" {
			err = fmt.Errorf("%s", d.ErrorMessage)
		}
		return nil, &RouteError{Kind: kind, Status: d.Status, Err: err}
	}
	if len(d.Routes) == 0 || len(d.Routes[0].Legs) == 0 {
		return nil, &RouteError{Kind: NoRouteFound, Status: d.Status}
	}

	route := d.Routes[0]
	leg := route.Legs[0]
	r := &RouteResult{
		Mode:            mode,
		DistanceText:    leg.Distance.Text,
		DurationText:    leg.Duration.Text,
		DistanceMeters:  leg.Distance.Value,
		DurationSeconds: leg.Duration.Value,
	}

	path, err := DecodePolyline(route.OverviewPolyline.Points)
	if err != nil {
		return nil, &RouteError{Kind: ProviderUnreachable, Status: d.Status, Err: err}
	}
	r.setPath(path)
	return r, nil
}
