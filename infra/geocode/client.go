// Package geocode resolves UK postcodes over HTTP and caches the answers in
// Redis.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kilianp07/fieldalloc/core/apperr"
	"github.com/kilianp07/fieldalloc/core/geo"
	"github.com/kilianp07/fieldalloc/core/logger"
	"github.com/kilianp07/fieldalloc/core/model"
)

const (
	DefaultBaseURL = "https://api.postcodes.io"
	DefaultTimeout = 5 * time.Second
	DefaultRPS     = 10
)

// Config configures the HTTP client.
type Config struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
	RPS     float64       `json:"rps"`
	Burst   int           `json:"burst"`
}

func (c *Config) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RPS <= 0 {
		c.RPS = DefaultRPS
	}
	if c.Burst <= 0 {
		c.Burst = int(c.RPS)
	}
}

// Client looks postcodes up against a postcodes.io compatible API. Calls
// are throttled by a token bucket shared by all goroutines.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     logger.Logger
}

var _ geo.Geocoder = (*Client)(nil)

func NewClient(cfg Config, log logger.Logger) *Client {
	cfg.setDefaults()
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		log:     logger.OrNop(log),
	}
}

type lookupResponse struct {
	Status int `json:"status"`
	Result *struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"result"`
	Error string `json:"error"`
}

// Lookup returns geo.ErrPostcodeNotFound for unknown postcodes and an
// ExternalLookupFailure for transport or upstream errors.
func (c *Client) Lookup(ctx context.Context, postcode string) (model.Coordinates, error) {
	const op = "geocode.Lookup"
	pc := geo.Normalize(postcode)
	if pc == "" {
		return model.Coordinates{}, geo.ErrPostcodeNotFound
	}
	if err := c.limiter.Wait(ctx); err != nil {
		lookups.WithLabelValues("throttled").Inc()
		return model.Coordinates{}, apperr.Wrap(apperr.ExternalLookupFailure, op, err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/postcodes/"+url.PathEscape(pc), nil)
	if err != nil {
		return model.Coordinates{}, apperr.Wrap(apperr.Internal, op, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	lookupLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		lookups.WithLabelValues("error").Inc()
		return model.Coordinates{}, apperr.Wrap(apperr.ExternalLookupFailure, op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		lookups.WithLabelValues("not_found").Inc()
		return model.Coordinates{}, geo.ErrPostcodeNotFound
	case resp.StatusCode != http.StatusOK:
		lookups.WithLabelValues("error").Inc()
		return model.Coordinates{}, apperr.New(apperr.ExternalLookupFailure, op, "postcode %s: upstream status %d", pc, resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		lookups.WithLabelValues("error").Inc()
		return model.Coordinates{}, apperr.Wrap(apperr.ExternalLookupFailure, op, fmt.Errorf("decode: %w", err))
	}
	// Terminated postcodes resolve without coordinates.
	if body.Result == nil || body.Result.Latitude == nil || body.Result.Longitude == nil {
		lookups.WithLabelValues("not_found").Inc()
		return model.Coordinates{}, geo.ErrPostcodeNotFound
	}
	lookups.WithLabelValues("ok").Inc()
	c.log.Debugf("geocode: %s -> %.5f,%.5f", pc, *body.Result.Latitude, *body.Result.Longitude)
	return model.Coordinates{Lat: *body.Result.Latitude, Lng: *body.Result.Longitude}, nil
}
