// Package legacy calls the previous allocation service over HTTP so shadow
// runs can compare decisions.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kilianp07/fieldalloc/core/allocation"
	"github.com/kilianp07/fieldalloc/core/logger"
)

const DefaultTimeout = 3 * time.Second

// ErrNoDecision is returned when the legacy service found no engineer.
var ErrNoDecision = errors.New("legacy allocator returned no engineer")

// Authorizer decorates outgoing requests with credentials.
type Authorizer interface {
	SetAuthHeader(r *http.Request) error
}

// Client implements allocation.LegacyAllocator against
// GET {base}/bookings/{id}/best-engineer.
type Client struct {
	base string
	http *http.Client
	auth Authorizer
	log  logger.Logger
}

var _ allocation.LegacyAllocator = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
		log:  logger.OrNop(log),
	}
}

// SetAuthorizer signs every request with a.
func (c *Client) SetAuthorizer(a Authorizer) { c.auth = a }

type bestEngineer struct {
	EngineerID string  `json:"engineer_id"`
	Score      float64 `json:"score"`
}

func (c *Client) FindBestEngineer(ctx context.Context, bookingID string) (string, float64, error) {
	u := c.base + "/bookings/" + url.PathEscape(bookingID) + "/best-engineer"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.auth != nil {
		if err := c.auth.SetAuthHeader(req); err != nil {
			return "", 0, fmt.Errorf("legacy: auth: %w", err)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("legacy: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("legacy: booking %s: status %d", bookingID, resp.StatusCode)
	}
	var body bestEngineer
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, fmt.Errorf("legacy: decode: %w", err)
	}
	if body.EngineerID == "" {
		return "", 0, ErrNoDecision
	}
	c.log.Debugf("legacy: booking %s -> %s (%.2f)", bookingID, body.EngineerID, body.Score)
	return body.EngineerID, body.Score, nil
}
