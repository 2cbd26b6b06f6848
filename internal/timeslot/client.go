// Package timeslot calls the external booking service to resolve the
// current and next charging timeslot for a connector. The client is
// pure request/response and keeps no state; retries, if any, belong to
// the caller (the orchestrator does not retry).
package timeslot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/evgrid/qr-charging/internal/apperr"
	"github.com/evgrid/qr-charging/internal/model"
)

// Client talks to the booking service's timeslot API using a static
// basic-auth credential.
type Client struct {
	hc      *http.Client
	baseURL string
	auth    string // pre-encoded basic credential, without the "Basic " prefix
}

// New returns a Client for the given base URL and basic-auth credential.
func New(baseURL, auth string) *Client {
	return &Client{
		hc:      &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		auth:    auth,
	}
}

// Current resolves the (current, next) timeslot pair for a connector at
// the given hour. A structured upstream error message is surfaced
// unchanged as a bad request; transport failures become
// UpstreamUnavailable.
func (c *Client) Current(ctx context.Context, locationID uint64, evseUID, connectorID string, hour int) (model.Timeslot, model.Timeslot, error) {
	var current, next model.Timeslot

	url := fmt.Sprintf("%s/booking_timeslot/api/v1/timeslots/%d/%s/%s/%d",
		c.baseURL, locationID, evseUID, connectorID, hour)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return current, next, apperr.Upstream(err)
	}
	req.Header.Set("Authorization", "Basic "+c.auth)

	resp, err := c.hc.Do(req)
	if err != nil {
		return current, next, apperr.Upstream(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return current, next, apperr.Upstream(err)
	}

	if resp.StatusCode >= 400 {
		// The booking service reports structured errors as {message}.
		var e struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
			return current, next, apperr.BadRequest(e.Message)
		}
		return current, next, apperr.Upstream(fmt.Errorf("timeslot lookup failed (status=%d)", resp.StatusCode))
	}

	var res struct {
		Data []model.Timeslot `json:"data"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return current, next, apperr.Upstream(err)
	}
	// Index 0 is the slot covering the requested hour, index 1 the one
	// after it; both are required to reserve.
	if len(res.Data) < 2 {
		return current, next, apperr.Upstream(fmt.Errorf("timeslot lookup returned %d slots, need 2", len(res.Data)))
	}
	return res.Data[0], res.Data[1], nil
}
