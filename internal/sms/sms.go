// Package sms dispatches one-time codes over an HTTP SMS gateway.
// Dispatch happens after the reservation transaction commits and is
// best-effort: a failed send is logged by the caller and retried by the
// guest via the resend endpoint, never by rolling back the reservation.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// otpTemplate is the fixed message sent with every code.
const otpTemplate = "Hello, Guest User\n\nYour one-time code for EVGrid guest charging is %s.\n\nUse it to authenticate. If you didn't request this, ignore it.\n\nThanks,\nEVGrid"

// Client posts messages to the SMS gateway.
type Client struct {
	hc     *http.Client
	url    string
	apiKey string
}

// NewClient returns a Client for the given gateway endpoint and key.
func NewClient(url, apiKey string) *Client {
	return &Client{
		hc:     &http.Client{Timeout: 15 * time.Second},
		url:    url,
		apiKey: apiKey,
	}
}

// SendOTP dispatches the fixed-template message carrying the code to
// one mobile number.
func (c *Client) SendOTP(ctx context.Context, mobileNumber, code string) error {
	payload, err := json.Marshal(map[string]string{
		"contact_number": mobileNumber,
		"message":        fmt.Sprintf(otpTemplate, code),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}
