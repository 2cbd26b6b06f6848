// Package payment holds the provider-facing adapters of the paid
// reservation path: the auth-module token source, the GCash
// redirect-checkout adapter and the Maya client-key polling adapter.
// All requests are bearer- or basic-authed JSON over HTTP; transport
// failures surface as UpstreamUnavailable so the orchestrator can keep
// infrastructure errors apart from provider rejections.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TokenSource obtains short-lived access tokens from the auth module
// before each provider call. Tokens are not cached; the auth module is
// the authority on their lifetime.
type TokenSource struct {
	hc        *http.Client
	url       string
	grantType string
	basicAuth string
}

// NewTokenSource returns a TokenSource for the given auth-module
// endpoint and credentials.
func NewTokenSource(url, grantType, basicAuth string) *TokenSource {
	return &TokenSource{
		hc:        &http.Client{Timeout: 10 * time.Second},
		url:       url,
		grantType: grantType,
		basicAuth: basicAuth,
	}
}

// Token requests a fresh access token.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{"grant_type": t.grantType})
	if err != nil {
		return "", err
	}
	body, err := postJSON(ctx, t.hc, t.url, "Basic "+t.basicAuth, payload)
	if err != nil {
		return "", err
	}
	var res struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", err
	}
	if res.AccessToken == "" {
		return "", fmt.Errorf("auth module returned no access token")
	}
	return res.AccessToken, nil
}

// postJSON issues an authorized JSON POST and returns the raw response
// body. Non-2xx statuses are returned as errors with the status code.
func postJSON(ctx context.Context, hc *http.Client, url, authorization string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authorization)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: unexpected status %d", url, resp.StatusCode)
	}
	return body, nil
}
