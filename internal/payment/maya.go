package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/evgrid/qr-charging/internal/apperr"
)

// Provider status strings observed on the Maya polling path.
const (
	StatusAwaitingNextAction    = "awaiting_next_action"
	StatusProcessing            = "processing"
	StatusSucceeded             = "succeeded"
	StatusAwaitingPaymentMethod = "awaiting_payment_method"
)

// MayaClient is the client-key polling adapter. Intent creation hands
// back a client key; finalization is driven by the caller polling
// ResolveStatus until the provider reports a terminal status.
type MayaClient struct {
	hc         *http.Client
	createURL  string
	resolveURL string

	// Polling budget. The provider reports "processing" while the
	// payment settles; the poll backs off exponentially between
	// attempts and gives up with a Timeout error once the budget is
	// spent, so a stuck intent can never pin a request forever.
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewMayaClient returns a MayaClient for the given intent-creation and
// status endpoints.
func NewMayaClient(createURL, resolveURL string) *MayaClient {
	return &MayaClient{
		hc:          &http.Client{Timeout: 30 * time.Second},
		createURL:   createURL,
		resolveURL:  resolveURL,
		maxAttempts: 10,
		baseBackoff: 500 * time.Millisecond,
		maxBackoff:  8 * time.Second,
	}
}

// MayaIntentRequest carries the intent-creation arguments. Amount is
// already in minor units.
type MayaIntentRequest struct {
	GuestID     uint64
	Description string
	Amount      int64
	EVSEUID     string
	ConnectorID string
}

// MayaIntent is the provider's view of a freshly created payment
// intent. CheckoutURL is only present when the intent reached
// awaiting_next_action.
type MayaIntent struct {
	TransactionID string
	ClientKey     string
	Status        string
	CheckoutURL   string
}

// CreateSource creates a payment intent for a guest payment.
func (c *MayaClient) CreateSource(ctx context.Context, token string, req MayaIntentRequest) (MayaIntent, error) {
	var intent MayaIntent
	payload, err := json.Marshal(map[string]any{
		"user_id":                req.GuestID,
		"type":                   "paymaya",
		"description":            req.Description,
		"amount":                 req.Amount,
		"payment_method_allowed": "paymaya",
		"statement_descriptor":   statementDescriptor,
		"user_type":              "guest",
		"evse_uid":               req.EVSEUID,
		"connector_id":           req.ConnectorID,
	})
	if err != nil {
		return intent, apperr.Upstream(err)
	}
	body, err := postJSON(ctx, c.hc, c.createURL, "Bearer "+token, payload)
	if err != nil {
		return intent, apperr.Upstream(err)
	}
	var res struct {
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				Status     string `json:"status"`
				ClientKey  string `json:"client_key"`
				NextAction struct {
					Redirect struct {
						URL string `json:"url"`
					} `json:"redirect"`
				} `json:"next_action"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return intent, apperr.Upstream(err)
	}
	intent.TransactionID = res.Data.ID
	intent.ClientKey = res.Data.Attributes.ClientKey
	intent.Status = res.Data.Attributes.Status
	intent.CheckoutURL = res.Data.Attributes.NextAction.Redirect.URL
	return intent, nil
}

// ResolveStatus polls the intent until the provider reports something
// other than "processing" and returns that status string. When the
// polling budget runs out it fails with a Timeout error; callers must
// treat the payment as still pending in that case.
func (c *MayaClient) ResolveStatus(ctx context.Context, token, transactionID, clientKey string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"payment_intent": transactionID,
		"client_key":     clientKey,
	})
	if err != nil {
		return "", apperr.Upstream(err)
	}

	backoff := c.baseBackoff
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", apperr.Timeout("PAYMENT_STATUS_TIMEOUT")
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
		}

		body, err := postJSON(ctx, c.hc, c.resolveURL, "Bearer "+token, payload)
		if err != nil {
			return "", apperr.Upstream(err)
		}
		var res struct {
			Data struct {
				Attributes struct {
					Status string `json:"status"`
				} `json:"attributes"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &res); err != nil {
			return "", apperr.Upstream(err)
		}
		if status := res.Data.Attributes.Status; status != StatusProcessing {
			return status, nil
		}
	}
	return "", apperr.Timeout("PAYMENT_STATUS_TIMEOUT")
}
