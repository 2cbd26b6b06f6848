package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/evgrid/qr-charging/internal/apperr"
)

// statementDescriptor appears on the payer's statement for both
// providers.
const statementDescriptor = "EVGrid Charging"

// GCashClient is the redirect-checkout adapter. A source is created up
// front and the guest is sent to its checkout URL; the payment is later
// confirmed from the inbound callback.
type GCashClient struct {
	hc         *http.Client
	sourceURL  string
	paymentURL string
}

// NewGCashClient returns a GCashClient for the given source-creation
// and confirmation endpoints.
func NewGCashClient(sourceURL, paymentURL string) *GCashClient {
	return &GCashClient{
		hc:         &http.Client{Timeout: 30 * time.Second},
		sourceURL:  sourceURL,
		paymentURL: paymentURL,
	}
}

// GCashSourceRequest carries the source-creation arguments. Amount is
// already in minor units.
type GCashSourceRequest struct {
	GuestID     uint64
	Amount      int64
	PaymentID   uint64
	EVSEUID     string
	ConnectorID string
}

// GCashSource is the provider's view of a freshly created source.
type GCashSource struct {
	TransactionID string
	Status        string
	CheckoutURL   string
}

// CreateSource creates a checkout source for a guest payment. The
// response payload is nested at result.data.
func (c *GCashClient) CreateSource(ctx context.Context, token string, req GCashSourceRequest) (GCashSource, error) {
	var src GCashSource
	payload, err := json.Marshal(map[string]any{
		"user_id":      req.GuestID,
		"amount":       req.Amount,
		"topup_id":     req.PaymentID,
		"user_type":    "guest",
		"evse_uid":     req.EVSEUID,
		"connector_id": req.ConnectorID,
	})
	if err != nil {
		return src, apperr.Upstream(err)
	}
	body, err := postJSON(ctx, c.hc, c.sourceURL, "Bearer "+token, payload)
	if err != nil {
		return src, apperr.Upstream(err)
	}
	var res struct {
		Result struct {
			Data struct {
				ID         string `json:"id"`
				Attributes struct {
					Status   string `json:"status"`
					Redirect struct {
						CheckoutURL string `json:"checkout_url"`
					} `json:"redirect"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return src, apperr.Upstream(err)
	}
	src.TransactionID = res.Result.Data.ID
	src.Status = res.Result.Data.Attributes.Status
	src.CheckoutURL = res.Result.Data.Attributes.Redirect.CheckoutURL
	return src, nil
}

// ConfirmPayment charges a previously created source and returns the
// provider's payment status string (e.g. "paid").
func (c *GCashClient) ConfirmPayment(ctx context.Context, token, amount, description, sourceID string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"amount":               amount,
		"description":          description,
		"currency":             "PHP",
		"statement_descriptor": statementDescriptor,
		"id":                   sourceID,
		"type":                 "source",
	})
	if err != nil {
		return "", apperr.Upstream(err)
	}
	body, err := postJSON(ctx, c.hc, c.paymentURL, "Bearer "+token, payload)
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
	return res.Data.Attributes.Status, nil
}
