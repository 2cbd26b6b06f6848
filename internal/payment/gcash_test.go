package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCashCreateSourceDecodesNestedResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(1250), body["amount"])
		assert.Equal(t, "guest", body["user_type"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"data": map[string]any{
					"id": "src_42",
					"attributes": map[string]any{
						"status":   "pending",
						"redirect": map[string]any{"checkout_url": "https://gcash.example/checkout"},
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewGCashClient(srv.URL, "")
	src, err := c.CreateSource(context.Background(), "tok", GCashSourceRequest{
		GuestID: 9, Amount: 1250, PaymentID: 3, EVSEUID: "E1", ConnectorID: "C1",
	})
	require.NoError(t, err)
	assert.Equal(t, "src_42", src.TransactionID)
	assert.Equal(t, "pending", src.Status)
	assert.Equal(t, "https://gcash.example/checkout", src.CheckoutURL)
}

func TestGCashConfirmPaymentReturnsProviderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "src_42", body["id"])
		assert.Equal(t, "source", body["type"])
		assert.Equal(t, "PHP", body["currency"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"attributes": map[string]any{"status": "paid"}},
		})
	}))
	defer srv.Close()

	c := NewGCashClient("", srv.URL)
	status, err := c.ConfirmPayment(context.Background(), "tok", "1250", "guest charge", "src_42")
	require.NoError(t, err)
	assert.Equal(t, "paid", status)
}

func TestGCashCreateSourceUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewGCashClient(srv.URL, "")
	_, err := c.CreateSource(context.Background(), "tok", GCashSourceRequest{GuestID: 1, Amount: 100})
	require.Error(t, err)
}
