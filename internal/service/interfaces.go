// Package service implements the reservation-and-payment orchestration
// workflow. The orchestrator composes the persistence gateway, the
// booking-service timeslot client, the payment provider adapters and
// the OTP/SMS gateway into the guest-facing operations; it holds no
// state across calls.
package service

import (
	"context"
	"database/sql"

	"github.com/evgrid/qr-charging/internal/model"
	"github.com/evgrid/qr-charging/internal/payment"
	"github.com/evgrid/qr-charging/internal/queue"
	"github.com/evgrid/qr-charging/internal/repository"
)

// TxSource begins transactions for one orchestration call. *sql.DB
// satisfies it.
type TxSource interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// GuestStore is the guest/OTP slice of the persistence gateway.
type GuestStore interface {
	AddGuestTx(ctx context.Context, tx *sql.Tx, data repository.GuestData) (repository.GuestResult, error)
	VerifyOTP(ctx context.Context, data repository.OTPData) (repository.OTPResult, error)
	ResendOTP(ctx context.Context, data repository.OTPData) (repository.OTPResult, error)
	CheckMobileNumberStatus(ctx context.Context, mobileNumber string) (string, error)
}

// ReservationStore is the reservation/EVSE slice of the persistence
// gateway.
type ReservationStore interface {
	ReserveTx(ctx context.Context, tx *sql.Tx, data repository.ReserveData) (repository.ReserveResult, error)
	ReserveWithPaymentTx(ctx context.Context, tx *sql.Tx, data repository.PaidReserveData) (repository.PaidReserveResult, error)
	CheckEVSE(ctx context.Context, qrNumber int, evseUID string) (repository.EVSECheckResult, error)
	QRRates(ctx context.Context, evseUID string) ([]model.QRRate, error)
}

// PaymentStore is the payment-record slice of the persistence gateway.
type PaymentStore interface {
	AddPaymentTx(ctx context.Context, tx *sql.Tx, rec model.PaymentRecord) (uint64, error)
	AddMayaPaymentTx(ctx context.Context, tx *sql.Tx, rec model.PaymentRecord) error
	UpdatePaymentTx(ctx context.Context, tx *sql.Tx, paymentID uint64, status, transactionID string) error
	UpdateGCashPayment(ctx context.Context, guestID uint64, status, transactionID, description string, paymentID uint64) (repository.PaymentUpdateResult, error)
	UpdateMayaPayment(ctx context.Context, status, transactionID string) (repository.PaymentUpdateResult, error)
	GetGCashDetails(ctx context.Context, paymentID uint64) (*model.PaymentRecord, error)
	GetMayaDetails(ctx context.Context, transactionID string) (*model.PaymentRecord, error)
	VerifyPayment(ctx context.Context, transactionID string) (*model.PaymentVerification, error)
	CheckAndUpdateConnectorStatus(ctx context.Context, evseUID, connectorID string) error
	CheckAndUpdateEVSEStatus(ctx context.Context, evseUID string) error
}

// TimeslotResolver resolves the current and next timeslot for a
// connector.
type TimeslotResolver interface {
	Current(ctx context.Context, locationID uint64, evseUID, connectorID string, hour int) (model.Timeslot, model.Timeslot, error)
}

// AccessTokenSource obtains provider access tokens from the auth
// module.
type AccessTokenSource interface {
	Token(ctx context.Context) (string, error)
}

// GCashGateway is the redirect-checkout provider adapter.
type GCashGateway interface {
	CreateSource(ctx context.Context, token string, req payment.GCashSourceRequest) (payment.GCashSource, error)
	ConfirmPayment(ctx context.Context, token, amount, description, sourceID string) (string, error)
}

// MayaGateway is the client-key polling provider adapter.
type MayaGateway interface {
	CreateSource(ctx context.Context, token string, req payment.MayaIntentRequest) (payment.MayaIntent, error)
	ResolveStatus(ctx context.Context, token, transactionID, clientKey string) (string, error)
}

// SMSSender dispatches one-time codes.
type SMSSender interface {
	SendOTP(ctx context.Context, mobileNumber, code string) error
}

// EventSink publishes post-commit domain events. May be left nil to
// disable events.
type EventSink interface {
	PublishReservationConfirmed(ctx context.Context, event queue.ReservationConfirmedEvent) error
	PublishPaymentSettled(ctx context.Context, event queue.PaymentSettledEvent) error
}
