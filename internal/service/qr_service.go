package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evgrid/qr-charging/internal/apperr"
	"github.com/evgrid/qr-charging/internal/model"
	"github.com/evgrid/qr-charging/internal/otp"
	"github.com/evgrid/qr-charging/internal/payment"
	"github.com/evgrid/qr-charging/internal/queue"
	"github.com/evgrid/qr-charging/internal/repository"
)

// QRService drives the guest reservation workflow: timeslot resolution,
// guarded multi-step transactions against the persistence gateway, the
// provider-specific payment state machines and OTP confirmation.
type QRService struct {
	db           TxSource
	guests       GuestStore
	reservations ReservationStore
	payments     PaymentStore
	timeslots    TimeslotResolver
	tokens       AccessTokenSource
	gcash        GCashGateway
	maya         MayaGateway
	sms          SMSSender
	events       EventSink
	log          *zap.Logger
}

// Deps bundles the collaborators of QRService. Events may be nil to
// disable post-commit event publishing.
type Deps struct {
	DB           TxSource
	Guests       GuestStore
	Reservations ReservationStore
	Payments     PaymentStore
	Timeslots    TimeslotResolver
	Tokens       AccessTokenSource
	GCash        GCashGateway
	Maya         MayaGateway
	SMS          SMSSender
	Events       EventSink
	Logger       *zap.Logger
}

// NewQRService constructs the orchestrator. A nil Logger falls back to
// a no-op logger.
func NewQRService(d Deps) *QRService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QRService{
		db:           d.DB,
		guests:       d.Guests,
		reservations: d.Reservations,
		payments:     d.Payments,
		timeslots:    d.Timeslots,
		tokens:       d.Tokens,
		gcash:        d.GCash,
		maya:         d.Maya,
		sms:          d.SMS,
		events:       d.Events,
		log:          logger,
	}
}

// ReserveInput is the free-path reservation request.
type ReserveInput struct {
	IsFree         int    `json:"is_free"`
	MobileNumber   string `json:"mobile_number"`
	LocationID     uint64 `json:"location_id"`
	EVSEUID        string `json:"evse_uid"`
	ConnectorID    string `json:"connector_id"`
	CurrentTime    string `json:"current_time"` // "HH:MM:SS"
	CurrentDate    string `json:"current_date"` // "YYYY-MM-DD"
	PaidChargeMins int    `json:"paid_charge_mins"`
	HomeLink       string `json:"homelink"`
}

// ReserveOutput reports a committed free-path reservation.
type ReserveOutput struct {
	GuestID        uint64 `json:"user_driver_guest_id"`
	TimeslotID     uint64 `json:"timeslot_id"`
	NextTimeslotID uint64 `json:"next_timeslot_id"`
	Status         string `json:"status"`
}

// Reserve runs the free reservation path: resolve timeslots, create
// the guest and link it to both slots inside one transaction, commit,
// then dispatch the OTP over SMS. Notification is best-effort after
// commit; a failed send never undoes a durable reservation, the guest
// retries via the resend endpoint.
func (s *QRService) Reserve(ctx context.Context, in ReserveInput) (*ReserveOutput, error) {
	current, next, err := s.timeslots.Current(ctx, in.LocationID, in.EVSEUID, in.ConnectorID, hourOf(in.CurrentTime))
	if err != nil {
		return nil, err
	}
	s.log.Debug("timeslots resolved",
		zap.Uint64("timeslot_id", current.TimeslotID),
		zap.Uint64("next_timeslot_id", next.TimeslotID))

	code := otp.Generate()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	guest, err := s.guests.AddGuestTx(ctx, tx, repository.GuestData{
		IsFree:         in.IsFree,
		MobileNumber:   in.MobileNumber,
		TimeslotID:     current.TimeslotID,
		PaidChargeMins: in.PaidChargeMins,
		RFID:           newRFID(),
		OTP:            code,
		HomeLink:       in.HomeLink,
	})
	if err != nil {
		return nil, err
	}
	if guest.Outcome != repository.OutcomeSuccess {
		s.log.Info("guest creation rejected", zap.String("status", guest.Status))
		return nil, apperr.BadRequest(guest.Status)
	}

	res, err := s.reservations.ReserveTx(ctx, tx, repository.ReserveData{
		GuestID:          guest.GuestID,
		TimeslotID:       current.TimeslotID,
		NextTimeslotID:   next.TimeslotID,
		CurrentTime:      in.CurrentTime,
		CurrentDate:      in.CurrentDate,
		TimeslotEnd:      current.End,
		NextTimeslotDate: next.Date,
	})
	if err != nil {
		return nil, err
	}
	if res.Outcome != repository.OutcomeSuccess {
		s.log.Info("reservation rejected", zap.String("status", res.Status))
		return nil, apperr.BadRequest(res.Status)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage(err)
	}
	committed = true
	s.log.Info("reservation committed",
		zap.Uint64("guest_id", guest.GuestID),
		zap.Uint64("timeslot_id", res.TimeslotID),
		zap.Uint64("next_timeslot_id", res.NextTimeslotID))

	if err := s.sms.SendOTP(ctx, in.MobileNumber, code); err != nil {
		s.log.Warn("otp dispatch failed", zap.Uint64("guest_id", guest.GuestID), zap.Error(err))
	}
	s.publishReservationConfirmed(queue.ReservationConfirmedEvent{
		GuestID:        guest.GuestID,
		MobileNumber:   in.MobileNumber,
		TimeslotID:     res.TimeslotID,
		NextTimeslotID: res.NextTimeslotID,
		EVSEUID:        in.EVSEUID,
		ConnectorID:    in.ConnectorID,
		ConfirmedAt:    time.Now().UTC().Format(time.RFC3339),
	})

	return &ReserveOutput{
		GuestID:        guest.GuestID,
		TimeslotID:     res.TimeslotID,
		NextTimeslotID: res.NextTimeslotID,
		Status:         guest.Status,
	}, nil
}

// PaidReserveInput is the paid-path reservation request.
type PaidReserveInput struct {
	MobileNumber   string  `json:"mobile_number"`
	LocationID     uint64  `json:"location_id"`
	EVSEUID        string  `json:"evse_uid"`
	ConnectorID    string  `json:"connector_id"`
	CurrentTime    string  `json:"current_time"`
	CurrentDate    string  `json:"current_date"`
	PaidChargeMins int     `json:"paid_charge_mins"`
	RateID         uint64  `json:"rate_id"`
	Amount         float64 `json:"amount"`
	PaymentType    string  `json:"payment_type"`
	HomeLink       string  `json:"homelink"`
}

// CheckoutOutput reports a committed paid-path reservation. CheckoutURL
// is empty when the polling provider did not reach awaiting_next_action.
type CheckoutOutput struct {
	GuestID     uint64 `json:"user_driver_guest_id"`
	CheckoutURL string `json:"checkout_url"`
	Status      string `json:"status"`
}

// ReserveWithPayment runs the paid reservation path. The payment type
// is validated before any external call. A status_type of "conflict"
// from the reservation procedure surfaces as a Conflict error so a
// double-booking race is distinguishable from an ordinary rejection.
func (s *QRService) ReserveWithPayment(ctx context.Context, in PaidReserveInput) (*CheckoutOutput, error) {
	if in.PaymentType != model.ProviderGCash && in.PaymentType != model.ProviderMaya {
		return nil, apperr.BadRequest("INVALID_PAYMENT_TYPE")
	}

	current, next, err := s.timeslots.Current(ctx, in.LocationID, in.EVSEUID, in.ConnectorID, hourOf(in.CurrentTime))
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := s.reservations.ReserveWithPaymentTx(ctx, tx, repository.PaidReserveData{
		MobileNumber:     in.MobileNumber,
		TimeslotID:       current.TimeslotID,
		NextTimeslotID:   next.TimeslotID,
		PaidChargeMins:   in.PaidChargeMins,
		CurrentTime:      in.CurrentTime,
		CurrentDate:      in.CurrentDate,
		TimeslotEnd:      current.End,
		NextTimeslotDate: next.Date,
		RFID:             newRFID(),
		HomeLink:         in.HomeLink,
	})
	if err != nil {
		return nil, err
	}
	switch res.Outcome {
	case repository.OutcomeSuccess:
	case repository.OutcomeConflict:
		s.log.Info("paid reservation conflict", zap.String("status", res.Status))
		return nil, apperr.Conflict(res.Status)
	default:
		s.log.Info("paid reservation rejected", zap.String("status", res.Status))
		return nil, apperr.BadRequest(res.Status)
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, apperr.Upstream(err)
	}

	var checkoutURL string
	switch in.PaymentType {
	case model.ProviderGCash:
		paymentID, err := s.payments.AddPaymentTx(ctx, tx, model.PaymentRecord{
			GuestID:       res.GuestID,
			RateID:        in.RateID,
			Amount:        in.Amount,
			PaymentType:   model.ProviderGCash,
			PaymentStatus: model.PaymentPending,
		})
		if err != nil {
			return nil, err
		}
		src, err := s.gcash.CreateSource(ctx, token, payment.GCashSourceRequest{
			GuestID:     res.GuestID,
			Amount:      payment.MinorUnits(in.Amount),
			PaymentID:   paymentID,
			EVSEUID:     in.EVSEUID,
			ConnectorID: in.ConnectorID,
		})
		if err != nil {
			return nil, err
		}
		if err := s.payments.UpdatePaymentTx(ctx, tx, paymentID, src.Status, src.TransactionID); err != nil {
			return nil, err
		}
		checkoutURL = src.CheckoutURL

	case model.ProviderMaya:
		intent, err := s.maya.CreateSource(ctx, token, payment.MayaIntentRequest{
			GuestID:     res.GuestID,
			Description: paymentDescription(res.GuestID),
			Amount:      payment.MinorUnits(in.Amount),
			EVSEUID:     in.EVSEUID,
			ConnectorID: in.ConnectorID,
		})
		if err != nil {
			return nil, err
		}
		// A record only exists once the provider is awaiting the
		// guest's action; any other intent status leaves the guest
		// without a checkout URL and without a payment row.
		if intent.Status == payment.StatusAwaitingNextAction {
			if err := s.payments.AddMayaPaymentTx(ctx, tx, model.PaymentRecord{
				GuestID:       res.GuestID,
				RateID:        in.RateID,
				Amount:        in.Amount,
				PaymentType:   model.ProviderMaya,
				PaymentStatus: model.PaymentPending,
				TransactionID: intent.TransactionID,
				ClientKey:     intent.ClientKey,
			}); err != nil {
				return nil, err
			}
			checkoutURL = intent.CheckoutURL
		} else {
			s.log.Warn("maya intent not awaiting action",
				zap.Uint64("guest_id", res.GuestID),
				zap.String("intent_status", intent.Status))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage(err)
	}
	committed = true
	s.log.Info("paid reservation committed",
		zap.Uint64("guest_id", res.GuestID),
		zap.String("payment_type", in.PaymentType),
		zap.Bool("checkout_issued", checkoutURL != ""))

	return &CheckoutOutput{
		GuestID:     res.GuestID,
		CheckoutURL: checkoutURL,
		Status:      res.Status,
	}, nil
}

// GCashCallback is the inbound redirect-checkout callback. The token's
// final character encodes the outcome ("0" = failed) and the remainder,
// minus two trailing characters, authorizes the confirmation call.
type GCashCallback struct {
	Token       string
	PaymentID   uint64
	EVSEUID     string
	ConnectorID string
}

// SettlementOutput reports the result of a payment finalization.
type SettlementOutput struct {
	PaymentStatus string `json:"payment_status"`
	HomeLink      string `json:"home_link"`
	TransactionID string `json:"transaction_id"`
}

// GCashPayment finalizes a redirect-checkout payment. A record already
// in a terminal status is rejected before anything else runs, so a
// duplicate callback can never double-finalize or re-trigger the
// connector and EVSE reconciliation.
func (s *QRService) GCashPayment(ctx context.Context, cb GCashCallback) (*SettlementOutput, error) {
	rec, err := s.payments.GetGCashDetails(ctx, cb.PaymentID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperr.NotFound("PAYMENT_ID_NOT_FOUND")
	}
	if err := terminalGuard(rec); err != nil {
		return nil, err
	}
	if cb.Token == "" {
		return nil, apperr.BadRequest("INVALID_PAYMENT_TOKEN")
	}

	description := paymentDescription(rec.GuestID)

	if strings.HasSuffix(cb.Token, "0") {
		return s.settleGCash(ctx, rec, cb, model.PaymentFailed, description)
	}

	if len(cb.Token) < 2 {
		return nil, apperr.BadRequest("INVALID_PAYMENT_TOKEN")
	}
	confirmToken := cb.Token[:len(cb.Token)-2]
	amount := strconv.FormatInt(payment.MinorUnits(rec.Amount), 10)
	providerStatus, err := s.gcash.ConfirmPayment(ctx, confirmToken, amount, description, rec.TransactionID)
	if err != nil {
		return nil, err
	}

	status := model.PaymentFailed
	if providerStatus == model.PaymentPaid {
		status = model.PaymentPaid
	}
	return s.settleGCash(ctx, rec, cb, status, description)
}

func (s *QRService) settleGCash(ctx context.Context, rec *model.PaymentRecord, cb GCashCallback, status, description string) (*SettlementOutput, error) {
	upd, err := s.payments.UpdateGCashPayment(ctx, rec.GuestID, status, rec.TransactionID, description, rec.ID)
	if err != nil {
		return nil, err
	}
	if upd.Outcome != repository.OutcomeSuccess {
		return nil, apperr.BadRequest(upd.Status)
	}
	s.log.Info("gcash payment settled",
		zap.Uint64("payment_id", rec.ID),
		zap.String("transaction_id", rec.TransactionID),
		zap.String("payment_status", status))

	if status == model.PaymentPaid {
		if err := s.reconcile(ctx, cb.EVSEUID, cb.ConnectorID); err != nil {
			return nil, err
		}
	}
	s.publishPaymentSettled(rec, status, cb.EVSEUID, cb.ConnectorID)

	return &SettlementOutput{
		PaymentStatus: settlementStatus(status),
		HomeLink:      upd.HomeLink,
		TransactionID: rec.TransactionID,
	}, nil
}

// MayaCallback identifies the intent to finalize on the polling path.
type MayaCallback struct {
	TransactionID string
	EVSEUID       string
	ConnectorID   string
}

// MayaPayment finalizes a polling-provider payment: it polls the intent
// until the provider reports a terminal status, persists the mapped
// status and reconciles the connector and EVSE when the payment settled
// as paid. The poll is bounded; exhaustion surfaces as a Timeout error
// and leaves the record pending.
func (s *QRService) MayaPayment(ctx context.Context, cb MayaCallback) (*SettlementOutput, error) {
	rec, err := s.payments.GetMayaDetails(ctx, cb.TransactionID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperr.BadRequest("TRANSACTION_ID_NOT_FOUND")
	}
	if err := terminalGuard(rec); err != nil {
		return nil, err
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	providerStatus, err := s.maya.ResolveStatus(ctx, token, rec.TransactionID, rec.ClientKey)
	if err != nil {
		return nil, err
	}

	var status string
	switch providerStatus {
	case payment.StatusSucceeded:
		status = model.PaymentPaid
	case payment.StatusAwaitingPaymentMethod:
		status = model.PaymentFailed
	default:
		s.log.Warn("maya status unresolved",
			zap.String("transaction_id", rec.TransactionID),
			zap.String("provider_status", providerStatus))
		return nil, apperr.BadRequestf("PAYMENT_STATUS_UNRESOLVED", "provider status %q", providerStatus)
	}

	upd, err := s.payments.UpdateMayaPayment(ctx, status, rec.TransactionID)
	if err != nil {
		return nil, err
	}
	if upd.Outcome != repository.OutcomeSuccess {
		return nil, apperr.BadRequest(upd.Status)
	}
	s.log.Info("maya payment settled",
		zap.String("transaction_id", rec.TransactionID),
		zap.String("payment_status", status))

	if status == model.PaymentPaid {
		if err := s.reconcile(ctx, cb.EVSEUID, cb.ConnectorID); err != nil {
			return nil, err
		}
	}
	s.publishPaymentSettled(rec, status, cb.EVSEUID, cb.ConnectorID)

	return &SettlementOutput{
		PaymentStatus: settlementStatus(status),
		HomeLink:      upd.HomeLink,
		TransactionID: rec.TransactionID,
	}, nil
}

// OTPInput identifies the guest and reservation an OTP operation acts
// on.
type OTPInput struct {
	GuestID        uint64 `json:"guest_id"`
	OTP            string `json:"otp"`
	TimeslotID     uint64 `json:"timeslot_id"`
	NextTimeslotID uint64 `json:"next_timeslot_id"`
}

// VerifyOTP checks the submitted code in a single gateway round trip.
func (s *QRService) VerifyOTP(ctx context.Context, in OTPInput) (string, error) {
	res, err := s.guests.VerifyOTP(ctx, repository.OTPData{
		GuestID:        in.GuestID,
		OTP:            in.OTP,
		TimeslotID:     in.TimeslotID,
		NextTimeslotID: in.NextTimeslotID,
	})
	if err != nil {
		return "", err
	}
	if res.Outcome != repository.OutcomeSuccess {
		return "", apperr.BadRequest(res.Status)
	}
	s.log.Info("otp verified", zap.Uint64("guest_id", in.GuestID))
	return res.Status, nil
}

// ResendOTP regenerates the guest's code, stores it and redispatches
// the SMS to the number reported by the gateway.
func (s *QRService) ResendOTP(ctx context.Context, in OTPInput) (string, error) {
	code := otp.Generate()
	res, err := s.guests.ResendOTP(ctx, repository.OTPData{
		GuestID:        in.GuestID,
		OTP:            code,
		TimeslotID:     in.TimeslotID,
		NextTimeslotID: in.NextTimeslotID,
	})
	if err != nil {
		return "", err
	}
	if res.Outcome != repository.OutcomeSuccess {
		return "", apperr.BadRequest(res.Status)
	}
	if err := s.sms.SendOTP(ctx, res.MobileNumber, code); err != nil {
		s.log.Warn("otp redispatch failed", zap.Uint64("guest_id", in.GuestID), zap.Error(err))
	}
	return res.Status, nil
}

// CheckEVSE resolves a scanned "QR-<number>" code against an EVSE and
// returns its details, connectors and published guest rates.
func (s *QRService) CheckEVSE(ctx context.Context, qrCode, evseUID string) (*model.EVSEDetails, error) {
	qrNumber, err := parseQRCode(qrCode)
	if err != nil {
		return nil, err
	}
	res, err := s.reservations.CheckEVSE(ctx, qrNumber, evseUID)
	if err != nil {
		return nil, err
	}
	if res.Outcome != repository.OutcomeSuccess {
		return nil, apperr.BadRequest(res.Status)
	}
	rates, err := s.reservations.QRRates(ctx, evseUID)
	if err != nil {
		return nil, err
	}
	details := res.Details
	details.Rates = rates
	return &details, nil
}

// QRRates lists the guest charging rates published for an EVSE.
func (s *QRService) QRRates(ctx context.Context, evseUID string) ([]model.QRRate, error) {
	return s.reservations.QRRates(ctx, evseUID)
}

// CheckMobileNumberStatus reports the charging status attached to a
// mobile number, or "" when the number has no guest row.
func (s *QRService) CheckMobileNumberStatus(ctx context.Context, mobileNumber string) (string, error) {
	return s.guests.CheckMobileNumberStatus(ctx, mobileNumber)
}

// VerifyPayment returns the settlement view of a transaction id.
func (s *QRService) VerifyPayment(ctx context.Context, transactionID string) (*model.PaymentVerification, error) {
	v, err := s.payments.VerifyPayment(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, apperr.NotFound("TRANSACTION_ID_NOT_FOUND")
	}
	return v, nil
}

// reconcile runs the post-payment connector and EVSE status checks.
func (s *QRService) reconcile(ctx context.Context, evseUID, connectorID string) error {
	if err := s.payments.CheckAndUpdateConnectorStatus(ctx, evseUID, connectorID); err != nil {
		return err
	}
	return s.payments.CheckAndUpdateEVSEStatus(ctx, evseUID)
}

func (s *QRService) publishReservationConfirmed(event queue.ReservationConfirmedEvent) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.events.PublishReservationConfirmed(ctx, event); err != nil {
		s.log.Warn("reservation event publish failed", zap.Error(err))
	}
}

func (s *QRService) publishPaymentSettled(rec *model.PaymentRecord, status, evseUID, connectorID string) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.events.PublishPaymentSettled(ctx, queue.PaymentSettledEvent{
		GuestID:       rec.GuestID,
		TransactionID: rec.TransactionID,
		PaymentType:   rec.PaymentType,
		Status:        status,
		Amount:        rec.Amount,
		EVSEUID:       evseUID,
		ConnectorID:   connectorID,
		SettledAt:     time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		s.log.Warn("payment event publish failed", zap.Error(err))
	}
}

// terminalGuard rejects finalization of a record that already settled.
func terminalGuard(rec *model.PaymentRecord) error {
	switch rec.PaymentStatus {
	case model.PaymentPaid:
		return apperr.BadRequest("ALREADY_PAID")
	case model.PaymentFailed:
		return apperr.BadRequest("ALREADY_FAILED")
	}
	return nil
}

// settlementStatus maps the stored payment status to the caller-facing
// result string.
func settlementStatus(status string) string {
	if status == model.PaymentPaid {
		return "SUCCESS"
	}
	return "FAILED"
}

// parseQRCode extracts the numeric part of a "QR-<number>" code.
func parseQRCode(qrCode string) (int, error) {
	rest, ok := strings.CutPrefix(qrCode, "QR-")
	if !ok {
		return 0, apperr.BadRequest("INVALID_QR_CODE_FORMAT")
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, apperr.BadRequest("INVALID_QR_CODE_FORMAT")
	}
	return n, nil
}

// hourOf returns the hour component of a "HH:MM:SS" clock string, or 0
// when it does not parse.
func hourOf(clock string) int {
	h, _, ok := strings.Cut(clock, ":")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return n
}

// newRFID derives the 12-character tag the charger identifies the
// guest by.
func newRFID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:12]
}

// paymentDescription labels a provider charge for one guest.
func paymentDescription(guestID uint64) string {
	return fmt.Sprintf("Guest charging %d-%s", guestID, uuid.NewString()[:8])
}
