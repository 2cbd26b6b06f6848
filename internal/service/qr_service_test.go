package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evgrid/qr-charging/internal/apperr"
	"github.com/evgrid/qr-charging/internal/model"
	"github.com/evgrid/qr-charging/internal/payment"
	"github.com/evgrid/qr-charging/internal/repository"
)

// --- fakes -----------------------------------------------------------------

type fakeGuests struct {
	addResult    repository.GuestResult
	addErr       error
	addCalls     int
	verifyResult repository.OTPResult
	resendResult repository.OTPResult
	mobileStatus string
}

func (f *fakeGuests) AddGuestTx(_ context.Context, _ *sql.Tx, _ repository.GuestData) (repository.GuestResult, error) {
	f.addCalls++
	return f.addResult, f.addErr
}
func (f *fakeGuests) VerifyOTP(context.Context, repository.OTPData) (repository.OTPResult, error) {
	return f.verifyResult, nil
}
func (f *fakeGuests) ResendOTP(context.Context, repository.OTPData) (repository.OTPResult, error) {
	return f.resendResult, nil
}
func (f *fakeGuests) CheckMobileNumberStatus(context.Context, string) (string, error) {
	return f.mobileStatus, nil
}

type fakeReservations struct {
	reserveResult repository.ReserveResult
	reserveCalls  int
	paidResult    repository.PaidReserveResult
	paidCalls     int
	evseResult    repository.EVSECheckResult
	rates         []model.QRRate
}

func (f *fakeReservations) ReserveTx(_ context.Context, _ *sql.Tx, _ repository.ReserveData) (repository.ReserveResult, error) {
	f.reserveCalls++
	return f.reserveResult, nil
}
func (f *fakeReservations) ReserveWithPaymentTx(_ context.Context, _ *sql.Tx, _ repository.PaidReserveData) (repository.PaidReserveResult, error) {
	f.paidCalls++
	return f.paidResult, nil
}
func (f *fakeReservations) CheckEVSE(context.Context, int, string) (repository.EVSECheckResult, error) {
	return f.evseResult, nil
}
func (f *fakeReservations) QRRates(context.Context, string) ([]model.QRRate, error) {
	return f.rates, nil
}

type fakePayments struct {
	addID          uint64
	addCalls       int
	addMayaCalls   int
	updateCalls    int
	gcashUpdate    repository.PaymentUpdateResult
	mayaUpdate     repository.PaymentUpdateResult
	gcashRecord    *model.PaymentRecord
	mayaRecord     *model.PaymentRecord
	verification   *model.PaymentVerification
	connectorCalls int
	evseCalls      int
}

func (f *fakePayments) AddPaymentTx(_ context.Context, _ *sql.Tx, _ model.PaymentRecord) (uint64, error) {
	f.addCalls++
	return f.addID, nil
}
func (f *fakePayments) AddMayaPaymentTx(_ context.Context, _ *sql.Tx, _ model.PaymentRecord) error {
	f.addMayaCalls++
	return nil
}
func (f *fakePayments) UpdatePaymentTx(_ context.Context, _ *sql.Tx, _ uint64, _, _ string) error {
	f.updateCalls++
	return nil
}
func (f *fakePayments) UpdateGCashPayment(context.Context, uint64, string, string, string, uint64) (repository.PaymentUpdateResult, error) {
	return f.gcashUpdate, nil
}
func (f *fakePayments) UpdateMayaPayment(context.Context, string, string) (repository.PaymentUpdateResult, error) {
	return f.mayaUpdate, nil
}
func (f *fakePayments) GetGCashDetails(context.Context, uint64) (*model.PaymentRecord, error) {
	return f.gcashRecord, nil
}
func (f *fakePayments) GetMayaDetails(context.Context, string) (*model.PaymentRecord, error) {
	return f.mayaRecord, nil
}
func (f *fakePayments) VerifyPayment(context.Context, string) (*model.PaymentVerification, error) {
	return f.verification, nil
}
func (f *fakePayments) CheckAndUpdateConnectorStatus(context.Context, string, string) error {
	f.connectorCalls++
	return nil
}
func (f *fakePayments) CheckAndUpdateEVSEStatus(context.Context, string) error {
	f.evseCalls++
	return nil
}

type fakeTimeslots struct {
	current model.Timeslot
	next    model.Timeslot
	err     error
	calls   int
}

func (f *fakeTimeslots) Current(context.Context, uint64, string, string, int) (model.Timeslot, model.Timeslot, error) {
	f.calls++
	return f.current, f.next, f.err
}

type fakeTokens struct{ calls int }

func (f *fakeTokens) Token(context.Context) (string, error) {
	f.calls++
	return "tok", nil
}

type fakeGCash struct {
	source       payment.GCashSource
	sourceCalls  int
	confirmed    string
	confirmCalls int
}

func (f *fakeGCash) CreateSource(context.Context, string, payment.GCashSourceRequest) (payment.GCashSource, error) {
	f.sourceCalls++
	return f.source, nil
}
func (f *fakeGCash) ConfirmPayment(context.Context, string, string, string, string) (string, error) {
	f.confirmCalls++
	return f.confirmed, nil
}

type fakeMaya struct {
	intent       payment.MayaIntent
	intentCalls  int
	resolved     string
	resolveCalls int
}

func (f *fakeMaya) CreateSource(context.Context, string, payment.MayaIntentRequest) (payment.MayaIntent, error) {
	f.intentCalls++
	return f.intent, nil
}
func (f *fakeMaya) ResolveStatus(context.Context, string, string, string) (string, error) {
	f.resolveCalls++
	return f.resolved, nil
}

type fakeSMS struct {
	sent   []string // mobile numbers
	codes  []string
	sendErr error
}

func (f *fakeSMS) SendOTP(_ context.Context, mobile, code string) error {
	f.sent = append(f.sent, mobile)
	f.codes = append(f.codes, code)
	return f.sendErr
}

type env struct {
	db           *sql.DB
	mock         sqlmock.Sqlmock
	guests       *fakeGuests
	reservations *fakeReservations
	payments     *fakePayments
	timeslots    *fakeTimeslots
	tokens       *fakeTokens
	gcash        *fakeGCash
	maya         *fakeMaya
	sms          *fakeSMS
	svc          *QRService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := &env{
		db:   db,
		mock: mock,
		guests: &fakeGuests{
			addResult: repository.GuestResult{Outcome: repository.OutcomeSuccess, Status: "SUCCESS", GuestID: 77},
		},
		reservations: &fakeReservations{
			reserveResult: repository.ReserveResult{Outcome: repository.OutcomeSuccess, Status: "SUCCESS", TimeslotID: 10, NextTimeslotID: 11},
			paidResult:    repository.PaidReserveResult{Outcome: repository.OutcomeSuccess, Status: "SUCCESS", GuestID: 88},
		},
		payments: &fakePayments{
			addID:       5,
			gcashUpdate: repository.PaymentUpdateResult{Outcome: repository.OutcomeSuccess, Status: "SUCCESS", HomeLink: "https://x"},
			mayaUpdate:  repository.PaymentUpdateResult{Outcome: repository.OutcomeSuccess, Status: "SUCCESS", HomeLink: "https://x"},
		},
		timeslots: &fakeTimeslots{
			current: model.Timeslot{TimeslotID: 10, End: "15:00:00"},
			next:    model.Timeslot{TimeslotID: 11, Date: "2024-01-01"},
		},
		tokens: &fakeTokens{},
		gcash: &fakeGCash{
			source:    payment.GCashSource{TransactionID: "src_42", Status: "pending", CheckoutURL: "https://gcash.example/checkout"},
			confirmed: "paid",
		},
		maya: &fakeMaya{
			intent:   payment.MayaIntent{TransactionID: "pi_123", ClientKey: "ck_abc", Status: payment.StatusAwaitingNextAction, CheckoutURL: "https://maya.example/checkout"},
			resolved: payment.StatusSucceeded,
		},
		sms: &fakeSMS{},
	}
	e.svc = NewQRService(Deps{
		DB:           db,
		Guests:       e.guests,
		Reservations: e.reservations,
		Payments:     e.payments,
		Timeslots:    e.timeslots,
		Tokens:       e.tokens,
		GCash:        e.gcash,
		Maya:         e.maya,
		SMS:          e.sms,
	})
	return e
}

func freeInput() ReserveInput {
	return ReserveInput{
		IsFree:         1,
		MobileNumber:   "09171234567",
		LocationID:     1,
		EVSEUID:        "E1",
		ConnectorID:    "C1",
		CurrentTime:    "14:30:00",
		CurrentDate:    "2024-01-01",
		PaidChargeMins: 60,
		HomeLink:       "https://x",
	}
}

func paidInput(paymentType string) PaidReserveInput {
	return PaidReserveInput{
		MobileNumber:   "09171234567",
		LocationID:     1,
		EVSEUID:        "E1",
		ConnectorID:    "C1",
		CurrentTime:    "14:30:00",
		CurrentDate:    "2024-01-01",
		PaidChargeMins: 60,
		RateID:         2,
		Amount:         95.0,
		PaymentType:    paymentType,
		HomeLink:       "https://x",
	}
}

// --- free path -------------------------------------------------------------

func TestReserveFreePathCommitsAndSendsOneSMS(t *testing.T) {
	e := newEnv(t)
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()

	out, err := e.svc.Reserve(context.Background(), freeInput())
	require.NoError(t, err)

	assert.Equal(t, uint64(77), out.GuestID)
	assert.Equal(t, uint64(10), out.TimeslotID)
	assert.Equal(t, uint64(11), out.NextTimeslotID)
	assert.Equal(t, "SUCCESS", out.Status)

	require.Len(t, e.sms.sent, 1)
	assert.Equal(t, "09171234567", e.sms.sent[0])
	assert.Len(t, e.sms.codes[0], 4)
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestReserveRollsBackOnGuestRejection(t *testing.T) {
	e := newEnv(t)
	e.guests.addResult = repository.GuestResult{Outcome: repository.OutcomeRejected, Status: "MOBILE_NUMBER_HAS_ACTIVE_CHARGE"}
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()

	_, err := e.svc.Reserve(context.Background(), freeInput())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))
	assert.Equal(t, "MOBILE_NUMBER_HAS_ACTIVE_CHARGE", apperr.As(err).Status)

	assert.Zero(t, e.reservations.reserveCalls, "reservation must not run after guest rejection")
	assert.Empty(t, e.sms.sent, "no notification for a rolled-back reservation")
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestReserveRollsBackOnReservationRejection(t *testing.T) {
	e := newEnv(t)
	e.reservations.reserveResult = repository.ReserveResult{Outcome: repository.OutcomeRejected, Status: "TIMESLOT_UNAVAILABLE"}
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()

	_, err := e.svc.Reserve(context.Background(), freeInput())
	require.Error(t, err)
	assert.Equal(t, "TIMESLOT_UNAVAILABLE", apperr.As(err).Status)
	assert.Empty(t, e.sms.sent)
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestReserveSMSFailureDoesNotUndoCommit(t *testing.T) {
	e := newEnv(t)
	e.sms.sendErr = assert.AnError
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()

	out, err := e.svc.Reserve(context.Background(), freeInput())
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", out.Status)
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestReserveTimeslotErrorBeforeTransaction(t *testing.T) {
	e := newEnv(t)
	e.timeslots.err = apperr.BadRequest("NO_TIMESLOT_AVAILABLE")

	_, err := e.svc.Reserve(context.Background(), freeInput())
	require.Error(t, err)
	assert.Equal(t, "NO_TIMESLOT_AVAILABLE", apperr.As(err).Status)
	assert.Zero(t, e.guests.addCalls)
	assert.NoError(t, e.mock.ExpectationsWereMet(), "no transaction may start on timeslot failure")
}

// --- paid path -------------------------------------------------------------

func TestReserveWithPaymentRejectsUnknownProviderBeforeExternalCalls(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.ReserveWithPayment(context.Background(), paidInput("paypal"))
	require.Error(t, err)
	assert.Equal(t, "INVALID_PAYMENT_TYPE", apperr.As(err).Status)

	assert.Zero(t, e.timeslots.calls)
	assert.Zero(t, e.tokens.calls)
	assert.Zero(t, e.reservations.paidCalls)
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestReserveWithPaymentSurfacesConflict(t *testing.T) {
	e := newEnv(t)
	e.reservations.paidResult = repository.PaidReserveResult{Outcome: repository.OutcomeConflict, Status: "TIMESLOT_ALREADY_RESERVED"}
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()

	_, err := e.svc.ReserveWithPayment(context.Background(), paidInput("gcash"))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict), "conflict must not degrade to a generic rejection")
	assert.Equal(t, "TIMESLOT_ALREADY_RESERVED", apperr.As(err).Status)
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestReserveWithPaymentGCashIssuesCheckout(t *testing.T) {
	e := newEnv(t)
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()

	out, err := e.svc.ReserveWithPayment(context.Background(), paidInput("gcash"))
	require.NoError(t, err)

	assert.Equal(t, uint64(88), out.GuestID)
	assert.Equal(t, "https://gcash.example/checkout", out.CheckoutURL)
	assert.Equal(t, 1, e.payments.addCalls, "pending record created before source")
	assert.Equal(t, 1, e.gcash.sourceCalls)
	assert.Equal(t, 1, e.payments.updateCalls, "record stamped with provider status")
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestReserveWithPaymentMayaPersistsOnlyWhenAwaitingAction(t *testing.T) {
	e := newEnv(t)
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()

	out, err := e.svc.ReserveWithPayment(context.Background(), paidInput("maya"))
	require.NoError(t, err)
	assert.Equal(t, "https://maya.example/checkout", out.CheckoutURL)
	assert.Equal(t, 1, e.payments.addMayaCalls)
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestReserveWithPaymentMayaSkipsRecordOnOtherStatus(t *testing.T) {
	e := newEnv(t)
	e.maya.intent.Status = payment.StatusAwaitingPaymentMethod
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()

	out, err := e.svc.ReserveWithPayment(context.Background(), paidInput("maya"))
	require.NoError(t, err)
	assert.Empty(t, out.CheckoutURL, "no checkout URL without an awaiting intent")
	assert.Zero(t, e.payments.addMayaCalls, "no record without an awaiting intent")
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

// --- payment finalization --------------------------------------------------

func pendingGCashRecord() *model.PaymentRecord {
	return &model.PaymentRecord{
		ID: 5, GuestID: 88, Amount: 95.0,
		PaymentType: model.ProviderGCash, PaymentStatus: model.PaymentPending,
		TransactionID: "src_42",
	}
}

func TestGCashPaymentAlreadyPaidIsIdempotent(t *testing.T) {
	e := newEnv(t)
	rec := pendingGCashRecord()
	rec.PaymentStatus = model.PaymentPaid
	e.payments.gcashRecord = rec

	_, err := e.svc.GCashPayment(context.Background(), gcashCallbackFixture())
	require.Error(t, err)
	assert.Equal(t, "ALREADY_PAID", apperr.As(err).Status)

	assert.Zero(t, e.gcash.confirmCalls, "terminal record must not be confirmed again")
	assert.Zero(t, e.payments.connectorCalls, "reconciliation must not re-trigger")
	assert.Zero(t, e.payments.evseCalls)
}

func TestGCashPaymentAlreadyFailed(t *testing.T) {
	e := newEnv(t)
	rec := pendingGCashRecord()
	rec.PaymentStatus = model.PaymentFailed
	e.payments.gcashRecord = rec

	_, err := e.svc.GCashPayment(context.Background(), gcashCallbackFixture())
	require.Error(t, err)
	assert.Equal(t, "ALREADY_FAILED", apperr.As(err).Status)
}

func TestGCashPaymentFailureTokenSkipsConfirmation(t *testing.T) {
	e := newEnv(t)
	e.payments.gcashRecord = pendingGCashRecord()

	cb := gcashCallbackFixture()
	cb.Token = "abc120" // trailing "0" encodes a failed checkout
	out, err := e.svc.GCashPayment(context.Background(), cb)
	require.NoError(t, err)

	assert.Equal(t, "FAILED", out.PaymentStatus)
	assert.Zero(t, e.gcash.confirmCalls)
	assert.Zero(t, e.payments.connectorCalls, "failed payment must not reconcile")
}

func TestGCashPaymentPaidConfirmsAndReconciles(t *testing.T) {
	e := newEnv(t)
	e.payments.gcashRecord = pendingGCashRecord()

	out, err := e.svc.GCashPayment(context.Background(), gcashCallbackFixture())
	require.NoError(t, err)

	assert.Equal(t, "SUCCESS", out.PaymentStatus)
	assert.Equal(t, "https://x", out.HomeLink)
	assert.Equal(t, "src_42", out.TransactionID)
	assert.Equal(t, 1, e.gcash.confirmCalls)
	assert.Equal(t, 1, e.payments.connectorCalls)
	assert.Equal(t, 1, e.payments.evseCalls)
}

func TestGCashPaymentUnknownID(t *testing.T) {
	e := newEnv(t)
	e.payments.gcashRecord = nil

	_, err := e.svc.GCashPayment(context.Background(), gcashCallbackFixture())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func gcashCallbackFixture() GCashCallback {
	return GCashCallback{Token: "abc129", PaymentID: 5, EVSEUID: "E1", ConnectorID: "C1"}
}

func TestMayaPaymentSucceededReconcilesExactlyOnce(t *testing.T) {
	e := newEnv(t)
	e.payments.mayaRecord = &model.PaymentRecord{
		ID: 6, GuestID: 88, Amount: 95.0,
		PaymentType: model.ProviderMaya, PaymentStatus: model.PaymentPending,
		TransactionID: "pi_123", ClientKey: "ck_abc",
	}

	out, err := e.svc.MayaPayment(context.Background(), MayaCallback{
		TransactionID: "pi_123", EVSEUID: "E1", ConnectorID: "C1",
	})
	require.NoError(t, err)

	assert.Equal(t, "SUCCESS", out.PaymentStatus)
	assert.Equal(t, "pi_123", out.TransactionID)
	assert.Equal(t, "https://x", out.HomeLink)
	assert.Equal(t, 1, e.payments.connectorCalls)
	assert.Equal(t, 1, e.payments.evseCalls)
}

func TestMayaPaymentAwaitingMethodMapsToFailed(t *testing.T) {
	e := newEnv(t)
	e.maya.resolved = payment.StatusAwaitingPaymentMethod
	e.payments.mayaRecord = &model.PaymentRecord{
		ID: 6, GuestID: 88, PaymentType: model.ProviderMaya,
		PaymentStatus: model.PaymentPending, TransactionID: "pi_123", ClientKey: "ck_abc",
	}

	out, err := e.svc.MayaPayment(context.Background(), MayaCallback{TransactionID: "pi_123"})
	require.NoError(t, err)
	assert.Equal(t, "FAILED", out.PaymentStatus)
	assert.Zero(t, e.payments.connectorCalls)
}

func TestMayaPaymentUnknownTransaction(t *testing.T) {
	e := newEnv(t)
	e.payments.mayaRecord = nil

	_, err := e.svc.MayaPayment(context.Background(), MayaCallback{TransactionID: "missing"})
	require.Error(t, err)
	assert.Equal(t, "TRANSACTION_ID_NOT_FOUND", apperr.As(err).Status)
}

// --- OTP and lookups -------------------------------------------------------

func TestVerifyOTPRejection(t *testing.T) {
	e := newEnv(t)
	e.guests.verifyResult = repository.OTPResult{Outcome: repository.OutcomeRejected, Status: "INVALID_OTP"}

	_, err := e.svc.VerifyOTP(context.Background(), OTPInput{GuestID: 77, OTP: "0000"})
	require.Error(t, err)
	assert.Equal(t, "INVALID_OTP", apperr.As(err).Status)
}

func TestResendOTPDispatchesToReportedNumber(t *testing.T) {
	e := newEnv(t)
	e.guests.resendResult = repository.OTPResult{
		Outcome: repository.OutcomeSuccess, Status: "SUCCESS", MobileNumber: "09170000000",
	}

	status, err := e.svc.ResendOTP(context.Background(), OTPInput{GuestID: 77, TimeslotID: 10, NextTimeslotID: 11})
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", status)
	require.Len(t, e.sms.sent, 1)
	assert.Equal(t, "09170000000", e.sms.sent[0])
	assert.Len(t, e.sms.codes[0], 4)
}

func TestCheckEVSEAttachesRates(t *testing.T) {
	e := newEnv(t)
	e.reservations.evseResult = repository.EVSECheckResult{
		Outcome: repository.OutcomeSuccess,
		Status:  "SUCCESS",
		Details: model.EVSEDetails{EVSEUID: "E1", Status: "AVAILABLE"},
	}
	e.reservations.rates = []model.QRRate{{ID: 1, EVSEUID: "E1", Minutes: 30, Amount: 50, Currency: "PHP"}}

	details, err := e.svc.CheckEVSE(context.Background(), "QR-42", "E1")
	require.NoError(t, err)
	assert.Equal(t, "E1", details.EVSEUID)
	require.Len(t, details.Rates, 1)
}

func TestCheckEVSERejectsBadQRFormat(t *testing.T) {
	e := newEnv(t)
	for _, code := range []string{"42", "qr-42", "QR42", "QR-", "QR-abc", ""} {
		_, err := e.svc.CheckEVSE(context.Background(), code, "E1")
		require.Error(t, err, "code %q must be rejected", code)
		assert.Equal(t, "INVALID_QR_CODE_FORMAT", apperr.As(err).Status)
	}
}

func TestParseQRCode(t *testing.T) {
	n, err := parseQRCode("QR-42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestVerifyPaymentUnknownTransaction(t *testing.T) {
	e := newEnv(t)
	e.payments.verification = nil

	_, err := e.svc.VerifyPayment(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestNewRFIDShape(t *testing.T) {
	tag := newRFID()
	assert.Len(t, tag, 12)
	for _, r := range tag {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F'), "unexpected rune %q", r)
	}
}
