package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/evgrid/qr-charging/internal/apperr"
	"github.com/evgrid/qr-charging/internal/model"
)

// PaymentRepo provides access to payment records and the EVSE/connector
// status reconciliation calls that follow a settled payment. Record
// creation happens inside the reservation transaction; finalization via
// the WEB_QR_UPDATE_* procedures happens on the callback path outside
// any caller-held transaction.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// AddPaymentTx inserts a pending GCash payment record and returns its
// generated id.
func (r *PaymentRepo) AddPaymentTx(ctx context.Context, tx *sql.Tx, rec model.PaymentRecord) (uint64, error) {
	const q = `
		INSERT INTO user_driver_qr_payment_records
		(user_driver_guest_id, evse_qr_rate_id, amount, payment_type, payment_status, date_created, date_modified)
		VALUES (?,?,?,?,?, NOW(), NOW())`
	result, err := tx.ExecContext(ctx, q, rec.GuestID, rec.RateID, rec.Amount, rec.PaymentType, rec.PaymentStatus)
	if err != nil {
		return 0, apperr.Storage(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, apperr.Storage(err)
	}
	return uint64(id), nil
}

// AddMayaPaymentTx inserts a pending Maya payment record together with
// the provider transaction id and client key returned at intent
// creation.
func (r *PaymentRepo) AddMayaPaymentTx(ctx context.Context, tx *sql.Tx, rec model.PaymentRecord) error {
	const q = `
		INSERT INTO user_driver_qr_payment_records
		(user_driver_guest_id, evse_qr_rate_id, amount, payment_type, payment_status, transaction_id, maya_client_key, date_created, date_modified)
		VALUES (?,?,?,?,?,?,?, NOW(), NOW())`
	_, err := tx.ExecContext(ctx, q,
		rec.GuestID, rec.RateID, rec.Amount, rec.PaymentType, rec.PaymentStatus, rec.TransactionID, rec.ClientKey)
	if err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// UpdatePaymentTx stamps the provider status and transaction id onto a
// record by primary key, within the reservation transaction.
func (r *PaymentRepo) UpdatePaymentTx(ctx context.Context, tx *sql.Tx, paymentID uint64, status, transactionID string) error {
	const q = `
		UPDATE user_driver_qr_payment_records
		SET payment_status = ?, transaction_id = ?, date_modified = NOW()
		WHERE id = ?`
	if _, err := tx.ExecContext(ctx, q, status, transactionID, paymentID); err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// PaymentUpdateResult is the decoded status row of the WEB_QR_UPDATE_*
// procedures. The procedures refuse to move a record out of a terminal
// state and report that via status_type, which decodes to
// OutcomeRejected with the reason in Status.
type PaymentUpdateResult struct {
	Outcome  Outcome
	Status   string
	HomeLink string
}

// UpdateGCashPayment finalizes a GCash record through its stored
// procedure and returns the guest home link for the redirect response.
func (r *PaymentRepo) UpdateGCashPayment(ctx context.Context, guestID uint64, status, transactionID, description string, paymentID uint64) (PaymentUpdateResult, error) {
	const q = `CALL WEB_QR_UPDATE_GCASH_PAYMENT(?,?,?,?,?)`
	var res PaymentUpdateResult
	var statusType, homeLink sql.NullString
	err := r.db.QueryRowContext(ctx, q, guestID, status, transactionID, description, paymentID).
		Scan(&res.Status, &statusType, &homeLink)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return res, ErrNoResult
		}
		return res, apperr.Storage(err)
	}
	res.HomeLink = homeLink.String
	res.Outcome = outcomeOf(res.Status, statusType.String)
	if statusType.String == "bad_request" {
		res.Outcome = OutcomeRejected
	}
	return res, nil
}

// UpdateMayaPayment finalizes a Maya record through its stored
// procedure, keyed by the provider transaction id.
func (r *PaymentRepo) UpdateMayaPayment(ctx context.Context, status, transactionID string) (PaymentUpdateResult, error) {
	const q = `CALL WEB_QR_UPDATE_MAYA_PAYMENT(?,?)`
	var res PaymentUpdateResult
	var homeLink sql.NullString
	err := r.db.QueryRowContext(ctx, q, status, transactionID).Scan(&res.Status, &homeLink)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return res, ErrNoResult
		}
		return res, apperr.Storage(err)
	}
	res.HomeLink = homeLink.String
	res.Outcome = outcomeOf(res.Status, "")
	return res, nil
}

// GetGCashDetails fetches one payment record by internal id. Returns
// (nil, nil) when the id is unknown.
func (r *PaymentRepo) GetGCashDetails(ctx context.Context, paymentID uint64) (*model.PaymentRecord, error) {
	const q = `
		SELECT id, user_driver_guest_id, amount, payment_type, payment_status, transaction_id
		FROM user_driver_qr_payment_records
		WHERE id = ?`
	rec := model.PaymentRecord{}
	var txID sql.NullString
	err := r.db.QueryRowContext(ctx, q, paymentID).
		Scan(&rec.ID, &rec.GuestID, &rec.Amount, &rec.PaymentType, &rec.PaymentStatus, &txID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	rec.TransactionID = txID.String
	return &rec, nil
}

// GetMayaDetails fetches one payment record by provider transaction id.
// Returns (nil, nil) when the id is unknown.
func (r *PaymentRepo) GetMayaDetails(ctx context.Context, transactionID string) (*model.PaymentRecord, error) {
	const q = `
		SELECT id, user_driver_guest_id, amount, payment_type, payment_status, transaction_id, maya_client_key
		FROM user_driver_qr_payment_records
		WHERE transaction_id = ?`
	rec := model.PaymentRecord{}
	var clientKey sql.NullString
	err := r.db.QueryRowContext(ctx, q, transactionID).
		Scan(&rec.ID, &rec.GuestID, &rec.Amount, &rec.PaymentType, &rec.PaymentStatus, &rec.TransactionID, &clientKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	rec.ClientKey = clientKey.String
	return &rec, nil
}

// VerifyPayment returns the settlement view of a transaction id, joined
// with the guest's paid minutes. Returns (nil, nil) when unknown.
func (r *PaymentRepo) VerifyPayment(ctx context.Context, transactionID string) (*model.PaymentVerification, error) {
	const q = `
		SELECT amount, payment_type, payment_status, transaction_id, paid_charge_mins
		FROM user_driver_qr_payment_records
		INNER JOIN user_driver_guests ON user_driver_guests.id = user_driver_qr_payment_records.user_driver_guest_id
		WHERE transaction_id = ?`
	var v model.PaymentVerification
	err := r.db.QueryRowContext(ctx, q, transactionID).
		Scan(&v.Amount, &v.PaymentType, &v.PaymentStatus, &v.TransactionID, &v.PaidChargeMins)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return &v, nil
}

// CheckAndUpdateConnectorStatus reconciles one connector's status after
// a payment reaches paid. Idempotent on the database side.
func (r *PaymentRepo) CheckAndUpdateConnectorStatus(ctx context.Context, evseUID, connectorID string) error {
	const q = `CALL WEB_USER_CHECK_AND_UPDATE_CONNECTOR_STATUS(?,?)`
	if _, err := r.db.ExecContext(ctx, q, evseUID, connectorID); err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// CheckAndUpdateEVSEStatus reconciles the EVSE status after a payment
// reaches paid. Idempotent on the database side.
func (r *PaymentRepo) CheckAndUpdateEVSEStatus(ctx context.Context, evseUID string) error {
	const q = `CALL WEB_USER_CHECK_AND_UPDATE_EVSE_STATUS(?)`
	if _, err := r.db.ExecContext(ctx, q, evseUID); err != nil {
		return apperr.Storage(err)
	}
	return nil
}
