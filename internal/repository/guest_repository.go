package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/evgrid/qr-charging/internal/apperr"
)

// GuestRepo provides access to guest rows and the OTP lifecycle. Guests
// are created inside the reservation transaction and verified later via
// a single stored-procedure round trip.
type GuestRepo struct {
	db *sql.DB
}

// NewGuestRepo returns a new GuestRepo bound to the given database.
func NewGuestRepo(db *sql.DB) *GuestRepo { return &GuestRepo{db: db} }

// GuestData carries the arguments of WEB_QR_ADD_GUEST in declaration
// order.
type GuestData struct {
	IsFree         int
	MobileNumber   string
	TimeslotID     uint64
	PaidChargeMins int
	RFID           string
	OTP            string
	HomeLink       string
}

// GuestResult is the decoded status row of WEB_QR_ADD_GUEST.
type GuestResult struct {
	Outcome Outcome
	Status  string
	GuestID uint64
}

// AddGuestTx inserts a guest within the scope of an existing
// transaction. A non-success Outcome is a business-rule rejection (for
// example a duplicate mobile number with an active charge); the caller
// decides whether to roll back.
func (r *GuestRepo) AddGuestTx(ctx context.Context, tx *sql.Tx, data GuestData) (GuestResult, error) {
	const q = `CALL WEB_QR_ADD_GUEST(?,?,?,?,?,?,?)`
	var res GuestResult
	row := tx.QueryRowContext(ctx, q,
		data.IsFree,
		data.MobileNumber,
		data.TimeslotID,
		data.PaidChargeMins,
		data.RFID,
		data.OTP,
		data.HomeLink,
	)
	var guestID sql.NullInt64
	if err := row.Scan(&res.Status, &guestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return res, ErrNoResult
		}
		return res, apperr.Storage(err)
	}
	if guestID.Valid {
		res.GuestID = uint64(guestID.Int64)
	}
	res.Outcome = outcomeOf(res.Status, "")
	return res, nil
}

// OTPData identifies the guest and reservation an OTP operation acts on.
type OTPData struct {
	GuestID        uint64
	OTP            string
	TimeslotID     uint64
	NextTimeslotID uint64
}

// OTPResult is the decoded status row of the OTP procedures. The
// mobile number is only populated by WEB_QR_RESEND_OTP, which returns
// it so the caller can dispatch the regenerated code.
type OTPResult struct {
	Outcome      Outcome
	Status       string
	MobileNumber string
}

// VerifyOTP checks the submitted code against the guest's stored one.
// Runs outside any transaction: the procedure is a single atomic
// statement.
func (r *GuestRepo) VerifyOTP(ctx context.Context, data OTPData) (OTPResult, error) {
	const q = `CALL WEB_QR_VERIFY_OTP(?,?,?,?)`
	var res OTPResult
	err := r.db.QueryRowContext(ctx, q,
		data.GuestID, data.OTP, data.TimeslotID, data.NextTimeslotID,
	).Scan(&res.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return res, ErrNoResult
		}
		return res, apperr.Storage(err)
	}
	res.Outcome = outcomeOf(res.Status, "")
	return res, nil
}

// ResendOTP stores a freshly generated code for the guest and returns
// the mobile number it should be dispatched to.
func (r *GuestRepo) ResendOTP(ctx context.Context, data OTPData) (OTPResult, error) {
	const q = `CALL WEB_QR_RESEND_OTP(?,?,?,?)`
	var res OTPResult
	var mobile sql.NullString
	err := r.db.QueryRowContext(ctx, q,
		data.GuestID, data.TimeslotID, data.NextTimeslotID, data.OTP,
	).Scan(&res.Status, &mobile)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return res, ErrNoResult
		}
		return res, apperr.Storage(err)
	}
	res.MobileNumber = mobile.String
	res.Outcome = outcomeOf(res.Status, "")
	return res, nil
}

// CheckMobileNumberStatus reports the charging status attached to a
// mobile number, or "" when the number has no guest row.
func (r *GuestRepo) CheckMobileNumberStatus(ctx context.Context, mobileNumber string) (string, error) {
	const q = `SELECT charging_status FROM user_driver_guests WHERE mobile_number = ?`
	var status string
	err := r.db.QueryRowContext(ctx, q, mobileNumber).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperr.Storage(err)
	}
	return status, nil
}
