package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/evgrid/qr-charging/internal/apperr"
	"github.com/evgrid/qr-charging/internal/model"
)

// ReservationRepo links guests to timeslots. Reservations are only
// durable when both the guest-creation step and the reservation step
// report success; the service rolls the shared transaction back on any
// other outcome.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// ReserveData carries the arguments of WEB_QR_RESERVE in declaration
// order.
type ReserveData struct {
	GuestID          uint64
	TimeslotID       uint64
	NextTimeslotID   uint64
	CurrentTime      string // "HH:MM:SS"
	CurrentDate      string // "YYYY-MM-DD"
	TimeslotEnd      string // end time of the current slot
	NextTimeslotDate string // date of the next slot
}

// ReserveResult is the decoded status row of WEB_QR_RESERVE.
type ReserveResult struct {
	Outcome        Outcome
	Status         string
	TimeslotID     uint64
	NextTimeslotID uint64
}

// ReserveTx books the current and next timeslot for a previously
// created guest within the scope of an existing transaction.
func (r *ReservationRepo) ReserveTx(ctx context.Context, tx *sql.Tx, data ReserveData) (ReserveResult, error) {
	const q = `CALL WEB_QR_RESERVE(?,?,?,?,?,?,?)`
	var res ReserveResult
	var slotID, nextSlotID sql.NullInt64
	err := tx.QueryRowContext(ctx, q,
		data.GuestID,
		data.TimeslotID,
		data.NextTimeslotID,
		data.CurrentTime,
		data.CurrentDate,
		data.TimeslotEnd,
		data.NextTimeslotDate,
	).Scan(&res.Status, &slotID, &nextSlotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return res, ErrNoResult
		}
		return res, apperr.Storage(err)
	}
	if slotID.Valid {
		res.TimeslotID = uint64(slotID.Int64)
	}
	if nextSlotID.Valid {
		res.NextTimeslotID = uint64(nextSlotID.Int64)
	}
	res.Outcome = outcomeOf(res.Status, "")
	return res, nil
}

// PaidReserveData carries the arguments of WEB_QR_RESERVE_WITH_PAYMENT
// in declaration order. The guest row is created by the procedure
// itself on this path.
type PaidReserveData struct {
	MobileNumber     string
	TimeslotID       uint64
	NextTimeslotID   uint64
	PaidChargeMins   int
	CurrentTime      string
	CurrentDate      string
	TimeslotEnd      string
	NextTimeslotDate string
	RFID             string
	HomeLink         string
}

// PaidReserveResult is the decoded status row of
// WEB_QR_RESERVE_WITH_PAYMENT. The procedure reports a status_type of
// "conflict" when two calls race for the same slot; that must surface
// to the caller as a conflict, not as a generic rejection.
type PaidReserveResult struct {
	Outcome Outcome
	Status  string
	GuestID uint64
}

// ReserveWithPaymentTx creates the guest and books the slots in one
// procedure call on the paid path, within the scope of an existing
// transaction.
func (r *ReservationRepo) ReserveWithPaymentTx(ctx context.Context, tx *sql.Tx, data PaidReserveData) (PaidReserveResult, error) {
	const q = `CALL WEB_QR_RESERVE_WITH_PAYMENT(?,?,?,?,?,?,?,?,?,?)`
	var res PaidReserveResult
	var statusType sql.NullString
	var guestID sql.NullInt64
	err := tx.QueryRowContext(ctx, q,
		data.MobileNumber,
		data.TimeslotID,
		data.NextTimeslotID,
		data.PaidChargeMins,
		data.CurrentTime,
		data.CurrentDate,
		data.TimeslotEnd,
		data.NextTimeslotDate,
		data.RFID,
		data.HomeLink,
	).Scan(&res.Status, &statusType, &guestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return res, ErrNoResult
		}
		return res, apperr.Storage(err)
	}
	if guestID.Valid {
		res.GuestID = uint64(guestID.Int64)
	}
	res.Outcome = outcomeOf(res.Status, statusType.String)
	return res, nil
}

// EVSECheckResult pairs the decoded status row of WEB_QR_CHECK_EVSE
// with the EVSE details and its connectors (second result set).
type EVSECheckResult struct {
	Outcome Outcome
	Status  string
	Details model.EVSEDetails
}

// CheckEVSE resolves a scanned QR number against an EVSE. The
// procedure returns two result sets: the EVSE row with its status
// column, then one row per connector.
func (r *ReservationRepo) CheckEVSE(ctx context.Context, qrNumber int, evseUID string) (EVSECheckResult, error) {
	const q = `CALL WEB_QR_CHECK_EVSE(?,?)`
	var res EVSECheckResult
	rows, err := r.db.QueryContext(ctx, q, qrNumber, evseUID)
	if err != nil {
		return res, apperr.Storage(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return res, apperr.Storage(err)
		}
		return res, ErrNoResult
	}
	if err := rows.Scan(
		&res.Status,
		&res.Details.EVSEUID,
		&res.Details.LocationID,
		&res.Details.LocationName,
		&res.Details.Address,
		&res.Details.Status,
	); err != nil {
		return res, apperr.Storage(err)
	}
	res.Outcome = outcomeOf(res.Status, "")
	res.Details.Connectors = []model.Connector{}
	if rows.NextResultSet() {
		for rows.Next() {
			var c model.Connector
			if err := rows.Scan(&c.ConnectorID, &c.Standard, &c.Format, &c.PowerType, &c.MaxPowerKW, &c.Status); err != nil {
				return res, apperr.Storage(err)
			}
			res.Details.Connectors = append(res.Details.Connectors, c)
		}
	}
	if err := rows.Err(); err != nil {
		return res, apperr.Storage(err)
	}
	return res, nil
}

// QRRates lists the guest charging rates published for an EVSE.
func (r *ReservationRepo) QRRates(ctx context.Context, evseUID string) ([]model.QRRate, error) {
	const q = `SELECT id, evse_uid, minutes, amount, currency FROM evse_qr_rates WHERE evse_uid = ?`
	rows, err := r.db.QueryContext(ctx, q, evseUID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer rows.Close()
	rates := make([]model.QRRate, 0)
	for rows.Next() {
		var rate model.QRRate
		if err := rows.Scan(&rate.ID, &rate.EVSEUID, &rate.Minutes, &rate.Amount, &rate.Currency); err != nil {
			return nil, apperr.Storage(err)
		}
		rates = append(rates, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err)
	}
	return rates, nil
}
