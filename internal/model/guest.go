package model

// Guest is a transient identity created per reservation attempt.
// Guests are never deleted explicitly; their lifecycle is bounded by
// the timeslot their reservation points at.
//
// Fields:
//  ID           - primary key identifier (user_driver_guests.id).
//  MobileNumber - phone the OTP is sent to.
//  RFID         - generated 12-char RFID-like tag for the charger.
//  OTP          - current one-time code (regenerated on resend).
//  IsFree       - 1 when the charge is free of charge.
//  HomeLink     - URL the guest is sent back to after payment.
type Guest struct {
	ID           uint64
	MobileNumber string
	RFID         string
	OTP          string
	IsFree       int
	HomeLink     string
}
