package model

// Payment status values. Transitions are monotonic: a record starts
// pending and moves to exactly one of paid or failed. Callbacks and
// polls that observe a terminal status must be rejected as conflicts,
// never reprocessed.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// Payment provider types accepted on the paid reservation path.
const (
	ProviderGCash = "gcash"
	ProviderMaya  = "maya"
)

// PaymentRecord represents one attempt to pay for a reservation.
//
// Fields:
//  ID            - primary key (user_driver_qr_payment_records.id).
//  GuestID       - owning guest.
//  RateID        - evse_qr_rates reference the amount was derived from.
//  Amount        - amount in whole currency units as submitted.
//  PaymentType   - "gcash" or "maya".
//  PaymentStatus - pending | paid | failed.
//  TransactionID - provider-side transaction/source id.
//  ClientKey     - Maya client key needed to poll the intent.
//  HomeLink      - guest home-link URL joined from the guest row.
type PaymentRecord struct {
	ID            uint64
	GuestID       uint64
	RateID        uint64
	Amount        float64
	PaymentType   string
	PaymentStatus string
	TransactionID string
	ClientKey     string
	HomeLink      string
}

// Terminal reports whether the record already reached paid or failed.
func (p *PaymentRecord) Terminal() bool {
	return p.PaymentStatus == PaymentPaid || p.PaymentStatus == PaymentFailed
}

// PaymentVerification is the settlement view of one transaction id,
// joined with the guest's paid charging minutes.
type PaymentVerification struct {
	Amount         float64 `json:"amount"`
	PaymentType    string  `json:"payment_type"`
	PaymentStatus  string  `json:"payment_status"`
	TransactionID  string  `json:"transaction_id"`
	PaidChargeMins int     `json:"paid_charge_mins"`
}
