// Package queue defines message payloads exchanged over the message broker.
package queue

// ReservationConfirmedEvent is published after a free-path reservation
// commits. Consumers get enough to notify or run analytics without
// touching the primary database.
type ReservationConfirmedEvent struct {
	GuestID        uint64 `json:"guest_id"`
	MobileNumber   string `json:"mobile_number"`
	TimeslotID     uint64 `json:"timeslot_id"`
	NextTimeslotID uint64 `json:"next_timeslot_id"`
	EVSEUID        string `json:"evse_uid"`
	ConnectorID    string `json:"connector_id"`
	ConfirmedAt    string `json:"confirmed_at"`
}

// PaymentSettledEvent is published when a payment record reaches a
// terminal status through a provider callback or poll.
type PaymentSettledEvent struct {
	GuestID       uint64  `json:"guest_id"`
	TransactionID string  `json:"transaction_id"`
	PaymentType   string  `json:"payment_type"`
	Status        string  `json:"status"` // paid | failed
	Amount        float64 `json:"amount"`
	EVSEUID       string  `json:"evse_uid"`
	ConnectorID   string  `json:"connector_id"`
	SettledAt     string  `json:"settled_at"`
}
