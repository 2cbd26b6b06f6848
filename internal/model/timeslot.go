package model

// Timeslot is an external resource owned by the booking service. The
// orchestrator only ever reads the "current" and "next" instance for a
// connector and persists their ids into the reservation.
//
// Fields:
//  TimeslotID - booking-service identifier.
//  Start      - slot start time ("HH:MM:SS"), informational.
//  End        - slot end time ("HH:MM:SS").
//  Date       - slot date ("YYYY-MM-DD"); populated on the next slot.
type Timeslot struct {
	TimeslotID uint64 `json:"timeslot_id"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Date       string `json:"date"`
}
