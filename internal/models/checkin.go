package models

import "time"

// CheckInRequest is the wire shape accepted by the check-in endpoint. A nil
// AttendeeIndex means "check in every attendee not yet checked in".
type CheckInRequest struct {
	RegistrationID string `json:"registration_id"`
	AttendeeIndex  *int   `json:"attendee_index,omitempty"`
	ActorID        string `json:"-"`
	ActorName      string `json:"-"`
	Method         string `json:"method"`
}

// CheckInResult reports the outcome of one check-in request. On an
// already-checked-in outcome Existing carries the prior record so kiosks can
// show who scanned first.
type CheckInResult struct {
	Success             bool           `json:"success"`
	TransitionedIndices []int          `json:"transitioned_indices"`
	ErrorCode           string         `json:"error_code,omitempty"`
	Existing            *CheckInRecord `json:"existing,omitempty"`
	Registration        *Registration  `json:"registration,omitempty"`
}

// CheckInEvent is emitted once per attendee actually transitioned. It is
// append-only: consumed by the stats aggregator and the live feed, never stored
// as authoritative state.
type CheckInEvent struct {
	RegistrationID string    `json:"registration_id"`
	AttendeeIndex  int       `json:"attendee_index"`
	AttendeeName   string    `json:"attendee_name"`
	Church         string    `json:"church,omitempty"`
	Method         string    `json:"method"`
	Timestamp      time.Time `json:"timestamp"`
}

// CheckInStats is the aggregator's read model.
type CheckInStats struct {
	CheckedInRegistrations      int       `json:"checked_in_registrations"`
	TotalConfirmedRegistrations int       `json:"total_confirmed_registrations"`
	CheckedInAttendees          int       `json:"checked_in_attendees"`
	TotalExpectedAttendees      int       `json:"total_expected_attendees"`
	Percentage                  float64   `json:"percentage"`
	UpdatedAt                   time.Time `json:"updated_at"`
}
