package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Registration statuses. Only confirmed registrations are eligible for check-in.
const (
	StatusPendingPayment      = "pending_payment"
	StatusPendingVerification = "pending_verification"
	StatusConfirmed           = "confirmed"
	StatusCancelled           = "cancelled"
	StatusRefunded            = "refunded"
)

// Check-in methods.
const (
	MethodQR     = "qr"
	MethodManual = "manual"
)

// Attendee is one person covered by a registration.
type Attendee struct {
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Church string `json:"church,omitempty"`
}

// CheckInRecord marks a single attendee index as checked in. Once written it is
// never reverted by this service; undo is an administrative override elsewhere.
type CheckInRecord struct {
	CheckedIn       bool      `json:"checked_in"`
	CheckedInAt     time.Time `json:"checked_in_at"`
	CheckedInBy     string    `json:"checked_in_by"`
	CheckedInByName string    `json:"checked_in_by_name,omitempty"`
	Method          string    `json:"method"`
}

type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	// ID is the durable identifier (REG-<year>-<code> template). ShortCode is the
	// 6-char code printed on badges; CodeSuffix is its last 4 chars for verbal lookup.
	ID         string `bun:"id,pk" json:"id"`
	ShortCode  string `bun:"short_code" json:"short_code"`
	CodeSuffix string `bun:"code_suffix" json:"code_suffix"`

	Status string `bun:"status" json:"status"`

	// Primary attendee fields are flattened onto the row so each gets its own index.
	Name   string `bun:"name" json:"name"`
	Email  string `bun:"email" json:"email"`
	Phone  string `bun:"phone" json:"phone"`
	Church string `bun:"church" json:"church"`

	// AdditionalAttendees occupy indices 1..N; index 0 is the primary attendee.
	AdditionalAttendees []Attendee `bun:"additional_attendees,type:jsonb" json:"additional_attendees"`

	// CheckIns maps attendee index to its check-in record. This map is the single
	// source of truth for attendance; CheckedIn/CheckedInAt below only mirror
	// "at least one attendee checked in" for cheap filtering.
	CheckIns    map[int]CheckInRecord `bun:"check_ins,type:jsonb" json:"check_ins"`
	CheckedIn   bool                  `bun:"checked_in" json:"checked_in"`
	CheckedInAt time.Time             `bun:"checked_in_at,nullzero" json:"checked_in_at,omitempty"`

	// Version guards the conditional check-in write. Every mutation increments it.
	Version int64 `bun:"version" json:"version"`

	CreatedAt time.Time `bun:"created_at" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// AttendeeCount returns how many people this registration covers.
func (r *Registration) AttendeeCount() int {
	return 1 + len(r.AdditionalAttendees)
}

// AttendeeAt returns the person at the given index, index 0 being the primary.
func (r *Registration) AttendeeAt(index int) (Attendee, bool) {
	if index < 0 || index >= r.AttendeeCount() {
		return Attendee{}, false
	}
	if index == 0 {
		return Attendee{Name: r.Name, Email: r.Email, Phone: r.Phone, Church: r.Church}, true
	}
	return r.AdditionalAttendees[index-1], true
}

// IsCheckedIn reports whether the attendee at index has a check-in record.
func (r *Registration) IsCheckedIn(index int) bool {
	rec, ok := r.CheckIns[index]
	return ok && rec.CheckedIn
}

// CheckedInCount returns how many attendees of this registration are checked in.
func (r *Registration) CheckedInCount() int {
	n := 0
	for _, rec := range r.CheckIns {
		if rec.CheckedIn {
			n++
		}
	}
	return n
}

// RecomputeMirror refreshes the denormalized checked_in/checked_in_at pair from
// the check_ins map. The mirror is derived state and must never be set directly.
func (r *Registration) RecomputeMirror() {
	r.CheckedIn = false
	r.CheckedInAt = time.Time{}
	for _, rec := range r.CheckIns {
		if !rec.CheckedIn {
			continue
		}
		r.CheckedIn = true
		if r.CheckedInAt.IsZero() || rec.CheckedInAt.Before(r.CheckedInAt) {
			r.CheckedInAt = rec.CheckedInAt
		}
	}
}
