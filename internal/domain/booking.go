package domain

import (
	"fmt"
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// Nothing re-enters PENDING; CONFIRMED and CANCELLED are terminal apart
// from CONFIRMED -> CANCELLED.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCancelled},
	BookingStatusCancelled: {},
}

func (s BookingStatus) IsValid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range bookingTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// HoldsCapacity reports whether a booking in this status has slots
// committed against its package.
func (s BookingStatus) HoldsCapacity() bool {
	return s == BookingStatusConfirmed
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: invalid booking status %q", ErrInvalidInput, s)
	}
	return status, nil
}

type Booking struct {
	ID             string        `json:"id"`
	TravelerID     string        `json:"traveler_id"`
	PackageID      string        `json:"package_id"`
	AgencyID       string        `json:"agency_id"`
	SlotsRequested int           `json:"slots_requested"`
	Status         BookingStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// IsParty reports whether p is the booking's traveler or the agency owning
// the booked package.
func (b *Booking) IsParty(p Party) bool {
	switch p.Type {
	case PartyTraveler:
		return b.TravelerID == p.ID
	case PartyAgency:
		return b.AgencyID == p.ID
	}
	return false
}

type BookingFilter struct {
	TravelerID string
	AgencyID   string
	PackageID  string
	Status     BookingStatus
}

// Matches reports whether b satisfies every non-empty field of f.
func (f BookingFilter) Matches(b *Booking) bool {
	if f.TravelerID != "" && b.TravelerID != f.TravelerID {
		return false
	}
	if f.AgencyID != "" && b.AgencyID != f.AgencyID {
		return false
	}
	if f.PackageID != "" && b.PackageID != f.PackageID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	return true
}

type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case DecisionAccept, DecisionReject:
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, s)
}
