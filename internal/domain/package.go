package domain

import "time"

type PackageStatus string

const (
	PackageStatusActive   PackageStatus = "ACTIVE"
	PackageStatusInactive PackageStatus = "INACTIVE"
)

func (s PackageStatus) IsValid() bool {
	return s == PackageStatusActive || s == PackageStatusInactive
}

type Package struct {
	ID             string        `json:"id"`
	AgencyID       string        `json:"agency_id"`
	Title          string        `json:"title"`
	MainLocation   string        `json:"main_location"`
	FromLocation   string        `json:"from_location"`
	ToLocation     string        `json:"to_location"`
	StartDate      time.Time     `json:"start_date"`
	EndDate        time.Time     `json:"end_date"`
	PriceCents     int64         `json:"price_cents"`
	MaxSlots       int           `json:"max_slots"`
	AvailableSlots int           `json:"available_slots"`
	Status         PackageStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (p *Package) IsActive() bool {
	return p.Status == PackageStatusActive
}

func (p *Package) Availability() Availability {
	return Availability{PackageID: p.ID, MaxSlots: p.MaxSlots, AvailableSlots: p.AvailableSlots}
}

// Availability is a consistent snapshot of a package's capacity counters.
type Availability struct {
	PackageID      string `json:"package_id"`
	MaxSlots       int    `json:"max_slots"`
	AvailableSlots int    `json:"available_slots"`
}

// Held reports the slots currently committed to confirmed bookings.
func (a Availability) Held() int {
	return a.MaxSlots - a.AvailableSlots
}

type PackageFilter struct {
	AgencyID   string
	ActiveOnly bool
}

// CapacityDrift describes a package whose counters disagree with its
// confirmed bookings.
type CapacityDrift struct {
	PackageID      string `json:"package_id"`
	MaxSlots       int    `json:"max_slots"`
	AvailableSlots int    `json:"available_slots"`
	ConfirmedSlots int    `json:"confirmed_slots"`
}

func (d CapacityDrift) Delta() int {
	return d.AvailableSlots + d.ConfirmedSlots - d.MaxSlots
}
