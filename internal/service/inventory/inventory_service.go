package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/Domenick1991/tourbooking/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// InventoryUseCase is the capacity surface used by the booking lifecycle.
type InventoryUseCase interface {
	GetPackage(ctx context.Context, id string) (*domain.Package, error)
	GetAvailability(ctx context.Context, packageID string) (domain.Availability, error)
	Reserve(ctx context.Context, packageID string, quantity int) (domain.Availability, error)
	Release(ctx context.Context, packageID string, quantity int) (domain.Availability, error)
	Deactivate(ctx context.Context, packageID string) error
	Remove(ctx context.Context, packageID string) error
	InvalidateAvailability(ctx context.Context, packageID string)
}

// PackageUseCase is the agency-facing package management surface.
type PackageUseCase interface {
	CreatePackage(ctx context.Context, caller domain.Party, input CreatePackageInput) (*domain.Package, error)
	GetPackage(ctx context.Context, id string) (*domain.Package, error)
	ListPackages(ctx context.Context, filter domain.PackageFilter) ([]domain.Package, error)
	GetAvailability(ctx context.Context, packageID string) (domain.Availability, error)
	UpdateMaxSlots(ctx context.Context, caller domain.Party, packageID string, maxSlots int) (domain.Availability, error)
	SetPackageActive(ctx context.Context, caller domain.Party, packageID string, active bool) (*domain.Package, error)
	Audit(ctx context.Context) ([]domain.CapacityDrift, error)
}

type Cache interface {
	GetAvailability(ctx context.Context, packageID string) (*domain.Availability, error)
	SetAvailability(ctx context.Context, a domain.Availability) error
	InvalidateAvailability(ctx context.Context, packageID string) error
}

type CreatePackageInput struct {
	Title        string    `json:"title"`
	MainLocation string    `json:"main_location"`
	FromLocation string    `json:"from_location"`
	ToLocation   string    `json:"to_location"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	PriceCents   int64     `json:"price_cents"`
	MaxSlots     int       `json:"max_slots"`
}

func (in CreatePackageInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	case in.MaxSlots <= 0:
		return fmt.Errorf("%w: max slots must be positive", domain.ErrInvalidInput)
	case in.PriceCents < 0:
		return fmt.Errorf("%w: price must not be negative", domain.ErrInvalidInput)
	case in.StartDate.IsZero() || in.EndDate.IsZero():
		return fmt.Errorf("%w: start and end dates are required", domain.ErrInvalidInput)
	case in.EndDate.Before(in.StartDate):
		return fmt.Errorf("%w: end date is before start date", domain.ErrInvalidInput)
	}
	return nil
}

type InventoryService struct {
	packages repository.PackageRepository
	cache    Cache
	log      *logrus.Logger
}

type Option func(*InventoryService)

func WithCache(cache Cache) Option {
	return func(s *InventoryService) {
		s.cache = cache
	}
}

func WithLogger(log *logrus.Logger) Option {
	return func(s *InventoryService) {
		s.log = log
	}
}

func NewInventoryService(packages repository.PackageRepository, opts ...Option) *InventoryService {
	s := &InventoryService{packages: packages, log: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InventoryService) CreatePackage(ctx context.Context, caller domain.Party, input CreatePackageInput) (*domain.Package, error) {
	if !caller.IsAgency() {
		return nil, fmt.Errorf("%w: only agencies can create packages", domain.ErrUnauthorized)
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	pkg := &domain.Package{
		ID:             uuid.NewString(),
		AgencyID:       caller.ID,
		Title:          strings.TrimSpace(input.Title),
		MainLocation:   input.MainLocation,
		FromLocation:   input.FromLocation,
		ToLocation:     input.ToLocation,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		PriceCents:     input.PriceCents,
		MaxSlots:       input.MaxSlots,
		AvailableSlots: input.MaxSlots,
		Status:         domain.PackageStatusActive,
	}
	if err := s.packages.Create(ctx, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

func (s *InventoryService) GetPackage(ctx context.Context, id string) (*domain.Package, error) {
	return s.packages.GetByID(ctx, id)
}

func (s *InventoryService) ListPackages(ctx context.Context, filter domain.PackageFilter) ([]domain.Package, error) {
	return s.packages.List(ctx, filter)
}

// GetAvailability is read-through: a cached snapshot may lag the store by
// at most the cache TTL. Reserve and Release never consult the cache.
func (s *InventoryService) GetAvailability(ctx context.Context, packageID string) (domain.Availability, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetAvailability(ctx, packageID); err == nil && cached != nil {
			return *cached, nil
		}
	}

	a, err := s.packages.GetAvailability(ctx, packageID)
	if err != nil {
		return domain.Availability{}, err
	}
	if s.cache != nil {
		_ = s.cache.SetAvailability(ctx, a)
	}
	return a, nil
}

func (s *InventoryService) Reserve(ctx context.Context, packageID string, quantity int) (domain.Availability, error) {
	if quantity <= 0 {
		return domain.Availability{}, domain.ErrInvalidQuantity
	}
	return s.packages.Reserve(ctx, packageID, quantity)
}

// Release returns slots to the package. A release that would push
// available above max is a bookkeeping bug: it is refused and reported.
func (s *InventoryService) Release(ctx context.Context, packageID string, quantity int) (domain.Availability, error) {
	if quantity <= 0 {
		return domain.Availability{}, domain.ErrInvalidQuantity
	}
	a, err := s.packages.Release(ctx, packageID, quantity)
	if err != nil {
		if errors.Is(err, domain.ErrCapacityOverflow) {
			s.log.WithFields(logrus.Fields{
				"package_id": packageID,
				"quantity":   quantity,
			}).Error("Release would exceed max slots")
		}
		return domain.Availability{}, err
	}
	return a, nil
}

func (s *InventoryService) UpdateMaxSlots(ctx context.Context, caller domain.Party, packageID string, maxSlots int) (domain.Availability, error) {
	if maxSlots <= 0 {
		return domain.Availability{}, fmt.Errorf("%w: max slots must be positive", domain.ErrInvalidInput)
	}
	if _, err := s.ownedPackage(ctx, caller, packageID); err != nil {
		return domain.Availability{}, err
	}
	a, err := s.packages.SetMaxSlots(ctx, packageID, maxSlots)
	if err != nil {
		return domain.Availability{}, err
	}
	s.InvalidateAvailability(ctx, packageID)
	return a, nil
}

func (s *InventoryService) SetPackageActive(ctx context.Context, caller domain.Party, packageID string, active bool) (*domain.Package, error) {
	if _, err := s.ownedPackage(ctx, caller, packageID); err != nil {
		return nil, err
	}
	status := domain.PackageStatusInactive
	if active {
		status = domain.PackageStatusActive
	}
	if err := s.packages.SetStatus(ctx, packageID, status); err != nil {
		return nil, err
	}
	return s.packages.GetByID(ctx, packageID)
}

func (s *InventoryService) Deactivate(ctx context.Context, packageID string) error {
	return s.packages.SetStatus(ctx, packageID, domain.PackageStatusInactive)
}

// Remove deletes the package. The store refuses with ErrPackageInUse while
// any confirmed booking references it.
func (s *InventoryService) Remove(ctx context.Context, packageID string) error {
	return s.packages.Delete(ctx, packageID)
}

// Audit compares every package's counters with its confirmed bookings and
// returns the packages that disagree. Nothing is corrected.
func (s *InventoryService) Audit(ctx context.Context) ([]domain.CapacityDrift, error) {
	report, err := s.packages.CapacityReport(ctx)
	if err != nil {
		return nil, err
	}
	drifts := make([]domain.CapacityDrift, 0)
	for _, d := range report {
		if d.Delta() == 0 && d.AvailableSlots >= 0 && d.AvailableSlots <= d.MaxSlots {
			continue
		}
		s.log.WithFields(logrus.Fields{
			"package_id":      d.PackageID,
			"max_slots":       d.MaxSlots,
			"available_slots": d.AvailableSlots,
			"confirmed_slots": d.ConfirmedSlots,
			"delta":           d.Delta(),
		}).Error("Capacity accounting drift")
		drifts = append(drifts, d)
	}
	return drifts, nil
}

func (s *InventoryService) ownedPackage(ctx context.Context, caller domain.Party, packageID string) (*domain.Package, error) {
	if !caller.IsAgency() {
		return nil, fmt.Errorf("%w: only agencies manage packages", domain.ErrUnauthorized)
	}
	pkg, err := s.packages.GetByID(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if pkg.AgencyID != caller.ID {
		return nil, fmt.Errorf("%w: package belongs to another agency", domain.ErrUnauthorized)
	}
	return pkg, nil
}

// InvalidateAvailability drops the cached snapshot. Reserve, Release and
// Remove run inside the caller's transaction and leave this to the caller
// after commit, so a concurrent read cannot cache a value about to roll
// back or one that predates the commit.
func (s *InventoryService) InvalidateAvailability(ctx context.Context, packageID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAvailability(ctx, packageID); err != nil {
		s.log.WithError(err).WithField("package_id", packageID).Warn("Failed to invalidate availability cache")
	}
}

var (
	_ InventoryUseCase = (*InventoryService)(nil)
	_ PackageUseCase   = (*InventoryService)(nil)
)
