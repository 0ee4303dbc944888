package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/Domenick1991/tourbooking/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type BookingUseCase interface {
	RequestBooking(ctx context.Context, caller domain.Party, input RequestBookingInput) (*domain.Booking, error)
	DecideBooking(ctx context.Context, caller domain.Party, bookingID string, decision domain.Decision) (*domain.Booking, error)
	CancelBooking(ctx context.Context, caller domain.Party, bookingID string) (*domain.Booking, error)
	GetBooking(ctx context.Context, caller domain.Party, bookingID string) (*domain.Booking, error)
	ListBookings(ctx context.Context, caller domain.Party, filter domain.BookingFilter) ([]domain.Booking, error)
	WithdrawPackage(ctx context.Context, caller domain.Party, packageID string) error
}

// Inventory is the package capacity component. Reserve and Release are
// the only writes the engine makes to a package's counters. Cached
// availability is invalidated by the engine once the change is committed.
type Inventory interface {
	GetPackage(ctx context.Context, id string) (*domain.Package, error)
	Reserve(ctx context.Context, packageID string, quantity int) (domain.Availability, error)
	Release(ctx context.Context, packageID string, quantity int) (domain.Availability, error)
	Deactivate(ctx context.Context, packageID string) error
	Remove(ctx context.Context, packageID string) error
	InvalidateAvailability(ctx context.Context, packageID string)
}

type Notifier interface {
	Emit(ctx context.Context, input domain.NotificationInput) (*domain.Notification, error)
}

// DecisionLock turns away a second decision on the same booking while the
// first is in flight. The status CAS stays authoritative without it.
// Acquire returns a token that must be presented to release the lock.
type DecisionLock interface {
	AcquireDecisionLock(ctx context.Context, bookingID string, ttl time.Duration) (string, bool, error)
	ReleaseDecisionLock(ctx context.Context, bookingID, token string) error
}

type RequestBookingInput struct {
	PackageID string `json:"package_id"`
	Slots     int    `json:"slots"`
}

type BookingService struct {
	bookings  repository.BookingRepository
	inventory Inventory
	notifier  Notifier
	tx        repository.Transactor
	agencies  repository.AgencyRepository
	locks     DecisionLock
	lockTTL   time.Duration
	timeout   time.Duration
	log       *logrus.Logger
}

type BookingServiceOption func(*BookingService)

func WithAgencies(agencies repository.AgencyRepository) BookingServiceOption {
	return func(s *BookingService) {
		s.agencies = agencies
	}
}

func WithDecisionLock(locks DecisionLock, ttl time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.locks = locks
		s.lockTTL = ttl
	}
}

// WithOperationTimeout bounds every engine call. Zero disables the bound.
func WithOperationTimeout(timeout time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.timeout = timeout
	}
}

func WithLogger(log *logrus.Logger) BookingServiceOption {
	return func(s *BookingService) {
		s.log = log
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	inventory Inventory,
	notifier Notifier,
	tx repository.Transactor,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:  bookings,
		inventory: inventory,
		notifier:  notifier,
		tx:        tx,
		lockTTL:   10 * time.Second,
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// RequestBooking records a Pending booking. Capacity is never committed
// here: a request larger than the whole package is refused, anything else
// waits for the authoritative check when the agency accepts.
func (s *BookingService) RequestBooking(ctx context.Context, caller domain.Party, input RequestBookingInput) (*domain.Booking, error) {
	if !caller.IsTraveler() {
		return nil, fmt.Errorf("%w: only travelers request bookings", domain.ErrInvalidTransition)
	}
	if input.Slots <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if input.PackageID == "" {
		return nil, fmt.Errorf("%w: package id is required", domain.ErrInvalidInput)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	pkg, err := s.inventory.GetPackage(ctx, input.PackageID)
	if err != nil {
		return nil, storageFailure("get package", err)
	}
	if !pkg.IsActive() {
		return nil, fmt.Errorf("%w: package %s is inactive", domain.ErrPackageInactive, pkg.ID)
	}
	if s.agencies != nil {
		active, err := s.agencies.IsActive(ctx, pkg.AgencyID)
		if err != nil {
			return nil, storageFailure("get agency status", err)
		}
		if !active {
			return nil, fmt.Errorf("%w: agency %s is inactive", domain.ErrPackageInactive, pkg.AgencyID)
		}
	}
	if input.Slots > pkg.MaxSlots {
		return nil, fmt.Errorf("%w: %d requested, package holds %d", domain.ErrInsufficientCapacity, input.Slots, pkg.MaxSlots)
	}

	booking := &domain.Booking{
		ID:             uuid.NewString(),
		TravelerID:     caller.ID,
		PackageID:      pkg.ID,
		AgencyID:       pkg.AgencyID,
		SlotsRequested: input.Slots,
		Status:         domain.BookingStatusPending,
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, storageFailure("create booking", err)
	}

	s.notify(ctx, domain.NotificationInput{
		Kind:      domain.NotificationBookingRequested,
		Sender:    caller,
		Recipient: domain.Agency(booking.AgencyID),
		BookingID: booking.ID,
		Message:   fmt.Sprintf("New booking request for %d slot(s) on %q", booking.SlotsRequested, pkg.Title),
	})
	return booking, nil
}

func (s *BookingService) DecideBooking(ctx context.Context, caller domain.Party, bookingID string, decision domain.Decision) (*domain.Booking, error) {
	if !caller.IsAgency() {
		return nil, fmt.Errorf("%w: only agencies decide bookings", domain.ErrInvalidTransition)
	}
	if decision != domain.DecisionAccept && decision != domain.DecisionReject {
		return nil, fmt.Errorf("%w: unknown decision %q", domain.ErrInvalidInput, decision)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	current, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, storageFailure("get booking", err)
	}
	if current.AgencyID != caller.ID {
		return nil, fmt.Errorf("%w: booking belongs to another agency", domain.ErrUnauthorized)
	}
	if !current.Status.CanTransitionTo(domain.BookingStatusConfirmed) {
		return nil, fmt.Errorf("%w: booking %s is %s", domain.ErrInvalidTransition, current.ID, current.Status)
	}

	unlock, err := s.lockDecision(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var updated *domain.Booking
	if decision == domain.DecisionAccept {
		updated, err = s.accept(ctx, current)
	} else {
		updated, err = s.bookings.TransitionStatus(ctx, current.ID, domain.BookingStatusPending, domain.BookingStatusCancelled)
	}
	if err != nil {
		return nil, storageFailure("decide booking", err)
	}
	if decision == domain.DecisionAccept {
		s.inventory.InvalidateAvailability(ctx, updated.PackageID)
	}

	input := domain.NotificationInput{
		Kind:      domain.NotificationBookingConfirmed,
		Sender:    caller,
		Recipient: domain.Traveler(updated.TravelerID),
		BookingID: updated.ID,
		Message:   fmt.Sprintf("Your booking for %d slot(s) was confirmed", updated.SlotsRequested),
	}
	if decision == domain.DecisionReject {
		input.Kind = domain.NotificationBookingRejected
		input.Message = fmt.Sprintf("Your booking for %d slot(s) was rejected", updated.SlotsRequested)
	}
	s.notify(ctx, input)
	return updated, nil
}

// accept commits capacity first and then flips the status. A lost CAS
// hands the reserved slots back before the conflict is returned. A failed
// store is left to the transaction rollback, which undoes the reservation.
func (s *BookingService) accept(ctx context.Context, b *domain.Booking) (*domain.Booking, error) {
	var updated *domain.Booking
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.inventory.Reserve(ctx, b.PackageID, b.SlotsRequested); err != nil {
			return err
		}
		confirmed, err := s.bookings.TransitionStatus(ctx, b.ID, domain.BookingStatusPending, domain.BookingStatusConfirmed)
		if err != nil {
			if errors.Is(err, domain.ErrStorageFailure) {
				return err
			}
			if _, relErr := s.inventory.Release(ctx, b.PackageID, b.SlotsRequested); relErr != nil {
				s.compensationFailed(b, "release", relErr)
				return errors.Join(err, relErr)
			}
			return err
		}
		updated = confirmed
		return nil
	})
	return updated, err
}

func (s *BookingService) CancelBooking(ctx context.Context, caller domain.Party, bookingID string) (*domain.Booking, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	current, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, storageFailure("get booking", err)
	}
	if !current.IsParty(caller) {
		return nil, fmt.Errorf("%w: caller is not a party to booking %s", domain.ErrUnauthorized, current.ID)
	}

	var updated *domain.Booking
	switch {
	case !current.Status.CanTransitionTo(domain.BookingStatusCancelled):
		return nil, fmt.Errorf("%w: booking %s is %s", domain.ErrInvalidTransition, current.ID, current.Status)
	case current.Status.HoldsCapacity():
		updated, err = s.cancelConfirmed(ctx, current)
		if err == nil {
			s.inventory.InvalidateAvailability(ctx, current.PackageID)
		}
	default:
		updated, err = s.bookings.TransitionStatus(ctx, current.ID, current.Status, domain.BookingStatusCancelled)
	}
	if err != nil {
		return nil, storageFailure("cancel booking", err)
	}

	recipient := domain.Agency(updated.AgencyID)
	if caller.IsAgency() {
		recipient = domain.Traveler(updated.TravelerID)
	}
	s.notify(ctx, domain.NotificationInput{
		Kind:      domain.NotificationBookingCancelled,
		Sender:    caller,
		Recipient: recipient,
		BookingID: updated.ID,
		Message:   fmt.Sprintf("Booking for %d slot(s) was cancelled", updated.SlotsRequested),
	})
	return updated, nil
}

// cancelConfirmed returns capacity first and then flips the status. A lost
// CAS takes the returned slots back so they are credited once.
func (s *BookingService) cancelConfirmed(ctx context.Context, b *domain.Booking) (*domain.Booking, error) {
	var updated *domain.Booking
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.inventory.Release(ctx, b.PackageID, b.SlotsRequested); err != nil {
			if errors.Is(err, domain.ErrCapacityOverflow) {
				return s.releaseRefused(ctx, b, err)
			}
			return err
		}
		cancelled, err := s.bookings.TransitionStatus(ctx, b.ID, domain.BookingStatusConfirmed, domain.BookingStatusCancelled)
		if err != nil {
			if errors.Is(err, domain.ErrStorageFailure) {
				return err
			}
			if _, resErr := s.inventory.Reserve(ctx, b.PackageID, b.SlotsRequested); resErr != nil {
				s.compensationFailed(b, "reserve", resErr)
				return errors.Join(err, resErr)
			}
			return err
		}
		updated = cancelled
		return nil
	})
	return updated, err
}

// releaseRefused handles a release the store would not apply. Usually a
// concurrent cancel already credited the slots; otherwise the counters
// have drifted and the booking is left untouched.
func (s *BookingService) releaseRefused(ctx context.Context, b *domain.Booking, cause error) error {
	latest, err := s.bookings.GetByID(ctx, b.ID)
	if err == nil && latest.Status != domain.BookingStatusConfirmed {
		return fmt.Errorf("%w: booking %s is now %s", domain.ErrConflict, b.ID, latest.Status)
	}
	s.log.WithError(cause).WithFields(logrus.Fields{
		"booking_id": b.ID,
		"package_id": b.PackageID,
		"slots":      b.SlotsRequested,
	}).Error("Release refused for confirmed booking")
	return fmt.Errorf("%w: release refused for booking %s: %w", domain.ErrConflict, b.ID, cause)
}

func (s *BookingService) GetBooking(ctx context.Context, caller domain.Party, bookingID string) (*domain.Booking, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, storageFailure("get booking", err)
	}
	if !b.IsParty(caller) {
		return nil, fmt.Errorf("%w: caller is not a party to booking %s", domain.ErrUnauthorized, b.ID)
	}
	return b, nil
}

// ListBookings scopes the filter to the caller: travelers see their own
// bookings, agencies the bookings on their packages.
func (s *BookingService) ListBookings(ctx context.Context, caller domain.Party, filter domain.BookingFilter) ([]domain.Booking, error) {
	switch caller.Type {
	case domain.PartyTraveler:
		filter.TravelerID = caller.ID
	case domain.PartyAgency:
		filter.AgencyID = caller.ID
	default:
		return nil, fmt.Errorf("%w: unknown caller", domain.ErrUnauthorized)
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: invalid booking status %q", domain.ErrInvalidInput, filter.Status)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	list, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, storageFailure("list bookings", err)
	}
	return list, nil
}

// WithdrawPackage takes a package off sale: it is refused while confirmed
// bookings exist, otherwise pending requests are cancelled and the package
// is deleted. All of it is one transaction. Deactivating first locks the
// package, so no accept can confirm a booking between the check and the
// delete, and a refusal leaves the package exactly as it was.
func (s *BookingService) WithdrawPackage(ctx context.Context, caller domain.Party, packageID string) error {
	if !caller.IsAgency() {
		return fmt.Errorf("%w: only agencies withdraw packages", domain.ErrUnauthorized)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	pkg, err := s.inventory.GetPackage(ctx, packageID)
	if err != nil {
		return storageFailure("get package", err)
	}
	if pkg.AgencyID != caller.ID {
		return fmt.Errorf("%w: package belongs to another agency", domain.ErrUnauthorized)
	}

	var cancelled []*domain.Booking
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		cancelled = nil
		if err := s.inventory.Deactivate(ctx, pkg.ID); err != nil {
			return err
		}
		held, err := s.bookings.SumConfirmedSlots(ctx, pkg.ID)
		if err != nil {
			return err
		}
		if held > 0 {
			return fmt.Errorf("%w: %d slot(s) confirmed", domain.ErrPackageInUse, held)
		}

		pending, err := s.bookings.List(ctx, domain.BookingFilter{PackageID: pkg.ID, Status: domain.BookingStatusPending})
		if err != nil {
			return err
		}
		for _, b := range pending {
			updated, err := s.bookings.TransitionStatus(ctx, b.ID, domain.BookingStatusPending, domain.BookingStatusCancelled)
			if err != nil {
				if errors.Is(err, domain.ErrConflict) {
					continue
				}
				return err
			}
			cancelled = append(cancelled, updated)
		}
		return s.inventory.Remove(ctx, pkg.ID)
	})
	if err != nil {
		return storageFailure("withdraw package", err)
	}
	s.inventory.InvalidateAvailability(ctx, pkg.ID)

	for _, b := range cancelled {
		s.notify(ctx, domain.NotificationInput{
			Kind:      domain.NotificationBookingCancelled,
			Sender:    caller,
			Recipient: domain.Traveler(b.TravelerID),
			BookingID: b.ID,
			Message:   fmt.Sprintf("Package %q was withdrawn and your booking was cancelled", pkg.Title),
		})
	}
	s.log.WithFields(logrus.Fields{
		"package_id": pkg.ID,
		"cancelled":  len(cancelled),
	}).Info("Package withdrawn")
	return nil
}

// lockDecision returns ErrConflict when another decision on the booking
// holds the lock. An unreachable lock store is logged and skipped.
func (s *BookingService) lockDecision(ctx context.Context, bookingID string) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	token, ok, err := s.locks.AcquireDecisionLock(ctx, bookingID, s.lockTTL)
	if err != nil {
		s.log.WithError(err).WithField("booking_id", bookingID).Warn("Decision lock unavailable")
		return func() {}, nil
	}
	if !ok {
		return nil, fmt.Errorf("%w: booking %s is being decided", domain.ErrConflict, bookingID)
	}
	return func() {
		if err := s.locks.ReleaseDecisionLock(context.WithoutCancel(ctx), bookingID, token); err != nil {
			s.log.WithError(err).WithField("booking_id", bookingID).Warn("Failed to release decision lock")
		}
	}, nil
}

// notify runs after the transition is stored; its failure never changes
// the transition's outcome.
func (s *BookingService) notify(ctx context.Context, input domain.NotificationInput) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Emit(ctx, input); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"booking_id": input.BookingID,
			"kind":       input.Kind,
			"recipient":  input.Recipient.String(),
		}).Error("Failed to emit notification")
	}
}

func (s *BookingService) compensationFailed(b *domain.Booking, step string, err error) {
	s.log.WithError(err).WithFields(logrus.Fields{
		"booking_id": b.ID,
		"package_id": b.PackageID,
		"slots":      b.SlotsRequested,
		"step":       step,
	}).Error("Compensation failed, capacity needs audit")
}

func (s *BookingService) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// storageFailure reports a bare context error from the store as a storage
// failure. Everything else passes through unchanged.
func storageFailure(op string, err error) error {
	if errors.Is(err, domain.ErrStorageFailure) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.StorageError(op, err)
	}
	return err
}

var _ BookingUseCase = (*BookingService)(nil)
