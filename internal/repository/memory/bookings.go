package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/repository"
)

type BookingRepository struct {
	store *Store
}

func NewBookingRepository(store *Store) *BookingRepository {
	return &BookingRepository{store: store}
}

func (r *BookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	if err := checkCtx(ctx, "create booking"); err != nil {
		return err
	}
	now := r.store.now()
	booking.CreatedAt, booking.UpdatedAt = now, now

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.packages[booking.PackageID]; !ok {
		return domain.ErrPackageNotFound
	}
	r.store.bookings[booking.ID] = &bookingEntry{booking: *booking}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	if err := checkCtx(ctx, "get booking"); err != nil {
		return nil, err
	}
	e, ok := r.store.bookingEntry(id)
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.booking
	return &b, nil
}

func (r *BookingRepository) List(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error) {
	if err := checkCtx(ctx, "list bookings"); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	entries := make([]*bookingEntry, 0, len(r.store.bookings))
	for _, e := range r.store.bookings {
		entries = append(entries, e)
	}
	r.store.mu.RUnlock()

	out := make([]domain.Booking, 0)
	for _, e := range entries {
		e.mu.Lock()
		b := e.booking
		e.mu.Unlock()
		if filter.Matches(&b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *BookingRepository) TransitionStatus(ctx context.Context, id string, expected, next domain.BookingStatus) (*domain.Booking, error) {
	if err := checkCtx(ctx, "transition booking status"); err != nil {
		return nil, err
	}
	if !expected.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, expected, next)
	}
	e, ok := r.store.bookingEntry(id)
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.booking.Status != expected {
		return nil, fmt.Errorf("%w: booking %s is no longer %s", domain.ErrConflict, id, expected)
	}
	e.booking.Status = next
	e.booking.UpdatedAt = r.store.now()
	b := e.booking
	return &b, nil
}

func (r *BookingRepository) SumConfirmedSlots(ctx context.Context, packageID string) (int, error) {
	confirmed, err := r.List(ctx, domain.BookingFilter{PackageID: packageID, Status: domain.BookingStatusConfirmed})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, b := range confirmed {
		total += b.SlotsRequested
	}
	return total, nil
}

var _ repository.BookingRepository = (*BookingRepository)(nil)
