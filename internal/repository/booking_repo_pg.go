package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BookingRepository owns booking status. It never touches package capacity.
type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	List(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error)
	// TransitionStatus moves a booking from expected to next only if the
	// stored status still equals expected, otherwise it fails with
	// domain.ErrConflict. A pair the state machine does not allow fails
	// with domain.ErrInvalidTransition before the store is touched.
	TransitionStatus(ctx context.Context, id string, expected, next domain.BookingStatus) (*domain.Booking, error)
	SumConfirmedSlots(ctx context.Context, packageID string) (int, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, traveler_id, package_id, agency_id, slots_requested, status, created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.TravelerID, &b.PackageID, &b.AgencyID, &b.SlotsRequested, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	err := conn(ctx, r.db).QueryRow(ctx, `INSERT INTO bookings (id, traveler_id, package_id, agency_id, slots_requested, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		booking.ID, booking.TravelerID, booking.PackageID, booking.AgencyID, booking.SlotsRequested, booking.Status).
		Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrPackageNotFound
		}
		if isInvalidUUID(err) {
			return fmt.Errorf("%w: malformed id", domain.ErrInvalidInput)
		}
		return domain.StorageError("create booking", err)
	}
	return nil
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := scanBooking(conn(ctx, r.db).QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, domain.StorageError("get booking", err)
	}
	return b, nil
}

func (r *PGBookingRepository) List(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error) {
	var (
		where []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if filter.Status != "" {
		add("status", filter.Status)
	}
	if filter.PackageID != "" {
		add("package_id", filter.PackageID)
	}
	if filter.TravelerID != "" {
		add("traveler_id", filter.TravelerID)
	}
	if filter.AgencyID != "" {
		add("agency_id", filter.AgencyID)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return []domain.Booking{}, nil
		}
		return nil, domain.StorageError("list bookings", err)
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, domain.StorageError("scan booking", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("list bookings", err)
	}
	return bookings, nil
}

func (r *PGBookingRepository) TransitionStatus(ctx context.Context, id string, expected, next domain.BookingStatus) (*domain.Booking, error) {
	if !expected.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, expected, next)
	}
	row := conn(ctx, r.db).QueryRow(ctx, `UPDATE bookings SET status=$3, updated_at=now()
		WHERE id=$1 AND status=$2
		RETURNING `+bookingColumns, id, expected, next)
	b, err := scanBooking(row)
	if err == nil {
		return b, nil
	}
	if isInvalidUUID(err) {
		return nil, domain.ErrBookingNotFound
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.StorageError("transition booking status", err)
	}

	var exists bool
	if err := conn(ctx, r.db).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id=$1)`, id).Scan(&exists); err != nil {
		return nil, domain.StorageError("check booking", err)
	}
	if !exists {
		return nil, domain.ErrBookingNotFound
	}
	return nil, fmt.Errorf("%w: booking %s is no longer %s", domain.ErrConflict, id, expected)
}

func (r *PGBookingRepository) SumConfirmedSlots(ctx context.Context, packageID string) (int, error) {
	var total int
	err := conn(ctx, r.db).QueryRow(ctx, `SELECT COALESCE(SUM(slots_requested), 0) FROM bookings WHERE status=$1 AND package_id=$2`,
		domain.BookingStatusConfirmed, packageID).Scan(&total)
	if err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrPackageNotFound
		}
		return 0, domain.StorageError("sum confirmed slots", err)
	}
	return total, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
