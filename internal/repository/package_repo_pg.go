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

// PackageRepository is the only writer of a package's capacity counters.
// Reserve, Release and SetMaxSlots are single conditional updates, so they
// stay atomic across server instances without any in-process locking.
type PackageRepository interface {
	Create(ctx context.Context, pkg *domain.Package) error
	GetByID(ctx context.Context, id string) (*domain.Package, error)
	List(ctx context.Context, filter domain.PackageFilter) ([]domain.Package, error)
	GetAvailability(ctx context.Context, id string) (domain.Availability, error)
	Reserve(ctx context.Context, id string, quantity int) (domain.Availability, error)
	Release(ctx context.Context, id string, quantity int) (domain.Availability, error)
	SetMaxSlots(ctx context.Context, id string, maxSlots int) (domain.Availability, error)
	SetStatus(ctx context.Context, id string, status domain.PackageStatus) error
	Delete(ctx context.Context, id string) error
	CapacityReport(ctx context.Context) ([]domain.CapacityDrift, error)
}

type PGPackageRepository struct {
	db *pgxpool.Pool
}

func NewPackageRepository(db *pgxpool.Pool) PackageRepository {
	return &PGPackageRepository{db: db}
}

const packageColumns = `id, agency_id, title, main_location, from_location, to_location, start_date, end_date, price_cents, max_slots, available_slots, status, created_at, updated_at`

func scanPackage(row pgx.Row) (*domain.Package, error) {
	var p domain.Package
	if err := row.Scan(&p.ID, &p.AgencyID, &p.Title, &p.MainLocation, &p.FromLocation, &p.ToLocation,
		&p.StartDate, &p.EndDate, &p.PriceCents, &p.MaxSlots, &p.AvailableSlots, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PGPackageRepository) Create(ctx context.Context, pkg *domain.Package) error {
	err := conn(ctx, r.db).QueryRow(ctx, `INSERT INTO packages (id, agency_id, title, main_location, from_location, to_location, start_date, end_date, price_cents, max_slots, available_slots, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		pkg.ID, pkg.AgencyID, pkg.Title, pkg.MainLocation, pkg.FromLocation, pkg.ToLocation,
		pkg.StartDate, pkg.EndDate, pkg.PriceCents, pkg.MaxSlots, pkg.AvailableSlots, pkg.Status).
		Scan(&pkg.CreatedAt, &pkg.UpdatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return fmt.Errorf("%w: malformed id", domain.ErrInvalidInput)
		}
		return domain.StorageError("create package", err)
	}
	return nil
}

func (r *PGPackageRepository) GetByID(ctx context.Context, id string) (*domain.Package, error) {
	p, err := scanPackage(conn(ctx, r.db).QueryRow(ctx, `SELECT `+packageColumns+` FROM packages WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, domain.ErrPackageNotFound
		}
		return nil, domain.StorageError("get package", err)
	}
	return p, nil
}

func (r *PGPackageRepository) List(ctx context.Context, filter domain.PackageFilter) ([]domain.Package, error) {
	var (
		where []string
		args  []any
	)
	if filter.AgencyID != "" {
		args = append(args, filter.AgencyID)
		where = append(where, fmt.Sprintf("agency_id=$%d", len(args)))
	}
	if filter.ActiveOnly {
		args = append(args, domain.PackageStatusActive)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	query := `SELECT ` + packageColumns + ` FROM packages`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return []domain.Package{}, nil
		}
		return nil, domain.StorageError("list packages", err)
	}
	defer rows.Close()

	packages := make([]domain.Package, 0)
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, domain.StorageError("scan package", err)
		}
		packages = append(packages, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("list packages", err)
	}
	return packages, nil
}

func (r *PGPackageRepository) GetAvailability(ctx context.Context, id string) (domain.Availability, error) {
	a := domain.Availability{PackageID: id}
	err := conn(ctx, r.db).QueryRow(ctx, `SELECT max_slots, available_slots FROM packages WHERE id=$1`, id).
		Scan(&a.MaxSlots, &a.AvailableSlots)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return domain.Availability{}, domain.ErrPackageNotFound
		}
		return domain.Availability{}, domain.StorageError("get availability", err)
	}
	return a, nil
}

func (r *PGPackageRepository) Reserve(ctx context.Context, id string, quantity int) (domain.Availability, error) {
	a, err := r.updateCapacity(ctx, "reserve slots",
		`UPDATE packages SET available_slots = available_slots - $2, updated_at = now()
		WHERE id=$1 AND available_slots >= $2
		RETURNING max_slots, available_slots`, id, quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Availability{}, r.missOr(ctx, id, domain.ErrInsufficientCapacity)
	}
	return a, err
}

func (r *PGPackageRepository) Release(ctx context.Context, id string, quantity int) (domain.Availability, error) {
	a, err := r.updateCapacity(ctx, "release slots",
		`UPDATE packages SET available_slots = available_slots + $2, updated_at = now()
		WHERE id=$1 AND available_slots + $2 <= max_slots
		RETURNING max_slots, available_slots`, id, quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Availability{}, r.missOr(ctx, id, domain.ErrCapacityOverflow)
	}
	return a, err
}

// SetMaxSlots shifts available_slots by the same delta as max_slots, which
// keeps the slots held by confirmed bookings unchanged.
func (r *PGPackageRepository) SetMaxSlots(ctx context.Context, id string, maxSlots int) (domain.Availability, error) {
	a, err := r.updateCapacity(ctx, "set max slots",
		`UPDATE packages SET available_slots = available_slots + ($2 - max_slots), max_slots = $2, updated_at = now()
		WHERE id=$1 AND available_slots + ($2 - max_slots) >= 0
		RETURNING max_slots, available_slots`, id, maxSlots)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Availability{}, r.missOr(ctx, id, domain.ErrInvalidMaxSlots)
	}
	return a, err
}

func (r *PGPackageRepository) updateCapacity(ctx context.Context, op, stmt, id string, n int) (domain.Availability, error) {
	a := domain.Availability{PackageID: id}
	err := conn(ctx, r.db).QueryRow(ctx, stmt, id, n).Scan(&a.MaxSlots, &a.AvailableSlots)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Availability{}, pgx.ErrNoRows
		}
		if isInvalidUUID(err) {
			return domain.Availability{}, domain.ErrPackageNotFound
		}
		return domain.Availability{}, domain.StorageError(op, err)
	}
	return a, nil
}

func (r *PGPackageRepository) SetStatus(ctx context.Context, id string, status domain.PackageStatus) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `UPDATE packages SET status=$2, updated_at = now() WHERE id=$1`, id, status)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrPackageNotFound
		}
		return domain.StorageError("set package status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPackageNotFound
	}
	return nil
}

func (r *PGPackageRepository) Delete(ctx context.Context, id string) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM packages p WHERE p.id=$1
		AND NOT EXISTS (SELECT 1 FROM bookings b WHERE b.package_id = p.id AND b.status = $2)`,
		id, domain.BookingStatusConfirmed)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrPackageNotFound
		}
		if isForeignKeyViolation(err) {
			return domain.ErrPackageInUse
		}
		return domain.StorageError("delete package", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOr(ctx, id, domain.ErrPackageInUse)
	}
	return nil
}

func (r *PGPackageRepository) CapacityReport(ctx context.Context) ([]domain.CapacityDrift, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT p.id, p.max_slots, p.available_slots,
			COALESCE(SUM(b.slots_requested) FILTER (WHERE b.status = $1), 0)
		FROM packages p
		LEFT JOIN bookings b ON b.package_id = p.id
		GROUP BY p.id, p.max_slots, p.available_slots
		ORDER BY p.id`, domain.BookingStatusConfirmed)
	if err != nil {
		return nil, domain.StorageError("capacity report", err)
	}
	defer rows.Close()

	report := make([]domain.CapacityDrift, 0)
	for rows.Next() {
		var d domain.CapacityDrift
		if err := rows.Scan(&d.PackageID, &d.MaxSlots, &d.AvailableSlots, &d.ConfirmedSlots); err != nil {
			return nil, domain.StorageError("scan capacity report", err)
		}
		report = append(report, d)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("capacity report", err)
	}
	return report, nil
}

// missOr resolves a conditional update that touched no row: the package is
// either gone or the guard refused the change.
func (r *PGPackageRepository) missOr(ctx context.Context, id string, guardErr error) error {
	var exists bool
	if err := conn(ctx, r.db).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM packages WHERE id=$1)`, id).Scan(&exists); err != nil {
		return domain.StorageError("check package", err)
	}
	if !exists {
		return domain.ErrPackageNotFound
	}
	return guardErr
}

var _ PackageRepository = (*PGPackageRepository)(nil)
