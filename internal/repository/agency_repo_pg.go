package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AgencyRepository reads agency activity maintained by the account
// service. An agency without a record is treated as active.
type AgencyRepository interface {
	IsActive(ctx context.Context, agencyID string) (bool, error)
}

type PGAgencyRepository struct {
	db *pgxpool.Pool
}

func NewAgencyRepository(db *pgxpool.Pool) AgencyRepository {
	return &PGAgencyRepository{db: db}
}

func (r *PGAgencyRepository) IsActive(ctx context.Context, agencyID string) (bool, error) {
	var active bool
	err := conn(ctx, r.db).QueryRow(ctx, `SELECT active FROM agencies WHERE id=$1`, agencyID).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		if isInvalidUUID(err) {
			return false, fmt.Errorf("%w: malformed agency id", domain.ErrInvalidInput)
		}
		return false, domain.StorageError("get agency status", err)
	}
	return active, nil
}

var _ AgencyRepository = (*PGAgencyRepository)(nil)
