package memory

import (
	"context"

	"github.com/Domenick1991/tourbooking/internal/repository"
)

type AgencyRepository struct {
	store *Store
}

func NewAgencyRepository(store *Store) *AgencyRepository {
	return &AgencyRepository{store: store}
}

func (r *AgencyRepository) IsActive(ctx context.Context, agencyID string) (bool, error) {
	if err := checkCtx(ctx, "get agency status"); err != nil {
		return false, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	active, ok := r.store.agencies[agencyID]
	if !ok {
		return true, nil
	}
	return active, nil
}

// SetActive records an agency (de)activation pushed by the account service.
func (r *AgencyRepository) SetActive(ctx context.Context, agencyID string, active bool) error {
	if err := checkCtx(ctx, "set agency status"); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.agencies[agencyID] = active
	return nil
}

var _ repository.AgencyRepository = (*AgencyRepository)(nil)
