package memory

import (
	"context"
	"sort"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/repository"
)

type PackageRepository struct {
	store *Store
}

func NewPackageRepository(store *Store) *PackageRepository {
	return &PackageRepository{store: store}
}

func (r *PackageRepository) Create(ctx context.Context, pkg *domain.Package) error {
	if err := checkCtx(ctx, "create package"); err != nil {
		return err
	}
	now := r.store.now()
	pkg.CreatedAt, pkg.UpdatedAt = now, now

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.packages[pkg.ID] = &packageEntry{pkg: *pkg}
	return nil
}

func (r *PackageRepository) GetByID(ctx context.Context, id string) (*domain.Package, error) {
	if err := checkCtx(ctx, "get package"); err != nil {
		return nil, err
	}
	e, ok := r.store.packageEntry(id)
	if !ok {
		return nil, domain.ErrPackageNotFound
	}
	unlock := lockPackage(ctx, e, false)
	defer unlock()
	p := e.pkg
	return &p, nil
}

func (r *PackageRepository) List(ctx context.Context, filter domain.PackageFilter) ([]domain.Package, error) {
	if err := checkCtx(ctx, "list packages"); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	entries := make([]*packageEntry, 0, len(r.store.packages))
	for _, e := range r.store.packages {
		entries = append(entries, e)
	}
	r.store.mu.RUnlock()

	out := make([]domain.Package, 0, len(entries))
	for _, e := range entries {
		unlock := lockPackage(ctx, e, false)
		p := e.pkg
		unlock()
		if filter.AgencyID != "" && p.AgencyID != filter.AgencyID {
			continue
		}
		if filter.ActiveOnly && !p.IsActive() {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *PackageRepository) GetAvailability(ctx context.Context, id string) (domain.Availability, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return domain.Availability{}, err
	}
	return p.Availability(), nil
}

func (r *PackageRepository) Reserve(ctx context.Context, id string, quantity int) (domain.Availability, error) {
	return r.update(ctx, "reserve slots", id, func(p *domain.Package) error {
		if p.AvailableSlots < quantity {
			return domain.ErrInsufficientCapacity
		}
		p.AvailableSlots -= quantity
		return nil
	})
}

func (r *PackageRepository) Release(ctx context.Context, id string, quantity int) (domain.Availability, error) {
	return r.update(ctx, "release slots", id, func(p *domain.Package) error {
		if p.AvailableSlots+quantity > p.MaxSlots {
			return domain.ErrCapacityOverflow
		}
		p.AvailableSlots += quantity
		return nil
	})
}

func (r *PackageRepository) SetMaxSlots(ctx context.Context, id string, maxSlots int) (domain.Availability, error) {
	return r.update(ctx, "set max slots", id, func(p *domain.Package) error {
		available := p.AvailableSlots + (maxSlots - p.MaxSlots)
		if available < 0 {
			return domain.ErrInvalidMaxSlots
		}
		p.MaxSlots, p.AvailableSlots = maxSlots, available
		return nil
	})
}

func (r *PackageRepository) SetStatus(ctx context.Context, id string, status domain.PackageStatus) error {
	_, err := r.update(ctx, "set package status", id, func(p *domain.Package) error {
		p.Status = status
		return nil
	})
	return err
}

func (r *PackageRepository) update(ctx context.Context, op, id string, apply func(p *domain.Package) error) (domain.Availability, error) {
	if err := checkCtx(ctx, op); err != nil {
		return domain.Availability{}, err
	}
	e, ok := r.store.packageEntry(id)
	if !ok {
		return domain.Availability{}, domain.ErrPackageNotFound
	}
	unlock := lockPackage(ctx, e, true)
	defer unlock()
	if current, ok := r.store.packageEntry(id); !ok || current != e {
		return domain.Availability{}, domain.ErrPackageNotFound
	}

	next := e.pkg
	if err := apply(&next); err != nil {
		return domain.Availability{}, err
	}
	next.UpdatedAt = r.store.now()
	e.pkg = next
	return next.Availability(), nil
}

// Delete locks the package like any other write and then holds the store
// write lock, so no booking can be created or confirmed against the
// package while the guard is evaluated.
func (r *PackageRepository) Delete(ctx context.Context, id string) error {
	if err := checkCtx(ctx, "delete package"); err != nil {
		return err
	}
	e, ok := r.store.packageEntry(id)
	if !ok {
		return domain.ErrPackageNotFound
	}
	unlock := lockPackage(ctx, e, true)
	defer unlock()

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.packages[id] != e {
		return domain.ErrPackageNotFound
	}
	var owned []string
	for bid, be := range r.store.bookings {
		be.mu.Lock()
		b := be.booking
		be.mu.Unlock()
		if b.PackageID != id {
			continue
		}
		if b.Status == domain.BookingStatusConfirmed {
			return domain.ErrPackageInUse
		}
		owned = append(owned, bid)
	}
	for _, bid := range owned {
		delete(r.store.bookings, bid)
	}
	delete(r.store.packages, id)
	return nil
}

// CapacityReport locks every package before reading bookings. No
// transaction can be half way through a capacity change meanwhile, so
// counters and confirmed bookings come from one consistent point.
func (r *PackageRepository) CapacityReport(ctx context.Context) ([]domain.CapacityDrift, error) {
	if err := checkCtx(ctx, "capacity report"); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	ids := make([]string, 0, len(r.store.packages))
	entries := make(map[string]*packageEntry, len(r.store.packages))
	for id, e := range r.store.packages {
		ids = append(ids, id)
		entries[id] = e
	}
	r.store.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		unlock := lockPackage(ctx, entries[id], false)
		defer unlock()
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	confirmed := make(map[string]int)
	for _, be := range r.store.bookings {
		be.mu.Lock()
		if be.booking.Status == domain.BookingStatusConfirmed {
			confirmed[be.booking.PackageID] += be.booking.SlotsRequested
		}
		be.mu.Unlock()
	}

	report := make([]domain.CapacityDrift, 0, len(ids))
	for _, id := range ids {
		e := entries[id]
		if r.store.packages[id] != e {
			continue
		}
		report = append(report, domain.CapacityDrift{
			PackageID:      id,
			MaxSlots:       e.pkg.MaxSlots,
			AvailableSlots: e.pkg.AvailableSlots,
			ConfirmedSlots: confirmed[id],
		})
	}
	return report, nil
}

var _ repository.PackageRepository = (*PackageRepository)(nil)
