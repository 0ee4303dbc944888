// Package memory keeps packages, bookings and notifications in process.
// Every capacity or status change is a guarded update under the owning
// entry's lock, mirroring the conditional UPDATEs of the Postgres stores.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/repository"
)

type Store struct {
	mu            sync.RWMutex
	packages      map[string]*packageEntry
	bookings      map[string]*bookingEntry
	notifications map[string]*notificationEntry
	agencies      map[string]bool
	now           func() time.Time
}

type packageEntry struct {
	mu  sync.Mutex
	pkg domain.Package
}

type bookingEntry struct {
	mu      sync.Mutex
	booking domain.Booking
}

type notificationEntry struct {
	mu sync.Mutex
	n  domain.Notification
}

func NewStore() *Store {
	return &Store{
		packages:      make(map[string]*packageEntry),
		bookings:      make(map[string]*bookingEntry),
		notifications: make(map[string]*notificationEntry),
		agencies:      make(map[string]bool),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithTx gives fn the isolation of a database transaction for package
// rows: the first write to a package inside fn locks it until fn returns,
// so nobody observes or spends an intermediate counter value. When fn
// fails, every package it wrote is restored. Booking changes are not
// rolled back; callers compensate for those explicitly.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return domain.StorageError("begin tx", err)
	}
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx := &txState{held: make(map[*packageEntry]domain.Package)}
	err := fn(context.WithValue(ctx, txKey{}, tx))
	for e, before := range tx.held {
		if err != nil {
			e.pkg = before
		}
		e.mu.Unlock()
	}
	return err
}

type txKey struct{}

// txState records the packages locked by one transaction together with
// their state before the first write.
type txState struct {
	held map[*packageEntry]domain.Package
}

func txFromContext(ctx context.Context) *txState {
	tx, _ := ctx.Value(txKey{}).(*txState)
	return tx
}

// lockPackage locks e and returns the matching unlock. A package already
// held by the caller's transaction is not locked again. Inside a
// transaction a lock taken for update is kept until the transaction ends.
func lockPackage(ctx context.Context, e *packageEntry, forUpdate bool) func() {
	tx := txFromContext(ctx)
	if tx != nil {
		if _, ok := tx.held[e]; ok {
			return func() {}
		}
	}
	e.mu.Lock()
	if tx != nil && forUpdate {
		tx.held[e] = e.pkg
		return func() {}
	}
	return e.mu.Unlock
}

func (s *Store) packageEntry(id string) (*packageEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.packages[id]
	return e, ok
}

func (s *Store) bookingEntry(id string) (*bookingEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.bookings[id]
	return e, ok
}

func checkCtx(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return domain.StorageError(op, err)
	}
	return nil
}

var _ repository.Transactor = (*Store)(nil)
