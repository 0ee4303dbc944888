package memory

import (
	"context"
	"sort"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/repository"
)

type NotificationRepository struct {
	store *Store
}

func NewNotificationRepository(store *Store) *NotificationRepository {
	return &NotificationRepository{store: store}
}

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if err := checkCtx(ctx, "create notification"); err != nil {
		return err
	}
	n.CreatedAt = r.store.now()

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.notifications[n.ID] = &notificationEntry{n: *n}
	return nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id string, recipient domain.Party) (*domain.Notification, error) {
	if err := checkCtx(ctx, "mark notification read"); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	e, ok := r.store.notifications[id]
	r.store.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotificationNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.n.Recipient != recipient {
		return nil, domain.ErrUnauthorized
	}
	e.n.Read = true
	n := e.n
	return &n, nil
}

func (r *NotificationRepository) ListFor(ctx context.Context, recipient domain.Party, unreadOnly bool) ([]domain.Notification, error) {
	if err := checkCtx(ctx, "list notifications"); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	entries := make([]*notificationEntry, 0)
	for _, e := range r.store.notifications {
		entries = append(entries, e)
	}
	r.store.mu.RUnlock()

	out := make([]domain.Notification, 0)
	for _, e := range entries {
		e.mu.Lock()
		n := e.n
		e.mu.Unlock()
		if n.Recipient != recipient || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, recipient domain.Party) (int, error) {
	unread, err := r.ListFor(ctx, recipient, true)
	if err != nil {
		return 0, err
	}
	return len(unread), nil
}

var _ repository.NotificationRepository = (*NotificationRepository)(nil)
