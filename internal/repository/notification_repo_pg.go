package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	// MarkRead sets the read flag. Only the recipient may do so; anyone
	// else gets domain.ErrUnauthorized.
	MarkRead(ctx context.Context, id string, recipient domain.Party) (*domain.Notification, error)
	ListFor(ctx context.Context, recipient domain.Party, unreadOnly bool) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipient domain.Party) (int, error)
}

type PGNotificationRepository struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) NotificationRepository {
	return &PGNotificationRepository{db: db}
}

const notificationColumns = `id, recipient_type, recipient_id, sender_type, sender_id, kind, booking_id, message, is_read, created_at`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	if err := row.Scan(&n.ID, &n.Recipient.Type, &n.Recipient.ID, &n.Sender.Type, &n.Sender.ID,
		&n.Kind, &n.BookingID, &n.Message, &n.Read, &n.CreatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *PGNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	err := conn(ctx, r.db).QueryRow(ctx, `INSERT INTO notifications (id, recipient_type, recipient_id, sender_type, sender_id, kind, booking_id, message, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		n.ID, n.Recipient.Type, n.Recipient.ID, n.Sender.Type, n.Sender.ID, n.Kind, n.BookingID, n.Message, n.Read).
		Scan(&n.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return fmt.Errorf("%w: malformed id", domain.ErrInvalidInput)
		}
		return domain.StorageError("create notification", err)
	}
	return nil
}

func (r *PGNotificationRepository) MarkRead(ctx context.Context, id string, recipient domain.Party) (*domain.Notification, error) {
	n, err := scanNotification(conn(ctx, r.db).QueryRow(ctx, `UPDATE notifications SET is_read = TRUE
		WHERE id=$1 AND recipient_type=$2 AND recipient_id=$3
		RETURNING `+notificationColumns, id, recipient.Type, recipient.ID))
	if err == nil {
		return n, nil
	}
	if isInvalidUUID(err) {
		return nil, domain.ErrNotificationNotFound
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.StorageError("mark notification read", err)
	}

	var exists bool
	if err := conn(ctx, r.db).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notifications WHERE id=$1)`, id).Scan(&exists); err != nil {
		return nil, domain.StorageError("check notification", err)
	}
	if !exists {
		return nil, domain.ErrNotificationNotFound
	}
	return nil, domain.ErrUnauthorized
}

func (r *PGNotificationRepository) ListFor(ctx context.Context, recipient domain.Party, unreadOnly bool) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_type=$1 AND recipient_id=$2`
	if unreadOnly {
		query += ` AND NOT is_read`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := conn(ctx, r.db).Query(ctx, query, recipient.Type, recipient.ID)
	if err != nil {
		if isInvalidUUID(err) {
			return []domain.Notification{}, nil
		}
		return nil, domain.StorageError("list notifications", err)
	}
	defer rows.Close()

	out := make([]domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, domain.StorageError("scan notification", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("list notifications", err)
	}
	return out, nil
}

func (r *PGNotificationRepository) CountUnread(ctx context.Context, recipient domain.Party) (int, error) {
	var count int
	err := conn(ctx, r.db).QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_type=$1 AND recipient_id=$2 AND NOT is_read`,
		recipient.Type, recipient.ID).Scan(&count)
	if err != nil {
		if isInvalidUUID(err) {
			return 0, nil
		}
		return 0, domain.StorageError("count unread notifications", err)
	}
	return count, nil
}

var _ NotificationRepository = (*PGNotificationRepository)(nil)
