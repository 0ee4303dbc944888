package notification

import (
	"context"
	"fmt"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/kafka"
	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/Domenick1991/tourbooking/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type NotificationUseCase interface {
	Emit(ctx context.Context, input domain.NotificationInput) (*domain.Notification, error)
	MarkRead(ctx context.Context, caller domain.Party, id string) (*domain.Notification, error)
	ListFor(ctx context.Context, recipient domain.Party, unreadOnly bool) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipient domain.Party) (int, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type NotificationService struct {
	repo     repository.NotificationRepository
	producer Producer
	topic    string
	log      *logrus.Logger
}

type Option func(*NotificationService)

// WithPublisher fans persisted notifications out on topic.
func WithPublisher(producer Producer, topic string) Option {
	return func(s *NotificationService) {
		s.producer = producer
		s.topic = topic
	}
}

func WithLogger(log *logrus.Logger) Option {
	return func(s *NotificationService) {
		s.log = log
	}
}

func NewNotificationService(repo repository.NotificationRepository, opts ...Option) *NotificationService {
	s := &NotificationService{repo: repo, log: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit persists the event and then publishes it. The store write is the
// outcome of the call; a failed publish is only logged.
func (s *NotificationService) Emit(ctx context.Context, input domain.NotificationInput) (*domain.Notification, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	n := &domain.Notification{
		ID:        uuid.NewString(),
		Recipient: input.Recipient,
		Sender:    input.Sender,
		Kind:      input.Kind,
		BookingID: input.BookingID,
		Message:   input.Message,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}

	if s.producer != nil && s.topic != "" {
		if err := s.producer.Publish(ctx, s.topic, n.Recipient.String(), kafka.NewNotificationMessage(n)); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"notification_id": n.ID,
				"kind":            n.Kind,
				"recipient":       n.Recipient.String(),
			}).Warn("Failed to publish notification")
		}
	}
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, caller domain.Party, id string) (*domain.Notification, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrInvalidInput)
	}
	return s.repo.MarkRead(ctx, id, caller)
}

func (s *NotificationService) ListFor(ctx context.Context, recipient domain.Party, unreadOnly bool) ([]domain.Notification, error) {
	return s.repo.ListFor(ctx, recipient, unreadOnly)
}

func (s *NotificationService) CountUnread(ctx context.Context, recipient domain.Party) (int, error) {
	return s.repo.CountUnread(ctx, recipient)
}

var _ NotificationUseCase = (*NotificationService)(nil)
