// Package delivery hands notification messages to the recipient's channel.
// The only channel today is the structured log stream consumed by the
// push gateway.
package delivery

import (
	"context"
	"fmt"

	"github.com/Domenick1991/tourbooking/internal/kafka"
	"github.com/sirupsen/logrus"
)

type Sender struct {
	log *logrus.Logger
}

func NewSender(log *logrus.Logger) *Sender {
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, event kafka.NotificationMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.RecipientID == "" {
		return fmt.Errorf("notification %s has no recipient", event.ID)
	}
	s.log.WithFields(logrus.Fields{
		"notification_id": event.ID,
		"kind":            event.Kind,
		"recipient":       fmt.Sprintf("%s:%s", event.RecipientType, event.RecipientID),
		"booking_id":      event.BookingID,
	}).Info(event.Message)
	return nil
}
