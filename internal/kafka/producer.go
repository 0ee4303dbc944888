package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// NotificationMessage is the wire form of a persisted notification.
type NotificationMessage struct {
	ID            string                  `json:"id"`
	Kind          domain.NotificationKind `json:"kind"`
	RecipientType domain.PartyType        `json:"recipient_type"`
	RecipientID   string                  `json:"recipient_id"`
	SenderType    domain.PartyType        `json:"sender_type"`
	SenderID      string                  `json:"sender_id"`
	BookingID     string                  `json:"booking_id"`
	Message       string                  `json:"message"`
	CreatedAt     time.Time               `json:"created_at"`
}

func NewNotificationMessage(n *domain.Notification) NotificationMessage {
	return NotificationMessage{
		ID:            n.ID,
		Kind:          n.Kind,
		RecipientType: n.Recipient.Type,
		RecipientID:   n.Recipient.ID,
		SenderType:    n.Sender.Type,
		SenderID:      n.Sender.ID,
		BookingID:     n.BookingID,
		Message:       n.Message,
		CreatedAt:     n.CreatedAt,
	}
}

type Producer struct {
	brokers []string
	writer  *kafka.Writer
	log     *logrus.Logger
}

func NewProducer(brokers []string, log *logrus.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{
		brokers: brokers,
		writer:  writer,
		log:     log,
	}
}

// Publish writes payload as JSON. Messages are keyed so that every event of
// one recipient lands on the same partition, in order.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.log.WithFields(logrus.Fields{"topic": topic, "key": key}).Debug("Published to Kafka")
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// CheckConnection dials the first broker and lists partitions.
func (p *Producer) CheckConnection(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return fmt.Errorf("no Kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("failed to read partitions: %w", err)
	}

	p.log.WithField("partitions", len(partitions)).Info("Connected to Kafka")
	return nil
}
