package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/models"
)

type Producer struct {
	Writer *kafka.Writer
	Topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer, Topic: topic}
}

// PublishCheckedIn streams one attendee check-in to the monitoring topic,
// keyed by registration so per-registration ordering survives partitioning.
func (p *Producer) PublishCheckedIn(event models.CheckInEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("%s:%d", event.RegistrationID, event.AttendeeIndex)

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(key),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
