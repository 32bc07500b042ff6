// Package events publishes selected-pharmacy events so other parts of the
// application (order panel, analytics) can react to a selection.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cosmomed/pharmacy-locator/interfaces"
	"github.com/cosmomed/pharmacy-locator/logging"
	"github.com/cosmomed/pharmacy-locator/pharmacy"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	eventSource          = "cosmomed/pharmacy-locator"
	TypePharmacySelected = "pharmacy.selected"
)

var (
	_ interfaces.Publisher = (*KafkaPublisher)(nil)
	_ interfaces.Publisher = LogPublisher{}
)

// Envelope is the CloudEvents-style wrapper put on the wire.
type Envelope struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`
}

// NewEnvelope wraps data as an event of eventType.
func NewEnvelope(eventType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return Envelope{
		SpecVersion:     "1.0",
		ID:              uuid.NewString(),
		Source:          eventSource,
		Type:            eventType,
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            raw,
	}, nil
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes selection events to a Kafka topic, keyed by
// pharmacy id so events for one pharmacy stay ordered.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher returns a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

// PublishSelection implements interfaces.Publisher.
func (p *KafkaPublisher) PublishSelection(ctx context.Context, evt pharmacy.SelectionEvent) error {
	env, err := NewEnvelope(TypePharmacySelected, evt)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(evt.PharmacyID),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "ce_type", Value: []byte(env.Type)},
			{Key: "ce_id", Value: []byte(env.ID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher records selection events in the service log. It is used when
// no brokers are configured.
type LogPublisher struct{}

// PublishSelection implements interfaces.Publisher.
func (LogPublisher) PublishSelection(_ context.Context, evt pharmacy.SelectionEvent) error {
	logging.Info("Pharmacy selected",
		"session_id", evt.SessionID,
		"pharmacy_id", evt.PharmacyID,
		"role", evt.Role,
		"order_panel", evt.OrderPanel,
	)
	return nil
}

// Close implements interfaces.Publisher.
func (LogPublisher) Close() error { return nil }
