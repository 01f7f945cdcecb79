// Package forwarder ships persisted audit entries to Kafka for downstream
// compliance archiving.
package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "amlcore/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client used to publish.
type Producer interface {
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// DeliveryHook observes an entry the broker did not acknowledge.
type DeliveryHook func(entry audit.Entry, err error)

// KafkaForwarder publishes entries keyed by operation id so every entry of
// one operation lands on the same partition in order.
//
// Forward does not wait for the broker: the record joins the client's
// bounded produce buffer and delivery is confirmed asynchronously, within
// the client's record delivery timeout. A full buffer drops the record and
// reports it through the DeliveryHook, so a slow broker never holds up the
// mutation that produced the entry.
type KafkaForwarder struct {
	producer  Producer
	topic     string
	onFailure DeliveryHook
}

// Option configures the KafkaForwarder.
type Option func(*KafkaForwarder)

// WithDeliveryHook sets the callback for entries that were not delivered.
func WithDeliveryHook(fn DeliveryHook) Option {
	return func(f *KafkaForwarder) {
		f.onFailure = fn
	}
}

// New creates a forwarder publishing to topic.
func New(producer Producer, topic string, opts ...Option) *KafkaForwarder {
	f := &KafkaForwarder{producer: producer, topic: topic}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type message struct {
	ID          string `json:"id"`
	ActorID     string `json:"actor_id"`
	OperationID string `json:"operation_id"`
	ClientID    string `json:"client_id"`
	Action      string `json:"action"`
	Reason      string `json:"reason"`
	Folio       string `json:"folio"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Timestamp   string `json:"timestamp"`
	ClientIP    string `json:"client_ip,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	Device      string `json:"device,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	ContentHash string `json:"content_hash"`
}

// Forward hands one entry to the producer buffer and returns. Only encoding
// errors are returned; delivery failures go to the DeliveryHook.
func (f *KafkaForwarder) Forward(ctx context.Context, e audit.Entry) error {
	payload, err := json.Marshal(message{
		ID:          e.ID.String(),
		ActorID:     e.ActorID.String(),
		OperationID: e.OperationID.String(),
		ClientID:    e.ClientID.String(),
		Action:      string(e.Action),
		Reason:      e.Reason,
		Folio:       e.Folio,
		Amount:      e.Amount.StringFixed(2),
		Currency:    e.Currency,
		Timestamp:   e.Timestamp.UTC().Format(time.RFC3339Nano),
		ClientIP:    e.ClientIP,
		UserAgent:   e.UserAgent,
		Device:      e.Device,
		RequestID:   e.RequestID,
		ContentHash: e.ContentHash,
	})
	if err != nil {
		return fmt.Errorf("marshal audit message: %w", err)
	}

	record := &kgo.Record{
		Topic: f.topic,
		Key:   []byte(e.OperationID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(e.Action)},
		},
	}
	// The request context ends with the response; delivery must outlive it.
	f.producer.TryProduce(context.WithoutCancel(ctx), record, func(_ *kgo.Record, err error) {
		if err != nil && f.onFailure != nil {
			f.onFailure(e, fmt.Errorf("produce audit message: %w", err))
		}
	})
	return nil
}
