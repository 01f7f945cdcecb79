//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"amlcore/internal/platform/config"
	"amlcore/internal/platform/kafka"
	id "amlcore/pkg/domain"
	"amlcore/pkg/platform/audit"
	"amlcore/pkg/platform/audit/forwarder"
	"amlcore/pkg/testutil/containers"
)

func TestAuditEntriesReachTopic(t *testing.T) {
	rp := containers.GetManager().Redpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "amlcore.audit." + uuid.NewString()[:8]
	client, err := kafka.New(ctx, config.KafkaConfig{Brokers: []string{rp.Broker}, AuditTopic: topic})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	require.NoError(t, kafka.EnsureTopic(ctx, client, topic, 1, 1))
	require.NoError(t, kafka.EnsureTopic(ctx, client, topic, 1, 1), "existing topic is not an error")

	entry := audit.Entry{
		ID:          id.NewAuditEntryID(),
		ActorID:     id.OwnerID(uuid.New()),
		OperationID: id.NewOperationID(),
		ClientID:    id.ClientID(uuid.New()),
		Action:      audit.ActionDelete,
		Reason:      "duplicate capture",
		Folio:       "OP-2026-004",
		Amount:      decimal.RequireFromString("1500.00"),
		Currency:    "MXN",
		Timestamp:   time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	var undelivered []error
	fwd := forwarder.New(client, topic, forwarder.WithDeliveryHook(func(_ audit.Entry, err error) {
		undelivered = append(undelivered, err)
	}))
	require.NoError(t, fwd.Forward(ctx, entry))
	require.NoError(t, client.Flush(ctx))
	assert.Empty(t, undelivered)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.Len(t, records, 1)

	assert.Equal(t, entry.OperationID.String(), string(records[0].Key))
	var body map[string]any
	require.NoError(t, json.Unmarshal(records[0].Value, &body))
	assert.Equal(t, "DELETE", body["action"])
	assert.Equal(t, "OP-2026-004", body["folio"])
	assert.Equal(t, "1500.00", body["amount"])
}

func TestNewDisabledWithoutBrokers(t *testing.T) {
	client, err := kafka.New(context.Background(), config.KafkaConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}
