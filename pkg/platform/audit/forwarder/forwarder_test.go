package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	id "amlcore/pkg/domain"
	audit "amlcore/pkg/platform/audit"
)

// fakeProducer buffers records like kgo does; promises run only on Deliver.
type fakeProducer struct {
	records  []*kgo.Record
	contexts []context.Context
	promises []func(*kgo.Record, error)
}

func (p *fakeProducer) TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	p.records = append(p.records, r)
	p.contexts = append(p.contexts, ctx)
	p.promises = append(p.promises, promise)
}

func (p *fakeProducer) Deliver(err error) {
	for i, promise := range p.promises {
		promise(p.records[i], err)
	}
	p.promises = nil
}

type deliveryFailure struct {
	entry audit.Entry
	err   error
}

func TestForwardKeysByOperation(t *testing.T) {
	producer := &fakeProducer{}
	f := New(producer, "amlcore.audit")
	entry := audit.Entry{
		ID:          id.NewAuditEntryID(),
		OperationID: id.NewOperationID(),
		Action:      audit.ActionCreate,
		Amount:      decimal.RequireFromString("100"),
		Currency:    "MXN",
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ContentHash: "deadbeef",
	}

	require.NoError(t, f.Forward(context.Background(), entry))
	require.Len(t, producer.records, 1)
	producer.Deliver(nil)

	rec := producer.records[0]
	assert.Equal(t, "amlcore.audit", rec.Topic)
	assert.Equal(t, entry.OperationID.String(), string(rec.Key))

	var msg message
	require.NoError(t, json.Unmarshal(rec.Value, &msg))
	assert.Equal(t, "100.00", msg.Amount)
	assert.Equal(t, "CREATE", msg.Action)
	assert.Equal(t, "deadbeef", msg.ContentHash)
}

func TestForwardReturnsBeforeAcknowledgement(t *testing.T) {
	producer := &fakeProducer{}
	var failures []deliveryFailure
	f := New(producer, "amlcore.audit", WithDeliveryHook(func(e audit.Entry, err error) {
		failures = append(failures, deliveryFailure{entry: e, err: err})
	}))
	entry := audit.Entry{ID: id.NewAuditEntryID(), Action: audit.ActionEdit}

	require.NoError(t, f.Forward(context.Background(), entry))
	assert.Len(t, producer.records, 1, "record is buffered")
	assert.Empty(t, failures, "nothing is reported before the broker answers")

	producer.Deliver(errors.New("not leader"))

	require.Len(t, failures, 1)
	assert.Equal(t, entry.ID, failures[0].entry.ID)
	assert.Contains(t, failures[0].err.Error(), "not leader")
}

func TestSuccessfulDeliveryIsNotReported(t *testing.T) {
	producer := &fakeProducer{}
	calls := 0
	f := New(producer, "amlcore.audit", WithDeliveryHook(func(audit.Entry, error) { calls++ }))

	require.NoError(t, f.Forward(context.Background(), audit.Entry{Action: audit.ActionCreate}))
	producer.Deliver(nil)

	assert.Zero(t, calls)
}

func TestDeliveryOutlivesRequestContext(t *testing.T) {
	producer := &fakeProducer{}
	f := New(producer, "amlcore.audit")
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, f.Forward(ctx, audit.Entry{Action: audit.ActionDelete}))
	cancel()

	require.Len(t, producer.contexts, 1)
	assert.NoError(t, producer.contexts[0].Err())
}
