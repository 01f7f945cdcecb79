// Package audit records an immutable trail of operation mutations.
//
// Recording is best-effort: the mutation it describes has already committed,
// so a failed write is reported through the logger, metrics and the returned
// Result, and never through an error that would fail the caller. During a
// storage outage the trail can therefore have gaps; the persist-failure
// counter is the signal to reconcile.
package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	id "amlcore/pkg/domain"
	"amlcore/pkg/requestcontext"
)

// Store persists audit entries. Implementations must be append-only.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByOperation(ctx context.Context, operationID id.OperationID) ([]Entry, error)
}

// Forwarder ships persisted entries to a downstream archive. Forward runs on
// the mutation's response path and must not wait for the archive.
type Forwarder interface {
	Forward(ctx context.Context, entry Entry) error
}

// Recorder writes one entry per mutating action.
type Recorder struct {
	store     Store
	forwarder Forwarder
	logger    *slog.Logger
	metrics   *Metrics
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithLogger sets the logger used as the warning channel for failed writes.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithForwarder forwards every persisted entry after it is stored.
func WithForwarder(f Forwarder) Option {
	return func(r *Recorder) {
		r.forwarder = f
	}
}

// NewRecorder creates a Recorder backed by store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProvenanceFromContext reads the caller provenance captured by the HTTP
// middleware.
func ProvenanceFromContext(ctx context.Context) Provenance {
	return Provenance{
		ClientIP:  requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		Device:    requestcontext.Device(ctx),
		RequestID: requestcontext.RequestID(ctx),
	}
}

// Record writes one entry for action on subject. It never returns an error;
// inspect Result when the outcome matters.
func (r *Recorder) Record(ctx context.Context, action Action, subject Subject, actor id.OwnerID, reason string, prov Provenance) Result {
	start := time.Now()

	if !action.IsValid() {
		return r.fail(ctx, action, subject, errors.New("unknown audit action"))
	}

	entry := Entry{
		ID:          id.NewAuditEntryID(),
		ActorID:     actor,
		OperationID: subject.OperationID,
		ClientID:    subject.ClientID,
		Action:      action,
		Reason:      reason,
		Folio:       subject.Folio,
		Amount:      subject.Amount,
		Currency:    subject.Currency,
		// Postgres keeps microseconds; truncating keeps the hash verifiable after a round trip.
		Timestamp: requestcontext.Now(ctx).Truncate(time.Microsecond),
		ClientIP:  prov.ClientIP,
		UserAgent: prov.UserAgent,
		Device:    prov.Device,
		RequestID: prov.RequestID,
	}
	hash, err := ContentHash(entry)
	if err != nil {
		return r.fail(ctx, action, subject, err)
	}
	entry.ContentHash = hash

	if err := r.store.Append(ctx, entry); err != nil {
		return r.fail(ctx, action, subject, err)
	}
	if r.metrics != nil {
		r.metrics.IncRecorded(action)
		r.metrics.ObservePersistDuration(time.Since(start).Seconds())
	}

	result := Result{EntryID: entry.ID, Persisted: true}
	if r.forwarder == nil {
		return result
	}
	if err := r.forwarder.Forward(ctx, entry); err != nil {
		if r.metrics != nil {
			r.metrics.IncForwardFailures()
		}
		r.logger.WarnContext(ctx, "audit entry persisted but not forwarded",
			"audit_entry_id", entry.ID,
			"operation_id", subject.OperationID,
			"error", err,
		)
		result.Err = err
		return result
	}
	result.Forwarded = true
	return result
}

func (r *Recorder) fail(ctx context.Context, action Action, subject Subject, err error) Result {
	if r.metrics != nil {
		r.metrics.IncPersistFailures(action)
	}
	r.logger.WarnContext(ctx, "audit entry not recorded; mutation already committed",
		"operation_id", subject.OperationID,
		"action", action,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	return Result{Err: err}
}

// Trail returns the entries of one operation, oldest first.
func (r *Recorder) Trail(ctx context.Context, operationID id.OperationID) ([]Entry, error) {
	return r.store.ListByOperation(ctx, operationID)
}
