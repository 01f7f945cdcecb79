package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"amlcore/internal/operations/folio"
	"amlcore/internal/operations/metrics"
	"amlcore/internal/operations/models"
	id "amlcore/pkg/domain"
	dErrors "amlcore/pkg/domain-errors"
	"amlcore/pkg/platform/audit"
	"amlcore/pkg/platform/sentinel"
	"amlcore/pkg/requestcontext"
)

// Store persists operations. Every lookup is scoped by owner.
type Store interface {
	NextSequence(ctx context.Context, ownerID id.OwnerID, year int) (int, error)
	Insert(ctx context.Context, op *models.Operation) error
	Update(ctx context.Context, op *models.Operation) error
	FindByID(ctx context.Context, ownerID id.OwnerID, opID id.OperationID) (*models.Operation, error)
	FindByIDForUpdate(ctx context.Context, ownerID id.OwnerID, opID id.OperationID) (*models.Operation, error)
	History(ctx context.Context, ownerID id.OwnerID, clientID id.ClientID, from, to time.Time) ([]models.HistoryEntry, error)
	ListByClient(ctx context.Context, ownerID id.OwnerID, clientID id.ClientID, limit int) ([]*models.Operation, error)
}

// TxRunner runs fn in one store transaction carried by ctx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Normalizer converts amounts into the reporting currency.
type Normalizer interface {
	Supports(code string) bool
	Normalize(ctx context.Context, amount decimal.Decimal, code string) (models.Normalization, error)
}

// Classifier evaluates the AML rules.
type Classifier interface {
	Window(now time.Time) (from, to time.Time)
	Classify(op *models.Operation, history []models.HistoryEntry, now time.Time) models.ClassificationResult
}

// Auditor records the audit trail. Record never fails the caller.
type Auditor interface {
	Record(ctx context.Context, action audit.Action, subject audit.Subject, actor id.OwnerID, reason string, prov audit.Provenance) audit.Result
	Trail(ctx context.Context, operationID id.OperationID) ([]audit.Entry, error)
}

const (
	// DefaultPageSize bounds List.
	DefaultPageSize = 100
	// DefaultEditReason is recorded when an edit carries no reason.
	DefaultEditReason = "Operation updated"

	createReason = "Operation created"
)

// Service coordinates normalization, folio allocation, persistence,
// classification and auditing of operations.
type Service struct {
	store      Store
	tx         TxRunner
	sequencer  *folio.Sequencer
	normalizer Normalizer
	classifier Classifier
	auditor    Auditor
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	location   *time.Location
	pageSize   int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithLocation sets the jurisdiction time zone for system timestamps.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// New constructs a Service.
func New(store Store, tx TxRunner, sequencer *folio.Sequencer, normalizer Normalizer, classifier Classifier, auditor Auditor, opts ...Option) *Service {
	s := &Service{
		store:      store,
		tx:         tx,
		sequencer:  sequencer,
		normalizer: normalizer,
		classifier: classifier,
		auditor:    auditor,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:     otel.Tracer("amlcore/operations"),
		location:   time.UTC,
		pageSize:   DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates fields, allocates a folio and persists a classified
// operation in one transaction, then records a CREATE audit entry.
func (s *Service) Create(ctx context.Context, ownerID id.OwnerID, fields models.Fields) (*models.Operation, error) {
	ctx, span := s.tracer.Start(ctx, "operations.create")
	defer span.End()
	start := time.Now()

	op, err := s.create(ctx, ownerID, fields)
	s.finish(span, "create", start, err)
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.ActionCreate, op, ownerID, createReason)
	s.logger.InfoContext(ctx, "operation created",
		"operation_id", op.ID,
		"folio", op.Folio.String(),
		"classification", op.Classification,
		"rate_provenance", op.RateProvenance,
	)
	return op, nil
}

func (s *Service) create(ctx context.Context, ownerID id.OwnerID, fields models.Fields) (*models.Operation, error) {
	if ownerID.IsNil() {
		return nil, errOwnerRequired
	}
	fields.Normalize()
	if err := fields.Validate(s.normalizer.Supports); err != nil {
		return nil, err
	}
	norm, err := s.normalizer.Normalize(ctx, fields.Amount, fields.Currency)
	if err != nil {
		return nil, err
	}

	now := s.now(ctx)
	op := &models.Operation{
		ID:        id.NewOperationID(),
		OwnerID:   ownerID,
		CreatedAt: now,
		CreatedBy: ownerID,
		UpdatedAt: now,
		UpdatedBy: ownerID,
	}
	op.ApplyFields(fields)
	op.ApplyNormalization(norm)

	err = s.sequencer.Allocate(ctx, func(ctx context.Context) error {
		return s.tx.RunInTx(ctx, func(ctx context.Context) error {
			op.ApplyClassification(models.ClassificationResult{Classification: models.ClassificationNone})

			f, err := s.sequencer.NextFolio(ctx, s.store, ownerID, now.Year())
			if err != nil {
				return err
			}
			op.Folio = f
			if err := s.store.Insert(ctx, op); err != nil {
				return err
			}

			result, err := s.classify(ctx, op, now)
			if err != nil {
				return err
			}
			if result.Classification == models.ClassificationNone && !result.HasAlerts() {
				return nil
			}
			op.ApplyClassification(result)
			return s.store.Update(ctx, op)
		})
	})
	if err != nil {
		return nil, translate(err, "failed to create operation")
	}
	s.metrics.IncrementClassification(string(op.Classification))
	return op, nil
}

// Edit replaces the caller-editable fields of an active operation and
// re-derives its classification against fresh history.
func (s *Service) Edit(ctx context.Context, ownerID id.OwnerID, opID id.OperationID, fields models.Fields, reason string) (*models.Operation, error) {
	ctx, span := s.tracer.Start(ctx, "operations.edit", trace.WithAttributes(attribute.String("operation.id", opID.String())))
	defer span.End()
	start := time.Now()

	op, reason, err := s.edit(ctx, ownerID, opID, fields, reason)
	s.finish(span, "edit", start, err)
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.ActionEdit, op, ownerID, reason)
	s.logger.InfoContext(ctx, "operation edited",
		"operation_id", op.ID,
		"folio", op.Folio.String(),
		"classification", op.Classification,
	)
	return op, nil
}

func (s *Service) edit(ctx context.Context, ownerID id.OwnerID, opID id.OperationID, fields models.Fields, reason string) (*models.Operation, string, error) {
	if ownerID.IsNil() {
		return nil, "", errOwnerRequired
	}
	reason, err := models.ValidateReason(reason, false)
	if err != nil {
		return nil, "", err
	}
	if reason == "" {
		reason = DefaultEditReason
	}
	fields.Normalize()
	if err := fields.Validate(s.normalizer.Supports); err != nil {
		return nil, "", err
	}
	norm, err := s.normalizer.Normalize(ctx, fields.Amount, fields.Currency)
	if err != nil {
		return nil, "", err
	}

	now := s.now(ctx)
	var op *models.Operation
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		op, err = s.store.FindByIDForUpdate(ctx, ownerID, opID)
		if err != nil {
			return err
		}
		if !op.CanEdit() {
			return dErrors.New(dErrors.CodeInvalidState, "operation is deleted and cannot be edited")
		}

		op.ApplyFields(fields)
		op.ApplyNormalization(norm)
		op.UpdatedAt = now
		op.UpdatedBy = ownerID

		result, err := s.classify(ctx, op, now)
		if err != nil {
			return err
		}
		op.ApplyClassification(result)
		return s.store.Update(ctx, op)
	})
	if err != nil {
		return nil, "", translate(err, "failed to edit operation")
	}
	s.metrics.IncrementClassification(string(op.Classification))
	return s.localize(op), reason, nil
}

// SoftDelete marks an active operation deleted. The row is kept.
func (s *Service) SoftDelete(ctx context.Context, ownerID id.OwnerID, opID id.OperationID, reason string) (*models.DeletionConfirmation, error) {
	ctx, span := s.tracer.Start(ctx, "operations.delete", trace.WithAttributes(attribute.String("operation.id", opID.String())))
	defer span.End()
	start := time.Now()

	op, err := s.softDelete(ctx, ownerID, opID, reason)
	s.finish(span, "delete", start, err)
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.ActionDelete, op, ownerID, op.DeletionReason)
	s.logger.InfoContext(ctx, "operation deleted",
		"operation_id", op.ID,
		"folio", op.Folio.String(),
	)
	return &models.DeletionConfirmation{
		OperationID: op.ID,
		Folio:       op.Folio,
		DeletedAt:   *op.DeletedAt,
		Reason:      op.DeletionReason,
	}, nil
}

func (s *Service) softDelete(ctx context.Context, ownerID id.OwnerID, opID id.OperationID, reason string) (*models.Operation, error) {
	if ownerID.IsNil() {
		return nil, errOwnerRequired
	}
	reason, err := models.ValidateReason(reason, true)
	if err != nil {
		return nil, err
	}

	now := s.now(ctx)
	var op *models.Operation
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		op, err = s.store.FindByIDForUpdate(ctx, ownerID, opID)
		if err != nil {
			return err
		}
		if !op.CanDelete() {
			return dErrors.New(dErrors.CodeInvalidState, "operation is already deleted")
		}
		op.MarkDeleted(ownerID, reason, now)
		return s.store.Update(ctx, op)
	})
	if err != nil {
		return nil, translate(err, "failed to delete operation")
	}
	return s.localize(op), nil
}

// List returns the client's active operations, newest event first, bounded
// by the page size.
func (s *Service) List(ctx context.Context, ownerID id.OwnerID, clientID id.ClientID) ([]*models.Operation, error) {
	if ownerID.IsNil() {
		return nil, errOwnerRequired
	}
	if clientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "client_id is required")
	}
	ops, err := s.store.ListByClient(ctx, ownerID, clientID, s.pageSize)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list operations")
	}
	for _, op := range ops {
		s.localize(op)
	}
	return ops, nil
}

// Get returns one active operation.
func (s *Service) Get(ctx context.Context, ownerID id.OwnerID, opID id.OperationID) (*models.Operation, error) {
	op, err := s.load(ctx, ownerID, opID)
	if err != nil {
		return nil, err
	}
	if op.Deleted {
		return nil, errOperationNotFound
	}
	return op, nil
}

// AuditTrail returns the audit entries of an owned operation, oldest first.
// Deleted operations keep their trail.
func (s *Service) AuditTrail(ctx context.Context, ownerID id.OwnerID, opID id.OperationID) ([]audit.Entry, error) {
	if _, err := s.load(ctx, ownerID, opID); err != nil {
		return nil, err
	}
	entries, err := s.auditor.Trail(ctx, opID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail")
	}
	for i := range entries {
		entries[i].Timestamp = entries[i].Timestamp.In(s.location)
	}
	return entries, nil
}

func (s *Service) load(ctx context.Context, ownerID id.OwnerID, opID id.OperationID) (*models.Operation, error) {
	if ownerID.IsNil() {
		return nil, errOwnerRequired
	}
	op, err := s.store.FindByID(ctx, ownerID, opID)
	if err != nil {
		return nil, translate(err, "failed to load operation")
	}
	return s.localize(op), nil
}

// classify reads the client's history inside the current transaction and
// runs the rules with now as the evaluation time.
func (s *Service) classify(ctx context.Context, op *models.Operation, now time.Time) (models.ClassificationResult, error) {
	from, to := s.classifier.Window(now)
	history, err := s.store.History(ctx, op.OwnerID, op.ClientID, from, to)
	if err != nil {
		return models.ClassificationResult{}, err
	}
	return s.classifier.Classify(op, history, now), nil
}

func (s *Service) record(ctx context.Context, action audit.Action, op *models.Operation, actor id.OwnerID, reason string) {
	s.auditor.Record(ctx, action, audit.Subject{
		OperationID: op.ID,
		ClientID:    op.ClientID,
		Folio:       op.Folio.String(),
		Amount:      op.Amount,
		Currency:    op.Currency,
	}, actor, reason, audit.ProvenanceFromContext(ctx))
}

func (s *Service) finish(span trace.Span, kind string, start time.Time, err error) {
	s.metrics.IncrementMutation(kind, err)
	s.metrics.ObserveMutationLatency(kind, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
}

func (s *Service) now(ctx context.Context) time.Time {
	return requestcontext.Now(ctx).In(s.location)
}

func (s *Service) localize(op *models.Operation) *models.Operation {
	op.CreatedAt = op.CreatedAt.In(s.location)
	op.UpdatedAt = op.UpdatedAt.In(s.location)
	if op.DeletedAt != nil {
		at := op.DeletedAt.In(s.location)
		op.DeletedAt = &at
	}
	return op
}

var (
	errOwnerRequired     = dErrors.New(dErrors.CodeUnauthorized, "owner identity is required")
	errOperationNotFound = dErrors.New(dErrors.CodeNotFound, "operation not found")
)

// translate keeps coded errors, maps store sentinels and wraps everything
// else as an internal failure.
func translate(err error, msg string) error {
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return errOperationNotFound
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
