package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"amlcore/internal/operations/folio"
	"amlcore/internal/operations/models"
	id "amlcore/pkg/domain"
	"amlcore/pkg/platform/sentinel"
	txcontext "amlcore/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Postgres persists operations and folio counters in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed operations store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const operationColumns = `
	id, owner_id, client_id, folio_prefix, folio_year, folio_seq,
	event_date, event_time, amount, currency, amount_reporting, exchange_rate, rate_provenance,
	operation_type, payment_method, description, reference,
	counterparty_name, counterparty_account, counterparty_bank, notes,
	classification, alerts,
	deleted, deleted_at, deleted_by, deletion_reason,
	created_at, created_by, updated_at, updated_by`

// NextSequence atomically advances the (owner, year) counter. The first call
// for a pair seeds the counter from the highest folio already stored.
func (s *Postgres) NextSequence(ctx context.Context, ownerID id.OwnerID, year int) (int, error) {
	query := `
		INSERT INTO folio_sequences (owner_id, year, last_seq)
		VALUES ($1, $2, COALESCE((SELECT MAX(folio_seq) FROM operations WHERE owner_id = $1 AND folio_year = $2), 0) + 1)
		ON CONFLICT (owner_id, year) DO UPDATE SET last_seq = folio_sequences.last_seq + 1
		RETURNING last_seq
	`
	var seq int
	err := txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(ownerID), year).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("advance folio sequence: %w", translate(err))
	}
	return seq, nil
}

// Insert stores a new operation.
func (s *Postgres) Insert(ctx context.Context, op *models.Operation) error {
	alerts, err := marshalAlerts(op.Alerts)
	if err != nil {
		return err
	}
	query := `INSERT INTO operations (` + operationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)`
	_, err = txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(op.ID),
		uuid.UUID(op.OwnerID),
		uuid.UUID(op.ClientID),
		op.Folio.Prefix,
		op.Folio.Year,
		op.Folio.Seq,
		op.EventDate,
		op.EventTime,
		op.Amount.String(),
		op.Currency,
		op.AmountReporting.String(),
		op.ExchangeRate.String(),
		string(op.RateProvenance),
		op.OperationType,
		op.PaymentMethod,
		op.Description,
		op.Reference,
		op.Counterparty.Name,
		op.Counterparty.Account,
		op.Counterparty.Bank,
		op.Notes,
		string(op.Classification),
		alerts,
		op.Deleted,
		op.DeletedAt,
		nullOwner(op.DeletedBy),
		op.DeletionReason,
		op.CreatedAt,
		uuid.UUID(op.CreatedBy),
		op.UpdatedAt,
		uuid.UUID(op.UpdatedBy),
	)
	if err != nil {
		return fmt.Errorf("insert operation: %w", translate(err))
	}
	return nil
}

// Update rewrites the mutable columns of an operation. The folio and the
// creation columns never change.
func (s *Postgres) Update(ctx context.Context, op *models.Operation) error {
	alerts, err := marshalAlerts(op.Alerts)
	if err != nil {
		return err
	}
	query := `
		UPDATE operations SET
			client_id = $3, event_date = $4, event_time = $5,
			amount = $6, currency = $7, amount_reporting = $8, exchange_rate = $9, rate_provenance = $10,
			operation_type = $11, payment_method = $12, description = $13, reference = $14,
			counterparty_name = $15, counterparty_account = $16, counterparty_bank = $17, notes = $18,
			classification = $19, alerts = $20,
			deleted = $21, deleted_at = $22, deleted_by = $23, deletion_reason = $24,
			updated_at = $25, updated_by = $26
		WHERE id = $1 AND owner_id = $2
	`
	res, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(op.ID),
		uuid.UUID(op.OwnerID),
		uuid.UUID(op.ClientID),
		op.EventDate,
		op.EventTime,
		op.Amount.String(),
		op.Currency,
		op.AmountReporting.String(),
		op.ExchangeRate.String(),
		string(op.RateProvenance),
		op.OperationType,
		op.PaymentMethod,
		op.Description,
		op.Reference,
		op.Counterparty.Name,
		op.Counterparty.Account,
		op.Counterparty.Bank,
		op.Notes,
		string(op.Classification),
		alerts,
		op.Deleted,
		op.DeletedAt,
		nullOwner(op.DeletedBy),
		op.DeletionReason,
		op.UpdatedAt,
		uuid.UUID(op.UpdatedBy),
	)
	if err != nil {
		return fmt.Errorf("update operation: %w", translate(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update operation rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// FindByID returns the owner's operation, deleted or not.
func (s *Postgres) FindByID(ctx context.Context, ownerID id.OwnerID, opID id.OperationID) (*models.Operation, error) {
	return s.findByID(ctx, ownerID, opID, "")
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (s *Postgres) FindByIDForUpdate(ctx context.Context, ownerID id.OwnerID, opID id.OperationID) (*models.Operation, error) {
	return s.findByID(ctx, ownerID, opID, " FOR UPDATE")
}

func (s *Postgres) findByID(ctx context.Context, ownerID id.OwnerID, opID id.OperationID, lock string) (*models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = $1 AND owner_id = $2` + lock
	row := txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(opID), uuid.UUID(ownerID))
	op, err := scanOperation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find operation: %w", err)
	}
	return op, nil
}

// History returns the non-deleted operations of (owner, client) whose event
// dates fall in [from, to].
func (s *Postgres) History(ctx context.Context, ownerID id.OwnerID, clientID id.ClientID, from, to time.Time) ([]models.HistoryEntry, error) {
	query := `
		SELECT id, client_id, event_date
		FROM operations
		WHERE owner_id = $1 AND client_id = $2 AND deleted = FALSE
		  AND event_date BETWEEN $3 AND $4
	`
	rows, err := txcontext.ExecutorFor(ctx, s.db).QueryContext(ctx, query,
		uuid.UUID(ownerID), uuid.UUID(clientID), from, to)
	if err != nil {
		return nil, fmt.Errorf("query client history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var (
			opID, client uuid.UUID
			eventDate    time.Time
		)
		if err := rows.Scan(&opID, &client, &eventDate); err != nil {
			return nil, fmt.Errorf("scan client history: %w", err)
		}
		entries = append(entries, models.HistoryEntry{
			ID:        id.OperationID(opID),
			ClientID:  id.ClientID(client),
			EventDate: models.CivilDate(eventDate),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client history: %w", err)
	}
	return entries, nil
}

// ListByClient returns up to limit non-deleted operations, newest event first.
func (s *Postgres) ListByClient(ctx context.Context, ownerID id.OwnerID, clientID id.ClientID, limit int) ([]*models.Operation, error) {
	query := `SELECT ` + operationColumns + `
		FROM operations
		WHERE owner_id = $1 AND client_id = $2 AND deleted = FALSE
		ORDER BY event_date DESC, event_time DESC, created_at DESC
		LIMIT $3`
	rows, err := txcontext.ExecutorFor(ctx, s.db).QueryContext(ctx, query,
		uuid.UUID(ownerID), uuid.UUID(clientID), limit)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var ops []*models.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return ops, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(row scanner) (*models.Operation, error) {
	var (
		op                                  models.Operation
		opID, owner, client, createdBy, upd uuid.UUID
		deletedBy                           uuid.NullUUID
		deletedAt                           sql.NullTime
		prefix, provenance, classification  string
		amount, reporting, rate             string
		year, seq                           int
		alerts                              []byte
	)
	err := row.Scan(
		&opID, &owner, &client, &prefix, &year, &seq,
		&op.EventDate, &op.EventTime, &amount, &op.Currency, &reporting, &rate, &provenance,
		&op.OperationType, &op.PaymentMethod, &op.Description, &op.Reference,
		&op.Counterparty.Name, &op.Counterparty.Account, &op.Counterparty.Bank, &op.Notes,
		&classification, &alerts,
		&op.Deleted, &deletedAt, &deletedBy, &op.DeletionReason,
		&op.CreatedAt, &createdBy, &op.UpdatedAt, &upd,
	)
	if err != nil {
		return nil, err
	}

	op.ID = id.OperationID(opID)
	op.OwnerID = id.OwnerID(owner)
	op.ClientID = id.ClientID(client)
	op.CreatedBy = id.OwnerID(createdBy)
	op.UpdatedBy = id.OwnerID(upd)
	op.EventDate = models.CivilDate(op.EventDate)
	op.RateProvenance = models.RateProvenance(provenance)
	op.Classification = models.Classification(classification)
	if deletedBy.Valid {
		op.DeletedBy = id.OwnerID(deletedBy.UUID)
	}
	if deletedAt.Valid {
		at := deletedAt.Time
		op.DeletedAt = &at
	}

	if op.Folio, err = folio.New(prefix, year, seq); err != nil {
		return nil, fmt.Errorf("stored folio: %w", err)
	}
	if op.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if op.AmountReporting, err = decimal.NewFromString(reporting); err != nil {
		return nil, fmt.Errorf("parse reporting amount: %w", err)
	}
	if op.ExchangeRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("parse exchange rate: %w", err)
	}
	if len(alerts) > 0 {
		if err := json.Unmarshal(alerts, &op.Alerts); err != nil {
			return nil, fmt.Errorf("decode alerts: %w", err)
		}
	}
	return &op, nil
}

func marshalAlerts(alerts []string) ([]byte, error) {
	if alerts == nil {
		alerts = []string{}
	}
	b, err := json.Marshal(alerts)
	if err != nil {
		return nil, fmt.Errorf("encode alerts: %w", err)
	}
	return b, nil
}

func nullOwner(o id.OwnerID) uuid.NullUUID {
	if o.IsNil() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(o), Valid: true}
}

// translate maps a unique violation to sentinel.ErrConflict so the folio
// allocator can retry.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errors.Join(sentinel.ErrConflict, err)
	}
	return err
}
