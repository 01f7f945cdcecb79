package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	id "amlcore/pkg/domain"
	audit "amlcore/pkg/platform/audit"
	txcontext "amlcore/pkg/platform/tx"
)

// Store persists audit entries in the append-only audit_entries table.
// It exposes no update or delete path.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts one entry. It joins the caller's transaction when ctx carries one.
func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	query := `
		INSERT INTO audit_entries (
			id, actor_id, operation_id, client_id, action, reason,
			folio, amount, currency, recorded_at,
			client_ip, user_agent, device, request_id, content_hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(e.ID),
		uuid.UUID(e.ActorID),
		uuid.UUID(e.OperationID),
		uuid.UUID(e.ClientID),
		string(e.Action),
		e.Reason,
		e.Folio,
		e.Amount.StringFixed(2),
		e.Currency,
		e.Timestamp,
		e.ClientIP,
		e.UserAgent,
		e.Device,
		e.RequestID,
		e.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByOperation returns the entries of one operation, oldest first.
func (s *Store) ListByOperation(ctx context.Context, operationID id.OperationID) ([]audit.Entry, error) {
	query := `
		SELECT id, actor_id, operation_id, client_id, action, reason,
			   folio, amount, currency, recorded_at,
			   client_ip, user_agent, device, request_id, content_hash
		FROM audit_entries
		WHERE operation_id = $1
		ORDER BY recorded_at ASC, id ASC
	`
	rows, err := txcontext.ExecutorFor(ctx, s.db).QueryContext(ctx, query, uuid.UUID(operationID))
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e                                 audit.Entry
			entryID, actor, operation, client uuid.UUID
			action, amount                    string
		)
		if err := rows.Scan(
			&entryID, &actor, &operation, &client, &action, &e.Reason,
			&e.Folio, &amount, &e.Currency, &e.Timestamp,
			&e.ClientIP, &e.UserAgent, &e.Device, &e.RequestID, &e.ContentHash,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = id.AuditEntryID(entryID)
		e.ActorID = id.OwnerID(actor)
		e.OperationID = id.OperationID(operation)
		e.ClientID = id.ClientID(client)
		e.Action = audit.Action(action)
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse audit amount: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
