package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "amlcore/pkg/domain"
	audit "amlcore/pkg/platform/audit"
	txcontext "amlcore/pkg/platform/tx"
)

var auditColumns = []string{
	"id", "actor_id", "operation_id", "client_id", "action", "reason",
	"folio", "amount", "currency", "recorded_at",
	"client_ip", "user_agent", "device", "request_id", "content_hash",
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock, db
}

func TestAppendJoinsCallerTransaction(t *testing.T) {
	store, mock, db := newMock(t)
	entry := audit.Entry{
		ID:          id.NewAuditEntryID(),
		OperationID: id.NewOperationID(),
		Action:      audit.ActionCreate,
		Amount:      decimal.RequireFromString("12.5"),
		Currency:    "MXN",
		Timestamp:   time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WithArgs(uuid.UUID(entry.ID), sqlmock.AnyArg(), uuid.UUID(entry.OperationID), sqlmock.AnyArg(),
			"CREATE", "", "", "12.50", "MXN", entry.Timestamp,
			"", "", "", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	ctx := txcontext.WithTx(context.Background(), tx)
	require.NoError(t, store.Append(ctx, entry))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendWrapsDriverError(t *testing.T) {
	store, mock, _ := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")).WillReturnError(errors.New("disk full"))

	err := store.Append(context.Background(), audit.Entry{Action: audit.ActionEdit})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert audit entry")
}

func TestListByOperationScansRows(t *testing.T) {
	store, mock, _ := newMock(t)
	opID := id.NewOperationID()
	entryID := uuid.New()
	ts := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_entries")).
		WithArgs(uuid.UUID(opID)).
		WillReturnRows(sqlmock.NewRows(auditColumns).AddRow(
			entryID.String(), uuid.NewString(), uuid.UUID(opID).String(), uuid.NewString(), "EDIT", "fix typo",
			"OP-2026-004", "17500.00", "USD", ts,
			"203.0.113.7", "curl/8.4.0", "curl 8.4.0", "req-1", "abc",
		))

	entries, err := store.ListByOperation(context.Background(), opID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id.AuditEntryID(entryID), entries[0].ID)
	assert.Equal(t, audit.ActionEdit, entries[0].Action)
	assert.True(t, decimal.RequireFromString("17500").Equal(entries[0].Amount))
	assert.Equal(t, ts, entries[0].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}
