package tx

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorFor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	t.Run("without transaction returns db", func(t *testing.T) {
		assert.Equal(t, Executor(db), ExecutorFor(context.Background(), db))
	})

	t.Run("with transaction returns tx", func(t *testing.T) {
		mock.ExpectBegin()
		sqlTx, err := db.Begin()
		require.NoError(t, err)

		ctx := WithTx(context.Background(), sqlTx)
		got, ok := From(ctx)
		require.True(t, ok)
		assert.Same(t, sqlTx, got)
		assert.Equal(t, Executor(sqlTx), ExecutorFor(ctx, db))

		mock.ExpectRollback()
		require.NoError(t, sqlTx.Rollback())
	})

	t.Run("nil transaction leaves context untouched", func(t *testing.T) {
		ctx := WithTx(context.Background(), nil)
		_, ok := From(ctx)
		assert.False(t, ok)
	})
}
