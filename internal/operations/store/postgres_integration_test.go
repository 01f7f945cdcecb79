//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"amlcore/internal/operations/folio"
	"amlcore/internal/operations/models"
	"amlcore/internal/operations/store"
	id "amlcore/pkg/domain"
	"amlcore/pkg/platform/sentinel"
	"amlcore/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *store.Postgres
	tx    *store.PostgresTx
	owner id.OwnerID
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().Postgres(s.T())
	s.store = store.NewPostgres(s.pg.DB)
	s.tx = store.NewPostgresTx(s.pg.DB, 0)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background()))
	s.owner = id.OwnerID(uuid.New())
}

func (s *PostgresStoreSuite) operation(seq int, client id.ClientID, eventDate time.Time) *models.Operation {
	f, err := folio.New("OP", 2026, seq)
	s.Require().NoError(err)
	created := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	return &models.Operation{
		ID:              id.NewOperationID(),
		OwnerID:         s.owner,
		ClientID:        client,
		Folio:           f,
		EventDate:       eventDate,
		EventTime:       "10:30",
		Amount:          decimal.RequireFromString("350000.00"),
		Currency:        "MXN",
		AmountReporting: decimal.RequireFromString("20000.00"),
		ExchangeRate:    decimal.RequireFromString("17.5"),
		RateProvenance:  models.RateProvenanceFallback,
		OperationType:   "transfer",
		Classification:  models.ClassificationRelevant,
		Alerts:          []string{"amount above threshold"},
		CreatedAt:       created,
		CreatedBy:       s.owner,
		UpdatedAt:       created,
		UpdatedBy:       s.owner,
	}
}

// =============================================================================
// Folio allocation
// =============================================================================

func (s *PostgresStoreSuite) TestConcurrentAllocationYieldsDistinctSequences() {
	ctx := context.Background()
	const workers = 25

	results := make(chan int, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			var seq int
			err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
				var err error
				seq, err = s.store.NextSequence(ctx, s.owner, 2026)
				if err != nil {
					return err
				}
				return s.store.Insert(ctx, s.operation(seq, id.ClientID(uuid.New()), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
			})
			if err != nil {
				errs <- err
				return
			}
			results <- seq
		}()
	}

	seen := map[int]bool{}
	for i := 0; i < workers; i++ {
		select {
		case err := <-errs:
			s.FailNow("allocation failed", err.Error())
		case seq := <-results:
			s.False(seen[seq], "sequence %d allocated twice", seq)
			seen[seq] = true
		}
	}
	for seq := 1; seq <= workers; seq++ {
		s.True(seen[seq], "sequence %d missing", seq)
	}
}

func (s *PostgresStoreSuite) TestRolledBackAllocationLeavesNoOperation() {
	ctx := context.Background()
	op := s.operation(1, id.ClientID(uuid.New()), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	boom := errors.New("classification failed")

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.NextSequence(ctx, s.owner, 2026); err != nil {
			return err
		}
		if err := s.store.Insert(ctx, op); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.FindByID(ctx, s.owner, op.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	seq, err := s.store.NextSequence(ctx, s.owner, 2026)
	s.Require().NoError(err)
	s.Equal(1, seq)
}

func (s *PostgresStoreSuite) TestDuplicateFolioIsConflict() {
	ctx := context.Background()
	client := id.ClientID(uuid.New())
	s.Require().NoError(s.store.Insert(ctx, s.operation(7, client, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))))

	err := s.store.Insert(ctx, s.operation(7, client, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)))
	s.ErrorIs(err, sentinel.ErrConflict)
}

// =============================================================================
// Reads and updates
// =============================================================================

func (s *PostgresStoreSuite) TestInsertFindRoundTrip() {
	ctx := context.Background()
	op := s.operation(1, id.ClientID(uuid.New()), time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(s.store.Insert(ctx, op))

	got, err := s.store.FindByID(ctx, s.owner, op.ID)
	s.Require().NoError(err)
	s.Equal("OP-2026-001", got.Folio.String())
	s.True(got.Amount.Equal(op.Amount))
	s.True(got.AmountReporting.Equal(op.AmountReporting))
	s.Equal(models.ClassificationRelevant, got.Classification)
	s.Equal(op.Alerts, got.Alerts)
	s.Equal("2026-03-10", got.EventDate.Format(time.DateOnly))

	_, err = s.store.FindByID(ctx, id.OwnerID(uuid.New()), op.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSoftDeletedOperationsLeaveHistoryAndList() {
	ctx := context.Background()
	client := id.ClientID(uuid.New())
	kept := s.operation(1, client, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	gone := s.operation(2, client, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(s.store.Insert(ctx, kept))
	s.Require().NoError(s.store.Insert(ctx, gone))

	at := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	gone.Deleted = true
	gone.DeletedAt = &at
	gone.DeletedBy = s.owner
	gone.DeletionReason = "duplicate capture"
	s.Require().NoError(s.store.Update(ctx, gone))

	history, err := s.store.History(ctx, s.owner, client,
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(kept.ID, history[0].ID)

	list, err := s.store.ListByClient(ctx, s.owner, client, 10)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(kept.ID, list[0].ID)

	stored, err := s.store.FindByID(ctx, s.owner, gone.ID)
	s.Require().NoError(err)
	s.True(stored.Deleted)
	s.Equal("duplicate capture", stored.DeletionReason)
	s.Require().NotNil(stored.DeletedAt)
}

func (s *PostgresStoreSuite) TestSequenceSeedsFromExistingFolios() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, s.operation(41, id.ClientID(uuid.New()), time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))))

	seq, err := s.store.NextSequence(ctx, s.owner, 2026)
	s.Require().NoError(err)
	s.Equal(42, seq)
}
