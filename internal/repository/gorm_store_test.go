package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"earnlink/internal/infrastructure/database"
	"earnlink/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newSQLStore 内存 SQLite，单连接保证所有查询落在同一个库上
func newSQLStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return NewGormStore(db)
}

func TestGormStore_DuplicateKeys(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)

	require.NoError(t, s.Users().Create(ctx, newUser(1, "0700", "a1000")))
	assert.ErrorIs(t, s.Users().Create(ctx, newUser(2, "0700", "b1000")), ErrDuplicateUser)
	assert.ErrorIs(t, s.Users().Create(ctx, newUser(3, "0701", "a1000")), ErrDuplicateUser)

	total, err := s.Users().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestGormStore_DeductNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)
	require.NoError(t, s.Users().Create(ctx, newUser(1, "0700", "a")))
	require.NoError(t, s.Users().Credit(ctx, 1, 100))

	assert.ErrorIs(t, s.Users().Deduct(ctx, 1, 150), ErrBalanceNotEnough)
	assert.ErrorIs(t, s.Users().Deduct(ctx, 42, 1), ErrUserNotFound)
	assert.ErrorIs(t, s.Users().Credit(ctx, 42, 1), ErrUserNotFound)

	u, err := s.Users().GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), u.Balance)

	require.NoError(t, s.Users().Deduct(ctx, 1, 100))
	require.NoError(t, s.Users().Increase(ctx, 1, 30))
	u, err = s.Users().GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(30), u.Balance)
	assert.Equal(t, int64(100), u.TotalEarned)
}

func TestGormStore_UpdateStatusOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)
	require.NoError(t, s.Transactions().Create(ctx, &model.Transaction{
		ID: 1, UserID: 1, Type: model.TransactionTypeWithdraw, Amount: 200, Phone: "0700",
		Status: model.TransactionStatusPending,
	}))

	require.NoError(t, s.Transactions().UpdateStatus(ctx, 1, model.TransactionStatusPending, model.TransactionStatusSuccess))
	assert.ErrorIs(t, s.Transactions().UpdateStatus(ctx, 1, model.TransactionStatusPending, model.TransactionStatusFailed), ErrTransactionStatusInvalid)
	assert.ErrorIs(t, s.Transactions().UpdateStatus(ctx, 1, model.TransactionStatusSuccess, model.TransactionStatusFailed), ErrTransactionStatusInvalid)

	trans, err := s.Transactions().GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusSuccess, trans.Status)

	_, err = s.Transactions().GetByID(ctx, 99)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestGormStore_ListOrdering(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)
	root := int64(1)

	c3 := newUser(3, "0702", "c")
	c3.ReferrerID = &root
	c2 := newUser(2, "0701", "b")
	c2.ReferrerID = &root
	require.NoError(t, s.Users().Create(ctx, c3))
	require.NoError(t, s.Users().Create(ctx, newUser(1, "0700", "a")))
	require.NoError(t, s.Users().Create(ctx, c2))

	users, err := s.Users().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{users[0].ID, users[1].ID, users[2].ID})

	children, err := s.Users().ListByReferrer(ctx, 1)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, int64(2), children[0].ID)
	assert.Equal(t, int64(3), children[1].ID)

	for _, id := range []int64{11, 10, 12} {
		require.NoError(t, s.Transactions().Create(ctx, &model.Transaction{
			ID: id, UserID: 1, Type: model.TransactionTypeWithdraw, Amount: 1, Phone: "0700",
			Status: model.TransactionStatusPending,
		}))
	}
	txs, err := s.Transactions().ListByUserID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []int64{12, 11, 10}, []int64{txs[0].ID, txs[1].ID, txs[2].ID})

	pending, err := s.Transactions().ListByTypeAndStatus(ctx, model.TransactionTypeWithdraw, model.TransactionStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
	assert.Equal(t, int64(12), pending[0].ID)
}

func TestGormStore_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)
	require.NoError(t, s.Users().Create(ctx, newUser(1, "0700", "a")))

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx Store) error {
		require.NoError(t, tx.Users().Credit(ctx, 1, 50))
		require.NoError(t, tx.Users().Create(ctx, newUser(2, "0701", "b")))
		require.NoError(t, tx.Outbox().Create(ctx, &model.OutboxMessage{Topic: "t", MessageKey: "k", Payload: "{}"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	u, err := s.Users().GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.Balance)
	_, err = s.Users().GetByID(ctx, 2)
	assert.ErrorIs(t, err, ErrUserNotFound)
	pending, err := s.Outbox().GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestGormStore_OutboxLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Outbox().Create(ctx, &model.OutboxMessage{
			EventType: model.EventUserRegistered, Topic: "t", MessageKey: "k", Payload: "{}",
			Status: model.OutboxStatusPending,
		}))
	}

	pending, err := s.Outbox().GetPendingMessages(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	first, second := pending[0].ID, pending[1].ID

	require.NoError(t, s.Outbox().UpdateStatus(ctx, first, model.OutboxStatusSent))
	require.NoError(t, s.Outbox().IncrementRetryCount(ctx, second))
	require.NoError(t, s.Outbox().MarkAsFailed(ctx, second))

	pending, err = s.Outbox().GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.NotEqual(t, first, pending[0].ID)
	assert.NotEqual(t, second, pending[0].ID)
}

func TestGormStore_SnapshotReads(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)
	require.NoError(t, s.Users().Create(ctx, newUser(1, "0700", "a")))

	var total int64
	require.NoError(t, s.Snapshot(ctx, func(tx Store) error {
		var err error
		total, err = tx.Users().Count(ctx)
		return err
	}))
	assert.Equal(t, int64(1), total)
}

func TestSnapshotOptions(t *testing.T) {
	for _, dialect := range []string{"mysql", "postgres"} {
		opts := snapshotOptions(dialect)
		require.Len(t, opts, 1, dialect)
		assert.Equal(t, sql.LevelRepeatableRead, opts[0].Isolation)
		assert.True(t, opts[0].ReadOnly)
	}
	assert.Empty(t, snapshotOptions("sqlite"))
}
