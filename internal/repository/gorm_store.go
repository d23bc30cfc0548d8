package repository

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Users() UserRepository {
	return NewUserRepository(s.db)
}

func (s *GormStore) Transactions() TransactionRepository {
	return NewTransactionRepository(s.db)
}

func (s *GormStore) Outbox() OutboxRepository {
	return NewOutboxRepository(s.db)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
}

// Snapshot MySQL 和 PostgreSQL 使用可重复读的只读事务；
// PostgreSQL 默认读已提交，两条查询之间提交的写入会造成对账误报
func (s *GormStore) Snapshot(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	}, snapshotOptions(s.db.Dialector.Name())...)
}

func snapshotOptions(dialect string) []*sql.TxOptions {
	switch dialect {
	case "mysql", "postgres":
		return []*sql.TxOptions{{Isolation: sql.LevelRepeatableRead, ReadOnly: true}}
	default:
		return nil
	}
}
