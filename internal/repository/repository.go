package repository

import (
	"context"
	"errors"

	"earnlink/internal/model"
)

var (
	ErrUserNotFound             = errors.New("用户不存在")
	ErrDuplicateUser            = errors.New("用户已存在")
	ErrBalanceNotEnough         = errors.New("余额不足")
	ErrTransactionNotFound      = errors.New("流水不存在")
	ErrTransactionStatusInvalid = errors.New("流水状态不合法")
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByPhone(ctx context.Context, phone string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByReferralCode(ctx context.Context, code string) (*model.User, error)
	// ListAll 按注册顺序返回
	ListAll(ctx context.Context) ([]*model.User, error)
	ListByReferrer(ctx context.Context, referrerID int64) ([]*model.User, error)
	Count(ctx context.Context) (int64, error)
	// Credit 入账：余额和累计收益同时增加
	Credit(ctx context.Context, id int64, amount int64) error
	// Increase 只增加余额（退款）
	Increase(ctx context.Context, id int64, amount int64) error
	// Deduct 余额不足时返回 ErrBalanceNotEnough，不做任何修改
	Deduct(ctx context.Context, id int64, amount int64) error
}

type TransactionRepository interface {
	Create(ctx context.Context, trans *model.Transaction) error
	GetByID(ctx context.Context, id int64) (*model.Transaction, error)
	// 以下列表均按时间倒序
	ListByUserID(ctx context.Context, userID int64) ([]*model.Transaction, error)
	ListAll(ctx context.Context) ([]*model.Transaction, error)
	ListByTypeAndStatus(ctx context.Context, txType, status string) ([]*model.Transaction, error)
	UpdateStatus(ctx context.Context, id int64, fromStatus, toStatus string) error
}

type OutboxRepository interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}

// Store 用户表、流水表、消息表的统一入口
//
// Transaction 内的所有读写要么全部生效，要么全部不生效；
// 并发的写事务之间互斥，读方不会看到事务的中间状态。
// Snapshot 只读，fn 内的多次查询看到同一时刻的数据。
type Store interface {
	Users() UserRepository
	Transactions() TransactionRepository
	Outbox() OutboxRepository
	Transaction(ctx context.Context, fn func(tx Store) error) error
	Snapshot(ctx context.Context, fn func(tx Store) error) error
}
