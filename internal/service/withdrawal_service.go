package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"earnlink/internal/config"
	"earnlink/internal/infrastructure/lock"
	"earnlink/internal/model"
	"earnlink/internal/repository"

	"github.com/google/uuid"
)

const withdrawalDescription = "M-Pesa Withdrawal"

// WithdrawalService 提现状态机：PENDING -> SUCCESS / FAILED，拒绝时退回余额
type WithdrawalService struct {
	store         repository.Store
	locker        lock.Locker
	ledger        *LedgerService
	minWithdrawal int64
	topic         string
}

func NewWithdrawalService(deps Dependencies, cfg *config.Config, ledger *LedgerService) *WithdrawalService {
	return &WithdrawalService{
		store:         deps.Store,
		locker:        deps.Locker,
		ledger:        ledger,
		minWithdrawal: cfg.Pricing.MinWithdrawal,
		topic:         cfg.Kafka.Topic.WithdrawalResult,
	}
}

type withdrawalEvent struct {
	TransactionID int64  `json:"transaction_id,string"`
	UserID        int64  `json:"user_id,string"`
	Amount        int64  `json:"amount"`
	Phone         string `json:"phone"`
	Status        string `json:"status"`
	OccurredAt    int64  `json:"occurred_at"`
}

func newWithdrawalEvent(t *model.Transaction) withdrawalEvent {
	return withdrawalEvent{
		TransactionID: t.ID,
		UserID:        t.UserID,
		Amount:        t.Amount,
		Phone:         t.Phone,
		Status:        t.Status,
		OccurredAt:    time.Now().Unix(),
	}
}

// RequestWithdrawal 申请提现
//
// 校验顺序：用户存在 -> 余额充足 -> 不低于最低提现金额。
// 扣减余额和写入待审核流水在同一事务内完成。
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, userID, amount int64, phone string) (*model.Transaction, error) {
	release, err := s.locker.Acquire(ctx, lock.WithdrawKey(userID), uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer release()

	var trans *model.Transaction
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		user, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return mapUserErr(err)
		}
		if amount > user.Balance {
			return ErrInsufficientBalance
		}
		if amount < s.minWithdrawal {
			return fmt.Errorf("%w: 最低提现金额为 %d", ErrBelowMinimum, s.minWithdrawal)
		}
		if amount <= 0 {
			return ErrInvalidAmount
		}

		if err := tx.Users().Deduct(ctx, userID, amount); err != nil {
			if errors.Is(err, repository.ErrBalanceNotEnough) {
				return ErrInsufficientBalance
			}
			return fmt.Errorf("扣减余额失败: %w", err)
		}

		trans, err = s.ledger.Record(ctx, tx, &RecordRequest{
			UserID:      userID,
			Type:        model.TransactionTypeWithdraw,
			Amount:      amount,
			Phone:       phone,
			Status:      model.TransactionStatusPending,
			Description: withdrawalDescription,
		})
		if err != nil {
			return err
		}
		return writeOutbox(ctx, tx, s.topic, model.EventWithdrawalRequested, trans.ID, newWithdrawalEvent(trans))
	})
	if err != nil {
		return nil, err
	}

	log.Printf("提现申请成功: userID=%d, transID=%d, amount=%d", userID, trans.ID, amount)
	return trans, nil
}

// Approve 审核通过，余额已在申请时扣减
func (s *WithdrawalService) Approve(ctx context.Context, transID int64) (*model.Transaction, error) {
	return s.settle(ctx, transID, model.TransactionStatusSuccess)
}

// Deny 审核拒绝，退回余额，累计收益不变
func (s *WithdrawalService) Deny(ctx context.Context, transID int64) (*model.Transaction, error) {
	return s.settle(ctx, transID, model.TransactionStatusFailed)
}

func (s *WithdrawalService) settle(ctx context.Context, transID int64, target string) (*model.Transaction, error) {
	trans, err := s.store.Transactions().GetByID(ctx, transID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}

	release, err := s.locker.Acquire(ctx, lock.WithdrawKey(trans.UserID), uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer release()

	var result *model.Transaction
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		current, err := tx.Transactions().GetByID(ctx, transID)
		if err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		if current.Type != model.TransactionTypeWithdraw || !model.CanTransitionTo(current.Status, target) {
			return ErrTransactionNotPending
		}

		if err := tx.Transactions().UpdateStatus(ctx, transID, current.Status, target); err != nil {
			if errors.Is(err, repository.ErrTransactionStatusInvalid) {
				return ErrTransactionNotPending
			}
			return fmt.Errorf("更新流水状态失败: %w", err)
		}

		if target == model.TransactionStatusFailed {
			if err := tx.Users().Increase(ctx, current.UserID, current.Amount); err != nil {
				return fmt.Errorf("退回余额失败: %w", mapUserErr(err))
			}
		}

		current.Status = target
		result = current
		return writeOutbox(ctx, tx, s.topic, model.EventWithdrawalSettled, current.ID, newWithdrawalEvent(current))
	})
	if err != nil {
		return nil, err
	}

	log.Printf("提现审核完成: transID=%d, userID=%d, status=%s", result.ID, result.UserID, result.Status)
	return result, nil
}

// ListPending 待审核的提现，最新在前
func (s *WithdrawalService) ListPending(ctx context.Context) ([]*model.Transaction, error) {
	return s.store.Transactions().ListByTypeAndStatus(ctx, model.TransactionTypeWithdraw, model.TransactionStatusPending)
}
