package service

import (
	"context"
	"fmt"
	"time"

	"earnlink/internal/model"
	"earnlink/internal/repository"
	"earnlink/pkg/idgen"
)

// LedgerService 只追加的资金流水
type LedgerService struct {
	store repository.Store
}

func NewLedgerService(deps Dependencies) *LedgerService {
	return &LedgerService{store: deps.Store}
}

type RecordRequest struct {
	UserID      int64
	Type        string
	Amount      int64
	Phone       string
	Status      string
	Description string
}

// Record 追加一条流水，不做业务校验，金额由调用方保证。tx 为 nil 时使用服务自身的存储
func (s *LedgerService) Record(ctx context.Context, tx repository.Store, req *RecordRequest) (*model.Transaction, error) {
	if tx == nil {
		tx = s.store
	}

	trans := &model.Transaction{
		ID:          idgen.GenerateTransactionID(),
		UserID:      req.UserID,
		Type:        req.Type,
		Amount:      req.Amount,
		Phone:       req.Phone,
		Status:      req.Status,
		Description: req.Description,
		CreatedAt:   time.Now(),
	}
	if err := tx.Transactions().Create(ctx, trans); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}
	return trans, nil
}

// ListByUser 用户流水，最新在前
func (s *LedgerService) ListByUser(ctx context.Context, userID int64) ([]*model.Transaction, error) {
	return s.store.Transactions().ListByUserID(ctx, userID)
}

// ListAll 全部流水，最新在前
func (s *LedgerService) ListAll(ctx context.Context) ([]*model.Transaction, error) {
	return s.store.Transactions().ListAll(ctx)
}

// DerivedBalance 按流水推导的余额：成功入账减去成功和待审核的提现
func (s *LedgerService) DerivedBalance(ctx context.Context, userID int64) (int64, error) {
	transactions, err := s.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return derive(transactions), nil
}

func derive(transactions []*model.Transaction) int64 {
	var balance int64
	for _, t := range transactions {
		switch {
		case t.IsCredit() && t.Status == model.TransactionStatusSuccess:
			balance += t.Amount
		case t.Type == model.TransactionTypeWithdraw && t.Status != model.TransactionStatusFailed:
			balance -= t.Amount
		}
	}
	return balance
}

// Discrepancy 余额与流水不一致的用户
type Discrepancy struct {
	UserID  int64 `json:"user_id,string"`
	Balance int64 `json:"balance"`
	Derived int64 `json:"derived"`
}

// Reconcile 对账：在同一快照内读取用户和流水，返回不一致的用户
func (s *LedgerService) Reconcile(ctx context.Context) ([]Discrepancy, error) {
	var discrepancies []Discrepancy
	err := s.store.Snapshot(ctx, func(tx repository.Store) error {
		users, err := tx.Users().ListAll(ctx)
		if err != nil {
			return fmt.Errorf("查询用户失败: %w", err)
		}
		transactions, err := tx.Transactions().ListAll(ctx)
		if err != nil {
			return fmt.Errorf("查询流水失败: %w", err)
		}

		byUser := make(map[int64][]*model.Transaction)
		for _, t := range transactions {
			byUser[t.UserID] = append(byUser[t.UserID], t)
		}
		for _, u := range users {
			derived := derive(byUser[u.ID])
			if derived != u.Balance {
				discrepancies = append(discrepancies, Discrepancy{UserID: u.ID, Balance: u.Balance, Derived: derived})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return discrepancies, nil
}
