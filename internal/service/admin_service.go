package service

import (
	"context"

	"earnlink/internal/model"
	"earnlink/internal/repository"
)

type Overview struct {
	TotalUsers         int64 `json:"total_users"`
	PendingWithdrawals int   `json:"pending_withdrawals"`
	TotalWelcomeBonus  int64 `json:"total_welcome_bonus"`
	TotalReferral      int64 `json:"total_referral"`
	TotalWithdrawn     int64 `json:"total_withdrawn"`
}

type AdminService struct {
	store repository.Store
}

func NewAdminService(deps Dependencies) *AdminService {
	return &AdminService{store: deps.Store}
}

// Overview 运营概览，只统计成功的流水
func (s *AdminService) Overview(ctx context.Context) (*Overview, error) {
	overview := &Overview{}
	err := s.store.Snapshot(ctx, func(tx repository.Store) error {
		total, err := tx.Users().Count(ctx)
		if err != nil {
			return err
		}
		overview.TotalUsers = total

		transactions, err := tx.Transactions().ListAll(ctx)
		if err != nil {
			return err
		}
		for _, t := range transactions {
			if t.Status == model.TransactionStatusPending && t.Type == model.TransactionTypeWithdraw {
				overview.PendingWithdrawals++
			}
			if t.Status != model.TransactionStatusSuccess {
				continue
			}
			switch t.Type {
			case model.TransactionTypeTopUp:
				overview.TotalWelcomeBonus += t.Amount
			case model.TransactionTypeReferral:
				overview.TotalReferral += t.Amount
			case model.TransactionTypeWithdraw:
				overview.TotalWithdrawn += t.Amount
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return overview, nil
}
