package service

import (
	"context"
	"fmt"

	"earnlink/internal/config"
	"earnlink/internal/model"
	"earnlink/internal/repository"
)

// RewardService 注册奖励：新用户欢迎奖励，直接邀请人和间接邀请人的推荐奖励
type RewardService struct {
	pricing config.PricingConfig
	ledger  *LedgerService
}

func NewRewardService(pricing config.PricingConfig, ledger *LedgerService) *RewardService {
	return &RewardService{pricing: pricing, ledger: ledger}
}

// Attribute 必须在注册事务内调用。referrer 为 nil 表示无邀请人，grandReferrer 同理
func (s *RewardService) Attribute(ctx context.Context, tx repository.Store, newUser, referrer, grandReferrer *model.User) error {
	if err := s.credit(ctx, tx, newUser.ID, model.TransactionTypeTopUp, s.pricing.NewUserBonus,
		newUser.Phone, "Welcome Bonus"); err != nil {
		return err
	}
	if referrer == nil {
		return nil
	}

	if err := s.credit(ctx, tx, referrer.ID, model.TransactionTypeReferral, s.pricing.DirectReferral,
		newUser.Phone, fmt.Sprintf("Direct referral: %s", newUser.Username)); err != nil {
		return err
	}
	if grandReferrer == nil {
		return nil
	}

	return s.credit(ctx, tx, grandReferrer.ID, model.TransactionTypeReferral, s.pricing.IndirectReferral,
		newUser.Phone, fmt.Sprintf("Indirect referral from %s", referrer.Username))
}

// credit 加余额和累计收益，并记录一条成功的入账流水。金额为 0 时不产生流水
func (s *RewardService) credit(ctx context.Context, tx repository.Store, userID int64, txType string, amount int64, phone, description string) error {
	if amount <= 0 {
		return nil
	}
	if err := tx.Users().Credit(ctx, userID, amount); err != nil {
		return fmt.Errorf("发放奖励失败: userID=%d: %w", userID, mapUserErr(err))
	}
	_, err := s.ledger.Record(ctx, tx, &RecordRequest{
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Phone:       phone,
		Status:      model.TransactionStatusSuccess,
		Description: description,
	})
	return err
}
