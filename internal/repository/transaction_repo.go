package repository

import (
	"context"
	"errors"

	"earnlink/internal/model"

	"gorm.io/gorm"
)

type GormTransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

func (r *GormTransactionRepository) Create(ctx context.Context, trans *model.Transaction) error {
	return r.db.WithContext(ctx).Create(trans).Error
}

func (r *GormTransactionRepository) GetByID(ctx context.Context, id int64) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

func (r *GormTransactionRepository) ListByUserID(ctx context.Context, userID int64) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&transactions).Error
	return transactions, err
}

func (r *GormTransactionRepository) ListAll(ctx context.Context) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).Order("id DESC").Find(&transactions).Error
	return transactions, err
}

func (r *GormTransactionRepository) ListByTypeAndStatus(ctx context.Context, txType, status string) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ?", txType, status).
		Order("id DESC").
		Find(&transactions).Error
	return transactions, err
}

// UpdateStatus 带条件的状态流转，当前状态不是 fromStatus 时返回 ErrTransactionStatusInvalid
func (r *GormTransactionRepository) UpdateStatus(ctx context.Context, id int64, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrTransactionStatusInvalid
	}

	result := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrTransactionStatusInvalid
	}

	return nil
}
