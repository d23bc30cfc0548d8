package repository

import (
	"context"
	"errors"

	"earnlink/internal/model"

	"gorm.io/gorm"
)

type GormUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Create(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateUser
	}
	return err
}

func (r *GormUserRepository) first(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormUserRepository) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	return r.first(ctx, "phone = ?", phone)
}

func (r *GormUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *GormUserRepository) GetByReferralCode(ctx context.Context, code string) (*model.User, error) {
	return r.first(ctx, "referral_code = ?", code)
}

func (r *GormUserRepository) ListAll(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	err := r.db.WithContext(ctx).Order("id ASC").Find(&users).Error
	return users, err
}

func (r *GormUserRepository) ListByReferrer(ctx context.Context, referrerID int64) ([]*model.User, error) {
	var users []*model.User
	err := r.db.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("id ASC").
		Find(&users).Error
	return users, err
}

func (r *GormUserRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Count(&total).Error
	return total, err
}

func (r *GormUserRepository) Credit(ctx context.Context, id int64, amount int64) error {
	return r.update(ctx, id, map[string]interface{}{
		"balance":      gorm.Expr("balance + ?", amount),
		"total_earned": gorm.Expr("total_earned + ?", amount),
	})
}

func (r *GormUserRepository) Increase(ctx context.Context, id int64, amount int64) error {
	return r.update(ctx, id, map[string]interface{}{
		"balance": gorm.Expr("balance + ?", amount),
	})
}

func (r *GormUserRepository) update(ctx context.Context, id int64, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Deduct 扣减余额
//
// 【关键点】条件更新 balance >= amount，数据库保证不会扣成负数
func (r *GormUserRepository) Deduct(ctx context.Context, id int64, amount int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND balance >= ?", id, amount).
		Update("balance", gorm.Expr("balance - ?", amount))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrBalanceNotEnough
	}

	return nil
}
