package model

import (
	"time"
)

// User 用户表
// Balance 为可提现余额，TotalEarned 为累计收益（只增不减）
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement:false" json:"id,string"`              // 雪花ID，递增即注册顺序
	Username     string    `gorm:"type:varchar(64);not null" json:"username"`                    // 显示名
	Phone        string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"phone"`           // 手机号，全局唯一
	Email        *string   `gorm:"type:varchar(128);index" json:"email,omitempty"`               // 可选
	Avatar       *string   `gorm:"type:varchar(512)" json:"avatar,omitempty"`                    // 可选
	ReferralCode string    `gorm:"type:varchar(96);uniqueIndex;not null" json:"referral_code"`   // 邀请码
	ReferrerID   *int64    `gorm:"index" json:"referrer_id,string,omitempty"`                    // 邀请人（弱引用）
	Balance      int64     `gorm:"not null;default:0" json:"balance"`                            // 可提现余额
	TotalEarned  int64     `gorm:"not null;default:0" json:"total_earned"`                       // 累计收益
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Profile 推送到外部资料库的字段
type Profile struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	Phone        string  `json:"phone"`
	Email        *string `json:"email"`
	Avatar       *string `json:"avatar"`
	ReferralCode string  `json:"referral_code"`
	Balance      int64   `json:"balance"`
	TotalEarned  int64   `json:"total_earned"`
	CreatedAt    string  `json:"created_at"`
}
