package model

import (
	"time"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeTopUp    = "TOP_UP"   // 注册奖励
	TransactionTypeReferral = "REFERRAL" // 邀请奖励
	TransactionTypeWithdraw = "WITHDRAW" // 提现
)

// ============================================================================
// 交易状态及状态机
// ============================================================================

const (
	TransactionStatusPending = "PENDING"
	TransactionStatusSuccess = "SUCCESS"
	TransactionStatusFailed  = "FAILED"
)

// 只有提现流水会改变状态，且只会改变一次
var ValidStatusTransitions = map[string][]string{
	TransactionStatusPending: {TransactionStatusSuccess, TransactionStatusFailed},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// ============================================================================
// 流水实体
// ============================================================================

// Transaction 流水表
//
// 【重要】只追加，不删除；唯一允许的修改是提现流水的 PENDING -> SUCCESS/FAILED
type Transaction struct {
	ID          int64     `gorm:"primaryKey;autoIncrement:false" json:"id,string"` // 雪花ID
	UserID      int64     `gorm:"index;not null" json:"user_id,string"`            // 所属用户
	Type        string    `gorm:"type:varchar(20);not null" json:"type"`           // 交易类型
	Amount      int64     `gorm:"not null" json:"amount"`                          // 金额（始终为正数）
	Phone       string    `gorm:"type:varchar(32);not null" json:"phone"`          // 发生时的手机号
	Status      string    `gorm:"type:varchar(20);index;not null" json:"status"`   // 状态
	Description string    `gorm:"type:varchar(256)" json:"description"`            // 描述
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "ledger_transaction"
}

// IsCredit 入账流水
func (t *Transaction) IsCredit() bool {
	return t.Type == TransactionTypeTopUp || t.Type == TransactionTypeReferral
}
