package model

import "time"

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 事件类型
const (
	EventUserRegistered      = "user_registered"
	EventWithdrawalRequested = "withdrawal_requested"
	EventWithdrawalSettled   = "withdrawal_settled"
)

// OutboxMessage 本地消息表，与业务数据在同一事务内写入
//
// MessageKey 作为 Kafka 分区 key，同一用户或同一笔流水的事件保持有序
type OutboxMessage struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType   string    `gorm:"type:varchar(32);not null" json:"event_type"`
	AggregateID int64     `gorm:"index;not null" json:"aggregate_id,string"` // 用户 ID 或流水 ID
	MessageKey  string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic       string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload     string    `gorm:"type:text;not null" json:"payload"`
	Status      string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount  int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}
