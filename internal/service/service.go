package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"earnlink/internal/infrastructure/lock"
	"earnlink/internal/model"
	"earnlink/internal/repository"
	"earnlink/internal/session"
)

// ProfileSyncer 外部用户资料库，失败只记录日志
type ProfileSyncer interface {
	SyncProfile(ctx context.Context, user *model.User) error
}

// Dependencies 各服务共享的基础设施
type Dependencies struct {
	Store    repository.Store
	Locker   lock.Locker
	Sessions session.Store
	Syncer   ProfileSyncer // 可为 nil，表示不同步
}

// writeOutbox 在同一事务内写入本地消息表，由 OutboxSender 投递到 Kafka
func writeOutbox(ctx context.Context, tx repository.Store, topic, eventType string, aggregateID int64, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	msg := &model.OutboxMessage{
		EventType:   eventType,
		AggregateID: aggregateID,
		MessageKey:  strconv.FormatInt(aggregateID, 10),
		Topic:       topic,
		Payload:     string(payloadBytes),
		Status:      model.OutboxStatusPending,
	}
	if err := tx.Outbox().Create(ctx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
