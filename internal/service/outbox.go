package service

import (
	"context"
	"encoding/json"
	"fmt"

	"courierledger/internal/model"
	"courierledger/internal/repository"
	"courierledger/pkg/idgen"

	"gorm.io/gorm"
)

// writeEvent 在业务事务内写入 outbox，随事务一起提交或回滚
func writeEvent(ctx context.Context, tx *gorm.DB, repo *repository.OutboxRepository, topic, eventType string, payload any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := &model.OutboxMessage{
		MessageKey: idgen.GenerateMessageKey(),
		EventType:  eventType,
		Topic:      topic,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := repo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
