package job

import (
	"context"
	"errors"
	"testing"

	"courierledger/internal/config"
	"courierledger/internal/infrastructure/database/dbtest"
	"courierledger/internal/infrastructure/mq"
	"courierledger/internal/model"

	"github.com/IBM/sarama/mocks"
	"gorm.io/gorm"
)

func TestOutboxSenderDeliversAndRetries(t *testing.T) {
	db := dbtest.Open(t)
	cfg := config.Default()
	cfg.Business.MaxRetryCount = 2

	sent := &model.OutboxMessage{MessageKey: "MSG-1", EventType: model.EventAllocationCreated, Topic: "billing.allocation", Payload: `{"a":1}`, Status: model.OutboxStatusPending}
	failing := &model.OutboxMessage{MessageKey: "MSG-2", EventType: model.EventRateSlabChanged, Topic: "billing.rate_change", Payload: `{"b":2}`, Status: model.OutboxStatusPending}
	for _, m := range []*model.OutboxMessage{sent, failing} {
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed outbox: %v", err)
		}
	}

	producer := mocks.NewSyncProducer(t, mq.NewKafkaConfig())
	publisher := mq.NewKafkaPublisher(producer)
	defer publisher.Close()

	errBroker := errors.New("broker unavailable")
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndFail(errBroker)
	producer.ExpectSendMessageAndFail(errBroker)

	s := NewOutboxSender(db, publisher, cfg)
	ctx := context.Background()

	s.processPendingMessages(ctx)

	first := reload(t, db, sent.ID)
	if first.Status != model.OutboxStatusSent {
		t.Fatalf("message 1 status = %s, want SENT", first.Status)
	}
	second := reload(t, db, failing.ID)
	if second.Status != model.OutboxStatusPending || second.RetryCount != 1 {
		t.Fatalf("message 2 after first failure: status=%s retry=%d", second.Status, second.RetryCount)
	}

	// 第二次失败达到上限
	s.processPendingMessages(ctx)
	second = reload(t, db, failing.ID)
	if second.Status != model.OutboxStatusFailed || second.RetryCount != 2 {
		t.Fatalf("message 2 after retries: status=%s retry=%d", second.Status, second.RetryCount)
	}

	// 没有待发送消息时不会再调用 producer
	s.processPendingMessages(ctx)
}

// reload 每次用新的结构体读取，避免 gorm 把旧主键拼进条件
func reload(t *testing.T, db *gorm.DB, id int64) model.OutboxMessage {
	t.Helper()
	var msg model.OutboxMessage
	if err := db.Where("id = ?", id).First(&msg).Error; err != nil {
		t.Fatalf("load outbox message %d: %v", id, err)
	}
	return msg
}
