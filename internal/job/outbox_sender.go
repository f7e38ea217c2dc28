package job

import (
	"context"
	"time"

	"courierledger/internal/config"
	"courierledger/internal/infrastructure/logging"
	"courierledger/internal/infrastructure/mq"
	"courierledger/internal/model"
	"courierledger/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OutboxSender 轮询 outbox_message，把 PENDING 消息投递到 Kafka
//
// 投递是至少一次：发送成功但状态更新失败时，下一轮会重发，消费方按 message_key 去重。
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	log        *logrus.Entry
}

func NewOutboxSender(db *gorm.DB, publisher mq.Publisher, cfg *config.Config) *OutboxSender {
	interval := time.Duration(cfg.Business.OutboxIntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   interval,
		batchSize:  100,
		log:        logging.Module("outbox_sender"),
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info("任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.WithError(err).Error("查询消息失败")
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	entry := s.log.WithFields(logrus.Fields{
		"id":         msg.ID,
		"topic":      msg.Topic,
		"key":        msg.MessageKey,
		"event_type": msg.EventType,
	})

	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			entry.WithError(updateErr).Error("更新消息状态失败")
		} else {
			entry.Debug("消息发送成功")
		}
		return
	}

	entry.WithError(err).Warn("消息发送失败")

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		entry.WithError(err).Error("增加重试次数失败")
	}

	if msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			entry.WithError(err).Error("标记消息失败状态失败")
		} else {
			entry.Error("消息超过最大重试次数，标记为失败")
		}
	}
}
