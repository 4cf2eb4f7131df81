package job

import (
	"context"
	"time"

	"printpay/internal/config"
	"printpay/internal/infrastructure/mq"
	"printpay/internal/model"
	"printpay/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OutboxSender drains pending outbox rows to kafka. Events are staged in the
// same DB transaction as the wallet mutation they describe, so this is the
// only publisher and can retry freely.
type OutboxSender struct {
	db         *gorm.DB
	outboxRepo *repository.OutboxRepository
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		db:         db,
		outboxRepo: repository.NewOutboxRepository(db),
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	logrus.Info("[OutboxSender] started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("[OutboxSender] stopping")
			return
		case <-s.stopCh:
			logrus.Info("[OutboxSender] stopped")
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
		logrus.Errorf("[OutboxSender] failed to fetch pending messages: %v", err)
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := mq.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)

	if err == nil {
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			logrus.Errorf("[OutboxSender] failed to mark message sent: id=%d, err=%v", msg.ID, updateErr)
		}
		return
	}

	logrus.Warnf("[OutboxSender] send failed: id=%d, err=%v", msg.ID, err)

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		logrus.Errorf("[OutboxSender] failed to bump retry count: id=%d, err=%v", msg.ID, err)
	}

	if msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			logrus.Errorf("[OutboxSender] failed to mark message failed: id=%d, err=%v", msg.ID, err)
		} else {
			logrus.Warnf("[OutboxSender] message exceeded max retries: id=%d", msg.ID)
		}
	}
}
