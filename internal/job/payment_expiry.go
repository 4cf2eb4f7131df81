package job

import (
	"context"
	"time"

	"printpay/internal/config"
	"printpay/internal/model"
	"printpay/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PaymentExpiryJob cancels pending top-ups and order payments whose checkout
// link expired without a webhook. Cancellation is the same compare-and-swap
// as settlement, so a webhook racing the expiry ticks wins or loses cleanly.
type PaymentExpiryJob struct {
	db               *gorm.DB
	transactionRepo  *repository.TransactionRepository
	orderPaymentRepo *repository.OrderPaymentRepository
	cfg              *config.Config
	stopCh           chan struct{}
	interval         time.Duration
	batchSize        int
}

func NewPaymentExpiryJob(db *gorm.DB, cfg *config.Config) *PaymentExpiryJob {
	return &PaymentExpiryJob{
		db:               db,
		transactionRepo:  repository.NewTransactionRepository(db),
		orderPaymentRepo: repository.NewOrderPaymentRepository(db),
		cfg:              cfg,
		stopCh:           make(chan struct{}),
		interval:         30 * time.Second,
		batchSize:        100,
	}
}

func (j *PaymentExpiryJob) Start(ctx context.Context) {
	logrus.Info("[PaymentExpiryJob] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("[PaymentExpiryJob] stopping")
			return
		case <-j.stopCh:
			logrus.Info("[PaymentExpiryJob] stopped")
			return
		case <-ticker.C:
			j.cancelExpiredTopUps(ctx)
			j.cancelExpiredOrderPayments(ctx)
		}
	}
}

func (j *PaymentExpiryJob) Stop() {
	close(j.stopCh)
}

func (j *PaymentExpiryJob) cancelExpiredTopUps(ctx context.Context) {
	transactions, err := j.transactionRepo.GetExpiredPending(ctx, j.batchSize)
	if err != nil {
		logrus.Errorf("[PaymentExpiryJob] failed to fetch expired top-ups: %v", err)
		return
	}

	for _, trans := range transactions {
		err := j.transactionRepo.MarkTerminal(ctx, nil, trans.TransactionNo, model.TransactionStatusCancelled, "checkout link expired")
		if err != nil {
			// lost to a concurrent webhook settlement; nothing to do
			continue
		}
		logrus.WithField("transaction_no", trans.TransactionNo).Info("[PaymentExpiryJob] cancelled expired top-up")
	}
}

func (j *PaymentExpiryJob) cancelExpiredOrderPayments(ctx context.Context) {
	payments, err := j.orderPaymentRepo.GetExpiredPending(ctx, j.batchSize)
	if err != nil {
		logrus.Errorf("[PaymentExpiryJob] failed to fetch expired order payments: %v", err)
		return
	}

	for _, payment := range payments {
		err := j.orderPaymentRepo.MarkTerminal(ctx, nil, payment.PayOSOrderCode, model.TransactionStatusCancelled, "checkout link expired")
		if err != nil {
			continue
		}
		logrus.WithField("payos_order_code", payment.PayOSOrderCode).Info("[PaymentExpiryJob] cancelled expired order payment")
	}
}
