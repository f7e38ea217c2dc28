package job

import (
	"context"
	"time"

	"courierledger/internal/config"
	"courierledger/internal/infrastructure/logging"
	"courierledger/internal/service"

	"github.com/sirupsen/logrus"
)

// DriftChecker 由 service.LedgerService 实现
type DriftChecker interface {
	FindDrifts(ctx context.Context, afterID int64, limit int) ([]service.Drift, int64, error)
	ReportDrift(ctx context.Context, d service.Drift) error
}

// LedgerReconcileJob 定期全量核对 received_amount 与分配合计
//
// 发现不一致只记录日志并写 LEDGER_DRIFT 事件，不修改任何账本数据。
type LedgerReconcileJob struct {
	checker   DriftChecker
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
	log       *logrus.Entry
}

func NewLedgerReconcileJob(checker DriftChecker, cfg *config.Config) *LedgerReconcileJob {
	interval := time.Duration(cfg.Business.ReconcileIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	batchSize := cfg.Business.ReconcileBatchSize
	if batchSize <= 0 {
		batchSize = 200
	}
	return &LedgerReconcileJob{
		checker:   checker,
		stopCh:    make(chan struct{}),
		interval:  interval,
		batchSize: batchSize,
		log:       logging.Module("ledger_reconcile"),
	}
}

func (j *LedgerReconcileJob) Start(ctx context.Context) {
	j.log.Info("账本对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("任务停止")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *LedgerReconcileJob) Stop() {
	close(j.stopCh)
}

// RunOnce 扫描全部发票一遍，返回发现的不一致数量
func (j *LedgerReconcileJob) RunOnce(ctx context.Context) int {
	var afterID int64
	found := 0
	for {
		drifts, nextID, err := j.checker.FindDrifts(ctx, afterID, j.batchSize)
		if err != nil {
			j.log.WithError(err).WithField("after_id", afterID).Error("对账扫描失败")
			return found
		}

		for _, d := range drifts {
			found++
			if err := j.checker.ReportDrift(ctx, d); err != nil {
				j.log.WithError(err).WithField("invoice_id", d.InvoiceID).Error("写入对账告警失败")
			}
		}

		if nextID == 0 {
			break
		}
		afterID = nextID
	}

	if found > 0 {
		j.log.WithField("drifts", found).Warn("对账发现不一致")
	}
	return found
}
