package job

import (
	"context"
	"fmt"
	"log"

	"earnlink/internal/service"

	"github.com/robfig/cron/v3"
)

// Reconciler 对账接口，由 LedgerService 实现
type Reconciler interface {
	Reconcile(ctx context.Context) ([]service.Discrepancy, error)
}

// LedgerReconcileJob 按 cron 表达式定时核对余额与流水
type LedgerReconcileJob struct {
	reconciler Reconciler
	schedule   string
	cron       *cron.Cron
}

func NewLedgerReconcileJob(reconciler Reconciler, schedule string) *LedgerReconcileJob {
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &LedgerReconcileJob{
		reconciler: reconciler,
		schedule:   schedule,
		cron:       cron.New(),
	}
}

// Start 注册定时任务后立即返回；ctx 结束时停止调度
func (j *LedgerReconcileJob) Start(ctx context.Context) error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("对账任务表达式无效: %s: %w", j.schedule, err)
	}
	j.cron.Start()
	log.Printf("[LedgerReconcile] 对账任务启动: schedule=%s", j.schedule)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()
	return nil
}

// Stop 等待正在执行的对账结束
func (j *LedgerReconcileJob) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce 执行一次对账，返回不一致的用户数
func (j *LedgerReconcileJob) RunOnce(ctx context.Context) int {
	discrepancies, err := j.reconciler.Reconcile(ctx)
	if err != nil {
		log.Printf("[LedgerReconcile] 对账失败: %v", err)
		return 0
	}
	for _, d := range discrepancies {
		log.Printf("[LedgerReconcile] 余额与流水不一致: userID=%d, balance=%d, derived=%d", d.UserID, d.Balance, d.Derived)
	}
	return len(discrepancies)
}
