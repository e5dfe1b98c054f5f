package ioc

import (
	"context"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/pkg/loopjob"
	"gitee.com/flycash/broadcast-platform/internal/service/orchestrator"
	"github.com/meoying/dlock-go"
)

const sweepInterval = time.Minute

// Task 常驻后台任务
type Task interface {
	Run(ctx context.Context)
}

// InitTasks 汇总全部后台任务，对账扫描靠分布式锁保证全局单实例
func InitTasks(dclient dlock.Client, sweep *orchestrator.SweepTask) []Task {
	return []Task{
		loopjob.NewInfiniteLoop(dclient, sweep.Do, "broadcast:sweep", sweepInterval),
	}
}
