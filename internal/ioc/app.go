package ioc

import (
	"context"

	"github.com/gotomicro/ego/server/egin"
)

// Consumer 常驻消息消费者
type Consumer interface {
	Start(ctx context.Context)
}

// App 汇总一个进程里要跑的全部组件
type App struct {
	WebServer *egin.Component
	Tasks     []Task
	Consumers []Consumer
}

func (a *App) StartTasks(ctx context.Context) {
	for _, t := range a.Tasks {
		go func(t Task) {
			t.Run(ctx)
		}(t)
	}
}

func (a *App) StartConsumers(ctx context.Context) {
	for _, c := range a.Consumers {
		c.Start(ctx)
	}
}
