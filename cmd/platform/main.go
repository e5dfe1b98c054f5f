package main

import (
	"context"

	"gitee.com/flycash/broadcast-platform/cmd/platform/ioc"
	"github.com/gotomicro/ego"
	"github.com/gotomicro/ego/core/elog"
	"github.com/gotomicro/ego/server"
)

func main() {
	egoApp := ego.New()

	app := ioc.InitApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.StartTasks(ctx)
	app.StartConsumers(ctx)

	if err := egoApp.Serve(func() server.Server {
		return app.WebServer
	}()).Run(); err != nil {
		elog.Panic("startup", elog.Any("err", err))
	}
}
