package ioc

import (
	apihttp "gitee.com/flycash/broadcast-platform/internal/api/http"
	"gitee.com/flycash/broadcast-platform/internal/service/orchestrator"
	"github.com/gotomicro/ego/server/egin"
)

func InitWebServer(svc orchestrator.Orchestrator) *egin.Component {
	server := egin.Load("server.http").Build()
	apihttp.NewHandler(server.Engine, svc)
	return server
}
