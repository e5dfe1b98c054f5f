package ioc

import (
	"github.com/ego-component/egorm"
)

// InitDB 基于 config 里的 mysql 段初始化数据库连接
func InitDB() *egorm.Component {
	return egorm.Load("mysql").Build()
}
