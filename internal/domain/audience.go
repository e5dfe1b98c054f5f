package domain

import (
	"fmt"

	"gitee.com/flycash/broadcast-platform/internal/errs"
)

// Audience 一次广播的目标受众
// 四种选择方式可以组合，解析后按接收者ID去重
type Audience struct {
	// AllUsers 发给全组织用户
	AllUsers bool `json:"allUsers"`
	// UserIDs 指定用户
	UserIDs []string `json:"userIds"`
	// TeamIDs 发到这些团队的频道
	TeamIDs []string `json:"teamIds"`
	// RosterTeamIDs 发给这些团队的全部成员
	RosterTeamIDs []string `json:"rosterTeamIds"`
	// GroupIDs 发给这些群组的全部成员
	GroupIDs []string `json:"groupIds"`
}

// IsEmpty 没有选择任何目标受众
func (a Audience) IsEmpty() bool {
	return !a.AllUsers &&
		len(a.UserIDs) == 0 &&
		len(a.TeamIDs) == 0 &&
		len(a.RosterTeamIDs) == 0 &&
		len(a.GroupIDs) == 0
}

func (a Audience) Validate() error {
	if a.IsEmpty() {
		return fmt.Errorf("%w: 至少选择一个目标受众", errs.ErrInvalidParameter)
	}
	return nil
}
