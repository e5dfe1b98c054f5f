package audience

import (
	"context"
	"errors"
)

//go:generate mockgen -source=./types.go -package=audiencemocks -destination=./mocks/directory.mock.go -typed DirectoryService

// ErrDirectoryThrottled 目录服务返回429时由实现方包装返回
var ErrDirectoryThrottled = errors.New("目录服务限流")

// UserInfo 目录服务返回的用户信息
type UserInfo struct {
	UserID         string
	ConversationID string // 为空表示尚未安装应用
	ServiceURL     string
}

// TeamInfo 目录服务返回的团队信息
type TeamInfo struct {
	TeamID         string
	ConversationID string
	ServiceURL     string
}

// MemberPage 成员分页，NextToken 为空表示没有下一页
type MemberPage struct {
	Members   []UserInfo
	NextToken string
}

// DirectoryService 外部目录/花名册服务
// 上游有限流，调用方需要配合退避重试
type DirectoryService interface {
	// ResolveUsers 批量解析用户
	ResolveUsers(ctx context.Context, userIDs []string) ([]UserInfo, error)
	// ResolveAllUsers 分页拉取全组织用户
	ResolveAllUsers(ctx context.Context, pageToken string) (MemberPage, error)
	// ResolveTeams 批量解析团队频道信息
	ResolveTeams(ctx context.Context, teamIDs []string) ([]TeamInfo, error)
	// ResolveTeamRoster 分页拉取团队成员
	ResolveTeamRoster(ctx context.Context, teamID, pageToken string) (MemberPage, error)
	// ResolveGroupMembers 分页拉取群组成员
	ResolveGroupMembers(ctx context.Context, groupID, pageToken string) (MemberPage, error)
}
