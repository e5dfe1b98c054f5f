package audience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/errs"
	"gitee.com/flycash/broadcast-platform/internal/pkg/ratelimit"
	"gitee.com/flycash/broadcast-platform/internal/pkg/retry"
	"github.com/gotomicro/ego/core/elog"
	"golang.org/x/sync/errgroup"
)

const (
	// maxInflightLookups 目录服务并发上限，防止打挂上游
	maxInflightLookups = 30
	// resolveChunkSize 批量解析用户时的单次请求大小
	resolveChunkSize = 100

	limitKey = "directory"
)

// Resolver 把目标受众解析成去重后的接收者列表
type Resolver interface {
	Resolve(ctx context.Context, audience domain.Audience) ([]domain.Recipient, error)
}

type resolver struct {
	directory DirectoryService
	limiter   ratelimit.Limiter
	settings  domain.DeliverySettings
	logger    *elog.Component
}

// NewResolver 创建受众解析器
func NewResolver(directory DirectoryService, limiter ratelimit.Limiter, settings domain.DeliverySettings) Resolver {
	return &resolver{
		directory: directory,
		limiter:   limiter,
		settings:  settings,
		logger:    elog.DefaultLogger,
	}
}

func (r *resolver) Resolve(ctx context.Context, audience domain.Audience) ([]domain.Recipient, error) {
	if err := audience.Validate(); err != nil {
		return nil, err
	}

	collector := newRecipientCollector()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxInflightLookups)

	if audience.AllUsers {
		eg.Go(func() error {
			return r.resolvePaged(egCtx, collector, func(ctx context.Context, token string) (MemberPage, error) {
				return r.directory.ResolveAllUsers(ctx, token)
			})
		})
	}

	for _, chunk := range chunkStrings(audience.UserIDs, resolveChunkSize) {
		eg.Go(func() error {
			users, err := withRetry(egCtx, r, func(ctx context.Context) ([]UserInfo, error) {
				return r.directory.ResolveUsers(ctx, chunk)
			})
			if err != nil {
				return fmt.Errorf("解析用户失败: %w", err)
			}
			collector.addUsers(users)
			return nil
		})
	}

	if len(audience.TeamIDs) > 0 {
		eg.Go(func() error {
			teams, err := withRetry(egCtx, r, func(ctx context.Context) ([]TeamInfo, error) {
				return r.directory.ResolveTeams(ctx, audience.TeamIDs)
			})
			if err != nil {
				return fmt.Errorf("解析团队失败: %w", err)
			}
			collector.addTeams(teams)
			return nil
		})
	}

	for _, teamID := range audience.RosterTeamIDs {
		eg.Go(func() error {
			return r.resolvePaged(egCtx, collector, func(ctx context.Context, token string) (MemberPage, error) {
				return r.directory.ResolveTeamRoster(ctx, teamID, token)
			})
		})
	}

	for _, groupID := range audience.GroupIDs {
		eg.Go(func() error {
			return r.resolvePaged(egCtx, collector, func(ctx context.Context, token string) (MemberPage, error) {
				return r.directory.ResolveGroupMembers(ctx, groupID, token)
			})
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return collector.result(), nil
}

// resolvePaged 逐页拉取成员，每一页都走限流与退避
func (r *resolver) resolvePaged(ctx context.Context, collector *recipientCollector,
	fetch func(ctx context.Context, token string) (MemberPage, error),
) error {
	token := ""
	for {
		page, err := withRetry(ctx, r, func(ctx context.Context) (MemberPage, error) {
			return fetch(ctx, token)
		})
		if err != nil {
			return fmt.Errorf("分页拉取成员失败: %w", err)
		}
		collector.addUsers(page.Members)
		if page.NextToken == "" {
			return nil
		}
		token = page.NextToken
	}
}

// withRetry 对目录调用施加本地限流与429退避
func withRetry[T any](ctx context.Context, r *resolver, call func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	backoff, err := retry.NewRetry(retry.Config{
		Type: "exponential",
		ExponentialBackoff: &retry.ExponentialBackoffConfig{
			InitialInterval: r.settings.InitialBackoff,
			MaxInterval:     r.settings.MaxBackoff,
			MaxRetries:      r.settings.MaxAttempts,
		},
	})
	if err != nil {
		return zero, err
	}

	for {
		limited, err := r.limiter.Limit(ctx, limitKey)
		if err != nil {
			// 限流器故障时放行，目录服务自身的429还能兜底
			r.logger.Warn("限流器检测失败", elog.FieldErr(err))
		}
		if limited {
			err = fmt.Errorf("%w: key=%s", errs.ErrRateLimited, limitKey)
		} else {
			var res T
			res, err = call(ctx)
			if err == nil {
				return res, nil
			}
			if !errors.Is(err, ErrDirectoryThrottled) {
				return zero, err
			}
		}

		delay, ok := backoff.Next()
		if !ok {
			return zero, err
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// recipientCollector 按接收者ID去重的并发安全收集器
type recipientCollector struct {
	mu         sync.Mutex
	recipients map[string]domain.Recipient
}

func newRecipientCollector() *recipientCollector {
	return &recipientCollector{
		recipients: make(map[string]domain.Recipient),
	}
}

func (c *recipientCollector) addUsers(users []UserInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range users {
		if _, ok := c.recipients[u.UserID]; !ok {
			c.recipients[u.UserID] = domain.NewUserRecipient(u.UserID, u.ConversationID, u.ServiceURL)
		}
	}
}

func (c *recipientCollector) addTeams(teams []TeamInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range teams {
		if _, ok := c.recipients[t.TeamID]; !ok {
			c.recipients[t.TeamID] = domain.NewTeamRecipient(t.TeamID, t.ConversationID, t.ServiceURL)
		}
	}
}

func (c *recipientCollector) result() []domain.Recipient {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]domain.Recipient, 0, len(c.recipients))
	for _, recipient := range c.recipients {
		res = append(res, recipient)
	}
	return res
}

// chunkStrings 把ID列表按固定大小切块
func chunkStrings(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
