package audience

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopLimiter struct{}

func (noopLimiter) Limit(context.Context, string) (bool, error) { return false, nil }

// fakeDirectory 内存目录，throttleLeft 大于0时前几次调用返回限流
type fakeDirectory struct {
	mu           sync.Mutex
	users        map[string]UserInfo
	teams        map[string]TeamInfo
	allPages     []MemberPage
	rosters      map[string][]MemberPage
	groups       map[string][]MemberPage
	throttleLeft int
	calls        int
}

func (d *fakeDirectory) throttle() error {
	d.calls++
	if d.throttleLeft > 0 {
		d.throttleLeft--
		return fmt.Errorf("%w: 稍后重试", ErrDirectoryThrottled)
	}
	return nil
}

func (d *fakeDirectory) ResolveUsers(_ context.Context, userIDs []string) ([]UserInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.throttle(); err != nil {
		return nil, err
	}
	res := make([]UserInfo, 0, len(userIDs))
	for _, id := range userIDs {
		if u, ok := d.users[id]; ok {
			res = append(res, u)
		}
	}
	return res, nil
}

func (d *fakeDirectory) ResolveAllUsers(_ context.Context, pageToken string) (MemberPage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.throttle(); err != nil {
		return MemberPage{}, err
	}
	return pickPage(d.allPages, pageToken)
}

func (d *fakeDirectory) ResolveTeams(_ context.Context, teamIDs []string) ([]TeamInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.throttle(); err != nil {
		return nil, err
	}
	res := make([]TeamInfo, 0, len(teamIDs))
	for _, id := range teamIDs {
		if t, ok := d.teams[id]; ok {
			res = append(res, t)
		}
	}
	return res, nil
}

func (d *fakeDirectory) ResolveTeamRoster(_ context.Context, teamID, pageToken string) (MemberPage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.throttle(); err != nil {
		return MemberPage{}, err
	}
	return pickPage(d.rosters[teamID], pageToken)
}

func (d *fakeDirectory) ResolveGroupMembers(_ context.Context, groupID, pageToken string) (MemberPage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.throttle(); err != nil {
		return MemberPage{}, err
	}
	return pickPage(d.groups[groupID], pageToken)
}

func pickPage(pages []MemberPage, token string) (MemberPage, error) {
	if len(pages) == 0 {
		return MemberPage{}, nil
	}
	if token == "" {
		return pages[0], nil
	}
	for i := range pages {
		if pages[i].NextToken == token && i+1 < len(pages) {
			return pages[i+1], nil
		}
	}
	return MemberPage{}, fmt.Errorf("未知的分页标记 %q", token)
}

func user(id string) UserInfo {
	return UserInfo{UserID: id, ConversationID: "conv-" + id, ServiceURL: "https://push.example.com"}
}

func fastResolverSettings() domain.DeliverySettings {
	return domain.DeliverySettings{
		MaxAttempts:     3,
		MaxRedeliveries: 3,
		RedeliveryDelay: time.Minute,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      2 * time.Millisecond,
	}
}

func recipientIDs(recipients []domain.Recipient) []string {
	ids := make([]string, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	return ids
}

func TestResolveUsersAndTeams(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		users: map[string]UserInfo{"u1": user("u1"), "u2": user("u2")},
		teams: map[string]TeamInfo{
			"t1": {TeamID: "t1", ConversationID: "conv-t1", ServiceURL: "https://push.example.com"},
		},
	}
	r := NewResolver(dir, noopLimiter{}, fastResolverSettings())

	recipients, err := r.Resolve(context.Background(), domain.Audience{
		UserIDs: []string{"u1", "u2"},
		TeamIDs: []string{"t1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "u1", "u2"}, recipientIDs(recipients))

	for _, recipient := range recipients {
		if recipient.ID == "t1" {
			assert.Equal(t, domain.RecipientTypeTeam, recipient.Type)
		} else {
			assert.Equal(t, domain.RecipientTypeUser, recipient.Type)
		}
	}
}

func TestResolveDeduplicatesAcrossSources(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		users: map[string]UserInfo{"u1": user("u1")},
		groups: map[string][]MemberPage{
			// u1 同时出现在显式ID和群组里
			"g1": {{Members: []UserInfo{user("u1"), user("u9")}}},
		},
	}
	r := NewResolver(dir, noopLimiter{}, fastResolverSettings())

	recipients, err := r.Resolve(context.Background(), domain.Audience{
		UserIDs:  []string{"u1"},
		GroupIDs: []string{"g1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u9"}, recipientIDs(recipients))
}

func TestResolveAllUsersPaged(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		allPages: []MemberPage{
			{Members: []UserInfo{user("u1"), user("u2")}, NextToken: "p2"},
			{Members: []UserInfo{user("u3"), user("u4")}, NextToken: "p3"},
			{Members: []UserInfo{user("u5")}},
		},
	}
	r := NewResolver(dir, noopLimiter{}, fastResolverSettings())

	recipients, err := r.Resolve(context.Background(), domain.Audience{AllUsers: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3", "u4", "u5"}, recipientIDs(recipients))
}

func TestResolveRetriesAfterThrottle(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		users:        map[string]UserInfo{"u1": user("u1")},
		throttleLeft: 2,
	}
	r := NewResolver(dir, noopLimiter{}, fastResolverSettings())

	recipients, err := r.Resolve(context.Background(), domain.Audience{UserIDs: []string{"u1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, recipientIDs(recipients))
	// 前两次被限流，第三次成功
	assert.Equal(t, 3, dir.calls)
}

func TestResolveFailsWhenThrottleRetriesExhausted(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		users:        map[string]UserInfo{"u1": user("u1")},
		throttleLeft: 100,
	}
	r := NewResolver(dir, noopLimiter{}, fastResolverSettings())

	_, err := r.Resolve(context.Background(), domain.Audience{UserIDs: []string{"u1"}})
	assert.ErrorIs(t, err, ErrDirectoryThrottled)
}

func TestResolveRejectsEmptyAudience(t *testing.T) {
	t.Parallel()
	r := NewResolver(&fakeDirectory{}, noopLimiter{}, fastResolverSettings())
	_, err := r.Resolve(context.Background(), domain.Audience{})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}
