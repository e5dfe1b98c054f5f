package audience

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPDirectoryService 基于HTTP的目录服务客户端
// 429会被映射成 ErrDirectoryThrottled，由解析器退避重试
type HTTPDirectoryService struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDirectoryService(baseURL string, timeout time.Duration) *HTTPDirectoryService {
	return &HTTPDirectoryService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPDirectoryService) ResolveUsers(ctx context.Context, userIDs []string) ([]UserInfo, error) {
	var users []UserInfo
	err := s.get(ctx, "/v1/users", url.Values{"ids": {strings.Join(userIDs, ",")}}, &users)
	return users, err
}

func (s *HTTPDirectoryService) ResolveAllUsers(ctx context.Context, pageToken string) (MemberPage, error) {
	var page memberPageBody
	err := s.get(ctx, "/v1/users/all", url.Values{"pageToken": {pageToken}}, &page)
	return page.toMemberPage(), err
}

func (s *HTTPDirectoryService) ResolveTeams(ctx context.Context, teamIDs []string) ([]TeamInfo, error) {
	var teams []TeamInfo
	err := s.get(ctx, "/v1/teams", url.Values{"ids": {strings.Join(teamIDs, ",")}}, &teams)
	return teams, err
}

func (s *HTTPDirectoryService) ResolveTeamRoster(ctx context.Context, teamID, pageToken string) (MemberPage, error) {
	var page memberPageBody
	err := s.get(ctx, "/v1/teams/"+url.PathEscape(teamID)+"/members",
		url.Values{"pageToken": {pageToken}}, &page)
	return page.toMemberPage(), err
}

func (s *HTTPDirectoryService) ResolveGroupMembers(ctx context.Context, groupID, pageToken string) (MemberPage, error) {
	var page memberPageBody
	err := s.get(ctx, "/v1/groups/"+url.PathEscape(groupID)+"/members",
		url.Values{"pageToken": {pageToken}}, &page)
	return page.toMemberPage(), err
}

func (s *HTTPDirectoryService) get(ctx context.Context, path string, query url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("目录请求失败: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrDirectoryThrottled, path)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("目录请求失败: %s 状态码 %d", path, resp.StatusCode)
	}

	if err = json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("解析目录响应失败: %w", err)
	}
	return nil
}

type memberPageBody struct {
	Members   []UserInfo `json:"members"`
	NextToken string     `json:"nextToken"`
}

func (b memberPageBody) toMemberPage() MemberPage {
	return MemberPage{Members: b.Members, NextToken: b.NextToken}
}
