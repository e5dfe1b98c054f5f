package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

//go:generate mockgen -source=./client.go -package=deliverymocks -destination=./mocks/client.mock.go -typed Client

// Payload 投递给单个会话的消息体
type Payload struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Important bool   `json:"important"`
}

// Client 外部投递能力：把一条消息送进一个会话
// 返回HTTP风格的状态码，错误码不抛异常，由调用方映射成显式结果
type Client interface {
	Deliver(ctx context.Context, serviceURL, conversationID string, payload Payload) (int, error)
}

// HTTPClient 基于HTTP的投递客户端
type HTTPClient struct {
	client *http.Client
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Deliver(ctx context.Context, serviceURL, conversationID string, payload Payload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("序列化消息体失败: %w", err)
	}

	url := fmt.Sprintf("%s/v3/conversations/%s/activities", serviceURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("投递请求失败: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
