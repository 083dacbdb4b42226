package upstream

//go:generate mockgen -source=client.go -destination=mocks/validator.go -package=mocks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrSessionExpired 上游会话（cookie）失效，需要人工刷新
var ErrSessionExpired = errors.New("upstream session expired")

// RejectedError 上游明确返回的校验失败，不重试
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// Membership 上游返回的会员信息
type Membership struct {
	MemberID                   string `json:"memberId"`
	IsValid                    bool   `json:"isValid"`
	MembershipStatus           string `json:"membershipStatus"`
	NameInitials               string `json:"nameInitials"`
	MemberGrade                string `json:"memberGrade"`
	StandardsAssociationMember string `json:"standardsAssociationMember"`
	SocietyMemberships         string `json:"societyMemberships"`
	Error                      string `json:"error"`
}

// Validator 会员校验服务
type Validator interface {
	Validate(ctx context.Context, memberID string) (*Membership, error)
}

// Options 客户端参数
type Options struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	RequestInterval time.Duration // 两次请求的最小间隔
}

// Client 上游校验服务 HTTP 客户端
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

var _ Validator = (*Client)(nil)

// NewClient 创建客户端
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if opts.RequestInterval > 0 {
		limit = rate.Every(opts.RequestInterval)
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

type validateRequest struct {
	MemberID string `json:"memberId"`
}

// Validate POST /api/validate-member
func (c *Client) Validate(ctx context.Context, memberID string) (*Membership, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for request slot: %w", err)
	}

	body, err := json.Marshal(validateRequest{MemberID: memberID})
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/validate-member", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request validator failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}

	var m Membership
	decodeErr := json.Unmarshal(raw, &m)

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		if m.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrSessionExpired, m.Error)
		}
		return nil, ErrSessionExpired

	case resp.StatusCode >= 400:
		if decodeErr == nil && m.Error != "" {
			return nil, &RejectedError{Message: m.Error}
		}
		return nil, fmt.Errorf("validator returned status %d", resp.StatusCode)

	case decodeErr != nil:
		return nil, fmt.Errorf("decode response failed: %w", decodeErr)

	case m.Error != "":
		return nil, &RejectedError{Message: m.Error}
	}

	if m.MemberID == "" {
		m.MemberID = memberID
	}
	if m.MembershipStatus == "" {
		m.MembershipStatus = "Unknown"
	}
	return &m, nil
}
