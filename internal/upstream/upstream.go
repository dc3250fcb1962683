package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/models"
)

var (
	ErrRequestFailed    = errors.New("upstream request failed")
	ErrResponseInvalid  = errors.New("upstream response invalid")
	ErrStatusNotPresent = errors.New("upstream order status not present")
)

// ExternalOrder 外部订单服务返回的订单
type ExternalOrder struct {
	FromPlatform string                `json:"from_platform"`
	Tid          string                `json:"tid"`
	TargetProxy  constants.TargetProxy `json:"target_proxy"`
	PayAmount    models.Money          `json:"pay_amount"`
	Status       string                `json:"status"`
	CreatedAt    time.Time             `json:"create_time"`
}

// Credential 代下单账号会话凭证
type Credential struct {
	Value  string    `json:"value"`
	Expiry time.Time `json:"expiry"`
}

// Expired 凭证是否已过期，零值过期时间视为过期
func (c *Credential) Expired(now time.Time) bool {
	if c == nil || strings.TrimSpace(c.Value) == "" || c.Expiry.IsZero() {
		return true
	}
	return c.Expiry.Before(now)
}

// OrderQuerier 外部订单查询能力，未找到返回 nil, nil
type OrderQuerier interface {
	Query(ctx context.Context, platform, tid string) (*ExternalOrder, error)
}

// ProxyOrderFetcher 代下单平台订单查询能力，未找到返回 nil, nil
type ProxyOrderFetcher interface {
	FetchOrder(ctx context.Context, cred Credential, proxyOrderID string) (json.RawMessage, error)
}

// CredentialStore 凭证读取能力，不存在返回 nil, nil
type CredentialStore interface {
	GetCredential(ctx context.Context, proxyOpenID string) (*Credential, error)
}

// Fetchers 按代下单平台选择查询客户端
type Fetchers map[constants.TargetProxy]ProxyOrderFetcher

// For 获取平台对应的客户端
func (f Fetchers) For(targetProxy constants.TargetProxy) (ProxyOrderFetcher, bool) {
	if f == nil {
		return nil, false
	}
	fetcher, ok := f[targetProxy]
	if !ok || fetcher == nil {
		return nil, false
	}
	return fetcher, true
}

// ParseOrderStatus 读取订单载荷中 data.status 字段
func ParseOrderStatus(payload json.RawMessage) (string, error) {
	var doc struct {
		Data *struct {
			Status json.RawMessage `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if doc.Data == nil || len(doc.Data.Status) == 0 || string(doc.Data.Status) == "null" {
		return "", ErrStatusNotPresent
	}
	var text string
	if err := json.Unmarshal(doc.Data.Status, &text); err == nil {
		return text, nil
	}
	// 部分平台返回数字状态码
	return strings.TrimSpace(string(doc.Data.Status)), nil
}
