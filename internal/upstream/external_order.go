package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ExternalOrderClient 外部订单服务 HTTP 客户端
type ExternalOrderClient struct {
	http *httpClient
}

// NewExternalOrderClient 创建外部订单客户端
func NewExternalOrderClient(opts ClientOptions) *ExternalOrderClient {
	return &ExternalOrderClient{http: newHTTPClient(opts)}
}

type externalOrderResponse struct {
	Code int            `json:"code"`
	Msg  string         `json:"msg"`
	Data *ExternalOrder `json:"data"`
}

// Query 按平台与订单号查询外部订单
func (c *ExternalOrderClient) Query(ctx context.Context, platform, tid string) (*ExternalOrder, error) {
	platform = strings.TrimSpace(platform)
	tid = strings.TrimSpace(tid)
	if platform == "" || tid == "" {
		return nil, nil
	}
	query := url.Values{}
	query.Set("from_platform", platform)
	query.Set("tid", tid)
	body, found, err := c.http.get(ctx, "/api/external-order/query?"+query.Encode(), nil)
	if err != nil || !found {
		return nil, err
	}
	var resp externalOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%w: code=%d msg=%s", ErrRequestFailed, resp.Code, resp.Msg)
	}
	return resp.Data, nil
}
