package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// SexyteaClient sexytea 平台订单查询客户端
type SexyteaClient struct {
	http *httpClient
}

// NewSexyteaClient 创建 sexytea 客户端
func NewSexyteaClient(opts ClientOptions) *SexyteaClient {
	return &SexyteaClient{http: newHTTPClient(opts)}
}

// FetchOrder 查询订单详情，返回平台原始 JSON
func (c *SexyteaClient) FetchOrder(ctx context.Context, cred Credential, proxyOrderID string) (json.RawMessage, error) {
	proxyOrderID = strings.TrimSpace(proxyOrderID)
	if proxyOrderID == "" {
		return nil, nil
	}
	header := http.Header{}
	header.Set("Authorization", cred.Value)
	body, found, err := c.http.get(ctx, "/order/info?orderId="+url.QueryEscape(proxyOrderID), header)
	if err != nil || !found {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, ErrResponseInvalid
	}
	return json.RawMessage(trimmed), nil
}
