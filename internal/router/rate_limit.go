package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/couponhub/internal/http/response"
	"github.com/couponhub/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitKeyFunc 从请求中提取限流维度
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 固定窗口限流规则
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
}

func (r RateLimitRule) enabled() bool {
	return r.WindowSeconds > 0 && r.MaxRequests > 0
}

func (r RateLimitRule) key(id string) string {
	if r.Prefix == "" {
		return id
	}
	return r.Prefix + ":" + id
}

// 返回 {当前计数, 剩余秒数}，窗口内首次计数时设置过期
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("TTL", KEYS[1])}
`)

var errUnexpectedScriptReply = errors.New("unexpected rate limit script reply")

// fixedWindow 计数一次并判断是否超限，超限时给出需要等待的秒数
func fixedWindow(ctx context.Context, client *redis.Client, rule RateLimitRule, key string) (bool, int, error) {
	values, err := fixedWindowScript.Run(ctx, client, []string{key}, rule.WindowSeconds).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(values) < 2 {
		return false, 0, errUnexpectedScriptReply
	}
	if values[0] <= int64(rule.MaxRequests) {
		return true, 0, nil
	}
	retryAfter := int(values[1])
	if retryAfter < 1 {
		retryAfter = rule.WindowSeconds
	}
	return false, retryAfter, nil
}

// RateLimitMiddleware 基于 Redis 的接口限流，client 为空或规则未配置时放行
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || !rule.enabled() {
			c.Next()
			return
		}

		id := ""
		if keyFunc != nil {
			id = strings.TrimSpace(keyFunc(c))
		}
		if id == "" {
			id = c.ClientIP()
		}
		key := rule.key(id)

		allowed, retryAfter, err := fixedWindow(c.Request.Context(), client, rule, key)
		if err != nil {
			logger.Warnw("rate_limit_script_failed", "key", key, "error", err)
			response.Error(c, response.CodeInternal, "rate limit unavailable")
			c.Abort()
			return
		}
		if !allowed {
			logger.Infow("rate_limit_rejected", "key", key, "retry_after", retryAfter)
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			response.Error(c, response.CodeTooManyRequests, fmt.Sprintf("too many requests, retry after %s", time.Duration(retryAfter)*time.Second))
			c.Abort()
			return
		}

		c.Next()
	}
}

// KeyByIP 按客户端 IP 限流
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByIPAndJSONField 按 JSON 请求体字段 + IP 限流，字段缺失时退化为 IP
func KeyByIPAndJSONField(field string) RateLimitKeyFunc {
	return func(c *gin.Context) string {
		value := strings.ToLower(strings.TrimSpace(peekJSONString(c, field)))
		if value == "" {
			return c.ClientIP()
		}
		return value + "|" + c.ClientIP()
	}
}

// peekJSONString 读取请求体中的字符串字段，并把请求体放回供后续绑定
func peekJSONString(c *gin.Context, field string) string {
	if c == nil || c.Request == nil || c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return ""
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	var text string
	if err := json.Unmarshal(payload[field], &text); err != nil {
		return ""
	}
	return text
}
