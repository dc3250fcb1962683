package cache

import (
	"context"
	"strings"

	"github.com/couponhub/internal/constants"
)

// MarkCouponNotUsed 将新生成的券码加入未使用集合
func (c *RedisCache) MarkCouponNotUsed(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	return c.SAdd(ctx, constants.CacheKeyNotUsedCoupons, code)
}

// ProxyOrderStoreSeconds 读取运行时可调整的代理订单缓存时长
func (c *RedisCache) ProxyOrderStoreSeconds(ctx context.Context) (int, bool, error) {
	return c.GetInt(ctx, constants.CacheKeyProxyOrderStoreSec)
}
