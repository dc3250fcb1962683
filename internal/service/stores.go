package service

import (
	"context"
	"time"

	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/logger"
	"github.com/couponhub/internal/models"
	"github.com/couponhub/internal/repository"
	"github.com/couponhub/internal/store"

	"gorm.io/gorm"
)

// CouponStore 优惠券旁路缓存存储
type CouponStore = store.CacheAsideStore[models.Coupon, repository.CouponKey]

// ProxyOrderStore 代理订单旁路缓存存储
type ProxyOrderStore = store.CacheAsideStore[models.ProxyOrder, repository.ProxyOrderKey]

// ProxyOrderStores 按代下单平台选择存储
type ProxyOrderStores map[constants.TargetProxy]*ProxyOrderStore

// For 获取平台对应的存储
func (s ProxyOrderStores) For(targetProxy constants.TargetProxy) (*ProxyOrderStore, bool) {
	if s == nil {
		return nil, false
	}
	st, ok := s[targetProxy]
	return st, ok && st != nil
}

// ProxyOrderTTLSource 运行时可调整的代理订单缓存时长
type ProxyOrderTTLSource interface {
	ProxyOrderStoreSeconds(ctx context.Context) (int, bool, error)
}

// NewCouponStore 创建优惠券存储
func NewCouponStore(db *gorm.DB, repo *repository.GormCouponRepository, cache store.Cache, ttl time.Duration) *CouponStore {
	return store.New[models.Coupon, repository.CouponKey](db, repository.NewCouponBackend(repo), cache, store.Options{
		Name: "coupon",
		TTL:  ttl,
	})
}

// NewProxyOrderStores 为每个已注册平台创建代理订单存储
// 缓存时长优先读取 redis 中的覆盖值，其次使用配置
func NewProxyOrderStores(db *gorm.DB, repos repository.ProxyOrderRepositories, cache store.Cache, ttl time.Duration, source ProxyOrderTTLSource) ProxyOrderStores {
	ttlFunc := func(ctx context.Context) time.Duration {
		if source == nil {
			return 0
		}
		sec, hit, err := source.ProxyOrderStoreSeconds(ctx)
		if err != nil {
			logger.Warnw("proxy_order_ttl_override_read_failed", "error", err)
			return 0
		}
		if !hit || sec <= 0 {
			return 0
		}
		return time.Duration(sec) * time.Second
	}
	stores := make(ProxyOrderStores, len(repos))
	for targetProxy, repo := range repos {
		stores[targetProxy] = store.New[models.ProxyOrder, repository.ProxyOrderKey](db, repo, cache, store.Options{
			Name:    "proxy_order_" + targetProxy.String(),
			TTL:     ttl,
			TTLFunc: ttlFunc,
		})
	}
	return stores
}
