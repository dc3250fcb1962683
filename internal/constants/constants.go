package constants

// 优惠券状态常量
const (
	CouponStatusGenerated   = "generated"
	CouponStatusProcessing  = "processing"
	CouponStatusConsumed    = "consumed"
	CouponStatusInvalidated = "invalidated"
)

// 优惠券状态事件常量
const (
	CouponEventSubmitProxyOrder   = "submit_proxy_order"
	CouponEventProxyOrderFinished = "proxy_order_finished"
	CouponEventProxyOrderFailed   = "proxy_order_failed"
	CouponEventManualCancel       = "manual_cancel"
	CouponEventManualRecover      = "manual_recover"
)

// TargetProxy 代下单平台
type TargetProxy string

// 代下单平台常量
const (
	TargetProxySexytea TargetProxy = "sexytea"
)

// String 返回平台名称
func (p TargetProxy) String() string {
	return string(p)
}

// 外部订单平台常量
const (
	PlatformTaobao = "TAOBAO"
	PlatformPdd    = "PDD"
)

// 数据来源常量
const (
	OriginCache = "cache"
	OriginStore = "store"
	OriginAPI   = "api"
)

// 队列常量
const (
	QueueOrderInserted      = "order_inserted"
	QueueCouponGenerated    = "coupon_generated"
	TaskOrderInserted       = "external_order:inserted"
	TaskCouponGenerated     = "coupon:generated"
	PublisherDriverAsynq    = "asynq"
	PublisherDriverKafka    = "kafka"
	DefaultConsumerPrefetch = 10
)

// 缓存常量
const (
	RedisPrefixDefault          = "ch"
	CacheKeyCouponPrefix        = "coupon"
	CacheKeyProxyOrderPrefix    = "proxyorder"
	CacheKeyNotUsedCoupons      = "coupon.not_used"
	CacheKeyProxyOrderStoreSec  = "proxyorder.cache_store_sec"
	CacheKeySexyteaTokenAccount = "sexytea.token_account"
	DefaultCacheTTLSeconds      = 60
)

// 代理订单相关常量
const (
	DefaultStalenessHours = 24
	MinProxyOrderIDLength = 4
)
