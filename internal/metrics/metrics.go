package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CouponsGenerated 已生成优惠券数量
	CouponsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "couponhub",
		Name:      "coupons_generated_total",
		Help:      "Number of coupons generated, by generation path.",
	}, []string{"path"})

	// CacheLookups 旁路缓存读取结果
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "couponhub",
		Name:      "cache_lookups_total",
		Help:      "Cache-aside lookups by store and result.",
	}, []string{"store", "result"})

	// ProxyOrderResolutions 代理订单解析来源
	ProxyOrderResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "couponhub",
		Name:      "proxy_order_resolutions_total",
		Help:      "Proxy order resolutions by origin.",
	}, []string{"origin"})

	// OrderEvents 订单事件处理结果
	OrderEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "couponhub",
		Name:      "order_events_total",
		Help:      "Inbound order events by outcome.",
	}, []string{"outcome"})

	// PublishFailures 出站事件发布失败次数
	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "couponhub",
		Name:      "publish_failures_total",
		Help:      "Outbound event publish failures by driver.",
	}, []string{"driver"})
)

// ObserveCacheLookup 记录缓存读取结果
func ObserveCacheLookup(store, result string) {
	CacheLookups.WithLabelValues(store, result).Inc()
}

// Handler 指标暴露接口
func Handler() http.Handler {
	return promhttp.Handler()
}
