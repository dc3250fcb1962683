package router

import (
	"fmt"
	"strings"

	"github.com/couponhub/internal/config"
	"github.com/couponhub/internal/constants"
	apihandlers "github.com/couponhub/internal/http/handlers/api"
	"github.com/couponhub/internal/http/response"
	"github.com/couponhub/internal/logger"
	"github.com/couponhub/internal/metrics"
	"github.com/couponhub/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions("couponhub-api"))
	}
	r := gin.New()

	handler := apihandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = constants.RedisPrefixDefault
	}
	backupRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:proxy_order_backup", redisPrefix),
		WindowSeconds: cfg.RateLimit.BackupWindowSeconds,
		MaxRequests:   cfg.RateLimit.BackupMaxRequests,
	}

	metricsPath := strings.TrimSpace(cfg.Metrics.Path)
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log, "/health", metricsPath))
	r.Use(CORSMiddleware(cfg.CORS))

	r.GET("/health", func(ctx *gin.Context) {
		response.Success(ctx, gin.H{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		r.GET(metricsPath, gin.WrapH(metrics.Handler()))
	}

	apiV1 := r.Group("/api/v1")
	{
		coupon := apiV1.Group("/coupon")
		{
			coupon.GET("/query", handler.GetCoupon)
			coupon.GET("/query-tid", handler.GetCouponByTid)
			coupon.GET("/page-query", handler.PageCoupons)
			coupon.GET("/personal", handler.PersonalCoupons)
			coupon.POST("/validate", handler.ValidateCoupons)
			coupon.POST("/generate", handler.GenerateCoupon)
			coupon.POST("/generate-manual", handler.GenerateManualCoupon)
			coupon.POST("/update", handler.UpdateCoupon)
			coupon.POST("/update-error", handler.UpdateCouponError)
			coupon.POST("/invalidate", handler.InvalidateCoupon)
			coupon.POST("/delete", handler.DeleteCoupon)
		}

		proxyOrder := apiV1.Group("/proxy-order")
		{
			proxyOrder.GET("/query", handler.GetProxyOrder)
			proxyOrder.POST("/query-coupons", handler.QueryProxyOrders)
			proxyOrder.POST("/insert", handler.InsertProxyOrder)
			proxyOrder.POST("/update", handler.UpdateProxyOrder)
			proxyOrder.POST("/delete", handler.DeleteProxyOrder)
			proxyOrder.POST("/backup", RateLimitMiddleware(c.Cache.Client(), backupRule, KeyByIPAndJSONField("target_proxy")), handler.BackupProxyOrders)
		}
	}

	return r
}
