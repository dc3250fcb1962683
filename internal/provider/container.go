package provider

import (
	"github.com/couponhub/internal/cache"
	"github.com/couponhub/internal/config"
	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/logger"
	"github.com/couponhub/internal/models"
	"github.com/couponhub/internal/queue"
	"github.com/couponhub/internal/repository"
	"github.com/couponhub/internal/service"
	"github.com/couponhub/internal/upstream"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	Cache       *cache.RedisCache
	QueueClient *queue.Client
	Publisher   queue.Publisher

	// Upstreams
	ExternalOrderClient *upstream.ExternalOrderClient
	CredentialStore     *cache.CredentialStore
	Fetchers            upstream.Fetchers

	// Repositories
	CouponRepo      *repository.GormCouponRepository
	ProxyOrderRepos repository.ProxyOrderRepositories

	// Stores
	CouponStore      *service.CouponStore
	ProxyOrderStores service.ProxyOrderStores

	// Services
	CouponGenerationService *service.CouponGenerationService
	CouponService           *service.CouponService
	ProxyOrderService       *service.ProxyOrderService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存，未启用时所有读取视为未命中
	redisCache, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		Cache:       redisCache,
		QueueClient: queueClient,
	}

	// 1. 初始化出站发布
	c.initPublisher()

	// 2. 初始化外部依赖
	c.initUpstreams()

	// 3. 初始化 Repositories 与 Stores
	c.initRepositories()

	// 4. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initPublisher() {
	opts := queue.NewPublishOptions(c.Config.Queue, c.Config.Publisher)
	publisher, err := queue.NewPublisher(opts, &c.Config.Queue)
	if err != nil {
		logger.Errorw("provider_init_publisher_failed", "driver", opts.Driver(), "error", err)
		panic(err)
	}
	logger.Infow("provider_publisher_ready", "driver", opts.Driver(), "target", opts.Target())
	c.Publisher = publisher
}

func (c *Container) initUpstreams() {
	upstreamCfg := c.Config.Upstream
	c.ExternalOrderClient = upstream.NewExternalOrderClient(upstream.ClientOptions{
		BaseURL: upstreamCfg.ExternalOrderBaseURL,
		Timeout: upstreamCfg.Timeout(),
		QPS:     upstreamCfg.QPS,
		Burst:   upstreamCfg.Burst,
	})
	c.CredentialStore = cache.NewCredentialStore(c.Cache)
	c.Fetchers = upstream.Fetchers{
		constants.TargetProxySexytea: upstream.NewSexyteaClient(upstream.ClientOptions{
			BaseURL: upstreamCfg.SexyteaBaseURL,
			Timeout: upstreamCfg.Timeout(),
			QPS:     upstreamCfg.QPS,
			Burst:   upstreamCfg.Burst,
		}),
	}
}

func (c *Container) initRepositories() {
	db := models.DB
	c.CouponRepo = repository.NewCouponRepository(db)
	c.ProxyOrderRepos = repository.NewProxyOrderRepositories(db)
	c.CouponStore = service.NewCouponStore(db, c.CouponRepo, c.Cache, c.Config.Cache.CouponTTL())
	c.ProxyOrderStores = service.NewProxyOrderStores(db, c.ProxyOrderRepos, c.Cache, c.Config.Cache.ProxyOrderTTL(), c.Cache)
}

func (c *Container) initServices() {
	c.CouponGenerationService = service.NewCouponGenerationService(c.CouponStore, c.Publisher, c.Cache)
	c.CouponService = service.NewCouponService(c.CouponStore, c.CouponRepo)
	c.ProxyOrderService = service.NewProxyOrderService(
		c.CouponStore,
		c.CouponRepo,
		c.ProxyOrderStores,
		c.ExternalOrderClient,
		c.CredentialStore,
		c.Fetchers,
		service.ProxyOrderServiceOptions{Staleness: c.Config.Resolver.StalenessThreshold()},
	)
}

// Close 释放外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			logger.Warnw("provider_close_publisher_failed", "error", err)
		}
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Warnw("provider_close_queue_client_failed", "error", err)
		}
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			logger.Warnw("provider_close_redis_failed", "error", err)
		}
	}
}
