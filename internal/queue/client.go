package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/couponhub/internal/config"
	"github.com/couponhub/internal/constants"

	"github.com/hibiken/asynq"
)

// Client 队列客户端封装
type Client struct {
	client             *asynq.Client
	enabled            bool
	orderInsertedQueue string
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false}, nil
	}
	return &Client{
		client:             asynq.NewClient(buildRedisOpt(cfg)),
		enabled:            true,
		orderInsertedQueue: cfg.QueueName(constants.QueueOrderInserted),
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueOrderInserted 推送外部订单入库事件，只处理一次，失败不重试
func (c *Client) EnqueueOrderInserted(payload OrderInsertedPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewOrderInsertedTask(payload)
	if err != nil {
		return err
	}
	options := append([]asynq.Option{asynq.Queue(c.orderInsertedQueue), asynq.MaxRetry(0)}, opts...)
	_, err = c.client.Enqueue(task, options...)
	return err
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := constants.DefaultConsumerPrefetch
	shutdown := 30 * time.Second
	queueName := constants.QueueOrderInserted
	if cfg != nil {
		if cfg.Concurrency > 0 {
			concurrency = cfg.Concurrency
		}
		if cfg.ShutdownTimeoutSeconds > 0 {
			shutdown = time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
		}
		queueName = cfg.QueueName(constants.QueueOrderInserted)
	}
	return opt, asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{queueName: 1},
		ShutdownTimeout: shutdown,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
