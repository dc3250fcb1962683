package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/couponhub/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Stdout     bool   `mapstructure:"stdout"`
}

// ToLoggerOptions 转换为 logger 配置，service 区分同一镜像的不同启动模式
func (c LogConfig) ToLoggerOptions(service string) logger.Options {
	return logger.Options{
		Level:      c.Level,
		Service:    service,
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
		Stdout:     c.Stdout,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled                bool   `mapstructure:"enabled"`
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	Password               string `mapstructure:"password"`
	DB                     int    `mapstructure:"db"`
	NamePrefix             string `mapstructure:"name_prefix"` // 队列名前缀，区分环境
	Concurrency            int    `mapstructure:"concurrency"` // 同时处理的消息上限
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

// QueueName 拼接带环境前缀的队列名
func (c QueueConfig) QueueName(name string) string {
	return strings.TrimSpace(c.NamePrefix) + name
}

// PublisherConfig 出站事件发布配置
type PublisherConfig struct {
	Driver       string   `mapstructure:"driver"` // asynq / kafka
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
}

// CacheConfig 缓存过期配置
type CacheConfig struct {
	CouponTTLSeconds     int `mapstructure:"coupon_ttl_seconds"`
	ProxyOrderTTLSeconds int `mapstructure:"proxy_order_ttl_seconds"`
}

// CouponTTL 优惠券缓存时长
func (c CacheConfig) CouponTTL() time.Duration {
	return secondsOrDefault(c.CouponTTLSeconds, 60)
}

// ProxyOrderTTL 代理订单缓存时长
func (c CacheConfig) ProxyOrderTTL() time.Duration {
	return secondsOrDefault(c.ProxyOrderTTLSeconds, 60)
}

// ResolverConfig 代理订单解析策略
type ResolverConfig struct {
	StalenessHours int `mapstructure:"staleness_hours"` // 超过该时长的优惠券优先读本地
}

// StalenessThreshold 本地数据可信阈值
func (c ResolverConfig) StalenessThreshold() time.Duration {
	if c.StalenessHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.StalenessHours) * time.Hour
}

// UpstreamConfig 外部依赖配置
type UpstreamConfig struct {
	ExternalOrderBaseURL string  `mapstructure:"external_order_base_url"`
	SexyteaBaseURL       string  `mapstructure:"sexytea_base_url"`
	TimeoutMS            int     `mapstructure:"timeout_ms"` // 0 表示不设置超时
	QPS                  float64 `mapstructure:"qps"`        // 0 表示不限流
	Burst                int     `mapstructure:"burst"`
}

// Timeout HTTP 客户端超时
func (c UpstreamConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// BackupConfig 代理订单定时回填配置
type BackupConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	TargetProxy     string `mapstructure:"target_proxy"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
	WindowHours     int    `mapstructure:"window_hours"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// RateLimitConfig 接口限流配置
type RateLimitConfig struct {
	BackupWindowSeconds int `mapstructure:"backup_window_seconds"`
	BackupMaxRequests   int `mapstructure:"backup_max_requests"`
}

func secondsOrDefault(seconds, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "couponhub.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.stdout", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/couponhub.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "ch")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.name_prefix", "")
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.shutdown_timeout_seconds", 30)
	v.SetDefault("publisher.driver", "asynq")
	v.SetDefault("publisher.kafka_brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("cache.coupon_ttl_seconds", 60)
	v.SetDefault("cache.proxy_order_ttl_seconds", 60)
	v.SetDefault("resolver.staleness_hours", 24)
	v.SetDefault("upstream.external_order_base_url", "http://127.0.0.1:8081")
	v.SetDefault("upstream.sexytea_base_url", "https://api.sexytea.example")
	v.SetDefault("upstream.timeout_ms", 0)
	v.SetDefault("upstream.qps", 0)
	v.SetDefault("upstream.burst", 1)
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.target_proxy", "sexytea")
	v.SetDefault("backup.interval_minutes", 60)
	v.SetDefault("backup.window_hours", 48)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("rate_limit.backup_window_seconds", 60)
	v.SetDefault("rate_limit.backup_max_requests", 2)
}

// Load 从 config.yml 加载配置
func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")     // 从当前目录查找
	v.AddConfigPath("../")   // 如果从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹

	setDefaults(v)

	// 环境变量支持，例如 queue.concurrency -> QUEUE_CONCURRENCY
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	cfg, err := decode(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = 10
	}
	cfg.Publisher.Driver = strings.ToLower(strings.TrimSpace(cfg.Publisher.Driver))
	return &cfg, nil
}
