package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couponhub/internal/config"
	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/logger"
	"github.com/couponhub/internal/metrics"
	"github.com/couponhub/internal/models"

	"github.com/hibiken/asynq"
	"github.com/segmentio/kafka-go"
)

// ErrPublisherDriverUnsupported 不支持的发布驱动
var ErrPublisherDriverUnsupported = errors.New("publisher driver unsupported")

// Publisher 出站事件发布，尽力而为，不等待消费方确认
type Publisher interface {
	PublishCouponGenerated(ctx context.Context, coupon *models.Coupon) error
	Close() error
}

// PublishOptions 发布参数，启动时构造一次后只读
type PublishOptions struct {
	driver  string
	target  string
	brokers []string
}

// NewPublishOptions 根据配置构造发布参数
func NewPublishOptions(queueCfg config.QueueConfig, pubCfg config.PublisherConfig) PublishOptions {
	driver := strings.ToLower(strings.TrimSpace(pubCfg.Driver))
	if driver == "" {
		driver = constants.PublisherDriverAsynq
	}
	brokers := make([]string, 0, len(pubCfg.KafkaBrokers))
	for _, b := range pubCfg.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return PublishOptions{
		driver:  driver,
		target:  queueCfg.QueueName(constants.QueueCouponGenerated),
		brokers: brokers,
	}
}

// Driver 发布驱动
func (o PublishOptions) Driver() string { return o.driver }

// Target 目标队列或 topic
func (o PublishOptions) Target() string { return o.target }

// Brokers kafka broker 列表副本
func (o PublishOptions) Brokers() []string {
	out := make([]string, len(o.brokers))
	copy(out, o.brokers)
	return out
}

// NewPublisher 按驱动创建发布器
func NewPublisher(opts PublishOptions, queueCfg *config.QueueConfig) (Publisher, error) {
	switch opts.Driver() {
	case constants.PublisherDriverAsynq:
		if queueCfg == nil || !queueCfg.Enabled {
			return noopPublisher{}, nil
		}
		return NewAsynqPublisher(asynq.NewClient(buildRedisOpt(queueCfg)), opts), nil
	case constants.PublisherDriverKafka:
		if len(opts.Brokers()) == 0 {
			return nil, fmt.Errorf("%w: kafka brokers empty", ErrPublisherDriverUnsupported)
		}
		return NewKafkaPublisher(opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrPublisherDriverUnsupported, opts.Driver())
	}
}

// AsynqPublisher 基于 asynq 的发布器，事件持久化在 redis
type AsynqPublisher struct {
	client *asynq.Client
	opts   PublishOptions
}

// NewAsynqPublisher 创建 asynq 发布器
func NewAsynqPublisher(client *asynq.Client, opts PublishOptions) *AsynqPublisher {
	return &AsynqPublisher{client: client, opts: opts}
}

// PublishCouponGenerated 发布优惠券生成事件
func (p *AsynqPublisher) PublishCouponGenerated(ctx context.Context, coupon *models.Coupon) error {
	task, err := NewCouponGeneratedTask(coupon)
	if err != nil {
		return err
	}
	_, err = p.client.EnqueueContext(ctx, task, asynq.Queue(p.opts.Target()))
	if err != nil {
		metrics.PublishFailures.WithLabelValues(constants.PublisherDriverAsynq).Inc()
	}
	return err
}

// Close 关闭客户端
func (p *AsynqPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// KafkaPublisher 基于 kafka 的异步发布器
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher 创建 kafka 发布器，写入不等待 broker 确认
func NewKafkaPublisher(opts PublishOptions) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(opts.Brokers()...),
			Topic:                  opts.Target(),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			Async:                  true,
			AllowAutoTopicCreation: true,
			Completion: func(messages []kafka.Message, err error) {
				if err == nil {
					return
				}
				metrics.PublishFailures.WithLabelValues(constants.PublisherDriverKafka).Add(float64(len(messages)))
				for _, m := range messages {
					logger.Warnw("kafka_publish_coupon_generated_failed", "coupon", string(m.Key), "error", err)
				}
			},
		},
	}
}

// PublishCouponGenerated 发布优惠券生成事件
func (p *KafkaPublisher) PublishCouponGenerated(ctx context.Context, coupon *models.Coupon) error {
	if coupon == nil {
		return ErrPayloadInvalid
	}
	body, err := json.Marshal(coupon)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(coupon.Code),
		Value: body,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TaskCouponGenerated)},
		},
	})
}

// Close 刷新缓冲并关闭
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

type noopPublisher struct{}

func (noopPublisher) PublishCouponGenerated(_ context.Context, coupon *models.Coupon) error {
	if coupon != nil {
		logger.Debugw("publisher_disabled_skip", "coupon", coupon.Code)
	}
	return nil
}

func (noopPublisher) Close() error { return nil }
