package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/couponhub/internal/logger"
	"github.com/couponhub/internal/metrics"
	"github.com/couponhub/internal/models"
	"github.com/couponhub/internal/provider"
	"github.com/couponhub/internal/queue"
	"github.com/couponhub/internal/upstream"

	"github.com/hibiken/asynq"
)

const (
	outcomeGenerated = "generated"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

// CouponGenerator 优惠券生成能力
type CouponGenerator interface {
	Generate(ctx context.Context, order *upstream.ExternalOrder) (*models.Coupon, error)
}

// Consumer 异步任务消费者
type Consumer struct {
	orders    upstream.OrderQuerier
	generator CouponGenerator
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	if c == nil {
		return nil
	}
	return &Consumer{
		orders:    c.ExternalOrderClient,
		generator: c.CouponGenerationService,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOrderInserted, c.handleOrderInserted)
}

// handleOrderInserted 每个事件只处理一次，任何失败都不重新入队
func (c *Consumer) handleOrderInserted(ctx context.Context, task *asynq.Task) (err error) {
	// 停机时不打断处理中的任务，等待时长由 ShutdownTimeout 限制
	ctx = context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("worker_order_inserted_panic", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			metrics.OrderEvents.WithLabelValues(outcomeOf(err)).Inc()
			// RevokeTask 既不重试也不归档，失败事件直接丢弃
			err = fmt.Errorf("%w: %w", err, asynq.RevokeTask)
			return
		}
		metrics.OrderEvents.WithLabelValues(outcomeGenerated).Inc()
	}()

	if c == nil || task == nil {
		return errors.New("consumer not initialized")
	}
	payload, err := queue.ParseOrderInsertedPayload(task.Payload())
	if err != nil {
		logger.Warnw("worker_order_inserted_payload_invalid", "error", err)
		return err
	}
	order, err := c.orders.Query(ctx, payload.FromPlatform, payload.Tid)
	if err != nil {
		logger.Warnw("worker_order_inserted_query_failed",
			"from_platform", payload.FromPlatform,
			"tid", payload.Tid,
			"error", err,
		)
		return err
	}
	if order == nil {
		logger.Warnw("worker_order_inserted_order_not_found", "from_platform", payload.FromPlatform, "tid", payload.Tid)
		return errOrderNotFound
	}
	coupon, err := c.generator.Generate(ctx, order)
	if err != nil {
		logger.Warnw("worker_order_inserted_generate_failed",
			"from_platform", payload.FromPlatform,
			"tid", payload.Tid,
			"error", err,
		)
		return err
	}
	logger.Infow("worker_order_inserted_done",
		"from_platform", payload.FromPlatform,
		"tid", payload.Tid,
		"coupon", coupon.Code,
	)
	return nil
}

var errOrderNotFound = errors.New("external order not found")

func outcomeOf(err error) string {
	if errors.Is(err, queue.ErrPayloadInvalid) || errors.Is(err, errOrderNotFound) {
		return outcomeRejected
	}
	return outcomeFailed
}
