package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/logger"
	"github.com/couponhub/internal/metrics"
	"github.com/couponhub/internal/models"
	"github.com/couponhub/internal/queue"
	"github.com/couponhub/internal/upstream"

	"github.com/google/uuid"
)

const (
	generationPathAuto   = "auto"
	generationPathManual = "manual"
	manualCodeLength     = 32
)

// CouponTracker 记录未使用的券码
type CouponTracker interface {
	MarkCouponNotUsed(ctx context.Context, code string) error
}

// CouponGenerationService 优惠券生成服务
// 同一外部订单的并发生成不在此加锁，由存储层唯一索引保证只有一张有效券
type CouponGenerationService struct {
	store     *CouponStore
	publisher queue.Publisher
	tracker   CouponTracker
	now       func() time.Time
	newCode   func() string
}

// NewCouponGenerationService 创建优惠券生成服务
func NewCouponGenerationService(store *CouponStore, publisher queue.Publisher, tracker CouponTracker) *CouponGenerationService {
	return &CouponGenerationService{
		store:     store,
		publisher: publisher,
		tracker:   tracker,
		now:       time.Now,
		newCode:   randomCouponCode,
	}
}

// Generate 根据外部订单生成优惠券
func (s *CouponGenerationService) Generate(ctx context.Context, order *upstream.ExternalOrder) (*models.Coupon, error) {
	if order == nil {
		return nil, ErrCouponInvalid
	}
	coupon, err := s.derive(order.FromPlatform, order.Tid, order.PayAmount, s.newCode())
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, coupon, generationPathAuto); err != nil {
		return nil, err
	}
	return coupon, nil
}

// GenerateManual 手工补发优惠券，券码由 (平台, 订单号) 确定
func (s *CouponGenerationService) GenerateManual(ctx context.Context, platform, tid string, amount models.Money) (*models.Coupon, error) {
	coupon, err := s.derive(platform, tid, amount, ManualCouponCode(strings.TrimSpace(platform), strings.TrimSpace(tid)))
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, coupon, generationPathManual); err != nil {
		return nil, err
	}
	return coupon, nil
}

// derive 校验并构造优惠券，校验失败时不产生任何副作用
func (s *CouponGenerationService) derive(platform, tid string, amount models.Money, code string) (*models.Coupon, error) {
	platform = strings.TrimSpace(platform)
	tid = strings.TrimSpace(tid)
	if platform == "" || tid == "" {
		return nil, fmt.Errorf("%w: platform and tid are required", ErrCouponInvalid)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment must be positive", ErrCouponInvalid)
	}
	now := s.now()
	value := models.NewMoneyFromDecimal(amount.Decimal)
	return &models.Coupon{
		Code:             code,
		FromPlatform:     platform,
		Tid:              tid,
		Payment:          value,
		AvailableBalance: value,
		Status:           constants.CouponStatusGenerated,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (s *CouponGenerationService) persist(ctx context.Context, coupon *models.Coupon, path string) error {
	if err := s.store.Insert(ctx, coupon); err != nil {
		logger.Warnw("coupon_generate_persist_failed",
			"path", path,
			"from_platform", coupon.FromPlatform,
			"tid", coupon.Tid,
			"error", err,
		)
		return err
	}
	metrics.CouponsGenerated.WithLabelValues(path).Inc()
	logger.Infow("coupon_generated",
		"path", path,
		"coupon", coupon.Code,
		"from_platform", coupon.FromPlatform,
		"tid", coupon.Tid,
		"payment", coupon.Payment.String(),
	)

	// 以下均为提交后的尽力而为操作，失败只记录日志
	if s.tracker != nil {
		if err := s.tracker.MarkCouponNotUsed(ctx, coupon.Code); err != nil {
			logger.Warnw("coupon_generate_mark_not_used_failed", "coupon", coupon.Code, "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishCouponGenerated(ctx, coupon); err != nil {
			logger.Warnw("coupon_generate_publish_failed", "coupon", coupon.Code, "error", err)
		}
	}
	return nil
}

// ManualCouponCode 手工券码：SHA-256(平台+订单号) 的前 32 位十六进制
func ManualCouponCode(platform, tid string) string {
	sum := sha256.Sum256([]byte(platform + tid))
	return hex.EncodeToString(sum[:])[:manualCodeLength]
}

func randomCouponCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
