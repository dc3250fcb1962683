package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couponhub/internal/apperr"
	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/logger"
	"github.com/couponhub/internal/models"
	"github.com/couponhub/internal/repository"
	"github.com/couponhub/internal/store"
)

const defaultPersonalCouponLimit = 20

// couponTransitions 状态机：当前状态 -> 事件 -> 目标状态
var couponTransitions = map[string]map[string]string{
	constants.CouponStatusGenerated: {
		constants.CouponEventSubmitProxyOrder: constants.CouponStatusProcessing,
		constants.CouponEventManualCancel:     constants.CouponStatusInvalidated,
	},
	constants.CouponStatusProcessing: {
		constants.CouponEventProxyOrderFinished: constants.CouponStatusConsumed,
		constants.CouponEventProxyOrderFailed:   constants.CouponStatusGenerated,
		constants.CouponEventManualCancel:       constants.CouponStatusInvalidated,
	},
	constants.CouponStatusInvalidated: {
		constants.CouponEventManualRecover: constants.CouponStatusGenerated,
	},
}

// NextCouponStatus 计算事件驱动后的状态，不允许时 ok 为 false
func NextCouponStatus(current, event string) (string, bool) {
	events, ok := couponTransitions[current]
	if !ok {
		return "", false
	}
	next, ok := events[strings.TrimSpace(event)]
	return next, ok
}

// CouponService 优惠券查询与维护服务
type CouponService struct {
	store *CouponStore
	repo  repository.CouponRepository
}

// NewCouponService 创建优惠券服务
func NewCouponService(store *CouponStore, repo repository.CouponRepository) *CouponService {
	return &CouponService{store: store, repo: repo}
}

// Get 按券码查询
func (s *CouponService) Get(ctx context.Context, code string) (store.Result[models.Coupon], error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return store.Result[models.Coupon]{}, ErrCouponInvalid
	}
	res, err := s.store.Get(ctx, repository.CouponCodeKey(code))
	if err != nil {
		return res, err
	}
	if !res.Found() {
		return res, ErrCouponNotFound
	}
	return res, nil
}

// GetByTid 按外部订单查询
func (s *CouponService) GetByTid(ctx context.Context, platform, tid string) (store.Result[models.Coupon], error) {
	key := repository.CouponTidKey(platform, tid)
	if key.Platform == "" || key.Tid == "" {
		return store.Result[models.Coupon]{}, ErrCouponInvalid
	}
	res, err := s.store.Get(ctx, key)
	if err != nil {
		return res, err
	}
	if !res.Found() {
		return res, ErrCouponNotFound
	}
	return res, nil
}

// BatchGet 批量校验券码，status 为空时不过滤
func (s *CouponService) BatchGet(ctx context.Context, codes []string, status string) ([]models.Coupon, error) {
	keys := make([]repository.CouponKey, 0, len(codes))
	for _, code := range codes {
		if code = strings.TrimSpace(code); code != "" {
			keys = append(keys, repository.CouponCodeKey(code))
		}
	}
	status = strings.TrimSpace(status)
	var filter func(*models.Coupon) bool
	if status != "" {
		filter = func(c *models.Coupon) bool { return c.Status == status }
	}
	results, err := s.store.BatchGet(ctx, keys, filter)
	if err != nil {
		return nil, err
	}
	coupons := make([]models.Coupon, 0, len(results))
	for _, res := range results {
		coupons = append(coupons, *res.Value)
	}
	return coupons, nil
}

// PageInput 分页查询输入
type PageInput struct {
	Page     int
	PageSize int
	Status   string
	From     *time.Time
	To       *time.Time
}

// Page 分页查询
func (s *CouponService) Page(ctx context.Context, input PageInput) ([]models.Coupon, int64, error) {
	if input.Page < 1 {
		input.Page = 1
	}
	if input.PageSize <= 0 {
		input.PageSize = 20
	}
	return s.repo.List(ctx, repository.CouponListFilter{
		Page:        input.Page,
		PageSize:    input.PageSize,
		Status:      strings.TrimSpace(input.Status),
		CreatedFrom: input.From,
		CreatedTo:   input.To,
	})
}

// PersonalCouponsInput 同一代下单账号下的优惠券查询输入
type PersonalCouponsInput struct {
	Code        string
	TargetProxy constants.TargetProxy
	From        *time.Time
	To          *time.Time
	Limit       int
}

// PersonalCoupons 查询与给定券码同一代下单账号的优惠券
func (s *CouponService) PersonalCoupons(ctx context.Context, input PersonalCouponsInput) ([]models.Coupon, error) {
	res, err := s.Get(ctx, input.Code)
	if err != nil {
		return nil, err
	}
	openID := strings.TrimSpace(res.Value.ProxyOpenID)
	if openID == "" {
		return []models.Coupon{*res.Value}, nil
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultPersonalCouponLimit
	}
	coupons, _, err := s.repo.List(ctx, repository.CouponListFilter{
		Page:        1,
		PageSize:    limit,
		ProxyOpenID: openID,
		TargetProxy: input.TargetProxy,
		CreatedFrom: input.From,
		CreatedTo:   input.To,
	})
	return coupons, err
}

// UpdateCouponInput 更新优惠券输入，nil 字段保持不变
type UpdateCouponInput struct {
	Code             string
	AvailableBalance *models.Money
	ProxyOpenID      *string
	ProxyOrderID     *string
	ErrorCode        *int
	Event            string // 非空时按状态机推进状态
}

// Update 更新优惠券
func (s *CouponService) Update(ctx context.Context, input UpdateCouponInput) (*models.Coupon, error) {
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, ErrCouponInvalid
	}
	coupon, err := s.repo.GetAliveByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: load coupon failed: %v", apperr.ErrPersistence, err)
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	if input.Event != "" {
		next, ok := NextCouponStatus(coupon.Status, input.Event)
		if !ok {
			logger.Warnw("coupon_status_transition_rejected", "coupon", code, "status", coupon.Status, "event", input.Event)
			return nil, fmt.Errorf("%w: status=%s event=%s", ErrCouponStatusTransition, coupon.Status, input.Event)
		}
		coupon.Status = next
	}
	if input.AvailableBalance != nil {
		if input.AvailableBalance.Decimal.IsNegative() {
			return nil, ErrCouponInvalid
		}
		coupon.AvailableBalance = models.NewMoneyFromDecimal(input.AvailableBalance.Decimal)
	}
	if input.ProxyOpenID != nil {
		coupon.ProxyOpenID = strings.TrimSpace(*input.ProxyOpenID)
	}
	if input.ProxyOrderID != nil {
		coupon.ProxyOrderID = strings.TrimSpace(*input.ProxyOrderID)
	}
	if input.ErrorCode != nil {
		coupon.ErrorCode = *input.ErrorCode
	}
	if err := s.store.Write(ctx, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

// UpdateStatus 按事件推进状态
func (s *CouponService) UpdateStatus(ctx context.Context, code, event string) (*models.Coupon, error) {
	if strings.TrimSpace(event) == "" {
		return nil, ErrCouponInvalid
	}
	return s.Update(ctx, UpdateCouponInput{Code: code, Event: event})
}

// Invalidate 人工作废
func (s *CouponService) Invalidate(ctx context.Context, code string) (*models.Coupon, error) {
	return s.UpdateStatus(ctx, code, constants.CouponEventManualCancel)
}

// UpdateErrorCode 记录下单错误码
func (s *CouponService) UpdateErrorCode(ctx context.Context, code string, errorCode int) (*models.Coupon, error) {
	return s.Update(ctx, UpdateCouponInput{Code: code, ErrorCode: &errorCode})
}

// Delete 软删除
func (s *CouponService) Delete(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrCouponInvalid
	}
	err := s.store.Delete(ctx, repository.CouponCodeKey(code))
	if errors.Is(err, apperr.ErrNotFound) {
		return ErrCouponNotFound
	}
	return err
}
