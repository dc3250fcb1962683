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
	"github.com/couponhub/internal/metrics"
	"github.com/couponhub/internal/models"
	"github.com/couponhub/internal/repository"
	"github.com/couponhub/internal/store"
	"github.com/couponhub/internal/upstream"

	"golang.org/x/sync/errgroup"
)

// ProxyOrderServiceOptions 代理订单服务参数
type ProxyOrderServiceOptions struct {
	Staleness time.Duration    // 超过该时长的优惠券优先信任本地数据
	Now       func() time.Time // 测试注入
}

// ProxyOrderService 代理订单解析服务
type ProxyOrderService struct {
	coupons     *CouponStore
	couponRepo  repository.CouponRepository
	stores      ProxyOrderStores
	orders      upstream.OrderQuerier
	credentials upstream.CredentialStore
	fetchers    upstream.Fetchers
	staleness   time.Duration
	now         func() time.Time
}

// NewProxyOrderService 创建代理订单服务
func NewProxyOrderService(
	coupons *CouponStore,
	couponRepo repository.CouponRepository,
	stores ProxyOrderStores,
	orders upstream.OrderQuerier,
	credentials upstream.CredentialStore,
	fetchers upstream.Fetchers,
	opts ProxyOrderServiceOptions,
) *ProxyOrderService {
	staleness := opts.Staleness
	if staleness <= 0 {
		staleness = constants.DefaultStalenessHours * time.Hour
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ProxyOrderService{
		coupons:     coupons,
		couponRepo:  couponRepo,
		stores:      stores,
		orders:      orders,
		credentials: credentials,
		fetchers:    fetchers,
		staleness:   staleness,
		now:         now,
	}
}

// Get 解析券码对应的代理订单
// 优惠券超过阈值时先查本地，未命中或未超过阈值时实时查询平台；实时结果不落库
func (s *ProxyOrderService) Get(ctx context.Context, code string) (store.Result[models.ProxyOrder], error) {
	var empty store.Result[models.ProxyOrder]
	code = strings.TrimSpace(code)
	if code == "" {
		return empty, ErrCouponInvalid
	}

	couponRes, err := s.coupons.Get(ctx, repository.CouponCodeKey(code))
	if err != nil {
		return empty, err
	}
	if !couponRes.Found() {
		logger.Warnw("proxy_order_coupon_not_found", "coupon", code)
		return empty, ErrCouponNotFound
	}
	coupon := couponRes.Value

	order, err := s.orders.Query(ctx, coupon.FromPlatform, coupon.Tid)
	if err != nil {
		logger.Warnw("proxy_order_external_order_query_failed",
			"coupon", code,
			"from_platform", coupon.FromPlatform,
			"tid", coupon.Tid,
			"error", err,
		)
		return empty, fmt.Errorf("%w: %v", ErrExternalOrderFetchFailed, err)
	}
	if order == nil {
		logger.Warnw("proxy_order_external_order_not_found", "coupon", code, "from_platform", coupon.FromPlatform, "tid", coupon.Tid)
		return empty, ErrExternalOrderNotFound
	}
	targetProxy := order.TargetProxy

	if coupon.Age(s.now()) > s.staleness {
		if local, ok := s.getLocal(ctx, targetProxy, coupon); ok {
			metrics.ProxyOrderResolutions.WithLabelValues(local.Origin).Inc()
			return local, nil
		}
	}

	live, err := s.fetchLive(ctx, targetProxy, coupon)
	if err != nil {
		return empty, err
	}
	metrics.ProxyOrderResolutions.WithLabelValues(constants.OriginAPI).Inc()
	return live, nil
}

func (s *ProxyOrderService) getLocal(ctx context.Context, targetProxy constants.TargetProxy, coupon *models.Coupon) (store.Result[models.ProxyOrder], bool) {
	st, ok := s.stores.For(targetProxy)
	if !ok {
		return store.Result[models.ProxyOrder]{}, false
	}
	res, err := st.Get(ctx, repository.ProxyOrderKey{
		TargetProxy:  targetProxy,
		ProxyOrderID: coupon.ProxyOrderID,
		Coupon:       coupon.Code,
	})
	if err != nil {
		logger.Warnw("proxy_order_local_lookup_failed", "coupon", coupon.Code, "target_proxy", targetProxy, "error", err)
		return res, false
	}
	return res, res.Found()
}

func (s *ProxyOrderService) fetchLive(ctx context.Context, targetProxy constants.TargetProxy, coupon *models.Coupon) (store.Result[models.ProxyOrder], error) {
	var empty store.Result[models.ProxyOrder]
	fetcher, ok := s.fetchers.For(targetProxy)
	if !ok {
		logger.Warnw("proxy_order_target_proxy_unsupported", "coupon", coupon.Code, "target_proxy", targetProxy)
		return empty, fmt.Errorf("%w: %s", ErrTargetProxyUnsupported, targetProxy)
	}

	cred, err := s.credentials.GetCredential(ctx, coupon.ProxyOpenID)
	if err != nil {
		logger.Warnw("proxy_order_credential_read_failed", "coupon", coupon.Code, "proxy_open_id", coupon.ProxyOpenID, "error", err)
		return empty, fmt.Errorf("%w: read credential: %v", ErrProxyOrderFetchFailed, err)
	}
	if cred.Expired(s.now()) {
		logger.Warnw("proxy_order_credential_expired", "coupon", coupon.Code, "proxy_open_id", coupon.ProxyOpenID)
		return empty, ErrCredentialExpired
	}

	payload, err := fetcher.FetchOrder(ctx, *cred, coupon.ProxyOrderID)
	if err != nil {
		logger.Warnw("proxy_order_fetch_failed", "coupon", coupon.Code, "proxy_order_id", coupon.ProxyOrderID, "error", err)
		return empty, fmt.Errorf("%w: %v", ErrProxyOrderFetchFailed, err)
	}
	if payload == nil {
		logger.Warnw("proxy_order_fetch_empty", "coupon", coupon.Code, "proxy_order_id", coupon.ProxyOrderID)
		return empty, ErrProxyOrderNotFound
	}
	status, err := upstream.ParseOrderStatus(payload)
	if err != nil {
		return empty, fmt.Errorf("%w: %v", ErrProxyOrderFetchFailed, err)
	}
	return store.Result[models.ProxyOrder]{
		Value: &models.ProxyOrder{
			TargetProxy:  targetProxy.String(),
			ProxyOrderID: coupon.ProxyOrderID,
			Coupon:       coupon.Code,
			FromPlatform: coupon.FromPlatform,
			Tid:          coupon.Tid,
			ProxyOpenID:  coupon.ProxyOpenID,
			Order:        string(payload),
			OrderStatus:  status,
		},
		Origin: constants.OriginAPI,
	}, nil
}

// BatchGet 批量解析，单个失败只记录日志；结果按输入顺序并按平台与状态过滤
func (s *ProxyOrderService) BatchGet(ctx context.Context, targetProxy constants.TargetProxy, codes []string, status string) ([]store.Result[models.ProxyOrder], error) {
	trimmed := make([]string, 0, len(codes))
	for _, code := range codes {
		if code = strings.TrimSpace(code); code != "" {
			trimmed = append(trimmed, code)
		}
	}
	distinct := store.Distinct(trimmed)
	results := make([]store.Result[models.ProxyOrder], len(distinct))
	var g errgroup.Group
	for i, code := range distinct {
		g.Go(func() error {
			res, err := s.Get(ctx, code)
			if err != nil {
				logger.Warnw("proxy_order_batch_item_failed", "coupon", code, "error", err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	status = strings.TrimSpace(status)
	out := make([]store.Result[models.ProxyOrder], 0, len(results))
	for _, res := range results {
		if !res.Found() {
			continue
		}
		if res.Value.TargetProxy != targetProxy.String() {
			continue
		}
		if status != "" && res.Value.OrderStatus != status {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// Backup 将时间范围内仅存在于平台的代理订单回填到本地
// 逐条处理且不跨条目事务；本地已有的订单跳过，单条解析或插入失败记录日志后继续，
// 因此同一窗口重复执行是安全的
func (s *ProxyOrderService) Backup(ctx context.Context, targetProxy constants.TargetProxy, from, to time.Time) (int, error) {
	st, ok := s.stores.For(targetProxy)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTargetProxyUnsupported, targetProxy)
	}
	if !from.Before(to) {
		return 0, ErrBackupRangeInvalid
	}
	coupons, err := s.couponRepo.ListForBackup(ctx, repository.BackupFilter{
		TargetProxy: targetProxy,
		From:        from,
		To:          to,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: list backup coupons: %v", apperr.ErrPersistence, err)
	}
	logger.Infow("proxy_order_backup_candidates", "target_proxy", targetProxy, "from", from, "to", to, "count", len(coupons))

	inserted, failed := 0, 0
	for _, coupon := range coupons {
		res, err := s.Get(ctx, coupon.Code)
		if err != nil {
			logger.Warnw("proxy_order_backup_resolve_failed", "coupon", coupon.Code, "error", err)
			continue
		}
		if res.Origin != constants.OriginAPI {
			continue
		}
		// 新券总是实时读取，已回填过的订单需要再查一次本地
		local, err := st.Get(ctx, repository.ProxyOrderKey{TargetProxy: targetProxy, ProxyOrderID: res.Value.ProxyOrderID})
		if err != nil {
			logger.Warnw("proxy_order_backup_local_check_failed", "coupon", coupon.Code, "error", err)
			failed++
			continue
		}
		if local.Found() {
			continue
		}
		if err := st.Insert(ctx, res.Value); err != nil {
			logger.Warnw("proxy_order_backup_insert_failed", "coupon", coupon.Code, "error", err)
			failed++
			continue
		}
		inserted++
	}
	logger.Infow("proxy_order_backup_done", "target_proxy", targetProxy, "inserted", inserted, "failed", failed)
	return inserted, nil
}

// Insert 写入代理订单
func (s *ProxyOrderService) Insert(ctx context.Context, order *models.ProxyOrder) error {
	st, err := s.storeFor(order)
	if err != nil {
		return err
	}
	if order.Order != "" && order.OrderStatus == "" {
		if status, err := upstream.ParseOrderStatus([]byte(order.Order)); err == nil {
			order.OrderStatus = status
		}
	}
	return st.Insert(ctx, order)
}

// Update 更新代理订单
func (s *ProxyOrderService) Update(ctx context.Context, order *models.ProxyOrder) error {
	st, err := s.storeFor(order)
	if err != nil {
		return err
	}
	return st.Write(ctx, order)
}

// Delete 软删除代理订单
func (s *ProxyOrderService) Delete(ctx context.Context, targetProxy constants.TargetProxy, proxyOrderID string) error {
	st, ok := s.stores.For(targetProxy)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTargetProxyUnsupported, targetProxy)
	}
	proxyOrderID = strings.TrimSpace(proxyOrderID)
	if proxyOrderID == "" {
		return ErrCouponInvalid
	}
	err := st.Delete(ctx, repository.ProxyOrderKey{TargetProxy: targetProxy, ProxyOrderID: proxyOrderID})
	if errors.Is(err, apperr.ErrNotFound) {
		return ErrProxyOrderNotFound
	}
	return err
}

func (s *ProxyOrderService) storeFor(order *models.ProxyOrder) (*ProxyOrderStore, error) {
	if order == nil || strings.TrimSpace(order.ProxyOrderID) == "" || strings.TrimSpace(order.Coupon) == "" {
		return nil, fmt.Errorf("%w: proxy order id and coupon are required", apperr.ErrValidation)
	}
	targetProxy := constants.TargetProxy(strings.TrimSpace(order.TargetProxy))
	st, ok := s.stores.For(targetProxy)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetProxyUnsupported, targetProxy)
	}
	return st, nil
}
