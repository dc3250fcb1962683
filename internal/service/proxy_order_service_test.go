package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couponhub/internal/apperr"
	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/models"
	"github.com/couponhub/internal/repository"
	"github.com/couponhub/internal/upstream"
)

const finishedOrderPayload = `{"data":{"orderId":"PO-1","status":"FINISHED"}}`

func newTestProxyOrderService(env *serviceTestEnv, orders upstream.OrderQuerier, fetcher upstream.ProxyOrderFetcher, creds upstream.CredentialStore) *ProxyOrderService {
	return NewProxyOrderService(
		env.coupons,
		env.couponRepo,
		env.proxies,
		orders,
		creds,
		upstream.Fetchers{constants.TargetProxySexytea: fetcher},
		ProxyOrderServiceOptions{Staleness: 24 * time.Hour},
	)
}

func TestProxyOrderGetFreshCouponFetchesLive(t *testing.T) {
	env := setupServiceTest(t)
	fetcher := &stubFetcher{payload: finishedOrderPayload}
	svc := newTestProxyOrderService(env, &stubOrderQuerier{targetProxy: constants.TargetProxySexytea}, fetcher, validCredential())
	env.insertCoupon(t, "F1", "T1", "open-1", "PO-1", time.Now())

	res, err := svc.Get(context.Background(), "F1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if res.Origin != constants.OriginAPI {
		t.Fatalf("expected api origin, got %s", res.Origin)
	}
	if res.Value.OrderStatus != "FINISHED" || res.Value.Coupon != "F1" || res.Value.ProxyOrderID != "PO-1" {
		t.Fatalf("unexpected proxy order: %+v", res.Value)
	}
	if atomic.LoadInt64(&fetcher.calls) != 1 {
		t.Fatalf("expected one fetch, got %d", fetcher.calls)
	}

	// 实时结果不落库
	var count int64
	if err := env.db.Model(&models.SexyteaOrder{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("live result should not be persisted, got %d rows", count)
	}
}

func TestProxyOrderGetStaleCouponUsesLocalCopy(t *testing.T) {
	env := setupServiceTest(t)
	fetcher := &stubFetcher{payload: finishedOrderPayload}
	svc := newTestProxyOrderService(env, &stubOrderQuerier{targetProxy: constants.TargetProxySexytea}, fetcher, validCredential())
	ctx := context.Background()
	env.insertCoupon(t, "S1", "T2", "open-1", "PO-2", time.Now().Add(-48*time.Hour))

	if err := svc.Insert(ctx, &models.ProxyOrder{
		TargetProxy:  constants.TargetProxySexytea.String(),
		ProxyOrderID: "PO-2",
		Coupon:       "S1",
		Order:        `{"data":{"status":"REFUNDED"}}`,
	}); err != nil {
		t.Fatalf("insert proxy order failed: %v", err)
	}

	res, err := svc.Get(ctx, "S1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if res.Origin != constants.OriginStore || res.Value.OrderStatus != "REFUNDED" {
		t.Fatalf("expected local copy, got origin=%s value=%+v", res.Origin, res.Value)
	}
	cached, err := svc.Get(ctx, "S1")
	if err != nil {
		t.Fatalf("second get failed: %v", err)
	}
	if cached.Origin != constants.OriginCache {
		t.Fatalf("expected cache origin, got %s", cached.Origin)
	}
	if atomic.LoadInt64(&fetcher.calls) != 0 {
		t.Fatalf("stale coupon with local copy must not call upstream, got %d calls", fetcher.calls)
	}
}

func TestProxyOrderGetStaleCouponWithoutLocalFallsBackToLive(t *testing.T) {
	env := setupServiceTest(t)
	fetcher := &stubFetcher{payload: finishedOrderPayload}
	svc := newTestProxyOrderService(env, &stubOrderQuerier{targetProxy: constants.TargetProxySexytea}, fetcher, validCredential())
	env.insertCoupon(t, "S2", "T3", "open-1", "PO-3", time.Now().Add(-48*time.Hour))

	res, err := svc.Get(context.Background(), "S2")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if res.Origin != constants.OriginAPI || atomic.LoadInt64(&fetcher.calls) != 1 {
		t.Fatalf("expected live fallback, got origin=%s calls=%d", res.Origin, fetcher.calls)
	}
}

func TestProxyOrderGetExpiredCredentialSkipsFetch(t *testing.T) {
	env := setupServiceTest(t)
	fetcher := &stubFetcher{payload: finishedOrderPayload}
	expired := &stubCredentials{cred: &upstream.Credential{Value: "token", Expiry: time.Now().Add(-time.Minute)}}
	svc := newTestProxyOrderService(env, &stubOrderQuerier{targetProxy: constants.TargetProxySexytea}, fetcher, expired)
	env.insertCoupon(t, "E1", "T4", "open-1", "PO-4", time.Now())

	if _, err := svc.Get(context.Background(), "E1"); !errors.Is(err, ErrCredentialExpired) {
		t.Fatalf("expected ErrCredentialExpired, got %v", err)
	}
	missing := newTestProxyOrderService(env, &stubOrderQuerier{targetProxy: constants.TargetProxySexytea}, fetcher, &stubCredentials{})
	if _, err := missing.Get(context.Background(), "E1"); !errors.Is(err, ErrCredentialExpired) {
		t.Fatalf("missing credential should be treated as expired, got %v", err)
	}
	if atomic.LoadInt64(&fetcher.calls) != 0 {
		t.Fatalf("expired credential must not call upstream, got %d calls", fetcher.calls)
	}
}

func TestProxyOrderGetErrors(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	env.insertCoupon(t, "X1", "T5", "open-1", "PO-5", time.Now())
	fetcher := &stubFetcher{payload: finishedOrderPayload}

	svc := newTestProxyOrderService(env, &stubOrderQuerier{targetProxy: constants.TargetProxySexytea}, fetcher, validCredential())
	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}

	down := newTestProxyOrderService(env, &stubOrderQuerier{err: errors.New("timeout")}, fetcher, validCredential())
	if _, err := down.Get(ctx, "X1"); !errors.Is(err, ErrExternalOrderFetchFailed) || !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("expected external order fetch failure, got %v", err)
	}

	gone := newTestProxyOrderService(env, &stubOrderQuerier{missing: true}, fetcher, validCredential())
	if _, err := gone.Get(ctx, "X1"); !errors.Is(err, ErrExternalOrderNotFound) {
		t.Fatalf("expected ErrExternalOrderNotFound, got %v", err)
	}

	unsupported := newTestProxyOrderService(env, &stubOrderQuerier{targetProxy: "unknown"}, fetcher, validCredential())
	if _, err := unsupported.Get(ctx, "X1"); !errors.Is(err, ErrTargetProxyUnsupported) {
		t.Fatalf("expected ErrTargetProxyUnsupported, got %v", err)
	}

	empty := newTestProxyOrderService(env, &stubOrderQuerier{targetProxy: constants.TargetProxySexytea}, &stubFetcher{}, validCredential())
	if _, err := empty.Get(ctx, "X1"); !errors.Is(err, ErrProxyOrderNotFound) {
		t.Fatalf("expected ErrProxyOrderNotFound, got %v", err)
	}

	failing := newTestProxyOrderService(env, &stubOrderQuerier{targetProxy: constants.TargetProxySexytea}, &stubFetcher{err: upstream.ErrRequestFailed}, validCredential())
	if _, err := failing.Get(ctx, "X1"); !errors.Is(err, ErrProxyOrderFetchFailed) {
		t.Fatalf("expected ErrProxyOrderFetchFailed, got %v", err)
	}
}

func TestProxyOrderBatchGetDedupesAndFilters(t *testing.T) {
	env := setupServiceTest(t)
	fetcher := &stubFetcher{payload: finishedOrderPayload}
	svc := newTestProxyOrderService(env, &stubOrderQuerier{targetProxy: constants.TargetProxySexytea}, fetcher, validCredential())
	env.insertCoupon(t, "BA", "T6", "open-1", "PO-A", time.Now())
	env.insertCoupon(t, "BB", "T7", "open-1", "PO-B", time.Now())

	results, err := svc.BatchGet(context.Background(), constants.TargetProxySexytea, []string{"BA", "BA", "BB", "missing"}, "")
	if err != nil {
		t.Fatalf("batch get failed: %v", err)
	}
	if len(results) != 2 || results[0].Value.Coupon != "BA" || results[1].Value.Coupon != "BB" {
		t.Fatalf("unexpected batch results: %+v", results)
	}
	if atomic.LoadInt64(&fetcher.calls) != 2 {
		t.Fatalf("duplicate codes should be resolved once, got %d fetches", fetcher.calls)
	}

	filtered, err := svc.BatchGet(context.Background(), constants.TargetProxySexytea, []string{"BA", "BB"}, "CANCELLED")
	if err != nil {
		t.Fatalf("filtered batch get failed: %v", err)
	}
	if len(filtered) != 0 {
		t.Fatalf("status filter should drop all results, got %d", len(filtered))
	}
}

func TestProxyOrderBackup(t *testing.T) {
	env := setupServiceTest(t)
	fetcher := &stubFetcher{payload: finishedOrderPayload}
	svc := newTestProxyOrderService(env, &stubOrderQuerier{targetProxy: constants.TargetProxySexytea}, fetcher, validCredential())
	ctx := context.Background()
	now := time.Now()

	orders := []models.ExternalOrder{
		{FromPlatform: constants.PlatformTaobao, Tid: "K1", TargetProxy: constants.TargetProxySexytea.String()},
		{FromPlatform: constants.PlatformTaobao, Tid: "K2", TargetProxy: constants.TargetProxySexytea.String()},
		{FromPlatform: constants.PlatformTaobao, Tid: "K3", TargetProxy: constants.TargetProxySexytea.String()},
		{FromPlatform: constants.PlatformTaobao, Tid: "K4", TargetProxy: constants.TargetProxySexytea.String()},
	}
	if _, err := models.SeedExternalOrders(env.db, orders); err != nil {
		t.Fatalf("seed external orders failed: %v", err)
	}
	env.insertCoupon(t, "K1C", "K1", "open-1", "PO-K1", now.Add(-2*time.Hour))
	env.insertCoupon(t, "K2C", "K2", "open-1", "PO-K2", now.Add(-2*time.Hour))
	env.insertCoupon(t, "K3C", "K3", "open-1", "PO-K3", now.Add(-2*time.Hour))
	// 代理订单号过短，不参与回填
	env.insertCoupon(t, "K4C", "K4", "open-1", "P4", now.Add(-2*time.Hour))

	// K3 已有本地副本
	if err := svc.Insert(ctx, &models.ProxyOrder{
		TargetProxy:  constants.TargetProxySexytea.String(),
		ProxyOrderID: "PO-K3",
		Coupon:       "K3C",
		Order:        finishedOrderPayload,
	}); err != nil {
		t.Fatalf("insert local copy failed: %v", err)
	}
	// 超过阈值才会优先读取本地副本
	svc.staleness = time.Hour

	inserted, err := svc.Backup(ctx, constants.TargetProxySexytea, now.Add(-3*time.Hour), now)
	if err != nil {
		t.Fatalf("backup failed: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("expected 2 inserted proxy orders, got %d", inserted)
	}

	var count int64
	if err := env.db.Model(&models.SexyteaOrder{}).Where("is_deleted = ?", false).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 proxy order rows, got %d", count)
	}

	if _, err := svc.Backup(ctx, constants.TargetProxySexytea, now, now.Add(-time.Hour)); !errors.Is(err, ErrBackupRangeInvalid) {
		t.Fatalf("expected ErrBackupRangeInvalid, got %v", err)
	}
	if _, err := svc.Backup(ctx, "unknown", now.Add(-time.Hour), now); !errors.Is(err, ErrTargetProxyUnsupported) {
		t.Fatalf("expected ErrTargetProxyUnsupported, got %v", err)
	}
}

func TestProxyOrderBackupRerunOverSameWindow(t *testing.T) {
	env := setupServiceTest(t)
	fetcher := &stubFetcher{payload: finishedOrderPayload}
	svc := newTestProxyOrderService(env, &stubOrderQuerier{targetProxy: constants.TargetProxySexytea}, fetcher, validCredential())
	ctx := context.Background()
	now := time.Now()
	from, to := now.Add(-6*time.Hour), now.Add(time.Minute)

	orders := []models.ExternalOrder{
		{FromPlatform: constants.PlatformTaobao, Tid: "R1", TargetProxy: constants.TargetProxySexytea.String()},
		{FromPlatform: constants.PlatformTaobao, Tid: "R2", TargetProxy: constants.TargetProxySexytea.String()},
	}
	if _, err := models.SeedExternalOrders(env.db, orders); err != nil {
		t.Fatalf("seed external orders failed: %v", err)
	}
	// 未超过阈值的新券，Get 始终走实时读取
	env.insertCoupon(t, "R1C", "R1", "open-1", "PO-R1", now.Add(-3*time.Hour))

	inserted, err := svc.Backup(ctx, constants.TargetProxySexytea, from, to)
	if err != nil || inserted != 1 {
		t.Fatalf("first run: inserted=%d err=%v", inserted, err)
	}

	env.insertCoupon(t, "R2C", "R2", "open-1", "PO-R2", now.Add(-2*time.Hour))
	inserted, err = svc.Backup(ctx, constants.TargetProxySexytea, from, to)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("second run should only backfill R2C, got %d", inserted)
	}

	for _, code := range []string{"R1C", "R2C"} {
		var count int64
		if err := env.db.Model(&models.SexyteaOrder{}).Where("coupon = ? AND is_deleted = ?", code, false).Count(&count).Error; err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected exactly one row for %s, got %d", code, count)
		}
	}
}

func TestProxyOrderUpdateInvalidatesPreviousCouponKey(t *testing.T) {
	env := setupServiceTest(t)
	svc := newTestProxyOrderService(env, &stubOrderQuerier{targetProxy: constants.TargetProxySexytea}, &stubFetcher{}, validCredential())
	ctx := context.Background()

	order := &models.ProxyOrder{
		TargetProxy:  constants.TargetProxySexytea.String(),
		ProxyOrderID: "PO-U",
		Coupon:       "U-OLD",
		Order:        finishedOrderPayload,
	}
	if err := svc.Insert(ctx, order); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	st, _ := env.proxies.For(constants.TargetProxySexytea)
	oldKey := repository.ProxyOrderKey{Coupon: "U-OLD"}
	if res, err := st.Get(ctx, oldKey); err != nil || !res.Found() {
		t.Fatalf("warm cache by coupon failed: %+v %v", res, err)
	}
	if !env.mr.Exists("test:proxyorder.U-OLD") {
		t.Fatalf("expected coupon key to be cached")
	}

	updated := *order
	updated.Coupon = "U-NEW"
	if err := svc.Update(ctx, &updated); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if env.mr.Exists("test:proxyorder.U-OLD") {
		t.Fatalf("cache key of the previous coupon should be invalidated")
	}
	res, err := st.Get(ctx, oldKey)
	if err != nil {
		t.Fatalf("get by old coupon failed: %v", err)
	}
	if res.Found() {
		t.Fatalf("old coupon should no longer resolve, got %+v", res.Value)
	}
}

func TestProxyOrderDelete(t *testing.T) {
	env := setupServiceTest(t)
	svc := newTestProxyOrderService(env, &stubOrderQuerier{targetProxy: constants.TargetProxySexytea}, &stubFetcher{}, validCredential())
	ctx := context.Background()

	order := &models.ProxyOrder{
		TargetProxy:  constants.TargetProxySexytea.String(),
		ProxyOrderID: "PO-D",
		Coupon:       "D1",
		Order:        finishedOrderPayload,
	}
	if err := svc.Insert(ctx, order); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if order.OrderStatus != "FINISHED" {
		t.Fatalf("status should be parsed on insert, got %q", order.OrderStatus)
	}
	if err := svc.Delete(ctx, constants.TargetProxySexytea, "PO-D"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := svc.Delete(ctx, constants.TargetProxySexytea, "PO-D"); !errors.Is(err, ErrProxyOrderNotFound) {
		t.Fatalf("expected ErrProxyOrderNotFound on second delete, got %v", err)
	}
}
