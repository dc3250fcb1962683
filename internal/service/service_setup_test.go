package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couponhub/internal/cache"
	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/models"
	"github.com/couponhub/internal/repository"
	"github.com/couponhub/internal/upstream"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type serviceTestEnv struct {
	db         *gorm.DB
	mr         *miniredis.Miniredis
	cache      *cache.RedisCache
	couponRepo *repository.GormCouponRepository
	coupons    *CouponStore
	proxies    ProxyOrderStores
}

func setupServiceTest(t *testing.T) *serviceTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.MigrateSchema(db); err != nil {
		t.Fatalf("migrate schema failed: %v", err)
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rc := cache.NewRedisCache(client, "test")

	couponRepo := repository.NewCouponRepository(db)
	return &serviceTestEnv{
		db:         db,
		mr:         mr,
		cache:      rc,
		couponRepo: couponRepo,
		coupons:    NewCouponStore(db, couponRepo, rc, time.Minute),
		proxies:    NewProxyOrderStores(db, repository.NewProxyOrderRepositories(db), rc, time.Minute, rc),
	}
}

func (e *serviceTestEnv) insertCoupon(t *testing.T, code, tid, openID, proxyOrderID string, createdAt time.Time) *models.Coupon {
	t.Helper()
	amount := models.NewMoneyFromDecimal(decimal.NewFromInt(30))
	coupon := &models.Coupon{
		Code:             code,
		FromPlatform:     constants.PlatformTaobao,
		Tid:              tid,
		Payment:          amount,
		AvailableBalance: amount,
		Status:           constants.CouponStatusGenerated,
		ProxyOpenID:      openID,
		ProxyOrderID:     proxyOrderID,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
	if err := e.coupons.Insert(context.Background(), coupon); err != nil {
		t.Fatalf("insert coupon %s failed: %v", code, err)
	}
	return coupon
}

type stubOrderQuerier struct {
	targetProxy constants.TargetProxy
	err         error
	missing     bool
	calls       int64
}

func (s *stubOrderQuerier) Query(_ context.Context, platform, tid string) (*upstream.ExternalOrder, error) {
	atomic.AddInt64(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	if s.missing {
		return nil, nil
	}
	return &upstream.ExternalOrder{
		FromPlatform: platform,
		Tid:          tid,
		TargetProxy:  s.targetProxy,
		PayAmount:    models.NewMoneyFromDecimal(decimal.NewFromInt(30)),
	}, nil
}

type stubFetcher struct {
	payload string
	err     error
	calls   int64
	mu      sync.Mutex
	seen    []string
}

func (s *stubFetcher) FetchOrder(_ context.Context, _ upstream.Credential, proxyOrderID string) (json.RawMessage, error) {
	atomic.AddInt64(&s.calls, 1)
	s.mu.Lock()
	s.seen = append(s.seen, proxyOrderID)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.payload == "" {
		return nil, nil
	}
	return json.RawMessage(s.payload), nil
}

type stubCredentials struct {
	cred *upstream.Credential
	err  error
}

func (s *stubCredentials) GetCredential(context.Context, string) (*upstream.Credential, error) {
	return s.cred, s.err
}

func validCredential() *stubCredentials {
	return &stubCredentials{cred: &upstream.Credential{Value: "token", Expiry: time.Now().Add(time.Hour)}}
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (p *recordingPublisher) PublishCouponGenerated(_ context.Context, coupon *models.Coupon) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, coupon.Code)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }
