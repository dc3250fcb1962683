package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/couponhub/internal/apperr"
	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/models"
	"github.com/couponhub/internal/upstream"

	"github.com/shopspring/decimal"
)

func newExternalOrder(platform, tid string, amount int64) *upstream.ExternalOrder {
	return &upstream.ExternalOrder{
		FromPlatform: platform,
		Tid:          tid,
		TargetProxy:  constants.TargetProxySexytea,
		PayAmount:    models.NewMoneyFromDecimal(decimal.NewFromInt(amount)),
	}
}

func TestGenerateCouponFromOrder(t *testing.T) {
	env := setupServiceTest(t)
	publisher := &recordingPublisher{}
	svc := NewCouponGenerationService(env.coupons, publisher, env.cache)
	ctx := context.Background()

	coupon, err := svc.Generate(ctx, newExternalOrder(constants.PlatformTaobao, "T1", 25))
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(coupon.Code) != 32 || !regexp.MustCompile(`^[0-9a-f]+$`).MatchString(coupon.Code) {
		t.Fatalf("unexpected coupon code: %q", coupon.Code)
	}
	if coupon.Status != constants.CouponStatusGenerated {
		t.Fatalf("unexpected status: %s", coupon.Status)
	}
	if !coupon.Payment.Equal(decimal.NewFromInt(25)) || !coupon.AvailableBalance.Equal(coupon.Payment.Decimal) {
		t.Fatalf("balance should equal payment, got payment=%s balance=%s", coupon.Payment, coupon.AvailableBalance)
	}

	stored, err := env.couponRepo.GetAliveByTid(ctx, constants.PlatformTaobao, "T1")
	if err != nil || stored == nil || stored.Code != coupon.Code {
		t.Fatalf("coupon not persisted, got %+v err=%v", stored, err)
	}
	if ok, _ := env.mr.SIsMember("test:"+constants.CacheKeyNotUsedCoupons, coupon.Code); !ok {
		t.Fatalf("coupon should be tracked as not used")
	}
	if len(publisher.published) != 1 || publisher.published[0] != coupon.Code {
		t.Fatalf("expected one publish, got %v", publisher.published)
	}
}

func TestGenerateCouponRejectsInvalidOrder(t *testing.T) {
	env := setupServiceTest(t)
	publisher := &recordingPublisher{}
	svc := NewCouponGenerationService(env.coupons, publisher, env.cache)
	ctx := context.Background()

	cases := []*upstream.ExternalOrder{
		nil,
		newExternalOrder("", "T2", 10),
		newExternalOrder(constants.PlatformTaobao, "  ", 10),
		newExternalOrder(constants.PlatformTaobao, "T2", 0),
		newExternalOrder(constants.PlatformTaobao, "T2", -5),
	}
	for i, order := range cases {
		if _, err := svc.Generate(ctx, order); !errors.Is(err, ErrCouponInvalid) {
			t.Fatalf("case %d: expected ErrCouponInvalid, got %v", i, err)
		}
	}

	var count int64
	if err := env.db.Model(&models.Coupon{}).Count(&count).Error; err != nil {
		t.Fatalf("count coupons failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("invalid orders must not persist coupons, got %d", count)
	}
	if len(publisher.published) != 0 {
		t.Fatalf("invalid orders must not publish, got %v", publisher.published)
	}
}

func TestGenerateCouponRejectsDuplicateOrder(t *testing.T) {
	env := setupServiceTest(t)
	svc := NewCouponGenerationService(env.coupons, nil, nil)
	ctx := context.Background()

	if _, err := svc.Generate(ctx, newExternalOrder(constants.PlatformPdd, "T3", 10)); err != nil {
		t.Fatalf("first generate failed: %v", err)
	}
	_, err := svc.Generate(ctx, newExternalOrder(constants.PlatformPdd, "T3", 10))
	if !errors.Is(err, apperr.ErrPersistence) {
		t.Fatalf("expected persistence error for duplicate order, got %v", err)
	}
}

func TestGenerateManualCouponIsDeterministic(t *testing.T) {
	env := setupServiceTest(t)
	svc := NewCouponGenerationService(env.coupons, nil, env.cache)
	ctx := context.Background()

	want := ManualCouponCode(constants.PlatformTaobao, "T4")
	if want != ManualCouponCode(constants.PlatformTaobao, "T4") || len(want) != 32 {
		t.Fatalf("manual code should be deterministic 32 hex chars, got %q", want)
	}
	if want == ManualCouponCode(constants.PlatformPdd, "T4") {
		t.Fatalf("manual code should depend on platform")
	}

	amount := models.NewMoneyFromDecimal(decimal.NewFromInt(12))
	coupon, err := svc.GenerateManual(ctx, " "+constants.PlatformTaobao, "T4 ", amount)
	if err != nil {
		t.Fatalf("manual generate failed: %v", err)
	}
	if coupon.Code != want {
		t.Fatalf("unexpected manual code: got %s want %s", coupon.Code, want)
	}

	// 软删除后可以重新补发同一券码
	coupons := NewCouponService(env.coupons, env.couponRepo)
	if err := coupons.Delete(ctx, coupon.Code); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	again, err := svc.GenerateManual(ctx, constants.PlatformTaobao, "T4", amount)
	if err != nil {
		t.Fatalf("manual regenerate failed: %v", err)
	}
	if again.Code != want {
		t.Fatalf("regenerated code mismatch: %s", again.Code)
	}
}

func TestGenerateCouponPublishFailureDoesNotFail(t *testing.T) {
	env := setupServiceTest(t)
	publisher := &recordingPublisher{err: errors.New("broker down")}
	svc := NewCouponGenerationService(env.coupons, publisher, env.cache)

	if _, err := svc.Generate(context.Background(), newExternalOrder(constants.PlatformTaobao, "T5", 8)); err != nil {
		t.Fatalf("publish failure should not fail generation: %v", err)
	}
}
