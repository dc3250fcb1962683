package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/couponhub/internal/cache"
	"github.com/couponhub/internal/config"
	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/models"
	"github.com/couponhub/internal/provider"
	"github.com/couponhub/internal/repository"
	"github.com/couponhub/internal/service"
	"github.com/couponhub/internal/upstream"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type apiResponse struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

func setupRouterTest(t *testing.T) (*gin.Engine, *provider.Container) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	externalSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tid") == "missing" {
			_, _ = w.Write([]byte(`{"code":0,"msg":"","data":null}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"code":0,"msg":"ok","data":{"from_platform":%q,"tid":%q,"target_proxy":"sexytea","pay_amount":"18.00"}}`,
			r.URL.Query().Get("from_platform"), r.URL.Query().Get("tid"))
	}))
	t.Cleanup(externalSrv.Close)
	sexyteaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token-1" {
			t.Errorf("unexpected authorization header: %q", r.Header.Get("Authorization"))
		}
		_, _ = fmt.Fprintf(w, `{"data":{"orderId":%q,"status":"MAKING"}}`, r.URL.Query().Get("orderId"))
	}))
	t.Cleanup(sexyteaSrv.Close)

	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: "debug"},
		Redis:     config.RedisConfig{Prefix: "test"},
		Metrics:   config.MetricsConfig{Enabled: true, Path: "/metrics"},
		RateLimit: config.RateLimitConfig{BackupWindowSeconds: 60, BackupMaxRequests: 1},
	}
	c := &provider.Container{
		Config:              cfg,
		Cache:               rc,
		ExternalOrderClient: upstream.NewExternalOrderClient(upstream.ClientOptions{BaseURL: externalSrv.URL}),
		CredentialStore:     cache.NewCredentialStore(rc),
		Fetchers: upstream.Fetchers{
			constants.TargetProxySexytea: upstream.NewSexyteaClient(upstream.ClientOptions{BaseURL: sexyteaSrv.URL}),
		},
		CouponRepo:      repository.NewCouponRepository(db),
		ProxyOrderRepos: repository.NewProxyOrderRepositories(db),
	}
	c.CouponStore = service.NewCouponStore(db, c.CouponRepo, rc, time.Minute)
	c.ProxyOrderStores = service.NewProxyOrderStores(db, c.ProxyOrderRepos, rc, time.Minute, rc)
	c.CouponGenerationService = service.NewCouponGenerationService(c.CouponStore, nil, rc)
	c.CouponService = service.NewCouponService(c.CouponStore, c.CouponRepo)
	c.ProxyOrderService = service.NewProxyOrderService(c.CouponStore, c.CouponRepo, c.ProxyOrderStores,
		c.ExternalOrderClient, c.CredentialStore, c.Fetchers, service.ProxyOrderServiceOptions{Staleness: 24 * time.Hour})

	if err := c.CredentialStore.PutCredential(context.Background(), "open-1", upstream.Credential{Value: "token-1", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("put credential failed: %v", err)
	}
	return SetupRouter(cfg, c), c
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) apiResponse {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("%s %s: http status want 200 got %d", method, path, w.Code)
	}
	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: unmarshal response failed: %v body=%s", method, path, err, w.Body.String())
	}
	return resp
}

func TestCouponEndpoints(t *testing.T) {
	r, _ := setupRouterTest(t)

	generated := doJSON(t, r, http.MethodPost, "/api/v1/coupon/generate", `{"from_platform":"TAOBAO","tid":"T100"}`)
	if generated.StatusCode != 0 {
		t.Fatalf("generate failed: %+v", generated)
	}
	var coupon models.Coupon
	if err := json.Unmarshal(generated.Data, &coupon); err != nil {
		t.Fatalf("decode coupon failed: %v", err)
	}
	if coupon.Code == "" || coupon.Payment.String() != "18.00" {
		t.Fatalf("unexpected coupon: %+v", coupon)
	}

	duplicate := doJSON(t, r, http.MethodPost, "/api/v1/coupon/generate", `{"from_platform":"TAOBAO","tid":"T100"}`)
	if duplicate.StatusCode != 500 {
		t.Fatalf("duplicate generate should fail with 500, got %+v", duplicate)
	}

	missing := doJSON(t, r, http.MethodPost, "/api/v1/coupon/generate", `{"from_platform":"TAOBAO","tid":"missing"}`)
	if missing.StatusCode != 404 {
		t.Fatalf("generate for missing order should be 404, got %+v", missing)
	}

	query := doJSON(t, r, http.MethodGet, "/api/v1/coupon/query?coupon="+coupon.Code, "")
	if query.StatusCode != 0 || !strings.Contains(string(query.Data), `"origin":"store"`) {
		t.Fatalf("unexpected query response: %+v", query)
	}

	validate := doJSON(t, r, http.MethodPost, "/api/v1/coupon/validate", fmt.Sprintf(`{"coupons":[%q,%q,"nope"],"status":"generated"}`, coupon.Code, coupon.Code))
	var validated []models.Coupon
	if err := json.Unmarshal(validate.Data, &validated); err != nil {
		t.Fatalf("decode validate failed: %v", err)
	}
	if len(validated) != 1 {
		t.Fatalf("validate should dedupe and drop missing codes, got %d", len(validated))
	}

	bad := doJSON(t, r, http.MethodPost, "/api/v1/coupon/update", fmt.Sprintf(`{"coupon":%q,"event":"proxy_order_finished"}`, coupon.Code))
	if bad.StatusCode != 400 {
		t.Fatalf("illegal transition should be 400, got %+v", bad)
	}

	deleted := doJSON(t, r, http.MethodPost, "/api/v1/coupon/delete", fmt.Sprintf(`{"coupon":%q}`, coupon.Code))
	if deleted.StatusCode != 0 {
		t.Fatalf("delete failed: %+v", deleted)
	}
	gone := doJSON(t, r, http.MethodGet, "/api/v1/coupon/query?coupon="+coupon.Code, "")
	if gone.StatusCode != 404 {
		t.Fatalf("deleted coupon should be 404, got %+v", gone)
	}
}

func TestProxyOrderEndpoints(t *testing.T) {
	r, _ := setupRouterTest(t)

	manual := doJSON(t, r, http.MethodPost, "/api/v1/coupon/generate-manual", `{"from_platform":"PDD","tid":"T200","payment":"9.90"}`)
	if manual.StatusCode != 0 {
		t.Fatalf("manual generate failed: %+v", manual)
	}
	code := service.ManualCouponCode("PDD", "T200")
	update := doJSON(t, r, http.MethodPost, "/api/v1/coupon/update", fmt.Sprintf(`{"coupon":%q,"proxy_open_id":"open-1","proxy_order_id":"SO-200","event":"submit_proxy_order"}`, code))
	if update.StatusCode != 0 {
		t.Fatalf("update failed: %+v", update)
	}

	resolved := doJSON(t, r, http.MethodGet, "/api/v1/proxy-order/query?coupon="+code, "")
	if resolved.StatusCode != 0 {
		t.Fatalf("resolve failed: %+v", resolved)
	}
	if !strings.Contains(string(resolved.Data), `"origin":"api"`) || !strings.Contains(string(resolved.Data), `"order_status":"MAKING"`) {
		t.Fatalf("unexpected resolve response: %s", resolved.Data)
	}

	batch := doJSON(t, r, http.MethodPost, "/api/v1/proxy-order/query-coupons", fmt.Sprintf(`{"target_proxy":"sexytea","coupons":[%q,"unknown"]}`, code))
	if batch.StatusCode != 0 || strings.Count(string(batch.Data), `"proxy_order_id":"SO-200"`) != 1 {
		t.Fatalf("unexpected batch response: %+v", batch)
	}

	unsupported := doJSON(t, r, http.MethodPost, "/api/v1/proxy-order/delete", `{"target_proxy":"other","proxy_order_id":"SO-1"}`)
	if unsupported.StatusCode != 400 {
		t.Fatalf("unsupported proxy should be 400, got %+v", unsupported)
	}
}

func TestBackupEndpointIsRateLimited(t *testing.T) {
	r, _ := setupRouterTest(t)

	first := doJSON(t, r, http.MethodPost, "/api/v1/proxy-order/backup", `{"target_proxy":"sexytea"}`)
	if first.StatusCode != 0 || !strings.Contains(string(first.Data), `"inserted":0`) {
		t.Fatalf("first backup should succeed with nothing to insert, got %+v", first)
	}
	second := doJSON(t, r, http.MethodPost, "/api/v1/proxy-order/backup", `{"target_proxy":"sexytea"}`)
	if second.StatusCode != 429 {
		t.Fatalf("second backup should be limited, got %+v", second)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := setupRouterTest(t)

	health := doJSON(t, r, http.MethodGet, "/health", "")
	if health.StatusCode != 0 {
		t.Fatalf("unexpected health response: %+v", health)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Fatalf("metrics endpoint should expose default collectors, got %d", w.Code)
	}
}
