package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mailspend/mailspend/internal/config"
	"github.com/mailspend/mailspend/internal/domain"
)

func testConfig() config.Config {
	return config.Config{
		GinMode:   gin.TestMode,
		RateRPS:   1000,
		RateBurst: 1000,
		Pipeline:  config.PipelineConfig{PollInterval: 3 * time.Hour},
		OTEL:      config.OTELConfig{ServiceName: "mailspend-test"},
	}
}

func newTestRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := filepath.Join(t.TempDir(), "router.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Transaction{}, &domain.Watermark{}, &domain.MessageFailure{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	r := gin.New()
	RegisterRoutes(r, db, cfg)
	return r
}

func get(t *testing.T, r *gin.Engine, url string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Healthz(t *testing.T) {
	r := newTestRouter(t, testConfig())
	w := get(t, r, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("X-Request-ID header missing")
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, testConfig())
	w := get(t, r, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRouter_APIEndpointsMounted(t *testing.T) {
	r := newTestRouter(t, testConfig())
	for _, path := range []string{
		"/api/v1/transactions",
		"/api/v1/summary",
		"/api/v1/failures",
		"/api/v1/status",
	} {
		w := get(t, r, path, map[string]string{"Accept-Encoding": "identity"})
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d body=%s", path, w.Code, w.Body.String())
		}
	}
}

func TestRouter_NotFoundEnvelope(t *testing.T) {
	r := newTestRouter(t, testConfig())
	w := get(t, r, "/api/v1/nope", map[string]string{"Accept-Encoding": "identity"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v body=%s", err, w.Body.String())
	}
	if body.Code != "not_found" {
		t.Fatalf("code = %q", body.Code)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	r := newTestRouter(t, testConfig())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", nil)
	req.Header.Set("Accept-Encoding", "identity")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v body=%s", err, w.Body.String())
	}
	if body.Code != "method_not_allowed" {
		t.Fatalf("code = %q", body.Code)
	}
}

func TestRouter_CORSAllowAllByDefault(t *testing.T) {
	r := newTestRouter(t, testConfig())
	w := get(t, r, "/healthz", map[string]string{"Origin": "https://dash.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("ACAO = %q; want *", got)
	}
}

func TestRouter_CORSAllowlistEchoesOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"https://dash.example.com"}
	r := newTestRouter(t, cfg)

	w := get(t, r, "/healthz", map[string]string{"Origin": "https://dash.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Fatalf("ACAO = %q", got)
	}

	w = get(t, r, "/healthz", map[string]string{"Origin": "https://evil.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin got ACAO %q", got)
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	r := newTestRouter(t, testConfig())
	w := get(t, r, "/healthz", nil)
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got == "" {
		t.Fatalf("X-Frame-Options missing")
	}
}

func TestRouter_RateLimitUsesErrorEnvelope(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r := newTestRouter(t, cfg)

	w := get(t, r, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	w = get(t, r, "/healthz", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", w.Code)
	}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v body=%s", err, w.Body.String())
	}
	if body.Code != "rate_limited" {
		t.Fatalf("code = %q", body.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Fatalf("Retry-After missing")
	}
}

func TestRouter_GzipWhenAccepted(t *testing.T) {
	r := newTestRouter(t, testConfig())
	w := get(t, r, "/api/v1/status", map[string]string{"Accept-Encoding": "gzip"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q; want gzip", got)
	}
}
