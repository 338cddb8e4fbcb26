package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.POST("/rooms/:room/messages", func(c *gin.Context) { c.Status(http.StatusCreated) })
	return r
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	r := newEngine(RequestID())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("no generated request ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	w = serve(r, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-supplied" {
		t.Fatalf("request ID = %q; want client-supplied", got)
	}
}

func TestRedactingLoggerScrubsIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	r := newEngine(RequestID(), RedactingLogger(RedactOptions{}))

	req := httptest.NewRequest(http.MethodGet,
		"/ping?email=alice@example.com&id=141add05-4415-4938-b5a1-17e0d3171aff", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	serve(r, req)

	out := buf.String()
	if strings.Contains(out, "alice@example.com") || strings.Contains(out, "141add05") {
		t.Fatalf("identifiers leaked into log: %s", out)
	}
	if strings.Contains(out, "secret-token") {
		t.Fatalf("authorization header leaked: %s", out)
	}
	if !strings.Contains(out, "/ping") {
		t.Fatalf("path missing from log: %s", out)
	}
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestIdentityStoresHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Identity())
	var got string
	r.GET("/whoami", func(c *gin.Context) {
		got = UserIDFrom(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-ID", " u-42 ")
	serve(r, req)
	if got != "u-42" {
		t.Fatalf("UserIDFrom = %q", got)
	}

	serve(r, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if got != "" {
		t.Fatalf("UserIDFrom without header = %q", got)
	}
}

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, KeyByUserOrIP())
	r := newEngine(Identity(), rl.Handler())

	doAs := func(uid string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if uid != "" {
			req.Header.Set("X-User-ID", uid)
		}
		return serve(r, req).Code
	}

	// Burst of 2, then rejection.
	if doAs("u1") != http.StatusOK || doAs("u1") != http.StatusOK {
		t.Fatalf("burst requests rejected")
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("exhausted bucket: %d, Retry-After=%q", w.Code, w.Header().Get("Retry-After"))
	}

	// Another identity has its own bucket.
	if doAs("u2") != http.StatusOK {
		t.Fatalf("second user shared the first user's bucket")
	}
}

func TestRateLimiterBypassOnReplay(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, KeyByUserOrIP())
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(ctxKeyRateBypass, true) }, rl.Handler())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		if w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil)); w.Code != http.StatusOK {
			t.Fatalf("replayed request %d limited: %d", i, w.Code)
		}
	}
}

func TestIdempotencyValidatorRejectsMalformedKeys(t *testing.T) {
	r := newEngine(Identity(), IdempotencyValidator(IdempotencyOptions{MaxLen: 10}, nil))

	post := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/rooms/general/messages", nil)
		if key != "" {
			req.Header.Set(HeaderIdempotencyKey, key)
		}
		return serve(r, req)
	}

	if w := post(""); w.Code != http.StatusCreated {
		t.Fatalf("no key: %d", w.Code)
	}
	if w := post("ok-key.1"); w.Code != http.StatusCreated {
		t.Fatalf("valid key: %d", w.Code)
	}
	if w := post("way-too-long-key"); w.Code != http.StatusBadRequest {
		t.Fatalf("overlong key: %d", w.Code)
	}
	if w := post("bad key!"); w.Code != http.StatusBadRequest {
		t.Fatalf("illegal characters: %d", w.Code)
	}
}

func TestIdempotencyValidatorMarksReplay(t *testing.T) {
	lookup := func(ctx context.Context, userID, room, key string, now time.Time) (bool, error) {
		return userID == "u1" && room == "general" && key == "k1", nil
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Identity(), IdempotencyValidator(IdempotencyOptions{}, lookup))
	var replay, bypass bool
	r.POST("/rooms/:room/messages", func(c *gin.Context) {
		replay = IsReplay(c)
		bypass = IsRateBypass(c)
		c.Status(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/rooms/general/messages", nil)
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set(HeaderIdempotencyKey, "k1")
	serve(r, req)
	if !replay || !bypass {
		t.Fatalf("replay=%v bypass=%v; want both true", replay, bypass)
	}

	req = httptest.NewRequest(http.MethodPost, "/rooms/general/messages", nil)
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set(HeaderIdempotencyKey, "fresh")
	serve(r, req)
	if replay || bypass {
		t.Fatalf("fresh key marked as replay")
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := newEngine(RequestID(), SecurityHeaders(SecurityOptions{
		EnableHSTS: true,
		NoStore:    true,
	}))

	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	h := w.Header()
	if h.Get("X-Content-Type-Options") != "nosniff" || h.Get("X-Frame-Options") != "DENY" {
		t.Fatalf("baseline headers missing: %+v", h)
	}
	if h.Get("Cache-Control") != "no-store" {
		t.Fatalf("no-store missing")
	}
	if h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS emitted for plain HTTP")
	}
	if !strings.Contains(h.Get("Access-Control-Expose-Headers"), "X-Request-ID") {
		t.Fatalf("request ID not exposed: %q", h.Get("Access-Control-Expose-Headers"))
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w = serve(r, req)
	if !strings.Contains(w.Header().Get("Strict-Transport-Security"), "max-age=") {
		t.Fatalf("HSTS missing behind TLS proxy")
	}
}
