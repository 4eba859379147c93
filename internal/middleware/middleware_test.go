package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/qjdesk/complaint-desk/internal/apperr"
	"github.com/qjdesk/complaint-desk/internal/authz"
	"github.com/qjdesk/complaint-desk/internal/config"
	"github.com/qjdesk/complaint-desk/internal/utils"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newIssuer(t *testing.T, accessTTL time.Duration) *utils.TokenIssuer {
	t.Helper()
	iss, err := utils.NewTokenIssuer("access-secret-for-tests", "refresh-secret-for-tests", accessTTL, time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	return iss
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	s, _ := body["error"].(string)
	return s
}

// protected builds an echo instance with one route behind JWTAuth and
// RequirePermission.
func protected(iss *utils.TokenIssuer, c authz.Capability) *echo.Echo {
	e := echo.New()
	e.GET("/v1/complaints", func(c echo.Context) error {
		id, _ := UserID(c)
		return c.JSON(http.StatusOK, echo.Map{"user_id": id, "role": Role(c), "username": Username(c)})
	}, JWTAuth(iss, discard()), RequirePermission(c, discard()))
	return e
}

func do(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthMissingAndInvalid(t *testing.T) {
	e := protected(newIssuer(t, time.Minute), authz.ComplaintsRead)

	rec := do(e, http.MethodGet, "/v1/complaints", "")
	if rec.Code != http.StatusUnauthorized || errorBody(t, rec) != MsgAuthRequired {
		t.Fatalf("missing token: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(e, http.MethodGet, "/v1/complaints", "garbage")
	if rec.Code != http.StatusUnauthorized || errorBody(t, rec) != MsgTokenInvalid {
		t.Fatalf("invalid token: %d %s", rec.Code, rec.Body.String())
	}
}

func TestJWTAuthExpiredHasDistinctMessage(t *testing.T) {
	iss := newIssuer(t, time.Nanosecond)
	tok, err := iss.NewAccessToken(1, "ana", "supervisor")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(1100 * time.Millisecond) // exp has second precision
	rec := do(protected(iss, authz.ComplaintsRead), http.MethodGet, "/v1/complaints", tok.Token)
	if rec.Code != http.StatusUnauthorized || errorBody(t, rec) != MsgTokenExpired {
		t.Fatalf("expired token: %d %s", rec.Code, rec.Body.String())
	}
}

func TestJWTAuthRejectsRefreshToken(t *testing.T) {
	iss := newIssuer(t, time.Minute)
	ref, _ := iss.NewRefreshToken(1)
	rec := do(protected(iss, authz.ComplaintsRead), http.MethodGet, "/v1/complaints", ref.Raw)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token accepted as access token: %d", rec.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	iss := newIssuer(t, time.Minute)
	standard, _ := iss.NewAccessToken(3, "luis", "standard")
	supervisor, _ := iss.NewAccessToken(2, "ana", "supervisor")
	e := protected(iss, authz.ComplaintsResolve)

	rec := do(e, http.MethodGet, "/v1/complaints", standard.Token)
	if rec.Code != http.StatusForbidden || errorBody(t, rec) != MsgForbidden {
		t.Fatalf("standard: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(e, http.MethodGet, "/v1/complaints", supervisor.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("supervisor: %d %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["user_id"].(float64) != 2 || body["role"] != "supervisor" || body["username"] != "ana" {
		t.Fatalf("identity not propagated: %v", body)
	}
}

func TestRequirePermissionWithoutIdentityIs401(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		RequirePermission(authz.ComplaintsRead, discard()))
	rec := do(e, http.MethodGet, "/x", "")
	if rec.Code != http.StatusUnauthorized || errorBody(t, rec) != MsgAuthRequired {
		t.Fatalf("expected 401 %q, got %d %s", MsgAuthRequired, rec.Code, rec.Body.String())
	}
}

func TestDenyUsesErrorKindStatus(t *testing.T) {
	cases := []struct {
		err  *apperr.Error
		code int
	}{
		{apperr.Forbidden(MsgForbidden), http.StatusForbidden},
		{apperr.Unauthenticated(MsgTokenExpired), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		if err := deny(c, tc.err); err != nil {
			t.Fatalf("deny: %v", err)
		}
		if rec.Code != tc.code || errorBody(t, rec) != tc.err.Msg {
			t.Fatalf("%s: got %d %s", tc.err.Msg, rec.Code, rec.Body.String())
		}
	}
}

func limitedEcho(cfg config.RateLimitConfig, rdb *redis.Client) *echo.Echo {
	e := echo.New()
	e.IPExtractor = echo.ExtractIPDirect()
	e.POST("/v1/auth/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		NewTokenBucket(cfg, rdb, discard()))
	return e
}

func loginReq(ip, ua string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = ip + ":41234"
	req.Header.Set("User-Agent", ua)
	return req
}

func TestTokenBucketIgnoresSpoofedForwardingHeaders(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Minute, TTL: time.Hour, KeyStrategy: "ip", Prefix: "rl:login"}
	e := limitedEcho(cfg, rdb)
	extract, err := ClientIP(nil)
	if err != nil {
		t.Fatalf("client ip: %v", err)
	}
	e.IPExtractor = extract

	for i, spoof := range []string{"1.1.1.1", "2.2.2.2"} {
		req := loginReq("203.0.113.9", "ua")
		req.Header.Set(echo.HeaderXForwardedFor, spoof)
		req.Header.Set(echo.HeaderXRealIP, spoof)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		want := http.StatusOK
		if i == 1 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("request %d with forged %s: expected %d, got %d", i+1, spoof, want, rec.Code)
		}
	}
}

func TestClientIPTrustsOnlyConfiguredProxies(t *testing.T) {
	extract, err := ClientIP([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("client ip: %v", err)
	}
	viaProxy := httptest.NewRequest(http.MethodGet, "/", nil)
	viaProxy.RemoteAddr = "10.1.2.3:5000"
	viaProxy.Header.Set(echo.HeaderXForwardedFor, "1.1.1.1, 203.0.113.9")
	if got := extract(viaProxy); got != "203.0.113.9" {
		t.Fatalf("expected client behind trusted proxy, got %q", got)
	}

	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.RemoteAddr = "198.51.100.1:5000"
	direct.Header.Set(echo.HeaderXForwardedFor, "203.0.113.9")
	if got := extract(direct); got != "198.51.100.1" {
		t.Fatalf("untrusted peer must not pick its address, got %q", got)
	}

	private := httptest.NewRequest(http.MethodGet, "/", nil)
	private.RemoteAddr = "192.168.0.10:5000"
	private.Header.Set(echo.HeaderXForwardedFor, "203.0.113.9")
	if got := extract(private); got != "192.168.0.10" {
		t.Fatalf("private ranges are not implicitly trusted, got %q", got)
	}

	if _, err := ClientIP([]string{"not-a-cidr"}); err == nil {
		t.Fatal("expected error for malformed CIDR")
	}
}

func TestTokenBucketBlocksAfterCapacity(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute, TTL: time.Hour, KeyStrategy: "ip", Prefix: "rl:login"}
	e := limitedEcho(cfg, rdb)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, loginReq("203.0.113.9", "ua"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i+1, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, loginReq("203.0.113.9", "ua"))
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("third request: %d headers=%v", rec.Code, rec.Header())
	}
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, loginReq("203.0.113.10", "ua"))
	if rec.Code != http.StatusOK {
		t.Fatal("other addresses have their own bucket")
	}
}

func TestTokenBucketFingerprintSeparatesClients(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Minute, TTL: time.Hour, KeyStrategy: "fingerprint", Prefix: "rl:submit"}
	e := limitedEcho(cfg, rdb)

	codes := map[string]int{}
	for _, ua := range []string{"kiosk-a", "kiosk-b", "kiosk-a"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, loginReq("198.51.100.1", ua))
		codes[ua] = rec.Code
	}
	if codes["kiosk-b"] != http.StatusOK || codes["kiosk-a"] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestTokenBucketFailsOpen(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Minute, TTL: time.Hour, KeyStrategy: "ip", Prefix: "rl:login"}
	e := limitedEcho(cfg, rdb)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, loginReq("203.0.113.9", "ua"))
		if rec.Code != http.StatusOK {
			t.Fatalf("redis outage must not block requests, got %d", rec.Code)
		}
	}
}

func TestRedisCacheHitAndMiss(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, KeyStrategy: "route_query", Prefix: "qj:cache", MaxBodyBytes: 1 << 16}
	calls := 0
	e := echo.New()
	e.GET("/v1/complaint-types", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"types": []string{"delay"}})
	}, NewRedisCache(cfg, rdb, discard()))

	first := do(e, http.MethodGet, "/v1/complaint-types", "")
	second := do(e, http.MethodGet, "/v1/complaint-types", "")
	if first.Header().Get("X-Cache") != "MISS" || second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("cache headers: %q %q", first.Header().Get("X-Cache"), second.Header().Get("X-Cache"))
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
	if first.Body.String() != second.Body.String() || second.Header().Get(echo.HeaderContentType) == "" {
		t.Fatalf("cached response differs: %q vs %q", first.Body.String(), second.Body.String())
	}
}

func TestRedisCacheSkipsErrors(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "qj:cache"}
	calls := 0
	e := echo.New()
	e.GET("/flaky", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}, NewRedisCache(cfg, rdb, discard()))
	do(e, http.MethodGet, "/flaky", "")
	do(e, http.MethodGet, "/flaky", "")
	if calls != 2 {
		t.Fatal("error responses must not be cached")
	}
}

type fakeEnforcer struct {
	mu    sync.Mutex
	users []uint64
	err   error
}

func (f *fakeEnforcer) Enforce(_ context.Context, uid uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, uid)
	return 0, f.err
}

func TestEnforceSessionsRunsForAuthenticatedRequestsOnly(t *testing.T) {
	iss := newIssuer(t, time.Minute)
	guard := &fakeEnforcer{err: errors.New("db down")}
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	e.GET("/auth", ok, JWTAuth(iss, discard()), EnforceSessions(guard, time.Second, discard()))
	e.GET("/anon", ok, EnforceSessions(guard, time.Second, discard()))

	tok, _ := iss.NewAccessToken(7, "ana", "standard")
	if rec := do(e, http.MethodGet, "/auth", tok.Token); rec.Code != http.StatusNoContent {
		t.Fatalf("guard failure changed the response: %d", rec.Code)
	}
	do(e, http.MethodGet, "/anon", "")
	if len(guard.users) != 1 || guard.users[0] != 7 {
		t.Fatalf("guard calls %v", guard.users)
	}
}

func TestRequestIDIsGenerated(t *testing.T) {
	e := echo.New()
	e.Use(RequestID(), RequestLogger(discard()))
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	rec := do(e, http.MethodGet, "/healthz", "")
	if len(rec.Header().Get(echo.HeaderXRequestID)) != 36 {
		t.Fatalf("expected uuid request id, got %q", rec.Header().Get(echo.HeaderXRequestID))
	}
}
