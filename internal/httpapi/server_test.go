package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/tokenguard"
	"github.com/MrEthical07/tokenguard/tokenstore"
	"github.com/MrEthical07/tokenguard/userstore"
)

const (
	testEmail    = "officer@example.com"
	testPassword = "correct-password-123"
)

type recordedAlert struct {
	message string
	err     error
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []recordedAlert
}

func (r *recordingAlerts) CaptureMessage(_ context.Context, msg string, _ map[string]string, _ tokenguard.AlertLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, recordedAlert{message: msg})
	return nil
}

func (r *recordingAlerts) CaptureException(_ context.Context, err error, _ map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, recordedAlert{err: err})
	return nil
}

func (r *recordingAlerts) snapshot() []recordedAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedAlert(nil), r.alerts...)
}

// flakyStore fails every Find once broken is set.
type flakyStore struct {
	*tokenstore.MemoryStore
	broken atomic.Bool
}

func (f *flakyStore) Find(ctx context.Context, userID, deviceID, secretHash string) (*tokenstore.Record, error) {
	if f.broken.Load() {
		return nil, tokenstore.ErrStoreUnavailable
	}
	return f.MemoryStore.Find(ctx, userID, deviceID, secretHash)
}

type harness struct {
	handler http.Handler
	alerts  *recordingAlerts
	store   *flakyStore
}

func newHarness(t *testing.T, csrfEnabled bool, opts Options) *harness {
	t.Helper()

	cfg := tokenguard.DefaultConfig()
	cfg.JWT.PrivateKey = bytes.Repeat([]byte{'s'}, 32)
	cfg.Encryption.Key = bytes.Repeat([]byte{7}, 32)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.CSRF.Enabled = csrfEnabled
	cfg.Metrics.Enabled = true

	users := userstore.NewMemory()
	store := &flakyStore{MemoryStore: tokenstore.NewMemoryStore()}
	alerts := &recordingAlerts{}

	engine, err := tokenguard.New().
		WithConfig(cfg).
		WithStore(store).
		WithUserProvider(users).
		WithAlertSink(alerts).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	hash, err := engine.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := users.Create(context.Background(), testEmail, hash, "investigator"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("tokenguard_login_success_total 1\n"))
	})
	srv := NewServer(engine, metrics, nil, opts)
	return &harness{handler: srv.Router(), alerts: alerts, store: store}
}

type response struct {
	code    int
	body    map[string]string
	cookies []*http.Cookie
}

func (h *harness) do(t *testing.T, method, path string, body any, mutate func(*http.Request)) response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	out := response{code: rec.Code, cookies: rec.Result().Cookies()}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out.body); err != nil {
			t.Fatalf("decode %s %s body %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return out
}

func (h *harness) login(t *testing.T) response {
	t.Helper()
	res := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": testEmail, "password": testPassword}, nil)
	if res.code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d %v", res.code, res.body)
	}
	return res
}

func refreshBody(token string) map[string]string {
	return map[string]string{"refreshToken": token}
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRefreshRotationAndReuse(t *testing.T) {
	h := newHarness(t, false, Options{})

	first := h.login(t)
	if first.body["deviceId"] == "" || first.body["refreshToken"] == "" {
		t.Fatalf("unexpected login body %v", first.body)
	}
	if c := cookieNamed(first.cookies, "refresh_token"); c == nil || !c.HttpOnly {
		t.Fatalf("expected HttpOnly refresh cookie, got %+v", c)
	}

	second := h.do(t, http.MethodPost, "/auth/refresh", refreshBody(first.body["refreshToken"]), nil)
	if second.code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d %v", second.code, second.body)
	}
	if second.body["accessToken"] == "" || second.body["refreshToken"] == first.body["refreshToken"] {
		t.Fatalf("expected a new pair, got %v", second.body)
	}

	replay := h.do(t, http.MethodPost, "/auth/refresh", refreshBody(first.body["refreshToken"]), nil)
	if replay.code != http.StatusUnauthorized || replay.body["error"] != "Token compromised, please login again" {
		t.Fatalf("replay: got %d %v", replay.code, replay.body)
	}
	alerts := h.alerts.snapshot()
	if len(alerts) != 1 || alerts[0].message != "Refresh token reuse detected" {
		t.Fatalf("expected one reuse alert, got %+v", alerts)
	}

	revoked := h.do(t, http.MethodPost, "/auth/refresh", refreshBody(second.body["refreshToken"]), nil)
	if revoked.code != http.StatusUnauthorized || revoked.body["error"] != "Refresh token not found or revoked" {
		t.Fatalf("revoked lineage: got %d %v", revoked.code, revoked.body)
	}
}

func TestRefreshRequestErrors(t *testing.T) {
	h := newHarness(t, false, Options{})

	missing := h.do(t, http.MethodPost, "/auth/refresh", map[string]string{}, nil)
	if missing.code != http.StatusBadRequest || missing.body["error"] != "Refresh token is required" {
		t.Fatalf("missing: got %d %v", missing.code, missing.body)
	}

	garbage := h.do(t, http.MethodPost, "/auth/refresh", refreshBody("garbage"), nil)
	if garbage.code != http.StatusUnauthorized || garbage.body["error"] != "Invalid refresh token" {
		t.Fatalf("garbage: got %d %v", garbage.code, garbage.body)
	}

	method := h.do(t, http.MethodGet, "/auth/refresh", nil, nil)
	if method.code != http.StatusMethodNotAllowed || method.body["error"] != "Method not allowed" {
		t.Fatalf("method: got %d %v", method.code, method.body)
	}
}

func TestRefreshFromCookie(t *testing.T) {
	h := newHarness(t, false, Options{})
	first := h.login(t)
	cookie := cookieNamed(first.cookies, "refresh_token")

	res := h.do(t, http.MethodPost, "/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	})
	if res.code != http.StatusOK {
		t.Fatalf("cookie refresh: expected 200, got %d %v", res.code, res.body)
	}
}

func TestUniformRefreshErrors(t *testing.T) {
	h := newHarness(t, false, Options{UniformRefreshErrors: true})
	first := h.login(t)

	if res := h.do(t, http.MethodPost, "/auth/refresh", refreshBody(first.body["refreshToken"]), nil); res.code != http.StatusOK {
		t.Fatalf("refresh: %d", res.code)
	}
	replay := h.do(t, http.MethodPost, "/auth/refresh", refreshBody(first.body["refreshToken"]), nil)
	if replay.code != http.StatusUnauthorized || replay.body["error"] != "Invalid refresh token" {
		t.Fatalf("uniform replay: got %d %v", replay.code, replay.body)
	}
	if len(h.alerts.snapshot()) != 1 {
		t.Fatal("reuse must still raise an alert")
	}
}

func TestRefreshInternalErrorIsCaptured(t *testing.T) {
	h := newHarness(t, false, Options{})
	first := h.login(t)

	h.store.broken.Store(true)
	res := h.do(t, http.MethodPost, "/auth/refresh", refreshBody(first.body["refreshToken"]), nil)
	if res.code != http.StatusInternalServerError || res.body["error"] != "Internal server error" {
		t.Fatalf("expected 500, got %d %v", res.code, res.body)
	}
	alerts := h.alerts.snapshot()
	if len(alerts) != 1 || !errors.Is(alerts[0].err, tokenstore.ErrStoreUnavailable) {
		t.Fatalf("expected captured store error, got %+v", alerts)
	}
}

func TestLoginErrors(t *testing.T) {
	h := newHarness(t, false, Options{})

	bad := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": testEmail, "password": "wrong-password-000"}, nil)
	if bad.code != http.StatusUnauthorized || bad.body["error"] != "Invalid credentials" {
		t.Fatalf("bad password: got %d %v", bad.code, bad.body)
	}
	unknown := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "nobody@example.com", "password": testPassword}, nil)
	if unknown.code != http.StatusUnauthorized || unknown.body["error"] != "Invalid credentials" {
		t.Fatalf("unknown user: got %d %v", unknown.code, unknown.body)
	}
	empty := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": testEmail}, nil)
	if empty.code != http.StatusBadRequest {
		t.Fatalf("missing password: got %d", empty.code)
	}
}

func TestMeAndLogout(t *testing.T) {
	h := newHarness(t, false, Options{})
	first := h.login(t)

	me := h.do(t, http.MethodGet, "/auth/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+first.body["accessToken"])
	})
	if me.code != http.StatusOK || me.body["email"] != testEmail || me.body["role"] != "investigator" {
		t.Fatalf("me: got %d %v", me.code, me.body)
	}
	if anon := h.do(t, http.MethodGet, "/auth/me", nil, nil); anon.code != http.StatusUnauthorized {
		t.Fatalf("anonymous me: got %d", anon.code)
	}

	out := h.do(t, http.MethodPost, "/auth/logout", refreshBody(first.body["refreshToken"]), nil)
	if out.code != http.StatusNoContent {
		t.Fatalf("logout: got %d %v", out.code, out.body)
	}
	if c := cookieNamed(out.cookies, "refresh_token"); c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected cleared cookie, got %+v", c)
	}

	after := h.do(t, http.MethodPost, "/auth/refresh", refreshBody(first.body["refreshToken"]), nil)
	if after.code != http.StatusUnauthorized || after.body["error"] != "Refresh token not found or revoked" {
		t.Fatalf("refresh after logout: got %d %v", after.code, after.body)
	}
}

func TestCSRFProtectedRefresh(t *testing.T) {
	h := newHarness(t, true, Options{})
	first := h.login(t)

	issued := h.do(t, http.MethodGet, "/auth/csrf", nil, nil)
	if issued.code != http.StatusOK || len(issued.body["csrfToken"]) != 64 {
		t.Fatalf("csrf issue: got %d %v", issued.code, issued.body)
	}
	cookie := cookieNamed(issued.cookies, "csrf_token")
	if cookie == nil || !cookie.HttpOnly || cookie.SameSite != http.SameSiteStrictMode || cookie.MaxAge != 3600 {
		t.Fatalf("unexpected csrf cookie %+v", cookie)
	}

	blocked := h.do(t, http.MethodPost, "/auth/refresh", refreshBody(first.body["refreshToken"]), func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	})
	if blocked.code != http.StatusForbidden || blocked.body["error"] != "CSRF token missing" {
		t.Fatalf("missing header: got %d %v", blocked.code, blocked.body)
	}

	wrong := h.do(t, http.MethodPost, "/auth/refresh", refreshBody(first.body["refreshToken"]), func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
		r.Header.Set("X-CSRF-Token", strings.Repeat("0", 64))
	})
	if wrong.code != http.StatusForbidden || wrong.body["error"] != "CSRF token invalid" {
		t.Fatalf("wrong header: got %d %v", wrong.code, wrong.body)
	}

	ok := h.do(t, http.MethodPost, "/auth/refresh", refreshBody(first.body["refreshToken"]), func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
		r.Header.Set("X-CSRF-Token", issued.body["csrfToken"])
	})
	if ok.code != http.StatusOK {
		t.Fatalf("valid csrf: got %d %v", ok.code, ok.body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, false, Options{})

	if res := h.do(t, http.MethodGet, "/healthz", nil, nil); res.code != http.StatusOK || res.body["status"] != "ok" {
		t.Fatalf("healthz: got %d %v", res.code, res.body)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "tokenguard_login_success_total") {
		t.Fatalf("metrics: got %d %q", rec.Code, rec.Body.String())
	}
}

func TestClientIP(t *testing.T) {
	s := &Server{opts: Options{TrustProxy: true}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := s.clientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected forwarded ip, got %q", got)
	}

	s.opts.TrustProxy = false
	if got := s.clientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected remote ip, got %q", got)
	}
}

