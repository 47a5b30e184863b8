package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/audit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDAssignsAndPropagates(t *testing.T) {
	var meta audit.Meta
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta, _ = audit.RequestMeta(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.0.2.7:53211"
	req.Header.Set("User-Agent", "probe/1.0")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	id := rec.Header().Get("X-Request-Id")
	if id == "" {
		t.Fatal("no request id assigned")
	}
	if meta.RequestID != id {
		t.Fatalf("context request id = %q, header = %q", meta.RequestID, id)
	}
	if meta.IP != "192.0.2.7" {
		t.Fatalf("ip = %q", meta.IP)
	}
	if meta.UserAgent != "probe/1.0" {
		t.Fatalf("user agent = %q", meta.UserAgent)
	}
}

func TestRequestIDHonorsIncoming(t *testing.T) {
	handler := RequestID(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "upstream-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "upstream-42" {
		t.Fatalf("request id = %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/auth/login", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS origin header")
	}
}

func TestMaxBodyBytes(t *testing.T) {
	handler := MaxBodyBytes(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		if _, err := r.Body.Read(buf); err != nil {
			writeError(w, r, http.StatusRequestEntityTooLarge, "too_large", "body too large")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(strings.Repeat("x", 64)))
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestRateLimitRejectsWithRetryAfter(t *testing.T) {
	handler := RateLimit(1, 1)(okHandler())

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request: status %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
	if kind := errorKind(t, second); kind != "rate_limited" {
		t.Fatalf("kind = %q", kind)
	}
}

func TestRateLimitIsPerClientIP(t *testing.T) {
	handler := RateLimit(1, 1)(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("10.0.0.1:40001"); code != http.StatusOK {
		t.Fatalf("client A first request: status %d", code)
	}
	if code := send("10.0.0.1:40002"); code != http.StatusTooManyRequests {
		t.Fatalf("client A second request: status %d, want 429", code)
	}
	// An exhausted bucket for one IP must not affect another.
	if code := send("10.0.0.2:40001"); code != http.StatusOK {
		t.Fatalf("client B: status %d, want 200", code)
	}
}

func TestRateLimitKeysOnForwardedFor(t *testing.T) {
	handler := RateLimit(1, 1)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first forwarded request: status %d", rec.Code)
	}

	// Same first hop from a different proxy shares the bucket.
	req = httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.RemoteAddr = "10.0.0.2:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second forwarded request: status %d, want 429", rec.Code)
	}
}
