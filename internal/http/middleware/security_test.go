package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func secRouter(opt SecurityOptions, pre gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	r := secRouter(SecurityOptions{}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	h := w.Header()
	if h.Get("X-Content-Type-Options") != "nosniff" ||
		h.Get("X-Frame-Options") != "DENY" ||
		h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %+v", h)
	}
	if h.Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS emitted without opt-in")
	}
}

func TestSecurityHeaders_NoStoreAndPolicy(t *testing.T) {
	r := secRouter(SecurityOptions{NoStore: true, EnablePolicy: true}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	h := w.Header()
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" {
		t.Fatalf("no-store headers missing: %+v", h)
	}
	if !strings.Contains(h.Get("Permissions-Policy"), "geolocation=()") {
		t.Fatalf("policy header missing: %q", h.Get("Permissions-Policy"))
	}
}

func TestSecurityHeaders_HSTSOnlyOverHTTPS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}
	r := secRouter(opt, nil)

	// Plain HTTP: no HSTS.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS emitted over plain HTTP")
	}

	// Proxied HTTPS: HSTS with configured max-age.
	w2 := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	r.ServeHTTP(w2, req)
	got := w2.Header().Get("Strict-Transport-Security")
	if !strings.Contains(got, "max-age=86400") || !strings.Contains(got, "includeSubDomains") {
		t.Fatalf("unexpected HSTS header: %q", got)
	}
}

func TestSecurityHeaders_ExposesRequestID(t *testing.T) {
	pre := func(c *gin.Context) { c.Header("X-Request-ID", "rid-1"); c.Next() }
	r := secRouter(SecurityOptions{}, pre)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if got := w.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, "X-Request-ID") {
		t.Fatalf("X-Request-ID not exposed: %q", got)
	}
}
