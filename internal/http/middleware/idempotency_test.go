package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func idemRouter(lookup IdempotencyLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("userID", "u1"); c.Next() })
	r.Use(IdempotencyValidator(IdempotencyOptions{Scope: "share_pass"}, lookup))
	r.POST("/p", func(c *gin.Context) {
		key, _ := GetIdempotencyKey(c)
		c.JSON(http.StatusOK, gin.H{"key": key, "replay": IsReplay(c)})
	})
	return r
}

func TestIdempotencyValidator_NoHeaderIsNoOp(t *testing.T) {
	r := idemRouter(nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/p", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"key":""`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestIdempotencyValidator_RejectsBadKey(t *testing.T) {
	r := idemRouter(nil)

	for _, bad := range []string{"has space", "emoji-🙂", strings.Repeat("k", 201)} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/p", nil)
		req.Header.Set(HeaderIdempotencyKey, bad)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("key %q: status = %d, want 400", bad, w.Code)
		}
		if !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Errorf("key %q: body = %s", bad, w.Body.String())
		}
	}
}

func TestIdempotencyValidator_StashesValidKey(t *testing.T) {
	r := idemRouter(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/p", nil)
	req.Header.Set(HeaderIdempotencyKey, "retry-abc.1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"key":"retry-abc.1"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"replay":false`) {
		t.Fatalf("unexpected replay flag: %s", w.Body.String())
	}
}

func TestIdempotencyValidator_MarksReplayAndScope(t *testing.T) {
	var gotScope, gotUser, gotKey string
	lookup := func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
		gotUser, gotScope, gotKey = userID, scope, key
		return true, nil
	}
	r := idemRouter(lookup)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/p", nil)
	req.Header.Set(HeaderIdempotencyKey, "retry-1")
	r.ServeHTTP(w, req)

	if gotUser != "u1" || gotScope != "share_pass" || gotKey != "retry-1" {
		t.Fatalf("lookup args = %q %q %q", gotUser, gotScope, gotKey)
	}
	if !strings.Contains(w.Body.String(), `"replay":true`) {
		t.Fatalf("replay not marked: %s", w.Body.String())
	}
}

func TestIdempotencyValidator_LookupErrorDoesNotBlock(t *testing.T) {
	lookup := func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
		return false, context.DeadlineExceeded
	}
	r := idemRouter(lookup)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/p", nil)
	req.Header.Set(HeaderIdempotencyKey, "retry-1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, lookup failure must not block", w.Code)
	}
}
