package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func Test_fail_500_LogsAndBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// capture logs from LoggerFrom(c)
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	// simulate RequestID + request-scoped logger
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-500")
		c.Set("logger", &logger)
		c.Next()
	})

	r.GET("/boom", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.RequestID != "rid-500" || resp.Code != ErrCodeInternal || resp.Message != "kaboom" {
		t.Fatalf("unexpected body: %+v", resp)
	}

	// ensure something was logged at error level
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error log, got: %s", buf.String())
	}
}

func Test_Fail_4xx_DoesNotLog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-404")
		c.Set("logger", &logger)
		c.Next()
	})

	r.GET("/missing", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "nope")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}

	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json 404: %v", err)
	}
	if er.RequestID != "rid-404" || er.Code != ErrCodeNotFound || er.Message != "nope" {
		t.Fatalf("unexpected 404 body: %+v", er)
	}
	if buf.Len() != 0 {
		t.Fatalf("4xx should not log server errors, got: %s", buf.String())
	}
}

func Test_ok_WritesStatusAndBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ok", func(c *gin.Context) {
		ok(c, http.StatusCreated, gin.H{"ok": true, "n": 1})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d", w.Code)
	}
	var okBody map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &okBody); err != nil {
		t.Fatalf("json 201: %v", err)
	}
	if okBody["ok"] != true || int(okBody["n"].(float64)) != 1 {
		t.Fatalf("unexpected ok body: %#v", okBody)
	}
}
