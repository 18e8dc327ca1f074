package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logEntry struct {
	Msg    string `json:"msg"`
	Level  string `json:"level"`
	URL    string `json:"url"`
	Agent  string `json:"agent"`
	Status int    `json:"status"`
	IP     string `json:"ip"`
	Method string `json:"method"`
}

func TestLogWith(t *testing.T) {
	b := bytes.Buffer{}
	l := slog.New(slog.NewJSONHandler(&b, &slog.HandlerOptions{}))
	m := LogWith(l)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest("GET", "/load/abc?x=1", nil)
	req.RemoteAddr = "1.2.3.4"
	req.Header.Set("User-Agent", "test-runner")

	rec := httptest.NewRecorder()
	m(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)

	var e logEntry
	require.NoError(t, json.Unmarshal(b.Bytes(), &e))

	assert.Equal(t, "request received", e.Msg)
	assert.Equal(t, "INFO", e.Level)
	assert.Equal(t, "/load/abc?x=1", e.URL)
	assert.Equal(t, "test-runner", e.Agent)
	assert.Equal(t, 418, e.Status)
	assert.Equal(t, "1.2.3.4", e.IP)
	assert.Equal(t, "GET", e.Method)
}

func TestLogWith_ImplicitOK(t *testing.T) {
	b := bytes.Buffer{}
	l := slog.New(slog.NewJSONHandler(&b, &slog.HandlerOptions{}))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	LogWith(l)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	var e logEntry
	require.NoError(t, json.Unmarshal(b.Bytes(), &e))
	assert.Equal(t, http.StatusOK, e.Status)
}

func TestRecover(t *testing.T) {
	b := bytes.Buffer{}
	l := slog.New(slog.NewJSONHandler(&b, &slog.HandlerOptions{}))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	Recover(l)(next).ServeHTTP(rec, httptest.NewRequest("POST", "/annotatrix/save", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, b.String(), "internal server error")
	assert.Contains(t, b.String(), "boom")
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestRateLimiter(t *testing.T) {
	t.Run("disabled when rate is zero", func(t *testing.T) {
		rl := NewRateLimiter(0, 5)
		assert.Nil(t, rl)
		for i := 0; i < 100; i++ {
			assert.True(t, rl.Allow("client"))
		}
	})

	t.Run("burst then refill", func(t *testing.T) {
		now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
		rl := NewRateLimiter(60, 2)
		rl.now = func() time.Time { return now }

		assert.True(t, rl.Allow("a"))
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		assert.True(t, rl.Allow("b"), "clients have separate buckets")

		now = now.Add(time.Second)
		assert.True(t, rl.Allow("a"))
	})

	t.Run("drops idle clients when full", func(t *testing.T) {
		now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
		rl := NewRateLimiter(60, 1)
		rl.now = func() time.Time { return now }

		rl.Allow("old")
		now = now.Add(time.Hour)
		rl.mu.Lock()
		rl.cleanupLocked(now)
		_, kept := rl.limiters["old"]
		rl.mu.Unlock()
		assert.False(t, kept)
	})
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest("POST", "/annotatrix/upload", nil)
	r.RemoteAddr = "10.0.0.7:53211"
	assert.Equal(t, "10.0.0.7", clientKey(r))

	r.RemoteAddr = "unix"
	assert.Equal(t, "unix", clientKey(r))
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/annotatrix/abc", safeNext("/annotatrix/abc"))
	assert.Equal(t, "/", safeNext(""))
	assert.Equal(t, "/", safeNext("https://evil.example"))
	assert.Equal(t, "/", safeNext("//evil.example"))
	assert.Equal(t, "/", safeNext(`/\evil.example`))
}
