package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotatrix/internal/annotatrix"
)

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time { return c.now }

func newClock() *stubClock {
	return &stubClock{now: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}
}

// roundTrip saves sess and loads it back through a new request.
func roundTrip(t *testing.T, save, load *Codec, sess *annotatrix.Session) *annotatrix.Session {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, save.Save(rec, sess))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return load.Load(req)
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec("secret", false, newClock())
	sess := &annotatrix.Session{
		TreebankID: "abc",
		UserID:     "user-1",
		Username:   "octocat",
		OAuthState: "state",
	}

	got := roundTrip(t, codec, codec, sess)
	assert.Equal(t, sess, got)
}

func TestCodec_CookieAttributes(t *testing.T) {
	codec := NewCodec("secret", true, newClock())
	rec := httptest.NewRecorder()
	require.NoError(t, codec.Save(rec, &annotatrix.Session{TreebankID: "abc"}))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, CookieName, c.Name)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

func TestCodec_EmptySessionClearsCookie(t *testing.T) {
	codec := NewCodec("secret", false, newClock())
	rec := httptest.NewRecorder()
	require.NoError(t, codec.Save(rec, &annotatrix.Session{}))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "", cookies[0].Value)
	assert.True(t, cookies[0].MaxAge < 0)
}

func TestCodec_LoadRejectsBadCookies(t *testing.T) {
	clock := newClock()
	codec := NewCodec("secret", false, clock)

	t.Run("missing cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		assert.Equal(t, &annotatrix.Session{}, codec.Load(req))
	})

	t.Run("garbage", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: "not-a-jwt"})
		assert.Equal(t, &annotatrix.Session{}, codec.Load(req))
	})

	t.Run("signed with another secret", func(t *testing.T) {
		other := NewCodec("other-secret", false, clock)
		got := roundTrip(t, other, codec, &annotatrix.Session{UserID: "user-1"})
		assert.False(t, got.Authenticated())
	})

	t.Run("unexpected algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, claims{UserID: "user-1"})
		raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: raw})
		assert.False(t, codec.Load(req).Authenticated())
	})

	t.Run("expired", func(t *testing.T) {
		issuer := NewCodec("secret", false, &stubClock{now: clock.now.Add(-DefaultMaxAge - time.Hour)})
		got := roundTrip(t, issuer, codec, &annotatrix.Session{UserID: "user-1"})
		assert.False(t, got.Authenticated())
	})
}
