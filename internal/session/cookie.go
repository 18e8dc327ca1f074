// Package session persists annotatrix.Session in a signed browser cookie.
package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"annotatrix/internal/annotatrix"
)

// CookieName is the name of the session cookie.
const CookieName = "annotatrix_session"

// DefaultMaxAge is how long a browser keeps its session.
const DefaultMaxAge = 30 * 24 * time.Hour

type claims struct {
	TreebankID string `json:"tid,omitempty"`
	UserID     string `json:"uid,omitempty"`
	Username   string `json:"usr,omitempty"`
	OAuthState string `json:"ost,omitempty"`
	jwt.RegisteredClaims
}

// Codec reads and writes sessions as HS256-signed JWT cookies.
type Codec struct {
	secret []byte
	secure bool
	maxAge time.Duration
	now    func() time.Time
}

// NewCodec creates a Codec signing with secret. secure marks the cookie
// HTTPS-only.
func NewCodec(secret string, secure bool, clock annotatrix.Clock) *Codec {
	return &Codec{
		secret: []byte(secret),
		secure: secure,
		maxAge: DefaultMaxAge,
		now:    clock.Now,
	}
}

// Load returns the request's session. A missing, expired or tampered
// cookie yields an empty session.
func (c *Codec) Load(r *http.Request) *annotatrix.Session {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return &annotatrix.Session{}
	}

	var cl claims
	token, err := jwt.ParseWithClaims(cookie.Value, &cl, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now))
	if err != nil || !token.Valid {
		return &annotatrix.Session{}
	}

	return &annotatrix.Session{
		TreebankID: cl.TreebankID,
		UserID:     cl.UserID,
		Username:   cl.Username,
		OAuthState: cl.OAuthState,
	}
}

// Save writes sess to the response. An empty session removes the cookie.
func (c *Codec) Save(w http.ResponseWriter, sess *annotatrix.Session) error {
	if sess == nil || *sess == (annotatrix.Session{}) {
		http.SetCookie(w, c.cookie("", -1))
		return nil
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		TreebankID: sess.TreebankID,
		UserID:     sess.UserID,
		Username:   sess.Username,
		OAuthState: sess.OAuthState,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}

	http.SetCookie(w, c.cookie(signed, int(c.maxAge/time.Second)))
	return nil
}

func (c *Codec) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		// Lax so the cookie survives the top-level redirect back from GitHub.
		SameSite: http.SameSiteLaxMode,
	}
}
