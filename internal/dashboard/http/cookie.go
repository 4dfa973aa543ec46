package http

import (
	"net/http"
	"time"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
	"github.com/ecobalance/dashboard/pkg/jwtx"
)

const sessionCookieName = "ecobalance_session"

// SessionCookies writes and reads the signed session reference held by the
// browser.
type SessionCookies struct {
	Signer *jwtx.SessionSigner
	Secure bool
}

func (c *SessionCookies) Set(w http.ResponseWriter, sess domain.Session) error {
	token, err := c.Signer.Sign(sess.ID, sess.ExpiresAt)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (c *SessionCookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionID returns the session id from a valid cookie. Tampered, foreign
// or expired cookies read as absent.
func (c *SessionCookies) SessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	sid, err := c.Signer.Verify(cookie.Value)
	if err != nil {
		return "", false
	}
	return sid, true
}
