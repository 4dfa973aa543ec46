package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
	"github.com/ecobalance/dashboard/internal/dashboard/service"
	"github.com/ecobalance/dashboard/pkg/httpx"
	"github.com/ecobalance/dashboard/pkg/slogx"
)

const assetsPrefix = "/dashboard/assets/"

// SessionGate admits a request only when its session has both passed the
// password check and completed MFA. Static assets are public. Everyone else
// is redirected to the login page.
func SessionGate(sessions *service.SessionService, cookies *SessionCookies) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, assetsPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			sid, ok := cookies.SessionID(r)
			if !ok {
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}

			sess, err := sessions.Get(r.Context(), sid)
			if err != nil {
				if !errors.Is(err, service.ErrSessionNotFound) {
					slogx.FromContext(r.Context()).Error("session lookup failed", slog.Any("error", err))
				}
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}

			if sess.State() != domain.StateAuthenticated {
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r.WithContext(httpx.WithUsername(r.Context(), sess.Username)))
		})
	}
}
