package http

import (
	"encoding/base64"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
	"github.com/ecobalance/dashboard/internal/dashboard/service"
	"github.com/ecobalance/dashboard/pkg/slogx"
)

const (
	loginPath     = "/login"
	mfaVerifyPath = "/mfa_verify"
	dashboardPath = "/dashboard/"
)

// AuthHandler serves the login, registration, MFA and logout pages.
type AuthHandler struct {
	Auth     *service.AuthService
	Sessions *service.SessionService
	Cookies  *SessionCookies
}

// currentSession resolves the cookie to a live session, or nil.
func (h *AuthHandler) currentSession(r *http.Request) *domain.Session {
	sid, ok := h.Cookies.SessionID(r)
	if !ok {
		return nil
	}

	sess, err := h.Sessions.Get(r.Context(), sid)
	if err != nil {
		if !errors.Is(err, service.ErrSessionNotFound) {
			slogx.FromContext(r.Context()).Error("failed to load session", slog.Any("error", err))
		}
		return nil
	}
	return &sess
}

// HandleIndex sends authenticated users to the dashboard and everyone else
// to the login page.
func (h *AuthHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if h.currentSession(r).State() == domain.StateAuthenticated {
		http.Redirect(w, r, dashboardPath, http.StatusFound)
		return
	}
	http.Redirect(w, r, loginPath, http.StatusFound)
}

func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, "login.html", pageData{Title: "Sign in"})
}

// HandleLogin checks the password and, on success, opens a PASSWORD_OK
// session and moves on to the MFA step.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		render(w, r, http.StatusBadRequest, "login.html", pageData{Title: "Sign in", Warning: "Malformed form submission."})
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")

	if !h.Auth.VerifyPassword(ctx, username, password) {
		log.Info("login rejected", slog.String("username", username))
		render(w, r, http.StatusUnauthorized, "login.html", pageData{
			Title:    "Sign in",
			Warning:  "Invalid username or password.",
			Username: username,
		})
		return
	}

	// A fresh login replaces whatever session the browser had.
	if prev := h.currentSession(r); prev != nil {
		_ = h.Sessions.End(ctx, prev.ID)
	}

	sess, err := h.Sessions.Start(ctx, username)
	if err != nil {
		log.Error("failed to start session", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if err := h.Cookies.Set(w, sess); err != nil {
		log.Error("failed to sign session cookie", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, mfaVerifyPath, http.StatusSeeOther)
}

func (h *AuthHandler) HandleMFAPage(w http.ResponseWriter, r *http.Request) {
	sess := h.currentSession(r)
	switch sess.State() {
	case domain.StateAnonymous:
		http.Redirect(w, r, loginPath, http.StatusFound)
	case domain.StateAuthenticated:
		http.Redirect(w, r, dashboardPath, http.StatusFound)
	default:
		render(w, r, http.StatusOK, "mfa_verify.html", pageData{Title: "Two-factor check", Username: sess.Username})
	}
}

// HandleMFAVerify completes the second factor. Exhausting the attempt budget
// drops the session and sends the user back to the password step.
func (h *AuthHandler) HandleMFAVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	sess := h.currentSession(r)
	if sess.State() == domain.StateAnonymous {
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		render(w, r, http.StatusBadRequest, "mfa_verify.html", pageData{Title: "Two-factor check", Username: sess.Username, Warning: "Malformed form submission."})
		return
	}
	code := strings.TrimSpace(r.PostForm.Get("code"))

	_, err := h.Sessions.CompleteMFA(ctx, sess.ID, code)
	switch {
	case err == nil:
		http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
	case errors.Is(err, service.ErrInvalidMFACode):
		render(w, r, http.StatusUnauthorized, "mfa_verify.html", pageData{
			Title:    "Two-factor check",
			Username: sess.Username,
			Warning:  "Invalid code. Try again.",
		})
	case errors.Is(err, service.ErrTooManyAttempts):
		h.Cookies.Clear(w)
		render(w, r, http.StatusUnauthorized, "login.html", pageData{
			Title:   "Sign in",
			Warning: "Too many invalid codes. Sign in again.",
		})
	case errors.Is(err, service.ErrSessionNotFound):
		h.Cookies.Clear(w)
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
	default:
		log.Error("mfa verification failed", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *AuthHandler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, "register.html", pageData{Title: "Create account"})
}

// HandleRegister creates the account and shows the authenticator enrollment
// (QR code and secret) once. The secret is never shown again.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		render(w, r, http.StatusBadRequest, "register.html", pageData{Title: "Create account", Warning: "Malformed form submission."})
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")

	if username == "" || password == "" {
		render(w, r, http.StatusBadRequest, "register.html", pageData{
			Title:    "Create account",
			Warning:  "Username and password are required.",
			Username: username,
		})
		return
	}

	enrollment, err := h.Auth.NewEnrollment(username)
	if err != nil {
		log.Error("failed to create MFA enrollment", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	err = h.Auth.Register(ctx, username, password, enrollment.Secret)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrDuplicateUser):
		render(w, r, http.StatusConflict, "register.html", pageData{
			Title:    "Create account",
			Warning:  "Username already exists.",
			Username: username,
		})
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		render(w, r, http.StatusBadRequest, "register.html", pageData{
			Title:    "Create account",
			Warning:  "Username and password are required.",
			Username: username,
		})
		return
	default:
		log.Error("registration failed", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	render(w, r, http.StatusOK, "mfa_setup.html", pageData{
		Title:     "Set up your authenticator",
		Username:  username,
		Secret:    enrollment.Secret,
		QRDataURI: template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(enrollment.QRCode)),
	})
}

// HandleLogout ends the session (if any) and returns to the login page.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sid, ok := h.Cookies.SessionID(r); ok {
		if err := h.Sessions.End(r.Context(), sid); err != nil {
			slogx.FromContext(r.Context()).Error("failed to end session", slog.Any("error", err))
		}
	}
	h.Cookies.Clear(w)
	http.Redirect(w, r, loginPath, http.StatusFound)
}
