package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ecobalance/dashboard/internal/dashboard/service"
	"github.com/ecobalance/dashboard/internal/dashboard/store"
	"github.com/ecobalance/dashboard/pkg/httpx"
	"github.com/ecobalance/dashboard/pkg/slogx"

	_ "github.com/ecobalance/dashboard/api/dashboard" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	AuthService    *service.AuthService
	SessionService *service.SessionService
	IngestService  *service.IngestService
	Cookies        *SessionCookies

	DisplayLocation *time.Location
	RefreshInterval time.Duration
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerDashboard()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			EcoBalance Dashboard API
//	@version		0.1.0
//	@description	JSON endpoints behind the EcoBalance waste monitoring dashboard.
//	@description	The dashboard endpoints require a browser session that has passed both the password and the TOTP check.
//
//	@BasePath		/
//	@schemes		http https
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Auth:     r.AuthService,
		Sessions: r.SessionService,
		Cookies:  r.Cookies,
	}

	lenient := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, httpx.RateLimitByIP(httpx.LenientLimit))
	}

	r.Mux.Handle("GET /{$}", lenient(h.HandleIndex))
	r.Mux.Handle("GET /login", lenient(h.HandleLoginPage))
	r.Mux.Handle("GET /register", lenient(h.HandleRegisterPage))
	r.Mux.Handle("GET /mfa_verify", lenient(h.HandleMFAPage))
	r.Mux.Handle("GET /logout", lenient(h.HandleLogout))

	// Password guessing is limited per IP and username together.
	r.Mux.Handle("POST /login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "username"),
		),
	)

	// MFA codes are also capped per session by the attempt counter.
	r.Mux.Handle("POST /mfa_verify",
		httpx.Chain(http.HandlerFunc(h.HandleMFAVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerDashboard() {
	h := &DashboardHandler{
		Ingest:          r.IngestService,
		Readings:        r.store.Readings(),
		Location:        r.DisplayLocation,
		RefreshInterval: r.RefreshInterval,
	}

	byIP := httpx.RateLimitByIP(httpx.LenientLimit)
	// Data endpoints are polled by every open tab, so each user gets their
	// own bucket instead of sharing one per address.
	byUser := httpx.RateLimitByUser(httpx.LenientLimit)

	dash := http.NewServeMux()
	dash.Handle("GET /dashboard/{$}", httpx.Chain(http.HandlerFunc(h.HandlePage), byIP))
	dash.Handle("GET "+readingsPath, httpx.Chain(http.HandlerFunc(h.HandleReadings), byUser))
	dash.Handle("GET "+readingsPath+"/{entry_id}", httpx.Chain(http.HandlerFunc(h.HandleStoredReading), byUser))
	dash.Handle("GET "+assetsPrefix, httpx.Chain(assetsHandler(), byIP))

	// The gate runs first so the per-user limiter sees the username.
	r.Mux.Handle("/dashboard/", httpx.Chain(dash, SessionGate(r.SessionService, r.Cookies)))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
