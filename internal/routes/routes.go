package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/AnshRaj112/mystery-message-backend/internal/handlers"
	"github.com/AnshRaj112/mystery-message-backend/internal/middleware"
	"github.com/AnshRaj112/mystery-message-backend/pkg/logger"
)

// Options wires the cross-cutting pieces around the handlers. Nil limiters are skipped.
type Options struct {
	Logger         *logger.Logger
	Sessions       middleware.SessionValidator
	AllowedOrigins []string
	AllowedHost    string
	SendLimiter    *middleware.RateLimiter
	AuthLimiter    *middleware.IPLimiter
}

// NewRouter builds the complete HTTP surface.
func NewRouter(h *handlers.Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(middleware.CORS(opts.AllowedOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.HostCheck(opts.AllowedHost))

	h.AllowOrigins(opts.AllowedOrigins)
	r.Get("/health", h.Health)
	SetupRoutes(r, h, opts)
	return r
}

// SetupRoutes registers the API and WebSocket routes on r.
func SetupRoutes(r chi.Router, h *handlers.Handler, opts Options) {
	requireSession := middleware.RequireSession(opts.Sessions)
	authLimit := passthrough
	if opts.AuthLimiter != nil {
		authLimit = opts.AuthLimiter.Middleware("Too many attempts. Please try again later.")
	}
	sendLimit := passthrough
	if opts.SendLimiter != nil {
		sendLimit = opts.SendLimiter.Middleware
	}

	r.Route("/api", func(r chi.Router) {
		// Public auth routes
		r.With(authLimit).Post("/sign-up", h.SignUp)
		r.With(authLimit).Post("/verify-code", h.VerifyCode)
		r.With(authLimit).Post("/sign-in", h.SignIn)
		r.Get("/check-username", h.CheckUsername)

		// Anonymous message intake
		r.With(sendLimit).Post("/send-message", h.SendMessage)

		// Owner routes
		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Post("/sign-out", h.SignOut)
			r.Get("/messages", h.GetMessages)
			r.Get("/accept-messages", h.GetAcceptMessages)
			r.Post("/accept-messages", h.UpdateAcceptMessages)
		})
	})

	r.With(requireSession).Get("/ws/inbox", h.InboxWebSocket)
}

func passthrough(next http.Handler) http.Handler { return next }
