/*
Package handler provides the HTTP handlers and routing setup for the QuickChat server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"quickchat/internal/pkg/auth/jwt"
	"quickchat/internal/pkg/limiter"
	"quickchat/internal/pkg/logx"
	"quickchat/internal/pkg/pow"
	"quickchat/internal/pkg/resp"
)

const (
	GuestRate    = 0.05
	GuestBurst   = 2
	AuthRate     = 0.2
	AuthBurst    = 5
	ConnectRate  = 1
	ConnectBurst = 10
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It initializes IP-based rate limiters, configures CORS, and applies global and per-route middleware.
func Router(deps *AppDeps) http.Handler {
	guestLimiter := limiter.NewIPRateLimiter(rate.Limit(GuestRate), GuestBurst)
	authLimiter := limiter.NewIPRateLimiter(rate.Limit(AuthRate), AuthBurst)
	connectLimiter := limiter.NewIPRateLimiter(rate.Limit(ConnectRate), ConnectBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			if origin == "" {
				return true
			}
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", pow.TokenHeaderKey},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	health := HandleHealth(deps)
	r.Get("/health", health)

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.Get("/health", health)

		api.Route("/guest", func(guest chi.Router) {
			guest.Get("/challenge", HandleGetChallenge(deps))
			guest.Post("/verify", HandleVerifyChallenge(deps))
			guest.With(guestLimiter.Middleware).Post("/", HandleCreateGuest(deps))
		})

		api.Route("/auth", func(auth chi.Router) {
			auth.Use(authLimiter.Middleware)
			auth.Post("/register", HandleRegister(deps))
			auth.Post("/login", HandleLogin(deps))
		})

		api.Get("/users", HandleListUsers(deps))
		api.Get("/messages", HandleListMessages(deps))

		api.With(jwt.RequireIdentity).Patch("/profile", HandleUpdateProfile(deps))

		api.Route("/user/avatar", func(avatar chi.Router) {
			avatar.With(jwt.RequireIdentity).Post("/presign", HandlePresignAvatarURL(deps))
			avatar.Get("/", HandleAvatarRedirect(deps))
		})
	})

	r.Get("/ws", HandleWebSocket(deps.Hub, wsUpgrader, connectLimiter))

	return r
}

// HandleHealth reports liveness and the current number of online users.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"status":      "ok",
			"service":     logx.ServiceName,
			"onlineUsers": len(deps.Hub.Presence().OnlineUserIDs()),
		})
	}
}
