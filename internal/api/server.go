// Package api implements Boreal's REST surface using the chi router: auth,
// instance info, servers, channels, roles, members, bans, messages,
// avatars, and voice signaling endpoints, plus the /ws gateway mount,
// /health, and /metrics. Every mutating handler that changes state visible
// to other connected clients fans the change out over session.Registry
// using gateway.Event to build the wire frame.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/boreal-chat/boreal/internal/auth"
	"github.com/boreal-chat/boreal/internal/config"
	"github.com/boreal-chat/boreal/internal/database"
	"github.com/boreal-chat/boreal/internal/federation"
	"github.com/boreal-chat/boreal/internal/gateway"
	"github.com/boreal-chat/boreal/internal/media"
	"github.com/boreal-chat/boreal/internal/presence"
	"github.com/boreal-chat/boreal/internal/session"
	"github.com/boreal-chat/boreal/internal/snowflake"
	"github.com/boreal-chat/boreal/internal/store"
	"github.com/boreal-chat/boreal/internal/voice"
)

// Server is the HTTP API server for Boreal. It holds the chi router, the
// store and collaborator registries, and the federation verifier that
// RequireAuth uses to authenticate every mutating request.
type Server struct {
	Router *chi.Mux

	DB       *database.DB
	Config   *config.Config
	Store    *store.Store
	Verifier *federation.Verifier

	// Auth is nil on Community Servers, which never accept local
	// registration or login and instead verify tokens minted by the Auth
	// Hub named in config.IdentityConfig.
	Auth *auth.Service

	Sessions  *session.Registry
	Presence  presence.Registry
	Voice     *voice.SFU
	Media     *media.Store
	Gateway   *gateway.Gateway
	Snowflake *snowflake.Generator

	Version   string
	StartedAt time.Time
	Logger    *slog.Logger

	server *http.Server

	// voiceStates tracks mute/deafen flags for connected voice
	// participants. This is REST-only bookkeeping distinct from the SFU's
	// WebRTC peer state, so it lives here rather than in internal/voice.
	voiceStates *voiceStateTracker

	rateLimiters *rateLimiters
}

// NewServer constructs a Server with all routes and middleware registered.
func NewServer(
	db *database.DB,
	cfg *config.Config,
	st *store.Store,
	verifier *federation.Verifier,
	authSvc *auth.Service,
	sessions *session.Registry,
	pr presence.Registry,
	sfu *voice.SFU,
	mediaStore *media.Store,
	gw *gateway.Gateway,
	gen *snowflake.Generator,
	version string,
	logger *slog.Logger,
) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		DB:        db,
		Config:    cfg,
		Store:     st,
		Verifier:  verifier,
		Auth:      authSvc,
		Sessions:  sessions,
		Presence:  pr,
		Voice:     sfu,
		Media:     mediaStore,
		Gateway:   gw,
		Snowflake: gen,
		Version:      version,
		StartedAt:    time.Now(),
		Logger:       logger,
		voiceStates:  newVoiceStateTracker(),
		rateLimiters: newRateLimiters(),
	}

	s.registerMiddleware()
	s.registerRoutes()

	return s
}

// registerMiddleware adds global middleware to the router. There is no
// CORS layer: the configuration surface carries no origin allowlist, and
// Boreal's REST/gateway clients are expected to be same-origin or to sit
// behind a reverse proxy that handles that concern.
func (s *Server) registerMiddleware() {
	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.RealIP)
	s.Router.Use(slogMiddleware(s.Logger))
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(middleware.Compress(5))
	s.Router.Use(middleware.Timeout(30 * time.Second))
	s.Router.Use(maxBodySize(1 << 20)) // 1MB default body limit
	s.Router.Use(s.rateLimitGlobal())
}

// registerRoutes mounts the REST surface named in spec section 6.
func (s *Server) registerRoutes() {
	s.Router.Get("/health", s.handleHealthCheck)
	s.Router.Get("/health/deep", s.handleDeepHealthCheck)
	s.Router.Get("/metrics", s.handleMetrics)
	s.Router.Get("/ws", s.Gateway.ServeHTTP)

	s.Router.Get("/api/instance/info", s.handleInstanceInfo)
	s.Router.Get("/api/avatars/{userID}/{hash}", s.handleGetAvatar)

	s.Router.Route("/api/auth", func(r chi.Router) {
		r.With(s.rateLimitAuth).Post("/register", s.handleRegister)
		r.With(s.rateLimitAuth).Post("/login", s.handleLogin)
		r.Post("/validate", s.handleValidateToken)
		r.Get("/public-key", s.handlePublicKey)
	})

	s.Router.Route("/api/servers", func(r chi.Router) {
		r.Use(auth.RequireAuth(s.Verifier, s.Logger))

		r.Post("/", s.handleCreateServer)
		r.Get("/", s.handleListServers)
		r.Get("/{serverID}", s.handleGetServer)
		r.Post("/{serverID}/join", s.handleJoinServer)
		r.Post("/{serverID}/leave", s.handleLeaveServer)

		r.Route("/{serverID}/channels", func(r chi.Router) {
			r.Get("/", s.handleListChannels)
			r.Post("/", s.handleCreateChannel)
			r.Delete("/{channelID}", s.handleDeleteChannel)
		})

		r.Route("/{serverID}/roles", func(r chi.Router) {
			r.Get("/", s.handleListRoles)
			r.Post("/", s.handleCreateRole)
			r.Patch("/{roleID}", s.handleUpdateRole)
			r.Delete("/{roleID}", s.handleDeleteRole)
		})

		r.Route("/{serverID}/members", func(r chi.Router) {
			r.Get("/", s.handleListMembers)
			r.Get("/{userID}", s.handleGetMember)
			r.Delete("/{userID}", s.handleRemoveMember)
			r.Put("/{userID}/roles/{roleID}", s.handleAssignRole)
			r.Delete("/{userID}/roles/{roleID}", s.handleUnassignRole)
		})

		r.Route("/{serverID}/bans", func(r chi.Router) {
			r.Get("/", s.handleListBans)
			r.Post("/{userID}", s.handleCreateBan)
			r.Delete("/{userID}", s.handleRemoveBan)
		})
	})

	s.Router.Route("/api/channels/{channelID}/messages", func(r chi.Router) {
		r.Use(auth.RequireAuth(s.Verifier, s.Logger))
		r.With(s.rateLimitMessages).Post("/", s.handleCreateMessage)
		r.Get("/", s.handleListMessages)
		r.Delete("/{messageID}", s.handleDeleteMessage)
	})

	s.Router.Route("/api/users/@me/avatar", func(r chi.Router) {
		r.Use(auth.RequireAuth(s.Verifier, s.Logger))
		r.Put("/", s.handlePutAvatar)
	})

	s.Router.Route("/api/voice/{channelID}", func(r chi.Router) {
		r.Use(auth.RequireAuth(s.Verifier, s.Logger))
		r.Post("/join", s.handleVoiceJoin)
		r.Post("/leave", s.handleVoiceLeave)
		r.Patch("/state", s.handleVoiceState)
		r.Get("/participants", s.handleVoiceParticipants)
	})
}

// Start begins listening for HTTP requests on the configured address.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.Logger.Info("HTTP server starting", slog.String("listen", addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("HTTP server shutting down")
	s.rateLimiters.Close()
	return s.server.Shutdown(ctx)
}

// slogMiddleware returns a chi middleware that logs HTTP requests using slog.
func slogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", r.RemoteAddr),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			}
			if uid := auth.UserIDFromContext(r.Context()); uid != "" {
				attrs = append(attrs, slog.String("user_id", uid))
			}
			logger.LogAttrs(r.Context(), slog.LevelInfo, "http request", attrs...)
		})
	}
}

// maxBodySize limits the request body to the given number of bytes. Skips
// multipart/form-data requests (avatar upload sets its own limit from
// config.MediaConfig.MaxUploadSize).
func maxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ct := r.Header.Get("Content-Type")
			if r.Body != nil && !strings.HasPrefix(ct, "multipart/form-data") {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
