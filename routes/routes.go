package routes

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/bracket-picks/handlers"
	"github.com/Dosada05/bracket-picks/middleware"
	"github.com/Dosada05/bracket-picks/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Options struct {
	JWTSecret      []byte
	AllowedOrigins []string
	LoginLimiter   *middleware.IPRateLimiter
	Metrics        http.Handler
	Logger         *slog.Logger
}

type Handlers struct {
	Auth        *handlers.AuthHandler
	Rounds      *handlers.RoundHandler
	Admin       *handlers.AdminHandler
	Leaderboard *handlers.LeaderboardHandler
	Users       *handlers.UserHandler
	WebSocket   *handlers.WebSocketHandler
}

func SetupRoutes(router chi.Router, h Handlers, opts Options) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestLogger(opts.Logger))
	router.Use(chiMiddleware.Recoverer)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: len(opts.AllowedOrigins) > 0,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(opts.JWTSecret, opts.Logger)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics)
	}

	// Публичные маршруты
	router.Group(func(r chi.Router) {
		if opts.LoginLimiter != nil {
			r.Use(middleware.RateLimit(opts.LoginLimiter))
		}
		r.Post("/auth/login", h.Auth.Login)
	})
	router.Get("/leaderboard", h.Leaderboard.Leaderboard)
	router.Get("/stats", h.Leaderboard.Stats)
	router.With(middleware.OptionalAuthenticate(opts.JWTSecret)).Get("/bracket", h.Leaderboard.Bracket)
	router.Get("/ws/bracket", h.WebSocket.ServeWs)

	// Для авторизованных пользователей
	router.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Route("/rounds", func(r chi.Router) {
			r.Get("/", h.Rounds.ListRounds)
			r.Get("/current", h.Rounds.CurrentRound)
			r.Get("/{roundID}/picks/me", h.Rounds.MyPicks)
			r.Post("/{roundID}/picks", h.Rounds.SubmitPicks)
		})

		r.Route("/users/{username}", func(r chi.Router) {
			r.Get("/", h.Users.GetProfile)
			r.Put("/", h.Users.UpdateProfile)
			r.Get("/picks", h.Users.GetUserPicks)
			r.Post("/avatar", h.Users.UploadAvatar)
		})
	})

	// Только для администраторов
	router.Route("/admin", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.Authorize(models.RoleAdmin))

		r.Route("/rounds/{roundID}", func(r chi.Router) {
			r.Patch("/", h.Admin.UpdateRound)
			r.Post("/picks", h.Admin.SubmitPicksForUser)
			r.Post("/advance", h.Admin.AdvanceRound)
			r.Put("/winners", h.Admin.RecordWinners)
			r.Get("/pick-status", h.Admin.PickStatus)
		})
		r.Route("/games/{gameID}", func(r chi.Router) {
			r.Put("/winner", h.Admin.RecordWinner)
			r.Put("/teams", h.Admin.SetGameTeams)
			r.Get("/distribution", h.Leaderboard.GameDistribution)
		})
	})
}
