package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/bracket-picks/brackets"
	"github.com/Dosada05/bracket-picks/config"
	"github.com/Dosada05/bracket-picks/db"
	"github.com/Dosada05/bracket-picks/handlers"
	"github.com/Dosada05/bracket-picks/metrics"
	"github.com/Dosada05/bracket-picks/middleware"
	"github.com/Dosada05/bracket-picks/repositories"
	api "github.com/Dosada05/bracket-picks/routes"
	"github.com/Dosada05/bracket-picks/seed"
	"github.com/Dosada05/bracket-picks/services"
	"github.com/Dosada05/bracket-picks/storage"
	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"
)

const (
	dbConnectTimeout = 5 * time.Second
	shutdownTimeout  = 15 * time.Second
)

func main() {
	// Настройка логгера; уровень уточняется после загрузки конфигурации.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	app := &cli.App{
		Name:  "bracket-picks",
		Usage: "tournament bracket prediction tracker",
		Before: func(c *cli.Context) error {
			config.LoadDotEnv()
			return nil
		},
		Action: func(c *cli.Context) error {
			return serve(c.Context, logger, level)
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Action: func(c *cli.Context) error {
					return serve(c.Context, logger, level)
				},
			},
			{
				Name:  "seed",
				Usage: "load users and the first round",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "database-url",
						Usage:   "PostgreSQL connection string",
						EnvVars: []string{"DATABASE_URL"},
					},
					&cli.StringFlag{
						Name:  "file",
						Usage: "YAML seed document (defaults to the built-in demo data)",
					},
					&cli.BoolFlag{
						Name:  "reset",
						Usage: "truncate all tables before seeding",
					},
				},
				Action: func(c *cli.Context) error {
					return runSeed(c.Context, logger, c.String("database-url"), c.String("file"), c.Bool("reset"))
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("application failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func runSeed(ctx context.Context, logger *slog.Logger, dsn, file string, reset bool) error {
	if dsn == "" {
		return errors.New("DATABASE_URL environment variable is not set")
	}

	var (
		doc *seed.Document
		err error
	)
	if file != "" {
		doc, err = seed.LoadFile(file)
	} else {
		doc, err = seed.Default()
	}
	if err != nil {
		return err
	}

	dbConn, err := db.Connect(dsn, dbConnectTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	if err := db.EnsureSchema(ctx, dbConn); err != nil {
		return err
	}

	seeder := seed.NewSeeder(
		db.NewTxManager(dbConn, logger),
		repositories.NewPostgresUserRepository(dbConn),
		repositories.NewPostgresRoundRepository(dbConn),
		repositories.NewPostgresGameRepository(dbConn),
		db.Reset,
		logger,
	)
	_, err = seeder.Seed(ctx, doc, reset)
	return err
}

func serve(ctx context.Context, logger *slog.Logger, level *slog.LevelVar) error {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	level.Set(cfg.LogLevel)
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort), slog.String("log_level", cfg.LogLevel.String()))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	if err := db.EnsureSchema(ctx, dbConn); err != nil {
		return err
	}
	logger.Info("database connection established")

	// Загрузка аватаров (Cloudflare R2) включается только при наличии настроек
	var uploader storage.FileUploader
	if cfg.R2.Enabled() {
		uploader, err = storage.NewR2Uploader(ctx, cfg.R2, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Cloudflare R2 uploader: %w", err)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Warn("R2 is not configured, avatar uploads are disabled")
	}

	// Инициализация WebSocket Hub
	wsHub := brackets.NewHub(logger)
	go wsHub.Run()
	defer wsHub.Stop()

	recorder := metrics.NewPrometheus("bracket_picks")
	txManager := db.NewTxManager(dbConn, logger)

	// Инициализация репозиториев
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	roundRepo := repositories.NewPostgresRoundRepository(dbConn)
	gameRepo := repositories.NewPostgresGameRepository(dbConn)
	pickRepo := repositories.NewPostgresPickRepository(dbConn)

	// Инициализация сервисов
	scoringService := services.NewScoringService(gameRepo, pickRepo, logger)
	roundService := services.NewRoundService(txManager, roundRepo, gameRepo, scoringService, wsHub, recorder, logger)
	pickService := services.NewPickService(txManager, userRepo, roundRepo, gameRepo, pickRepo, wsHub, recorder, logger)
	leaderboardService := services.NewLeaderboardService(userRepo, roundRepo, gameRepo, pickRepo, uploader, logger)
	authService := services.NewAuthService(userRepo)
	userService := services.NewUserService(userRepo, uploader, logger)

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Auth:        handlers.NewAuthHandler(authService, cfg.JWTSecretKey, cfg.JWTTTL),
		Rounds:      handlers.NewRoundHandler(roundService, pickService),
		Admin:       handlers.NewAdminHandler(roundService, pickService),
		Leaderboard: handlers.NewLeaderboardHandler(leaderboardService),
		Users:       handlers.NewUserHandler(userService, leaderboardService),
		WebSocket:   handlers.NewWebSocketHandler(wsHub, cfg.CORSAllowedOrigins, logger),
	}, api.Options{
		JWTSecret:      []byte(cfg.JWTSecretKey),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		LoginLimiter:   middleware.PerMinute(cfg.LoginRatePerMinute),
		Metrics:        recorder.Handler(),
		Logger:         logger,
	})

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			return err
		}
		logger.Info("server shutdown complete")
	}
	return nil
}
