package main

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/rythmix/auth-service/internal/auth"
	"github.com/rythmix/auth-service/internal/config"
	"github.com/rythmix/auth-service/internal/database"
	"github.com/rythmix/auth-service/internal/handler"
	"github.com/rythmix/auth-service/internal/mailer"
	"github.com/rythmix/auth-service/internal/queue"
	"github.com/rythmix/auth-service/internal/repository"
	"github.com/rythmix/auth-service/internal/router"
	"github.com/rythmix/auth-service/internal/token"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if cfg.Env == "dev" {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable; rate limiting and token revocation disabled")
	}

	issuer := token.NewJWTIssuer(cfg.JWTSecret, time.Duration(cfg.AccessTTLMin)*time.Minute, rdb)

	// Registration enqueues verification emails; the consumer drains the
	// queue and talks to the mail provider.
	publisher := queue.NewPublisher(cfg.AMQPURL, logger)
	sender := mailer.NewHTTPMailer(cfg.MailAPIBaseURL, cfg.MailAPIKey, cfg.MailFrom)
	go func() {
		if err := queue.StartMailConsumer(cfg.AMQPURL, sender, logger); err != nil {
			logger.Error("mail consumer stopped", zap.Error(err))
		}
	}()

	svc := auth.NewService(auth.Deps{
		Users:           repository.NewUserRepo(db),
		RefreshTokens:   repository.NewRefreshTokenRepo(db),
		Verifications:   repository.NewVerificationTokenRepo(db),
		Issuer:          issuer,
		Hasher:          auth.BcryptHasher{Cost: cfg.BcryptCost},
		Mailer:          publisher,
		FrontendURL:     cfg.FrontendBaseURL,
		RefreshTTL:      time.Duration(cfg.RefreshTTLDays) * 24 * time.Hour,
		VerificationTTL: time.Duration(cfg.VerifyTTLHours) * time.Hour,
		Log:             logger,
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(svc), cfg, rdb, issuer)

	addr := ":" + cfg.Port
	logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
