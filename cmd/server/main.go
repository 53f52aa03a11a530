package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/evalauth/internal/config"
	"github.com/iliyamo/evalauth/internal/database"
	"github.com/iliyamo/evalauth/internal/email"
	"github.com/iliyamo/evalauth/internal/handler"
	"github.com/iliyamo/evalauth/internal/logger"
	"github.com/iliyamo/evalauth/internal/middleware"
	"github.com/iliyamo/evalauth/internal/queue"
	"github.com/iliyamo/evalauth/internal/repository"
	"github.com/iliyamo/evalauth/internal/router"
	"github.com/iliyamo/evalauth/internal/service"
	"github.com/iliyamo/evalauth/internal/utils"
)

func main() {
	_ = godotenv.Load() // .env is optional

	cfg, err := config.Load()
	if err != nil {
		logger.New(0).Fatal("Config: failed to load", "error", err)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		log.Fatal("Database: failed to connect", "error", err)
	}
	defer db.Close()
	if cfg.DB.Migrate {
		if err := database.Migrate(db); err != nil {
			log.Fatal("Database: migration failed", "error", err)
		}
	}

	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Warn("Redis: unreachable at startup, revocation checks fail open until it recovers",
			"addr", cfg.Redis.Address(), "error", err)
	}
	defer rdb.Close()

	codec, err := utils.NewTokenCodec(cfg.JWT.Issuer,
		utils.ProfileConfig{Secret: cfg.JWT.AccessSecret, TTL: cfg.JWT.AccessTTL},
		utils.ProfileConfig{Secret: cfg.JWT.RefreshSecret, TTL: cfg.JWT.RefreshTTL},
	)
	if err != nil {
		log.Fatal("Tokens: invalid configuration", "error", err)
	}

	accounts := repository.NewAccountRepo(db)
	revocations := repository.NewRevocationRepo(rdb, cfg.Redis.KeyPrefix, cfg.Redis.DefaultTTL, cfg.Redis.Timeout, log)
	hasher := utils.NewPasswordHasher(cfg.Security.BcryptCost)

	sender := email.NewSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, email.Config{
		From:            cfg.Email.From,
		LinkBaseURL:     cfg.Email.LinkBaseURL,
		VerificationTTL: cfg.Security.VerificationTTL,
		ResetTTL:        cfg.Security.ResetTTL,
	})
	var mailer service.Mailer = sender
	if cfg.Email.Transport == "queue" {
		publisher := queue.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, log)
		defer publisher.Close()
		mailer = publisher

		consumer := queue.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, sender, cfg.Email.Timeout, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Email consumer: stopped", "error", err)
			}
		}()
	}

	singleUse := service.NewSingleUseTokenIssuer(accounts, cfg.Security.StoreTimeout, log)
	creds := service.NewCredentialService(accounts, hasher, codec, revocations, singleUse, mailer, service.CredentialConfig{
		AdminName:          cfg.Admin.Name,
		AdminEmail:         cfg.Admin.Email,
		AdminPassword:      cfg.Admin.Password,
		VerificationTTL:    cfg.Security.VerificationTTL,
		ResetTTL:           cfg.Security.ResetTTL,
		StoreTimeout:       cfg.Security.StoreTimeout,
		MailTimeout:        cfg.Email.Timeout,
		MinPasswordEntropy: cfg.Security.PasswordMinEntropy,
	}, log)
	refresh := service.NewRefreshRotationService(accounts, hasher, codec, cfg.Security.StoreTimeout, log)
	authorizer := service.NewAuthorizer(codec, revocations, log)
	admin := service.NewAdminService(accounts, cfg.Security.StoreTimeout, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	router.RegisterRoutes(e, router.Deps{
		Auth:       handler.NewAuthHandler(creds, refresh),
		Admin:      handler.NewAdminHandler(admin),
		Authorizer: authorizer,
		RateLimit:  middleware.NewTokenBucket(cfg.RateLimit, rdb, log),
		Health: []handler.HealthCheck{
			{Name: "database", Critical: true, Ping: db.PingContext},
			{Name: "redis", Ping: revocations.Ping},
		},
	})

	addr := ":" + cfg.Port
	go func() {
		log.Info("Server: listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server: stopped unexpectedly", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server: graceful shutdown failed", "error", err)
	}
	log.Info("Server: stopped")
}
