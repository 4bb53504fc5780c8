package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/scenario_manager/internal/events"
	"github.com/Skotchmaster/scenario_manager/internal/httpserver"
	"github.com/Skotchmaster/scenario_manager/internal/metrics"
	"github.com/Skotchmaster/scenario_manager/internal/ratelimit"
	"github.com/Skotchmaster/scenario_manager/internal/service"
	"github.com/Skotchmaster/scenario_manager/pkg/config"
	"github.com/Skotchmaster/scenario_manager/pkg/hash"
	"github.com/Skotchmaster/scenario_manager/pkg/logging"
	loggingmw "github.com/Skotchmaster/scenario_manager/pkg/middleware/logging"
	"github.com/Skotchmaster/scenario_manager/pkg/tokens"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	issuer := &tokens.Issuer{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	}
	if err := issuer.Validate(); err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	users, closeStore, err := openStore(initCtx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("store init error: %v", err)
	}
	defer closeStore()

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
	}

	var limiter *ratelimit.Limiter
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := ratelimit.Open(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Fatalf("redis init error: %v", err)
		}
		limiter = ratelimit.New(client, cfg.LoginRateLimit, cfg.LoginRateWindow)
		defer limiter.Close()
	}

	m := metrics.New()
	svc := service.New(users, hash.Hasher{Cost: cfg.BcryptCost}, issuer, publisher, m)

	e := echo.New()
	e.HideBanner = true
	e.IPExtractor = httpserver.ClientIP(cfg.TrustedProxies)
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(m.Middleware())
	if cfg.CORSOrigin != "" {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     config.CSV(cfg.CORSOrigin),
			AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType},
			AllowCredentials: true,
		}))
	}
	e.Use(echomw.BodyLimit("64K"))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{Svc: svc},
		Issuer:      issuer,
		Refresh:     svc.Refresh,
		Limiter:     limiter,
		Metrics:     m,
		Ready:       users.Ping,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		logger.Info("auth listening", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
