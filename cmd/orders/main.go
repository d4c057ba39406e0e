// Package main запускает HTTP-сервер сервиса заказов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/masatreat/orders-system/internal/config"
	"github.com/masatreat/orders-system/internal/handler"
	"github.com/masatreat/orders-system/internal/keepalive"
	"github.com/masatreat/orders-system/internal/middleware"
	"github.com/masatreat/orders-system/internal/paystack"
	"github.com/masatreat/orders-system/internal/repository"
	"github.com/masatreat/orders-system/internal/service"
	"github.com/masatreat/orders-system/internal/sms"
)

const (
	loginWindow = time.Minute
	loginBurst  = 5
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	gateway := paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey)
	sender := sms.NewSender(cfg.TermiiBaseURL, cfg.TermiiAPIKey, cfg.TermiiSenderID)

	svc := service.NewService(repo, gateway, sender, logger)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	loginLimiter := middleware.NewLoginLimiter(loginWindow, loginBurst)
	h := handler.NewHandler(svc, logger, authMiddleware, loginLimiter)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	pinger := keepalive.NewPinger(cfg.KeepAliveURL, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Самопинг, чтобы хостинг не усыплял инстанс
	g.Go(func() error {
		return pinger.Run(ctx)
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting orders server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
