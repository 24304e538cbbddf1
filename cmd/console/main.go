package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/aeon-gateway/internal/console/handler"
	"github.com/xela07ax/aeon-gateway/internal/console/server"
	"github.com/xela07ax/aeon-gateway/internal/console/service"
	"github.com/xela07ax/aeon-gateway/internal/infra"
	"github.com/xela07ax/aeon-gateway/internal/infra/auth"
	"github.com/xela07ax/aeon-gateway/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// 2. Ключи RS256: консоль и подписывает, и проверяет
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("invalid public key", zap.Error(err))
	}
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("invalid private key", zap.Error(err))
	}

	// 3. Инициализация ресурсов
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	repo, err := postgres.NewRepo(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Fatal("postgres pool init failed", zap.Error(err))
	}
	if err := repo.Ping(ctx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	cancel()
	defer repo.Close()

	auditRepo := postgres.NewAuditRepo(cfg.Database.URL)

	// 4. Инициализация слоев (Dependency Injection)
	validator := auth.NewConsoleValidator(publicKey)

	agentService := service.NewAgentService(rdb, repo, validator, logger)
	authService := service.NewAuthService(repo, privateKey, cfg.Auth.TokenTTL)
	policyService := service.NewPolicyService(repo, rdb)
	auditService := service.NewAuditService(auditRepo)

	srvHandler := server.NewConsoleServer(
		cfg,
		logger,
		agentService,
		handler.NewAuthHandler(authService, logger),
		handler.NewAgentHandler(agentService, logger),
		handler.NewPolicyHandler(policyService),
		handler.NewApprovalHandler(agentService),
		handler.NewDashboardHandler(agentService),
		handler.NewAuditHandler(auditService),
	)

	// 5. Запуск сервера
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.ConsolePort),
		Handler:      srvHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("console API stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
