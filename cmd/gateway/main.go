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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xela07ax/aeon-gateway/internal/audit"
	"github.com/xela07ax/aeon-gateway/internal/dispatch"
	"github.com/xela07ax/aeon-gateway/internal/engine"
	"github.com/xela07ax/aeon-gateway/internal/infra"
	"github.com/xela07ax/aeon-gateway/internal/manifest"
	"github.com/xela07ax/aeon-gateway/internal/policy"
	"github.com/xela07ax/aeon-gateway/internal/registry"
	"github.com/xela07ax/aeon-gateway/internal/repository/postgres"
	"github.com/xela07ax/aeon-gateway/internal/risk"
	"github.com/xela07ax/aeon-gateway/internal/session"
	"github.com/xela07ax/aeon-gateway/internal/telemetry"
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

	// Контекст для управления жизненным циклом фоновых горутин.
	// При SIGTERM cancel() остановит слушателей и sweeper.
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
	repo, err := postgres.NewRepo(pingCtx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Fatal("postgres pool init failed", zap.Error(err))
	}
	if err := repo.Ping(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()
	defer repo.Close()

	// Отдельное соединение для аудита: write-ahead путь не должен
	// конкурировать за коннекты с принятием решений
	auditStorage := postgres.NewAuditRepo(cfg.Database.URL)
	recorder := audit.NewRecorder(auditStorage,
		cfg.Governance.AuditBufferSize,
		cfg.Governance.AuditBatchSize,
		cfg.Governance.AuditFlushInterval,
		logger)
	recorder.Start()
	defer recorder.Stop()

	// 3. Control Plane: конституция, реестр, отзывы
	policyStore := policy.NewStore(repo, logger)
	if err := policyStore.Refresh(appCtx); err != nil {
		// Без снапшота шлюз жив, но отвечает default-deny до первой публикации
		logger.Warn("no policy snapshot at startup, running default-deny", zap.Error(err))
	}
	go engine.StartPolicyListener(appCtx, rdb, policyStore, logger)

	agents := registry.NewRegistry(repo, logger)
	revocations := registry.NewRevocationManager(rdb, agents.RevokedDIDs, logger)
	if err := revocations.Init(appCtx); err != nil {
		logger.Fatal("failed to warm up revocation cache", zap.Error(err))
	}
	go revocations.StartListener(appCtx)

	replay := registry.NewReplayGuard(rdb, cfg.Governance.SessionWindow, logger)

	// 4. Decision Plane: скоринг и манифесты
	model := risk.NewModelClient(cfg.Governance.ModelURL, cfg.Governance.ModelTimeout)
	scorer := risk.NewScorer(model, cfg.Governance.ModelTimeout, logger)
	manifests := manifest.NewBuilder(cfg.Governance.ManifestTTL)

	// 5. Телеметрия и метрики
	signals := telemetry.NewBroadcaster(cfg.Governance.TelemetryBuffer, rdb, infra.RedisChanTelemetry, logger)

	promReg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(promReg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	// 6. Execution Layer: диспетчеризация исполнителю + надежность
	var executor dispatch.ExecutionProvider
	var wrapper *dispatch.ReliabilityWrapper
	if cfg.Governance.ExecutorAddr != "" {
		conn, err := grpc.NewClient(cfg.Governance.ExecutorAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			logger.Fatal("failed to connect to executor", zap.Error(err))
		}
		defer conn.Close()
		wrapper = dispatch.NewReliabilityWrapper(dispatch.NewGRPCDispatcher(conn))
		executor = wrapper
	} else {
		logger.Warn("executor_addr is empty, dispatching to mock executor")
		wrapper = dispatch.NewReliabilityWrapper(&dispatch.MockExecutor{})
		executor = wrapper
	}

	// Транслируем состояние предохранителя в Prometheus
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-appCtx.Done():
				return
			case <-ticker.C:
				state := 0.0
				if wrapper.BreakerState() == gobreaker.StateOpen {
					state = 1.0
				}
				metrics.CircuitBreakerState.WithLabelValues("executor").Set(state)
			}
		}
	}()

	// 7. Сессии, эскалации, ядро
	var core *engine.GatewayCore
	sessions := session.NewTracker(logger, func(rec session.Record) {
		core.OnAuthorizationExpired(rec)
	})
	go sessions.StartSweeper(appCtx, cfg.Governance.SweepInterval)

	escalations := engine.NewEscalationManager(repo, rdb, sessions, recorder, logger)
	go escalations.StartDecisionListener(appCtx)

	core = engine.NewGatewayCore(engine.CoreDeps{
		Agents:      agents,
		Revocations: revocations,
		Replay:      replay,
		Policies:    policyStore,
		Scorer:      scorer,
		Manifests:   manifests,
		Sessions:    sessions,
		Escalations: escalations,
		Auditor:     recorder,
		Signals:     signals,
		Executor:    executor,
		Metrics:     metrics,
		Logger:      logger,

		BlockThreshold:     cfg.Governance.BlockThreshold,
		EscalateHigh:       cfg.Governance.EscalateHigh,
		PendingDecisionTTL: cfg.Governance.DecisionTTL,
	})

	// 8. HTTP Server. Цепочка: Trace-ID -> Revocation префильтр -> A2G
	endpoint := http.HandlerFunc(core.HandleA2G)
	protected := engine.TracingMiddleware(
		engine.RevocationMiddleware(revocations, logger)(
			endpoint,
		),
	)

	mux := http.NewServeMux()
	mux.Handle("/a2g", protected)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("gateway started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("gateway stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	cancel() // Останавливаем слушателей и sweeper до дренажа аудита
	logger.Info("gateway exited properly")
}
