package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/aeon-gateway/internal/console/handler"
	"github.com/xela07ax/aeon-gateway/internal/console/service"
	"github.com/xela07ax/aeon-gateway/internal/infra"
	"github.com/xela07ax/aeon-gateway/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// AgentService встраивает ConsoleValidator и потому
	// закрывает интерфейс auth.TokenValidator (RS256)
	authService *service.AgentService

	// Обработчики бизнес-доменов
	authHandler     *handler.AuthHandler      // /auth/token
	agentHandler    *handler.AgentHandler     // /v1/agents
	policyHandler   *handler.PolicyHandler    // /v1/policies
	approvalHandler *handler.ApprovalHandler  // /v1/approvals (HITL)
	dashHandler     *handler.DashboardHandler // /api/v1/dashboard
	auditHandler    *handler.AuditHandler     // /v1/audit (Trail)
}

// NewConsoleServer инициализирует сервер админки со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	agentService *service.AgentService,
	authH *handler.AuthHandler,
	agentH *handler.AgentHandler,
	policyH *handler.PolicyHandler,
	approvalH *handler.ApprovalHandler,
	dashH *handler.DashboardHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		cfg:             cfg,
		authService:     agentService,
		authHandler:     authH,
		agentHandler:    agentH,
		policyHandler:   policyH,
		approvalHandler: approvalH,
		dashHandler:     dashH,
		auditHandler:    auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		r.Use(auth.NewMiddleware(s.authService, s.logger))

		// Dashboard & Stats
		r.Get("/api/v1/dashboard/stats", s.dashHandler.GetStats)

		// Реестр агентов (Revoke = kill-switch)
		r.Route("/v1/agents", func(r chi.Router) {
			r.Get("/", s.agentHandler.List) // Список всех агентов
			r.Route("/{did}", func(r chi.Router) {
				r.Get("/", s.agentHandler.Get) // Карточка агента
				r.With(auth.RequireScope("agents.revoke")).
					Post("/revoke", s.agentHandler.Revoke) // Необратимый отзыв
			})
		})

		// Конституция (версионированные снапшоты политик)
		r.Route("/v1/policies", func(r chi.Router) {
			r.Get("/active", s.policyHandler.GetActive) // Действующая версия
			r.Get("/{version}", s.policyHandler.GetVersion)
			r.With(auth.RequireScope("policies.publish")).
				Post("/", s.policyHandler.Publish) // Новая версия + Redis Publish
		})

		// Human-in-the-loop (Approvals)
		r.Route("/v1/approvals", func(r chi.Router) {
			r.Get("/", s.approvalHandler.List) // Очередь запросов на проверку
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.approvalHandler.GetDetails)
				r.With(auth.RequireScope("approvals.decide")).
					Post("/decide", s.approvalHandler.Decide) // Approve/Reject + Redis Publish
			})
		})

		// Аудит-трейл (Observability)
		r.Get("/v1/audit", s.auditHandler.GetLogs)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
