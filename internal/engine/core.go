package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/aeon-gateway/internal/audit"
	"github.com/xela07ax/aeon-gateway/internal/dispatch"
	"github.com/xela07ax/aeon-gateway/internal/domain"
	"github.com/xela07ax/aeon-gateway/internal/manifest"
	"github.com/xela07ax/aeon-gateway/internal/policy"
	"github.com/xela07ax/aeon-gateway/internal/protocol"
	"github.com/xela07ax/aeon-gateway/internal/registry"
	"github.com/xela07ax/aeon-gateway/internal/risk"
	"github.com/xela07ax/aeon-gateway/internal/session"
	"github.com/xela07ax/aeon-gateway/internal/telemetry"
)

const maxRequestBody = 1 << 20 // 1 MiB на JSON-RPC конверт

// ReplayGuard отмечает intent_id в окне сессии и отвечает,
// видит ли он его впервые. Боевая реализация — registry.ReplayGuard.
type ReplayGuard interface {
	FirstSeen(ctx context.Context, agentDID, intentID string) bool
}

// GatewayCore — пайплайн принятия решений:
// инжест -> политики -> риск -> вердикт -> аудит -> диспетчеризация.
type GatewayCore struct {
	agents      *registry.Registry
	revocations *registry.RevocationManager
	replay      ReplayGuard
	policies    *policy.Store
	scorer      *risk.Scorer
	manifests   *manifest.Builder
	sessions    *session.Tracker
	escalations *EscalationManager
	auditor     *audit.Recorder
	signals     *telemetry.Broadcaster
	executor    dispatch.ExecutionProvider
	metrics     *Metrics
	logger      *zap.Logger

	blockThreshold float64
	escalateHigh   bool
	decisionTTL    time.Duration
}

type CoreDeps struct {
	Agents      *registry.Registry
	Revocations *registry.RevocationManager
	Replay      ReplayGuard
	Policies    *policy.Store
	Scorer      *risk.Scorer
	Manifests   *manifest.Builder
	Sessions    *session.Tracker
	Escalations *EscalationManager
	Auditor     *audit.Recorder
	Signals     *telemetry.Broadcaster
	Executor    dispatch.ExecutionProvider
	Metrics     *Metrics
	Logger      *zap.Logger

	BlockThreshold float64
	EscalateHigh   bool

	// Сколько ждать решения оператора по эскалации, прежде чем
	// sweeper закроет её как брошенную.
	PendingDecisionTTL time.Duration
}

func NewGatewayCore(d CoreDeps) *GatewayCore {
	if d.BlockThreshold <= 0 {
		d.BlockThreshold = 0.8
	}
	if d.PendingDecisionTTL <= 0 {
		d.PendingDecisionTTL = 10 * time.Minute
	}
	return &GatewayCore{
		agents:         d.Agents,
		revocations:    d.Revocations,
		replay:         d.Replay,
		policies:       d.Policies,
		scorer:         d.Scorer,
		manifests:      d.Manifests,
		sessions:       d.Sessions,
		escalations:    d.Escalations,
		auditor:        d.Auditor,
		signals:        d.Signals,
		executor:       d.Executor,
		metrics:        d.Metrics,
		logger:         d.Logger,
		blockThreshold: d.BlockThreshold,
		escalateHigh:   d.EscalateHigh,
		decisionTTL:    d.PendingDecisionTTL,
	}
}

// ProcessIntent проводит интент через весь конвейер и выпускает вердикт.
func (g *GatewayCore) ProcessIntent(ctx context.Context, p *protocol.IntentParams) (*protocol.VerdictResult, *protocol.Error) {
	start := time.Now()
	traceID := extractTraceID(ctx)

	if perr := p.Validate(); perr != nil {
		return nil, perr
	}

	// 1. Идентичность: агент должен существовать и не быть отозванным.
	// Сначала RAM-кэш отзывов, затем реестр.
	if g.revocations.IsRevoked(p.AgentDID) {
		g.metrics.ErrorTotal.WithLabelValues("revoked").Inc()
		return nil, protocol.NewError(protocol.CodePolicyViolation, "agent identity is revoked")
	}
	agent, err := g.agents.Resolve(ctx, p.AgentDID)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrAgentRevoked):
			g.metrics.ErrorTotal.WithLabelValues("revoked").Inc()
			return nil, protocol.NewError(protocol.CodePolicyViolation, "agent identity is revoked")
		case errors.Is(err, registry.ErrUnknownAgent):
			return nil, protocol.NewError(protocol.CodeRegistrationFailed, "agent %s is not registered", p.AgentDID)
		default:
			g.logger.Error("registry lookup failed", zap.Error(err))
			return nil, protocol.NewError(protocol.CodeExecutionError, "registry unavailable")
		}
	}
	if !agent.HasCapability(p.Tool) {
		g.metrics.ErrorTotal.WithLabelValues("undeclared_tool").Inc()
		return nil, protocol.NewError(protocol.CodePolicyViolation, "tool %s was not declared at registration", p.Tool)
	}

	// 2. Канонический интент. ID генерируем, если агент не прислал свой.
	intentID := p.IntentID
	if intentID == "" {
		intentID = uuid.New().String()
	}
	args, err := domain.ParseToolArgs(p.Tool, p.Arguments)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeInvalidParams, "invalid arguments for %s: %v", p.Tool, err)
	}
	in := &domain.Intent{
		ID:         intentID,
		AgentDID:   p.AgentDID,
		Tool:       p.Tool,
		Arguments:  p.Arguments,
		Context:    p.Context,
		ReceivedAt: time.Now().UTC(),
		Args:       args,
	}

	// 3. Replay-защита. Одобрение оператора даёт ровно одну легальную
	// переподачу: FirstSeen вызываем безусловно, чтобы переподача заново
	// поставила отметку и следующая попытка с тем же intent_id резалась.
	overridden := g.escalations != nil && g.escalations.ConsumeOverride(intentID)
	seen := g.replay.FirstSeen(ctx, in.AgentDID, in.ID)
	if !overridden && !seen {
		g.metrics.ErrorTotal.WithLabelValues("replay").Inc()
		return nil, protocol.NewError(protocol.CodeCapabilityExhaust, "intent %s was already submitted within the session window", in.ID)
	}

	if err := g.sessions.Begin(in.ID, in.AgentDID, in.Tool, traceID); err != nil {
		g.metrics.ErrorTotal.WithLabelValues("replay").Inc()
		return nil, protocol.NewError(protocol.CodeCapabilityExhaust, "intent %s is already in flight", in.ID)
	}
	g.metrics.SessionsInFlight.Set(float64(g.sessions.InFlight()))

	g.auditor.Log(audit.Entry{
		ID:        uuid.New().String(),
		TraceID:   traceID,
		IntentID:  in.ID,
		AgentDID:  in.AgentDID,
		Tool:      in.Tool,
		Stage:     audit.StageReceived,
		Payload:   payloadMap(in.Arguments),
		Timestamp: in.ReceivedAt,
	})
	g.signals.Emit(telemetry.Signal{
		Type:      telemetry.SignalIntentReceived,
		Timestamp: in.ReceivedAt,
		IntentID:  in.ID,
		AgentDID:  in.AgentDID,
		Data:      map[string]interface{}{"tool": in.Tool},
	})

	// 4. Политики. Снапшот берём РОВНО один раз: интент проверяется
	// целиком под той версией, которая была активна при входе.
	snap := g.policies.Active()
	res := policy.Evaluate(in, snap)
	if !res.Pass {
		return g.deny(ctx, in, snap, traceID, start, domain.RiskAssessment{Level: domain.RiskLow, Threats: []string{}},
			res.Rule, "policy violation: "+res.Reason)
	}
	_ = g.sessions.Advance(in.ID, session.StatePolicyChecked)
	g.auditor.Log(audit.Entry{
		ID:        uuid.New().String(),
		TraceID:   traceID,
		IntentID:  in.ID,
		AgentDID:  in.AgentDID,
		Tool:      in.Tool,
		Stage:     audit.StagePolicyChecked,
		Timestamp: time.Now().UTC(),
	})

	// 5. Гибридный риск-скоринг
	assessment := g.scorer.Score(ctx, in)
	_ = g.sessions.Advance(in.ID, session.StateRiskScored)
	g.metrics.RiskScore.Observe(assessment.FinalScore)
	if assessment.Degraded() {
		g.metrics.DegradedScoring.Inc()
	}
	g.auditor.Log(audit.Entry{
		ID:       uuid.New().String(),
		TraceID:  traceID,
		IntentID: in.ID,
		AgentDID: in.AgentDID,
		Tool:     in.Tool,
		Stage:    audit.StageRiskScored,
		Payload: map[string]interface{}{
			"final_score":     assessment.FinalScore,
			"heuristic_score": assessment.HeuristicScore,
			"model_score":     assessment.ModelScore,
			"level":           string(assessment.Level),
			"threats":         assessment.Threats,
		},
		Timestamp: time.Now().UTC(),
	})
	g.signals.Emit(telemetry.Signal{
		Type:      telemetry.SignalRiskAssessment,
		Timestamp: time.Now().UTC(),
		IntentID:  in.ID,
		AgentDID:  in.AgentDID,
		Data: map[string]interface{}{
			"score": assessment.FinalScore,
			"level": string(assessment.Level),
			// модель недоступна, решение принято по одним эвристикам
			"degraded": assessment.Degraded(),
		},
	})

	// 6. Решение
	switch {
	case assessment.FinalScore >= g.blockThreshold:
		return g.deny(ctx, in, snap, traceID, start, assessment, "risk_threshold",
			"risk score exceeds block threshold")

	case g.escalateHigh && !overridden && assessment.Level == domain.RiskHigh:
		return g.escalate(ctx, in, snap, traceID, start, assessment)
	}

	return g.approve(ctx, in, snap, traceID, start, assessment)
}

func (g *GatewayCore) deny(ctx context.Context, in *domain.Intent, snap *domain.Snapshot, traceID string, start time.Time, assessment domain.RiskAssessment, rule, reasoning string) (*protocol.VerdictResult, *protocol.Error) {
	_ = g.sessions.Advance(in.ID, session.StateDenied)
	g.observeDecision(in.Tool, string(domain.OutcomeDenied), start)
	g.metrics.ErrorTotal.WithLabelValues("policy_deny").Inc()

	v := g.newVerdict(in, snap, domain.OutcomeDenied, assessment, nil, reasoning)

	// Write-ahead: без строки аудита вердикт не выпускается
	if perr := g.recordDecision(ctx, in, v, traceID, start, rule); perr != nil {
		return nil, perr
	}

	g.signals.Emit(telemetry.Signal{
		Type:      telemetry.SignalIntentBlocked,
		Timestamp: time.Now().UTC(),
		IntentID:  in.ID,
		AgentDID:  in.AgentDID,
		Data:      map[string]interface{}{"rule": rule, "reasoning": reasoning},
	})
	if rule != "risk_threshold" {
		g.signals.Emit(telemetry.Signal{
			Type:      telemetry.SignalPolicyViolation,
			Timestamp: time.Now().UTC(),
			IntentID:  in.ID,
			AgentDID:  in.AgentDID,
			Data:      map[string]interface{}{"rule": rule},
		})
	}
	return protocol.NewVerdictResult(v), nil
}

func (g *GatewayCore) escalate(ctx context.Context, in *domain.Intent, snap *domain.Snapshot, traceID string, start time.Time, assessment domain.RiskAssessment) (*protocol.VerdictResult, *protocol.Error) {
	if err := g.escalations.Escalate(ctx, in, assessment); err != nil {
		g.logger.Error("failed to persist escalation", zap.Error(err))
		// Очередь операторов недоступна: безопасная сторона — отказ
		return g.deny(ctx, in, snap, traceID, start, assessment, "escalation_unavailable",
			"escalation queue unavailable, denying high-risk intent")
	}
	_ = g.sessions.Escalate(in.ID, time.Now().UTC().Add(g.decisionTTL))
	g.observeDecision(in.Tool, string(domain.OutcomeEscalate), start)

	v := g.newVerdict(in, snap, domain.OutcomeEscalate, assessment, nil,
		"risk level HIGH requires operator approval")
	if perr := g.recordDecision(ctx, in, v, traceID, start, "escalate_high"); perr != nil {
		return nil, perr
	}
	return protocol.NewVerdictResult(v), nil
}

func (g *GatewayCore) approve(ctx context.Context, in *domain.Intent, snap *domain.Snapshot, traceID string, start time.Time, assessment domain.RiskAssessment) (*protocol.VerdictResult, *protocol.Error) {
	now := time.Now().UTC()
	man := g.manifests.Build(in, snap, now)

	if err := g.sessions.Authorize(in.ID, man.ExpiresAt); err != nil {
		g.logger.Error("session authorize failed", zap.String("intent_id", in.ID), zap.Error(err))
		return nil, protocol.NewError(protocol.CodeExecutionError, "session state corrupted")
	}
	g.observeDecision(in.Tool, string(domain.OutcomeApproved), start)

	v := g.newVerdict(in, snap, domain.OutcomeApproved, assessment, man,
		"policy passed, risk within acceptable bounds")
	v.ExpiresAt = &man.ExpiresAt

	if perr := g.recordDecision(ctx, in, v, traceID, start, ""); perr != nil {
		return nil, perr
	}

	g.signals.Emit(telemetry.Signal{
		Type:      telemetry.SignalIntentAllowed,
		Timestamp: now,
		IntentID:  in.ID,
		AgentDID:  in.AgentDID,
		Data: map[string]interface{}{
			"tool":       in.Tool,
			"expires_at": man.ExpiresAt,
		},
	})

	// Диспетчеризация исполнителю асинхронная: вердикт агенту не ждёт gRPC
	go g.dispatchAsync(v, in, traceID)

	return protocol.NewVerdictResult(v), nil
}

func (g *GatewayCore) dispatchAsync(v *domain.Verdict, in *domain.Intent, traceID string) {
	if g.executor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := g.executor.Dispatch(ctx, v, in); err != nil {
		g.metrics.ErrorTotal.WithLabelValues("dispatch_fail").Inc()
		g.logger.Error("executor dispatch failed",
			zap.String("intent_id", in.ID), zap.Error(err))
		g.auditor.Log(audit.Entry{
			ID:        uuid.New().String(),
			TraceID:   traceID,
			IntentID:  in.ID,
			AgentDID:  in.AgentDID,
			Tool:      in.Tool,
			Stage:     audit.StageDispatched,
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return
	}

	_ = g.sessions.Advance(in.ID, session.StateDispatched)
	g.auditor.Log(audit.Entry{
		ID:        uuid.New().String(),
		TraceID:   traceID,
		IntentID:  in.ID,
		AgentDID:  in.AgentDID,
		Tool:      in.Tool,
		Stage:     audit.StageDispatched,
		Timestamp: time.Now().UTC(),
	})
}

func (g *GatewayCore) newVerdict(in *domain.Intent, snap *domain.Snapshot, outcome domain.Outcome, assessment domain.RiskAssessment, man *domain.CapabilityManifest, reasoning string) *domain.Verdict {
	var version int64
	if snap != nil {
		version = snap.Version
	}
	return &domain.Verdict{
		IntentID:      in.ID,
		AgentDID:      in.AgentDID,
		Outcome:       outcome,
		Risk:          assessment,
		Manifest:      man,
		Reasoning:     reasoning,
		PolicyVersion: version,
		IssuedAt:      time.Now().UTC(),
	}
}

// recordDecision — синхронная write-ahead запись решения.
// Отказ аудита означает отказ в вердикте, никаких решений мимо трейла.
func (g *GatewayCore) recordDecision(ctx context.Context, in *domain.Intent, v *domain.Verdict, traceID string, start time.Time, rule string) *protocol.Error {
	entry := audit.Entry{
		ID:            uuid.New().String(),
		TraceID:       traceID,
		IntentID:      in.ID,
		AgentDID:      in.AgentDID,
		Tool:          in.Tool,
		Stage:         audit.StageDecided,
		Outcome:       string(v.Outcome),
		PolicyVersion: v.PolicyVersion,
		Reasoning:     v.Reasoning,
		Payload: map[string]interface{}{
			"risk_score": v.Risk.FinalScore,
			"risk_level": string(v.Risk.Level),
		},
		Timestamp:  time.Now().UTC(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if rule != "" {
		entry.Payload["rule"] = rule
	}
	if err := g.auditor.Record(ctx, entry); err != nil {
		g.metrics.ErrorTotal.WithLabelValues("audit_fail").Inc()
		g.logger.Error("audit write-ahead failed, withholding verdict",
			zap.String("intent_id", in.ID), zap.Error(err))
		_ = g.sessions.Advance(in.ID, session.StateDenied) // чистим сессию
		return protocol.NewError(protocol.CodeExecutionError, "audit trail unavailable, verdict withheld")
	}
	g.metrics.AuditBufferFill.Set(float64(g.auditor.Depth()))
	return nil
}

func (g *GatewayCore) observeDecision(tool, verdict string, start time.Time) {
	g.metrics.IntentsTotal.WithLabelValues(tool, verdict).Inc()
	g.metrics.DecisionDuration.WithLabelValues(tool, verdict).Observe(time.Since(start).Seconds())
	g.metrics.SessionsInFlight.Set(float64(g.sessions.InFlight()))
}

// ProcessReport закрывает жизненный цикл интента отчётом исполнителя.
func (g *GatewayCore) ProcessReport(ctx context.Context, p *protocol.ReportParams) (map[string]interface{}, *protocol.Error) {
	if perr := p.Validate(); perr != nil {
		return nil, perr
	}
	traceID := extractTraceID(ctx)

	rec, err := g.sessions.ConsumeReport(p.IntentID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUnknownSession):
			return nil, protocol.NewError(protocol.CodeSessionExpired, "no open session for intent %s", p.IntentID)
		case errors.Is(err, session.ErrReportConsumed):
			return nil, protocol.NewError(protocol.CodeCapabilityExhaust, "report for intent %s was already consumed", p.IntentID)
		default:
			return nil, protocol.NewError(protocol.CodeInvalidRequest, "intent %s is not awaiting a report", p.IntentID)
		}
	}
	if rec.AgentDID != p.AgentDID {
		return nil, protocol.NewError(protocol.CodeInvalidRequest, "report agent_did does not match intent owner")
	}
	g.metrics.SessionsInFlight.Set(float64(g.sessions.InFlight()))

	now := time.Now().UTC()
	reportPayload := map[string]interface{}{
		"status": string(p.Status),
	}
	if p.Error != "" {
		reportPayload["error"] = p.Error
	}
	if len(p.Result) > 0 {
		reportPayload["result"] = payloadMap(p.Result)
	}
	var durationMs int64
	if p.Metrics != nil {
		durationMs = p.Metrics.DurationMs
		reportPayload["metrics"] = p.Metrics
	}

	g.auditor.Log(audit.Entry{
		ID:         uuid.New().String(),
		TraceID:    traceID,
		IntentID:   p.IntentID,
		AgentDID:   p.AgentDID,
		Tool:       rec.Tool,
		Stage:      audit.StageReported,
		Outcome:    string(p.Status),
		Payload:    reportPayload,
		Timestamp:  now,
		DurationMs: durationMs,
	})
	g.auditor.Log(audit.Entry{
		ID:        uuid.New().String(),
		TraceID:   traceID,
		IntentID:  p.IntentID,
		AgentDID:  p.AgentDID,
		Tool:      rec.Tool,
		Stage:     audit.StageClosed,
		Outcome:   string(p.Status),
		Timestamp: now,
	})
	g.signals.Emit(telemetry.Signal{
		Type:      telemetry.SignalExecutionComplete,
		Timestamp: now,
		IntentID:  p.IntentID,
		AgentDID:  p.AgentDID,
		Data:      map[string]interface{}{"status": string(p.Status)},
	})

	return map[string]interface{}{"status": "acknowledged", "intent_id": p.IntentID}, nil
}

// OnAuthorizationExpired вызывается sweeper-ом сессий для авторизаций,
// по которым агент не отчитался до expires_at манифеста, и для эскалаций,
// по которым оператор не принял решение в отведённый срок.
func (g *GatewayCore) OnAuthorizationExpired(rec session.Record) {
	now := time.Now().UTC()
	g.metrics.SessionsInFlight.Set(float64(g.sessions.InFlight()))

	outcome := string(domain.ExecTimeout)
	if rec.State == session.StateEscalated {
		outcome = string(domain.ApprovalExpired)
	}

	g.auditor.Log(audit.Entry{
		ID:        uuid.New().String(),
		TraceID:   rec.TraceID,
		IntentID:  rec.IntentID,
		AgentDID:  rec.AgentDID,
		Tool:      rec.Tool,
		Stage:     audit.StageClosed,
		Outcome:   outcome,
		Payload:   map[string]interface{}{"implicit": true},
		Timestamp: now,
	})
	g.signals.Emit(telemetry.Signal{
		Type:      telemetry.SignalExecutionComplete,
		Timestamp: now,
		IntentID:  rec.IntentID,
		AgentDID:  rec.AgentDID,
		Data:      map[string]interface{}{"status": outcome, "implicit": true},
	})
}

// ProcessRegister создает идентичность агента и возвращает текущую политику.
func (g *GatewayCore) ProcessRegister(ctx context.Context, p *protocol.RegisterParams) (*protocol.PolicyResult, *protocol.Error) {
	if perr := p.Validate(); perr != nil {
		return nil, perr
	}
	traceID := extractTraceID(ctx)

	agent, err := g.agents.Register(ctx, p.AgentDID, p.PublicKey, p.CapabilitiesRequested, p.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrAgentRevoked):
			return nil, protocol.NewError(protocol.CodePolicyViolation, "revoked identity cannot be re-registered")
		case errors.Is(err, registry.ErrDIDConflict):
			return nil, protocol.NewError(protocol.CodeRegistrationFailed, "did is already bound to another key")
		default:
			return nil, protocol.NewError(protocol.CodeRegistrationFailed, "registration rejected: %v", err)
		}
	}

	g.auditor.Log(audit.Entry{
		ID:        uuid.New().String(),
		TraceID:   traceID,
		AgentDID:  agent.DID,
		Stage:     audit.StageRegistered,
		Payload:   map[string]interface{}{"capabilities": agent.Capabilities},
		Timestamp: time.Now().UTC(),
	})

	res := &protocol.PolicyResult{
		AgentDID:     agent.DID,
		Capabilities: agent.Capabilities,
	}
	if snap := g.policies.Active(); snap != nil {
		res.Version = snap.Version
		res.ConstitutionHash = snap.ContentHash
	}
	return res, nil
}

// HandleA2G — единая точка входа протокола A2G (POST /a2g).
func (g *GatewayCore) HandleA2G(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeJSONRPC(w, protocol.Fail(nil, protocol.NewError(protocol.CodeParseError, "failed to read body")))
		return
	}
	defer r.Body.Close()

	req, perr := protocol.ParseRequest(body)
	if perr != nil {
		writeJSONRPC(w, protocol.Fail(nil, perr))
		return
	}

	ctx := r.Context()
	var (
		result interface{}
		rerr   *protocol.Error
	)

	switch req.Method {
	case protocol.MethodIntent:
		var p protocol.IntentParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			rerr = protocol.NewError(protocol.CodeInvalidParams, "malformed intent params: %v", err)
			break
		}
		result, rerr = g.ProcessIntent(ctx, &p)

	case protocol.MethodReport:
		var p protocol.ReportParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			rerr = protocol.NewError(protocol.CodeInvalidParams, "malformed report params: %v", err)
			break
		}
		result, rerr = g.ProcessReport(ctx, &p)

	case protocol.MethodRegister:
		var p protocol.RegisterParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			rerr = protocol.NewError(protocol.CodeInvalidParams, "malformed register params: %v", err)
			break
		}
		result, rerr = g.ProcessRegister(ctx, &p)

	default:
		rerr = protocol.NewError(protocol.CodeMethodNotFound, "unknown method %q", req.Method)
	}

	if rerr != nil {
		writeJSONRPC(w, protocol.Fail(req.ID, rerr))
		return
	}
	writeJSONRPC(w, protocol.OK(req.ID, result))
}

func writeJSONRPC(w http.ResponseWriter, resp *protocol.Response) {
	w.Header().Set("Content-Type", "application/json")
	// JSON-RPC всегда отвечает 200, транспортный статус не несет семантики
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		// Клиент скорее всего уже отвалился, ничего не сделать
		return
	}
}
