package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "aeon"
)

// Ключи для Sets и одиночных значений (состояние)
const (
	RedisKeyRevokedAgents     = RedisNamespace + ":agents:revoked_set"
	RedisKeyLockRevokedWarmup = RedisNamespace + ":lock:warmup:revoked"

	// Префикс replay-защиты: SETNX aeon:intents:seen:{did}:{intent_id} с TTL окна сессии
	RedisKeyIntentSeenPrefix = RedisNamespace + ":intents:seen:"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanApprovalDecisions — канал для трансляции решений оператора (HITL).
	RedisChanApprovalDecisions = RedisNamespace + ":approvals"
	RedisChanRevoke            = RedisNamespace + ":agents:revoke-signal"
	RedisChanPolicyUpdate      = RedisNamespace + ":policy:update"
	RedisChanTelemetry         = RedisNamespace + ":telemetry"
)

// IntentSeenKey собирает ключ replay-защиты для пары агент/интент
func IntentSeenKey(agentDID, intentID string) string {
	return fmt.Sprintf("%s%s:%s", RedisKeyIntentSeenPrefix, agentDID, intentID)
}

// ApprovalDecisionChan — канал «пробуждения» для конкретного эскалированного интента
func ApprovalDecisionChan(intentID string) string {
	return fmt.Sprintf("%s:execution:%s", RedisChanApprovalDecisions, intentID)
}
