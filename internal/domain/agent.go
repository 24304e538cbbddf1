package domain

import (
	"fmt"
	"strings"
	"time"
)

type AgentStatus string

const (
	StatusActive  AgentStatus = "active"  // Полный доступ к пайплайну
	StatusRevoked AgentStatus = "revoked" // Отозван (soft-delete, DID не переиспользуется)
)

// Agent — зарегистрированный участник протокола A2G.
// Идентичность неизменяема: DID жестко привязан к публичному ключу и версии.
type Agent struct {
	DID       string      `json:"did"`        // did:aeon:{name}:{version}:{pubkey_hex}
	PublicKey string      `json:"public_key"` // ed25519, hex
	Status    AgentStatus `json:"status"`

	// Какие инструменты агент задекларировал при регистрации.
	// Интент на незадекларированный tool отклоняется еще до политик.
	Capabilities []string `json:"capabilities"`

	RegisteredAt time.Time  `json:"registered_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`

	// Метаданные для Observability (имя, версия, рантайм агента)
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// IsRevoked — терминальное состояние, обратной дороги нет
func (a *Agent) IsRevoked() bool {
	return a != nil && a.Status == StatusRevoked
}

// HasCapability проверяет декларацию инструмента.
// nil-агент трактуем как запрет (Zero Trust).
func (a *Agent) HasCapability(tool string) bool {
	if a == nil {
		return false
	}
	for _, c := range a.Capabilities {
		if c == tool {
			return true
		}
	}
	return false
}

// ParseDID разбирает идентификатор формата did:aeon:{name}:{version}:{pubkey_hex}.
// Возвращает имя, версию и hex публичного ключа.
func ParseDID(did string) (name, version, pubkeyHex string, err error) {
	parts := strings.Split(did, ":")
	if len(parts) != 5 || parts[0] != "did" || parts[1] != "aeon" {
		return "", "", "", fmt.Errorf("malformed DID %q: want did:aeon:{name}:{version}:{pubkey}", did)
	}
	if parts[2] == "" || parts[3] == "" || parts[4] == "" {
		return "", "", "", fmt.Errorf("malformed DID %q: empty segment", did)
	}
	return parts[2], parts[3], parts[4], nil
}

// BuildDID собирает DID из компонентов. Обратная операция к ParseDID.
func BuildDID(name, version, pubkeyHex string) string {
	return fmt.Sprintf("did:aeon:%s:%s:%s", name, version, pubkeyHex)
}
