package registry

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/aeon-gateway/internal/domain"
)

var (
	ErrUnknownAgent = errors.New("agent is not registered")
	ErrAgentRevoked = errors.New("agent identity is revoked")
	ErrDIDConflict  = errors.New("did is already bound to another key")
)

// AgentStore — персистентное хранилище идентичностей (PostgreSQL).
type AgentStore interface {
	Create(ctx context.Context, agent *domain.Agent) error
	GetByDID(ctx context.Context, did string) (*domain.Agent, error)
	UpdateStatus(ctx context.Context, did string, status domain.AgentStatus, revokedAt *time.Time) error
	ListDIDsByStatus(ctx context.Context, status domain.AgentStatus) ([]string, error)
}

// Registry отвечает за жизненный цикл идентичности агента:
// регистрация, резолв по DID, мягкий отзыв.
type Registry struct {
	store  AgentStore
	logger *zap.Logger

	// Пер-DID мьютексы: конкурентные регистрации одного DID
	// сериализуются, разные DID друг друга не ждут.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRegistry(store AgentStore, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (r *Registry) lockFor(did string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[did]
	if !ok {
		l = &sync.Mutex{}
		r.locks[did] = l
	}
	return l
}

// VerifyDID проверяет криптографическую согласованность идентификатора:
// hex из последнего сегмента DID обязан быть валидным ed25519 ключом
// и совпадать с заявленным public_key.
func VerifyDID(did, publicKeyHex string) error {
	_, _, didKey, err := domain.ParseDID(did)
	if err != nil {
		return err
	}
	if didKey != publicKeyHex {
		return fmt.Errorf("did key segment does not match declared public_key")
	}
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return fmt.Errorf("public_key is not valid hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("public_key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return nil
}

// Register создает идентичность агента. Повторная регистрация того же
// DID с тем же ключом идемпотентна; с другим ключом — конфликт.
func (r *Registry) Register(ctx context.Context, did, publicKey string, capabilities []string, metadata map[string]interface{}) (*domain.Agent, error) {
	if err := VerifyDID(did, publicKey); err != nil {
		return nil, err
	}

	l := r.lockFor(did)
	l.Lock()
	defer l.Unlock()

	existing, err := r.store.GetByDID(ctx, did)
	if err != nil && !errors.Is(err, ErrUnknownAgent) {
		return nil, fmt.Errorf("registry lookup: %w", err)
	}
	if existing != nil {
		if existing.IsRevoked() {
			// Отозванный DID не воскрешается: ключ скомпрометирован навсегда
			return nil, ErrAgentRevoked
		}
		if existing.PublicKey != publicKey {
			return nil, ErrDIDConflict
		}
		r.logger.Info("agent re-registered", zap.String("did", did))
		return existing, nil
	}

	agent := &domain.Agent{
		DID:          did,
		PublicKey:    publicKey,
		Status:       domain.StatusActive,
		Capabilities: capabilities,
		RegisteredAt: time.Now().UTC(),
		Metadata:     metadata,
	}
	if err := r.store.Create(ctx, agent); err != nil {
		return nil, fmt.Errorf("registry create: %w", err)
	}

	r.logger.Info("agent registered",
		zap.String("did", did),
		zap.Strings("capabilities", capabilities))
	return agent, nil
}

// Resolve возвращает активного агента по DID.
func (r *Registry) Resolve(ctx context.Context, did string) (*domain.Agent, error) {
	agent, err := r.store.GetByDID(ctx, did)
	if err != nil {
		return nil, err
	}
	if agent.IsRevoked() {
		return nil, ErrAgentRevoked
	}
	return agent, nil
}

// Revoke мягко отзывает идентичность. Операция необратима.
func (r *Registry) Revoke(ctx context.Context, did string) error {
	now := time.Now().UTC()
	if err := r.store.UpdateStatus(ctx, did, domain.StatusRevoked, &now); err != nil {
		return err
	}
	r.logger.Warn("agent revoked", zap.String("did", did))
	return nil
}

// RevokedDIDs — выборка для прогрева кэша отзывов при старте.
func (r *Registry) RevokedDIDs(ctx context.Context) ([]string, error) {
	return r.store.ListDIDsByStatus(ctx, domain.StatusRevoked)
}
