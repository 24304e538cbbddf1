package registry

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/aeon-gateway/internal/domain"
)

type memAgentStore struct {
	mu     sync.Mutex
	agents map[string]*domain.Agent
}

func newMemAgentStore() *memAgentStore {
	return &memAgentStore{agents: make(map[string]*domain.Agent)}
}

func (s *memAgentStore) Create(ctx context.Context, agent *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *agent
	s.agents[agent.DID] = &cp
	return nil
}

func (s *memAgentStore) GetByDID(ctx context.Context, did string) (*domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[did]
	if !ok {
		return nil, ErrUnknownAgent
	}
	cp := *a
	return &cp, nil
}

func (s *memAgentStore) UpdateStatus(ctx context.Context, did string, status domain.AgentStatus, revokedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[did]
	if !ok {
		return ErrUnknownAgent
	}
	a.Status = status
	a.RevokedAt = revokedAt
	return nil
}

func (s *memAgentStore) ListDIDsByStatus(ctx context.Context, status domain.AgentStatus) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for did, a := range s.agents {
		if a.Status == status {
			out = append(out, did)
		}
	}
	return out, nil
}

func genDID(t *testing.T, name string) (string, string) {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	keyHex := hex.EncodeToString(pub)
	return domain.BuildDID(name, "1.0", keyHex), keyHex
}

func TestVerifyDID(t *testing.T) {
	did, key := genDID(t, "coder")
	assert.NoError(t, VerifyDID(did, key))

	// Ключ в DID и заявленный ключ расходятся
	otherDID, _ := genDID(t, "coder")
	assert.Error(t, VerifyDID(otherDID, key))

	// Не hex
	assert.Error(t, VerifyDID("did:aeon:coder:1.0:zzzz", "zzzz"))

	// Неверная длина ключа
	assert.Error(t, VerifyDID("did:aeon:coder:1.0:abcd", "abcd"))

	// Малформированный DID
	assert.Error(t, VerifyDID("did:other:coder:1.0:"+key, key))
	assert.Error(t, VerifyDID("did:aeon:coder:"+key, key))
}

func TestRegisterAndResolve(t *testing.T) {
	store := newMemAgentStore()
	r := NewRegistry(store, zap.NewNop())
	did, key := genDID(t, "coder")

	agent, err := r.Register(context.Background(), did, key, []string{"read_file", "write_file"}, map[string]interface{}{"runtime": "python"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, agent.Status)
	assert.True(t, agent.HasCapability("write_file"))
	assert.False(t, agent.HasCapability("execute_command"))

	got, err := r.Resolve(context.Background(), did)
	require.NoError(t, err)
	assert.Equal(t, did, got.DID)
}

func TestRegisterIdempotentSameKey(t *testing.T) {
	store := newMemAgentStore()
	r := NewRegistry(store, zap.NewNop())
	did, key := genDID(t, "coder")

	first, err := r.Register(context.Background(), did, key, []string{"read_file"}, nil)
	require.NoError(t, err)

	second, err := r.Register(context.Background(), did, key, []string{"read_file"}, nil)
	require.NoError(t, err)
	assert.Equal(t, first.DID, second.DID)
	assert.Len(t, store.agents, 1)
}

func TestRegisterKeyConflict(t *testing.T) {
	store := newMemAgentStore()
	did, key := genDID(t, "coder")
	// В хранилище DID уже привязан к другому ключу
	store.agents[did] = &domain.Agent{DID: did, PublicKey: "another-key", Status: domain.StatusActive}

	r := NewRegistry(store, zap.NewNop())
	_, err := r.Register(context.Background(), did, key, []string{"read_file"}, nil)
	assert.ErrorIs(t, err, ErrDIDConflict)
}

func TestResolveUnknownAgent(t *testing.T) {
	r := NewRegistry(newMemAgentStore(), zap.NewNop())
	did, _ := genDID(t, "ghost")
	_, err := r.Resolve(context.Background(), did)
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestRevokeIsTerminal(t *testing.T) {
	store := newMemAgentStore()
	r := NewRegistry(store, zap.NewNop())
	did, key := genDID(t, "coder")

	_, err := r.Register(context.Background(), did, key, []string{"read_file"}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Revoke(context.Background(), did))

	_, err = r.Resolve(context.Background(), did)
	assert.ErrorIs(t, err, ErrAgentRevoked)

	// Отозванный DID не воскрешается даже с тем же ключом
	_, err = r.Register(context.Background(), did, key, []string{"read_file"}, nil)
	assert.ErrorIs(t, err, ErrAgentRevoked)

	revoked, err := r.RevokedDIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{did}, revoked)
}

func TestParseDID(t *testing.T) {
	name, version, key, err := domain.ParseDID("did:aeon:coder:2.1:deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "coder", name)
	assert.Equal(t, "2.1", version)
	assert.Equal(t, "deadbeef", key)

	_, _, _, err = domain.ParseDID("did:aeon:coder:2.1:")
	assert.Error(t, err)
}
