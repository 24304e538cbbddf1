package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/aeon-gateway/internal/domain"
	"go.uber.org/zap"
)

type fakeSource struct {
	snap *domain.Snapshot
	err  error
}

func (f *fakeSource) LoadActive(ctx context.Context) (*domain.Snapshot, error) {
	return f.snap, f.err
}

func TestStoreActiveNilBeforeFirstLoad(t *testing.T) {
	s := NewStore(&fakeSource{}, zap.NewNop())
	assert.Nil(t, s.Active())
}

func TestStoreRefreshPublishesSnapshot(t *testing.T) {
	src := &fakeSource{snap: &domain.Snapshot{Version: 3}}
	s := NewStore(src, zap.NewNop())

	require.NoError(t, s.Refresh(context.Background()))
	got := s.Active()
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.Version)
	assert.NotEmpty(t, got.ContentHash, "Publish must fill in the hash")
}

func TestStoreRefreshNeverRollsBack(t *testing.T) {
	src := &fakeSource{snap: &domain.Snapshot{Version: 5}}
	s := NewStore(src, zap.NewNop())
	require.NoError(t, s.Refresh(context.Background()))

	// Сигнал со старой версией пришел с опозданием
	src.snap = &domain.Snapshot{Version: 4}
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, int64(5), s.Active().Version)
}

func TestStoreRefreshErrors(t *testing.T) {
	s := NewStore(&fakeSource{err: errors.New("pg down")}, zap.NewNop())
	assert.Error(t, s.Refresh(context.Background()))
	assert.Nil(t, s.Active())

	s2 := NewStore(&fakeSource{snap: nil}, zap.NewNop())
	assert.Error(t, s2.Refresh(context.Background()), "empty storage is an error, not a silent nil")
}

func TestSnapshotHashIsOrderInsensitive(t *testing.T) {
	a := &domain.Snapshot{
		Network:    domain.NetworkRules{Allow: []string{"a.com", "b.com"}},
		Filesystem: domain.FilesystemRules{WriteAllow: []string{"/x/**", "/y/**"}},
	}
	b := &domain.Snapshot{
		Version:    99, // версия и время публикации в хэш не входят
		Network:    domain.NetworkRules{Allow: []string{"b.com", "a.com"}},
		Filesystem: domain.FilesystemRules{WriteAllow: []string{"/y/**", "/x/**"}},
	}
	assert.Equal(t, a.ComputeHash(), b.ComputeHash())

	c := &domain.Snapshot{Network: domain.NetworkRules{Allow: []string{"a.com"}}}
	assert.NotEqual(t, a.ComputeHash(), c.ComputeHash())
}

func TestComputeHashDoesNotMutateSnapshot(t *testing.T) {
	snap := &domain.Snapshot{
		Network: domain.NetworkRules{
			Allow: []string{"b.com", "a.com"},
			Block: []string{"z.internal", "a.internal"},
		},
		Filesystem: domain.FilesystemRules{
			WriteAllow:  []string{"/y/**", "/x/**"},
			BlockDelete: []string{"/etc/**", "/boot/**"},
		},
	}

	snap.ComputeHash()

	// Снапшот неизменяем: хэширование не должно пересортировывать его массивы
	assert.Equal(t, []string{"b.com", "a.com"}, snap.Network.Allow)
	assert.Equal(t, []string{"z.internal", "a.internal"}, snap.Network.Block)
	assert.Equal(t, []string{"/y/**", "/x/**"}, snap.Filesystem.WriteAllow)
	assert.Equal(t, []string{"/etc/**", "/boot/**"}, snap.Filesystem.BlockDelete)
}
