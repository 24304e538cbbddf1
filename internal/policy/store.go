package policy

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/xela07ax/aeon-gateway/internal/domain"
	"go.uber.org/zap"
)

// SnapshotSource описывает требования к долговременному хранилищу конституции.
type SnapshotSource interface {
	// LoadActive возвращает последний опубликованный снапшот
	LoadActive(ctx context.Context) (*domain.Snapshot, error)
}

// Store публикует снапшоты через атомарный свап указателя.
// Hot Path (Active) не берет ни одного лока: каждая in-flight проверка
// захватывает указатель один раз и дорабатывает на нем до конца,
// даже если за это время опубликовали новую версию.
type Store struct {
	cur    atomic.Pointer[domain.Snapshot]
	source SnapshotSource
	logger *zap.Logger
}

func NewStore(source SnapshotSource, logger *zap.Logger) *Store {
	return &Store{
		source: source,
		logger: logger.Named("policy-store"),
	}
}

// Active возвращает текущий снапшот. nil до первой загрузки —
// в этом состоянии пайплайн обязан отвечать default-deny.
func (s *Store) Active() *domain.Snapshot {
	return s.cur.Load()
}

// Publish атомарно заменяет активный снапшот.
// Сам снапшот после публикации трогать нельзя.
func (s *Store) Publish(snap *domain.Snapshot) {
	if snap.ContentHash == "" {
		snap.ContentHash = snap.ComputeHash()
	}
	s.cur.Store(snap)
	s.logger.Info("policy snapshot published",
		zap.Int64("version", snap.Version),
		zap.String("hash", snap.ContentHash))
}

// Refresh выполняет «холодную загрузку» конституции из Postgres (при старте
// и по сигналу aeon:policy:update). Проигрыш гонки версий безопасен:
// выигрывает последний Publish, а он всегда монотонен по данным БД.
func (s *Store) Refresh(ctx context.Context) error {
	snap, err := s.source.LoadActive(ctx)
	if err != nil {
		return fmt.Errorf("policy refresh: %w", err)
	}
	if snap == nil {
		return fmt.Errorf("policy refresh: no active snapshot in storage")
	}

	// Не откатываемся на более старую версию, если сигналы пришли не по порядку
	if cur := s.cur.Load(); cur != nil && cur.Version >= snap.Version {
		return nil
	}

	s.Publish(snap)
	return nil
}
