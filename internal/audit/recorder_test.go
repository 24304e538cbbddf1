package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStorage struct {
	mu       sync.Mutex
	appended []Entry
	batches  [][]Entry
	failNext error
}

func (m *memStorage) Append(ctx context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.appended = append(m.appended, e)
	return nil
}

func (m *memStorage) WriteBatch(ctx context.Context, events []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Entry, len(events))
	copy(cp, events)
	m.batches = append(m.batches, cp)
	return nil
}

func (m *memStorage) flushedTotal() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestRecordIsWriteAhead(t *testing.T) {
	store := &memStorage{}
	r := NewRecorder(store, 10, 5, time.Second, zap.NewNop())

	err := r.Record(context.Background(), Entry{ID: "e1", IntentID: "it-1", Stage: StageDecided})
	require.NoError(t, err)
	require.Len(t, store.appended, 1)
	assert.False(t, store.appended[0].Timestamp.IsZero(), "Record fills in the timestamp")
}

func TestRecordFailurePropagates(t *testing.T) {
	store := &memStorage{failNext: errors.New("pg down")}
	r := NewRecorder(store, 10, 5, time.Second, zap.NewNop())

	err := r.Record(context.Background(), Entry{ID: "e1", Stage: StageDecided})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write-ahead")
}

func TestLogFlushesOnBatchSize(t *testing.T) {
	store := &memStorage{}
	r := NewRecorder(store, 100, 3, time.Hour, zap.NewNop())
	r.Start()

	for i := 0; i < 3; i++ {
		r.Log(Entry{IntentID: "it-1", Stage: StageDispatched})
	}

	require.Eventually(t, func() bool { return store.flushedTotal() == 3 },
		time.Second, 10*time.Millisecond)
	r.Stop()
}

func TestLogFlushesOnInterval(t *testing.T) {
	store := &memStorage{}
	r := NewRecorder(store, 100, 50, 20*time.Millisecond, zap.NewNop())
	r.Start()

	r.Log(Entry{IntentID: "it-1", Stage: StageClosed})

	require.Eventually(t, func() bool { return store.flushedTotal() == 1 },
		time.Second, 10*time.Millisecond)
	r.Stop()
}

func TestStopDrainsBuffer(t *testing.T) {
	store := &memStorage{}
	r := NewRecorder(store, 100, 50, time.Hour, zap.NewNop())
	r.Start()

	for i := 0; i < 7; i++ {
		r.Log(Entry{IntentID: "it-1", Stage: StageReported})
	}
	r.Stop()

	assert.Equal(t, 7, store.flushedTotal(), "pending events survive shutdown")
}

func TestLogAfterStopIsDropped(t *testing.T) {
	store := &memStorage{}
	r := NewRecorder(store, 100, 50, time.Hour, zap.NewNop())
	r.Start()
	r.Stop()

	// Не должно паниковать записью в закрытый канал
	r.Log(Entry{IntentID: "late", Stage: StageClosed})
	assert.Equal(t, 0, store.flushedTotal())
}

func TestLogNonBlockingOnOverflow(t *testing.T) {
	store := &memStorage{}
	// Воркер не запущен: буфер на 2 события переполняется сразу
	r := NewRecorder(store, 2, 50, time.Hour, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.Log(Entry{IntentID: "it-1", Stage: StageDispatched})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Log blocked on a full buffer")
	}
	assert.Equal(t, 2, r.Depth())
}
