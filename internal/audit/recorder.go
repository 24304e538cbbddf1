package audit

/*
Файл recorder.go реализует журнал аудита шлюза.

Две дисциплины записи:
- Record (write-ahead): решение по интенту сначала ДОЛЖНО лечь в базу,
  и только потом вердикт уходит агенту. Невозможность записать аудит —
  единственный фатальный для пайплайна сбой: решение без записи не выдается.
- Log (lifecycle): события после решения (dispatch, report, close) идут через
  неблокирующий канал и пакетную запись (Bulk Insert) по таймеру или при
  достижении лимита. Задержки БД не влияют на Response Time.

Drain Pattern: при остановке канал запирается, воркер вычитывает остатки
и делает финальный flush — записи при перезагрузке не теряются.
*/

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически сохраняются записи
type StorageInterface interface {
	// Append синхронно и дюрабельно пишет одну запись (write-ahead путь)
	Append(ctx context.Context, e Entry) error
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Entry) error
}

type Recorder struct {
	ch     chan Entry
	repo   StorageInterface
	logger *zap.Logger
	wg     sync.WaitGroup

	batchSize     int
	flushInterval time.Duration

	// Атомарный флаг (0 - открыт, 1 - закрыт): защита от Log после Stop
	isClosed int32
}

func NewRecorder(repo StorageInterface, bufferSize, batchSize int, flushInterval time.Duration, logger *zap.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &Recorder{
		ch:            make(chan Entry, bufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "audit")),
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (r *Recorder) Stop() {
	atomic.StoreInt32(&r.isClosed, 1)

	// Крошечная пауза, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	r.logger.Info("stopping audit recorder: closing channel and flushing buffer...")
	close(r.ch)
	r.wg.Wait()
	r.logger.Info("audit recorder stopped gracefully")
}

// Record — write-ahead запись решения. Блокирует выпуск вердикта:
// если из этой функции вернулась ошибка, вердикт агенту не уходит.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if err := r.repo.Append(ctx, e); err != nil {
		return fmt.Errorf("audit write-ahead failed: %w", err)
	}
	return nil
}

// Log — неблокирующая запись lifecycle-события.
// При переполнении буфера работает Load Shedding: событие уходит в zap,
// чтобы не потерять след полностью.
func (r *Recorder) Log(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	if atomic.LoadInt32(&r.isClosed) == 1 {
		r.logger.Warn("audit event dropped: recorder is stopping", zap.String("id", e.ID))
		return
	}

	select {
	case r.ch <- e:
	default:
		r.logger.Error("audit_buffer_overflow",
			zap.String("intent_id", e.IntentID),
			zap.String("agent_did", e.AgentDID),
			zap.String("stage", string(e.Stage)),
		)
	}
}

// Depth — текущее заполнение буфера (для метрики backpressure)
func (r *Recorder) Depth() int {
	return len(r.ch)
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	batch := make([]Entry, 0, r.batchSize)
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст при остановке уже может быть закрыт
			if err := r.repo.WriteBatch(context.Background(), batch); err != nil {
				r.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-r.ch:
			if !ok {
				// Канал закрыт в Stop() — самодостаточный сигнал завершения:
				// сначала вычитываем остатки, потом финальный flush
				flush()
				r.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= r.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
