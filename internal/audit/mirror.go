package audit

import (
	"context"
	"sync"
	"time"

	"github.com/xela07ax/workflow-acl/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultMirrorBuffer  = 10000
	DefaultFlushInterval = 500 * time.Millisecond
	mirrorBatchSize      = 100
	mirrorFlushTimeout   = 10 * time.Second
)

// BatchWriter is where mirrored records end up (Postgres, ClickHouse, ...).
type BatchWriter interface {
	WriteBatch(ctx context.Context, records []domain.AuditRecord) error
}

// Mirror copies appended records to a secondary store without blocking the caller.
//
// Records are buffered in a channel and written in batches of up to 100, or whenever the
// flush interval elapses. A full buffer sheds load: the record is dropped and counted, the
// JSONL file remains the source of truth. Stop closes the input and drains what is left.
type Mirror struct {
	ch       chan domain.AuditRecord
	repo     BatchWriter
	interval time.Duration
	metrics  *Metrics
	logger   *zap.Logger
	wg       sync.WaitGroup

	// closed is guarded by mu: Record sends under the read lock, Stop closes under the
	// write lock, so a send never races with close.
	mu     sync.RWMutex
	closed bool
}

func NewMirror(repo BatchWriter, bufferSize int, flushInterval time.Duration, metrics *Metrics, logger *zap.Logger) *Mirror {
	if bufferSize <= 0 {
		bufferSize = DefaultMirrorBuffer
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Mirror{
		ch:       make(chan domain.AuditRecord, bufferSize),
		repo:     repo,
		interval: flushInterval,
		metrics:  metrics,
		logger:   logger.Named("audit-mirror"),
	}
}

func (m *Mirror) Start() {
	m.wg.Add(1)
	go m.worker()
}

// Stop stops accepting records and waits until the buffer is flushed.
func (m *Mirror) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.ch)
	m.mu.Unlock()

	m.logger.Info("stopping mirror: flushing buffer")
	m.wg.Wait()
	m.logger.Info("mirror stopped")
}

func (m *Mirror) Record(rec domain.AuditRecord) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		m.metrics.MirrorDropped.Inc()
		m.logger.Warn("audit record not mirrored: mirror is stopped", zap.String("id", rec.ID))
		return
	}

	select {
	case m.ch <- rec:
		m.metrics.MirrorBufferFill.Set(float64(len(m.ch)))
	default:
		m.metrics.MirrorDropped.Inc()
		m.logger.Error("audit_mirror_overflow",
			zap.String("id", rec.ID),
			zap.String("username", rec.Username),
			zap.String("action", string(rec.Action)))
	}
}

func (m *Mirror) worker() {
	defer m.wg.Done()

	batch := make([]domain.AuditRecord, 0, mirrorBatchSize)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: the caller's context may already be gone during shutdown.
		ctx, cancel := context.WithTimeout(context.Background(), mirrorFlushTimeout)
		defer cancel()
		if err := m.repo.WriteBatch(ctx, batch); err != nil {
			m.metrics.MirrorFailures.Inc()
			m.logger.Error("mirror flush failed", zap.Int("records", len(batch)), zap.Error(err))
		}
		// The writer may hold on to the slice; start a fresh one.
		batch = make([]domain.AuditRecord, 0, mirrorBatchSize)
		m.metrics.MirrorBufferFill.Set(float64(len(m.ch)))
	}

	for {
		select {
		case rec, ok := <-m.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= mirrorBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
