package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/workflow-acl/internal/domain"
	"go.uber.org/zap"
)

type fakeBatchWriter struct {
	mu      sync.Mutex
	batches [][]domain.AuditRecord
	err     error
}

func (f *fakeBatchWriter) WriteBatch(_ context.Context, records []domain.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, records)
	return f.err
}

func (f *fakeBatchWriter) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func rec(i int) domain.AuditRecord {
	return domain.AuditRecord{ID: fmt.Sprintf("id-%d", i), Username: "alice", Action: domain.ActionViewWorkflow, Status: domain.AuditSuccess}
}

func TestMirror_DrainsOnStop(t *testing.T) {
	w := &fakeBatchWriter{}
	m := NewMirror(w, 1000, time.Hour, NewMetrics(prometheus.NewRegistry()), zap.NewNop())
	m.Start()

	for i := 0; i < 250; i++ {
		m.Record(rec(i))
	}
	m.Stop()

	assert.Equal(t, 250, w.total())
	for _, b := range w.batches {
		assert.LessOrEqual(t, len(b), mirrorBatchSize)
	}
}

func TestMirror_FlushesOnTicker(t *testing.T) {
	w := &fakeBatchWriter{}
	m := NewMirror(w, 10, 10*time.Millisecond, nil, zap.NewNop())
	m.Start()
	defer m.Stop()

	m.Record(rec(1))

	assert.Eventually(t, func() bool { return w.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestMirror_RecordAfterStop(t *testing.T) {
	w := &fakeBatchWriter{}
	metrics := NewMetrics(prometheus.NewRegistry())
	m := NewMirror(w, 10, time.Hour, metrics, zap.NewNop())
	m.Start()
	m.Stop()

	assert.NotPanics(t, func() { m.Record(rec(1)) })
	assert.NotPanics(t, m.Stop)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MirrorDropped))
	assert.Zero(t, w.total())
}

func TestMirror_ShedsLoadWhenFull(t *testing.T) {
	w := &fakeBatchWriter{}
	metrics := NewMetrics(prometheus.NewRegistry())
	// Not started: nothing consumes the buffer.
	m := NewMirror(w, 2, time.Hour, metrics, zap.NewNop())

	for i := 0; i < 5; i++ {
		m.Record(rec(i))
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.MirrorDropped))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.MirrorBufferFill))

	m.Start()
	m.Stop()
	assert.Equal(t, 2, w.total())
}

func TestMirror_WriteFailureCounted(t *testing.T) {
	w := &fakeBatchWriter{err: errors.New("db down")}
	metrics := NewMetrics(prometheus.NewRegistry())
	m := NewMirror(w, 10, time.Hour, metrics, zap.NewNop())
	m.Start()

	m.Record(rec(1))
	m.Stop()

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MirrorFailures))
}

func TestMirror_WithLog(t *testing.T) {
	w := &fakeBatchWriter{}
	metrics := NewMetrics(prometheus.NewRegistry())
	m := NewMirror(w, 10, time.Hour, metrics, zap.NewNop())
	m.Start()

	l, _ := newTestLog(t, WithMirror(m))
	appendAliceSession(l)
	m.Stop()

	require.Len(t, w.batches, 1)
	fromFile, err := l.Query(context.Background(), domain.AuditFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, fromFile, 3)
	// File is newest first; the mirror keeps append order.
	assert.Equal(t, fromFile[2].ID, w.batches[0][0].ID)
	assert.Equal(t, fromFile[0].ID, w.batches[0][2].ID)
}
