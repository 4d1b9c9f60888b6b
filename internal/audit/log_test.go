package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
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

// fakeClock hands out strictly increasing timestamps so ordering is deterministic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestLog(t *testing.T, opts ...Option) (*Log, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	return NewLog(path, zap.NewNop(), append([]Option{WithMetrics(m)}, opts...)...), m
}

func appendAliceSession(l *Log) {
	l.Append(domain.AuditRecord{Username: "alice", Action: domain.ActionLogin, Status: domain.AuditSuccess})
	l.Append(domain.AuditRecord{
		Username:     "alice",
		Action:       domain.ActionExecuteWorkflow,
		WorkflowID:   "wf1",
		WorkflowName: "Kelly Data Sync",
		Status:       domain.AuditSuccess,
	})
	l.Append(domain.AuditRecord{Username: "alice", Action: domain.ActionLogout, Status: domain.AuditSuccess})
}

func TestLog_QueryMostRecentFirst(t *testing.T) {
	l, _ := newTestLog(t)
	appendAliceSession(l)
	l.Append(domain.AuditRecord{Username: "bob", Action: domain.ActionLogin, Status: domain.AuditSuccess})

	got, err := l.Query(context.Background(), domain.AuditFilter{Username: "alice"}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.ActionLogout, got[0].Action)
	assert.Equal(t, domain.ActionExecuteWorkflow, got[1].Action)
}

func TestLog_Summarize(t *testing.T) {
	l, _ := newTestLog(t)
	appendAliceSession(l)

	sum, err := l.Summarize(context.Background(), "alice", 7)
	require.NoError(t, err)

	assert.Equal(t, "alice", sum.Username)
	assert.Equal(t, 3, sum.TotalActions)
	assert.Equal(t, map[domain.AuditAction]int{
		domain.ActionLogin:           1,
		domain.ActionExecuteWorkflow: 1,
		domain.ActionLogout:          1,
	}, sum.ActionsBreakdown)
	assert.Equal(t, 1, sum.DistinctWorkflowsAccessed)
	assert.Equal(t, 7, sum.WindowDays)
}

func TestLog_SummarizeWindow(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	l, _ := newTestLog(t, WithClock(clock.Now))

	l.Append(domain.AuditRecord{Username: "alice", Action: domain.ActionViewWorkflow, WorkflowID: "wf1", Status: domain.AuditSuccess})
	clock.Set(time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC))
	l.Append(domain.AuditRecord{Username: "alice", Action: domain.ActionViewWorkflow, WorkflowID: "wf2", Status: domain.AuditSuccess})
	l.Append(domain.AuditRecord{Username: "alice", Action: domain.ActionViewWorkflow, WorkflowID: "wf2", Status: domain.AuditDenied})

	sum, err := l.Summarize(context.Background(), "alice", 7)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalActions)
	assert.Equal(t, 1, sum.DistinctWorkflowsAccessed)

	all, err := l.Summarize(context.Background(), "alice", math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, 3, all.TotalActions)
	assert.Equal(t, 2, all.DistinctWorkflowsAccessed)

	empty, err := l.Summarize(context.Background(), "nobody", 7)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalActions)
	assert.NotNil(t, empty.ActionsBreakdown)
}

func TestLog_AppendRoundTrip(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC))
	l, m := newTestLog(t, WithClock(clock.Now))

	in := domain.AuditRecord{
		Username:     "kelly",
		Action:       domain.ActionActivateWorkflow,
		WorkflowID:   "wf2",
		WorkflowName: "Kelly Report Generator",
		Status:       domain.AuditSuccess,
		Details:      map[string]interface{}{"source": "console", "attempt": float64(2)},
	}
	stamped := l.Append(in)
	require.NotEmpty(t, stamped.ID)
	require.False(t, stamped.Timestamp.IsZero())

	got, err := l.Query(context.Background(), domain.AuditFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Only the id and timestamp are assigned; everything else is stored as given.
	assert.Equal(t, stamped.ID, got[0].ID)
	assert.True(t, stamped.Timestamp.Equal(got[0].Timestamp))
	assert.Equal(t, in.Username, got[0].Username)
	assert.Equal(t, in.Action, got[0].Action)
	assert.Equal(t, in.WorkflowID, got[0].WorkflowID)
	assert.Equal(t, in.WorkflowName, got[0].WorkflowName)
	assert.Equal(t, in.Status, got[0].Status)
	assert.Equal(t, in.Details, got[0].Details)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Appends.WithLabelValues("activate_workflow", "success")))
}

func TestLog_AppendWireFormat(t *testing.T) {
	l, _ := newTestLog(t)
	l.Append(domain.AuditRecord{Username: "sales", Action: domain.ActionViewWorkflow, WorkflowID: "wf1", Status: domain.AuditDenied})

	raw, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(raw), "\n"))

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &fields))
	for _, k := range []string{"id", "timestamp", "username", "action", "workflow_id", "status"} {
		assert.Contains(t, fields, k)
	}
	_, err = time.Parse(time.RFC3339Nano, fields["timestamp"].(string))
	assert.NoError(t, err)
}

func TestLog_EmptyUsernameBecomesUnknown(t *testing.T) {
	l, _ := newTestLog(t)
	rec := l.Append(domain.AuditRecord{Action: domain.ActionLogin, Status: domain.AuditFailed})
	assert.Equal(t, domain.UnknownUser, rec.Username)

	got, err := l.Query(context.Background(), domain.AuditFilter{Username: domain.UnknownUser}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
}

func TestLog_OversizedRecordRefused(t *testing.T) {
	l, m := newTestLog(t)
	appendAliceSession(l)

	rec := l.Append(domain.AuditRecord{
		Username: "alice",
		Action:   domain.ActionExecuteWorkflow,
		Status:   domain.AuditSuccess,
		Details:  map[string]interface{}{"blob": strings.Repeat("x", 2<<20)},
	})
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WriteFailures))

	got, err := l.Query(context.Background(), domain.AuditFilter{Username: "alice"}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestLog_OversizedLineSkipped(t *testing.T) {
	l, m := newTestLog(t)
	appendAliceSession(l)

	// A line past the size limit, as left by an older writer or a manual edit.
	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0o640)
	require.NoError(t, err)
	_, err = f.WriteString(`{"username":"alice","details":"` + strings.Repeat("x", 2<<20) + "\"}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	l.Append(domain.AuditRecord{Username: "alice", Action: domain.ActionLogin, Status: domain.AuditSuccess})

	got, err := l.Query(context.Background(), domain.AuditFilter{Username: "alice"}, 0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, domain.ActionLogin, got[0].Action)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorruptLines))

	sum, err := l.Summarize(context.Background(), "alice", 7)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.TotalActions)

	n, err := l.Prune(context.Background(), 30)
	require.NoError(t, err)
	assert.Zero(t, n)

	info, err := os.Stat(l.Path())
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(maxLineSize), "oversized line dropped by the rewrite")
}

func TestLog_OversizedLastLineWithoutNewline(t *testing.T) {
	l, m := newTestLog(t)
	appendAliceSession(l)

	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0o640)
	require.NoError(t, err)
	_, err = f.WriteString(strings.Repeat("y", maxLineSize+10))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := l.Query(context.Background(), domain.AuditFilter{}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorruptLines))
}

// Two Log values on one path stand for the console and the retention job.
func TestLog_SharedFileAppendDuringPrune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	console := NewLog(path, zap.NewNop(), WithMetrics(NewMetrics(prometheus.NewRegistry())))
	job := NewLog(path, zap.NewNop(), WithMetrics(NewMetrics(prometheus.NewRegistry())))

	const total = 300
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			console.Append(domain.AuditRecord{Username: "alice", Action: domain.ActionViewWorkflow, Status: domain.AuditSuccess})
		}
	}()

	prunes := 0
	for running := true; running; prunes++ {
		select {
		case <-done:
			running = false
		default:
		}
		n, err := job.Prune(context.Background(), math.MaxInt)
		require.NoError(t, err)
		require.Zero(t, n)
	}
	require.Positive(t, prunes)

	got, err := console.Query(context.Background(), domain.AuditFilter{}, 2*total)
	require.NoError(t, err)
	assert.Len(t, got, total)
}

func TestLog_PruneCancelledWhileLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	holder := NewLog(path, zap.NewNop())
	l := NewLog(path, zap.NewNop())
	appendAliceSession(l)

	require.NoError(t, holder.flock.Lock())
	defer holder.flock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := l.Prune(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, holder.flock.Unlock())
	n, err := l.Prune(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLog_QueryFilters(t *testing.T) {
	l, _ := newTestLog(t)
	appendAliceSession(l)
	l.Append(domain.AuditRecord{Username: "bob", Action: domain.ActionLogin, Status: domain.AuditFailed})

	tests := []struct {
		name   string
		filter domain.AuditFilter
		limit  int
		want   int
	}{
		{"all", domain.AuditFilter{}, 0, 4},
		{"by user", domain.AuditFilter{Username: "bob"}, 10, 1},
		{"by action", domain.AuditFilter{Action: domain.ActionLogin}, 10, 2},
		{"user and action", domain.AuditFilter{Username: "alice", Action: domain.ActionLogin}, 10, 1},
		{"no match", domain.AuditFilter{Username: "carol"}, 10, 0},
		{"limit", domain.AuditFilter{}, 3, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := l.Query(context.Background(), tc.filter, tc.limit)
			require.NoError(t, err)
			assert.Len(t, got, tc.want)
		})
	}
}

func TestLog_QueryLongLog(t *testing.T) {
	l, _ := newTestLog(t)
	for i := 0; i < 250; i++ {
		l.Append(domain.AuditRecord{Username: "alice", Action: domain.ActionViewWorkflow, WorkflowID: fmt.Sprintf("wf%d", i), Status: domain.AuditSuccess})
	}

	got, err := l.Query(context.Background(), domain.AuditFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, got, DefaultQueryLimit)
	assert.Equal(t, "wf249", got[0].WorkflowID)
	assert.Equal(t, "wf150", got[DefaultQueryLimit-1].WorkflowID)
}

func TestLog_MissingFile(t *testing.T) {
	l, _ := newTestLog(t)

	got, err := l.Query(context.Background(), domain.AuditFilter{}, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := l.Prune(context.Background(), 30)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoFileExists(t, l.Path())
}

func TestLog_CorruptLinesSkipped(t *testing.T) {
	l, m := newTestLog(t)
	l.Append(domain.AuditRecord{Username: "alice", Action: domain.ActionLogin, Status: domain.AuditSuccess})

	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0o640)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n\n[1,2]\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	l.Append(domain.AuditRecord{Username: "alice", Action: domain.ActionLogout, Status: domain.AuditSuccess})

	got, err := l.Query(context.Background(), domain.AuditFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.ActionLogout, got[0].Action)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CorruptLines))
}

func TestLog_Prune(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l, m := newTestLog(t, WithClock(clock.Now))

	l.Append(domain.AuditRecord{Username: "alice", Action: domain.ActionLogin, Status: domain.AuditSuccess})
	l.Append(domain.AuditRecord{Username: "bob", Action: domain.ActionLogin, Status: domain.AuditSuccess})
	clock.Set(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	l.Append(domain.AuditRecord{Username: "alice", Action: domain.ActionLogout, Status: domain.AuditSuccess})

	// A corrupt line is dropped by the rewrite but not counted.
	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0o640)
	require.NoError(t, err)
	_, err = f.WriteString("garbage\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	n, err := l.Prune(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Pruned))

	got, err := l.Query(context.Background(), domain.AuditFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ActionLogout, got[0].Action)

	raw, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "garbage")

	entries, err := os.ReadDir(filepath.Dir(l.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temporary file left behind: %s", e.Name())
	}
}

func TestLog_PruneBounds(t *testing.T) {
	t.Run("zero days removes everything up to now", func(t *testing.T) {
		l, _ := newTestLog(t)
		appendAliceSession(l)

		n, err := l.Prune(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		got, err := l.Query(context.Background(), domain.AuditFilter{}, 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	for _, days := range []int{1_000_000, math.MaxInt32, maxWindowDays + 1, math.MaxInt} {
		t.Run(fmt.Sprintf("retention of %d days keeps everything", days), func(t *testing.T) {
			l, _ := newTestLog(t)
			appendAliceSession(l)

			n, err := l.Prune(context.Background(), days)
			require.NoError(t, err)
			assert.Zero(t, n)

			got, err := l.Query(context.Background(), domain.AuditFilter{}, 10)
			require.NoError(t, err)
			assert.Len(t, got, 3)
		})
	}

	t.Run("negative retention behaves like zero", func(t *testing.T) {
		l, _ := newTestLog(t)
		appendAliceSession(l)

		n, err := l.Prune(context.Background(), math.MinInt)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestLog_PruneThenAppend(t *testing.T) {
	l, _ := newTestLog(t)
	appendAliceSession(l)

	_, err := l.Prune(context.Background(), 0)
	require.NoError(t, err)
	l.Append(domain.AuditRecord{Username: "alice", Action: domain.ActionLogin, Status: domain.AuditSuccess})

	got, err := l.Query(context.Background(), domain.AuditFilter{}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestLog_UnwritablePathDoesNotFail(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o640))

	m := NewMetrics(prometheus.NewRegistry())
	l := NewLog(filepath.Join(blocker, "audit.jsonl"), zap.NewNop(), WithMetrics(m))

	var rec domain.AuditRecord
	assert.NotPanics(t, func() {
		rec = l.Append(domain.AuditRecord{Username: "alice", Action: domain.ActionLogin, Status: domain.AuditSuccess})
	})
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WriteFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Appends.WithLabelValues("login", "success")))
}

func TestLog_ConcurrentAppends(t *testing.T) {
	l, _ := newTestLog(t)

	const workers, perWorker = 10, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				l.Append(domain.AuditRecord{
					Username: fmt.Sprintf("user%d", w),
					Action:   domain.ActionViewWorkflow,
					Status:   domain.AuditSuccess,
					Details:  map[string]interface{}{"payload": strings.Repeat("x", 512)},
				})
			}
		}(w)
	}

	// Readers run alongside the writers.
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Query(context.Background(), domain.AuditFilter{}, 50)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	raw, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	require.Len(t, lines, workers*perWorker)

	ids := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		var rec domain.AuditRecord
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		ids[rec.ID] = struct{}{}
	}
	assert.Len(t, ids, workers*perWorker)
}

type recorderFunc func(domain.AuditRecord)

func (f recorderFunc) Record(rec domain.AuditRecord) { f(rec) }

func TestLog_ForwardsToMirror(t *testing.T) {
	var got []domain.AuditRecord
	l, _ := newTestLog(t, WithMirror(recorderFunc(func(rec domain.AuditRecord) {
		got = append(got, rec)
	})))

	rec := l.Append(domain.AuditRecord{Username: "alice", Action: domain.ActionLogin, Status: domain.AuditSuccess})

	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
}

func TestLog_QueryCancelled(t *testing.T) {
	l, _ := newTestLog(t)
	appendAliceSession(l)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Query(ctx, domain.AuditFilter{}, 10)
	assert.ErrorIs(t, err, context.Canceled)
}
