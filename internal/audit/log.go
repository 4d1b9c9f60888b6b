package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/xela07ax/workflow-acl/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultQueryLimit = 100

	// summaryScanLimit bounds how many of a user's latest records Summarize looks at.
	summaryScanLimit = 1000

	// maxLineSize bounds one stored record. Larger records are refused on append and
	// skipped as corrupt on read.
	maxLineSize = 1 << 20

	// maxWindowDays caps day-based windows. Anything longer reaches back to the zero time.
	maxWindowDays = 100 * 366

	lockRetryDelay = 10 * time.Millisecond
)

var errRecordTooLarge = errors.New("record exceeds maximum line size")

// Recorder receives a copy of every appended record (see Mirror).
type Recorder interface {
	Record(rec domain.AuditRecord)
}

// Log is the append-only audit trail: one JSON object per line in a single file.
//
// Appends and prunes hold the write lock, so lines are never interleaved and a reader
// never sees a half-rewritten file; queries hold the read lock. Appends and prunes also
// take an advisory lock on <path>.lock, which keeps the console and the retention job
// from losing each other's writes when both work on the same file.
type Log struct {
	mu    sync.RWMutex
	path  string
	flock *flock.Flock

	now     func() time.Time
	mirror  Recorder
	metrics *Metrics
	logger  *zap.Logger
}

type Option func(*Log)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithMirror forwards every appended record to r.
func WithMirror(r Recorder) Option {
	return func(l *Log) { l.mirror = r }
}

func WithMetrics(m *Metrics) Option {
	return func(l *Log) { l.metrics = m }
}

func NewLog(path string, logger *zap.Logger, opts ...Option) *Log {
	l := &Log{
		path:   path,
		flock:  flock.New(path + ".lock"),
		now:    time.Now,
		logger: logger.Named("audit-log"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = NewMetrics(nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		l.logger.Warn("audit log directory unavailable", zap.String("path", path), zap.Error(err))
	}
	return l
}

func (l *Log) Path() string { return l.path }

// Append stamps the record with the current time and a fresh id, writes it and syncs
// the file before returning. An empty username is stored as domain.UnknownUser. The
// returned record is what was stored.
//
// It never fails towards the caller: an unwritable log or a record larger than
// maxLineSize is reported through the logger and the write-failure counter.
func (l *Log) Append(rec domain.AuditRecord) domain.AuditRecord {
	rec.ID = uuid.NewString()
	rec.Timestamp = l.now()
	if rec.Username == "" {
		rec.Username = domain.UnknownUser
	}

	if err := l.write(rec); err != nil {
		l.metrics.WriteFailures.Inc()
		l.logger.Warn("audit record not persisted",
			zap.String("username", rec.Username),
			zap.String("action", string(rec.Action)),
			zap.String("status", string(rec.Status)),
			zap.Error(err))
	} else {
		l.metrics.Appends.WithLabelValues(string(rec.Action), string(rec.Status)).Inc()
	}

	if l.mirror != nil {
		l.mirror.Record(rec)
	}
	return rec
}

func (l *Log) write(rec domain.AuditRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if len(line) > maxLineSize {
		return fmt.Errorf("%d bytes: %w", len(line), errRecordTooLarge)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("lock audit log: %w", err)
	}
	defer l.unlockFile()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("write audit log: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync audit log: %w", err)
	}
	return f.Close()
}

// Query returns at most limit matching records, most recent first.
// limit <= 0 means DefaultQueryLimit. A log that does not exist yet is empty.
func (l *Log) Query(ctx context.Context, filter domain.AuditFilter, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	// Keep only the newest `limit` matches while scanning.
	tail := make([]domain.AuditRecord, 0, limit)
	err := l.scan(ctx, func(rec domain.AuditRecord, _ []byte) {
		if !filter.Match(rec) {
			return
		}
		if len(tail) == 2*limit {
			tail = append(tail[:0], tail[limit:]...)
		}
		tail = append(tail, rec)
	})
	if err != nil {
		return nil, err
	}

	if len(tail) > limit {
		tail = tail[len(tail)-limit:]
	}
	out := make([]domain.AuditRecord, len(tail))
	for i, rec := range tail {
		out[len(tail)-1-i] = rec
	}
	return out, nil
}

// Summarize aggregates the user's records whose timestamp lies in [now-windowDays, now].
func (l *Log) Summarize(ctx context.Context, username string, windowDays int) (domain.ActivitySummary, error) {
	sum := domain.ActivitySummary{
		Username:         username,
		ActionsBreakdown: make(map[domain.AuditAction]int),
		WindowDays:       windowDays,
	}

	records, err := l.Query(ctx, domain.AuditFilter{Username: username}, summaryScanLimit)
	if err != nil {
		return sum, err
	}

	now := l.now()
	from := windowStart(now, windowDays)
	workflows := make(map[string]struct{})
	for _, rec := range records {
		if rec.Timestamp.Before(from) || rec.Timestamp.After(now) {
			continue
		}
		sum.TotalActions++
		sum.ActionsBreakdown[rec.Action]++
		if rec.WorkflowID != "" {
			workflows[rec.WorkflowID] = struct{}{}
		}
	}
	sum.DistinctWorkflowsAccessed = len(workflows)
	return sum, nil
}

// Prune rewrites the log keeping only records newer than now-retentionDays and returns
// how many were removed. The new content is written to a temporary file next to the log
// and renamed over it. Unparseable lines are dropped without being counted.
func (l *Log) Prune(ctx context.Context, retentionDays int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ok, err := l.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return 0, fmt.Errorf("lock audit log: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("lock audit log: %w", ctx.Err())
	}
	defer l.unlockFile()

	cutoff := windowStart(l.now(), retentionDays)

	var kept [][]byte
	removed := 0
	err = l.scan(ctx, func(rec domain.AuditRecord, raw []byte) {
		if rec.Timestamp.After(cutoff) {
			kept = append(kept, raw)
			return
		}
		removed++
	})
	if err != nil {
		return 0, err
	}
	if _, err := os.Stat(l.path); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	if err := l.replace(kept); err != nil {
		return 0, err
	}

	l.metrics.Pruned.Add(float64(removed))
	l.logger.Info("audit log pruned",
		zap.Int("retention_days", retentionDays),
		zap.Int("removed", removed),
		zap.Int("kept", len(kept)))
	return removed, nil
}

// scan calls fn for every parseable line. The raw slice is a copy owned by fn.
func (l *Log) scan(ctx context.Context, fn func(rec domain.AuditRecord, raw []byte)) error {
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	var buf []byte
	for n := 0; ; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		line, oversized, rerr := readLine(r, buf[:0])
		buf = line
		switch {
		case oversized:
			l.metrics.CorruptLines.Inc()
			l.logger.Debug("skipping oversized audit line", zap.Int("line", n+1))
		case len(line) > 0:
			var rec domain.AuditRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				l.metrics.CorruptLines.Inc()
				l.logger.Debug("skipping corrupt audit line", zap.Int("line", n+1), zap.Error(err))
				break
			}
			raw := make([]byte, len(line))
			copy(raw, line)
			fn(rec, raw)
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("read audit log: %w", rerr)
		}
	}
}

// readLine reads one line into buf without its trailing newline. A line longer than
// maxLineSize is consumed to its end and reported as oversized instead of returned.
func readLine(r *bufio.Reader, buf []byte) ([]byte, bool, error) {
	oversized := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(chunk) > maxLineSize+1 {
				oversized = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if oversized {
			return buf, true, err
		}
		line := bytes.TrimSuffix(buf, []byte{'\n'})
		if len(line) > maxLineSize {
			return buf[:0], true, err
		}
		return line, false, err
	}
}

// windowStart returns now minus days, clamped so that huge windows reach back to the
// zero time instead of overflowing.
func windowStart(now time.Time, days int) time.Time {
	if days > maxWindowDays {
		return time.Time{}
	}
	if days < 0 {
		days = 0
	}
	return now.AddDate(0, 0, -days)
}

func (l *Log) unlockFile() {
	if err := l.flock.Unlock(); err != nil {
		l.logger.Warn("audit log unlock failed", zap.String("lock", l.flock.Path()), zap.Error(err))
	}
}

func (l *Log) replace(lines [][]byte) (err error) {
	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp audit log: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err = w.Write(line); err != nil {
			return fmt.Errorf("write temp audit log: %w", err)
		}
		if err = w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write temp audit log: %w", err)
		}
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("flush temp audit log: %w", err)
	}
	if err = tmp.Chmod(0o640); err != nil {
		return fmt.Errorf("chmod temp audit log: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp audit log: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp audit log: %w", err)
	}
	if err = os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("swap audit log: %w", err)
	}

	if d, derr := os.Open(dir); derr == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
