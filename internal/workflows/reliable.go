package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/workflow-acl/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ReliabilityConfig struct {
	RateLimit     float64 // requests per second, <= 0 disables the limiter
	RateBurst     int
	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
	Attempts      uint
	CallTimeout   time.Duration
}

func DefaultReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		RateLimit:     50,
		RateBurst:     10,
		CBMaxRequests: 3,
		CBInterval:    60 * time.Second,
		CBTimeout:     30 * time.Second,
		Attempts:      3,
		CallTimeout:   10 * time.Second,
	}
}

// ReliableSource guards a Source: rate limiter, then circuit breaker, then retries with
// exponential backoff. A ThrottleError from the platform sets the next delay.
//
// Not-found and unsupported-trigger answers are final: they are neither retried nor
// counted against the breaker.
type ReliableSource struct {
	next    Source
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	cfg     ReliabilityConfig
	metrics *Metrics
	logger  *zap.Logger
}

func NewReliableSource(next Source, cfg ReliabilityConfig, metrics *Metrics, logger *zap.Logger) *ReliableSource {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	logger = logger.Named("workflow-source")

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "workflow-source",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isFinal(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.Set(float64(to))
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &ReliableSource{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(limit, cfg.RateBurst),
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *ReliableSource) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	var out []domain.Workflow
	err := s.call(ctx, "list_workflows", func(ctx context.Context) (err error) {
		out, err = s.next.ListWorkflows(ctx)
		return err
	})
	return out, err
}

func (s *ReliableSource) ListExecutions(ctx context.Context, workflowID string, limit int) ([]domain.Execution, error) {
	var out []domain.Execution
	err := s.call(ctx, "list_executions", func(ctx context.Context) (err error) {
		out, err = s.next.ListExecutions(ctx, workflowID, limit)
		return err
	})
	return out, err
}

func (s *ReliableSource) SetActive(ctx context.Context, workflowID string, active bool) error {
	return s.call(ctx, "set_active", func(ctx context.Context) error {
		return s.next.SetActive(ctx, workflowID, active)
	})
}

func (s *ReliableSource) Trigger(ctx context.Context, workflowID string) error {
	return s.call(ctx, "trigger", func(ctx context.Context) error {
		return s.next.Trigger(ctx, workflowID)
	})
}

func (s *ReliableSource) call(ctx context.Context, op string, fn func(ctx context.Context) error) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.CallDuration.WithLabelValues(op, outcome(err)).Observe(time.Since(start).Seconds())
	}()

	if err := s.limiter.Wait(ctx); err != nil {
		s.metrics.Throttled.Inc()
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// The last error of fn, so final answers reach the caller unwrapped.
	var lastErr error
	_, err = s.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(s.cfg.Attempts),
			retry.RetryIf(func(err error) bool { return !isFinal(err) }),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			cctx := ctx
			if s.cfg.CallTimeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
				defer cancel()
			}
			lastErr = fn(cctx)
			return lastErr
		})
		if retryErr != nil && isFinal(lastErr) {
			return nil, lastErr
		}
		return nil, retryErr
	})
	if err != nil {
		if !isFinal(err) {
			s.logger.Warn("workflow platform call failed", zap.String("op", op), zap.Error(err))
		}
		return err
	}
	return nil
}

func isFinal(err error) bool {
	return errors.Is(err, domain.ErrWorkflowNotFound) || errors.Is(err, domain.ErrTriggerUnsupported)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isFinal(err):
		return "rejected"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	default:
		return "error"
	}
}
