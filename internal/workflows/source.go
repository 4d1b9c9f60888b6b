package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/workflow-acl/internal/domain"
)

// Source is the automation platform as seen by the console. Implementations return
// domain.ErrWorkflowNotFound for unknown ids.
type Source interface {
	ListWorkflows(ctx context.Context) ([]domain.Workflow, error)
	ListExecutions(ctx context.Context, workflowID string, limit int) ([]domain.Execution, error)
	SetActive(ctx context.Context, workflowID string, active bool) error
	Trigger(ctx context.Context, workflowID string) error
}

// Find looks a single workflow up through ListWorkflows.
func Find(ctx context.Context, src Source, id string) (domain.Workflow, error) {
	all, err := src.ListWorkflows(ctx)
	if err != nil {
		return domain.Workflow{}, err
	}
	for _, wf := range all {
		if wf.ID == id {
			return wf, nil
		}
	}
	return domain.Workflow{}, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, id)
}

// ThrottleError is returned by a Source that was told to back off.
// ReliableSource waits RetryAfter before the next attempt.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
