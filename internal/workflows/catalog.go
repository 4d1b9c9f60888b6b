package workflows

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/workflow-acl/internal/domain"
)

const DefaultExecutionsLimit = 10

// Catalog is an in-memory Source. It backs the console when no platform is reachable
// and is the fixture for tests.
type Catalog struct {
	mu         sync.RWMutex
	workflows  []domain.Workflow
	executions map[string][]domain.Execution
}

func NewCatalog(wfs []domain.Workflow, execs map[string][]domain.Execution) *Catalog {
	c := &Catalog{
		workflows:  make([]domain.Workflow, len(wfs)),
		executions: make(map[string][]domain.Execution, len(execs)),
	}
	for i, wf := range wfs {
		c.workflows[i] = cloneWorkflow(wf)
	}
	for id, list := range execs {
		c.executions[id] = append([]domain.Execution(nil), list...)
	}
	return c
}

func (c *Catalog) ListWorkflows(_ context.Context) ([]domain.Workflow, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Workflow, len(c.workflows))
	for i, wf := range c.workflows {
		out[i] = cloneWorkflow(wf)
	}
	return out, nil
}

// ListExecutions returns the most recent executions first. limit <= 0 means DefaultExecutionsLimit.
func (c *Catalog) ListExecutions(_ context.Context, workflowID string, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = DefaultExecutionsLimit
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.index(workflowID) < 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}
	list := append([]domain.Execution(nil), c.executions[workflowID]...)
	sort.SliceStable(list, func(i, j int) bool { return list[i].StartedAt.After(list[j].StartedAt) })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (c *Catalog) SetActive(_ context.Context, workflowID string, active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(workflowID)
	if i < 0 {
		return fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}
	c.workflows[i].Active = active
	return nil
}

// Trigger is not supported: the platform API has no generic manual trigger, workflows
// start through their own webhooks.
func (c *Catalog) Trigger(_ context.Context, workflowID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.index(workflowID) < 0 {
		return fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}
	return domain.ErrTriggerUnsupported
}

func (c *Catalog) index(id string) int {
	for i, wf := range c.workflows {
		if wf.ID == id {
			return i
		}
	}
	return -1
}

func cloneWorkflow(wf domain.Workflow) domain.Workflow {
	wf.Tags = append([]string(nil), wf.Tags...)
	wf.Nodes = append([]domain.Node(nil), wf.Nodes...)
	return wf
}

// SampleWorkflows is the demo catalog the console starts with.
func SampleWorkflows() []domain.Workflow {
	return []domain.Workflow{
		{
			ID:     "wf1",
			Name:   "Kelly Demo Workflow 1",
			Tags:   []string{"Kelly"},
			Active: true,
			Nodes: []domain.Node{
				{Name: "Start", Type: "n8n-nodes-base.start"},
				{Name: "HTTP Request", Type: "n8n-nodes-base.httpRequest"},
			},
		},
		{
			ID:     "wf2",
			Name:   "Kelly Demo Workflow 2",
			Tags:   []string{"Kelly"},
			Active: false,
			Nodes: []domain.Node{
				{Name: "Start", Type: "n8n-nodes-base.start"},
				{Name: "Set", Type: "n8n-nodes-base.set"},
			},
		},
	}
}

func SampleExecutions() map[string][]domain.Execution {
	at := func(h, m, s int) time.Time { return time.Date(2026, 2, 3, h, m, s, 0, time.UTC) }
	ptr := func(t time.Time) *time.Time { return &t }

	return map[string][]domain.Execution{
		"wf1": {
			{ID: "exe1", WorkflowID: "wf1", Status: domain.ExecutionSuccess, StartedAt: at(10, 0, 0), FinishedAt: ptr(at(10, 0, 10)),
				Data: map[string]interface{}{"output": "Hello World"}},
			{ID: "exe2", WorkflowID: "wf1", Status: domain.ExecutionFailed, StartedAt: at(11, 0, 0), FinishedAt: ptr(at(11, 0, 5)),
				Data: map[string]interface{}{"error": "Something went wrong"}},
		},
		"wf2": {
			{ID: "exe3", WorkflowID: "wf2", Status: domain.ExecutionSuccess, StartedAt: at(12, 0, 0), FinishedAt: ptr(at(12, 0, 8)),
				Data: map[string]interface{}{"output": "Demo"}},
		},
	}
}
