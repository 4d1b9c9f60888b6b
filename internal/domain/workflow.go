package domain

import "time"

// Workflow is the resource descriptor as returned by the automation platform.
// The access core only reads Tags; ID and Name go into audit records.
type Workflow struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Tags   []string `json:"tags"`
	Active bool     `json:"active"`
	Nodes  []Node   `json:"nodes"`
}

type Node struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionRunning ExecutionStatus = "running"
)

type Execution struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflow_id"`
	Status     ExecutionStatus        `json:"status"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"` // nil while running
	Data       map[string]interface{} `json:"data,omitempty"`
}

// TagGroup holds workflows that share one tag, for the tag-grouped dashboard listing.
type TagGroup struct {
	Tag       string     `json:"tag"`
	Workflows []Workflow `json:"workflows"`
}
