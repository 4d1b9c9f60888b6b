package domain

import "errors"

var (
	ErrAccessDenied       = errors.New("access denied")
	ErrWorkflowNotFound   = errors.New("workflow not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTriggerUnsupported = errors.New("workflow has no manual trigger")
)
