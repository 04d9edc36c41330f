package workflow

import (
	"context"

	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
	domainwf "github.com/garyjia/pmajay-coordination/internal/domain/workflow"
)

// WorkflowEngine moves projects through the coordination lifecycle.
// Every transition returns the committed state plus any non-fatal warnings;
// failures are *Error values carrying a Kind.
type WorkflowEngine interface {
	// Initialize creates the workflow for a newly persisted project and
	// notifies the region's nodal agency.
	Initialize(ctx context.Context, projectID, implementingAgencyID string) (*Result, error)

	Approve(ctx context.Context, projectID, nodalAgencyID, notes string) (*Result, error)
	Reject(ctx context.Context, projectID, nodalAgencyID, notes string) (*Result, error)
	StartExecution(ctx context.Context, projectID, executingAgencyID string) (*Result, error)
	UpdateProgress(ctx context.Context, projectID, executingAgencyID string, progress ProgressInput) (*Result, error)
	Complete(ctx context.Context, projectID, monitoringAgencyID, finalReport string) (*Result, error)

	// Resume retries agency resolution for a stalled workflow
	Resume(ctx context.Context, projectID string) (*Result, error)

	GetWorkflow(ctx context.Context, projectID string) (*entity.WorkflowState, error)
	ListWorkflows(ctx context.Context, filter ListFilter) ([]*entity.WorkflowState, error)
	ListPending(ctx context.Context, agencyID string) ([]*entity.WorkflowState, error)
	GetStats(ctx context.Context) (*Stats, error)
}

// Result is the outcome of a successful transition
type Result struct {
	State           *entity.WorkflowState `json:"state"`
	Warnings        []Warning             `json:"warnings,omitempty"`
	NotificationIDs []string              `json:"notification_ids,omitempty"`
}

// HasWarning reports whether the result carries a warning of the given kind
func (r *Result) HasWarning(kind WarningKind) bool {
	for _, w := range r.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

// ProgressInput is the executing agency's progress report
type ProgressInput struct {
	Completion int    `json:"completion"`
	Summary    string `json:"summary"`
}

// ListFilter narrows ListWorkflows. An empty AgencyID lists everything.
type ListFilter struct {
	AgencyID string
}

// Stats aggregates workflow records
type Stats struct {
	Total            int                    `json:"total"`
	PendingApprovals int                    `json:"pending_approvals"`
	InExecution      int                    `json:"in_execution"`
	Completed        int                    `json:"completed"`
	SuccessRate      float64                `json:"success_rate"`
	ByStage          map[domainwf.Stage]int `json:"by_stage"`
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
