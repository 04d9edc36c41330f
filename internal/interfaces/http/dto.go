package http

import (
	"github.com/garyjia/pmajay-coordination/internal/application/workflow"
	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
)

// Response is the success envelope. Failures are problem documents instead.
type Response struct {
	Success  bool               `json:"success"`
	Data     interface{}        `json:"data,omitempty"`
	Warnings []workflow.Warning `json:"warnings,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Error     string `json:"error,omitempty"`
}

// TransitionResponse is the data of every workflow command
type TransitionResponse struct {
	Workflow        *entity.WorkflowState `json:"workflow"`
	NotificationIDs []string              `json:"notification_ids,omitempty"`
}

// InitializeRequest is sent by the project registry after persisting a project
type InitializeRequest struct {
	ProjectID            string `json:"project_id" binding:"required,max=64"`
	ImplementingAgencyID string `json:"implementing_agency_id" binding:"required"`
}

// DecisionRequest carries a nodal agency's approve or reject decision
type DecisionRequest struct {
	AgencyID string `json:"agency_id" binding:"required"`
	Notes    string `json:"notes" binding:"max=2000"`
}

// StartRequest identifies the executing agency starting work
type StartRequest struct {
	AgencyID string `json:"agency_id" binding:"required"`
}

// ProgressRequest is an executing agency's progress report
type ProgressRequest struct {
	AgencyID   string `json:"agency_id" binding:"required"`
	Completion *int   `json:"completion" binding:"required"`
	Summary    string `json:"summary" binding:"max=2000"`
}

// CompleteRequest carries the monitoring agency's final report
type CompleteRequest struct {
	AgencyID    string `json:"agency_id" binding:"required"`
	FinalReport string `json:"final_report"`
}

// CreateAgencyRequest registers an agency in the directory
type CreateAgencyRequest struct {
	ID         string `json:"id" binding:"required,max=64"`
	Name       string `json:"name" binding:"required,max=200"`
	Type       string `json:"type" binding:"required,oneof=Implementing Nodal Executing Monitoring"`
	Region     string `json:"region" binding:"max=100"`
	ChatOpenID string `json:"chat_open_id" binding:"max=128"`
}

// ListAgenciesRequest filters the directory listing
type ListAgenciesRequest struct {
	Type   string `form:"type" binding:"omitempty,oneof=Implementing Nodal Executing Monitoring"`
	Region string `form:"region"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
}
