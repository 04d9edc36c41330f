package entity

import "time"

// NotificationType classifies inter-agency messages
type NotificationType string

const (
	NotificationQuery           NotificationType = "Query"
	NotificationUpdate          NotificationType = "Update"
	NotificationApprovalRequest NotificationType = "ApprovalRequest"
	NotificationFundRequest     NotificationType = "FundRequest"
	NotificationIssueReport     NotificationType = "IssueReport"
	NotificationCoordination    NotificationType = "Coordination"
	NotificationDirective       NotificationType = "Directive"
)

// Priority of an inter-agency message
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// Notification delivery statuses
const (
	NotificationStatusRecorded = "RECORDED"
	NotificationStatusPending  = "PENDING"
	NotificationStatusRelayed  = "RELAYED"
	NotificationStatusSkipped  = "SKIPPED"
	NotificationStatusFailed   = "FAILED"
)

// NotificationIntent is a directed message a transition wants delivered
type NotificationIntent struct {
	From      string           `json:"from_agency" validate:"required"`
	To        string           `json:"to_agency" validate:"required,nefield=From"`
	ProjectID string           `json:"project_id" validate:"required"`
	Type      NotificationType `json:"type" validate:"required,oneof=Query Update ApprovalRequest FundRequest IssueReport Coordination Directive"`
	Subject   string           `json:"subject" validate:"required,max=200"`
	Message   string           `json:"message" validate:"required"`
	Priority  Priority         `json:"priority" validate:"required,oneof=Low Medium High Critical"`
}

// Notification is a recorded inter-agency message
type Notification struct {
	ID          string           `json:"id"`
	FromAgency  string           `json:"from_agency"`
	ToAgency    string           `json:"to_agency"`
	ProjectID   string           `json:"project_id"`
	Type        NotificationType `json:"type"`
	Subject     string           `json:"subject"`
	Message     string           `json:"message"`
	Priority    Priority         `json:"priority"`
	Status      string           `json:"status"`
	Attempts    int              `json:"attempts"`
	LastError   string           `json:"last_error,omitempty"`
	ChatMessage string           `json:"chat_message_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	RelayedAt   *time.Time       `json:"relayed_at,omitempty"`
}

// NewNotification builds a record from an intent
func NewNotification(id string, intent NotificationIntent, status string, now time.Time) *Notification {
	return &Notification{
		ID:         id,
		FromAgency: intent.From,
		ToAgency:   intent.To,
		ProjectID:  intent.ProjectID,
		Type:       intent.Type,
		Subject:    intent.Subject,
		Message:    intent.Message,
		Priority:   intent.Priority,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
