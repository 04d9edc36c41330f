package event

// Type identifies the type of domain event
type Type string

const (
	TypeWorkflowInitialized     Type = "workflow.initialized"
	TypeWorkflowStageChanged    Type = "workflow.stage_changed"
	TypeWorkflowProgressUpdated Type = "workflow.progress_updated"
	TypeWorkflowStalled         Type = "workflow.stalled"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeWorkflowInitialized,
		TypeWorkflowStageChanged,
		TypeWorkflowProgressUpdated,
		TypeWorkflowStalled:
		return true
	default:
		return false
	}
}
