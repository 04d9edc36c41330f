package workflow

// Stage represents a position in the project coordination lifecycle
type Stage string

const (
	StageCreated           Stage = "created"
	StageNotifiedNodal     Stage = "notified_nodal"
	StageUnderReview       Stage = "under_review"
	StageApproved          Stage = "approved"
	StageAssignedExecuting Stage = "assigned_executing"
	StageInExecution       Stage = "in_execution"
	StageMonitoring        Stage = "monitoring"
	StageCompleted         Stage = "completed"
	StageRejected          Stage = "rejected"

	// StageProgressUpdate is a pseudo-stage used only by history events.
	// It never becomes the current stage of a workflow.
	StageProgressUpdate Stage = "progress_update"
)

var validStages = map[Stage]bool{
	StageCreated:           true,
	StageNotifiedNodal:     true,
	StageUnderReview:       true,
	StageApproved:          true,
	StageAssignedExecuting: true,
	StageInExecution:       true,
	StageMonitoring:        true,
	StageCompleted:         true,
	StageRejected:          true,
}

var terminalStages = map[Stage]bool{
	StageRejected:  true,
	StageCompleted: true,
}

// IsTerminal returns true if the stage is a terminal stage (no further transitions allowed)
func (s Stage) IsTerminal() bool {
	return terminalStages[s]
}

// String returns the string representation of the stage
func (s Stage) String() string {
	return string(s)
}

// IsValid returns true if the stage is a real workflow stage.
// Pseudo-stages such as StageProgressUpdate are not valid.
func (s Stage) IsValid() bool {
	return validStages[s]
}

// AllStages returns the real stages in lifecycle order
func AllStages() []Stage {
	return []Stage{
		StageCreated,
		StageNotifiedNodal,
		StageUnderReview,
		StageApproved,
		StageAssignedExecuting,
		StageInExecution,
		StageMonitoring,
		StageCompleted,
		StageRejected,
	}
}
