package workflow

// Trigger represents an event that can cause a stage transition
type Trigger string

const (
	TriggerNotifyNodal      Trigger = "NOTIFY_NODAL"
	TriggerApprove          Trigger = "APPROVE"
	TriggerReject           Trigger = "REJECT"
	TriggerAssignExecuting  Trigger = "ASSIGN_EXECUTING"
	TriggerStartExecution   Trigger = "START_EXECUTION"
	TriggerAssignMonitoring Trigger = "ASSIGN_MONITORING"
	TriggerReportProgress   Trigger = "REPORT_PROGRESS"
	TriggerComplete         Trigger = "COMPLETE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
