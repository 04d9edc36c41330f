package workflow

import (
	"context"

	domainwf "github.com/garyjia/pmajay-coordination/internal/domain/workflow"
)

type resolvedKey struct{}

// withResolved marks whether the agencies a guarded assignment needs were found
func withResolved(ctx context.Context, resolved bool) context.Context {
	return context.WithValue(ctx, resolvedKey{}, resolved)
}

func assigneesResolved(ctx context.Context) bool {
	resolved, _ := ctx.Value(resolvedKey{}).(bool)
	return resolved
}

// BuildProjectStateMachine creates a state machine configured for the project
// coordination lifecycle, positioned at the given stage
func BuildProjectStateMachine(stage domainwf.Stage) (domainwf.StateMachine, error) {
	builder := domainwf.NewBuilder()

	// created: waits for a nodal agency
	builder.Configure(domainwf.StageCreated).
		PermitIf(domainwf.TriggerNotifyNodal, domainwf.StageNotifiedNodal, assigneesResolved)

	builder.Configure(domainwf.StageNotifiedNodal).
		Permit(domainwf.TriggerApprove, domainwf.StageApproved).
		Permit(domainwf.TriggerReject, domainwf.StageRejected)

	// under_review has no trigger into it; records that carry it still accept a decision
	builder.Configure(domainwf.StageUnderReview).
		Permit(domainwf.TriggerApprove, domainwf.StageApproved).
		Permit(domainwf.TriggerReject, domainwf.StageRejected)

	builder.Configure(domainwf.StageApproved).
		PermitIf(domainwf.TriggerAssignExecuting, domainwf.StageAssignedExecuting, assigneesResolved)

	builder.Configure(domainwf.StageAssignedExecuting).
		Permit(domainwf.TriggerStartExecution, domainwf.StageInExecution)

	builder.Configure(domainwf.StageInExecution).
		PermitIf(domainwf.TriggerAssignMonitoring, domainwf.StageMonitoring, assigneesResolved).
		Permit(domainwf.TriggerReportProgress, domainwf.StageInExecution)

	builder.Configure(domainwf.StageMonitoring).
		Permit(domainwf.TriggerReportProgress, domainwf.StageMonitoring).
		Permit(domainwf.TriggerComplete, domainwf.StageCompleted)

	// completed and rejected are terminal - no outgoing transitions

	return builder.Build(stage)
}

// resumeTrigger maps a stalled stage to the assignment that would unblock it
func resumeTrigger(stage domainwf.Stage) (domainwf.Trigger, bool) {
	switch stage {
	case domainwf.StageCreated:
		return domainwf.TriggerNotifyNodal, true
	case domainwf.StageApproved:
		return domainwf.TriggerAssignExecuting, true
	case domainwf.StageInExecution:
		return domainwf.TriggerAssignMonitoring, true
	default:
		return "", false
	}
}
