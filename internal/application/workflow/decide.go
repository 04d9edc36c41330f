package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
	"github.com/garyjia/pmajay-coordination/internal/domain/event"
	domainwf "github.com/garyjia/pmajay-coordination/internal/domain/workflow"
)

// decision is the pure outcome of one transition: the next state, the history
// it appended, and the notifications and events to send once it is committed.
type decision struct {
	state    *entity.WorkflowState
	from     domainwf.Stage
	machine  domainwf.StateMachine
	now      time.Time
	appended []entity.HistoryEvent
	intents  []entity.NotificationIntent
	warnings []Warning
	events   []*event.Event
}

// resolution carries the agencies the directory returned for a transition
type resolution struct {
	nodal      *entity.Agency
	executing  []*entity.Agency
	monitoring *entity.Agency
}

func newDecision(state *entity.WorkflowState, now time.Time) (*decision, error) {
	machine, err := BuildProjectStateMachine(state.CurrentStage)
	if err != nil {
		return nil, wrapError(KindInvalidTransition, state.ProjectID, "stored stage is not recognised", err)
	}
	return &decision{
		state:   state.Clone(),
		from:    state.CurrentStage,
		machine: machine,
		now:     now,
	}, nil
}

// authorize checks that trigger is valid from the current stage and that
// actor is the agency allowed to fire it. It runs before any directory lookup.
func authorize(state *entity.WorkflowState, trigger domainwf.Trigger, actor string) error {
	machine, err := BuildProjectStateMachine(state.CurrentStage)
	if err != nil {
		return wrapError(KindInvalidTransition, state.ProjectID, "stored stage is not recognised", err)
	}
	if !machine.CanFire(trigger) {
		return newError(KindInvalidTransition, state.ProjectID, "%s is not allowed from stage %s", trigger, state.CurrentStage)
	}

	var allowed bool
	switch trigger {
	case domainwf.TriggerApprove, domainwf.TriggerReject:
		allowed = actor == state.NodalAgency
	case domainwf.TriggerStartExecution, domainwf.TriggerReportProgress:
		allowed = state.IsExecutingAgency(actor)
	case domainwf.TriggerComplete:
		allowed = actor == state.MonitoringAgency
	default:
		allowed = true
	}
	if actor == "" || !allowed {
		return newError(KindUnauthorized, state.ProjectID, "agency %q may not %s at stage %s", actor, trigger, state.CurrentStage)
	}
	return nil
}

// fire advances the machine and records entry into the resulting stage.
// A failed guard is not an error: it returns false and records nothing.
func (d *decision) fire(trigger domainwf.Trigger, resolved bool, e entity.HistoryEvent) (bool, error) {
	err := d.machine.Fire(withResolved(context.Background(), resolved), trigger)
	if errors.Is(err, domainwf.ErrGuardFailed) {
		return false, nil
	}
	if err != nil {
		return false, wrapError(KindInvalidTransition, d.state.ProjectID, "", err)
	}
	e.Stage = d.machine.Stage()
	d.record(e)
	return true, nil
}

func (d *decision) record(e entity.HistoryEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = d.now
	}
	d.state.Append(e)
	d.appended = append(d.appended, e)
}

func (d *decision) notify(from, to string, typ entity.NotificationType, priority entity.Priority, subject, message string) {
	d.intents = append(d.intents, entity.NotificationIntent{
		From:      from,
		To:        to,
		ProjectID: d.state.ProjectID,
		Type:      typ,
		Subject:   subject,
		Message:   message,
		Priority:  priority,
	})
}

func (d *decision) warn(kind WarningKind, message string) {
	w := Warning{Kind: kind, Message: message}
	d.warnings = append(d.warnings, w)
	if w.Stalls() {
		d.emit(event.TypeWorkflowStalled, map[string]interface{}{
			event.KeyWarning: string(kind),
			event.KeyToStage: d.state.CurrentStage.String(),
			event.KeyRegion:  d.state.Region,
		})
	}
}

func (d *decision) emit(t event.Type, payload map[string]interface{}) {
	d.events = append(d.events, event.NewEvent(t, d.state.ProjectID, payload))
}

// emitStageChange publishes a stage_changed event when the decision moved the workflow
func (d *decision) emitStageChange(actor string) {
	if d.state.CurrentStage == d.from {
		return
	}
	d.emit(event.TypeWorkflowStageChanged, map[string]interface{}{
		event.KeyFromStage: d.from.String(),
		event.KeyToStage:   d.state.CurrentStage.String(),
		event.KeyActor:     actor,
	})
}

func (d *decision) assignNodal(nodal *entity.Agency) error {
	var ids []string
	if nodal != nil {
		ids = []string{nodal.ID}
	}
	advanced, err := d.fire(domainwf.TriggerNotifyNodal, nodal != nil, entity.HistoryEvent{
		Actor:      entity.ActorSystem,
		Action:     "Nodal agency notified for approval",
		Metadata:   entity.NewAssignmentMetadata(entity.AgencyTypeNodal, ids...),
		Recipients: ids,
	})
	if err != nil {
		return err
	}
	if !advanced {
		d.warn(WarnNoNodalAgency, fmt.Sprintf("no nodal agency found in region %s", d.state.Region))
		return nil
	}

	d.state.NodalAgency = nodal.ID
	d.notify(d.state.ImplementingAgency, nodal.ID,
		entity.NotificationApprovalRequest, entity.PriorityHigh,
		fmt.Sprintf("Approval requested for project %s", d.state.ProjectID),
		fmt.Sprintf("Project %s in region %s has been submitted by agency %s and awaits nodal review.",
			d.state.ProjectID, d.state.Region, d.state.ImplementingAgency))
	return nil
}

func (d *decision) assignExecuting(agencies []*entity.Agency, from string) error {
	ids := agencyIDs(agencies)
	advanced, err := d.fire(domainwf.TriggerAssignExecuting, len(ids) > 0, entity.HistoryEvent{
		Actor:      entity.ActorSystem,
		Action:     fmt.Sprintf("Assigned %d executing agencies", len(ids)),
		Metadata:   entity.NewAssignmentMetadata(entity.AgencyTypeExecuting, ids...),
		Recipients: ids,
	})
	if err != nil {
		return err
	}
	if !advanced {
		d.warn(WarnNoExecutingAgency, fmt.Sprintf("no executing agency found in region %s", d.state.Region))
		return nil
	}

	d.state.ExecutingAgencies = ids
	for _, id := range ids {
		d.notify(from, id,
			entity.NotificationDirective, entity.PriorityHigh,
			fmt.Sprintf("Execution assignment for project %s", d.state.ProjectID),
			fmt.Sprintf("Project %s has been approved. Your agency is assigned to carry out the work.", d.state.ProjectID))
	}
	return nil
}

func (d *decision) assignMonitoring(monitoring *entity.Agency, from string) error {
	var ids []string
	if monitoring != nil {
		ids = []string{monitoring.ID}
	}
	advanced, err := d.fire(domainwf.TriggerAssignMonitoring, monitoring != nil, entity.HistoryEvent{
		Actor:      entity.ActorSystem,
		Action:     "Monitoring agency assigned",
		Metadata:   entity.NewAssignmentMetadata(entity.AgencyTypeMonitoring, ids...),
		Recipients: ids,
	})
	if err != nil {
		return err
	}
	if !advanced {
		d.warn(WarnNoMonitoringAgency, "no monitoring agency found")
		return nil
	}

	d.state.MonitoringAgency = monitoring.ID
	d.notify(from, monitoring.ID,
		entity.NotificationCoordination, entity.PriorityMedium,
		fmt.Sprintf("Monitoring requested for project %s", d.state.ProjectID),
		fmt.Sprintf("Execution of project %s has started. Please begin monitoring.", d.state.ProjectID))
	return nil
}

func decideInitialize(projectID string, implementing, nodal *entity.Agency, now time.Time) (*decision, error) {
	state := &entity.WorkflowState{
		ProjectID:          projectID,
		Region:             implementing.Region,
		CurrentStage:       domainwf.StageCreated,
		ImplementingAgency: implementing.ID,
		ExecutingAgencies:  []string{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	d, err := newDecision(state, now)
	if err != nil {
		return nil, err
	}
	d.record(entity.HistoryEvent{
		Stage:  domainwf.StageCreated,
		Actor:  implementing.ID,
		Action: "Project created",
	})
	if err := d.assignNodal(nodal); err != nil {
		return nil, err
	}

	d.emit(event.TypeWorkflowInitialized, map[string]interface{}{
		event.KeyToStage: d.state.CurrentStage.String(),
		event.KeyActor:   implementing.ID,
		event.KeyRegion:  d.state.Region,
	})
	return d, nil
}

func decideApprove(state *entity.WorkflowState, actor, notes string, res resolution, now time.Time) (*decision, error) {
	if err := authorize(state, domainwf.TriggerApprove, actor); err != nil {
		return nil, err
	}
	d, err := newDecision(state, now)
	if err != nil {
		return nil, err
	}

	if _, err := d.fire(domainwf.TriggerApprove, true, entity.HistoryEvent{
		Actor:  actor,
		Action: "Project approved by nodal agency",
		Notes:  strings.TrimSpace(notes),
	}); err != nil {
		return nil, err
	}
	if err := d.assignExecuting(res.executing, actor); err != nil {
		return nil, err
	}

	d.emitStageChange(actor)
	return d, nil
}

func decideReject(state *entity.WorkflowState, actor, notes string, now time.Time) (*decision, error) {
	reason := strings.TrimSpace(notes)
	if reason == "" {
		return nil, newError(KindValidation, state.ProjectID, "rejection notes are required")
	}
	if err := authorize(state, domainwf.TriggerReject, actor); err != nil {
		return nil, err
	}
	d, err := newDecision(state, now)
	if err != nil {
		return nil, err
	}

	if _, err := d.fire(domainwf.TriggerReject, true, entity.HistoryEvent{
		Actor:      actor,
		Action:     "Project rejected by nodal agency",
		Notes:      reason,
		Metadata:   entity.NewRejectionMetadata(reason),
		Recipients: []string{state.ImplementingAgency},
	}); err != nil {
		return nil, err
	}
	d.notify(actor, state.ImplementingAgency,
		entity.NotificationUpdate, entity.PriorityHigh,
		fmt.Sprintf("Project %s rejected", state.ProjectID),
		fmt.Sprintf("Project %s was rejected by the nodal agency. Reason: %s", state.ProjectID, reason))

	d.emitStageChange(actor)
	return d, nil
}

func decideStartExecution(state *entity.WorkflowState, actor string, res resolution, now time.Time) (*decision, error) {
	if err := authorize(state, domainwf.TriggerStartExecution, actor); err != nil {
		return nil, err
	}
	d, err := newDecision(state, now)
	if err != nil {
		return nil, err
	}

	if _, err := d.fire(domainwf.TriggerStartExecution, true, entity.HistoryEvent{
		Actor:  actor,
		Action: "Execution started",
	}); err != nil {
		return nil, err
	}
	if err := d.assignMonitoring(res.monitoring, actor); err != nil {
		return nil, err
	}

	d.emitStageChange(actor)
	return d, nil
}

func validateProgress(projectID string, progress ProgressInput) error {
	if progress.Completion < 0 || progress.Completion > 100 {
		return newError(KindValidation, projectID, "completion must be between 0 and 100, got %d", progress.Completion)
	}
	return nil
}

func decideProgress(state *entity.WorkflowState, actor string, progress ProgressInput, now time.Time) (*decision, error) {
	if err := validateProgress(state.ProjectID, progress); err != nil {
		return nil, err
	}
	if err := authorize(state, domainwf.TriggerReportProgress, actor); err != nil {
		return nil, err
	}
	d, err := newDecision(state, now)
	if err != nil {
		return nil, err
	}
	// self-transition; the history entry uses the progress pseudo-stage instead
	if err := d.machine.Fire(context.Background(), domainwf.TriggerReportProgress); err != nil {
		return nil, wrapError(KindInvalidTransition, state.ProjectID, "", err)
	}

	summary := strings.TrimSpace(progress.Summary)
	var recipients []string
	if state.MonitoringAgency != "" {
		recipients = []string{state.MonitoringAgency}
	}
	d.record(entity.HistoryEvent{
		Stage:      domainwf.StageProgressUpdate,
		Actor:      actor,
		Action:     fmt.Sprintf("Progress reported: %d%%", progress.Completion),
		Notes:      summary,
		Metadata:   entity.NewProgressMetadata(progress.Completion, summary),
		Recipients: recipients,
	})

	if state.MonitoringAgency != "" {
		message := fmt.Sprintf("Project %s is %d%% complete.", state.ProjectID, progress.Completion)
		if summary != "" {
			message += " " + summary
		}
		d.notify(actor, state.MonitoringAgency,
			entity.NotificationUpdate, entity.PriorityMedium,
			fmt.Sprintf("Progress update for project %s", state.ProjectID),
			message)
	}

	d.emit(event.TypeWorkflowProgressUpdated, map[string]interface{}{
		event.KeyActor:      actor,
		event.KeyCompletion: progress.Completion,
		event.KeyToStage:    d.state.CurrentStage.String(),
	})
	return d, nil
}

func decideComplete(state *entity.WorkflowState, actor, report string, now time.Time) (*decision, error) {
	if err := authorize(state, domainwf.TriggerComplete, actor); err != nil {
		return nil, err
	}
	d, err := newDecision(state, now)
	if err != nil {
		return nil, err
	}

	report = strings.TrimSpace(report)
	recipients := completionRecipients(state)
	if _, err := d.fire(domainwf.TriggerComplete, true, entity.HistoryEvent{
		Actor:      actor,
		Action:     "Project completed",
		Notes:      report,
		Metadata:   entity.NewCompletionMetadata(report),
		Recipients: recipients,
	}); err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Project %s has been completed and signed off by the monitoring agency.", state.ProjectID)
	if report != "" {
		message += " Final report: " + report
	}
	for _, to := range recipients {
		d.notify(actor, to,
			entity.NotificationUpdate, entity.PriorityMedium,
			fmt.Sprintf("Project %s completed", state.ProjectID),
			message)
	}

	d.emitStageChange(actor)
	return d, nil
}

func decideResume(state *entity.WorkflowState, res resolution, now time.Time) (*decision, error) {
	if _, ok := resumeTrigger(state.CurrentStage); !ok {
		return nil, newError(KindInvalidTransition, state.ProjectID, "stage %s is not awaiting agency assignment", state.CurrentStage)
	}
	d, err := newDecision(state, now)
	if err != nil {
		return nil, err
	}

	switch state.CurrentStage {
	case domainwf.StageCreated:
		err = d.assignNodal(res.nodal)
	case domainwf.StageApproved:
		err = d.assignExecuting(res.executing, state.NodalAgency)
	case domainwf.StageInExecution:
		err = d.assignMonitoring(res.monitoring, executionStarter(state))
	}
	if err != nil {
		return nil, err
	}

	d.emitStageChange(entity.ActorSystem)
	return d, nil
}

// completionRecipients lists implementing, nodal and executing agencies without repeats
func completionRecipients(state *entity.WorkflowState) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	add(state.ImplementingAgency)
	add(state.NodalAgency)
	for _, id := range state.ExecutingAgencies {
		add(id)
	}
	return out
}

// executionStarter returns the agency that entered in_execution
func executionStarter(state *entity.WorkflowState) string {
	if last, ok := state.LastTransition(); ok && last.Stage == domainwf.StageInExecution {
		return last.Actor
	}
	if len(state.ExecutingAgencies) > 0 {
		return state.ExecutingAgencies[0]
	}
	return entity.ActorSystem
}

func agencyIDs(agencies []*entity.Agency) []string {
	ids := make([]string, 0, len(agencies))
	for _, a := range agencies {
		if a != nil {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
