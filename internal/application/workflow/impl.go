package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/garyjia/pmajay-coordination/internal/application/dispatcher"
	"github.com/garyjia/pmajay-coordination/internal/application/port"
	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
	domainwf "github.com/garyjia/pmajay-coordination/internal/domain/workflow"
)

const (
	defaultNotifyTimeout    = 5 * time.Second
	defaultDirectoryTimeout = 3 * time.Second
	defaultExecutingLimit   = 2
)

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	workflows port.WorkflowRepository
	directory port.AgencyDirectory
	emitter   port.NotificationEmitter
	txManager port.TransactionManager

	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        func() time.Time

	notifyTimeout    time.Duration
	directoryTimeout time.Duration
	executingLimit   int
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides the time source used for history timestamps
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithNotifyTimeout bounds each notification send
func WithNotifyTimeout(d time.Duration) EngineOption {
	return func(e *engineImpl) {
		if d > 0 {
			e.notifyTimeout = d
		}
	}
}

// WithDirectoryTimeout bounds each agency directory lookup
func WithDirectoryTimeout(d time.Duration) EngineOption {
	return func(e *engineImpl) {
		if d > 0 {
			e.directoryTimeout = d
		}
	}
}

// WithExecutingAgencyLimit sets how many executing agencies approve assigns
func WithExecutingAgencyLimit(n int) EngineOption {
	return func(e *engineImpl) {
		if n > 0 {
			e.executingLimit = n
		}
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	workflows port.WorkflowRepository,
	directory port.AgencyDirectory,
	emitter port.NotificationEmitter,
	txManager port.TransactionManager,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		workflows:        workflows,
		directory:        directory,
		emitter:          emitter,
		txManager:        txManager,
		now:              time.Now,
		notifyTimeout:    defaultNotifyTimeout,
		directoryTimeout: defaultDirectoryTimeout,
		executingLimit:   defaultExecutingLimit,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *engineImpl) Initialize(ctx context.Context, projectID, implementingAgencyID string) (*Result, error) {
	projectID = strings.TrimSpace(projectID)
	implementingAgencyID = strings.TrimSpace(implementingAgencyID)
	if projectID == "" {
		return nil, newError(KindValidation, "", "project id is required")
	}
	if implementingAgencyID == "" {
		return nil, newError(KindValidation, projectID, "implementing agency id is required")
	}

	existing, err := e.workflows.GetByProjectID(ctx, projectID)
	if err != nil {
		return nil, wrapError(KindUnavailable, projectID, "failed to load workflow", err)
	}
	if existing != nil {
		return nil, newError(KindConflict, projectID, "workflow already initialized")
	}

	implementing, err := e.lookupAgency(ctx, implementingAgencyID)
	if err != nil {
		return nil, wrapError(KindUnavailable, projectID, "failed to resolve implementing agency", err)
	}
	if implementing == nil {
		return nil, newError(KindValidation, projectID, "unknown implementing agency %s", implementingAgencyID)
	}

	// A failed nodal lookup stalls the workflow instead of failing project creation.
	nodal, err := e.findAgency(ctx, entity.AgencyCriteria{Type: entity.AgencyTypeNodal, Region: implementing.Region})
	if err != nil {
		e.logError("Nodal agency lookup failed",
			"project_id", projectID,
			"region", implementing.Region,
			"error", err,
		)
		nodal = nil
	}

	d, err := decideInitialize(projectID, implementing, nodal, e.timestamp())
	if err != nil {
		return nil, err
	}
	return e.apply(ctx, d, true)
}

func (e *engineImpl) Approve(ctx context.Context, projectID, nodalAgencyID, notes string) (*Result, error) {
	state, err := e.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := authorize(state, domainwf.TriggerApprove, nodalAgencyID); err != nil {
		return nil, err
	}

	executing, err := e.findAgencies(ctx, entity.AgencyCriteria{Type: entity.AgencyTypeExecuting, Region: state.Region}, e.executingLimit)
	if err != nil {
		return nil, wrapError(KindUnavailable, projectID, "failed to resolve executing agencies", err)
	}

	d, err := decideApprove(state, nodalAgencyID, notes, resolution{executing: executing}, e.timestamp())
	if err != nil {
		return nil, err
	}
	return e.apply(ctx, d, false)
}

func (e *engineImpl) Reject(ctx context.Context, projectID, nodalAgencyID, notes string) (*Result, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, newError(KindValidation, projectID, "rejection notes are required")
	}
	state, err := e.load(ctx, projectID)
	if err != nil {
		return nil, err
	}

	d, err := decideReject(state, nodalAgencyID, notes, e.timestamp())
	if err != nil {
		return nil, err
	}
	return e.apply(ctx, d, false)
}

func (e *engineImpl) StartExecution(ctx context.Context, projectID, executingAgencyID string) (*Result, error) {
	state, err := e.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := authorize(state, domainwf.TriggerStartExecution, executingAgencyID); err != nil {
		return nil, err
	}

	// monitoring agencies are selected system-wide, not per region
	monitoring, err := e.findAgency(ctx, entity.AgencyCriteria{Type: entity.AgencyTypeMonitoring})
	if err != nil {
		return nil, wrapError(KindUnavailable, projectID, "failed to resolve monitoring agency", err)
	}

	d, err := decideStartExecution(state, executingAgencyID, resolution{monitoring: monitoring}, e.timestamp())
	if err != nil {
		return nil, err
	}
	return e.apply(ctx, d, false)
}

func (e *engineImpl) UpdateProgress(ctx context.Context, projectID, executingAgencyID string, progress ProgressInput) (*Result, error) {
	if err := validateProgress(projectID, progress); err != nil {
		return nil, err
	}
	state, err := e.load(ctx, projectID)
	if err != nil {
		return nil, err
	}

	d, err := decideProgress(state, executingAgencyID, progress, e.timestamp())
	if err != nil {
		return nil, err
	}
	return e.apply(ctx, d, false)
}

func (e *engineImpl) Complete(ctx context.Context, projectID, monitoringAgencyID, finalReport string) (*Result, error) {
	state, err := e.load(ctx, projectID)
	if err != nil {
		return nil, err
	}

	d, err := decideComplete(state, monitoringAgencyID, finalReport, e.timestamp())
	if err != nil {
		return nil, err
	}
	return e.apply(ctx, d, false)
}

func (e *engineImpl) Resume(ctx context.Context, projectID string) (*Result, error) {
	state, err := e.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, ok := resumeTrigger(state.CurrentStage); !ok {
		return nil, newError(KindInvalidTransition, projectID, "stage %s is not awaiting agency assignment", state.CurrentStage)
	}

	var res resolution
	switch state.CurrentStage {
	case domainwf.StageCreated:
		res.nodal, err = e.findAgency(ctx, entity.AgencyCriteria{Type: entity.AgencyTypeNodal, Region: state.Region})
	case domainwf.StageApproved:
		res.executing, err = e.findAgencies(ctx, entity.AgencyCriteria{Type: entity.AgencyTypeExecuting, Region: state.Region}, e.executingLimit)
	case domainwf.StageInExecution:
		res.monitoring, err = e.findAgency(ctx, entity.AgencyCriteria{Type: entity.AgencyTypeMonitoring})
	}
	if err != nil {
		return nil, wrapError(KindUnavailable, projectID, "failed to resolve agencies", err)
	}

	d, err := decideResume(state, res, e.timestamp())
	if err != nil {
		return nil, err
	}

	if d.state.CurrentStage == state.CurrentStage {
		e.logInfo("Workflow still stalled",
			"project_id", projectID,
			"stage", state.CurrentStage,
		)
		e.publish(ctx, d)
		return &Result{State: state, Warnings: d.warnings}, nil
	}
	return e.apply(ctx, d, false)
}

func (e *engineImpl) GetWorkflow(ctx context.Context, projectID string) (*entity.WorkflowState, error) {
	return e.load(ctx, projectID)
}

func (e *engineImpl) ListWorkflows(ctx context.Context, filter ListFilter) ([]*entity.WorkflowState, error) {
	states, err := e.workflows.List(ctx)
	if err != nil {
		return nil, wrapError(KindUnavailable, "", "failed to list workflows", err)
	}
	return filterInvolving(states, strings.TrimSpace(filter.AgencyID)), nil
}

func (e *engineImpl) ListPending(ctx context.Context, agencyID string) ([]*entity.WorkflowState, error) {
	agencyID = strings.TrimSpace(agencyID)
	if agencyID == "" {
		return nil, newError(KindValidation, "", "agency id is required")
	}
	states, err := e.workflows.List(ctx)
	if err != nil {
		return nil, wrapError(KindUnavailable, "", "failed to list workflows", err)
	}
	return filterPending(states, agencyID), nil
}

func (e *engineImpl) GetStats(ctx context.Context) (*Stats, error) {
	states, err := e.workflows.List(ctx)
	if err != nil {
		return nil, wrapError(KindUnavailable, "", "failed to list workflows", err)
	}
	return computeStats(states), nil
}

// apply commits the decision, then sends its notifications and events.
// Nothing after the commit can undo the transition.
func (e *engineImpl) apply(ctx context.Context, d *decision, create bool) (*Result, error) {
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if create {
			return e.workflows.Create(txCtx, d.state)
		}
		return e.workflows.Save(txCtx, d.state, d.appended)
	})
	if err != nil {
		if errors.Is(err, port.ErrVersionConflict) || errors.Is(err, port.ErrWorkflowExists) {
			return nil, wrapError(KindConflict, d.state.ProjectID, "workflow was modified concurrently", err)
		}
		return nil, wrapError(KindUnavailable, d.state.ProjectID, "failed to persist workflow", err)
	}

	e.logInfo("Workflow transition committed",
		"project_id", d.state.ProjectID,
		"from_stage", d.from,
		"to_stage", d.state.CurrentStage,
		"history_appended", len(d.appended),
		"warnings", len(d.warnings),
	)

	result := &Result{
		State:    d.state,
		Warnings: append([]Warning{}, d.warnings...),
	}
	ids, failures := e.deliver(ctx, d)
	result.NotificationIDs = ids
	result.Warnings = append(result.Warnings, failures...)

	e.publish(ctx, d)
	return result, nil
}

// deliver sends each intent under its own timeout. Failures become warnings.
func (e *engineImpl) deliver(ctx context.Context, d *decision) ([]string, []Warning) {
	if e.emitter == nil || len(d.intents) == 0 {
		return nil, nil
	}

	base := context.WithoutCancel(ctx)
	var ids []string
	var warnings []Warning
	for _, intent := range d.intents {
		sendCtx, cancel := context.WithTimeout(base, e.notifyTimeout)
		id, err := e.emitter.Send(sendCtx, intent)
		cancel()
		if err != nil {
			e.logError("Failed to send notification",
				"project_id", intent.ProjectID,
				"from_agency", intent.From,
				"to_agency", intent.To,
				"type", intent.Type,
				"error", err,
			)
			warnings = append(warnings, Warning{
				Kind:     WarnNotificationFailed,
				Message:  "notification to " + intent.To + " was not recorded: " + err.Error(),
				AgencyID: intent.To,
			})
			continue
		}
		ids = append(ids, id)
	}
	return ids, warnings
}

func (e *engineImpl) publish(ctx context.Context, d *decision) {
	if e.dispatcher == nil {
		return
	}
	base := context.WithoutCancel(ctx)
	for _, evt := range d.events {
		e.dispatcher.DispatchAsync(base, evt)
	}
}

func (e *engineImpl) load(ctx context.Context, projectID string) (*entity.WorkflowState, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, newError(KindValidation, "", "project id is required")
	}
	state, err := e.workflows.GetByProjectID(ctx, projectID)
	if err != nil {
		return nil, wrapError(KindUnavailable, projectID, "failed to load workflow", err)
	}
	if state == nil {
		return nil, newError(KindNotFound, projectID, "no workflow for project")
	}
	return state, nil
}

func (e *engineImpl) lookupAgency(ctx context.Context, id string) (*entity.Agency, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, e.directoryTimeout)
	defer cancel()
	return e.directory.GetByID(lookupCtx, id)
}

func (e *engineImpl) findAgency(ctx context.Context, criteria entity.AgencyCriteria) (*entity.Agency, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, e.directoryTimeout)
	defer cancel()
	return e.directory.Find(lookupCtx, criteria)
}

func (e *engineImpl) findAgencies(ctx context.Context, criteria entity.AgencyCriteria, limit int) ([]*entity.Agency, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, e.directoryTimeout)
	defer cancel()
	return e.directory.FindAll(lookupCtx, criteria, limit)
}

func (e *engineImpl) timestamp() time.Time {
	return e.now().UTC()
}

func (e *engineImpl) logInfo(msg string, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Info(msg, keysAndValues...)
	}
}

func (e *engineImpl) logError(msg string, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Error(msg, keysAndValues...)
	}
}
