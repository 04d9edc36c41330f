package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/pmajay-coordination/internal/application/dispatcher"
	"github.com/garyjia/pmajay-coordination/internal/application/port"
	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
	"github.com/garyjia/pmajay-coordination/internal/domain/event"
	domainwf "github.com/garyjia/pmajay-coordination/internal/domain/workflow"
)

// Mock implementations

type mockWorkflowRepo struct {
	mu      sync.Mutex
	states  map[string]*entity.WorkflowState
	saveErr error
	listErr error
}

func newMockWorkflowRepo() *mockWorkflowRepo {
	return &mockWorkflowRepo{states: make(map[string]*entity.WorkflowState)}
}

func (m *mockWorkflowRepo) Create(ctx context.Context, state *entity.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.states[state.ProjectID]; exists {
		return port.ErrWorkflowExists
	}
	state.Version = 1
	m.states[state.ProjectID] = state.Clone()
	return nil
}

func (m *mockWorkflowRepo) GetByProjectID(ctx context.Context, projectID string) (*entity.WorkflowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, exists := m.states[projectID]
	if !exists {
		return nil, nil
	}
	return state.Clone(), nil
}

func (m *mockWorkflowRepo) Save(ctx context.Context, state *entity.WorkflowState, appended []entity.HistoryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	stored, exists := m.states[state.ProjectID]
	if !exists || stored.Version != state.Version {
		return port.ErrVersionConflict
	}
	state.Version++
	m.states[state.ProjectID] = state.Clone()
	return nil
}

func (m *mockWorkflowRepo) List(ctx context.Context) ([]*entity.WorkflowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*entity.WorkflowState
	for _, s := range m.states {
		out = append(out, s.Clone())
	}
	return out, nil
}

type mockDirectory struct {
	agencies []*entity.Agency
	findErr  error
}

func (m *mockDirectory) add(id string, typ entity.AgencyType, region string) {
	m.agencies = append(m.agencies, &entity.Agency{ID: id, Name: id, Type: typ, Region: region})
}

func (m *mockDirectory) GetByID(ctx context.Context, id string) (*entity.Agency, error) {
	for _, a := range m.agencies {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (m *mockDirectory) Find(ctx context.Context, criteria entity.AgencyCriteria) (*entity.Agency, error) {
	all, err := m.FindAll(ctx, criteria, 1)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (m *mockDirectory) FindAll(ctx context.Context, criteria entity.AgencyCriteria, limit int) ([]*entity.Agency, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []*entity.Agency
	for _, a := range m.agencies {
		if a.Type != criteria.Type || (criteria.Region != "" && a.Region != criteria.Region) {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type mockEmitter struct {
	mu      sync.Mutex
	sent    []entity.NotificationIntent
	failFor map[string]bool
}

func (m *mockEmitter) Send(ctx context.Context, intent entity.NotificationIntent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[intent.To] {
		return "", errors.New("emitter unavailable")
	}
	m.sent = append(m.sent, intent)
	return fmt.Sprintf("msg-%d", len(m.sent)), nil
}

func (m *mockEmitter) sentTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.To
	}
	return out
}

type mockTxManager struct {
	commitErr error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	return fn(ctx)
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo {
	return nil
}

func (m *mockDispatcher) Close() error {
	return nil
}

func (m *mockDispatcher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

// Fixture

type fixture struct {
	engine     WorkflowEngine
	repo       *mockWorkflowRepo
	directory  *mockDirectory
	emitter    *mockEmitter
	dispatcher *mockDispatcher
}

var fixedNow = time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

// newFixture seeds region MH with an implementing, a nodal, two executing
// agencies and one monitoring agency in another region.
func newFixture() *fixture {
	dir := &mockDirectory{}
	dir.add("impl-mh", entity.AgencyTypeImplementing, "MH")
	dir.add("nodal-mh", entity.AgencyTypeNodal, "MH")
	dir.add("exec-ka", entity.AgencyTypeExecuting, "KA")
	dir.add("exec-mh-1", entity.AgencyTypeExecuting, "MH")
	dir.add("exec-mh-2", entity.AgencyTypeExecuting, "MH")
	dir.add("exec-mh-3", entity.AgencyTypeExecuting, "MH")
	dir.add("mon-dl", entity.AgencyTypeMonitoring, "DL")
	dir.add("impl-ga", entity.AgencyTypeImplementing, "GA")

	f := &fixture{
		repo:       newMockWorkflowRepo(),
		directory:  dir,
		emitter:    &mockEmitter{failFor: map[string]bool{}},
		dispatcher: &mockDispatcher{},
	}
	f.engine = NewEngine(f.repo, f.directory, f.emitter, &mockTxManager{},
		WithDispatcher(f.dispatcher),
		WithClock(func() time.Time { return fixedNow }),
	)
	return f
}

func (f *fixture) mustInitialize(t *testing.T, projectID string) *Result {
	t.Helper()
	res, err := f.engine.Initialize(context.Background(), projectID, "impl-mh")
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return res
}

func (f *fixture) advanceToMonitoring(t *testing.T, projectID string) {
	t.Helper()
	ctx := context.Background()
	f.mustInitialize(t, projectID)
	if _, err := f.engine.Approve(ctx, projectID, "nodal-mh", "ok"); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if _, err := f.engine.StartExecution(ctx, projectID, "exec-mh-1"); err != nil {
		t.Fatalf("StartExecution() error = %v", err)
	}
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("error kind = %q, want %q (err: %v)", got, want, err)
	}
}

// Tests

func TestBuildProjectStateMachine(t *testing.T) {
	tests := []struct {
		name      string
		initial   domainwf.Stage
		trigger   domainwf.Trigger
		resolved  bool
		wantStage domainwf.Stage
		wantErr   error
	}{
		{"created -> notified_nodal when nodal resolved", domainwf.StageCreated, domainwf.TriggerNotifyNodal, true, domainwf.StageNotifiedNodal, nil},
		{"created stays when nodal missing", domainwf.StageCreated, domainwf.TriggerNotifyNodal, false, domainwf.StageCreated, domainwf.ErrGuardFailed},
		{"notified_nodal -> approved", domainwf.StageNotifiedNodal, domainwf.TriggerApprove, false, domainwf.StageApproved, nil},
		{"notified_nodal -> rejected", domainwf.StageNotifiedNodal, domainwf.TriggerReject, false, domainwf.StageRejected, nil},
		{"under_review -> approved", domainwf.StageUnderReview, domainwf.TriggerApprove, false, domainwf.StageApproved, nil},
		{"approved -> assigned_executing", domainwf.StageApproved, domainwf.TriggerAssignExecuting, true, domainwf.StageAssignedExecuting, nil},
		{"assigned_executing -> in_execution", domainwf.StageAssignedExecuting, domainwf.TriggerStartExecution, false, domainwf.StageInExecution, nil},
		{"in_execution -> monitoring", domainwf.StageInExecution, domainwf.TriggerAssignMonitoring, true, domainwf.StageMonitoring, nil},
		{"progress keeps monitoring", domainwf.StageMonitoring, domainwf.TriggerReportProgress, false, domainwf.StageMonitoring, nil},
		{"monitoring -> completed", domainwf.StageMonitoring, domainwf.TriggerComplete, false, domainwf.StageCompleted, nil},
		{"created cannot approve", domainwf.StageCreated, domainwf.TriggerApprove, false, domainwf.StageCreated, domainwf.ErrInvalidTransition},
		{"assigned_executing cannot approve", domainwf.StageAssignedExecuting, domainwf.TriggerApprove, false, domainwf.StageAssignedExecuting, domainwf.ErrInvalidTransition},
		{"completed is terminal", domainwf.StageCompleted, domainwf.TriggerComplete, false, domainwf.StageCompleted, domainwf.ErrInvalidTransition},
		{"rejected is terminal", domainwf.StageRejected, domainwf.TriggerApprove, false, domainwf.StageRejected, domainwf.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine, err := BuildProjectStateMachine(tt.initial)
			if err != nil {
				t.Fatalf("BuildProjectStateMachine() error = %v", err)
			}
			err = machine.Fire(withResolved(context.Background(), tt.resolved), tt.trigger)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Fire() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Fire() error = %v, want %v", err, tt.wantErr)
			}
			if machine.Stage() != tt.wantStage {
				t.Errorf("Stage() = %v, want %v", machine.Stage(), tt.wantStage)
			}
		})
	}
}

func TestEngine_FullLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res := f.mustInitialize(t, "PRJ-1")
	if res.State.CurrentStage != domainwf.StageNotifiedNodal {
		t.Fatalf("stage after initialize = %v, want notified_nodal", res.State.CurrentStage)
	}
	if res.State.NodalAgency != "nodal-mh" {
		t.Errorf("NodalAgency = %q, want nodal-mh", res.State.NodalAgency)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}

	res, err := f.engine.Approve(ctx, "PRJ-1", "nodal-mh", "looks good")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if res.State.CurrentStage != domainwf.StageAssignedExecuting {
		t.Fatalf("stage after approve = %v", res.State.CurrentStage)
	}
	if got := res.State.ExecutingAgencies; len(got) != 2 || got[0] != "exec-mh-1" || got[1] != "exec-mh-2" {
		t.Errorf("ExecutingAgencies = %v, want first two MH executing agencies", got)
	}

	res, err = f.engine.StartExecution(ctx, "PRJ-1", "exec-mh-2")
	if err != nil {
		t.Fatalf("StartExecution() error = %v", err)
	}
	if res.State.CurrentStage != domainwf.StageMonitoring {
		t.Fatalf("stage after start = %v, want monitoring", res.State.CurrentStage)
	}
	if res.State.MonitoringAgency != "mon-dl" {
		t.Errorf("MonitoringAgency = %q, want unscoped mon-dl", res.State.MonitoringAgency)
	}

	before := len(res.State.History)
	res, err = f.engine.UpdateProgress(ctx, "PRJ-1", "exec-mh-2", ProgressInput{Completion: 75, Summary: "walls done"})
	if err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}
	if res.State.CurrentStage != domainwf.StageMonitoring {
		t.Errorf("progress changed stage to %v", res.State.CurrentStage)
	}
	if len(res.State.History) != before+1 {
		t.Fatalf("progress appended %d events, want 1", len(res.State.History)-before)
	}
	last := res.State.History[len(res.State.History)-1]
	if last.Stage != domainwf.StageProgressUpdate || last.Metadata == nil || last.Metadata.ProgressUpdate.Completion != 75 {
		t.Errorf("progress event = %+v", last)
	}

	res, err = f.engine.Complete(ctx, "PRJ-1", "mon-dl", "delivered")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if res.State.CurrentStage != domainwf.StageCompleted {
		t.Fatalf("stage after complete = %v", res.State.CurrentStage)
	}
	if len(res.NotificationIDs) != 4 {
		t.Errorf("complete sent %d notifications, want implementing + nodal + 2 executing", len(res.NotificationIDs))
	}

	final, _ := res.State.LastTransition()
	want := map[string]bool{"impl-mh": true, "nodal-mh": true, "exec-mh-1": true, "exec-mh-2": true}
	if len(final.Recipients) != len(want) {
		t.Fatalf("completion recipients = %v", final.Recipients)
	}
	for _, r := range final.Recipients {
		if !want[r] {
			t.Errorf("unexpected completion recipient %s", r)
		}
	}

	stored, err := f.engine.GetWorkflow(ctx, "PRJ-1")
	if err != nil {
		t.Fatalf("GetWorkflow() error = %v", err)
	}
	if stored.CurrentStage != domainwf.StageCompleted || stored.Version != res.State.Version {
		t.Errorf("stored = %v v%d, result v%d", stored.CurrentStage, stored.Version, res.State.Version)
	}

	// 1 nodal + 2 executing + 1 monitoring + 1 progress + 4 completion
	if got := len(f.emitter.sentTo()); got != 9 {
		t.Errorf("total notifications = %d, want 9", got)
	}
}

func TestEngine_HistoryTracksCurrentStage(t *testing.T) {
	f := newFixture()
	f.advanceToMonitoring(t, "PRJ-H")

	state, _ := f.engine.GetWorkflow(context.Background(), "PRJ-H")
	wantStages := []domainwf.Stage{
		domainwf.StageCreated,
		domainwf.StageNotifiedNodal,
		domainwf.StageApproved,
		domainwf.StageAssignedExecuting,
		domainwf.StageInExecution,
		domainwf.StageMonitoring,
	}
	if len(state.History) != len(wantStages) {
		t.Fatalf("history length = %d, want %d", len(state.History), len(wantStages))
	}
	for i, s := range wantStages {
		if state.History[i].Stage != s {
			t.Errorf("history[%d].Stage = %v, want %v", i, state.History[i].Stage, s)
		}
		if !state.History[i].Timestamp.Equal(fixedNow) {
			t.Errorf("history[%d] timestamp = %v", i, state.History[i].Timestamp)
		}
	}
	last, _ := state.LastTransition()
	if last.Stage != state.CurrentStage {
		t.Errorf("last transition %v != current stage %v", last.Stage, state.CurrentStage)
	}
}

func TestEngine_InitializeNoNodalAgency(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.engine.Initialize(ctx, "PRJ-GA", "impl-ga")
	if err != nil {
		t.Fatalf("Initialize() should not fail without a nodal agency: %v", err)
	}
	if !res.HasWarning(WarnNoNodalAgency) {
		t.Errorf("warnings = %v, want no_nodal_agency", res.Warnings)
	}
	if res.State.NodalAgency != "" {
		t.Errorf("NodalAgency = %q, want unset", res.State.NodalAgency)
	}
	if res.State.CurrentStage != domainwf.StageCreated {
		t.Errorf("stage = %v, want created while stalled", res.State.CurrentStage)
	}
	if len(f.emitter.sentTo()) != 0 {
		t.Error("no notification should be sent without a nodal agency")
	}

	// documented edge case: approval is impossible until resolved
	_, err = f.engine.Approve(ctx, "PRJ-GA", "nodal-mh", "")
	assertKind(t, err, KindInvalidTransition)

	res, err = f.engine.Resume(ctx, "PRJ-GA")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if res.State.CurrentStage != domainwf.StageCreated || !res.HasWarning(WarnNoNodalAgency) {
		t.Errorf("Resume() without a nodal agency = %v %v", res.State.CurrentStage, res.Warnings)
	}

	f.directory.add("nodal-ga", entity.AgencyTypeNodal, "GA")
	res, err = f.engine.Resume(ctx, "PRJ-GA")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if res.State.CurrentStage != domainwf.StageNotifiedNodal || res.State.NodalAgency != "nodal-ga" {
		t.Errorf("after resume: stage %v nodal %q", res.State.CurrentStage, res.State.NodalAgency)
	}
	if got := f.emitter.sentTo(); len(got) != 1 || got[0] != "nodal-ga" {
		t.Errorf("resume notified %v, want [nodal-ga]", got)
	}
}

func TestEngine_InitializeDirectoryFailureStalls(t *testing.T) {
	f := newFixture()
	f.directory.findErr = errors.New("directory offline")

	res, err := f.engine.Initialize(context.Background(), "PRJ-X", "impl-mh")
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !res.HasWarning(WarnNoNodalAgency) {
		t.Errorf("warnings = %v, want no_nodal_agency", res.Warnings)
	}
}

func TestEngine_InitializeValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.engine.Initialize(ctx, "", "impl-mh")
	assertKind(t, err, KindValidation)

	_, err = f.engine.Initialize(ctx, "PRJ-1", "unknown")
	assertKind(t, err, KindValidation)

	f.mustInitialize(t, "PRJ-1")
	_, err = f.engine.Initialize(ctx, "PRJ-1", "impl-mh")
	assertKind(t, err, KindConflict)
	if !errors.Is(err, ErrConflict) {
		t.Error("errors.Is(err, ErrConflict) should match by kind")
	}
}

func TestEngine_ApproveTwiceFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mustInitialize(t, "PRJ-1")

	if _, err := f.engine.Approve(ctx, "PRJ-1", "nodal-mh", ""); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	_, err := f.engine.Approve(ctx, "PRJ-1", "nodal-mh", "")
	assertKind(t, err, KindInvalidTransition)

	_, err = f.engine.Reject(ctx, "PRJ-1", "nodal-mh", "changed my mind")
	assertKind(t, err, KindInvalidTransition)
}

func TestEngine_ApproveUnauthorized(t *testing.T) {
	f := newFixture()
	f.mustInitialize(t, "PRJ-1")

	_, err := f.engine.Approve(context.Background(), "PRJ-1", "exec-mh-1", "")
	assertKind(t, err, KindUnauthorized)

	state, _ := f.engine.GetWorkflow(context.Background(), "PRJ-1")
	if state.CurrentStage != domainwf.StageNotifiedNodal {
		t.Errorf("unauthorized approve changed stage to %v", state.CurrentStage)
	}
}

func TestEngine_ApproveWithoutExecutingAgencies(t *testing.T) {
	f := newFixture()
	f.directory.agencies = f.directory.agencies[:2] // implementing + nodal only
	f.mustInitialize(t, "PRJ-1")

	res, err := f.engine.Approve(context.Background(), "PRJ-1", "nodal-mh", "")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if res.State.CurrentStage != domainwf.StageApproved {
		t.Errorf("stage = %v, want approved", res.State.CurrentStage)
	}
	if len(res.State.ExecutingAgencies) != 0 {
		t.Errorf("ExecutingAgencies = %v, want empty", res.State.ExecutingAgencies)
	}
	if !res.HasWarning(WarnNoExecutingAgency) {
		t.Errorf("warnings = %v", res.Warnings)
	}

	types := f.dispatcher.types()
	var stalled bool
	for _, typ := range types {
		if typ == event.TypeWorkflowStalled {
			stalled = true
		}
	}
	if !stalled {
		t.Errorf("dispatched %v, want a stalled event", types)
	}
}

func TestEngine_RejectRequiresNotes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mustInitialize(t, "PRJ-1")

	for _, notes := range []string{"", "   "} {
		_, err := f.engine.Reject(ctx, "PRJ-1", "nodal-mh", notes)
		assertKind(t, err, KindValidation)
	}

	state, _ := f.engine.GetWorkflow(ctx, "PRJ-1")
	if state.CurrentStage != domainwf.StageNotifiedNodal {
		t.Errorf("stage = %v, want unchanged", state.CurrentStage)
	}

	res, err := f.engine.Reject(ctx, "PRJ-1", "nodal-mh", "budget exceeds ceiling")
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if res.State.CurrentStage != domainwf.StageRejected {
		t.Errorf("stage = %v, want rejected", res.State.CurrentStage)
	}
	last, _ := res.State.LastTransition()
	if last.Metadata == nil || last.Metadata.RejectionNote.Reason != "budget exceeds ceiling" {
		t.Errorf("rejection metadata = %+v", last.Metadata)
	}
	if got := f.emitter.sentTo(); got[len(got)-1] != "impl-mh" {
		t.Errorf("rejection notified %v", got)
	}

	_, err = f.engine.StartExecution(ctx, "PRJ-1", "exec-mh-1")
	assertKind(t, err, KindInvalidTransition)
}

func TestEngine_StartExecutionWithoutMonitoring(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.directory.agencies = f.directory.agencies[:6]
	f.mustInitialize(t, "PRJ-1")
	if _, err := f.engine.Approve(ctx, "PRJ-1", "nodal-mh", ""); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	_, err := f.engine.StartExecution(ctx, "PRJ-1", "exec-ka")
	assertKind(t, err, KindUnauthorized)

	res, err := f.engine.StartExecution(ctx, "PRJ-1", "exec-mh-1")
	if err != nil {
		t.Fatalf("StartExecution() error = %v", err)
	}
	if res.State.CurrentStage != domainwf.StageInExecution {
		t.Errorf("stage = %v, want in_execution", res.State.CurrentStage)
	}
	if !res.HasWarning(WarnNoMonitoringAgency) {
		t.Errorf("warnings = %v", res.Warnings)
	}

	// progress is accepted while held at in_execution, with nobody to notify
	sent := len(f.emitter.sentTo())
	if _, err := f.engine.UpdateProgress(ctx, "PRJ-1", "exec-mh-1", ProgressInput{Completion: 10}); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}
	if len(f.emitter.sentTo()) != sent {
		t.Error("progress without a monitoring agency should not notify")
	}

	_, err = f.engine.Complete(ctx, "PRJ-1", "mon-dl", "")
	assertKind(t, err, KindInvalidTransition)

	f.directory.add("mon-new", entity.AgencyTypeMonitoring, "KA")
	res, err = f.engine.Resume(ctx, "PRJ-1")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if res.State.CurrentStage != domainwf.StageMonitoring || res.State.MonitoringAgency != "mon-new" {
		t.Errorf("after resume: %v %q", res.State.CurrentStage, res.State.MonitoringAgency)
	}
	last := f.emitter.sent[len(f.emitter.sent)-1]
	if last.From != "exec-mh-1" || last.To != "mon-new" {
		t.Errorf("resume notification %s -> %s, want exec-mh-1 -> mon-new", last.From, last.To)
	}
}

func TestEngine_UpdateProgressValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.engine.UpdateProgress(ctx, "missing", "exec-mh-1", ProgressInput{Completion: 50})
	assertKind(t, err, KindNotFound)

	f.advanceToMonitoring(t, "PRJ-1")

	for _, pct := range []int{-1, 101} {
		_, err := f.engine.UpdateProgress(ctx, "PRJ-1", "exec-mh-1", ProgressInput{Completion: pct})
		assertKind(t, err, KindValidation)
	}

	_, err = f.engine.UpdateProgress(ctx, "PRJ-1", "nodal-mh", ProgressInput{Completion: 50})
	assertKind(t, err, KindUnauthorized)
}

func TestEngine_CompleteOnlyFromMonitoring(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mustInitialize(t, "PRJ-1")

	_, err := f.engine.Complete(ctx, "PRJ-1", "mon-dl", "done")
	assertKind(t, err, KindInvalidTransition)

	f.advanceToMonitoring(t, "PRJ-2")
	_, err = f.engine.Complete(ctx, "PRJ-2", "exec-mh-1", "done")
	assertKind(t, err, KindUnauthorized)

	if _, err := f.engine.Complete(ctx, "PRJ-2", "mon-dl", "done"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	_, err = f.engine.Complete(ctx, "PRJ-2", "mon-dl", "done")
	assertKind(t, err, KindInvalidTransition)
}

func TestEngine_NotificationFailureIsWarning(t *testing.T) {
	f := newFixture()
	f.emitter.failFor["nodal-mh"] = true

	res, err := f.engine.Initialize(context.Background(), "PRJ-1", "impl-mh")
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if res.State.CurrentStage != domainwf.StageNotifiedNodal {
		t.Errorf("stage = %v, transition should still commit", res.State.CurrentStage)
	}
	if !res.HasWarning(WarnNotificationFailed) {
		t.Errorf("warnings = %v, want notification_failed", res.Warnings)
	}
	if len(res.NotificationIDs) != 0 {
		t.Errorf("NotificationIDs = %v", res.NotificationIDs)
	}

	state, _ := f.engine.GetWorkflow(context.Background(), "PRJ-1")
	if state.CurrentStage != domainwf.StageNotifiedNodal {
		t.Errorf("stored stage = %v", state.CurrentStage)
	}
}

func TestEngine_StoreFailures(t *testing.T) {
	tests := []struct {
		name    string
		saveErr error
		want    Kind
	}{
		{"version conflict", fmt.Errorf("save: %w", port.ErrVersionConflict), KindConflict},
		{"database error", errors.New("disk I/O error"), KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.mustInitialize(t, "PRJ-1")
			f.repo.saveErr = tt.saveErr
			sent := len(f.emitter.sentTo())

			_, err := f.engine.Approve(context.Background(), "PRJ-1", "nodal-mh", "")
			assertKind(t, err, tt.want)
			if len(f.emitter.sentTo()) != sent {
				t.Error("notifications must not be sent when the commit fails")
			}
		})
	}
}

func TestEngine_ConcurrentApproveRejectOneWins(t *testing.T) {
	f := newFixture()
	f.mustInitialize(t, "PRJ-1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.engine.Approve(context.Background(), "PRJ-1", "nodal-mh", "")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.engine.Reject(context.Background(), "PRJ-1", "nodal-mh", "duplicate")
	}()
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if k := KindOf(err); k != KindConflict && k != KindInvalidTransition {
			t.Errorf("loser error kind = %q", k)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d transitions succeeded, want exactly 1", succeeded)
	}
}

func TestEngine_ResumeRejectsActiveStages(t *testing.T) {
	f := newFixture()
	f.mustInitialize(t, "PRJ-1")

	_, err := f.engine.Resume(context.Background(), "PRJ-1")
	assertKind(t, err, KindInvalidTransition)

	_, err = f.engine.Resume(context.Background(), "nope")
	assertKind(t, err, KindNotFound)
}

func TestEngine_GetStats(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	stats, err := f.engine.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.Total != 0 || stats.SuccessRate != 0 {
		t.Errorf("empty stats = %+v", stats)
	}

	f.mustInitialize(t, "PRJ-1")
	f.advanceToMonitoring(t, "PRJ-2")
	f.advanceToMonitoring(t, "PRJ-3")
	if _, err := f.engine.Complete(ctx, "PRJ-3", "mon-dl", ""); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	f.mustInitialize(t, "PRJ-4")
	if _, err := f.engine.Reject(ctx, "PRJ-4", "nodal-mh", "duplicate proposal"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	stats, err = f.engine.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.Total != 4 || stats.PendingApprovals != 1 || stats.InExecution != 1 || stats.Completed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.SuccessRate != 0.25 {
		t.Errorf("SuccessRate = %v, want 0.25", stats.SuccessRate)
	}
	if stats.ByStage[domainwf.StageRejected] != 1 {
		t.Errorf("ByStage[rejected] = %d", stats.ByStage[domainwf.StageRejected])
	}

	f.repo.listErr = errors.New("locked")
	_, err = f.engine.GetStats(ctx)
	assertKind(t, err, KindUnavailable)
}

func TestEngine_ListPendingAndWorkflows(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.mustInitialize(t, "PRJ-1")
	f.mustInitialize(t, "PRJ-2")
	if _, err := f.engine.Approve(ctx, "PRJ-2", "nodal-mh", ""); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	pending, err := f.engine.ListPending(ctx, "nodal-mh")
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ProjectID != "PRJ-1" {
		t.Errorf("nodal pending = %v", pending)
	}

	pending, _ = f.engine.ListPending(ctx, "exec-mh-2")
	if len(pending) != 1 || pending[0].ProjectID != "PRJ-2" {
		t.Errorf("executing pending = %v", pending)
	}

	_, err = f.engine.ListPending(ctx, " ")
	assertKind(t, err, KindValidation)

	all, _ := f.engine.ListWorkflows(ctx, ListFilter{})
	if len(all) != 2 {
		t.Errorf("ListWorkflows() = %d records", len(all))
	}
	involved, _ := f.engine.ListWorkflows(ctx, ListFilter{AgencyID: "exec-mh-1"})
	if len(involved) != 1 || involved[0].ProjectID != "PRJ-2" {
		t.Errorf("ListWorkflows(exec-mh-1) = %v", involved)
	}
}

func TestEngine_DispatchesEvents(t *testing.T) {
	f := newFixture()
	f.advanceToMonitoring(t, "PRJ-1")

	got := f.dispatcher.types()
	want := []event.Type{
		event.TypeWorkflowInitialized,
		event.TypeWorkflowStageChanged,
		event.TypeWorkflowStageChanged,
	}
	if len(got) != len(want) {
		t.Fatalf("dispatched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	last := f.dispatcher.events[2]
	if last.GetPayloadString(event.KeyFromStage) != "assigned_executing" || last.GetPayloadString(event.KeyToStage) != "monitoring" {
		t.Errorf("stage_changed payload = %v", last.Payload)
	}
}

func TestError_Format(t *testing.T) {
	err := wrapError(KindUnavailable, "PRJ-9", "failed to load workflow", errors.New("timeout"))
	if got := err.Error(); got != "unavailable: project PRJ-9: failed to load workflow: timeout" {
		t.Errorf("Error() = %q", got)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf(plain error) should be empty")
	}
	if !errors.Is(fmt.Errorf("wrapped: %w", err), ErrUnavailable) {
		t.Error("wrapped engine error should match its sentinel")
	}
}
