package entity

import (
	"slices"
	"time"

	"github.com/garyjia/pmajay-coordination/internal/domain/workflow"
)

// WorkflowState is the coordination record for one project
type WorkflowState struct {
	ProjectID          string         `json:"project_id"`
	Region             string         `json:"region"`
	CurrentStage       workflow.Stage `json:"current_stage"`
	ImplementingAgency string         `json:"implementing_agency"`
	NodalAgency        string         `json:"nodal_agency,omitempty"`
	ExecutingAgencies  []string       `json:"executing_agencies"`
	MonitoringAgency   string         `json:"monitoring_agency,omitempty"`
	History            []HistoryEvent `json:"history"`
	Version            int64          `json:"version"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Clone returns a deep copy so decisions never alias a loaded record
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	c := *s
	c.ExecutingAgencies = append([]string{}, s.ExecutingAgencies...)
	c.History = make([]HistoryEvent, len(s.History))
	for i, e := range s.History {
		e.Recipients = append([]string(nil), e.Recipients...)
		if e.Metadata != nil {
			m := *e.Metadata
			e.Metadata = &m
		}
		c.History[i] = e
	}
	return &c
}

// Append records an event. Real stage entries move CurrentStage; every
// event refreshes UpdatedAt.
func (s *WorkflowState) Append(e HistoryEvent) {
	s.History = append(s.History, e)
	if e.IsTransition() {
		s.CurrentStage = e.Stage
	}
	s.UpdatedAt = e.Timestamp
}

// IsTerminal reports whether the workflow has reached completed or rejected
func (s *WorkflowState) IsTerminal() bool {
	return s.CurrentStage.IsTerminal()
}

// IsExecutingAgency reports whether id is one of the assigned executing agencies
func (s *WorkflowState) IsExecutingAgency(id string) bool {
	return id != "" && slices.Contains(s.ExecutingAgencies, id)
}

// Involves reports whether the agency plays any role in this workflow
func (s *WorkflowState) Involves(id string) bool {
	if id == "" {
		return false
	}
	return s.ImplementingAgency == id ||
		s.NodalAgency == id ||
		s.MonitoringAgency == id ||
		s.IsExecutingAgency(id)
}

// ExpectedActors returns the agencies expected to act next
func (s *WorkflowState) ExpectedActors() []string {
	switch s.CurrentStage {
	case workflow.StageNotifiedNodal:
		if s.NodalAgency != "" {
			return []string{s.NodalAgency}
		}
	case workflow.StageAssignedExecuting:
		return append([]string{}, s.ExecutingAgencies...)
	}
	return nil
}

// LastTransition returns the most recent real stage entry
func (s *WorkflowState) LastTransition() (HistoryEvent, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].IsTransition() {
			return s.History[i], true
		}
	}
	return HistoryEvent{}, false
}

// Recipients returns every agency notified across the history, in first-seen order
func (s *WorkflowState) Recipients() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range s.History {
		for _, r := range e.Recipients {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out
}
