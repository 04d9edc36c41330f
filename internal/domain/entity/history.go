package entity

import (
	"time"

	"github.com/garyjia/pmajay-coordination/internal/domain/workflow"
)

// ActorSystem is recorded as the actor of events no agency caused
const ActorSystem = "system"

// HistoryEvent is one entry in a workflow's audit trail. Events are never
// modified once appended.
type HistoryEvent struct {
	Stage      workflow.Stage `json:"stage"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	Timestamp  time.Time      `json:"timestamp"`
	Notes      string         `json:"notes,omitempty"`
	Metadata   *EventMetadata `json:"metadata,omitempty"`
	Recipients []string       `json:"recipients,omitempty"`
}

// IsTransition reports whether the event records entry into a real stage
func (e HistoryEvent) IsTransition() bool {
	return e.Stage.IsValid()
}

// MetadataKind tags which payload an EventMetadata carries
type MetadataKind string

const (
	MetadataProgressUpdate   MetadataKind = "progress_update"
	MetadataRejectionNote    MetadataKind = "rejection_note"
	MetadataAssignment       MetadataKind = "assignment"
	MetadataCompletionReport MetadataKind = "completion_report"
)

// EventMetadata is a tagged payload; exactly the field matching Kind is set.
type EventMetadata struct {
	Kind             MetadataKind      `json:"kind"`
	ProgressUpdate   *ProgressUpdate   `json:"progress_update,omitempty"`
	RejectionNote    *RejectionNote    `json:"rejection_note,omitempty"`
	Assignment       *Assignment       `json:"assignment,omitempty"`
	CompletionReport *CompletionReport `json:"completion_report,omitempty"`
}

// ProgressUpdate reports execution progress as a percentage in [0, 100]
type ProgressUpdate struct {
	Completion int    `json:"completion"`
	Summary    string `json:"summary,omitempty"`
}

// RejectionNote carries the nodal agency's reason for rejecting a project
type RejectionNote struct {
	Reason string `json:"reason"`
}

// Assignment lists the agencies selected by a transition
type Assignment struct {
	Role      AgencyType `json:"role"`
	AgencyIDs []string   `json:"agency_ids"`
}

// CompletionReport is the monitoring agency's final report
type CompletionReport struct {
	Report string `json:"report"`
}

// NewProgressMetadata builds progress metadata
func NewProgressMetadata(completion int, summary string) *EventMetadata {
	return &EventMetadata{
		Kind:           MetadataProgressUpdate,
		ProgressUpdate: &ProgressUpdate{Completion: completion, Summary: summary},
	}
}

// NewRejectionMetadata builds rejection metadata
func NewRejectionMetadata(reason string) *EventMetadata {
	return &EventMetadata{
		Kind:          MetadataRejectionNote,
		RejectionNote: &RejectionNote{Reason: reason},
	}
}

// NewAssignmentMetadata builds assignment metadata
func NewAssignmentMetadata(role AgencyType, ids ...string) *EventMetadata {
	return &EventMetadata{
		Kind:       MetadataAssignment,
		Assignment: &Assignment{Role: role, AgencyIDs: append([]string{}, ids...)},
	}
}

// NewCompletionMetadata builds completion metadata
func NewCompletionMetadata(report string) *EventMetadata {
	return &EventMetadata{
		Kind:             MetadataCompletionReport,
		CompletionReport: &CompletionReport{Report: report},
	}
}
