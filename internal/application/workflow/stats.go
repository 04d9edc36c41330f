package workflow

import (
	"slices"

	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
	domainwf "github.com/garyjia/pmajay-coordination/internal/domain/workflow"
)

func computeStats(states []*entity.WorkflowState) *Stats {
	stats := &Stats{
		Total:   len(states),
		ByStage: make(map[domainwf.Stage]int, len(domainwf.AllStages())),
	}
	for _, stage := range domainwf.AllStages() {
		stats.ByStage[stage] = 0
	}

	for _, s := range states {
		stats.ByStage[s.CurrentStage]++
		switch s.CurrentStage {
		case domainwf.StageNotifiedNodal:
			stats.PendingApprovals++
		case domainwf.StageInExecution, domainwf.StageMonitoring:
			stats.InExecution++
		case domainwf.StageCompleted:
			stats.Completed++
		}
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(stats.Total)
	}
	return stats
}

// filterPending keeps non-terminal workflows waiting on agencyID to act
func filterPending(states []*entity.WorkflowState, agencyID string) []*entity.WorkflowState {
	out := make([]*entity.WorkflowState, 0)
	for _, s := range states {
		if s.IsTerminal() {
			continue
		}
		if slices.Contains(s.ExpectedActors(), agencyID) {
			out = append(out, s)
		}
	}
	return out
}

func filterInvolving(states []*entity.WorkflowState, agencyID string) []*entity.WorkflowState {
	if agencyID == "" {
		return states
	}
	out := make([]*entity.WorkflowState, 0)
	for _, s := range states {
		if s.Involves(agencyID) {
			out = append(out, s)
		}
	}
	return out
}
