package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/pmajay-coordination/internal/application/workflow"
	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
	domainwf "github.com/garyjia/pmajay-coordination/internal/domain/workflow"
)

const (
	summarySheet   = "Summary"
	workflowsSheet = "Workflows"
)

var workflowColumns = []interface{}{
	"Project ID", "Region", "Stage", "Implementing Agency", "Nodal Agency",
	"Executing Agencies", "Monitoring Agency", "Last Action", "Updated At", "Version",
}

// WorkflowQuery is the read side of the workflow engine used for reporting
type WorkflowQuery interface {
	ListWorkflows(ctx context.Context, filter workflow.ListFilter) ([]*entity.WorkflowState, error)
	GetStats(ctx context.Context) (*workflow.Stats, error)
}

// ReportService renders workflow statistics as spreadsheets
type ReportService interface {
	// WriteWorkbook streams an xlsx workbook with a Summary and a Workflows sheet
	WriteWorkbook(ctx context.Context, w io.Writer, filter workflow.ListFilter) error
}

type reportServiceImpl struct {
	query  WorkflowQuery
	logger Logger
	now    func() time.Time
}

// NewReportService creates a new ReportService
func NewReportService(query WorkflowQuery, logger Logger) ReportService {
	return &reportServiceImpl{query: query, logger: logger, now: time.Now}
}

func (s *reportServiceImpl) WriteWorkbook(ctx context.Context, w io.Writer, filter workflow.ListFilter) error {
	stats, err := s.query.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	states, err := s.query.ListWorkflows(ctx, filter)
	if err != nil {
		return fmt.Errorf("list workflows: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Error("Failed to close workbook", "error", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := s.fillSummary(f, stats); err != nil {
		return err
	}

	if _, err := f.NewSheet(workflowsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := s.fillWorkflows(f, states); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("Workflow report exported",
		"workflows", len(states),
		"agency_filter", filter.AgencyID,
	)
	return nil
}

func (s *reportServiceImpl) fillSummary(f *excelize.File, stats *workflow.Stats) error {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Generated At", s.now().UTC().Format(time.RFC3339)},
		{"Total Workflows", stats.Total},
		{"Pending Approvals", stats.PendingApprovals},
		{"In Execution", stats.InExecution},
		{"Completed", stats.Completed},
		{"Success Rate", stats.SuccessRate},
		{},
		{"Stage", "Count"},
	}
	for _, stage := range domainwf.AllStages() {
		rows = append(rows, []interface{}{stage.String(), stats.ByStage[stage]})
	}

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *reportServiceImpl) fillWorkflows(f *excelize.File, states []*entity.WorkflowState) error {
	if err := f.SetSheetRow(workflowsSheet, "A1", &workflowColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, st := range states {
		lastAction := ""
		if n := len(st.History); n > 0 {
			lastAction = st.History[n-1].Action
		}
		row := []interface{}{
			st.ProjectID,
			st.Region,
			st.CurrentStage.String(),
			st.ImplementingAgency,
			st.NodalAgency,
			strings.Join(st.ExecutingAgencies, ", "),
			st.MonitoringAgency,
			lastAction,
			st.UpdatedAt.UTC().Format(time.RFC3339),
			st.Version,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(workflowsSheet, cell, &row); err != nil {
			return fmt.Errorf("write workflow row %s: %w", st.ProjectID, err)
		}
	}
	return nil
}
