package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/garyjia/pmajay-coordination/internal/application/workflow"
	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
	domainwf "github.com/garyjia/pmajay-coordination/internal/domain/workflow"
)

const timeLayout = "2006-01-02 15:04"

type reportOptions struct {
	AgencyID string
	Relay    bool
	Format   string
}

type reportData struct {
	Stats   *workflow.Stats
	Pending []*entity.WorkflowState
	Relay   []*entity.Notification
}

func render(w io.Writer, data reportData, opts reportOptions) error {
	switch opts.Format {
	case "", "table", "markdown", "csv":
	default:
		return fmt.Errorf("unknown format %q", opts.Format)
	}

	tables := []table.Writer{statsTable(data.Stats)}
	if opts.AgencyID != "" {
		tables = append(tables, pendingTable(opts.AgencyID, data.Pending))
	}
	if opts.Relay {
		tables = append(tables, relayTable(data.Relay))
	}

	for i, tw := range tables {
		if i > 0 {
			fmt.Fprintln(w)
		}
		switch opts.Format {
		case "markdown":
			fmt.Fprintln(w, tw.RenderMarkdown())
		case "csv":
			fmt.Fprintln(w, tw.RenderCSV())
		default:
			tw.SetStyle(table.StyleLight)
			fmt.Fprintln(w, tw.Render())
		}
	}
	return nil
}

func statsTable(stats *workflow.Stats) table.Writer {
	tw := table.NewWriter()
	tw.SetTitle("Workflow statistics")
	tw.AppendHeader(table.Row{"Stage", "Workflows"})
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})

	if stats == nil {
		stats = &workflow.Stats{}
	}
	for _, stage := range domainwf.AllStages() {
		tw.AppendRow(table.Row{stage.String(), stats.ByStage[stage]})
	}
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"pending approvals", stats.PendingApprovals})
	tw.AppendRow(table.Row{"in execution", stats.InExecution})
	tw.AppendRow(table.Row{"completed", stats.Completed})
	tw.AppendFooter(table.Row{"Total", stats.Total})
	tw.AppendFooter(table.Row{"Success rate", fmt.Sprintf("%.1f%%", stats.SuccessRate*100)})
	return tw
}

func pendingTable(agencyID string, states []*entity.WorkflowState) table.Writer {
	tw := table.NewWriter()
	tw.SetTitle("Pending for " + agencyID)
	tw.AppendHeader(table.Row{"Project", "Region", "Stage", "Last action", "Updated"})

	for _, s := range states {
		last := ""
		if n := len(s.History); n > 0 {
			last = s.History[n-1].Action
		}
		tw.AppendRow(table.Row{s.ProjectID, s.Region, s.CurrentStage.String(), last, s.UpdatedAt.Format(timeLayout)})
	}
	tw.AppendFooter(table.Row{"", "", "", "Total", len(states)})
	return tw
}

func relayTable(msgs []*entity.Notification) table.Writer {
	tw := table.NewWriter()
	tw.SetTitle("Chat relay backlog")
	tw.AppendHeader(table.Row{"Created", "Project", "From", "To", "Priority", "Subject", "Attempts", "Last error"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, WidthMax: 48},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, WidthMax: 40},
	})

	for _, n := range msgs {
		tw.AppendRow(table.Row{
			n.CreatedAt.Format(timeLayout),
			n.ProjectID,
			n.FromAgency,
			n.ToAgency,
			string(n.Priority),
			n.Subject,
			n.Attempts,
			strings.TrimSpace(n.LastError),
		})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "", "Total", len(msgs), ""})
	return tw
}
