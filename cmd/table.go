package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sells-group/roster-cli/internal/model"
)

func newTable(out io.Writer, headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row(headers))
	return tw
}

// formatStats writes run totals to out.
func formatStats(out io.Writer, s model.RunStatistics) {
	tw := newTable(out, "METRIC", "COUNT")
	tw.AppendRows([]table.Row{
		{"Hospitals", s.HospitalsCompleted},
		{"Doctors processed", s.TotalProcessed},
		{"Verified", s.Verified},
		{"Updated", s.Updated},
		{"Needs review", s.NeedsReview},
	})
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	tw.Render()
}

// formatSessions writes one line per session to out.
func formatSessions(out io.Writer, sessions []model.Session) {
	tw := newTable(out, "ID", "STATUS", "PROGRESS", "VERIFIED", "UPDATED", "REVIEW", "STARTED", "DURATION")
	for _, s := range sessions {
		dur := ""
		if s.CompletedAt != nil {
			dur = s.CompletedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		tw.AppendRow(table.Row{
			truncateID(s.ID),
			s.Status,
			fmt.Sprintf("%d/%d", s.CompletedHospitals, s.TotalHospitals),
			s.Stats.Verified,
			s.Stats.Updated,
			s.Stats.NeedsReview,
			s.StartedAt.Format("2006-01-02 15:04"),
			dur,
		})
	}
	tw.Render()
}

// formatProviders writes reconciled providers to out.
func formatProviders(out io.Writer, providers []model.Provider) {
	tw := newTable(out, "HOSPITAL", "DOCTOR", "STATUS", "CONFIDENCE", "REASON")
	for _, p := range providers {
		tw.AppendRow(table.Row{
			truncate(p.HospitalName, 30),
			truncate(p.DoctorName, 30),
			p.Status,
			fmt.Sprintf("%.1f", p.ConfidenceScore),
			truncate(p.Reason, 60),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 4, Align: text.AlignRight}})
	tw.Render()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
