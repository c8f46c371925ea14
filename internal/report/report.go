// Package report renders command outcomes as tables.
package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/micahrl/cffunctions/internal/association"
)

// FunctionOutcome is the result of one per-function step such as staging,
// publishing or deleting.
type FunctionOutcome struct {
	Name   string
	Detail string
	Err    error
}

func newTable(w io.Writer, title string, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.AppendHeader(header)

	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	return t
}

// Functions writes one table for the successful outcomes and one for the
// failed ones. Empty tables are not written.
func Functions(w io.Writer, action string, outcomes []FunctionOutcome) {
	var ok, failed []FunctionOutcome
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		} else {
			ok = append(ok, o)
		}
	}

	if len(ok) > 0 {
		t := newTable(w, fmt.Sprintf("%s succeeded", action), table.Row{"Function", "Detail"})
		for _, o := range ok {
			t.AppendRow(table.Row{o.Name, o.Detail})
		}
		t.Render()
	}
	if len(failed) > 0 {
		t := newTable(w, fmt.Sprintf("%s failed", action), table.Row{"Function", "Error"})
		for _, o := range failed {
			t.AppendRow(table.Row{o.Name, o.Err.Error()})
		}
		t.Render()
	}
}

// Associations writes the successes and failures of a reconcile run, one
// row per binding.
func Associations(w io.Writer, r *association.Report) {
	if len(r.Successes) > 0 {
		t := newTable(w, fmt.Sprintf("%s succeeded", r.Action),
			table.Row{"Distribution", "Function", "Pattern", "Event", "Changed", "Status"})
		for _, s := range r.Successes {
			status := s.Poll.State.String()
			if !s.Changed {
				status = "unchanged"
			}
			for _, b := range s.Bindings {
				t.AppendRow(table.Row{s.DistributionID, b.FunctionName, b.PathPattern, b.EventType, s.Changed, status})
			}
		}
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, AutoMerge: true},
		})
		t.Render()
	}

	if len(r.Failures) > 0 {
		t := newTable(w, fmt.Sprintf("%s failed", r.Action),
			table.Row{"Distribution", "Function", "Pattern", "Event", "Error"})
		for _, f := range r.Failures {
			for _, b := range f.Bindings {
				t.AppendRow(table.Row{f.DistributionID, b.FunctionName, b.PathPattern, b.EventType, f.Err.Error()})
			}
		}
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, AutoMerge: true},
			{Number: 5, AutoMerge: true},
		})
		t.Render()
	}
}
