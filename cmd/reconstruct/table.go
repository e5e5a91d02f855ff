package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/event-recon/backend/internal/model"
)

func renderResult(w io.Writer, result *model.Result) {
	ev := result.Event
	fmt.Fprintf(w, "事件名称: %s\n", ev.EventName)
	fmt.Fprintf(w, "事件时间: %s\n", ev.EventTime)
	fmt.Fprintf(w, "内部用户: %s\n", strings.Join(ev.InternalUsers, ", "))
	fmt.Fprintf(w, "外部用户: %s\n", strings.Join(ev.ExternalUsers, ", "))

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"编号", "时间", "渠道", "内部用户", "外部用户", "时间分", "用户分", "内容分", "总相关性", "风险等级", "风险描述"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 9, Colors: text.Colors{text.FgGreen, text.Bold}},
		{Number: 11, WidthMax: 40},
	})

	for i, r := range result.Records {
		t.AppendRow(table.Row{
			fmt.Sprintf("%02d", i+1),
			clock(r.StartTime),
			r.Channel,
			deref(r.InternalUser),
			deref(r.ExternalUser),
			int(r.Score.TimeScore),
			int(r.Score.UserScore),
			int(r.Score.ContentScore),
			int(r.Score.TotalScore),
			deref(r.Risk.RiskLevel),
			deref(r.Risk.RiskDescription),
		})
	}

	t.Render()
	fmt.Fprintf(w, "记录数: %d\n", len(result.Records))
}

// clock returns the HH:MM:SS tail of a timestamp.
func clock(ts string) string {
	if len(ts) < 8 {
		return ts
	}
	return ts[len(ts)-8:]
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
