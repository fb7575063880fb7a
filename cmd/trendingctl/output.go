package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/olekukonko/tablewriter"

	"github.com/xtxerr/trending/internal/client"
	"github.com/xtxerr/trending/internal/handler"
	"github.com/xtxerr/trending/internal/store"
)

func (a *app) printJSON(v interface{}) error {
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(b))
	return err
}

func (a *app) table(header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(a.out)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetBorder(false)
	t.SetColumnSeparator("")
	t.SetHeaderLine(false)
	return t
}

func (a *app) printNodes(nodes []handler.NodeJSON) error {
	if a.output == "json" {
		return a.printJSON(nodes)
	}
	t := a.table("HANDLE", "NAME", "CHANNEL")
	for _, n := range nodes {
		name := n.Text
		if n.Children {
			name += "/"
		}
		id, _ := n.DataID()
		t.Append([]string{strconv.Itoa(n.ID), name, id})
	}
	t.Render()
	return nil
}

func (a *app) printTrend(keys []string, tr *client.Trend) error {
	if a.output == "json" {
		return a.printJSON(tr)
	}
	if len(tr.Summary) > 0 {
		return a.printSummary(keys, tr.Summary)
	}

	t := a.table(append([]string{"TIME"}, keys...)...)
	for _, row := range tr.Data {
		if len(row) == 0 {
			continue
		}
		line := make([]string, len(keys)+1)
		line[0] = formatTime(row[0])
		for i := range keys {
			if i+1 < len(row) {
				line[i+1] = formatCell(row[i+1])
			}
		}
		t.Append(line)
	}
	t.Render()
	return nil
}

func (a *app) printSummary(keys []string, summaries []client.SummaryJSON) error {
	t := a.table("CHANNEL", "COUNT", "MIN", "MEAN", "MAX", "P50", "P90", "P99")
	for i, s := range summaries {
		key := strconv.Itoa(i)
		if i < len(keys) {
			key = keys[i]
		}
		t.Append([]string{
			key,
			strconv.FormatInt(s.Count, 10),
			formatOptional(s.Min),
			formatOptional(s.Mean),
			formatOptional(s.Max),
			formatOptional(s.P50),
			formatOptional(s.P90),
			formatOptional(s.P99),
		})
	}
	t.Render()
	return nil
}

func (a *app) printLoads(loads []store.Load) error {
	if a.output == "json" {
		return a.printJSON(loads)
	}
	t := a.table("STARTED", "SITE", "SOURCE", "KIND", "TRIGGER", "DURATION", "CHANNELS", "ERROR")
	for _, l := range loads {
		t.Append([]string{
			l.StartedAt.Local().Format(time.DateTime),
			l.Site,
			l.Source,
			l.Kind,
			l.Trigger,
			(time.Duration(l.Duration) * time.Millisecond).String(),
			strconv.Itoa(l.Channels),
			l.Error,
		})
	}
	t.Render()
	return nil
}

func (a *app) printSites(sites []handler.SiteJSON) error {
	if a.output == "json" {
		return a.printJSON(sites)
	}
	t := a.table("SITE", "SOURCE", "CATALOG", "STATE", "NODES", "LAST LOAD", "ERROR")
	for _, s := range sites {
		name := s.Name
		if s.Default {
			name += " *"
		}
		for _, src := range s.Sources {
			srcName := src.Name
			if srcName == s.DefaultSource {
				srcName += " *"
			}
			for _, c := range src.Catalogs {
				last := ""
				if c.LastLoad != nil {
					last = c.LastLoad.Local().Format(time.DateTime)
				}
				t.Append([]string{name, srcName, c.Kind, c.State, strconv.Itoa(c.Nodes), last, c.LastError})
			}
		}
	}
	t.Render()
	return nil
}

// formatTime renders a Unix millisecond timestamp.
func formatTime(v interface{}) string {
	ms, ok := v.(float64)
	if !ok {
		return fmt.Sprint(v)
	}
	return time.UnixMilli(int64(ms)).Local().Format("2006-01-02 15:04:05.000")
}

// formatCell renders a bin: a number, [value, rms] or [min, value, max].
func formatCell(v interface{}) string {
	switch c := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(c, 'g', 6, 64)
	case []interface{}:
		f := make([]string, len(c))
		for i, e := range c {
			f[i] = formatCell(e)
		}
		switch len(f) {
		case 2:
			return f[0] + " ±" + f[1]
		case 3:
			return f[1] + " [" + f[0] + ", " + f[2] + "]"
		}
		return fmt.Sprint(f)
	default:
		return fmt.Sprint(c)
	}
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', 6, 64)
}
