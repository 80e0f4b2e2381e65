package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/ChuLiYu/drf-sim/internal/report"
	"github.com/ChuLiYu/drf-sim/internal/storage/eventlog"
	"github.com/ChuLiYu/drf-sim/internal/worker"
	"github.com/ChuLiYu/drf-sim/pkg/types"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderReport 以表格輸出報告
//
//	Scenario: drf-share  Run: 6f1c...  Ticks: 10  Rounds: 10  In-flight: 5
//
//	AGENT    TOTAL    CONSUMED  AVAILABLE
//	default  [9, 18]  [9, 14]   [0, 4]
//
//	AGENT    FRAMEWORK  SHARE   USAGE
//	default  A          0.6667  [6, 2]
//
//	FRAMEWORK  POLICY    OFFERS  LAUNCHED  DECLINED  FINISHED  REJECTED  ERROR
//	A          launcher  3       2         0         0         0
func renderReport(w io.Writer, r *report.Report) error {
	fmt.Fprintf(w, "Scenario: %s  Run: %s  Ticks: %d  Rounds: %d  In-flight: %d\n\n",
		r.Scenario, r.RunID, r.Ticks, r.Rounds, r.InFlight)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "AGENT\tTOTAL\tCONSUMED\tAVAILABLE")
	for _, a := range r.Agents {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Name, a.Total, a.Consumed, a.Available)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "AGENT\tFRAMEWORK\tSHARE\tUSAGE")
	for _, a := range r.Agents {
		for _, e := range a.Shares {
			fmt.Fprintf(tw, "%s\t%s\t%.4f\t%s\n", a.Name, e.Framework, e.Share, a.Usage[e.Framework])
		}
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "FRAMEWORK\tPOLICY\tOFFERS\tLAUNCHED\tDECLINED\tFINISHED\tREJECTED\tERROR")
	for _, f := range r.Frameworks {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			f.Name, f.Policy, f.Stats.Offers, f.Stats.Launched, f.Stats.Declined,
			f.Stats.Finished, f.Stats.Rejected, f.Error)
	}
	return tw.Flush()
}

// sweepRow JSON 輸出的單列
type sweepRow struct {
	Task     string         `json:"task"`
	Duration string         `json:"duration"`
	Error    string         `json:"error,omitempty"`
	Report   *report.Report `json:"report,omitempty"`
}

// renderSweep 每個任務一列，依框架列出啟動數
//
//	TASK                              DURATION  A  B  C  D  E  F  ERROR
//	filter-starvation/filter_ticks=5  1.2ms     0  0  0  0  0  0
func renderSweep(w io.Writer, results []worker.Result) error {
	var names []string
	seen := make(map[string]bool)
	for _, res := range results {
		if res.Report == nil {
			continue
		}
		for _, f := range res.Report.Frameworks {
			if !seen[string(f.Name)] {
				seen[string(f.Name)] = true
				names = append(names, string(f.Name))
			}
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "TASK\tDURATION")
	for _, n := range names {
		fmt.Fprintf(tw, "\t%s", n)
	}
	fmt.Fprintln(tw, "\tERROR")

	for _, res := range results {
		fmt.Fprintf(tw, "%s\t%s", res.TaskID, res.Duration)
		for _, n := range names {
			launched := "-"
			if res.Report != nil {
				if f, ok := res.Report.Framework(types.FrameworkID(n)); ok {
					launched = fmt.Sprint(f.Stats.Launched)
				}
			}
			fmt.Fprintf(tw, "\t%s", launched)
		}
		errText := ""
		if res.Error != nil {
			errText = res.Error.Error()
		}
		fmt.Fprintf(tw, "\t%s\n", errText)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "(columns per framework: tasks launched)")
	return tw.Flush()
}

func sweepRows(results []worker.Result) []sweepRow {
	rows := make([]sweepRow, 0, len(results))
	for _, res := range results {
		row := sweepRow{Task: res.TaskID, Duration: res.Duration.String(), Report: res.Report}
		if res.Error != nil {
			row.Error = res.Error.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

// renderStats 事件日誌統計
func renderStats(w io.Writer, path string, st *eventlog.Stats) error {
	fmt.Fprintf(w, "File: %s\nRecords: %d  Seq: %d..%d  Ticks: %d..%d\n\n",
		path, st.TotalRecords, st.FirstSeq, st.LastSeq, st.TickRange[0], st.TickRange[1])

	keys := make([]string, 0, len(st.Names))
	for k := range st.Names {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tCOUNT")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%d\n", k, st.Names[k])
	}
	return tw.Flush()
}
