package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Attempt results.
const (
	ResultAttempted = "Attempted"
	ResultSubmitted = "Submitted"
	ResultDryRun    = "Filled (dry run)"
	ResultFailed    = "Failed"
	ResultSkipped   = "Not reached"
)

// AttemptLog represents a single slot row in the report
type AttemptLog struct {
	Slot   string `json:"slot"`   // e.g., "Booking 1 (12am-4am)"
	Result string `json:"result"` // e.g., "Submitted"
	Detail string `json:"detail"` // e.g., confirmation banner text
	Email  string `json:"email"`
}

// LogEntry holds all the data required to generate the run report
type LogEntry struct {
	RunID         string `json:"run_id"`
	TargetSite    string `json:"target_site"`
	Room          string `json:"room"`
	ExecutionMode string `json:"execution_mode"`
	DryRun        bool   `json:"dry_run"`

	TargetDate   string    `json:"target_date"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	PageForwards int       `json:"page_forwards"`

	Attempts []AttemptLog `json:"attempts"`

	Result         string   `json:"result"`
	FailedStep     string   `json:"failed_step,omitempty"`
	ErrorKind      string   `json:"error_kind,omitempty"`
	Error          string   `json:"error,omitempty"`
	ObservedIssues []string `json:"observed_issues,omitempty"`
}

// Succeeded reports whether every slot went through.
func (e LogEntry) Succeeded() bool { return strings.HasPrefix(e.Result, "SUCCESS") }

// PrintExecutionLog writes the human-readable report to w.
func PrintExecutionLog(w io.Writer, e LogEntry) {
	headerColor := color.New(color.FgHiCyan, color.Bold).SprintFunc()
	sectionColor := color.New(color.FgHiYellow).SprintFunc()
	labelColor := color.New(color.FgWhite).SprintFunc()
	valueColor := color.New(color.FgHiWhite).SprintFunc()
	successColor := color.New(color.FgGreen, color.Bold).SprintFunc()
	errorColor := color.New(color.FgRed, color.Bold).SprintFunc()

	rule := sectionColor("--------------------------------------------------")

	fmt.Fprintln(w, "\n"+headerColor("[LibCal Booking Run]"))
	fmt.Fprintf(w, "%s         : %s\n", labelColor("Run ID"), valueColor(e.RunID))
	fmt.Fprintf(w, "%s    : %s\n", labelColor("Target Site"), valueColor(e.TargetSite))
	fmt.Fprintf(w, "%s           : %s\n", labelColor("Room"), valueColor(e.Room))
	fmt.Fprintf(w, "%s : %s\n", labelColor("Execution Mode"), valueColor(e.ExecutionMode))

	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintln(w, sectionColor("[1] Timing"))
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%s    : %s\n", labelColor("Target Date"), valueColor(e.TargetDate))
	fmt.Fprintf(w, "%s     : %s\n", labelColor("Started At"), valueColor(e.StartedAt.Format("2006-01-02 15:04:05")))
	if !e.FinishedAt.IsZero() {
		fmt.Fprintf(w, "%s       : %s\n", labelColor("Duration"), valueColor(e.FinishedAt.Sub(e.StartedAt).Round(time.Millisecond).String()))
	}
	fmt.Fprintf(w, "%s  : %s\n", labelColor("Next Clicks"), valueColor(fmt.Sprintf("%d", e.PageForwards)))

	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintln(w, sectionColor("[2] Bookings"))
	fmt.Fprintln(w, rule)
	for i, a := range e.Attempts {
		res := valueColor(a.Result)
		switch a.Result {
		case ResultSubmitted, ResultDryRun:
			res = successColor(a.Result)
		case ResultFailed:
			res = errorColor(a.Result)
		}
		fmt.Fprintf(w, "  [%d] %s  → %s\n", i+1, a.Slot, res)
		if a.Detail != "" {
			fmt.Fprintf(w, "      %s\n", a.Detail)
		}
	}

	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintln(w, sectionColor("[3] Result Summary"))
	fmt.Fprintln(w, rule)

	resColor := errorColor
	if e.Succeeded() {
		resColor = successColor
	}
	fmt.Fprintf(w, "%s         : %s\n", labelColor("Result"), resColor(e.Result))
	if e.Error != "" {
		fmt.Fprintf(w, "%s    : %s\n", labelColor("Failed Step"), valueColor(e.FailedStep))
		fmt.Fprintf(w, "%s     : %s\n", labelColor("Error Kind"), valueColor(e.ErrorKind))
		fmt.Fprintf(w, "%s          : %s\n", labelColor("Error"), valueColor(e.Error))
	}
	issues := "none"
	if len(e.ObservedIssues) > 0 {
		issues = strings.Join(e.ObservedIssues, "\n                 ")
	}
	fmt.Fprintf(w, "%s: %s\n", labelColor("Observed Issues"), valueColor(issues))
}

// WriteStructuredLog appends the log entry as a JSON line to the specified file
func WriteStructuredLog(e LogEntry, filename string) error {
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = f.Write(b)
	return err
}
