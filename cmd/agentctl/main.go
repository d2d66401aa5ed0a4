// Command agentctl inspects the agentcore execution store: recent runs,
// per-execution step and action detail, store totals, pruning, and metric
// aggregates read back from Prometheus.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentcore/pkg/config"
	"agentcore/pkg/metrics"
	"agentcore/pkg/persistence"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "list":
		err = runList(os.Args[2:])
	case "show":
		err = runShow(os.Args[2:])
	case "summary":
		err = runSummary(os.Args[2:])
	case "prune":
		err = runPrune(os.Args[2:])
	case "delete":
		err = runDelete(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "agentctl - inspect the agentcore execution store\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  %s <command> [flags] [args]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  list     Show recent executions\n")
	fmt.Fprintf(os.Stderr, "  show     Show one execution with its steps and actions\n")
	fmt.Fprintf(os.Stderr, "  summary  Show store totals\n")
	fmt.Fprintf(os.Stderr, "  prune    Delete old executions, keeping the newest N\n")
	fmt.Fprintf(os.Stderr, "  delete   Delete one execution and its steps and actions\n")
	fmt.Fprintf(os.Stderr, "  stats    Show aggregates read back from Prometheus\n\n")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  %s list -workdir ./myproject -limit 10\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s show -json 1b6452c8-8e14-4b27-9a53-1e0b2f3c4d5e\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s prune -keep 50\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s stats -prometheus http://localhost:9090\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Run %s <command> -h for command flags.\n", os.Args[0])
}

// openStore opens the project database directly rather than through the
// process-wide singleton, so inspection works alongside a running agent.
func openStore(projectDir string) (*persistence.Store, func(), error) {
	dbPath := filepath.Join(projectDir, config.ProjectConfigDir, config.DatabaseFilename)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, nil, fmt.Errorf("no execution store at %s (run an agentcore task first)", dbPath)
	}

	db, err := persistence.InitializeDatabase(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return persistence.NewStore(db), func() { _ = db.Close() }, nil
}

func runList(args []string) error {
	flagSet := flag.NewFlagSet("list", flag.ExitOnError)
	projectDir := flagSet.String("workdir", ".", "Project directory")
	limit := flagSet.Int("limit", 20, "Maximum executions to show")
	state := flagSet.String("state", "", "Filter by state: running, completed, error or cancelled")
	asJSON := flagSet.Bool("json", false, "Output JSON")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	store, cleanup, err := openStore(*projectDir)
	if err != nil {
		return err
	}
	defer cleanup()

	var rows []*persistence.ExecutionRow
	if *state != "" {
		rows, err = store.QueryExecutionsByFilter(&persistence.ExecutionFilter{State: state, Limit: *limit})
	} else {
		rows, err = store.ListRecentExecutions(*limit)
	}
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Println("No executions recorded.")
		return nil
	}
	for _, row := range rows {
		fmt.Println(executionLine(row))
	}
	return nil
}

// executionLine renders one execution for the list view.
func executionLine(row *persistence.ExecutionRow) string {
	return fmt.Sprintf("%s  %-10s  %7d tok  %s  %s",
		row.StartedAt.Local().Format("2006-01-02 15:04:05"),
		row.State, row.TotalTokens, row.ID, truncate(row.Task, 60))
}

// executionDetail is the JSON shape of the show command.
type executionDetail struct {
	Execution *persistence.ExecutionRow `json:"execution"`
	Steps     []stepDetail              `json:"steps"`
}

type stepDetail struct {
	Step    *persistence.StepRow           `json:"step"`
	Actions []*persistence.ActionResultRow `json:"actions,omitempty"`
}

func runShow(args []string) error {
	flagSet := flag.NewFlagSet("show", flag.ExitOnError)
	projectDir := flagSet.String("workdir", ".", "Project directory")
	asJSON := flagSet.Bool("json", false, "Output JSON")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("show needs exactly one execution id")
	}
	executionID := flagSet.Arg(0)

	store, cleanup, err := openStore(*projectDir)
	if err != nil {
		return err
	}
	defer cleanup()

	row, err := store.GetExecutionByID(executionID)
	if err != nil {
		if errors.Is(err, persistence.ErrExecutionNotFound) {
			return fmt.Errorf("execution %s not found", executionID)
		}
		return err
	}

	steps, err := store.GetStepsByExecution(executionID)
	if err != nil {
		return err
	}

	detail := executionDetail{Execution: row, Steps: make([]stepDetail, 0, len(steps))}
	for _, step := range steps {
		actions, actErr := store.GetActionResultsByStep(executionID, step.Number)
		if actErr != nil {
			return actErr
		}
		detail.Steps = append(detail.Steps, stepDetail{Step: step, Actions: actions})
	}

	if *asJSON {
		return printJSON(detail)
	}
	printExecutionDetail(detail)
	return nil
}

func printExecutionDetail(detail executionDetail) {
	row := detail.Execution

	fmt.Printf("Execution %s\n", row.ID)
	fmt.Printf("  Task:    %s\n", truncate(row.Task, 100))
	fmt.Printf("  Model:   %s\n", row.Model)
	fmt.Printf("  State:   %s\n", row.State)
	fmt.Printf("  Started: %s\n", row.StartedAt.Local().Format(time.RFC3339))
	if row.EndedAt != nil {
		fmt.Printf("  Ended:   %s (%s)\n",
			row.EndedAt.Local().Format(time.RFC3339),
			row.EndedAt.Sub(row.StartedAt).Round(time.Millisecond))
	}
	fmt.Printf("  Tokens:  %d prompt + %d completion = %d total\n",
		row.PromptTokens, row.CompletionTokens, row.TotalTokens)
	if row.ErrorKind != "" {
		fmt.Printf("  Error:   %s: %s\n", row.ErrorKind, row.ErrorMessage)
	}
	if row.FinalResult != "" {
		fmt.Printf("  Result:  %s\n", truncate(row.FinalResult, 200))
	}

	for _, sd := range detail.Steps {
		step := sd.Step
		fmt.Printf("\n  Step %d [%s]", step.Number, step.State)
		if step.Retries > 0 {
			fmt.Printf(" (%d retries)", step.Retries)
		}
		fmt.Println()
		if step.Response != "" {
			fmt.Printf("    %s\n", truncate(step.Response, 120))
		}
		if step.ErrorKind != "" {
			fmt.Printf("    error %s: %s\n", step.ErrorKind, step.ErrorMessage)
		}
		for _, action := range sd.Actions {
			status := "ok"
			if !action.Success {
				status = "FAILED: " + truncate(action.ErrorMessage, 60)
			}
			fmt.Printf("    - %s (%s) %dms %s\n", action.Tool, action.CallID, action.DurationMS, status)
		}
	}
}

func runSummary(args []string) error {
	flagSet := flag.NewFlagSet("summary", flag.ExitOnError)
	projectDir := flagSet.String("workdir", ".", "Project directory")
	asJSON := flagSet.Bool("json", false, "Output JSON")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	store, cleanup, err := openStore(*projectDir)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := store.GetStoreSummary()
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(summary)
	}
	fmt.Printf("Executions: %d total, %d completed\n", summary.TotalExecutions, summary.CompletedExecutions)
	fmt.Printf("Steps:      %d\n", summary.TotalSteps)
	fmt.Printf("Tokens:     %d\n", summary.TotalTokens)
	if summary.LastCompleted != nil {
		fmt.Printf("Last done:  %s\n", summary.LastCompleted.Local().Format(time.RFC3339))
	}
	return nil
}

func runPrune(args []string) error {
	flagSet := flag.NewFlagSet("prune", flag.ExitOnError)
	projectDir := flagSet.String("workdir", ".", "Project directory")
	keep := flagSet.Int("keep", 20, "Finished executions to keep")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *keep < 0 {
		return fmt.Errorf("-keep must not be negative")
	}

	store, cleanup, err := openStore(*projectDir)
	if err != nil {
		return err
	}
	defer cleanup()

	removed, err := store.PruneExecutions(*keep)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d executions, kept the newest %d (running executions are never pruned)\n", removed, *keep)
	return nil
}

func runDelete(args []string) error {
	flagSet := flag.NewFlagSet("delete", flag.ExitOnError)
	projectDir := flagSet.String("workdir", ".", "Project directory")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("delete needs exactly one execution id")
	}
	executionID := flagSet.Arg(0)

	store, cleanup, err := openStore(*projectDir)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := store.DeleteExecution(executionID); err != nil {
		if errors.Is(err, persistence.ErrExecutionNotFound) {
			return fmt.Errorf("execution %s not found", executionID)
		}
		return err
	}
	fmt.Printf("Deleted execution %s\n", executionID)
	return nil
}

// statsReport is the JSON shape of the stats command.
type statsReport struct {
	Executions *metrics.ExecutionStats        `json:"executions"`
	Models     map[string]*metrics.ModelStats `json:"models"`
	Tools      map[string]*metrics.ToolStats  `json:"tools"`
}

func runStats(args []string) error {
	flagSet := flag.NewFlagSet("stats", flag.ExitOnError)
	projectDir := flagSet.String("workdir", ".", "Project directory")
	promURL := flagSet.String("prometheus", "", "Prometheus base URL (default: agent.metrics.prometheus_url from config)")
	queryTimeout := flagSet.Duration("timeout", 10*time.Second, "Query timeout")
	asJSON := flagSet.Bool("json", false, "Output JSON")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	url, namespace := statsTarget(*projectDir, *promURL)
	if url == "" {
		return fmt.Errorf("no Prometheus URL: pass -prometheus or set agent.metrics.prometheus_url in config")
	}

	svc, err := metrics.NewQueryService(url, namespace)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *queryTimeout)
	defer cancel()

	report := statsReport{}
	if report.Executions, err = svc.GetExecutionStats(ctx); err != nil {
		return fmt.Errorf("failed to query execution stats: %w", err)
	}
	if report.Models, err = svc.GetModelStats(ctx); err != nil {
		return fmt.Errorf("failed to query model stats: %w", err)
	}
	if report.Tools, err = svc.GetToolStats(ctx); err != nil {
		return fmt.Errorf("failed to query tool stats: %w", err)
	}

	if *asJSON {
		return printJSON(report)
	}

	e := report.Executions
	fmt.Printf("Executions: %d completed, %d failed, %d cancelled\n", e.Completed, e.Failed, e.Cancelled)
	fmt.Printf("Tokens:     %d prompt + %d completion = %d total\n", e.PromptTokens, e.CompletionTokens, e.TotalTokens)
	for name, m := range report.Models {
		fmt.Printf("Model %s: %d executions, %d steps, %d tokens\n", name, m.Executions, m.Steps, m.TotalTokens)
	}
	for name, tl := range report.Tools {
		fmt.Printf("Tool %s: %d invocations, %d failures\n", name, tl.Invocations, tl.Failures)
	}
	return nil
}

// statsTarget resolves the Prometheus URL and metric namespace. An explicit
// URL flag wins; otherwise the project config supplies both when it exists.
// Loading is skipped for a missing config file so inspection never scaffolds
// a project as a side effect.
func statsTarget(projectDir, urlFlag string) (url, namespace string) {
	url = urlFlag
	namespace = "agentcore"

	configPath := filepath.Join(projectDir, config.ProjectConfigDir, config.ProjectConfigFilename)
	if _, err := os.Stat(configPath); err != nil {
		return url, namespace
	}
	if err := config.LoadConfig(projectDir); err != nil {
		return url, namespace
	}
	cfg, err := config.GetConfig()
	if err != nil || cfg.Agent == nil {
		return url, namespace
	}

	namespace = cfg.Agent.Metrics.Namespace
	if url == "" {
		url = cfg.Agent.Metrics.PrometheusURL
	}
	return url, namespace
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// truncate flattens newlines and caps the string for single-line display.
func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
