package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"agentcore/pkg/config"
	"agentcore/pkg/engine"
	execpkg "agentcore/pkg/exec"
	"agentcore/pkg/execution"
	"agentcore/pkg/llm/factory"
	"agentcore/pkg/logx"
	"agentcore/pkg/metrics"
	"agentcore/pkg/persistence"
	"agentcore/pkg/taskfile"
	"agentcore/pkg/tools"
	"agentcore/pkg/version"
)

// Log files rotate before config is loaded, so the keep count cannot come
// from config here.
const logRotationKeep = 4

// options carries the parsed command line into run().
type options struct {
	task        string
	taskFile    string
	model       string
	strategy    string
	maxSteps    int
	projectDir  string
	metricsAddr string
}

func main() {
	// Parse command line flags
	var (
		task        = flag.String("task", "", "Task for the agent to execute")
		taskFile    = flag.String("task-file", "", "Path to a markdown task file with YAML frontmatter")
		model       = flag.String("model", "", "Model name override (e.g. claude-sonnet-4-5)")
		strategy    = flag.String("strategy", "", "Coordination strategy override: sequential, parallel, smart or batched")
		maxSteps    = flag.Int("max-steps", 0, "Step budget override (0 = keep config value)")
		projectDir  = flag.String("workdir", ".", "Project directory")
		metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address (overrides config)")
		debug       = flag.Bool("debug", false, "Enable debug logging and tee logs to the console")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("agentcore %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
		os.Exit(0)
	}

	if *debug {
		logx.SetDebug(true)
	}

	// Initialize log file rotation BEFORE any logging occurs so everything
	// from config loading on is captured.
	logsDir := filepath.Join(*projectDir, config.ProjectConfigDir, "logs")
	if err := logx.InitializeLogFile(logsDir, logRotationKeep, *debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize log file: %v\n", err)
		os.Exit(1)
	}

	exitCode := run(options{
		task:        *task,
		taskFile:    *taskFile,
		model:       *model,
		strategy:    *strategy,
		maxSteps:    *maxSteps,
		projectDir:  *projectDir,
		metricsAddr: *metricsAddr,
	})

	// Close log file before exiting
	if closeErr := logx.CloseLogFile(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", closeErr)
	}

	os.Exit(exitCode)
}

// run contains the main application logic and returns an exit code.
// This allows defers in main() to execute before os.Exit is called.
func run(opts options) int {
	if opts.task == "" && opts.taskFile == "" {
		fmt.Fprintln(os.Stderr, "Either -task or -task-file is required")
		flag.Usage()
		return 2
	}
	if opts.task != "" && opts.taskFile != "" {
		fmt.Fprintln(os.Stderr, "-task and -task-file are mutually exclusive")
		return 2
	}

	// Warn if workdir is using the default value
	if opts.projectDir == "." {
		config.LogInfo("⚠️  -workdir not set. Using the current directory.")
	}

	// Load or create .agentcore/config.json
	if err := config.LoadConfig(opts.projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Load encrypted credentials into memory if a secrets file exists
	if err := unlockSecrets(opts.projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unlock secrets: %v\n", err)
		return 1
	}

	// Resolve the task text and fold task-file and flag overrides into config
	task, err := mergeTaskAndOverrides(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	if err := config.GenerateSessionID(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate session ID: %v\n", err)
		return 1
	}

	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get config: %v\n", err)
		return 1
	}

	// Make sure credentials exist for the selected model, prompting once on
	// an interactive terminal when they are missing
	if err := ensureAPIKey(opts.projectDir, cfg.Agent.Model); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	if err := runExecution(cfg, opts, task); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}

// runExecution wires the store, observers, tool backend, and LLM client, then
// drives one execution to a terminal state. A completed execution returns nil;
// everything else is reported as an error so run() exits non-zero.
func runExecution(cfg config.Config, opts options, task string) error {
	// Execution store and recorder
	configDir, err := config.GetProjectConfigDir()
	if err != nil {
		return fmt.Errorf("failed to resolve config dir: %w", err)
	}
	if err := persistence.Initialize(filepath.Join(configDir, config.DatabaseFilename)); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() { _ = persistence.Close() }()

	observers := []engine.Observer{persistence.NewRecorder(persistence.Ops(), cfg.Agent.Model)}

	promObserver, stopMetrics, err := setupMetrics(cfg, opts.metricsAddr)
	if err != nil {
		return err
	}
	defer stopMetrics()
	if promObserver != nil {
		observers = append(observers, promObserver)
	}
	observer := engine.NewMultiObserver(observers...)

	// Tool backend with local and optionally sandboxed executors
	workDir, err := filepath.Abs(opts.projectDir)
	if err != nil {
		return fmt.Errorf("failed to resolve workdir: %w", err)
	}
	backend, stopExecutors, err := buildBackend(cfg, workDir)
	if err != nil {
		return err
	}
	defer stopExecutors()

	// LLM client with retry attempts fanned out to the observers
	clientFactory := factory.NewClientFactory(cfg)
	clientFactory.SetRetryNotify(observer.RetryAttempted)
	client, err := clientFactory.CreateClient()
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	eng := engine.New(client, backend, *cfg.Agent)
	eng.SetObserver(observer)

	// SIGINT/SIGTERM cancel the context; the engine finalizes the execution
	// as cancelled and the recorder persists that state
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LogInfo("🚀 Running task (model %s, strategy %s, max %d steps)",
		cfg.Agent.Model, cfg.Agent.Strategy, cfg.Agent.MaxSteps)

	result := eng.Run(ctx, task)
	printResult(result)

	if result.State != execution.ExecutionCompleted {
		return fmt.Errorf("execution %s %s", result.ID, result.State)
	}
	return nil
}

// mergeTaskAndOverrides resolves the task text and applies overrides to the
// agent config. Precedence: flags > task file > config file.
func mergeTaskAndOverrides(opts options) (string, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return "", fmt.Errorf("failed to get config: %w", err)
	}
	agentCfg := *cfg.Agent

	task := opts.task
	if opts.taskFile != "" {
		tf, loadErr := taskfile.Load(opts.taskFile)
		if loadErr != nil {
			return "", fmt.Errorf("failed to load task file: %w", loadErr)
		}
		if err := tf.Validate(); err != nil {
			return "", err
		}
		tf.ApplyTo(&agentCfg)
		task = tf.Prompt
		config.LogInfo("📋 Loaded task file %s: %s", tf.ID, tf.Title)
	}

	switch opts.strategy {
	case "", config.StrategySequential, config.StrategyParallel, config.StrategySmart, config.StrategyBatched:
	default:
		return "", fmt.Errorf("unknown strategy %q (want sequential, parallel, smart or batched)", opts.strategy)
	}

	if opts.model != "" {
		agentCfg.Model = opts.model
	}
	if opts.strategy != "" {
		agentCfg.Strategy = opts.strategy
	}
	if opts.maxSteps > 0 {
		agentCfg.MaxSteps = opts.maxSteps
	}

	if err := config.UpdateAgent(&agentCfg); err != nil {
		return "", fmt.Errorf("failed to apply overrides: %w", err)
	}
	return task, nil
}

// setupMetrics registers the Prometheus observer and serves /metrics. The
// address flag forces serving even when the config disables metrics; with no
// flag the config decides and the default listen address is used.
func setupMetrics(cfg config.Config, addrFlag string) (*metrics.PrometheusObserver, func(), error) {
	mc := cfg.Agent.Metrics
	enabled := addrFlag != "" || (mc.Enabled && mc.Exporter != "noop")
	if !enabled {
		return nil, func() {}, nil
	}

	registry := prometheus.NewRegistry()
	observer := metrics.NewPrometheusObserver(registry, mc.Namespace, cfg.Agent.Model)

	srv, err := metrics.StartServer(addrFlag, registry)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start metrics server: %w", err)
	}
	config.LogInfo("📈 Serving Prometheus metrics on %s/metrics", srv.Addr)

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if stopErr := metrics.StopServer(shutdownCtx, srv); stopErr != nil {
			logx.NewLogger("metrics").Error("Failed to stop metrics server: %v", stopErr)
		}
	}
	return observer, cleanup, nil
}

// buildBackend creates the tool provider bound to its executors. The local
// executor always exists; a docker sandbox is added when the executor config
// asks for one. workDir is the host path tools operate in - the docker
// executor mounts it into the container itself.
func buildBackend(cfg config.Config, workDir string) (*tools.Provider, func(), error) {
	localCtx := tools.AgentContext{
		Executor: execpkg.NewLocalExec(),
		WorkDir:  workDir,
		ReadOnly: cfg.Executor.ReadOnly,
	}

	var sandboxCtx tools.AgentContext
	cleanup := func() {}

	if cfg.Executor.Type == config.ExecutorDocker {
		docker := execpkg.NewDockerExec(cfg.Executor.Image)
		if !docker.Available() {
			return nil, nil, fmt.Errorf("executor type is %q but no container runtime is available", config.ExecutorDocker)
		}
		sandboxCtx = tools.AgentContext{
			Executor:        docker,
			WorkDir:         workDir,
			ReadOnly:        cfg.Executor.ReadOnly,
			NetworkDisabled: cfg.Executor.NetworkDisabled,
		}
		cleanup = func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := docker.Shutdown(shutdownCtx); err != nil {
				logx.NewLogger("docker-exec").Error("Failed to shut down containers: %v", err)
			}
		}
		config.LogInfo("🐳 Sandboxing tools in %s", cfg.Executor.Image)
	}

	sandboxTools := cfg.Executor.SandboxTools
	if len(sandboxTools) == 0 && sandboxCtx.Executor != nil {
		sandboxTools = tools.DefaultSandboxTools
	}

	provider, err := tools.NewProvider(localCtx, sandboxCtx, cfg.Executor.AllowedTools, sandboxTools)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create tool provider: %w", err)
	}
	return provider, cleanup, nil
}

// printResult reports the execution outcome on stdout.
func printResult(result *execution.Execution) {
	elapsed := result.Duration().Round(time.Second)

	fmt.Println()
	switch result.State {
	case execution.ExecutionCompleted:
		fmt.Printf("✅ Task completed in %d steps (%s)\n", len(result.Steps), elapsed)
	case execution.ExecutionCancelled:
		fmt.Printf("🛑 Task cancelled after %d steps (%s)\n", len(result.Steps), elapsed)
	default:
		fmt.Printf("❌ Task failed after %d steps (%s)\n", len(result.Steps), elapsed)
		if result.Error != nil {
			fmt.Printf("   %s: %s\n", result.Error.Kind, result.Error.Message)
		}
	}

	if result.FinalResult != "" {
		fmt.Println()
		fmt.Println(result.FinalResult)
	}

	fmt.Printf("\n📊 Tokens: %d prompt + %d completion = %d total\n",
		result.Usage.PromptTokens, result.Usage.CompletionTokens, result.Usage.TotalTokens)
}
