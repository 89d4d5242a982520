package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	agentstatic "github.com/codewatchers/reviewd/internal/adapter/agent/static"
	"github.com/codewatchers/reviewd/internal/adapter/cli"
	"github.com/codewatchers/reviewd/internal/adapter/git"
	"github.com/codewatchers/reviewd/internal/adapter/httpapi"
	jsonout "github.com/codewatchers/reviewd/internal/adapter/output/json"
	"github.com/codewatchers/reviewd/internal/adapter/output/markdown"
	githubpub "github.com/codewatchers/reviewd/internal/adapter/publish/github"
	"github.com/codewatchers/reviewd/internal/adapter/scanner"
	storeadapter "github.com/codewatchers/reviewd/internal/adapter/store"
	"github.com/codewatchers/reviewd/internal/adapter/store/sqlite"
	"github.com/codewatchers/reviewd/internal/config"
	"github.com/codewatchers/reviewd/internal/consensus"
	"github.com/codewatchers/reviewd/internal/domain"
	"github.com/codewatchers/reviewd/internal/observability"
	"github.com/codewatchers/reviewd/internal/queue"
	"github.com/codewatchers/reviewd/internal/store"
	"github.com/codewatchers/reviewd/internal/triage"
	"github.com/codewatchers/reviewd/internal/version"
	"github.com/codewatchers/reviewd/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(config.LoaderOptions{
		ConfigFile: os.Getenv("REVIEWD_CONFIG"),
	})
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logger := observability.NewDefaultLogger(
		observability.ParseLevel(cfg.Observability.Logging.Level),
		observability.ParseFormat(cfg.Observability.Logging.Format),
	)

	repoDir := cfg.Git.RepositoryDir
	if repoDir == "" {
		repoDir = "."
	}

	// Run archive. Failures here degrade to an in-memory pipeline
	// rather than refusing to start.
	var runStore store.Store
	if cfg.Store.Enabled {
		storeDir := filepath.Dir(cfg.Store.Path)
		if err := os.MkdirAll(storeDir, 0755); err != nil {
			log.Printf("warning: failed to create store directory: %v", err)
		} else {
			sqliteStore, err := sqlite.NewStore(cfg.Store.Path)
			if err != nil {
				log.Printf("warning: failed to initialize store: %v", err)
			} else {
				runStore = sqliteStore
				defer runStore.Close()
			}
		}
	}

	var archiver workflow.Archiver
	if runStore != nil {
		archiver = storeadapter.NewBridge(runStore)
	}

	var scanners []workflow.Scanner
	if cfg.Scanners.Builtin.Enabled {
		scanners = append(scanners, scanner.NewPatternScanner())
	}
	if cfg.Scanners.Semgrep.Enabled {
		timeout := 90 * time.Second
		if cfg.Scanners.Semgrep.Timeout != "" {
			if parsed, err := time.ParseDuration(cfg.Scanners.Semgrep.Timeout); err == nil {
				timeout = parsed
			} else {
				log.Printf("warning: invalid semgrep timeout %q, using default 90s", cfg.Scanners.Semgrep.Timeout)
			}
		}
		scanners = append(scanners, scanner.NewSemgrepScanner(scanner.SemgrepOptions{
			Binary:  cfg.Scanners.Semgrep.Binary,
			Rules:   cfg.Scanners.Semgrep.Rules,
			RepoDir: repoDir,
			Timeout: timeout,
		}))
	}

	var analyzers []workflow.Analyzer
	for _, a := range agentstatic.NewAnalyzers() {
		analyzers = append(analyzers, a)
	}

	var publisher workflow.Publisher
	if cfg.Publish.Enabled {
		if cfg.Publish.GitHub.BaseURL != "" {
			publisher, err = githubpub.NewEnterprisePublisher(
				cfg.Publish.GitHub.Token, cfg.Publish.GitHub.BaseURL, cfg.Publish.GitHub.BotUsername)
			if err != nil {
				return fmt.Errorf("publisher setup failed: %w", err)
			}
		} else {
			publisher = githubpub.NewPublisher(cfg.Publish.GitHub.Token, cfg.Publish.GitHub.BotUsername)
		}
	}

	filter, err := consensus.NewFilter(cfg.Consensus)
	if err != nil {
		return fmt.Errorf("consensus filter setup failed: %w", err)
	}

	engine, err := workflow.NewEngine(workflow.Deps{
		Scanners:   scanners,
		Analyzers:  analyzers,
		Publisher:  publisher,
		Archiver:   archiver,
		Filter:     filter,
		Scorer:     triage.NewScorer(cfg.Triage.Weights),
		Policies:   cfg.Triage.Policies(),
		UnitPolicy: cfg.Workflow.Policy(),
		Timeouts:   cfg.Workflow.Timeouts,
		Retry:      cfg.Publish.Retry,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("workflow engine setup failed: %w", err)
	}

	pool := queue.New(cfg.Queue.Capacity, cfg.Queue.Workers, queue.ProcessorFunc(
		func(ctx context.Context, task domain.ReviewTask) error {
			_, err := engine.Run(ctx, task)
			return err
		}), logger)

	handler := httpapi.WithMiddleware(
		httpapi.NewServeMux(httpapi.NewHandler(pool, runStore, logger)),
		logger,
	)
	server := httpapi.NewServer(cfg.Server.Addr, handler, pool, logger)

	// Timestamp function for deterministic artifact file naming.
	nowFunc := func() string {
		return time.Now().UTC().Format("20060102T150405Z")
	}

	deps := cli.Dependencies{
		Reviewer: engine,
		Diffs:    git.NewSource(repoDir),
		Server:   server,
		Markdown: markdown.NewWriter(nowFunc),
		JSON:     jsonout.NewWriter(nowFunc),
		Version:  version.Value(),
	}
	if runStore != nil {
		deps.Runs = runStore
	}

	root := cli.NewRootCommand(deps)

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, cli.ErrVersionRequested) {
			return nil
		}
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

// Compile-time interface compliance checks
var _ cli.Reviewer = (*workflow.Engine)(nil)
var _ cli.Server = (*httpapi.Server)(nil)
var _ cli.DiffSource = (*git.Source)(nil)
var _ cli.ReportWriter = (*markdown.Writer)(nil)
var _ cli.ReportWriter = (*jsonout.Writer)(nil)
var _ workflow.Archiver = (*storeadapter.Bridge)(nil)
var _ workflow.Scanner = (*scanner.PatternScanner)(nil)
var _ workflow.Scanner = (*scanner.SemgrepScanner)(nil)
var _ workflow.Analyzer = (*agentstatic.Analyzer)(nil)
var _ workflow.Publisher = (*githubpub.Publisher)(nil)
