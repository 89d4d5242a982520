// Package cli wires the cobra command tree for reviewd.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/codewatchers/reviewd/internal/adapter/git"
	"github.com/codewatchers/reviewd/internal/domain"
	"github.com/codewatchers/reviewd/internal/store"
	"github.com/codewatchers/reviewd/internal/workflow"
)

// ErrVersionRequested indicates the user requested the CLI version and no further work should be done.
var ErrVersionRequested = errors.New("version requested")

// Reviewer runs one review task through the full pipeline.
type Reviewer interface {
	Run(ctx context.Context, task domain.ReviewTask) (*workflow.State, error)
}

// DiffSource produces patch text from a local repository.
type DiffSource interface {
	PatchBetween(ctx context.Context, baseRef, headRef string) (git.PatchResult, error)
	CurrentBranch(ctx context.Context) (string, error)
}

// ReportWriter persists one report artifact and returns its path.
type ReportWriter interface {
	Write(report domain.ReviewReport, outputDir string) (string, error)
}

// RunLister reads archived runs for the status command.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error)
}

// Server runs the HTTP intake service until its context is canceled.
type Server interface {
	Run(ctx context.Context) error
}

// Arguments encapsulates IO writers injected from the host process.
type Arguments struct {
	OutWriter io.Writer
	ErrWriter io.Writer
}

// Dependencies captures the collaborators for the CLI.
type Dependencies struct {
	Reviewer          Reviewer
	Diffs             DiffSource
	Runs              RunLister
	Server            Server
	Markdown          ReportWriter
	JSON              ReportWriter
	Args              Arguments
	DefaultRepository string
	Version           string
}

// NewRootCommand constructs the root Cobra command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	versionString := deps.Version
	if versionString == "" {
		versionString = "v0.0.0"
	}

	root := &cobra.Command{
		Use:   "reviewd",
		Short: "Pull request review pipeline",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	outWriter := deps.Args.OutWriter
	if outWriter == nil {
		outWriter = os.Stdout
	}
	errWriter := deps.Args.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	root.SetOut(outWriter)
	root.SetErr(errWriter)

	root.AddCommand(serveCommand(deps.Server))
	root.AddCommand(reviewCommand(deps))
	root.AddCommand(statusCommand(deps.Runs))
	root.AddCommand(checkSkipCommand())

	var showVersion bool
	root.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
	versionHandler := func(cmd *cobra.Command, args []string) error {
		if showVersion {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), versionString)
			return ErrVersionRequested
		}
		return nil
	}
	root.PersistentPreRunE = versionHandler
	root.PreRunE = versionHandler
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if err := versionHandler(cmd, args); err != nil {
			return err
		}
		return cmd.Help()
	}

	return root
}

func serveCommand(server Server) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP intake service and worker pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == nil {
				return fmt.Errorf("server is not configured")
			}
			return server.Run(cmd.Context())
		},
	}
}

func reviewCommand(deps Dependencies) *cobra.Command {
	reviewer := deps.Reviewer
	diffs := deps.Diffs
	defaultRepo := deps.DefaultRepository

	var baseRef string
	var headRef string
	var repository string
	var prNumber int
	var title string
	var diffFile string
	var outputDir string
	var detectHead bool

	cmd := &cobra.Command{
		Use:   "review [head]",
		Short: "Review a branch against a base reference and print the result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reviewer == nil {
				return fmt.Errorf("review pipeline is not configured")
			}
			if len(args) > 0 {
				headRef = args[0]
			}
			ctx := cmd.Context()

			task := domain.ReviewTask{
				ID:          ulid.Make().String(),
				Repository:  repository,
				PRNumber:    prNumber,
				Title:       title,
				SubmittedAt: time.Now().UTC(),
			}

			if diffFile != "" {
				patch, err := readDiffFile(cmd, diffFile)
				if err != nil {
					return err
				}
				task.DiffText = patch
			} else {
				if diffs == nil {
					return fmt.Errorf("no local repository configured; pass --diff-file instead")
				}
				if headRef == "" && detectHead {
					resolved, err := diffs.CurrentBranch(ctx)
					if err != nil {
						return fmt.Errorf("detect head branch: %w", err)
					}
					headRef = resolved
				}
				if headRef == "" {
					return fmt.Errorf("head ref not specified; pass as an argument or use --head")
				}
				patch, err := diffs.PatchBetween(ctx, baseRef, headRef)
				if err != nil {
					return fmt.Errorf("compute diff %s..%s: %w", baseRef, headRef, err)
				}
				task.DiffText = patch.Patch
				task.BaseSHA = patch.BaseSHA
				task.HeadSHA = patch.HeadSHA
			}

			state, err := reviewer.Run(ctx, task)
			if state != nil {
				printRunResult(cmd.OutOrStdout(), state)
			}
			if err != nil {
				return err
			}

			if outputDir != "" && state != nil && state.Report != nil {
				if writeErr := writeArtifacts(cmd.OutOrStdout(), deps, *state.Report, outputDir); writeErr != nil {
					return writeErr
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseRef, "base", "main", "Base reference to diff against")
	cmd.Flags().StringVar(&headRef, "head", "", "Head ref to review (overrides positional)")
	cmd.Flags().BoolVar(&detectHead, "detect-head", true, "Use the checked out branch when no head is provided")
	cmd.Flags().StringVar(&repository, "repository", defaultRepo, "Repository in owner/name form")
	cmd.Flags().IntVar(&prNumber, "pr", 0, "Pull request number (required to publish)")
	cmd.Flags().StringVar(&title, "title", "", "Pull request title, used as a triage signal")
	cmd.Flags().StringVar(&diffFile, "diff-file", "", "Read a unified diff from a file instead of git (- for stdin)")
	cmd.Flags().StringVar(&outputDir, "output", "", "Directory to write report artifacts (markdown and JSON)")

	return cmd
}

func writeArtifacts(w io.Writer, deps Dependencies, report domain.ReviewReport, outputDir string) error {
	for _, writer := range []struct {
		name string
		w    ReportWriter
	}{
		{"markdown", deps.Markdown},
		{"json", deps.JSON},
	} {
		if writer.w == nil {
			continue
		}
		path, err := writer.w.Write(report, outputDir)
		if err != nil {
			return fmt.Errorf("write %s artifact: %w", writer.name, err)
		}
		_, _ = fmt.Fprintf(w, "wrote %s\n", path)
	}
	return nil
}

func statusCommand(runs RunLister) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recently archived review runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runs == nil {
				return fmt.Errorf("run archive is disabled; enable store in the configuration")
			}
			records, err := runs.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			printRuns(cmd.OutOrStdout(), records)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")

	return cmd
}

func readDiffFile(cmd *cobra.Command, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read diff: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("diff is empty")
	}
	return string(data), nil
}

func printRunResult(w io.Writer, state *workflow.State) {
	_, _ = fmt.Fprintf(w, "task %s finished in stage %s\n", state.Task.ID, state.Stage)
	if state.FailureReason != "" {
		_, _ = fmt.Fprintf(w, "failure: %s\n", state.FailureReason)
	}
	if state.Report == nil {
		return
	}

	_, _ = fmt.Fprintf(w, "units: %d, issues: %d\n", len(state.Report.Units), len(state.Report.Issues))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, issue := range state.Report.Issues {
		_, _ = fmt.Fprintf(tw, "%s\t%s:%d-%d\t%s\t%s\n",
			issue.Severity, issue.File, issue.Range.Start, issue.Range.End, issue.Track, issue.Title)
	}
	_ = tw.Flush()

	for _, tr := range state.Report.TrackResults {
		if !tr.Succeeded() {
			_, _ = fmt.Fprintf(w, "track %s failed: %s\n", tr.Track, tr.Err)
		}
	}
}

func printRuns(w io.Writer, records []store.RunRecord) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "no archived runs")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TASK\tREPOSITORY\tPR\tSTATUS\tISSUES\tSTARTED")
	for _, run := range records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\n",
			run.TaskID, run.Repository, run.PRNumber, run.Status, run.IssueCount,
			run.StartedAt.UTC().Format(time.RFC3339))
	}
	_ = tw.Flush()
}
