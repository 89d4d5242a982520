package cli_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/codewatchers/reviewd/internal/adapter/cli"
)

func TestCheckSkipCommandFindsTrigger(t *testing.T) {
	var out bytes.Buffer
	root := cli.NewRootCommand(cli.Dependencies{
		Args: cli.Arguments{OutWriter: &out, ErrWriter: io.Discard},
	})

	root.SetArgs([]string{"check-skip", "--commit-message", "docs update [skip review]"})
	if err := root.Execute(); err != nil {
		t.Fatalf("expected exit 0 when trigger found, got %v", err)
	}
	if !strings.Contains(out.String(), "skip: commit message") {
		t.Fatalf("expected skip reason in output, got %q", out.String())
	}
}

func TestCheckSkipCommandNoTrigger(t *testing.T) {
	root := cli.NewRootCommand(cli.Dependencies{
		Args: cli.Arguments{OutWriter: io.Discard, ErrWriter: io.Discard},
	})

	root.SetArgs([]string{"check-skip", "--pr-title", "Fix crash on login"})
	err := root.Execute()
	if !errors.Is(err, cli.ErrShouldReview) {
		t.Fatalf("expected ErrShouldReview, got %v", err)
	}
}

func TestCheckSkipCommandPRDescription(t *testing.T) {
	var out bytes.Buffer
	root := cli.NewRootCommand(cli.Dependencies{
		Args: cli.Arguments{OutWriter: &out, ErrWriter: io.Discard},
	})

	root.SetArgs([]string{"check-skip", "--pr-description", "Generated.\n[skip-review]"})
	if err := root.Execute(); err != nil {
		t.Fatalf("expected exit 0 when trigger found, got %v", err)
	}
	if !strings.Contains(out.String(), "PR description") {
		t.Fatalf("expected PR description reason, got %q", out.String())
	}
}
