package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aretw0/crucible"
	"github.com/aretw0/crucible/internal/config"
	"github.com/aretw0/crucible/internal/presentation/tui"
	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/scaffold"
	"github.com/aretw0/crucible/pkg/workspace"
)

// shutdownTimeout bounds how long a finished session waits for the harness to close.
const shutdownTimeout = 10 * time.Second

// RunOptions configures a single interactive run.
type RunOptions struct {
	Config config.Config

	// Contract and Test are files staged at their slots. With neither set the
	// default SimpleStorage sources are staged.
	Contract string
	Test     string

	Out     io.Writer
	Color   bool
	Banner  bool
	Debug   bool
	Summary bool

	// Signals overrides the process signal channel.
	Signals <-chan os.Signal
}

// RunSession stages the artifacts, runs the verification tool once and
// prints its output until the run is terminal.
func RunSession(ctx context.Context, opts RunOptions) (domain.TestRun, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	artifacts, err := loadArtifacts(opts.Contract, opts.Test)
	if err != nil {
		return domain.TestRun{}, err
	}

	logger := NewLogger(opts.Config, opts.Debug)
	stack, err := NewStack(ctx, opts.Config, logger)
	if err != nil {
		return domain.TestRun{}, err
	}
	h := stack.Harness

	if opts.Banner {
		tui.PrintBanner(out, crucible.Version)
	}
	console := tui.NewConsole(out, opts.Color)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range h.Events() {
			console.Print(ev)
		}
	}()

	closeStack := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := stack.Close(shutdownCtx); err != nil {
			logger.Warn("harness did not shut down cleanly", "err", err)
		}
		<-printed
	}

	if err := h.Initialize(opts.Config.Workspace, workspace.ModeOpen); err != nil {
		closeStack()
		return domain.TestRun{}, err
	}

	sigs := opts.Signals
	if sigs == nil {
		var stop func()
		sigs, stop = NotifySignals()
		defer stop()
	}

	run, err := h.StartRun(ctx, artifacts...)
	if err != nil && run.ID == 0 {
		closeStack()
		return run, err
	}

	finished := make(chan struct{})
	go func() {
		_ = h.Wait(context.Background())
		close(finished)
	}()

	outcome := WaitRun(ctx, h, finished, sigs, func(sig os.Signal) {
		logger.Info("interrupt received, stopping tests", "signal", sig)
		fmt.Fprintln(out, "Press Ctrl+C again to force.")
	})
	if outcome == Forced {
		logger.Warn("second interrupt, process killed")
	}

	closeStack()
	if current, ok := h.Current(); ok {
		run = current
	}
	if opts.Summary && run.State.IsTerminal() {
		console.Summary(run)
	}
	if outcome == Aborted {
		return run, ctx.Err()
	}
	return run, nil
}

// ExitCode maps a finished run to the process exit status of `crucible run`.
func ExitCode(run domain.TestRun) int {
	switch run.State {
	case domain.StateSucceeded:
		return 0
	case domain.StateFailed:
		return 1
	case domain.StateStopped:
		return 130
	default:
		return 2
	}
}

func loadArtifacts(contractPath, testPath string) ([]domain.StagedArtifact, error) {
	if contractPath == "" && testPath == "" {
		return scaffold.DefaultArtifacts(), nil
	}

	var artifacts []domain.StagedArtifact
	for _, src := range []struct {
		slot domain.Slot
		path string
	}{
		{domain.SlotContract, contractPath},
		{domain.SlotTest, testPath},
	} {
		if src.path == "" {
			continue
		}
		content, err := os.ReadFile(src.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s source: %w", src.slot, err)
		}
		artifacts = append(artifacts, domain.StagedArtifact{Slot: src.slot, Content: content})
	}
	return artifacts, nil
}

// InitProject scaffolds a project root. Without force an existing root is
// rejected with domain.ErrWorkspaceExists.
func InitProject(ctx context.Context, cfg config.Config, root string, force bool, out io.Writer) error {
	if root == "" {
		root = cfg.Workspace
	}
	mode := workspace.ModeCreate
	if force {
		mode = workspace.ModeOverwrite
	}

	logger := NewLogger(cfg, false)
	stack, err := NewStack(ctx, cfg, logger)
	if err != nil {
		return err
	}

	console := tui.NewConsole(out, false)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range stack.Harness.Events() {
			console.Print(ev)
		}
	}()

	initErr := stack.Harness.Initialize(root, mode)
	_ = stack.Close(ctx)
	<-printed

	if errors.Is(initErr, domain.ErrWorkspaceExists) {
		return fmt.Errorf("%w (use --force to overwrite)", initErr)
	}
	return initErr
}
