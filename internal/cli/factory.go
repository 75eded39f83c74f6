package cli

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/aretw0/crucible"
	"github.com/aretw0/crucible/internal/config"
	"github.com/aretw0/crucible/internal/logging"
	"github.com/aretw0/crucible/pkg/adapters/memory"
	"github.com/aretw0/crucible/pkg/adapters/process"
	"github.com/aretw0/crucible/pkg/adapters/redis"
	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/observability"
	"github.com/aretw0/crucible/pkg/ports"
	"github.com/aretw0/crucible/pkg/workspace"
	backend "github.com/redis/go-redis/v9"
)

// Stack is a harness together with the collaborators the commands share.
type Stack struct {
	Harness *crucible.Harness
	Metrics *observability.Metrics
	Logger  *slog.Logger

	closeLocker func() error
}

// Close shuts the harness down and releases the locker backend.
func (s *Stack) Close(ctx context.Context) error {
	err := s.Harness.Close(ctx)
	if s.closeLocker != nil {
		if cerr := s.closeLocker(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// NewLogger builds the application logger from the configuration.
// Debug forces the debug level.
func NewLogger(cfg config.Config, debug bool) *slog.Logger {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}
	return logging.New(level, logging.Format(cfg.LogFormat))
}

// SelectTool resolves the configured tool profile.
func SelectTool(cfg config.Config) (process.ToolConfig, error) {
	tools, err := process.LoadTools(cfg.ToolsFile)
	if err != nil {
		return process.ToolConfig{}, err
	}
	tool, ok := tools[cfg.Tool]
	if !ok {
		names := slices.Sorted(maps.Keys(tools))
		return process.ToolConfig{}, fmt.Errorf("unknown tool profile %q (available: %s)", cfg.Tool, strings.Join(names, ", "))
	}
	return tool, nil
}

// NewStack builds a harness with standard CLI conventions: the configured
// tool profile, metrics hooks, and a Redis run lock when an address is set.
func NewStack(ctx context.Context, cfg config.Config, logger *slog.Logger, extra ...crucible.Option) (*Stack, error) {
	tool, err := SelectTool(cfg)
	if err != nil {
		return nil, err
	}

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()
	opts := []crucible.Option{
		crucible.WithTool(tool),
		crucible.WithLocker(locker),
		crucible.WithGracePeriod(cfg.GracePeriod),
		crucible.WithWorkspaceOptions(workspace.WithMaxArtifactBytes(cfg.MaxArtifactBytes)),
		crucible.WithLifecycleHooks(observability.Combine(metrics.Hooks(), debugHooks(logger))),
		crucible.WithLogger(logger),
	}
	if cfg.Redis.LockTTL > 0 {
		opts = append(opts, crucible.WithLockTTL(cfg.Redis.LockTTL))
	}
	opts = append(opts, extra...)

	return &Stack{
		Harness:     crucible.New(opts...),
		Metrics:     metrics,
		Logger:      logger,
		closeLocker: closeLocker,
	}, nil
}

func newLocker(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.RunLocker, func() error, error) {
	if cfg.Redis.Addr == "" {
		return memory.NewLocker(), nil, nil
	}

	client := backend.NewUniversalClient(&backend.UniversalOptions{
		Addrs:    []string{cfg.Redis.Addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	return redis.NewLocker(client, cfg.Redis.Prefix, redis.WithLogger(logger)), client.Close, nil
}

func debugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, e domain.StateEvent) {
			logger.Debug("Run Transition", "run_id", e.RunID, "from", e.From, "to", e.To)
		},
		OnRunFinish: func(ctx context.Context, run domain.TestRun) {
			logger.Debug("Run Finished", "run_id", run.ID, "state", run.State, "duration", run.Duration())
		},
	}
}
