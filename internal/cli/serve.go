package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/crucible/internal/config"
	httpAdapter "github.com/aretw0/crucible/pkg/adapters/http"
	mcpAdapter "github.com/aretw0/crucible/pkg/adapters/mcp"
	"github.com/aretw0/crucible/pkg/session"
	"github.com/aretw0/crucible/pkg/workspace"
)

// Transports of the MCP server.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Serve runs the HTTP API until ctx is done. The configured workspace is
// opened at startup so runs can be started right away.
func Serve(ctx context.Context, cfg config.Config, debug bool) error {
	logger := NewLogger(cfg, debug)
	stack, err := NewStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	events := session.New(stack.Harness, session.WithLogger(logger))
	defer shutdownStack(stack, events)

	if err := stack.Harness.Initialize(cfg.Workspace, workspace.ModeOpen); err != nil {
		return fmt.Errorf("error initializing workspace: %w", err)
	}

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpAdapter.NewHandler(stack.Harness, events,
			httpAdapter.WithMetrics(stack.Metrics.Handler()),
			httpAdapter.WithLogger(logger),
		),
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting Crucible Server", "address", srv.Addr, "workspace", stack.Harness.Root())
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Start shutdown")
	}

	// Give outstanding requests a deadline for completion.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown did not complete", "err", err)
		if err := srv.Close(); err != nil {
			return fmt.Errorf("error killing server: %w", err)
		}
	}
	logger.Info("Crucible Server stopped gracefully")
	return nil
}

// ServeMCP runs the MCP server on the given transport until ctx is done
// (sse) or stdin closes (stdio).
func ServeMCP(ctx context.Context, cfg config.Config, transport string, port int, debug bool) error {
	logger := NewLogger(cfg, debug)
	stack, err := NewStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	events := session.New(stack.Harness, session.WithLogger(logger))
	defer shutdownStack(stack, events)

	if err := stack.Harness.Initialize(cfg.Workspace, workspace.ModeOpen); err != nil {
		return fmt.Errorf("error initializing workspace: %w", err)
	}

	srv := mcpAdapter.NewServer(stack.Harness, events, logger)
	switch transport {
	case TransportStdio:
		logger.Info("Starting Crucible MCP Server (Stdio)...")
		return srv.ServeStdio()
	case TransportSSE:
		logger.Info("Starting Crucible MCP Server (SSE)", "port", port)
		err := srv.ServeSSE(ctx, port)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Info("MCP Server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s. Supported: %s, %s", transport, TransportStdio, TransportSSE)
	}
}

func shutdownStack(stack *Stack, events *session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stack.Close(ctx); err != nil {
		stack.Logger.Warn("harness did not shut down cleanly", "err", err)
	}
	select {
	case <-events.Done():
	case <-ctx.Done():
	}
}
