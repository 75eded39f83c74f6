package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/crucible"
	"github.com/aretw0/crucible/internal/logging"
	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/ports"
	"github.com/aretw0/crucible/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DefaultRecentLimit is the number of events recent_events returns by default.
const DefaultRecentLimit = 50

// RunStatus is the result of every run tool.
type RunStatus struct {
	State domain.RunState `json:"state" jsonschema_description:"Current state of the harness"`
	Run   *domain.TestRun `json:"run,omitempty" jsonschema_description:"The current or last test run"`
	Error string          `json:"error,omitempty" jsonschema_description:"Why the request failed, if it did"`
}

// RecentEvents is the result of recent_events.
type RecentEvents struct {
	Events []domain.Event `json:"events" jsonschema_description:"Retained events of the current run, oldest first"`
}

// Server wraps a Harness and exposes it as an MCP Server.
type Server struct {
	harness   ports.Harness
	events    *session.Session
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance. events must consume the same
// harness's event stream.
func NewServer(h ports.Harness, events *session.Session, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		harness:   h,
		events:    events,
		mcpServer: server.NewMCPServer("crucible-mcp", strings.TrimSpace(crucible.Version)),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE, until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: start_run
	startTool := mcp.NewTool("start_run",
		mcp.WithDescription("Stage the given sources and start the verification tool. Returns immediately; poll run_status or recent_events for progress."),
		mcp.WithString("contract", mcp.Description("Solidity source for the contract slot (optional, keeps the staged file if omitted)")),
		mcp.WithString("test", mcp.Description("JavaScript source for the test slot (optional)")),
		mcp.WithOutputSchema[RunStatus](),
	)
	s.mcpServer.AddTool(startTool, mcp.NewStructuredToolHandler(s.handleStartRun))

	// TOOL: cancel_run
	cancelTool := mcp.NewTool("cancel_run",
		mcp.WithDescription("Request graceful termination of the running verification tool. It is killed if still alive after the grace period."),
		mcp.WithOutputSchema[RunStatus](),
	)
	s.mcpServer.AddTool(cancelTool, mcp.NewStructuredToolHandler(s.handleCancelRun))

	// TOOL: run_status
	statusTool := mcp.NewTool("run_status",
		mcp.WithDescription("Get the harness state and the current or last run."),
		mcp.WithOutputSchema[RunStatus](),
	)
	s.mcpServer.AddTool(statusTool, mcp.NewStructuredToolHandler(s.handleRunStatus))

	// TOOL: recent_events
	recentTool := mcp.NewTool("recent_events",
		mcp.WithDescription("Get the most recent classified output lines and state changes of the current run."),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum number of events (default %d)", DefaultRecentLimit))),
		mcp.WithOutputSchema[RecentEvents](),
	)
	s.mcpServer.AddTool(recentTool, mcp.NewStructuredToolHandler(s.handleRecentEvents))
}

// Handler methods for structured tools

func (s *Server) handleStartRun(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunStatus, error) {
	var artifacts []domain.StagedArtifact
	if src, ok := args["contract"].(string); ok && src != "" {
		artifacts = append(artifacts, domain.StagedArtifact{Slot: domain.SlotContract, Content: []byte(src)})
	}
	if src, ok := args["test"].(string); ok && src != "" {
		artifacts = append(artifacts, domain.StagedArtifact{Slot: domain.SlotTest, Content: []byte(src)})
	}

	if s.harness.State().IsTerminal() {
		_ = s.harness.Acknowledge()
	}

	// The run outlives the tool call.
	run, err := s.harness.StartRun(context.WithoutCancel(ctx), artifacts...)
	if err != nil {
		s.logger.Warn("MCP start_run failed", "err", err)
		if run.ID == 0 {
			return RunStatus{}, fmt.Errorf("start_run rejected: %w", err)
		}
		return RunStatus{State: s.harness.State(), Run: &run, Error: err.Error()}, nil
	}
	return RunStatus{State: s.harness.State(), Run: &run}, nil
}

func (s *Server) handleCancelRun(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunStatus, error) {
	s.harness.Cancel()
	return s.status(), nil
}

func (s *Server) handleRunStatus(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunStatus, error) {
	return s.status(), nil
}

func (s *Server) handleRecentEvents(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RecentEvents, error) {
	limit := DefaultRecentLimit
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}
	events := s.events.Recent(limit)
	if events == nil {
		events = []domain.Event{}
	}
	return RecentEvents{Events: events}, nil
}

func (s *Server) status() RunStatus {
	st := RunStatus{State: s.harness.State()}
	if run, ok := s.harness.Current(); ok {
		st.Run = &run
	}
	return st
}

func (s *Server) registerResources() {
	// EXPOSE: crucible://run/current
	s.mcpServer.AddResource(mcp.NewResource("crucible://run/current", "Current Test Run",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, _ := json.Marshal(s.status())

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "crucible://run/current",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
