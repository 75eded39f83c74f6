package ports

import (
	"context"

	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/workspace"
)

// Harness is the controlling-context surface exposed to driving adapters
// (HTTP, MCP, CLI). It is implemented by crucible.Harness.
type Harness interface {
	Initialize(root string, mode workspace.Mode) error
	StartRun(ctx context.Context, artifacts ...domain.StagedArtifact) (domain.TestRun, error)
	Cancel()
	Acknowledge() error
	State() domain.RunState
	Current() (domain.TestRun, bool)
}

// EventSource yields the ordered event stream. It has exactly one reader.
type EventSource interface {
	Events() <-chan domain.Event
}
