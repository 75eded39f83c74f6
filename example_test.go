package crucible_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/crucible"
	"github.com/aretw0/crucible/pkg/adapters/process"
	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/workspace"
)

// Example shows the event stream of a run whose tool is not installed.
func Example() {
	dir, _ := os.MkdirTemp("", "crucible-example")
	defer os.RemoveAll(dir)

	tool := process.Truffle()
	tool.Command = "crucible-example-missing-tool"
	tool.InstallHint = ""

	h := crucible.New(crucible.WithTool(tool))
	if err := h.Initialize(filepath.Join(dir, "TruffleProject"), workspace.ModeCreate); err != nil {
		fmt.Println("init:", err)
		return
	}

	_, err := h.StartRun(context.Background())
	fmt.Println("tool not found:", err != nil)

	_ = h.Close(context.Background())
	for ev := range h.Events() {
		if ev.State != nil {
			fmt.Printf("state %s -> %s\n", ev.State.From, ev.State.To)
		}
		if ev.Log != nil && ev.Log.Severity == domain.SeverityError {
			fmt.Println("error event")
		}
	}

	// Output:
	// tool not found: true
	// state idle -> ready
	// error event
	// state ready -> errored
}
