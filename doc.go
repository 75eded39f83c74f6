/*
Package crucible is a test-execution harness for smart-contract projects.

It stages a contract and its test suite into a project workspace, launches an
external verification tool (Truffle by default) against it, and streams the
tool's output back live, classified line by line, while enforcing that only
one run is active at a time.

# Concept

A Harness moves through a small state machine:

	Idle -> Ready -> Running -> Succeeded | Failed
	                 Running -> Stopping -> Stopped
	        Ready | Running | Stopping -> Errored

Terminal states return to Ready once acknowledged. Every log line and every
state change is delivered, in order and without drops, on a single event
channel; the terminal state event is always the last event of a run.

# Usage

	h := crucible.New()
	defer h.Close(context.Background())

	go func() {
		for ev := range h.Events() {
			if ev.Log != nil {
				fmt.Printf("[%s] %s\n", ev.Log.Severity, ev.Log.Text)
			}
		}
	}()

	if err := h.Initialize("./TruffleProject", workspace.ModeOpen); err != nil {
		log.Fatal(err)
	}
	if _, err := h.StartRun(ctx, scaffold.DefaultArtifacts()...); err != nil {
		log.Println(err)
	}

Cancel asks the process to terminate gracefully and kills its process group
if it is still alive after the grace period (5 seconds by default).

# Adapters

The harness is embeddable; the same core is exposed through a CLI
(cmd/crucible), an HTTP API with a Server-Sent Events stream
(pkg/adapters/http) and an MCP tool server (pkg/adapters/mcp).
*/
package crucible
