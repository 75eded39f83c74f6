/*
Package domain contains the core models of the Crucible test harness.

It defines the run lifecycle, the classified output stream and the artifacts
staged into a workspace before a run. The package is kept pure and free of
I/O, process or persistence concerns; adapters and the runtime depend on it,
never the other way around.

# Key Entities

  - RunState: the lifecycle position of the harness (Idle, Ready, Running, Stopping and the terminal states).
  - TestRun: one execution attempt of the external verification tool.
  - LogEvent: one classified line of output (or a harness diagnostic).
  - StateEvent: a run state transition.
  - Event: the envelope delivered, in order, to the single consumer.
  - StagedArtifact: content written at a logical slot of the workspace.
*/
package domain
