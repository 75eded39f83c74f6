/*
Package ports defines the driven ports (interfaces) of the Crucible harness.

These interfaces decouple the run orchestration from external implementations,
allowing the runtime to work with real processes or fakes, and with local or
distributed run locks.

# Key Interfaces

  - Launcher: Spawns the external verification tool and exposes its streams.
  - Process: A spawned tool with its output streams and exit status.
  - Publisher: Accepts ordered events for the consumer (e.g., the EventSink).
  - RunLocker: Guards a workspace against concurrent runs across harness instances.
*/
package ports
