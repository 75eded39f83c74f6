package domain

import "errors"

// ErrAlreadyRunning is returned when a run is requested in any state other than Ready.
var ErrAlreadyRunning = errors.New("run already in progress")

// ErrNotInitialized is returned when an operation needs an initialized workspace.
var ErrNotInitialized = errors.New("workspace not initialized")

// ErrInvalidTransition is returned when a state change is not allowed from the current state.
var ErrInvalidTransition = errors.New("invalid run state transition")

// ErrUnknownRun is returned when a transition names a run that is not the current one.
var ErrUnknownRun = errors.New("unknown run")

// ErrToolNotFound is returned when the verification tool cannot be resolved.
var ErrToolNotFound = errors.New("verification tool not found")

// ErrSpawnFailure is returned when the operating system rejects process creation.
var ErrSpawnFailure = errors.New("failed to spawn verification tool")

// ErrStreamIO is returned when reading the process output fails after spawn.
var ErrStreamIO = errors.New("failed reading tool output")

// ErrStagingFailed is returned when artifacts cannot be written before a run.
var ErrStagingFailed = errors.New("failed to stage artifacts")

// ErrWorkspaceLocked is returned when another harness holds the workspace run lock.
var ErrWorkspaceLocked = errors.New("workspace locked by another run")

// ErrWorkspaceExists is returned when initializing over an existing workspace without overwrite.
var ErrWorkspaceExists = errors.New("workspace already exists")

// ErrArtifactTooLarge is returned when artifact content exceeds the configured limit.
var ErrArtifactTooLarge = errors.New("artifact exceeds maximum size")

// ErrPathEscapesRoot is returned when an artifact path resolves outside the workspace.
var ErrPathEscapesRoot = errors.New("artifact path escapes workspace root")

// ErrUnknownSlot is returned when an artifact names a slot with no path mapping.
var ErrUnknownSlot = errors.New("unknown artifact slot")

// ErrClosed is returned by operations on a closed harness.
var ErrClosed = errors.New("harness closed")

// ErrTerminatedBySignal is recorded on a run whose process was ended by a signal it did not ask for.
var ErrTerminatedBySignal = errors.New("process terminated by signal")
