package domain

// ProcessHandle is opaque ownership of one spawned process.
type ProcessHandle interface {
	// Pid returns the operating system process id.
	Pid() int
	// Terminate asks the process (group) to exit gracefully.
	Terminate() error
	// Kill forcefully ends the process (group).
	Kill() error
	// Exited is closed once the process has been reaped.
	Exited() <-chan struct{}
}
