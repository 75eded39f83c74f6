package crucible

import _ "embed"

// Version is the release version of Crucible, read from the VERSION file.
//
//go:embed VERSION
var Version string
