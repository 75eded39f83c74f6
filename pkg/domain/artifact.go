package domain

// Slot is a logical location in the workspace.
type Slot string

const (
	SlotContract  Slot = "contract"
	SlotTest      Slot = "test"
	SlotMigration Slot = "migration"
	SlotConfig    Slot = "config"
)

// StagedArtifact maps a logical slot to content written immediately before a run.
type StagedArtifact struct {
	Slot Slot `json:"slot"`
	// Path overrides the slot's default location, relative to the workspace root.
	Path    string `json:"path,omitempty"`
	Content []byte `json:"content"`
}
