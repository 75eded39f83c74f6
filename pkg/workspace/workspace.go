// Package workspace owns the on-disk staging area of a project: it scaffolds
// the project root and writes artifacts at their logical slots.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/scaffold"
)

// DefaultMaxArtifactBytes is 1 MiB.
const DefaultMaxArtifactBytes = 1 << 20

// Mode controls how Init treats an existing root.
type Mode string

const (
	// ModeCreate fails with domain.ErrWorkspaceExists if the root already exists.
	ModeCreate Mode = "create"
	// ModeOverwrite rewrites the scaffold files of an existing root.
	ModeOverwrite Mode = "overwrite"
	// ModeOpen uses an existing root as is and scaffolds only what is missing.
	ModeOpen Mode = "open"
)

// Workspace is a project root on disk.
type Workspace struct {
	root     string
	project  scaffold.Project
	maxBytes int
}

// Option configures the Workspace.
type Option func(*Workspace)

// WithProject replaces the default Truffle project layout.
func WithProject(p scaffold.Project) Option {
	return func(w *Workspace) {
		w.project = p
	}
}

// WithMaxArtifactBytes limits the size of staged content. Zero disables the limit.
func WithMaxArtifactBytes(n int) Option {
	return func(w *Workspace) {
		w.maxBytes = n
	}
}

// New resolves root to an absolute path. Nothing is written until Init.
func New(root string, opts ...Option) (*Workspace, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace root: %w", err)
	}
	w := &Workspace{
		root:     abs,
		project:  scaffold.Truffle(),
		maxBytes: DefaultMaxArtifactBytes,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the absolute project root.
func (w *Workspace) Root() string {
	return w.root
}

// Exists reports whether the root directory is present.
func (w *Workspace) Exists() bool {
	info, err := os.Stat(w.root)
	return err == nil && info.IsDir()
}

// Init creates the root, its directories and scaffold files.
// It returns the created or rewritten entries, relative to the root, in order.
func (w *Workspace) Init(mode Mode) ([]string, error) {
	existed := w.Exists()
	if existed && mode == ModeCreate {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkspaceExists, w.root)
	}

	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	var created []string
	for _, dir := range w.project.Dirs {
		if err := os.MkdirAll(filepath.Join(w.root, dir), 0o755); err != nil {
			return created, fmt.Errorf("create %s dir: %w", dir, err)
		}
		created = append(created, dir+string(filepath.Separator))
	}

	for _, f := range w.project.Files {
		path := filepath.Join(w.root, f.Path)
		if mode == ModeOpen {
			if _, err := os.Stat(path); err == nil {
				continue
			}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return created, fmt.Errorf("create parent of %s: %w", f.Path, err)
		}
		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return created, fmt.Errorf("write %s: %w", f.Path, err)
		}
		created = append(created, f.Path)
	}
	return created, nil
}

// Resolve returns the absolute target path of an artifact.
// The path must stay within the workspace root, both lexically and once
// symlinks in its existing part are followed.
func (w *Workspace) Resolve(a domain.StagedArtifact) (string, error) {
	rel := a.Path
	if rel == "" {
		var ok bool
		rel, ok = w.project.Layout[a.Slot]
		if !ok {
			return "", fmt.Errorf("%w: %q", domain.ErrUnknownSlot, a.Slot)
		}
	}

	var path string
	if filepath.IsAbs(rel) {
		path = filepath.Clean(rel)
	} else {
		path = filepath.Clean(filepath.Join(w.root, rel))
	}

	within, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", fmt.Errorf("resolving artifact path: %w", err)
	}
	if within == "." || escapes(within) {
		return "", fmt.Errorf("%w: %q", domain.ErrPathEscapesRoot, rel)
	}
	if err := w.confined(path); err != nil {
		return "", fmt.Errorf("%w: %q: %v", domain.ErrPathEscapesRoot, rel, err)
	}
	return path, nil
}

// confined follows symlinks in the deepest existing ancestor of path and
// checks the result is still under the real root.
func (w *Workspace) confined(path string) error {
	root, err := filepath.EvalSymlinks(w.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	existing := path
	for {
		real, err := filepath.EvalSymlinks(existing)
		if err == nil {
			existing = real
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return nil
		}
		existing = parent
	}

	within, err := filepath.Rel(root, existing)
	if err != nil {
		return err
	}
	if escapes(within) {
		return fmt.Errorf("resolves to %s", existing)
	}
	return nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel)
}

// Write stores one artifact at its slot and returns the written path.
func (w *Workspace) Write(a domain.StagedArtifact) (string, error) {
	if !w.Exists() {
		return "", fmt.Errorf("%w: %s", domain.ErrNotInitialized, w.root)
	}
	if w.maxBytes > 0 && len(a.Content) > w.maxBytes {
		return "", fmt.Errorf("%w: slot=%s size=%d limit=%d", domain.ErrArtifactTooLarge, a.Slot, len(a.Content), w.maxBytes)
	}
	path, err := w.Resolve(a)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create parent of %s: %w", a.Slot, err)
	}
	if err := os.WriteFile(path, a.Content, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", a.Slot, err)
	}
	return path, nil
}

// Validate checks every artifact without writing anything.
func (w *Workspace) Validate(artifacts []domain.StagedArtifact) error {
	for _, a := range artifacts {
		if w.maxBytes > 0 && len(a.Content) > w.maxBytes {
			return fmt.Errorf("%w: slot=%s size=%d limit=%d", domain.ErrArtifactTooLarge, a.Slot, len(a.Content), w.maxBytes)
		}
		if _, err := w.Resolve(a); err != nil {
			return err
		}
	}
	return nil
}
