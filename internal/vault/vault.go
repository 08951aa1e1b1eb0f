// Package vault models a user's Markdown knowledge vault and discovers
// vaults under a configured parent directory.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
)

// instructionsFile is the file that marks a directory as a valid vault root.
const instructionsFile = "CLAUDE.md"

// defaultInboxSubpath and defaultMetadataSubpath are used when a vault's
// configuration does not override them.
const (
	defaultInboxSubpath    = "inbox"
	defaultMetadataSubpath = ".memory-loop"
)

// Vault is immutable for the duration of a single engine run.
type Vault struct {
	// ID is a stable identifier, derived from Root, used to key ledger
	// entries across runs.
	ID string

	// Root is the vault's filesystem root.
	Root string

	// ContentRoot is where notes live; it may equal Root or a subdirectory.
	ContentRoot string

	// InboxSubpath is relative to ContentRoot; transcripts live under
	// <ContentRoot>/<InboxSubpath>/chats/.
	InboxSubpath string

	// MetadataSubpath is relative to ContentRoot; cards live under
	// <ContentRoot>/<MetadataSubpath>/cards/.
	MetadataSubpath string

	// CardsEnabled gates whether the Card Discovery Engine processes this vault.
	CardsEnabled bool
}

// New constructs a Vault with defaults filled in for unset fields.
func New(root string, opts ...Option) *Vault {
	v := &Vault{
		ID:              root,
		Root:            root,
		ContentRoot:     root,
		InboxSubpath:    defaultInboxSubpath,
		MetadataSubpath: defaultMetadataSubpath,
		CardsEnabled:    true,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Option customizes a Vault constructed via New.
type Option func(*Vault)

// WithContentRoot overrides the content root to a subdirectory of Root.
func WithContentRoot(path string) Option {
	return func(v *Vault) { v.ContentRoot = path }
}

// WithInboxSubpath overrides the inbox subpath.
func WithInboxSubpath(path string) Option {
	return func(v *Vault) { v.InboxSubpath = path }
}

// WithMetadataSubpath overrides the metadata subpath.
func WithMetadataSubpath(path string) Option {
	return func(v *Vault) { v.MetadataSubpath = path }
}

// WithCardsEnabled overrides whether Card Discovery runs for this vault.
func WithCardsEnabled(enabled bool) Option {
	return func(v *Vault) { v.CardsEnabled = enabled }
}

// ChatsDir returns the directory transcripts are discovered from.
func (v *Vault) ChatsDir() string {
	return filepath.Join(v.ContentRoot, v.InboxSubpath, "chats")
}

// CardsDir returns the directory card files are written to.
func (v *Vault) CardsDir() string {
	return filepath.Join(v.ContentRoot, v.MetadataSubpath, "cards")
}

// ArchiveDir returns the directory archived card files are moved to.
func (v *Vault) ArchiveDir() string {
	return filepath.Join(v.CardsDir(), "archive")
}

// SyncConfigDir returns the directory holding pipeline configuration files.
func (v *Vault) SyncConfigDir() string {
	return filepath.Join(v.Root, ".memory-loop", "sync")
}

// SecretsDir returns the directory holding per-vault secret files.
func (v *Vault) SecretsDir() string {
	return filepath.Join(v.Root, ".memory-loop", "secrets")
}

// MetadataSubtree returns the absolute metadata directory, used by Card
// Discovery to exclude cards from its own walk (spec.md §9: the exclusion
// must use the vault's configured metadata path, not a hard-coded name).
func (v *Vault) MetadataSubtree() string {
	return filepath.Join(v.ContentRoot, v.MetadataSubpath)
}

// Discover walks parentDir for immediate subdirectories that contain a
// project-instructions file at their root, returning one Vault per match.
// This is a minimal standalone implementation of the vault-discovery
// helper that spec.md §1 treats as an external collaborator; memory-loop
// needs some implementation to run end-to-end.
func Discover(parentDir string) ([]*Vault, error) {
	entries, err := os.ReadDir(parentDir)
	if err != nil {
		return nil, fmt.Errorf("read vaults root %s: %w", parentDir, err)
	}

	var vaults []*Vault
	for _, entry := range entries {
		if !entry.IsDir() || isHidden(entry.Name()) {
			continue
		}
		root := filepath.Join(parentDir, entry.Name())
		if _, err := os.Stat(filepath.Join(root, instructionsFile)); err != nil {
			continue
		}
		vaults = append(vaults, New(root))
	}
	return vaults, nil
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
