package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverFindsVaultsWithInstructionsFile(t *testing.T) {
	parent := t.TempDir()

	valid := filepath.Join(parent, "my-vault")
	require.NoError(t, os.MkdirAll(valid, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(valid, "CLAUDE.md"), []byte("instructions"), 0644))

	invalid := filepath.Join(parent, "not-a-vault")
	require.NoError(t, os.MkdirAll(invalid, 0755))

	hidden := filepath.Join(parent, ".hidden-vault")
	require.NoError(t, os.MkdirAll(hidden, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(hidden, "CLAUDE.md"), []byte("instructions"), 0644))

	vaults, err := Discover(parent)
	require.NoError(t, err)
	require.Len(t, vaults, 1)
	assert.Equal(t, valid, vaults[0].Root)
}

func TestVaultDirHelpers(t *testing.T) {
	v := New("/vaults/personal", WithContentRoot("/vaults/personal/notes"))
	assert.Equal(t, "/vaults/personal/notes/inbox/chats", v.ChatsDir())
	assert.Equal(t, "/vaults/personal/notes/.memory-loop/cards", v.CardsDir())
	assert.Equal(t, "/vaults/personal/notes/.memory-loop/cards/archive", v.ArchiveDir())
	assert.Equal(t, "/vaults/personal/.memory-loop/sync", v.SyncConfigDir())
}

func TestMetadataSubtreeUsesConfiguredPath(t *testing.T) {
	v := New("/vaults/personal", WithMetadataSubpath("meta"))
	assert.Equal(t, "/vaults/personal/meta", v.MetadataSubtree())
}
