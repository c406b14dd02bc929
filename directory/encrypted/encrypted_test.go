package encrypted

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seshat-index/directory"
	"seshat-index/streamcodec"
	"seshat-index/vault"
)

func init() {
	vault.PBKDFIterations = 10
}

func TestOpenCreatesThenReopenDecrypts(t *testing.T) {
	root := t.TempDir()

	d, err := Open(root, "correct horse battery staple")
	require.NoError(t, err)

	require.NoError(t, d.AtomicWrite("segment.0", []byte("room history payload")))

	reopened, err := Open(root, "correct horse battery staple")
	require.NoError(t, err)

	got, err := reopened.AtomicRead("segment.0")
	require.NoError(t, err)
	assert.Equal(t, []byte("room history payload"), got)
}

func TestOpenWithWrongPassphraseFails(t *testing.T) {
	root := t.TempDir()

	_, err := Open(root, "right passphrase")
	require.NoError(t, err)

	_, err = Open(root, "wrong passphrase")
	assert.ErrorIs(t, err, vault.ErrWrongPassphrase)
}

func TestKeyFileIsInvisibleThroughFacade(t *testing.T) {
	root := t.TempDir()

	d, err := Open(root, "passphrase")
	require.NoError(t, err)

	assert.False(t, d.Exists(vault.KeyFileName), "key file must not appear to exist through the facade")

	_, err = d.AtomicRead(vault.KeyFileName)
	assert.ErrorIs(t, err, directory.ErrNotFound)

	_, err = d.OpenRead(vault.KeyFileName)
	assert.ErrorIs(t, err, directory.ErrNotFound)

	// the key file really is on disk, just not reachable through the facade
	_, statErr := os.Stat(filepath.Join(root, vault.KeyFileName))
	assert.NoError(t, statErr)
}

func TestOpenWriteThenOpenReadRoundtrips(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root, "passphrase")
	require.NoError(t, err)

	w, err := d.OpenWrite("segment.0")
	require.NoError(t, err)
	_, err = w.Write([]byte("streamed "))
	require.NoError(t, err)
	_, err = w.Write([]byte("content"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := d.OpenRead("segment.0")
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "streamed content", string(got))
}

func TestTamperedContentFileFailsAuthentication(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root, "passphrase")
	require.NoError(t, err)
	require.NoError(t, d.AtomicWrite("segment.0", []byte("authentic payload")))

	path := filepath.Join(root, "segment.0")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	_, err = d.AtomicRead("segment.0")
	assert.ErrorIs(t, err, streamcodec.ErrAuthenticationFailed)
}

func TestTruncatedContentFileFailsAuthentication(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root, "passphrase")
	require.NoError(t, err)
	require.NoError(t, d.AtomicWrite("segment.0", []byte("a payload long enough to truncate meaningfully")))

	path := filepath.Join(root, "segment.0")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-4], 0o600))

	_, err = d.AtomicRead("segment.0")
	assert.ErrorIs(t, err, streamcodec.ErrAuthenticationFailed)
}

func TestChangePassphraseKeepsContentReadable(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root, "old passphrase")
	require.NoError(t, err)
	require.NoError(t, d.AtomicWrite("segment.0", []byte("still here after rotation")))

	require.NoError(t, ChangePassphrase(root, "old passphrase", "new passphrase"))

	reopened, err := Open(root, "new passphrase")
	require.NoError(t, err)
	got, err := reopened.AtomicRead("segment.0")
	require.NoError(t, err)
	assert.Equal(t, []byte("still here after rotation"), got)

	_, err = Open(root, "old passphrase")
	assert.ErrorIs(t, err, vault.ErrWrongPassphrase)
}

func TestAcquireLockDelegatesToBackingDirectory(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root, "passphrase")
	require.NoError(t, err)

	first, err := d.AcquireLock(directory.IndexWriterLock)
	require.NoError(t, err)

	_, err = d.AcquireLock(directory.IndexWriterLock)
	assert.ErrorIs(t, err, directory.ErrLocked)

	require.NoError(t, first.Release())
}

func TestWatchFiltersKeyFileNotifications(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root, "passphrase")
	require.NoError(t, err)

	seen := make(chan string, 8)
	handle, err := d.Watch(func(name string) {
		seen <- name
	})
	require.NoError(t, err)
	defer handle.Close()

	require.NoError(t, d.AtomicWrite("segment.0", []byte("v1")))

	select {
	case name := <-seen:
		assert.NotEqual(t, vault.KeyFileName, name)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch callback")
	}
}
