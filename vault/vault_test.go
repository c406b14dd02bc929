package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Keep the suite fast: spec.md §4.A calls out 10 iterations as the
	// test-only PBKDF2 count.
	PBKDFIterations = 10
}

func TestOpenCreatesAndReopens(t *testing.T) {
	dir := t.TempDir()

	v1, err := Open(dir, "wordpass")
	require.NoError(t, err)

	v2, err := Open(dir, "wordpass")
	require.NoError(t, err)
	assert.Equal(t, v1.DataKey, v2.DataKey)
	assert.Equal(t, v1.MacKey, v2.MacKey)

	_, err = Open(dir, "password")
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}

func TestOpenRejectsEmptyPassphrase(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(dir, "")
	assert.ErrorIs(t, err, ErrEmptyPassphrase)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no key file should be created for an empty passphrase")
}

func TestChangePassphraseRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, "wordpass")
	require.NoError(t, err)

	assert.ErrorIs(t, ChangePassphrase(dir, "", "password"), ErrEmptyPassphrase)
	assert.ErrorIs(t, ChangePassphrase(dir, "wordpass", ""), ErrEmptyPassphrase)
}

func TestChangePassphraseIsLossless(t *testing.T) {
	dir := t.TempDir()

	before, err := Open(dir, "wordpass")
	require.NoError(t, err)

	require.NoError(t, ChangePassphrase(dir, "wordpass", "password"))

	_, err = Open(dir, "wordpass")
	assert.ErrorIs(t, err, ErrWrongPassphrase)

	after, err := Open(dir, "password")
	require.NoError(t, err)
	assert.Equal(t, before.DataKey, after.DataKey, "master key must not rotate on passphrase change")
	assert.Equal(t, before.MacKey, after.MacKey)
}

func TestChangePassphraseLeavesKeyFileUntouchedOnFailure(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, "wordpass")
	require.NoError(t, err)

	path := filepath.Join(dir, KeyFileName)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = ChangePassphrase(dir, "wrong-old-passphrase", "new-passphrase")
	assert.ErrorIs(t, err, ErrWrongPassphrase)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestKeyFileMACMutationFailsOpen(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, "wordpass")
	require.NoError(t, err)

	path := filepath.Join(dir, KeyFileName)

	for _, byteIndex := range []int{0, 1, keyFileHeader, keyFileHeader + macSize, keyFileSize - 1} {
		raw, err := os.ReadFile(path)
		require.NoError(t, err)

		mutated := append([]byte(nil), raw...)
		mutated[byteIndex] ^= 0x01
		require.NoError(t, os.WriteFile(path, mutated, 0o600))

		_, err = Open(dir, "wordpass")
		assert.Error(t, err, "mutating byte %d should fail open", byteIndex)
		assert.True(t, err == ErrWrongPassphrase || err == ErrCorruptKeyFile, "unexpected error for byte %d: %v", byteIndex, err)

		require.NoError(t, os.WriteFile(path, raw, 0o600))
	}
}

func TestKeyFileTooShortIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, "wordpass")
	require.NoError(t, err)

	path := filepath.Join(dir, KeyFileName)
	require.NoError(t, os.Truncate(path, keyFileSize-16))

	_, err = Open(dir, "wordpass")
	assert.ErrorIs(t, err, ErrCorruptKeyFile)
}

func TestKeyFileWrongVersionIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, "wordpass")
	require.NoError(t, err)

	path := filepath.Join(dir, KeyFileName)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[0] = 0x02
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	_, err = Open(dir, "wordpass")
	assert.ErrorIs(t, err, ErrCorruptKeyFile)
}
