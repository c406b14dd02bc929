package fileadapter

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seshat-index/streamcodec"
)

func testKeys() streamcodec.Keys {
	return streamcodec.Keys{
		DataKey: [32]byte{9, 9, 9},
		MacKey:  [32]byte{8, 8, 8},
	}
}

func TestBufferedWriterRoundtripsThroughRealFile(t *testing.T) {
	keys := testKeys()
	path := filepath.Join(t.TempDir(), "segment.dat")

	f, err := os.Create(path)
	require.NoError(t, err)

	bw, err := NewBufferedWriter(f, keys)
	require.NoError(t, err)

	want := bytes.Repeat([]byte("room history segment "), 500)
	_, err = bw.Write(want)
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	ciphertext, err := os.ReadFile(path)
	require.NoError(t, err)

	got, err := DecryptWhole(ciphertext, keys)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFlushDoesNotFinalize(t *testing.T) {
	keys := testKeys()
	path := filepath.Join(t.TempDir(), "segment.dat")
	f, err := os.Create(path)
	require.NoError(t, err)

	bw, err := NewBufferedWriter(f, keys)
	require.NoError(t, err)
	_, err = bw.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, bw.Flush())

	ciphertext, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = DecryptWhole(ciphertext, keys)
	assert.ErrorIs(t, err, streamcodec.ErrAuthenticationFailed, "flushed-but-unfinalized file must not authenticate")

	require.NoError(t, bw.Close())
}

func TestCloseIsSafeToCallTwice(t *testing.T) {
	keys := testKeys()
	path := filepath.Join(t.TempDir(), "segment.dat")
	f, err := os.Create(path)
	require.NoError(t, err)

	bw, err := NewBufferedWriter(f, keys)
	require.NoError(t, err)
	_, err = bw.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, bw.Close())
	assert.Error(t, bw.Close(), "second close fails on the already-closed backing file, not on double-finalize")
}

func TestEncryptWholeThenDecryptWhole(t *testing.T) {
	keys := testKeys()
	want := []byte("atomic write payload")

	ciphertext, err := EncryptWhole(want, keys)
	require.NoError(t, err)

	got, err := DecryptWhole(ciphertext, keys)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
