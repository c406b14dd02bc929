// Package directory defines the polymorphic directory abstraction spec.md
// §6 and §9 describe: a capability set of {OpenRead, OpenWrite,
// AtomicRead, AtomicWrite, Delete, Exists, AcquireLock, Watch} that both
// the plain backing directory (directory/plain) and the encrypted façade
// (directory/encrypted) implement, so the index layer can code against
// one interface regardless of which variant it's handed.
package directory

import (
	"errors"
	"io"
)

// ErrNotFound is returned by OpenRead/AtomicRead for a path that does not
// exist, and — per spec.md §4.D — for any attempt to read the key file
// through the façade, since the key file is invisible to the index layer.
var ErrNotFound = errors.New("directory: not found")

// ErrLocked is returned by AcquireLock when the named lock is already
// held by another writer.
var ErrLocked = errors.New("directory: already locked")

// Writer is the streaming write handle OpenWrite returns: the index layer
// appends segment bytes to it and closes it when done. Flush drains any
// internal buffering without finalizing the file; Close does both.
type Writer interface {
	io.Writer
	Flush() error
	Close() error
}

// Lock names a cooperative lock the backing directory arbitrates between
// writers. IndexWriterLock is the one the index layer itself takes to
// serialize its own writer against concurrent instances, per spec.md §5.
type Lock struct {
	Name string
}

// IndexWriterLock is the well-known lock spec.md §5 describes the backing
// directory enforcing on behalf of the index layer's single writer.
var IndexWriterLock = Lock{Name: "index_writer"}

// DirectoryLock is held until Release is called (or the process exits).
type DirectoryLock interface {
	Release() error
}

// WatchCallback is invoked after a watched file is created, modified, or
// deleted. Per spec.md §4.D, callbacks see only the fact that a change
// happened — never plaintext, since the façade does not decrypt on their
// behalf.
type WatchCallback func(path string)

// WatchHandle unregisters its callback when closed.
type WatchHandle interface {
	Close() error
}

// Directory is the capability set both the plain and encrypted directory
// variants implement.
type Directory interface {
	// OpenRead opens path and returns its (already decrypted, for the
	// encrypted variant) contents as a read-only source. The encrypted
	// variant materializes the whole decrypted file in memory; the plain
	// variant returns the opened file itself.
	OpenRead(path string) (io.ReadCloser, error)

	// OpenWrite creates or truncates path and returns a streaming writer.
	OpenWrite(path string) (Writer, error)

	// AtomicRead is like OpenRead, but the backing directory guarantees
	// the file was read in one completely-written state.
	AtomicRead(path string) ([]byte, error)

	// AtomicWrite replaces path's contents with data as a single atomic
	// operation; concurrent AtomicWrite calls on the same path never
	// interleave their payloads.
	AtomicWrite(path string, data []byte) error

	// Delete removes path.
	Delete(path string) error

	// Exists reports whether path is present.
	Exists(path string) bool

	// AcquireLock blocks the named lock from being taken by any other
	// caller until the returned DirectoryLock is released.
	AcquireLock(lock Lock) (DirectoryLock, error)

	// Watch registers callback to run whenever a file in the directory is
	// created, modified, or removed.
	Watch(callback WatchCallback) (WatchHandle, error)
}
