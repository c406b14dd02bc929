// Package encrypted implements the Encrypted Directory Façade spec.md
// §4.D describes: a directory.Directory that wraps a plain backing
// directory, transparently encrypting every content file through
// streamcodec/fileadapter under keys vault derives from a passphrase,
// and hiding the key file itself from every capability the façade
// exposes.
package encrypted

import (
	"bytes"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"seshat-index/directory"
	"seshat-index/directory/plain"
	"seshat-index/fileadapter"
	"seshat-index/streamcodec"
	"seshat-index/vault"
)

// Directory is a directory.Directory whose content files are opaque
// ciphertext on disk and plaintext to every caller through this API.
type Directory struct {
	root    string
	backing directory.Directory
	keys    streamcodec.Keys
	logger  *logrus.Logger
}

// Option configures Open.
type Option func(*Directory)

// WithLogger attaches a logger to both the façade and the underlying
// vault.
func WithLogger(logger *logrus.Logger) Option {
	return func(d *Directory) { d.logger = logger }
}

// Open opens (or creates) the encrypted directory rooted at root,
// deriving its working keys from passphrase via vault.Open.
func Open(root, passphrase string, opts ...Option) (*Directory, error) {
	d := &Directory{root: root, logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(d)
	}

	backing, err := plain.Open(root)
	if err != nil {
		return nil, fmt.Errorf("encrypted: opening backing directory: %w", err)
	}
	d.backing = backing

	v, err := vault.Open(root, passphrase, vault.WithLogger(d.logger))
	if err != nil {
		return nil, err
	}
	d.keys = streamcodec.Keys{DataKey: v.DataKey, MacKey: v.MacKey}
	return d, nil
}

// ChangePassphrase re-encrypts the store's master key under a freshly
// derived key without touching any content file, per spec.md §4.A.
func ChangePassphrase(root, old, newPassphrase string, opts ...Option) error {
	d := &Directory{}
	for _, opt := range opts {
		opt(d)
	}
	var vaultOpts []vault.Option
	if d.logger != nil {
		vaultOpts = append(vaultOpts, vault.WithLogger(d.logger))
	}
	return vault.ChangePassphrase(root, old, newPassphrase, vaultOpts...)
}

// isKeyFile reports whether name refers to the vault's key file, which
// the façade never exposes through any of its operations.
func isKeyFile(name string) bool {
	return name == vault.KeyFileName
}

// OpenRead decrypts name's entire contents and returns them as a
// sequential reader. Per spec.md's Non-goals there is no random access
// into the result: the codec only ever decrypts from the start.
func (d *Directory) OpenRead(name string) (io.ReadCloser, error) {
	if isKeyFile(name) {
		return nil, directory.ErrNotFound
	}
	ciphertext, err := d.backing.AtomicRead(name)
	if err != nil {
		return nil, err
	}
	plaintext, err := fileadapter.DecryptWhole(ciphertext, d.keys)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(plaintext)), nil
}

// OpenWrite returns a streaming writer that encrypts everything written
// to it and finalizes the authentication tag on Close, per spec.md §4.B
// and §4.C.
func (d *Directory) OpenWrite(name string) (directory.Writer, error) {
	if isKeyFile(name) {
		return nil, fmt.Errorf("encrypted: %s is reserved for the key file", name)
	}
	backingWriter, err := d.backing.OpenWrite(name)
	if err != nil {
		return nil, err
	}
	return fileadapter.NewBufferedWriter(backingWriter, d.keys)
}

// AtomicRead decrypts name's full contents in one call.
func (d *Directory) AtomicRead(name string) ([]byte, error) {
	if isKeyFile(name) {
		return nil, directory.ErrNotFound
	}
	ciphertext, err := d.backing.AtomicRead(name)
	if err != nil {
		return nil, err
	}
	return fileadapter.DecryptWhole(ciphertext, d.keys)
}

// AtomicWrite encrypts data in memory and replaces name with the result
// as a single atomic operation on the backing directory.
func (d *Directory) AtomicWrite(name string, data []byte) error {
	if isKeyFile(name) {
		return fmt.Errorf("encrypted: %s is reserved for the key file", name)
	}
	ciphertext, err := fileadapter.EncryptWhole(data, d.keys)
	if err != nil {
		return err
	}
	return d.backing.AtomicWrite(name, ciphertext)
}

// Delete removes name. The key file cannot be deleted through the
// façade.
func (d *Directory) Delete(name string) error {
	if isKeyFile(name) {
		return fmt.Errorf("encrypted: %s is reserved for the key file", name)
	}
	return d.backing.Delete(name)
}

// Exists reports whether name is present. The key file is reported as
// absent even though it sits on disk alongside the content files.
func (d *Directory) Exists(name string) bool {
	if isKeyFile(name) {
		return false
	}
	return d.backing.Exists(name)
}

// AcquireLock delegates straight to the backing directory: locks are not
// a secret the façade needs to hide.
func (d *Directory) AcquireLock(lock directory.Lock) (directory.DirectoryLock, error) {
	return d.backing.AcquireLock(lock)
}

// Watch delegates to the backing directory's watch, filtering out
// notifications for the key file so callers never learn about key
// rotation through the same channel they learn about content changes.
func (d *Directory) Watch(callback directory.WatchCallback) (directory.WatchHandle, error) {
	return d.backing.Watch(func(name string) {
		if isKeyFile(name) {
			return
		}
		callback(name)
	})
}
