// Package plain is the directory.Directory collaborator spec.md §6 calls
// the backing directory: plain files on disk, no encryption. It is
// grounded on the lockfile-plus-atomic-rename pattern the xmssmt private
// key container uses for its own on-disk key store, extended with
// fsnotify for the Watch capability.
package plain

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/nightlyone/lockfile"
	"golang.org/x/sys/unix"

	"seshat-index/directory"
)

// Directory is a directory.Directory backed directly by the filesystem.
type Directory struct {
	root string
}

// Open returns a Directory rooted at root, creating it if it does not yet
// exist.
func Open(root string) (*Directory, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("plain: resolving %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("plain: creating directory: %w", err)
	}
	return &Directory{root: abs}, nil
}

func (d *Directory) path(name string) string {
	return filepath.Join(d.root, name)
}

// OpenRead opens name for sequential reading.
func (d *Directory) OpenRead(name string) (io.ReadCloser, error) {
	f, err := os.Open(d.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, directory.ErrNotFound
		}
		return nil, fmt.Errorf("plain: opening %s: %w", name, err)
	}
	return f, nil
}

// OpenWrite creates or truncates name and returns a streaming writer for
// it. The returned directory.Writer's Close closes the backing *os.File;
// Flush is whatever the caller layers on top (plain's own Write passes
// straight through to the file, with no further buffering of its own).
func (d *Directory) OpenWrite(name string) (directory.Writer, error) {
	f, err := os.OpenFile(d.path(name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("plain: creating %s: %w", name, err)
	}
	return &fileWriter{f: f}, nil
}

// fileWriter adapts *os.File to directory.Writer: Flush is a no-op since
// plain performs no buffering of its own, and Close fsyncs before closing
// so a released writer's bytes are durable.
type fileWriter struct {
	f *os.File
}

func (w *fileWriter) Write(p []byte) (int, error) { return w.f.Write(p) }
func (w *fileWriter) Flush() error                { return nil }
func (w *fileWriter) Close() error {
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("plain: syncing file: %w", err)
	}
	return w.f.Close()
}

// AtomicRead reads name's entire contents in one pass. It memory-maps the
// file rather than calling read(2) in a loop: since AtomicWrite only ever
// makes a name visible by renaming a fully-written temp file over it,
// whatever is mapped is guaranteed to be one complete write, never a
// partial one, the same guarantee the xmssmt key container's subtree
// cache relies on mmap for.
func (d *Directory) AtomicRead(name string) ([]byte, error) {
	path := d.path(name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, directory.ErrNotFound
		}
		return nil, fmt.Errorf("plain: opening %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("plain: stat-ing %s: %w", name, err)
	}
	size := info.Size()
	if size == 0 {
		return []byte{}, nil
	}

	mapped, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("plain: memory-mapping %s: %w", name, err)
	}
	defer unix.Munmap(mapped)

	data := make([]byte, size)
	copy(data, mapped)
	return data, nil
}

// AtomicWrite writes data to name as a temp-file-plus-rename so readers
// never observe a partially-written file, mirroring the key vault's own
// atomic key-file replacement.
func (d *Directory) AtomicWrite(name string, data []byte) error {
	target := d.path(name)
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-"+filepath.Base(target)+"-*")
	if err != nil {
		return fmt.Errorf("plain: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("plain: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("plain: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("plain: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("plain: renaming temp file into place: %w", err)
	}
	syncDir(filepath.Dir(target))
	return nil
}

// Delete removes name. Deleting a name that does not exist is a no-op,
// matching os.Remove semantics the index layer's garbage collection relies
// on when it races a concurrent cleanup.
func (d *Directory) Delete(name string) error {
	if err := os.Remove(d.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("plain: deleting %s: %w", name, err)
	}
	return nil
}

// Exists reports whether name is present.
func (d *Directory) Exists(name string) bool {
	_, err := os.Stat(d.path(name))
	return err == nil
}

// lock implements directory.DirectoryLock over a lockfile.Lockfile.
type lock struct {
	flock lockfile.Lockfile
}

func (l *lock) Release() error {
	return l.flock.Unlock()
}

// AcquireLock takes a cooperative file lock named after lk.Name, living
// alongside the directory's content files as "<name>.lock".
func (d *Directory) AcquireLock(lk directory.Lock) (directory.DirectoryLock, error) {
	flock, err := lockfile.New(d.path(lk.Name + ".lock"))
	if err != nil {
		return nil, fmt.Errorf("plain: constructing lockfile: %w", err)
	}
	// TryLock lets the owning process take its own lock again, so a holder
	// in this process has to be detected here.
	if owner, err := flock.GetOwner(); err == nil && owner.Pid == os.Getpid() {
		return nil, directory.ErrLocked
	}
	if err := flock.TryLock(); err != nil {
		if _, ok := err.(interface{ Temporary() bool }); ok {
			return nil, directory.ErrLocked
		}
		return nil, fmt.Errorf("plain: acquiring lock %s: %w", lk.Name, err)
	}
	return &lock{flock: flock}, nil
}

// watchHandle stops the backing fsnotify.Watcher when closed.
type watchHandle struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func (h *watchHandle) Close() error {
	err := h.watcher.Close()
	<-h.done
	return err
}

// Watch reports every create/write/remove/rename under the directory's
// root to callback, with the path relative to the root. Lock files are
// filtered out: the index layer only cares about content files, not the
// lock bookkeeping AcquireLock maintains alongside them.
func (d *Directory) Watch(callback directory.WatchCallback) (directory.WatchHandle, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("plain: starting watcher: %w", err)
	}
	if err := watcher.Add(d.root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("plain: watching %s: %w", d.root, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range watcher.Events {
			// "<name>.lock" itself, and the "<name>.lock.<digits>" pid file
			// lockfile writes before linking it into place.
			if pidFile, _ := filepath.Match("*.lock.*", filepath.Base(event.Name)); pidFile || filepath.Ext(event.Name) == ".lock" {
				continue
			}
			rel, err := filepath.Rel(d.root, event.Name)
			if err != nil {
				rel = event.Name
			}
			callback(rel)
		}
	}()

	return &watchHandle{watcher: watcher, done: done}, nil
}

// syncDir fsyncs dir so a rename into it survives a crash. Best effort:
// some platforms/filesystems don't support fsyncing a directory handle,
// and that shouldn't fail an otherwise-successful atomic write.
func syncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	defer f.Close()
	_ = f.Sync()
}
