// Package historystore is the index layer's stand-in consumer of the
// encrypted directory façade: it stores each conversation's message
// history as one content file per room, exercising the façade's full
// capability set (atomic read/write, the writer lock, and watch-driven
// cache invalidation) the way a real full-text index would over its
// segment files.
package historystore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"seshat-index/directory"
)

// Message is one entry in a room's history.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// Store appends and reads per-room message history through a
// directory.Directory, which may be the encrypted façade or the plain
// backing directory directly (tests use both).
type Store struct {
	dir    directory.Directory
	logger *logrus.Logger

	mu    sync.Mutex
	cache map[string][]Message

	watch directory.WatchHandle
}

// Option configures Open.
type Option func(*Store)

// WithLogger attaches a logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open wraps dir and registers a watch that invalidates the in-memory
// per-room cache whenever its backing file changes, so a write from
// another process is picked up on the next Read instead of serving stale
// cached history.
func Open(dir directory.Directory, opts ...Option) (*Store, error) {
	s := &Store{
		dir:    dir,
		logger: logrus.StandardLogger(),
		cache:  make(map[string][]Message),
	}
	for _, opt := range opts {
		opt(s)
	}

	handle, err := dir.Watch(func(name string) {
		s.mu.Lock()
		delete(s.cache, name)
		s.mu.Unlock()
		s.logger.WithField("room_file", name).Debug("historystore: invalidated cached room history")
	})
	if err != nil {
		return nil, fmt.Errorf("historystore: registering watch: %w", err)
	}
	s.watch = handle
	return s, nil
}

// Close unregisters the store's watch.
func (s *Store) Close() error {
	return s.watch.Close()
}

// roomFile returns the deterministic, order-independent file name for
// the conversation between a and b.
func roomFile(a, b string) string {
	parties := []string{a, b}
	sort.Strings(parties)
	return fmt.Sprintf("room-%s-%s.json", parties[0], parties[1])
}

// Append adds msg to the history of the conversation between msg.From
// and msg.To. Since the façade only supports whole-file reads and
// writes (spec.md's Non-goals rule out in-place append), Append takes
// the writer lock, reads the room's current history, appends in memory,
// and atomically rewrites the whole file.
func (s *Store) Append(msg Message) error {
	name := roomFile(msg.From, msg.To)

	lock, err := s.dir.AcquireLock(directory.IndexWriterLock)
	if err != nil {
		return fmt.Errorf("historystore: acquiring writer lock: %w", err)
	}
	defer lock.Release()

	history, err := s.readFile(name)
	if err != nil {
		return err
	}
	history = append(history, msg)

	data, err := encodeHistory(history)
	if err != nil {
		return err
	}
	if err := s.dir.AtomicWrite(name, data); err != nil {
		return fmt.Errorf("historystore: writing %s: %w", name, err)
	}

	s.mu.Lock()
	s.cache[name] = history
	s.mu.Unlock()
	return nil
}

// Read returns the full history of the conversation between a and b, in
// the order messages were appended.
func (s *Store) Read(a, b string) ([]Message, error) {
	name := roomFile(a, b)

	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	history, err := s.readFile(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[name] = history
	s.mu.Unlock()
	return history, nil
}

func (s *Store) readFile(name string) ([]Message, error) {
	if !s.dir.Exists(name) {
		return nil, nil
	}
	data, err := s.dir.AtomicRead(name)
	if err != nil {
		if err == directory.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("historystore: reading %s: %w", name, err)
	}
	return decodeHistory(data)
}

func encodeHistory(history []Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, msg := range history {
		if err := enc.Encode(msg); err != nil {
			return nil, fmt.Errorf("historystore: encoding message: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func decodeHistory(data []byte) ([]Message, error) {
	var history []Message
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("historystore: decoding message: %w", err)
		}
		history = append(history, msg)
	}
	return history, nil
}
