package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/buger/jsonparser"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultFileName is the name of the backing file in the user's home directory.
const DefaultFileName = ".eky.json1"

// DefaultPath returns the backing file path in the current user's home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to find home directory: %w", err)
	}
	return filepath.Join(home, DefaultFileName), nil
}

type values = orderedmap.OrderedMap[string, json.RawMessage]

// Store is a mapping from string keys to JSON values persisted in one file.
type Store struct {
	path string
	mu   sync.RWMutex
	data *values
}

// New returns an empty store backed by path. It does not touch the disk.
func New(path string) *Store {
	return &Store{path: path, data: orderedmap.New[string, json.RawMessage]()}
}

// Open creates a store for path and loads it.
//
// When the backing file is corrupt, Open returns the empty, usable store along
// with an error wrapping ErrCorrupt. Any other error returns a nil store.
func Open(path string) (*Store, error) {
	s := New(path)
	if err := s.Load(); err != nil {
		if errors.Is(err, ErrCorrupt) {
			return s, err
		}
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory mapping with the content of the backing file.
// The file is created empty if it does not exist.
func (s *Store) Load() error {
	return s.load(true)
}

func (s *Store) load(create bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flags := os.O_RDONLY
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(s.path, flags, 0o644) //nolint:gosec // G304: path is chosen by the user
	if err != nil {
		if !create && errors.Is(err, fs.ErrNotExist) {
			s.data = orderedmap.New[string, json.RawMessage]()
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	raw, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	data := orderedmap.New[string, json.RawMessage]()
	if len(bytes.TrimSpace(raw)) != 0 {
		if err := decodeObject(raw, data); err != nil {
			s.data = orderedmap.New[string, json.RawMessage]()
			return fmt.Errorf("%w: %s: %w", ErrCorrupt, s.path, err)
		}
	}
	s.data = data
	slog.Debug("Loaded store", "path", s.path, "keys", data.Len())
	return nil
}

// decodeObject parses raw into m, rejecting anything but a JSON object.
func decodeObject(raw []byte, m *values) error {
	if !json.Valid(raw) {
		return errInvalidJSON
	}
	_, typ, _, err := jsonparser.Get(raw)
	if err != nil {
		return err
	}
	if typ != jsonparser.Object {
		return fmt.Errorf("%w: found %v", errNotObject, typ)
	}
	return json.Unmarshal(raw, m)
}

// Save writes the whole mapping to the backing file.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.save()
}

func (s *Store) save() error {
	data, err := s.marshal()
	if err != nil {
		return err
	}
	path := s.path
	perm := os.FileMode(0o644)
	if target, err := filepath.EvalSymlinks(path); err == nil {
		path = target
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			perm = fi.Mode().Perm()
		}
	}
	if err := writeFileAtomic(path, data, perm); err != nil {
		return err
	}
	slog.Debug("Saved store", "path", path, "keys", s.data.Len(), "bytes", len(data))
	return nil
}

// Len returns the number of keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Len()
}

// Keys returns an iterator over all keys in insertion order.
func (s *Store) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for p := s.data.Oldest(); p != nil; p = p.Next() {
			if !yield(p.Key) {
				return
			}
		}
	}
}

// Get returns a copy of the value stored under key and whether it exists.
func (s *Store) Get(key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data.Get(key)
	if !ok {
		return nil, false
	}
	return slices.Clone(v), true
}

// Set stores value under key and saves the store.
//
// A value that parses as JSON is stored as that JSON value, anything else is
// stored as a JSON string holding value verbatim. If the save fails the
// mapping is left as it was before the call.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.data.Set(key, ParseValue(value))
	if err := s.save(); err != nil {
		if existed {
			s.data.Set(key, prev)
		} else {
			s.data.Delete(key)
		}
		return err
	}
	return nil
}

// Remove deletes the given keys and saves the store if any existed. It
// returns the number of keys removed. If the save fails the mapping is left
// as it was before the call and 0 is returned.
func (s *Store) Remove(keys ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := cloneValues(s.data)
	n := 0
	for _, k := range keys {
		if _, ok := s.data.Delete(k); ok {
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.save(); err != nil {
		s.data = prev
		return 0, err
	}
	return n, nil
}

func cloneValues(m *values) *values {
	c := orderedmap.New[string, json.RawMessage](m.Len())
	for p := m.Oldest(); p != nil; p = p.Next() {
		c.Set(p.Key, p.Value)
	}
	return c
}

// Snapshot returns the whole mapping as a compact JSON object.
func (s *Store) Snapshot() (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marshal()
}

// marshal encodes the mapping as a compact JSON object. Keys are encoded
// without HTML escaping and values are written as stored, so the file keeps
// the text the user gave.
func (s *Store) marshal() (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for p := s.data.Oldest(); p != nil; p = p.Next() {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		buf.Write(encodeString(p.Key))
		buf.WriteByte(':')
		if err := json.Compact(&buf, p.Value); err != nil {
			return nil, fmt.Errorf("failed to marshal store: key %q: %w", p.Key, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Clear deletes the backing file if it is a regular file. A missing file or
// a non-regular file at the path is left alone. The in-memory mapping is not
// modified.
func (s *Store) Clear() error {
	fi, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", s.path, err)
	}
	if !fi.Mode().IsRegular() {
		slog.Debug("Not clearing non-regular file", "path", s.path, "mode", fi.Mode().String())
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", s.path, err)
	}
	slog.Debug("Cleared store", "path", s.path)
	return nil
}

// Lock takes an exclusive advisory lock shared by all stores using the same
// backing file. Hold it across Load and the mutation to avoid losing updates
// made by another process. The returned function releases the lock.
func (s *Store) Lock() (func() error, error) {
	return lockFile(s.path + ".lock")
}
