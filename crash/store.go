// Package crash persists the retained output of quarantined miners.
//
// Each record is one object keyed "<UTC timestamp> <miner>.txt" holding the
// miner's log tail, one output line per line. Records live on a lode store:
// the local filesystem by default, S3 when configured.
package crash

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/leprechaun/miner"
)

// TimeLayout is the timestamp prefix of every record key.
const TimeLayout = "20060102T150405.000Z"

const keySuffix = ".txt"

// Entry describes a stored crash record.
type Entry struct {
	Key      string    `json:"key" yaml:"key"`
	Miner    string    `json:"miner" yaml:"miner"`
	Time     time.Time `json:"time" yaml:"time"`
	Location string    `json:"location" yaml:"location"`
}

// Store reads and writes crash records. It implements miner.CrashRecorder.
type Store struct {
	factory  lode.StoreFactory
	location func(key string) string
	backend  string

	openMu sync.Mutex
	store  lode.Store

	mu sync.Mutex // serializes key allocation
}

var _ miner.CrashRecorder = (*Store)(nil)

// NewStore wraps a lode store factory. location maps a key to the path
// reported in crashed events; nil reports the key itself.
func NewStore(factory lode.StoreFactory, location func(key string) string, backend string) (*Store, error) {
	if factory == nil {
		return nil, fmt.Errorf("crash: nil store factory")
	}
	if location == nil {
		location = func(key string) string { return key }
	}
	return &Store{factory: factory, location: location, backend: backend}, nil
}

// NewFSStore stores records as files under dir, which is created on first
// use.
func NewFSStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, wrap("init", "", err)
	}
	fsFactory := lode.NewFSFactory(abs)
	factory := func() (lode.Store, error) {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create crash dir: %w", err)
		}
		return fsFactory()
	}
	return NewStore(factory, func(key string) string {
		return filepath.Join(abs, key)
	}, "fs")
}

// NewMemoryStore keeps records in memory.
func NewMemoryStore() *Store {
	s, _ := NewStore(lode.NewMemoryFactory(), nil, "memory")
	return s
}

// Backend names the storage backend ("fs", "s3", "memory").
func (s *Store) Backend() string { return s.backend }

// open returns the underlying store. A failed open is retried on the next
// call.
func (s *Store) open() (lode.Store, error) {
	s.openMu.Lock()
	defer s.openMu.Unlock()
	if s.store != nil {
		return s.store, nil
	}
	store, err := s.factory()
	if err != nil {
		return nil, wrap("init", "", err)
	}
	s.store = store
	return store, nil
}

// Key returns the record key for a miner crash at t.
func Key(minerName string, t time.Time) string {
	return t.UTC().Format(TimeLayout) + " " + minerName + keySuffix
}

// ParseKey splits a record key into its miner name and time.
func ParseKey(key string) (string, time.Time, error) {
	base, ok := strings.CutSuffix(key, keySuffix)
	if !ok {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	stamp, name, ok := strings.Cut(base, " ")
	if !ok || name == "" {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	t, err := time.Parse(TimeLayout, stamp)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return name, t, nil
}

// Record writes rec and returns its location.
func (s *Store) Record(ctx context.Context, rec miner.CrashRecord) (string, error) {
	store, err := s.open()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for _, line := range rec.Lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.allocate(ctx, store, rec.Miner, rec.Time)
	if err != nil {
		return "", err
	}
	if err := store.Put(ctx, key, &buf); err != nil {
		return "", wrap("write", key, err)
	}
	return s.location(key), nil
}

// allocate bumps the timestamp by a millisecond until the key is free, so
// two crashes of one miner within the same millisecond keep both records.
func (s *Store) allocate(ctx context.Context, store lode.Store, name string, t time.Time) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == ".." {
		return "", &StorageError{Kind: ErrInvalidKey, Op: "write", Key: name, Err: fmt.Errorf("unusable miner name %q", name)}
	}
	for range 1000 {
		key := Key(name, t)
		exists, err := store.Exists(ctx, key)
		if err != nil {
			return "", wrap("write", key, err)
		}
		if !exists {
			return key, nil
		}
		t = t.Add(time.Millisecond)
	}
	return "", &StorageError{Kind: errUnclassified, Op: "write", Key: name, Err: fmt.Errorf("no free key")}
}

// List returns all records, newest first. Objects that are not crash
// records are skipped.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	store, err := s.open()
	if err != nil {
		return nil, err
	}
	keys, err := store.List(ctx, "")
	if err != nil {
		return nil, wrap("list", "", err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		key := path.Base(filepath.ToSlash(k))
		name, t, err := ParseKey(key)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Key: key, Miner: name, Time: t, Location: s.location(key)})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Time.Equal(entries[j].Time) {
			return entries[i].Time.After(entries[j].Time)
		}
		return entries[i].Key < entries[j].Key
	})
	return entries, nil
}

// Get returns the record's contents.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if _, _, err := ParseKey(key); err != nil || strings.ContainsAny(key, `/\`) {
		return nil, &StorageError{Kind: ErrInvalidKey, Op: "read", Key: key, Err: fmt.Errorf("not a crash record key")}
	}
	store, err := s.open()
	if err != nil {
		return nil, err
	}
	rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, wrap("read", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, wrap("read", key, err)
	}
	return data, nil
}
