// Package filestate implements a file-backed ddns.StateStore with an atomic
// write protocol: every mutation is written to a sibling temp file, fsynced,
// and renamed over the main file only after the previous main file has been
// copied to a ".backup" sibling. This guarantees that after any crash the
// main file, or failing that the backup, is a complete and parseable
// PersistedState document.
package filestate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

const filePerm = 0o640

// Store persists PersistedState documents under a single main path, guarded
// by an exclusive mutex around the whole read-modify-write-persist sequence.
// There is no background task and no buffering beyond the in-memory map
// between one mutation and the next.
type Store struct {
	path       string
	backupPath string
	tmpPath    string
	logger     *slog.Logger

	mu      sync.Mutex
	records map[ddns.DomainName]ddns.StateRecord
}

var _ ddns.StateStore = (*Store)(nil)

// Option is a functional option for configuring a Store.
type Option func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// onDiskState is the top-level JSON document shape, matching ddns.PersistedState
// but spelled out so record ordering in json.Marshal is map-determined and the
// version field is always first in encoding order by field declaration.
type onDiskState struct {
	Version string                              `json:"version"`
	Records map[ddns.DomainName]ddns.StateRecord `json:"records"`
}

// Open constructs a Store rooted at path, running the load protocol from
// spec: if the main file is missing, start empty (first run). Otherwise
// parse main; on failure fall back to the ".backup" sibling, restoring main
// from backup on success. If both are unusable, Open returns a KindConfig
// error, which callers must treat as fatal at startup.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, ddns.New(ddns.KindConfig, "filestate: path must not be empty")
	}

	s := &Store{
		path:       path,
		backupPath: path + ".backup",
		tmpPath:    path + ".tmp",
		logger:     slog.Default(),
		records:    make(map[ddns.DomainName]ddns.StateRecord),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, ddns.Wrap(ddns.KindConfig, "filestate: creating state directory", err)
	}

	state, err := s.loadMainOrBackup()
	if err != nil {
		return nil, err
	}
	s.records = state.Records
	return s, nil
}

func (s *Store) loadMainOrBackup() (*onDiskState, error) {
	mainState, mainErr := readState(s.path)
	if mainErr == nil {
		return mainState, nil
	}
	if errors.Is(mainErr, os.ErrNotExist) {
		return &onDiskState{Version: ddns.CurrentStateVersion, Records: make(map[ddns.DomainName]ddns.StateRecord)}, nil
	}

	s.logger.Warn("state file unreadable, attempting backup",
		slog.String("path", s.path), slog.String("error", mainErr.Error()))

	backupState, backupErr := readState(s.backupPath)
	if backupErr != nil {
		return nil, ddns.Newf(ddns.KindConfig, "filestate: both main and backup are unusable (main: %v, backup: %v)", mainErr, backupErr)
	}

	if err := copyFile(s.backupPath, s.path, filePerm); err != nil {
		s.logger.Error("failed to restore main state file from backup", slog.String("error", err.Error()))
	} else {
		s.logger.Warn("recovered state from backup file", slog.String("path", s.backupPath))
	}
	return backupState, nil
}

func readState(path string) (*onDiskState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state onDiskState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if state.Version == "" {
		return nil, fmt.Errorf("%s: missing version field", path)
	}
	if state.Version != ddns.CurrentStateVersion {
		slog.Default().Warn("state file has unrecognized version, loading anyway",
			slog.String("path", path), slog.String("version", state.Version))
	}
	if state.Records == nil {
		state.Records = make(map[ddns.DomainName]ddns.StateRecord)
	}
	return &state, nil
}

func (s *Store) GetLastIP(ctx context.Context, name ddns.DomainName) (netip.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[name]
	if !ok {
		return netip.Addr{}, nil
	}
	return rec.LastIP, nil
}

func (s *Store) GetRecord(ctx context.Context, name ddns.DomainName) (ddns.StateRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[name]
	return rec, ok, nil
}

func (s *Store) SetLastIP(ctx context.Context, name ddns.DomainName, ip netip.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[name]
	rec.LastIP = ip
	rec.LastUpdated = time.Now().UTC()
	s.records[name] = rec
	return s.persistLocked()
}

func (s *Store) SetRecord(ctx context.Context, name ddns.DomainName, record ddns.StateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[name] = record
	return s.persistLocked()
}

func (s *Store) DeleteRecord(ctx context.Context, name ddns.DomainName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[name]; !ok {
		return nil
	}
	delete(s.records, name)
	return s.persistLocked()
}

func (s *Store) ListRecords(ctx context.Context) ([]ddns.DomainName, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]ddns.DomainName, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	return names, nil
}

// Flush is a no-op beyond what persistLocked already guarantees: every
// mutating call above already fsyncs and renames before returning, so there
// is nothing left pending. It exists to satisfy the contract for callers
// that expect an explicit durability checkpoint before shutdown.
func (s *Store) Flush(ctx context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

// persistLocked runs the atomic write protocol. Caller must hold s.mu.
func (s *Store) persistLocked() error {
	doc := onDiskState{Version: ddns.CurrentStateVersion, Records: s.records}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&doc); err != nil {
		return ddns.Wrap(ddns.KindState, "filestate: marshaling state", err)
	}

	f, err := os.OpenFile(s.tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return ddns.Wrap(ddns.KindState, "filestate: creating temp file", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(s.tmpPath)
		return ddns.Wrap(ddns.KindState, "filestate: writing temp file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(s.tmpPath)
		return ddns.Wrap(ddns.KindState, "filestate: fsyncing temp file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(s.tmpPath)
		return ddns.Wrap(ddns.KindState, "filestate: closing temp file", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.backupPath, filePerm); err != nil {
			s.logger.Error("filestate: failed to copy main to backup before rename", slog.String("error", err.Error()))
		}
	}

	if err := os.Rename(s.tmpPath, s.path); err != nil {
		return ddns.Wrap(ddns.KindState, "filestate: renaming temp file over main", err)
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
