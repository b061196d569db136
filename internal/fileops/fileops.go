// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

// package fileops exposes one remote-file capability set over two very
// different backends: the native SFTP sub-protocol when the server offers
// it, and a shell-command emulation over execution channels when it does
// not. Callers never see which one is active except through the audit
// events.
package fileops

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/castellan-dev/castellan/internal/logging"
	"github.com/castellan-dev/castellan/internal/model"
)

// Backend is the capability set both implementations provide. The variant
// is selected once at construction; individual operations never sniff
// types at runtime.
type Backend interface {
	Name() model.FileOpBackend
	List(ctx context.Context, dir string) ([]model.FileEntry, error)
	Download(ctx context.Context, path string) ([]byte, error)
	Upload(ctx context.Context, path string, data []byte) error
	// Remove deletes a file; RemoveDir deletes a directory. The two are
	// not interchangeable in either backend.
	Remove(ctx context.Context, path string) error
	RemoveDir(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) error
	Mkdir(ctx context.Context, path string) error
	Chmod(ctx context.Context, path string, mode uint32) error
	Stat(ctx context.Context, path string) (model.FileEntry, error)
	RealPath(ctx context.Context, path string) (string, error)
}

// EventSink receives one FileOperationEvent per operation attempt.
type EventSink func(model.FileOperationEvent)

// SelectBackend is the mode-selection function: a rich handle selects the
// SFTP backend, otherwise an execution-capable runner selects the
// emulation, otherwise every operation is a no-op returning empty results.
func SelectBackend(rich Backend, runner CommandRunner) Backend {
	switch {
	case rich != nil:
		return rich
	case runner != nil:
		return NewExecBackend(runner)
	default:
		return noneBackend{}
	}
}

// Manager drives the capability set against one backend and keeps the
// in-memory directory view consistent with the remote state. Operations
// are serialized; transfers run to completion before the next event is
// emitted.
type Manager struct {
	mu          sync.Mutex
	backend     Backend
	events      EventSink
	currentPath string
	entries     []model.FileEntry
	selected    map[string]struct{}
}

// NewManager returns a Manager over the given backend. A nil backend means
// no handle was supplied; operations become no-ops. A nil sink disables
// event delivery but events are still formed (exactly-once semantics are
// the Manager's, not the sink's).
func NewManager(backend Backend, events EventSink) *Manager {
	if backend == nil {
		backend = noneBackend{}
	}
	return &Manager{
		backend:  backend,
		events:   events,
		selected: make(map[string]struct{}),
	}
}

// BackendName reports which backend is active.
func (m *Manager) BackendName() model.FileOpBackend {
	return m.backend.Name()
}

// CurrentPath returns the directory the view points at.
func (m *Manager) CurrentPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentPath
}

// Entries returns the current listing.
func (m *Manager) Entries() []model.FileEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.FileEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// emit delivers the audit record for one operation attempt.
func (m *Manager) emit(ev model.FileOperationEvent) {
	ev.Backend = m.backend.Name()
	if m.events != nil {
		m.events(ev)
	}
	if ev.Status == model.EventStatusError {
		logging.Debugf("fileops: %s %s failed: %s", ev.Operation, ev.Path, ev.ErrorMessage)
	}
}

// NavigateTo resolves the path ("." and "~" via the backend's realpath,
// absolute paths as-is), lists it and makes it the current directory.
// Changing directory clears the selection.
func (m *Manager) NavigateTo(ctx context.Context, p string) error {
	resolved := p
	if !strings.HasPrefix(p, "/") {
		abs, err := m.backend.RealPath(ctx, p)
		if err != nil {
			return &model.OperationError{Operation: "navigate", Path: p, Err: err}
		}
		resolved = abs
	}

	entries, err := m.backend.List(ctx, resolved)
	if err != nil {
		return &model.OperationError{Operation: "navigate", Path: resolved, Err: err}
	}

	m.mu.Lock()
	m.currentPath = resolved
	m.entries = sortEntries(entries)
	m.selected = make(map[string]struct{})
	m.mu.Unlock()
	return nil
}

// List refreshes the listing of the current directory. Completion clears
// the selection.
func (m *Manager) List(ctx context.Context) ([]model.FileEntry, error) {
	m.mu.Lock()
	dir := m.currentPath
	m.mu.Unlock()

	entries, err := m.backend.List(ctx, dir)
	if err != nil {
		return nil, &model.OperationError{Operation: "list", Path: dir, Err: err}
	}

	m.mu.Lock()
	m.entries = sortEntries(entries)
	m.selected = make(map[string]struct{})
	out := make([]model.FileEntry, len(m.entries))
	copy(out, m.entries)
	m.mu.Unlock()
	return out, nil
}

// relist refreshes the current directory after a successful mutation so
// the in-memory view matches the remote state. Await it before resolving
// the operation.
func (m *Manager) relist(ctx context.Context) {
	if _, err := m.List(ctx); err != nil {
		logging.Warnf("fileops: re-listing after mutation failed: %v", err)
	}
}

// Download transfers the file byte-for-byte and emits one event either way.
func (m *Manager) Download(ctx context.Context, p string) ([]byte, error) {
	p = m.resolve(p)
	data, err := m.backend.Download(ctx, p)
	if err != nil {
		m.emit(model.FileOperationEvent{Operation: "download", Path: p, Status: model.EventStatusError, ErrorMessage: err.Error()})
		return nil, &model.OperationError{Operation: "download", Path: p, Err: err}
	}
	m.emit(model.FileOperationEvent{Operation: "download", Path: p, FileSize: int64(len(data)), Status: model.EventStatusSuccess})
	return data, nil
}

// Upload transfers data to destPath, defaulting to the current directory
// plus the file name when destPath is empty. Emits one event either way
// and re-lists on success.
func (m *Manager) Upload(ctx context.Context, name string, data []byte, destPath string) error {
	if destPath == "" {
		destPath = m.resolve(name)
	}
	err := m.backend.Upload(ctx, destPath, data)
	if err != nil {
		m.emit(model.FileOperationEvent{Operation: "upload", Path: destPath, FileSize: int64(len(data)), Status: model.EventStatusError, ErrorMessage: err.Error()})
		return &model.OperationError{Operation: "upload", Path: destPath, Err: err}
	}
	m.emit(model.FileOperationEvent{Operation: "upload", Path: destPath, FileSize: int64(len(data)), Status: model.EventStatusSuccess})
	m.relist(ctx)
	return nil
}

// Remove stats the target first to choose directory-removal vs.
// file-removal semantics, emits one event either way and re-lists on
// success.
func (m *Manager) Remove(ctx context.Context, p string) error {
	p = m.resolve(p)
	info, err := m.backend.Stat(ctx, p)
	if err == nil {
		if info.Type == model.EntryDirectory {
			err = m.backend.RemoveDir(ctx, p)
		} else {
			err = m.backend.Remove(ctx, p)
		}
	}
	if err != nil {
		m.emit(model.FileOperationEvent{Operation: "remove", Path: p, Status: model.EventStatusError, ErrorMessage: err.Error()})
		return &model.OperationError{Operation: "remove", Path: p, Err: err}
	}
	m.emit(model.FileOperationEvent{Operation: "remove", Path: p, Status: model.EventStatusSuccess})
	m.relist(ctx)
	return nil
}

// Rename moves oldPath to newPath, emits one event either way and re-lists
// on success.
func (m *Manager) Rename(ctx context.Context, oldPath, newPath string) error {
	oldPath = m.resolve(oldPath)
	newPath = m.resolve(newPath)
	err := m.backend.Rename(ctx, oldPath, newPath)
	if err != nil {
		m.emit(model.FileOperationEvent{Operation: "rename", Path: oldPath, TargetPath: newPath, Status: model.EventStatusError, ErrorMessage: err.Error()})
		return &model.OperationError{Operation: "rename", Path: oldPath, Err: err}
	}
	m.emit(model.FileOperationEvent{Operation: "rename", Path: oldPath, TargetPath: newPath, Status: model.EventStatusSuccess})
	m.relist(ctx)
	return nil
}

// Mkdir creates a directory (relative names resolve against the current
// directory), emits one event either way and re-lists on success.
func (m *Manager) Mkdir(ctx context.Context, p string) error {
	p = m.resolve(p)
	err := m.backend.Mkdir(ctx, p)
	if err != nil {
		m.emit(model.FileOperationEvent{Operation: "mkdir", Path: p, Status: model.EventStatusError, ErrorMessage: err.Error()})
		return &model.OperationError{Operation: "mkdir", Path: p, Err: err}
	}
	m.emit(model.FileOperationEvent{Operation: "mkdir", Path: p, Status: model.EventStatusSuccess})
	m.relist(ctx)
	return nil
}

// Chmod applies the permission bits, emits one event either way and
// re-lists on success.
func (m *Manager) Chmod(ctx context.Context, p string, mode uint32) error {
	p = m.resolve(p)
	err := m.backend.Chmod(ctx, p, mode)
	if err != nil {
		m.emit(model.FileOperationEvent{Operation: "chmod", Path: p, Status: model.EventStatusError, ErrorMessage: err.Error()})
		return &model.OperationError{Operation: "chmod", Path: p, Err: err}
	}
	m.emit(model.FileOperationEvent{Operation: "chmod", Path: p, Status: model.EventStatusSuccess})
	m.relist(ctx)
	return nil
}

// Select marks a path as selected. Selection is independent of listing
// state and survives failed operations.
func (m *Manager) Select(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected[m.resolveLocked(p)] = struct{}{}
}

// Deselect unmarks a path.
func (m *Manager) Deselect(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.selected, m.resolveLocked(p))
}

// SelectedPaths returns the selected paths in sorted order.
func (m *Manager) SelectedPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.selected))
	for p := range m.selected {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// resolve joins a relative path against the current directory.
func (m *Manager) resolve(p string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveLocked(p)
}

// resolveLocked is resolve for callers already holding m.mu.
func (m *Manager) resolveLocked(p string) string {
	if strings.HasPrefix(p, "/") || m.currentPath == "" {
		return p
	}
	return path.Join(m.currentPath, p)
}

// sortEntries orders a listing: directories before files, then
// case-sensitive lexicographic by name. Stable and idempotent.
func sortEntries(entries []model.FileEntry) []model.FileEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		di := entries[i].Type == model.EntryDirectory
		dj := entries[j].Type == model.EntryDirectory
		if di != dj {
			return di
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// noneBackend is the "neither handle supplied" mode: every operation is a
// no-op returning empty results.
type noneBackend struct{}

func (noneBackend) Name() model.FileOpBackend { return model.BackendNone }

func (noneBackend) List(context.Context, string) ([]model.FileEntry, error) { return nil, nil }

func (noneBackend) Download(context.Context, string) ([]byte, error) { return nil, nil }

func (noneBackend) Upload(context.Context, string, []byte) error { return nil }

func (noneBackend) Remove(context.Context, string) error { return nil }

func (noneBackend) RemoveDir(context.Context, string) error { return nil }

func (noneBackend) Rename(context.Context, string, string) error { return nil }

func (noneBackend) Mkdir(context.Context, string) error { return nil }

func (noneBackend) Chmod(context.Context, string, uint32) error { return nil }

func (noneBackend) Stat(context.Context, string) (model.FileEntry, error) {
	return model.FileEntry{}, nil
}

func (noneBackend) RealPath(_ context.Context, p string) (string, error) { return p, nil }
