// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package fileops

import (
	"context"
	"io"
	"io/fs"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"

	"github.com/castellan-dev/castellan/internal/model"
)

// sftpBackend implements Backend over the native SFTP sub-protocol.
type sftpBackend struct {
	client *sftp.Client
}

// NewSFTPBackend wraps an sftp.Client as the rich file-transfer backend.
func NewSFTPBackend(client *sftp.Client) Backend {
	return &sftpBackend{client: client}
}

// Name identifies the backend in file operation events.
func (b *sftpBackend) Name() model.FileOpBackend { return model.BackendRich }

// List reads the directory natively and normalizes the entries.
func (b *sftpBackend) List(_ context.Context, dir string) ([]model.FileEntry, error) {
	infos, err := b.client.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	entries := make([]model.FileEntry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, entryFromFileInfo(fi, dir))
	}
	return entries, nil
}

// Download reads the whole remote file.
func (b *sftpBackend) Download(_ context.Context, p string) ([]byte, error) {
	f, err := b.client.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// Upload writes data to the remote path, creating or truncating it.
func (b *sftpBackend) Upload(_ context.Context, p string, data []byte) error {
	f, err := b.client.Create(p)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Remove deletes a file. Not valid for directories.
func (b *sftpBackend) Remove(_ context.Context, p string) error {
	return b.client.Remove(p)
}

// RemoveDir deletes a directory.
func (b *sftpBackend) RemoveDir(_ context.Context, p string) error {
	return b.client.RemoveDirectory(p)
}

// Rename moves oldPath to newPath.
func (b *sftpBackend) Rename(_ context.Context, oldPath, newPath string) error {
	return b.client.Rename(oldPath, newPath)
}

// Mkdir creates a directory.
func (b *sftpBackend) Mkdir(_ context.Context, p string) error {
	return b.client.Mkdir(p)
}

// Chmod sets the permission bits via setstat.
func (b *sftpBackend) Chmod(_ context.Context, p string, mode uint32) error {
	return b.client.Chmod(p, fs.FileMode(mode&0o7777))
}

// Stat returns the normalized entry for one path.
func (b *sftpBackend) Stat(_ context.Context, p string) (model.FileEntry, error) {
	fi, err := b.client.Stat(p)
	if err != nil {
		return model.FileEntry{}, err
	}
	entry := entryFromFileInfo(fi, path.Dir(p))
	entry.Path = p
	return entry, nil
}

// RealPath resolves "." and "~" style paths to an absolute path remotely.
func (b *sftpBackend) RealPath(_ context.Context, p string) (string, error) {
	return b.client.RealPath(p)
}

// entryFromFileInfo normalizes an sftp FileInfo into a FileEntry.
func entryFromFileInfo(fi fs.FileInfo, dir string) model.FileEntry {
	mode := unixMode(fi.Mode())
	entry := model.FileEntry{
		Name:        fi.Name(),
		Path:        path.Join(dir, fi.Name()),
		Type:        entryTypeFromMode(fi.Mode()),
		Size:        fi.Size(),
		Mode:        mode,
		Permissions: fi.Mode().String(),
		ModifiedAt:  fi.ModTime(),
	}
	// The SFTP attributes carry numeric IDs and access time.
	if st, ok := fi.Sys().(*sftp.FileStat); ok && st != nil {
		entry.Owner = strconv.FormatUint(uint64(st.UID), 10)
		entry.Group = strconv.FormatUint(uint64(st.GID), 10)
		entry.AccessedAt = time.Unix(int64(st.Atime), 0)
	}
	return entry
}

// entryTypeFromMode maps fs.FileMode to the entry type.
func entryTypeFromMode(mode fs.FileMode) model.FileEntryType {
	switch {
	case mode.IsDir():
		return model.EntryDirectory
	case mode&fs.ModeSymlink != 0:
		return model.EntrySymlink
	default:
		return model.EntryFile
	}
}

// unixMode converts an fs.FileMode into POSIX numeric mode bits.
func unixMode(mode fs.FileMode) uint32 {
	m := uint32(mode.Perm())
	switch {
	case mode.IsDir():
		m |= modeTypeDir
	case mode&fs.ModeSymlink != 0:
		m |= modeTypeSymlink
	default:
		m |= modeTypeRegular
	}
	if mode&fs.ModeSetuid != 0 {
		m |= modeSetuid
	}
	if mode&fs.ModeSetgid != 0 {
		m |= modeSetgid
	}
	if mode&fs.ModeSticky != 0 {
		m |= modeSticky
	}
	return m
}
