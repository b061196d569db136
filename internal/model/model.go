// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

// package model holds the shared types that cross package boundaries:
// connection status, signature requests, file entries and the per-operation
// audit events emitted by the file layer.
package model

import "time"

// ConnectionStatus is the authoritative lifecycle state of one session.
// There is exactly one status per session at any instant; transitions within
// an attempt are monotonic (connecting -> authenticating -> connected, or any
// state -> disconnected/error).
type ConnectionStatus string

const (
	// StatusConnecting indicates the transport tunnel is being established.
	StatusConnecting ConnectionStatus = "connecting"
	// StatusAuthenticating indicates the SSH handshake is waiting on the
	// custody network to sign the authentication challenge.
	StatusAuthenticating ConnectionStatus = "authenticating"
	// StatusConnected indicates an interactive channel is open.
	StatusConnected ConnectionStatus = "connected"
	// StatusDisconnected indicates the session ended; a fresh Connect may
	// start a new attempt.
	StatusDisconnected ConnectionStatus = "disconnected"
	// StatusError indicates the attempt failed; terminal for the attempt.
	StatusError ConnectionStatus = "error"
)

// SignatureRequest describes one SSH authentication challenge to be signed
// by the custody network. Immutable once constructed; one per attempt.
type SignatureRequest struct {
	// Algorithm is the signature algorithm offered to the server
	// (e.g. "ssh-ed25519").
	Algorithm string
	// KeyAlgorithm is the algorithm of the public key being proven.
	KeyAlgorithm string
	// Username is the remote account the challenge authenticates.
	Username string
	// ServerID identifies the destination server for disclosure purposes.
	ServerID string
	// Challenge is the raw data the server expects a signature over.
	Challenge []byte
}

// SignatureSize is the exact length of a valid Ed25519 signature. Anything
// else returned by the custody network is a protocol violation.
const SignatureSize = 64

// FileEntryType distinguishes the kinds of directory entries the file layer
// reports.
type FileEntryType string

const (
	// EntryFile is a regular file.
	EntryFile FileEntryType = "file"
	// EntryDirectory is a directory.
	EntryDirectory FileEntryType = "directory"
	// EntrySymlink is a symbolic link.
	EntrySymlink FileEntryType = "symlink"
)

// FileEntry is one normalized directory entry. Entries are produced fresh on
// every listing and never mutated in place.
type FileEntry struct {
	Name        string
	Path        string
	Type        FileEntryType
	Size        int64
	Mode        uint32 // permission bits plus file-type bits, e.g. 0o40755
	Permissions string // 10-character string, e.g. "drwxr-xr-x"
	Owner       string
	Group       string
	ModifiedAt  time.Time
	AccessedAt  time.Time // zero when the backend does not report it
}

// FileOpBackend names which backend performed a file operation.
type FileOpBackend string

const (
	// BackendRich is the native SFTP sub-protocol.
	BackendRich FileOpBackend = "rich"
	// BackendExec is the shell-command emulation.
	BackendExec FileOpBackend = "exec"
	// BackendNone means no backend was available; operations are no-ops.
	BackendNone FileOpBackend = "none"
)

// FileOperationEvent is the write-once audit record emitted after every file
// operation attempt, success or failure.
type FileOperationEvent struct {
	Operation    string
	Path         string
	TargetPath   string
	FileSize     int64
	Backend      FileOpBackend
	Status       string // EventStatusSuccess or EventStatusError
	ErrorMessage string
}

// EventStatusSuccess and EventStatusError are the two outcomes a
// FileOperationEvent can record.
const (
	EventStatusSuccess = "success"
	EventStatusError   = "error"
)

// HostKey is one trusted host key record, stored in authorized_keys wire
// format ("ssh-ed25519 AAAA...").
type HostKey struct {
	Hostname  string
	PublicKey string
	AddedAt   time.Time
}
