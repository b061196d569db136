// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package fileops

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/castellan-dev/castellan/internal/model"
)

// CommandRunner executes one shell command over the session and returns its
// stdout. Implementations open a fresh exec channel per command.
type CommandRunner interface {
	Run(ctx context.Context, cmd string) ([]byte, error)
	// RunInput is Run with data streamed to the command's stdin.
	RunInput(ctx context.Context, cmd string, input []byte) ([]byte, error)
}

// SSHRunner runs commands over exec channels of an ssh.Client.
type SSHRunner struct {
	Client *ssh.Client
}

// Run executes cmd and returns its stdout. A non-zero exit includes the
// captured stderr in the error.
func (r *SSHRunner) Run(ctx context.Context, cmd string) ([]byte, error) {
	return r.RunInput(ctx, cmd, nil)
}

// RunInput executes cmd with input on stdin and returns its stdout.
func (r *SSHRunner) RunInput(ctx context.Context, cmd string, input []byte) ([]byte, error) {
	sess, err := r.Client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open exec channel: %w", err)
	}
	defer func() { _ = sess.Close() }()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	if input != nil {
		sess.Stdin = bytes.NewReader(input)
	}

	// The exec channel has no context support; cancel by closing the
	// channel out from under the command.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = sess.Close()
		case <-done:
		}
	}()
	err = sess.Run(cmd)
	close(done)

	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s", msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// execBackend emulates the file capability set with shell commands over an
// execution channel. Used when the server offers no SFTP subsystem.
type execBackend struct {
	runner CommandRunner
}

// NewExecBackend wraps a CommandRunner as the command-execution emulation
// backend.
func NewExecBackend(runner CommandRunner) Backend {
	return &execBackend{runner: runner}
}

// Name identifies the backend in file operation events.
func (b *execBackend) Name() model.FileOpBackend { return model.BackendExec }

// List parses `ls -la` output into normalized entries. long-iso timestamps
// keep the format independent of the remote locale.
func (b *execBackend) List(ctx context.Context, dir string) ([]model.FileEntry, error) {
	out, err := b.runner.Run(ctx, "LC_ALL=C ls -la --time-style=long-iso -- "+shellQuote(dir))
	if err != nil {
		return nil, err
	}
	var entries []model.FileEntry
	for _, line := range strings.Split(string(out), "\n") {
		if entry, ok := parseLsLine(line, dir); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Download reads the file byte-for-byte via cat.
func (b *execBackend) Download(ctx context.Context, p string) ([]byte, error) {
	return b.runner.Run(ctx, "cat -- "+shellQuote(p))
}

// Upload streams data to the remote path via stdin redirection.
func (b *execBackend) Upload(ctx context.Context, p string, data []byte) error {
	_, err := b.runner.RunInput(ctx, "cat > "+shellQuote(p), data)
	return err
}

// Remove deletes a file. Not valid for directories.
func (b *execBackend) Remove(ctx context.Context, p string) error {
	_, err := b.runner.Run(ctx, "rm -f -- "+shellQuote(p))
	return err
}

// RemoveDir deletes a directory and its contents.
func (b *execBackend) RemoveDir(ctx context.Context, p string) error {
	_, err := b.runner.Run(ctx, "rm -rf -- "+shellQuote(p))
	return err
}

// Rename moves oldPath to newPath.
func (b *execBackend) Rename(ctx context.Context, oldPath, newPath string) error {
	_, err := b.runner.Run(ctx, "mv -- "+shellQuote(oldPath)+" "+shellQuote(newPath))
	return err
}

// Mkdir creates a directory.
func (b *execBackend) Mkdir(ctx context.Context, p string) error {
	_, err := b.runner.Run(ctx, "mkdir -- "+shellQuote(p))
	return err
}

// Chmod renders the mode as a zero-padded 4-digit octal string for the
// command form.
func (b *execBackend) Chmod(ctx context.Context, p string, mode uint32) error {
	_, err := b.runner.Run(ctx, "chmod "+FormatOctal(mode)+" -- "+shellQuote(p))
	return err
}

// Stat lists the single path without following links and parses the row.
func (b *execBackend) Stat(ctx context.Context, p string) (model.FileEntry, error) {
	out, err := b.runner.Run(ctx, "LC_ALL=C ls -lad --time-style=long-iso -- "+shellQuote(p))
	if err != nil {
		return model.FileEntry{}, err
	}
	line := strings.TrimSpace(string(out))
	entry, ok := parseLsLine(line, "")
	if !ok {
		return model.FileEntry{}, fmt.Errorf("unparseable stat output for %s: %q", p, line)
	}
	// `ls -d` prints the path as given; normalize to the requested path.
	entry.Path = p
	entry.Name = path.Base(p)
	return entry, nil
}

// RealPath resolves "." and "~" via the remote shell. The shell expands a
// bare tilde itself, so it is passed through unquoted.
func (b *execBackend) RealPath(ctx context.Context, p string) (string, error) {
	var cmd string
	switch p {
	case "~", "":
		cmd = "cd && pwd"
	case ".":
		cmd = "pwd"
	default:
		cmd = "readlink -f -- " + shellQuote(p)
	}
	out, err := b.runner.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	resolved := strings.TrimSpace(string(out))
	if resolved == "" {
		return "", fmt.Errorf("could not resolve path %q", p)
	}
	return resolved, nil
}
