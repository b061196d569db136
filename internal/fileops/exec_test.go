// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package fileops

import (
	"context"
	"testing"
)

// fakeRunner records commands and plays back scripted output.
type fakeRunner struct {
	commands []string
	inputs   [][]byte
	output   []byte
	err      error
}

func (r *fakeRunner) Run(ctx context.Context, cmd string) ([]byte, error) {
	return r.RunInput(ctx, cmd, nil)
}

func (r *fakeRunner) RunInput(_ context.Context, cmd string, input []byte) ([]byte, error) {
	r.commands = append(r.commands, cmd)
	r.inputs = append(r.inputs, input)
	return r.output, r.err
}

func (r *fakeRunner) lastCommand() string {
	if len(r.commands) == 0 {
		return ""
	}
	return r.commands[len(r.commands)-1]
}

func TestExecListParsesOutput(t *testing.T) {
	runner := &fakeRunner{output: []byte(
		"total 12\n" +
			"drwxr-xr-x 2 alice staff 4096 2026-03-14 09:00 .\n" +
			"drwxr-xr-x 9 root  root  4096 2026-03-01 08:00 ..\n" +
			"drwxr-xr-x 2 alice staff 4096 2026-03-14 09:10 docs\n" +
			"-rw-r--r-- 1 alice staff  512 2026-03-14 09:26 notes.txt\n",
	)}
	b := NewExecBackend(runner)

	entries, err := b.List(context.Background(), "/home/alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := "LC_ALL=C ls -la --time-style=long-iso -- '/home/alice'"; runner.lastCommand() != want {
		t.Errorf("command = %q, want %q", runner.lastCommand(), want)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (dot entries skipped)", len(entries))
	}
	if entries[0].Name != "docs" || entries[1].Name != "notes.txt" {
		t.Errorf("entry names = %q, %q", entries[0].Name, entries[1].Name)
	}
	if entries[1].Path != "/home/alice/notes.txt" {
		t.Errorf("Path = %q, want full path", entries[1].Path)
	}
}

func TestExecUploadStreamsStdin(t *testing.T) {
	runner := &fakeRunner{}
	b := NewExecBackend(runner)

	data := []byte("payload bytes")
	if err := b.Upload(context.Background(), "/tmp/out file", data); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if want := "cat > '/tmp/out file'"; runner.lastCommand() != want {
		t.Errorf("command = %q, want %q", runner.lastCommand(), want)
	}
	if string(runner.inputs[0]) != string(data) {
		t.Errorf("stdin = %q, want %q", runner.inputs[0], data)
	}
}

func TestExecChmodUsesZeroPaddedOctal(t *testing.T) {
	runner := &fakeRunner{}
	b := NewExecBackend(runner)

	if err := b.Chmod(context.Background(), "/srv/app", 0o755); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	if want := "chmod 0755 -- '/srv/app'"; runner.lastCommand() != want {
		t.Errorf("command = %q, want %q", runner.lastCommand(), want)
	}
}

func TestExecRemoveDirUsesRecursiveDelete(t *testing.T) {
	runner := &fakeRunner{}
	b := NewExecBackend(runner)

	if err := b.RemoveDir(context.Background(), "/srv/cache"); err != nil {
		t.Fatalf("RemoveDir: %v", err)
	}
	if want := "rm -rf -- '/srv/cache'"; runner.lastCommand() != want {
		t.Errorf("command = %q, want %q", runner.lastCommand(), want)
	}
}

func TestExecRealPath(t *testing.T) {
	tests := []struct {
		in      string
		wantCmd string
	}{
		{"~", "cd && pwd"},
		{"", "cd && pwd"},
		{".", "pwd"},
		{"/var/log", "readlink -f -- '/var/log'"},
	}
	for _, tt := range tests {
		runner := &fakeRunner{output: []byte("/resolved\n")}
		b := NewExecBackend(runner)
		got, err := b.RealPath(context.Background(), tt.in)
		if err != nil {
			t.Errorf("RealPath(%q): %v", tt.in, err)
			continue
		}
		if runner.lastCommand() != tt.wantCmd {
			t.Errorf("RealPath(%q) command = %q, want %q", tt.in, runner.lastCommand(), tt.wantCmd)
		}
		if got != "/resolved" {
			t.Errorf("RealPath(%q) = %q, want trimmed /resolved", tt.in, got)
		}
	}
}

func TestExecStatNormalizesName(t *testing.T) {
	runner := &fakeRunner{output: []byte("drwxr-xr-x 5 alice staff 4096 2026-03-14 09:00 /home/alice/docs\n")}
	b := NewExecBackend(runner)

	entry, err := b.Stat(context.Background(), "/home/alice/docs")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if entry.Name != "docs" {
		t.Errorf("Name = %q, want base name", entry.Name)
	}
	if entry.Path != "/home/alice/docs" {
		t.Errorf("Path = %q, want requested path", entry.Path)
	}
}
