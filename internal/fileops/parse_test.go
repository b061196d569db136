// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package fileops

import (
	"testing"

	"github.com/castellan-dev/castellan/internal/model"
)

func TestParsePermissions(t *testing.T) {
	tests := []struct {
		perms string
		want  uint32
	}{
		{"drwxr-xr-x", 0o40755},
		{"-rw-r--r--", 0o100644},
		{"-rwxrwxrwx", 0o100777},
		{"lrwxrwxrwx", 0o120777},
		{"----------", 0o100000},
		{"-rwsr-xr-x", 0o104755},
		{"-rwSr--r--", 0o104644},
		{"-rwxr-sr-x", 0o102755},
		{"drwxrwxrwt", 0o41777},
		{"drwxrwxrwT", 0o41776},
	}
	for _, tt := range tests {
		got, err := ParsePermissions(tt.perms)
		if err != nil {
			t.Errorf("ParsePermissions(%q) returned error: %v", tt.perms, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePermissions(%q) = %o, want %o", tt.perms, got, tt.want)
		}
	}
}

func TestParsePermissionsRejectsWrongLength(t *testing.T) {
	for _, perms := range []string{"", "rwx", "drwxr-xr-xx"} {
		if _, err := ParsePermissions(perms); err == nil {
			t.Errorf("ParsePermissions(%q) succeeded, want error", perms)
		}
	}
}

func TestFormatOctal(t *testing.T) {
	tests := []struct {
		mode uint32
		want string
	}{
		{0o755, "0755"},
		{0o644, "0644"},
		{0o40755, "0755"}, // type bits are stripped
		{0o4755, "4755"},
		{0, "0000"},
	}
	for _, tt := range tests {
		if got := FormatOctal(tt.mode); got != tt.want {
			t.Errorf("FormatOctal(%o) = %q, want %q", tt.mode, got, tt.want)
		}
	}
}

func TestParseLsLine(t *testing.T) {
	line := "-rw-r--r-- 1 alice staff 4096 2026-03-14 09:26 report.txt"
	entry, ok := parseLsLine(line, "/home/alice")
	if !ok {
		t.Fatalf("parseLsLine(%q) not ok", line)
	}
	if entry.Name != "report.txt" {
		t.Errorf("Name = %q, want %q", entry.Name, "report.txt")
	}
	if entry.Path != "/home/alice/report.txt" {
		t.Errorf("Path = %q, want %q", entry.Path, "/home/alice/report.txt")
	}
	if entry.Type != model.EntryFile {
		t.Errorf("Type = %q, want file", entry.Type)
	}
	if entry.Size != 4096 {
		t.Errorf("Size = %d, want 4096", entry.Size)
	}
	if entry.Owner != "alice" || entry.Group != "staff" {
		t.Errorf("Owner/Group = %q/%q, want alice/staff", entry.Owner, entry.Group)
	}
	if entry.Mode != 0o100644 {
		t.Errorf("Mode = %o, want 100644", entry.Mode)
	}
	if entry.ModifiedAt.IsZero() {
		t.Error("ModifiedAt is zero, want parsed timestamp")
	}
}

func TestParseLsLineNameWithSpaces(t *testing.T) {
	line := "-rw-r--r-- 1 alice staff 10 2026-03-14 09:26 my report final.txt"
	entry, ok := parseLsLine(line, "/tmp")
	if !ok {
		t.Fatal("parseLsLine not ok")
	}
	if entry.Name != "my report final.txt" {
		t.Errorf("Name = %q, want name with spaces preserved", entry.Name)
	}
}

func TestParseLsLineSymlink(t *testing.T) {
	line := "lrwxrwxrwx 1 root root 7 2026-01-02 10:00 current -> /srv/v2"
	entry, ok := parseLsLine(line, "/srv")
	if !ok {
		t.Fatal("parseLsLine not ok")
	}
	if entry.Name != "current" {
		t.Errorf("Name = %q, want target stripped", entry.Name)
	}
	if entry.Type != model.EntrySymlink {
		t.Errorf("Type = %q, want symlink", entry.Type)
	}
}

func TestParseLsLineSkipsNonEntries(t *testing.T) {
	skipped := []string{
		"",
		"total 42",
		"drwxr-xr-x 2 root root 4096 2026-01-02 10:00 .",
		"drwxr-xr-x 9 root root 4096 2026-01-02 10:00 ..",
		"garbage line",
	}
	for _, line := range skipped {
		if _, ok := parseLsLine(line, "/"); ok {
			t.Errorf("parseLsLine(%q) ok, want skipped", line)
		}
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"with space", "'with space'"},
		{"semi;colon", "'semi;colon'"},
		{"it's", `'it'\''s'`},
		{"$HOME", "'$HOME'"},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
