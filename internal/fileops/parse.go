// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package fileops

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/castellan-dev/castellan/internal/model"
)

// File-type bits in the numeric mode, matching the POSIX layout.
const (
	modeTypeRegular uint32 = 0o100000
	modeTypeDir     uint32 = 0o040000
	modeTypeSymlink uint32 = 0o120000

	modeSetuid uint32 = 0o4000
	modeSetgid uint32 = 0o2000
	modeSticky uint32 = 0o1000
)

// ParsePermissions translates a 10-character permission string such as
// "drwxr-xr-x" into numeric permission bits plus file-type bits, e.g.
// 0o40755. Setuid/setgid/sticky display forms (s, S, t, T) are honored.
func ParsePermissions(perms string) (uint32, error) {
	if len(perms) != 10 {
		return 0, fmt.Errorf("permission string %q: want 10 characters, got %d", perms, len(perms))
	}

	var mode uint32
	switch perms[0] {
	case 'd':
		mode = modeTypeDir
	case 'l':
		mode = modeTypeSymlink
	case '-':
		mode = modeTypeRegular
	default:
		// Character/block devices, FIFOs and sockets are reported but not
		// special-cased; treat them as regular for the numeric type bits.
		mode = modeTypeRegular
	}

	// Three triplets: owner, group, other.
	for i := 0; i < 3; i++ {
		shift := uint(6 - 3*i)
		triplet := perms[1+3*i : 4+3*i]
		if triplet[0] == 'r' {
			mode |= 0o4 << shift
		}
		if triplet[1] == 'w' {
			mode |= 0o2 << shift
		}
		switch triplet[2] {
		case 'x':
			mode |= 0o1 << shift
		case 's': // executable plus setuid/setgid
			mode |= 0o1 << shift
			if i == 0 {
				mode |= modeSetuid
			} else if i == 1 {
				mode |= modeSetgid
			}
		case 'S': // setuid/setgid without execute
			if i == 0 {
				mode |= modeSetuid
			} else if i == 1 {
				mode |= modeSetgid
			}
		case 't': // sticky plus execute
			if i == 2 {
				mode |= modeSticky | 0o1
			}
		case 'T': // sticky without execute
			if i == 2 {
				mode |= modeSticky
			}
		}
	}

	return mode, nil
}

// entryTypeFromPermissions maps the leading character of a permission
// string to the entry type.
func entryTypeFromPermissions(perms string) model.FileEntryType {
	switch perms[0] {
	case 'd':
		return model.EntryDirectory
	case 'l':
		return model.EntrySymlink
	default:
		return model.EntryFile
	}
}

// FormatOctal renders the permission bits of mode as the zero-padded
// 4-digit octal string chmod expects, e.g. 0o755 -> "0755".
func FormatOctal(mode uint32) string {
	return fmt.Sprintf("%04o", mode&0o7777)
}

// lsTimeLayout matches `ls --time-style=long-iso` output.
const lsTimeLayout = "2006-01-02 15:04"

// parseLsLine parses one `ls -la --time-style=long-iso` line into a
// FileEntry. dir is the directory being listed, used to build the full
// path. Lines that are not entries (e.g. "total 42") return ok=false.
func parseLsLine(line, dir string) (model.FileEntry, bool) {
	var entry model.FileEntry

	line = strings.TrimRight(line, "\r")
	if line == "" || strings.HasPrefix(line, "total ") {
		return entry, false
	}

	// Seven fixed-width fields, then the name (which may contain spaces):
	// perms links owner group size date time name
	fields, rest := splitFields(line, 7)
	if len(fields) != 7 || rest == "" {
		return entry, false
	}
	perms := fields[0]
	if len(perms) != 10 {
		return entry, false
	}

	name := rest
	// Symlink rows carry the target after " -> "; the entry name is the
	// part before it.
	if perms[0] == 'l' {
		if idx := strings.Index(name, " -> "); idx >= 0 {
			name = name[:idx]
		}
	}
	if name == "." || name == ".." {
		return entry, false
	}

	mode, err := ParsePermissions(perms)
	if err != nil {
		return entry, false
	}
	size, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return entry, false
	}
	modified, err := time.Parse(lsTimeLayout, fields[5]+" "+fields[6])
	if err != nil {
		// Keep the entry; an unparseable timestamp is not worth dropping
		// the row over.
		modified = time.Time{}
	}

	entry = model.FileEntry{
		Name:        name,
		Path:        path.Join(dir, name),
		Type:        entryTypeFromPermissions(perms),
		Size:        size,
		Mode:        mode,
		Permissions: perms,
		Owner:       fields[2],
		Group:       fields[3],
		ModifiedAt:  modified,
	}
	return entry, true
}

// splitFields returns the first n whitespace-separated fields of line and
// the remainder after them with leading whitespace trimmed.
func splitFields(line string, n int) ([]string, string) {
	fields := make([]string, 0, n)
	rest := line
	for len(fields) < n {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			return fields, ""
		}
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			fields = append(fields, rest)
			rest = ""
			break
		}
		fields = append(fields, rest[:end])
		rest = rest[end:]
	}
	return fields, strings.TrimLeft(rest, " \t")
}

// shellQuote wraps s in single quotes so it survives the remote shell
// untouched. Embedded single quotes are closed, escaped and reopened.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
