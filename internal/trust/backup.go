// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package trust

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/castellan-dev/castellan/internal/model"
)

// BackupData is the on-disk shape of a trust store export.
type BackupData struct {
	Version    int             `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	HostKeys   []model.HostKey `json:"host_keys"`
}

// backupVersion is bumped when the export shape changes.
const backupVersion = 1

// Export writes every trusted host key as zstd-compressed JSON to w.
// It returns the number of exported keys.
func Export(ctx context.Context, s Store, w io.Writer) (int, error) {
	keys, err := s.ListHostKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not export trust store: %w", err)
	}

	zstdWriter, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("could not create zstd writer: %w", err)
	}
	defer func() { _ = zstdWriter.Close() }()

	encoder := json.NewEncoder(zstdWriter)
	encoder.SetIndent("", "  ") // Pretty-print the JSON inside the compressed file

	data := BackupData{Version: backupVersion, ExportedAt: time.Now().UTC(), HostKeys: keys}
	if err := encoder.Encode(&data); err != nil {
		return 0, fmt.Errorf("could not encode json to zstd writer: %w", err)
	}
	if err := zstdWriter.Close(); err != nil {
		return 0, fmt.Errorf("could not flush zstd writer: %w", err)
	}

	return len(keys), nil
}

// Import reads a zstd-compressed JSON export from r and records every host
// key it contains, replacing existing entries for the same hostname.
// It returns the number of imported keys.
func Import(ctx context.Context, s Store, r io.Reader) (int, error) {
	zstdReader, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("could not create zstd reader: %w", err)
	}
	defer zstdReader.Close()

	var data BackupData
	if err := json.NewDecoder(zstdReader).Decode(&data); err != nil {
		return 0, fmt.Errorf("could not decode json from zstd reader: %w", err)
	}
	if data.Version != backupVersion {
		return 0, fmt.Errorf("unsupported trust backup version %d", data.Version)
	}

	for _, k := range data.HostKeys {
		if err := s.SetHostKey(ctx, k.Hostname, k.PublicKey); err != nil {
			return 0, fmt.Errorf("could not import key for %s: %w", k.Hostname, err)
		}
	}

	return len(data.HostKeys), nil
}
