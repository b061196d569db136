// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

// package trust persists the host keys Castellan has been told to trust.
// Connecting to an unknown host fails closed until 'castellan trust-host'
// records its key; a mismatch afterwards is always a hard error.
//
// The store is backed by bun and supports SQLite, PostgreSQL and MySQL,
// selected by configuration.
package trust

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	// SQL drivers required for the postgres and mysql backends.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/castellan-dev/castellan/internal/logging"
	"github.com/castellan-dev/castellan/internal/model"
)

// hostKeyRow is the bun model for one trusted host key.
type hostKeyRow struct {
	bun.BaseModel `bun:"table:host_keys"`
	ID            int       `bun:"id,pk,autoincrement"`
	Hostname      string    `bun:"hostname,unique,notnull"`
	PublicKey     string    `bun:"public_key,notnull"`
	AddedAt       time.Time `bun:"added_at,notnull"`
}

// Store is the trust database abstraction. All methods take a context for
// cancellation and timeouts.
type Store interface {
	// GetHostKey returns the trusted key for hostname in authorized_keys
	// format, or "" when the host is unknown.
	GetHostKey(ctx context.Context, hostname string) (string, error)
	// SetHostKey records (or replaces) the trusted key for hostname.
	SetHostKey(ctx context.Context, hostname, publicKey string) error
	// ListHostKeys returns every trusted host key.
	ListHostKeys(ctx context.Context) ([]model.HostKey, error)
	// RemoveHostKey forgets the trusted key for hostname.
	RemoveHostKey(ctx context.Context, hostname string) error
	// Close releases the underlying database handle.
	Close() error
}

// store is the package-level Store set by Init, used by the convenience
// helpers below. Tests swap it for a fake.
var store Store

// sqlOpenFunc allows tests to override database opening behavior.
var sqlOpenFunc = sql.Open

// Init opens the trust database for the given type and DSN and sets the
// package-level store.
func Init(dbType, dsn string) error {
	s, err := NewStore(dbType, dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize trust store: %w", err)
	}
	store = s
	return nil
}

// IsInitialized reports whether the package-level store has been set.
func IsInitialized() bool { return store != nil }

// SetStore replaces the package-level store. Intended for tests.
func SetStore(s Store) { store = s }

// Default returns the package-level store, or nil before Init.
func Default() Store { return store }

// bunStore implements Store on top of a *bun.DB.
type bunStore struct {
	db *bun.DB
}

// NewStore opens a sql.DB for the given DSN, ensures the schema exists, and
// returns a Store backed by a long-lived *bun.DB.
func NewStore(dbType, dsn string) (Store, error) {
	driverName := dbType
	// The pgx stdlib registers driver name "pgx"; map "postgres" to it.
	if dbType == "postgres" {
		driverName = "pgx"
	}
	sqlDB, err := sqlOpenFunc(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// In-memory SQLite keeps a separate database per connection; force a
	// single connection so the schema stays visible. Tests rely on this.
	if dbType == "sqlite" && dsn == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	bunDB := createBunDB(sqlDB, dbType)
	if bunDB == nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("unsupported database type: %q", dbType)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := bunDB.NewCreateTable().Model((*hostKeyRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create host_keys table: %w", err)
	}

	logging.Debugf("trust: opened %s store", dbType)
	return &bunStore{db: bunDB}, nil
}

// createBunDB constructs a *bun.DB for the provided *sql.DB and dbType.
func createBunDB(sqlDB *sql.DB, dbType string) *bun.DB {
	switch dbType {
	case "sqlite":
		return bun.NewDB(sqlDB, sqlitedialect.New())
	case "postgres":
		return bun.NewDB(sqlDB, pgdialect.New())
	case "mysql":
		return bun.NewDB(sqlDB, mysqldialect.New())
	default:
		return nil
	}
}

// GetHostKey returns the trusted key for hostname, or "" when unknown.
func (s *bunStore) GetHostKey(ctx context.Context, hostname string) (string, error) {
	var row hostKeyRow
	err := s.db.NewSelect().Model(&row).Where("hostname = ?", hostname).Limit(1).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to query host key for %s: %w", hostname, err)
	}
	return row.PublicKey, nil
}

// SetHostKey records (or replaces) the trusted key for hostname.
func (s *bunStore) SetHostKey(ctx context.Context, hostname, publicKey string) error {
	row := &hostKeyRow{Hostname: hostname, PublicKey: publicKey, AddedAt: time.Now().UTC()}
	// Update-then-insert instead of an upsert: the three supported dialects
	// disagree on upsert syntax.
	res, err := s.db.NewUpdate().Model(row).
		Column("public_key", "added_at").
		Where("hostname = ?", hostname).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store host key for %s: %w", hostname, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store host key for %s: %w", hostname, err)
	}
	return nil
}

// ListHostKeys returns every trusted host key ordered by hostname.
func (s *bunStore) ListHostKeys(ctx context.Context) ([]model.HostKey, error) {
	var rows []hostKeyRow
	if err := s.db.NewSelect().Model(&rows).Order("hostname ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list host keys: %w", err)
	}
	keys := make([]model.HostKey, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, model.HostKey{Hostname: r.Hostname, PublicKey: r.PublicKey, AddedAt: r.AddedAt})
	}
	return keys, nil
}

// RemoveHostKey forgets the trusted key for hostname.
func (s *bunStore) RemoveHostKey(ctx context.Context, hostname string) error {
	_, err := s.db.NewDelete().Model((*hostKeyRow)(nil)).Where("hostname = ?", hostname).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove host key for %s: %w", hostname, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *bunStore) Close() error {
	return s.db.Close()
}
