// ConfigLoader and LogStore persistence for the Email Adapter (C8), against
// its own SQLite database per spec.md §6's "email config DB path"/"email
// log DB path". Follows the same Open/WAL/embed.FS migration shape as
// internal/adapter/script/store.go and internal/store/sqlite.
package email

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store is the SQLite-backed ConfigLoader and LogStore.
type Store struct {
	db *sql.DB
}

var (
	_ ConfigLoader = (*Store)(nil)
	_ LogStore     = (*Store)(nil)
)

// Open opens the email config/log database at path. Both tables live in
// one schema here, so the same Store can serve as ConfigLoader and
// LogStore; workerd opens a second Store for the send log only when
// EmailLogDBPath names a different file from EmailConfigDBPath.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open email db %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Migrate applies the embedded migration set.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, entry := range entries {
		b, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutModuleConfig inserts or replaces the config row for module. Used by
// operators/tests to seed config; spec.md's own data flow never writes
// this table from the hot path.
func (s *Store) PutModuleConfig(ctx context.Context, cfg ModuleConfig) error {
	var backupHost, backupUsername, backupPassword *string
	var backupPort *int
	if cfg.Backup != nil {
		backupHost = &cfg.Backup.Host
		backupPort = &cfg.Backup.Port
		backupUsername = &cfg.Backup.Username
		backupPassword = &cfg.Backup.Password
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO module_configs (
			module, failover_enabled, notify_on_failover, admin_address,
			main_host, main_port, main_username, main_password,
			backup_host, backup_port, backup_username, backup_password
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(module) DO UPDATE SET
			failover_enabled=excluded.failover_enabled,
			notify_on_failover=excluded.notify_on_failover,
			admin_address=excluded.admin_address,
			main_host=excluded.main_host,
			main_port=excluded.main_port,
			main_username=excluded.main_username,
			main_password=excluded.main_password,
			backup_host=excluded.backup_host,
			backup_port=excluded.backup_port,
			backup_username=excluded.backup_username,
			backup_password=excluded.backup_password
	`, cfg.Module, cfg.FailoverEnabled, cfg.NotifyOnFailover, cfg.AdminAddress,
		cfg.Main.Host, cfg.Main.Port, cfg.Main.Username, cfg.Main.Password,
		backupHost, backupPort, backupUsername, backupPassword)
	if err != nil {
		return fmt.Errorf("put module config %q: %w", cfg.Module, err)
	}
	return nil
}

// LoadModuleConfig implements ConfigLoader: load the module's own row, or
// fall back to the "Global" row, spec.md §4.6 "Init".
func (s *Store) LoadModuleConfig(ctx context.Context, module string) (*ModuleConfig, error) {
	cfg, err := s.loadRow(ctx, module)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	if module == "Global" {
		return nil, fmt.Errorf("no Global email config configured")
	}
	cfg, err = s.loadRow(ctx, "Global")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("no config for module %q and no Global fallback configured", module)
	}
	return cfg, nil
}

func (s *Store) loadRow(ctx context.Context, module string) (*ModuleConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT failover_enabled, notify_on_failover, admin_address,
			main_host, main_port, main_username, main_password,
			backup_host, backup_port, backup_username, backup_password
		FROM module_configs WHERE module=?
	`, module)

	var cfg ModuleConfig
	cfg.Module = module
	var backupHost, backupUsername, backupPassword *string
	var backupPort *int
	err := row.Scan(&cfg.FailoverEnabled, &cfg.NotifyOnFailover, &cfg.AdminAddress,
		&cfg.Main.Host, &cfg.Main.Port, &cfg.Main.Username, &cfg.Main.Password,
		&backupHost, &backupPort, &backupUsername, &backupPassword)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan module config %q: %w", module, err)
	}
	if backupHost != nil {
		cfg.Backup = &TransportConfig{
			Host: *backupHost, Port: *backupPort, Username: *backupUsername, Password: *backupPassword,
		}
	}
	return &cfg, nil
}

// LogAttempt implements LogStore: append one send-attempt row.
func (s *Store) LogAttempt(ctx context.Context, module, to, status, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO send_log (module, recipient, status, detail, created_at) VALUES (?, ?, ?, ?, ?)
	`, module, to, status, detail, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("log send attempt: %w", err)
	}
	return nil
}
