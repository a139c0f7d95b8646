package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Logger receives the store's rare diagnostics.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
}

// SQLite is a Store backed by an SQLite database file.
type SQLite struct {
	db     *sql.DB
	dbPath string
}

// OpenSQLite opens or creates the database at dbPath. An empty path opens
// an in-memory database. A database whose schema cannot be set up is moved
// aside and replaced by a fresh one; log may be nil.
func OpenSQLite(dbPath string, log Logger) (*SQLite, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one connection: an in-memory database exists per connection, and the
	// monitor writes rarely enough that a pool buys nothing
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	pragmas := []string{
		"PRAGMA busy_timeout = 30000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLite{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		if dbPath == ":memory:" {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		if log != nil {
			log.Error("Database schema initialization failed, rotating database", "error", err, "path", dbPath)
		}
		backup, rotateErr := RotateDatabase(dbPath)
		if rotateErr != nil {
			return nil, fmt.Errorf("failed to initialize schema and unable to rotate database: %w (rotation error: %v)", err, rotateErr)
		}
		if log != nil {
			log.Warn("Database rotated, starting with an empty port list", "backupPath", backup)
		}
		return OpenSQLite(dbPath, log)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ports (
		name TEXT PRIMARY KEY COLLATE NOCASE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS port_values (
		port TEXT NOT NULL COLLATE NOCASE,
		name TEXT NOT NULL COLLATE NOCASE,
		kind INTEGER NOT NULL,
		str TEXT,
		num INTEGER,
		blob BLOB,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (port, name)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.dbPath
}

func (s *SQLite) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM ports ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLite) Open(name string) (Key, error) {
	var stored string
	err := s.db.QueryRow("SELECT name FROM ports WHERE name = ?", name).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("key %q: %w", name, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open key %q: %w", name, err)
	}
	return &sqliteKey{db: s.db, port: stored}, nil
}

func (s *SQLite) Create(name string) (Key, error) {
	if _, err := s.db.Exec("INSERT OR IGNORE INTO ports (name) VALUES (?)", name); err != nil {
		return nil, fmt.Errorf("failed to create key %q: %w", name, err)
	}
	return s.Open(name)
}

func (s *SQLite) Delete(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM ports WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete key %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("key %q: %w", name, ErrNotExist)
	}
	if _, err := tx.Exec("DELETE FROM port_values WHERE port = ?", name); err != nil {
		return fmt.Errorf("failed to delete values of %q: %w", name, err)
	}
	return tx.Commit()
}

// Root values live under the empty port name, which no port can have.
func (s *SQLite) Root() (Key, error) {
	return &sqliteKey{db: s.db, port: ""}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteKey struct {
	db   *sql.DB
	port string
}

func (k *sqliteKey) get(name string, kind Kind, dest interface{}) error {
	var stored Kind
	var str sql.NullString
	var num sql.NullInt64
	var blob []byte
	err := k.db.QueryRow("SELECT kind, str, num, blob FROM port_values WHERE port = ? AND name = ?", k.port, name).
		Scan(&stored, &str, &num, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("value %q: %w", name, ErrNotExist)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s\\%s: %w", k.port, name, err)
	}
	if stored != kind {
		return fmt.Errorf("value %q is %s: %w", name, stored, ErrWrongType)
	}
	switch d := dest.(type) {
	case *string:
		*d = str.String
	case *uint32:
		*d = uint32(num.Int64)
	case *[]byte:
		*d = blob
	}
	return nil
}

func (k *sqliteKey) set(name string, kind Kind, str, num, blob interface{}) error {
	_, err := k.db.Exec(`
		INSERT INTO port_values (port, name, kind, str, num, blob, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(port, name) DO UPDATE SET
			kind = excluded.kind, str = excluded.str, num = excluded.num,
			blob = excluded.blob, updated_at = excluded.updated_at`,
		k.port, name, int(kind), str, num, blob)
	if err != nil {
		return fmt.Errorf("failed to write %s\\%s: %w", k.port, name, err)
	}
	return nil
}

func (k *sqliteKey) String(name string) (string, error) {
	var v string
	err := k.get(name, KindString, &v)
	return v, err
}

func (k *sqliteKey) SetString(name, value string) error {
	return k.set(name, KindString, value, nil, nil)
}

func (k *sqliteKey) DWord(name string) (uint32, error) {
	var v uint32
	err := k.get(name, KindDWord, &v)
	return v, err
}

func (k *sqliteKey) SetDWord(name string, value uint32) error {
	return k.set(name, KindDWord, nil, int64(value), nil)
}

func (k *sqliteKey) Binary(name string) ([]byte, error) {
	var v []byte
	err := k.get(name, KindBinary, &v)
	return v, err
}

func (k *sqliteKey) SetBinary(name string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return k.set(name, KindBinary, nil, nil, value)
}

func (k *sqliteKey) Close() error { return nil }

// RotateDatabase renames a database that cannot be used and its WAL files
// with a timestamp suffix, leaving them for manual recovery.
//
// Example: ports.db -> ports.db.backup.2025-11-06T14-59-31
func RotateDatabase(dbPath string) (string, error) {
	if dbPath == "" || dbPath == ":memory:" {
		return "", fmt.Errorf("cannot rotate in-memory database")
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return "", fmt.Errorf("database file does not exist: %s", dbPath)
	}

	timestamp := time.Now().Format("2006-01-02T15-04-05")
	backupPath := fmt.Sprintf("%s.backup.%s", dbPath, timestamp)
	if err := os.Rename(dbPath, backupPath); err != nil {
		return "", fmt.Errorf("failed to rename database: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if _, err := os.Stat(dbPath + suffix); err == nil {
			_ = os.Rename(dbPath+suffix, fmt.Sprintf("%s%s.backup.%s", dbPath, suffix, timestamp))
		}
	}
	return backupPath, nil
}
