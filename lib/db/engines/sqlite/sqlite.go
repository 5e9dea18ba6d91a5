package sqlite

import (
	"bufio"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ValentinKolb/paperKV/lib/db"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// MemoryPath opens a private in-memory database instead of a file
	MemoryPath = ":memory:"

	magicNum      = "PAPERSQL" // Snapshot format identifier
	snapshotEntry = byte(1)    // Marks one more entry in a snapshot
	snapshotEnd   = byte(0)    // Marks the end of a snapshot
	maxKeyLen     = 1 << 20    // Sanity limit when loading snapshots
)

const schema = `CREATE TABLE IF NOT EXISTS entries (
	key   TEXT PRIMARY KEY NOT NULL,
	value BLOB NOT NULL
) WITHOUT ROWID`

// --------------------------------------------------------------------------
// Core sqlite database structure
// --------------------------------------------------------------------------

// sqliteImpl keeps all entries in one table. Reads run on the connection pool,
// writes are serialized because SQLite allows a single writer anyway.
type sqliteImpl struct {
	path    string
	sqlDB   *sql.DB
	writeMu sync.Mutex
}

// DBOptions configures the sqlite engine
type DBOptions struct {
	Path          string // Database file or MemoryPath (required)
	BusyTimeoutMs int    // How long a connection waits on a locked database (0 = 5000)
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewSQLiteDB opens (or creates) the database at opts.Path and ensures the schema exists
func NewSQLiteDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil || strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("sqlite: a path is required")
	}
	busyTimeout := opts.BusyTimeoutMs
	if busyTimeout <= 0 {
		busyTimeout = 5000
	}

	path := opts.Path
	var dsn string
	if path == MemoryPath {
		dsn = path
	} else {
		path = filepath.Clean(path)
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path, busyTimeout)
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if path == MemoryPath {
		// every connection would get its own empty in-memory database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &sqliteImpl{path: path, sqlDB: sqlDB}, nil
}

// wrap annotates err with the operation and, when available, the SQLite result code
func wrap(op string, err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return fmt.Errorf("sqlite: %s: database is locked: %w", op, err)
		case sqlite3lib.SQLITE_FULL:
			return fmt.Errorf("sqlite: %s: disk full: %w", op, err)
		}
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Write Operations
// --------------------------------------------------------------------------

// Set inserts or replaces the value of key
func (s *sqliteImpl) Set(key string, value []byte) error {
	if value == nil {
		// database/sql turns a nil slice into NULL
		value = []byte{}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.sqlDB.Exec(
		`INSERT INTO entries (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return wrap("set", err)
	}
	return nil
}

// Delete removes key, a missing key is not an error
func (s *sqliteImpl) Delete(key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.sqlDB.Exec(`DELETE FROM entries WHERE key = ?`, key); err != nil {
		return wrap("delete", err)
	}
	return nil
}

// Clear removes all entries
func (s *sqliteImpl) Clear() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.sqlDB.Exec(`DELETE FROM entries`); err != nil {
		return wrap("clear", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Query Operations
// --------------------------------------------------------------------------

// Get returns the value of key
func (s *sqliteImpl) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.sqlDB.QueryRow(`SELECT value FROM entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("get", err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

// Has reports whether key exists
func (s *sqliteImpl) Has(key string) (bool, error) {
	var one int
	err := s.sqlDB.QueryRow(`SELECT 1 FROM entries WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap("has", err)
	}
	return true, nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Persistence
// --------------------------------------------------------------------------

// Save writes all entries in a streaming format:
//
//	magic (8 bytes) | { 0x01 | keyLen (uint32) | key | valueLen (uint32) | value } | 0x00
func (s *sqliteImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024)

	tx, err := s.sqlDB.Begin()
	if err != nil {
		return wrap("save", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT key, value FROM entries ORDER BY key`)
	if err != nil {
		return wrap("save", err)
	}
	defer rows.Close()

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return wrap("save", err)
		}
		if err := bw.WriteByte(snapshotEntry); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(value))); err != nil {
			return err
		}
		if _, err := bw.Write(value); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return wrap("save", err)
	}
	if err := bw.WriteByte(snapshotEnd); err != nil {
		return err
	}
	return bw.Flush()
}

// Load replaces all entries with the content of a snapshot written by Save.
// The replacement happens in one transaction, a broken snapshot leaves the table untouched.
func (s *sqliteImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024)

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.sqlDB.Begin()
	if err != nil {
		return wrap("load", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entries`); err != nil {
		return wrap("load", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO entries (key, value) VALUES (?, ?)`)
	if err != nil {
		return wrap("load", err)
	}
	defer stmt.Close()

	for {
		marker, err := br.ReadByte()
		if err != nil {
			return fmt.Errorf("corrupted snapshot: %w", err)
		}
		if marker == snapshotEnd {
			break
		}
		if marker != snapshotEntry {
			return fmt.Errorf("corrupted snapshot: unexpected marker %#x", marker)
		}

		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		if keyLen > maxKeyLen {
			return fmt.Errorf("corrupted snapshot: key length %d exceeds limit", keyLen)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return err
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		value := make([]byte, valueLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return err
		}

		if _, err := stmt.Exec(string(key), value); err != nil {
			return wrap("load", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrap("load", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns the number of entries and their payload size
func (s *sqliteImpl) GetInfo() db.DatabaseInfo {
	var keys, sizeBytes int
	err := s.sqlDB.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(value)), 0) FROM entries`,
	).Scan(&keys, &sizeBytes)

	meta := &struct {
		Path  string `json:"path"`
		Error string `json:"error,omitempty"`
	}{
		Path: s.path,
	}
	if err != nil {
		meta.Error = err.Error()
	}

	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		Keys:      keys,
		DbType:    db.ImplSQLite,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureGet, db.FeatureDelete, db.FeatureHas,
			db.FeatureClear, db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (s *sqliteImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureClear |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// Close closes the connection pool
func (s *sqliteImpl) Close() error {
	return s.sqlDB.Close()
}
