package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect selects SQL placeholder and locking syntax.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

const (
	entryColumns = `id, tenant_id, lane, title, summary, status, linked_output_id, linked_output_url, doc, created_at, updated_at`

	queryInsertEntry = `INSERT INTO ledger_entries (` + entryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	querySelectEntry = `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = ?`
	queryUpdateEntry = `UPDATE ledger_entries SET title = ?, summary = ?, status = ?, linked_output_id = ?, linked_output_url = ?, doc = ?, updated_at = ? WHERE id = ?`
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL DEFAULT '',
		lane TEXT NOT NULL,
		title TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		linked_output_id TEXT NOT NULL DEFAULT '',
		linked_output_url TEXT NOT NULL DEFAULT '',
		doc TEXT NOT NULL DEFAULT '{}',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_tenant_status ON ledger_entries(tenant_id, status)`,
}

// entryDoc holds the collection fields serialized into the doc column.
type entryDoc struct {
	Channels []string        `json:"channels,omitempty"`
	Tags     []string        `json:"tags,omitempty"`
	Pending  []PendingAction `json:"pending,omitempty"`
	History  []Transition    `json:"history,omitempty"`
	Approved *time.Time      `json:"approved_at,omitempty"`
}

// SQLStore persists entries with database/sql. It speaks SQLite and Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLStore opens a database for the given dialect and applies the schema.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("ledger dsn is required")
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	switch dialect {
	case DialectSQLite:
		// One writer connection avoids SQLITE_BUSY between concurrent runs.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	case DialectPostgres:
	default:
		db.Close()
		return nil, fmt.Errorf("unsupported ledger dialect: %s", dialect)
	}

	store := NewSQLStore(db, dialect)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an already opened database.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Migrate creates the ledger table when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize ledger schema: %w", err)
		}
	}
	return nil
}

// Create inserts a new entry.
func (s *SQLStore) Create(ctx context.Context, entry Entry) (Entry, error) {
	doc, err := encodeDoc(entry)
	if err != nil {
		return Entry{}, err
	}

	_, err = s.db.ExecContext(ctx, s.rebind(queryInsertEntry),
		entry.ID,
		entry.TenantID,
		string(entry.Lane),
		entry.Title,
		entry.Summary,
		string(entry.Status),
		entry.LinkedOutputID,
		entry.LinkedOutputURL,
		doc,
		entry.CreatedAt.UnixNano(),
		entry.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Entry{}, fmt.Errorf("%w: %s", ErrExists, entry.ID)
		}
		return Entry{}, fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return cloneEntry(entry), nil
}

// Get loads an entry by id.
func (s *SQLStore) Get(ctx context.Context, id string) (Entry, error) {
	entry, err := scanEntry(s.db.QueryRowContext(ctx, s.rebind(querySelectEntry), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to load ledger entry: %w", err)
	}
	return entry, nil
}

// Update reads, merges and writes the entry inside one transaction.
func (s *SQLStore) Update(ctx context.Context, id string, patch Patch, now time.Time) (Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	selectQuery := querySelectEntry
	if s.dialect == DialectPostgres {
		selectQuery += " FOR UPDATE"
	}

	current, err := scanEntry(tx.QueryRowContext(ctx, s.rebind(selectQuery), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to load ledger entry: %w", err)
	}

	updated, err := applyPatch(current, patch, now)
	if err != nil {
		return Entry{}, err
	}

	doc, err := encodeDoc(updated)
	if err != nil {
		return Entry{}, err
	}

	if _, err := tx.ExecContext(ctx, s.rebind(queryUpdateEntry),
		updated.Title,
		updated.Summary,
		string(updated.Status),
		updated.LinkedOutputID,
		updated.LinkedOutputURL,
		doc,
		updated.UpdatedAt.UnixNano(),
		id,
	); err != nil {
		return Entry{}, fmt.Errorf("failed to update ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return updated, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry     Entry
		lane      string
		status    string
		doc       string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(
		&entry.ID,
		&entry.TenantID,
		&lane,
		&entry.Title,
		&entry.Summary,
		&status,
		&entry.LinkedOutputID,
		&entry.LinkedOutputURL,
		&doc,
		&createdAt,
		&updatedAt,
	); err != nil {
		return Entry{}, err
	}

	entry.Lane = Lane(lane)
	entry.Status = Status(status)
	entry.CreatedAt = time.Unix(0, createdAt).UTC()
	entry.UpdatedAt = time.Unix(0, updatedAt).UTC()

	var d entryDoc
	if doc != "" {
		if err := json.Unmarshal([]byte(doc), &d); err != nil {
			return Entry{}, fmt.Errorf("failed to decode ledger doc: %w", err)
		}
	}
	entry.Channels = d.Channels
	entry.Tags = d.Tags
	entry.Pending = d.Pending
	entry.History = d.History
	entry.ApprovedAt = d.Approved
	return entry, nil
}

func encodeDoc(e Entry) (string, error) {
	data, err := json.Marshal(entryDoc{
		Channels: e.Channels,
		Tags:     e.Tags,
		Pending:  e.Pending,
		History:  e.History,
		Approved: e.ApprovedAt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode ledger doc: %w", err)
	}
	return string(data), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
