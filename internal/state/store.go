package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/taste-genome/internal/signals"
)

// #region errors
// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")
// #endregion errors

// #region dialect
// Dialect selects DDL and placeholder style.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) placeholder() sq.PlaceholderFormat {
	if d == DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}
// #endregion dialect

// #region schema
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS signals (
	seq           {{serial}},
	signal_id     TEXT NOT NULL UNIQUE,
	profile_id    TEXT NOT NULL,
	signal_type   TEXT NOT NULL,
	topic         TEXT,
	payload_json  TEXT NOT NULL,
	weight        {{float}} NOT NULL,
	hints_json    TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_profile ON signals(profile_id, seq);

CREATE TABLE IF NOT EXISTS genome_versions (
	version_id          TEXT PRIMARY KEY,
	parent_id           TEXT,
	profile_id          TEXT NOT NULL,
	distribution_json   TEXT NOT NULL,
	primary_archetype   TEXT NOT NULL,
	secondary_archetype TEXT NOT NULL,
	confidence          {{float}} NOT NULL,
	keywords_json       TEXT NOT NULL,
	signal_seq          BIGINT NOT NULL,
	signal_count        INTEGER NOT NULL,
	confident_streak    INTEGER NOT NULL,
	created_at          TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES genome_versions(version_id)
);
CREATE INDEX IF NOT EXISTS idx_genome_profile ON genome_versions(profile_id);

CREATE TABLE IF NOT EXISTS active_genome (
	profile_id TEXT PRIMARY KEY,
	version_id TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES genome_versions(version_id)
);

CREATE TABLE IF NOT EXISTS quiz_asked (
	profile_id TEXT NOT NULL,
	option_id  TEXT NOT NULL,
	set_id     TEXT NOT NULL,
	topic      TEXT NOT NULL,
	asked_at   TEXT NOT NULL,
	PRIMARY KEY (profile_id, option_id)
);

CREATE TABLE IF NOT EXISTS conviction_reports (
	post_id       TEXT PRIMARY KEY,
	profile_id    TEXT NOT NULL,
	report_json   TEXT NOT NULL,
	score         INTEGER NOT NULL,
	gating_status TEXT NOT NULL,
	published     INTEGER NOT NULL DEFAULT 0,
	published_at  TEXT,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audience_records (
	post_id     TEXT PRIMARY KEY,
	record_json TEXT NOT NULL,
	score       {{float}} NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audience_fetches (
	id         {{serial}},
	post_id    TEXT NOT NULL,
	score      {{float}} NOT NULL,
	fetched_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audience_fetches_post ON audience_fetches(post_id, id);

CREATE TABLE IF NOT EXISTS validations (
	validation_id       TEXT PRIMARY KEY,
	post_id             TEXT NOT NULL UNIQUE,
	profile_id          TEXT NOT NULL,
	predicted           {{float}} NOT NULL,
	actual              {{float}} NOT NULL,
	accuracy            {{float}} NOT NULL,
	override_successful INTEGER,
	calibrated          INTEGER NOT NULL DEFAULT 0,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS genome_evolution (
	id            {{serial}},
	entry_id      TEXT NOT NULL UNIQUE,
	profile_id    TEXT NOT NULL,
	version_id    TEXT,
	validation_id TEXT,
	event         TEXT NOT NULL,
	changes_json  TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evolution_profile ON genome_evolution(profile_id, id);
`

func schemaFor(d Dialect) string {
	serial, float := "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL"
	if d == DialectPostgres {
		serial, float = "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION"
	}
	return strings.NewReplacer("{{serial}}", serial, "{{float}}", float).Replace(schemaTemplate)
}
// #endregion schema

// #region store-struct
// Store persists signals, genome versions, conviction and audience records.
type Store struct {
	db         *sql.DB
	dialect    Dialect
	sb         sq.StatementBuilderType
	archetypes signals.ArchetypeSet
}
// #endregion store-struct

// #region constructor
// NewStore opens the database for driver ("sqlite" or "postgres") and runs migrations.
// archetypes is used to validate signal hints on append.
func NewStore(driver, dsn string, archetypes signals.ArchetypeSet) (*Store, error) {
	dialect := Dialect(driver)
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dialect == DialectSQLite {
		// one connection keeps pragmas and write ordering consistent
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma fk: %w", err)
		}
	}
	for _, stmt := range strings.Split(schemaFor(dialect), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &Store{
		db:         db,
		dialect:    dialect,
		sb:         sq.StatementBuilder.PlaceholderFormat(dialect.placeholder()),
		archetypes: archetypes,
	}, nil
}
// #endregion constructor

// #region accessors
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Builder returns a statement builder using this store's placeholder style.
func (s *Store) Builder() sq.StatementBuilderType {
	return s.sb
}

// Dialect reports which SQL dialect the store speaks.
func (s *Store) Dialect() Dialect {
	return s.dialect
}
// #endregion accessors

// #region helpers
// TimeLayout is the stored timestamp format. Its fixed width keeps text
// comparison in SQL in time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
// #endregion helpers
