package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/envmon/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS model_artifacts (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	version    TEXT NOT NULL,
	format     TEXT NOT NULL DEFAULT 'json',
	sha256     TEXT NOT NULL,
	content    BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (name, version)
);

CREATE INDEX IF NOT EXISTS idx_model_artifacts_name ON model_artifacts(name, seq);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) PutArtifact(ctx context.Context, rec *model.ArtifactRecord) error {
	if err := prepare(rec, uuid.New().String()); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO model_artifacts (id, name, version, format, sha256, content, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Version, string(rec.Format), rec.SHA256, rec.Content, rec.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return eris.Wrapf(ErrAlreadyExists, "%s@%s", rec.Name, rec.Version)
		}
		return eris.Wrapf(err, "sqlite: insert artifact %s@%s", rec.Name, rec.Version)
	}
	return nil
}

func (s *SQLiteStore) GetArtifact(ctx context.Context, name, version string) (*model.ArtifactRecord, error) {
	var row *sql.Row
	if version == "" {
		row = s.db.QueryRowContext(ctx,
			`SELECT id, name, version, format, sha256, content, created_at FROM model_artifacts WHERE name = ? ORDER BY seq DESC LIMIT 1`,
			name,
		)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT id, name, version, format, sha256, content, created_at FROM model_artifacts WHERE name = ? AND version = ?`,
			name, version,
		)
	}

	var rec model.ArtifactRecord
	var format string
	err := row.Scan(&rec.ID, &rec.Name, &rec.Version, &format, &rec.SHA256, &rec.Content, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "%s", ref(name, version))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get artifact %s", ref(name, version))
	}
	rec.Format = model.ArtifactFormat(format)
	return &rec, nil
}

func (s *SQLiteStore) ListArtifacts(ctx context.Context, name string) ([]model.ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, version, format, sha256, created_at FROM model_artifacts WHERE (? = '' OR name = ?) ORDER BY name, seq DESC`,
		name, name,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list artifacts")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ArtifactRecord
	for rows.Next() {
		var rec model.ArtifactRecord
		var format string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Version, &format, &rec.SHA256, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan artifact")
		}
		rec.Format = model.ArtifactFormat(format)
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate artifacts")
}

func ref(name, version string) string {
	if version == "" {
		return name + "@latest"
	}
	return name + "@" + version
}
