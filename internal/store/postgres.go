package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/envmon/internal/db"
	"github.com/sells-group/envmon/internal/model"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres connects to Postgres and returns a store over the pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS model_artifacts (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL,
	version    TEXT NOT NULL,
	format     TEXT NOT NULL DEFAULT 'json',
	sha256     TEXT NOT NULL,
	content    BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, version)
);

CREATE INDEX IF NOT EXISTS idx_model_artifacts_name ON model_artifacts(name, seq DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) PutArtifact(ctx context.Context, rec *model.ArtifactRecord) error {
	if err := prepare(rec, uuid.New().String()); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO model_artifacts (id, name, version, format, sha256, content, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Name, rec.Version, string(rec.Format), rec.SHA256, rec.Content, rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return eris.Wrapf(ErrAlreadyExists, "%s@%s", rec.Name, rec.Version)
		}
		return eris.Wrapf(err, "postgres: insert artifact %s@%s", rec.Name, rec.Version)
	}
	return nil
}

func (s *PostgresStore) GetArtifact(ctx context.Context, name, version string) (*model.ArtifactRecord, error) {
	var row pgx.Row
	if version == "" {
		row = s.pool.QueryRow(ctx,
			`SELECT id, name, version, format, sha256, content, created_at FROM model_artifacts WHERE name = $1 ORDER BY seq DESC LIMIT 1`,
			name,
		)
	} else {
		row = s.pool.QueryRow(ctx,
			`SELECT id, name, version, format, sha256, content, created_at FROM model_artifacts WHERE name = $1 AND version = $2`,
			name, version,
		)
	}

	var rec model.ArtifactRecord
	var format string
	err := row.Scan(&rec.ID, &rec.Name, &rec.Version, &format, &rec.SHA256, &rec.Content, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "%s", ref(name, version))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get artifact %s", ref(name, version))
	}
	rec.Format = model.ArtifactFormat(format)
	return &rec, nil
}

func (s *PostgresStore) ListArtifacts(ctx context.Context, name string) ([]model.ArtifactRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, version, format, sha256, created_at FROM model_artifacts WHERE ($1 = '' OR name = $1) ORDER BY name, seq DESC`,
		name,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list artifacts")
	}
	defer rows.Close()

	var out []model.ArtifactRecord
	for rows.Next() {
		var rec model.ArtifactRecord
		var format string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Version, &format, &rec.SHA256, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan artifact")
		}
		rec.Format = model.ArtifactFormat(format)
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate artifacts")
}
