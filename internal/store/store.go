// Package store persists trained model artifacts. Predictions and
// explanations are never stored.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/envmon/internal/db"
	"github.com/sells-group/envmon/internal/model"
)

// Sentinel errors. Match with errors.Is.
var (
	ErrNotFound      = eris.New("store: artifact not found")
	ErrAlreadyExists = eris.New("store: artifact version already exists")
)

// Store is the model artifact registry.
type Store interface {
	// PutArtifact stores rec and fills in its ID, SHA256 and CreatedAt.
	// Versions are immutable: re-putting name@version fails with
	// ErrAlreadyExists.
	PutArtifact(ctx context.Context, rec *model.ArtifactRecord) error
	// GetArtifact returns name@version with content. An empty version
	// selects the most recently stored one.
	GetArtifact(ctx context.Context, name, version string) (*model.ArtifactRecord, error)
	// ListArtifacts returns artifact metadata without content, newest first
	// within each name. An empty name lists everything.
	ListArtifacts(ctx context.Context, name string) ([]model.ArtifactRecord, error)

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Checksum returns the hex SHA-256 of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// prepare validates rec and fills the fields the store owns.
func prepare(rec *model.ArtifactRecord, id string) error {
	if rec == nil {
		return eris.New("store: nil artifact")
	}
	rec.Name = strings.TrimSpace(rec.Name)
	rec.Version = strings.TrimSpace(rec.Version)
	if rec.Name == "" || rec.Version == "" {
		return eris.New("store: artifact name and version are required")
	}
	if len(rec.Content) == 0 {
		return eris.Errorf("store: artifact %s@%s has no content", rec.Name, rec.Version)
	}
	if rec.Format == "" {
		rec.Format = model.ArtifactFormatJSON
	}
	rec.ID = id
	rec.SHA256 = Checksum(rec.Content)
	rec.CreatedAt = time.Now().UTC()
	return nil
}

// Open returns the store for driver ("sqlite" or "postgres") and applies
// migrations.
func Open(ctx context.Context, driver, dsn string, poolCfg *db.PoolConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case "sqlite", "":
		s, err = NewSQLite(dsn)
	case "postgres":
		s, err = NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}
