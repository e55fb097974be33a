package model

import "time"

// ArtifactFormat is the serialization of a stored model artifact.
type ArtifactFormat string

const (
	ArtifactFormatJSON ArtifactFormat = "json"
	ArtifactFormatYAML ArtifactFormat = "yaml"
)

// ArtifactRecord is a trained model artifact held in the registry. Content
// is opaque to everything except the model loader.
type ArtifactRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Version   string         `json:"version"`
	Format    ArtifactFormat `json:"format"`
	SHA256    string         `json:"sha256"`
	Content   []byte         `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
}
