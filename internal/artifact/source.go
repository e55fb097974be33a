// Package artifact resolves and reads trained model artifacts from local
// files, S3, or the artifact registry.
package artifact

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Kind is where an artifact lives.
type Kind string

const (
	KindFile  Kind = "file"
	KindS3    Kind = "s3"
	KindStore Kind = "store"
)

// Source is a parsed artifact location.
type Source struct {
	Kind Kind
	// Path is set for KindFile.
	Path string
	// Bucket and Key are set for KindS3.
	Bucket string
	Key    string
	// Name and Version are set for KindStore. An empty Version means latest.
	Name    string
	Version string
}

func (s Source) String() string {
	switch s.Kind {
	case KindS3:
		return "s3://" + s.Bucket + "/" + s.Key
	case KindStore:
		if s.Version == "" {
			return "store://" + s.Name
		}
		return "store://" + s.Name + "@" + s.Version
	default:
		return s.Path
	}
}

// ParseSource parses a path, file://path, s3://bucket/key or
// store://name[@version].
func ParseSource(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Source{}, eris.New("artifact: empty source")
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Source{Kind: KindFile, Path: raw}, nil
	}

	switch scheme {
	case "file":
		if rest == "" {
			return Source{}, eris.Errorf("artifact: %q has no path", raw)
		}
		return Source{Kind: KindFile, Path: rest}, nil
	case "s3":
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return Source{}, eris.Errorf("artifact: %q needs s3://bucket/key", raw)
		}
		return Source{Kind: KindS3, Bucket: bucket, Key: key}, nil
	case "store":
		name, version, _ := strings.Cut(rest, "@")
		if name == "" {
			return Source{}, eris.Errorf("artifact: %q has no artifact name", raw)
		}
		if version == "latest" {
			version = ""
		}
		return Source{Kind: KindStore, Name: name, Version: version}, nil
	default:
		return Source{}, eris.Errorf("artifact: unsupported scheme %q", scheme)
	}
}
