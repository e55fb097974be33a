package artifact

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/envmon/internal/ebm"
	"github.com/sells-group/envmon/internal/model"
	"github.com/sells-group/envmon/internal/store"
)

// ObjectGetter is the S3 call the loader needs. *s3.Client satisfies it.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Registry is the artifact store lookup the loader needs.
type Registry interface {
	GetArtifact(ctx context.Context, name, version string) (*model.ArtifactRecord, error)
}

// Option configures a Loader.
type Option func(*Loader)

// WithS3 sets the S3 client. Without it one is built from the default AWS
// credential chain on first use.
func WithS3(g ObjectGetter) Option {
	return func(l *Loader) { l.s3 = g }
}

// WithRegion sets the AWS region for the lazily built S3 client.
func WithRegion(region string) Option {
	return func(l *Loader) { l.region = region }
}

// WithRegistry enables store:// sources.
func WithRegistry(r Registry) Option {
	return func(l *Loader) { l.registry = r }
}

// Loader reads artifacts from any supported source.
type Loader struct {
	registry Registry
	region   string

	s3Once sync.Once
	s3     ObjectGetter
	s3Err  error
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the artifact at source. The returned record always carries the
// content, format and checksum; name and version come from the registry for
// store:// sources and from the file name otherwise.
func (l *Loader) Load(ctx context.Context, source string) (*model.ArtifactRecord, error) {
	src, err := ParseSource(source)
	if err != nil {
		return nil, err
	}

	var rec *model.ArtifactRecord
	switch src.Kind {
	case KindFile:
		rec, err = l.loadFile(src)
	case KindS3:
		rec, err = l.loadS3(ctx, src)
	case KindStore:
		rec, err = l.loadStore(ctx, src)
	}
	if err != nil {
		return nil, err
	}

	if rec.SHA256 == "" {
		rec.SHA256 = store.Checksum(rec.Content)
	}
	zap.L().Info("loaded model artifact",
		zap.String("source", src.String()),
		zap.String("name", rec.Name),
		zap.String("version", rec.Version),
		zap.String("format", string(rec.Format)),
		zap.String("sha256", rec.SHA256),
		zap.Int("bytes", len(rec.Content)),
	)
	return rec, nil
}

// LoadModel reads the artifact at source and builds an in-process model.
func (l *Loader) LoadModel(ctx context.Context, source string) (*ebm.Model, *model.ArtifactRecord, error) {
	rec, err := l.Load(ctx, source)
	if err != nil {
		return nil, nil, err
	}
	m, err := ebm.Load(rec.Content, rec.Format)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "artifact: build model from %s", source)
	}
	// Files and objects carry no registry metadata; the artifact names itself.
	if rec.ID == "" {
		rec.Name = m.Artifact().Name
		rec.Version = m.Artifact().Version
	}
	return m, rec, nil
}

func (l *Loader) loadFile(src Source) (*model.ArtifactRecord, error) {
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read %s", src.Path)
	}
	return &model.ArtifactRecord{
		Name:    baseName(src.Path),
		Format:  ebm.DetectFormat(src.Path),
		Content: data,
	}, nil
}

func (l *Loader) loadS3(ctx context.Context, src Source) (*model.ArtifactRecord, error) {
	client, err := l.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(src.Bucket),
		Key:    aws.String(src.Key),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: get %s", src)
	}
	defer out.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read %s", src)
	}
	return &model.ArtifactRecord{
		Name:    baseName(src.Key),
		Format:  ebm.DetectFormat(src.Key),
		Content: data,
	}, nil
}

func (l *Loader) loadStore(ctx context.Context, src Source) (*model.ArtifactRecord, error) {
	if l.registry == nil {
		return nil, eris.Errorf("artifact: %s requires an artifact store", src)
	}
	rec, err := l.registry.GetArtifact(ctx, src.Name, src.Version)
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: load %s", src)
	}
	return rec, nil
}

func (l *Loader) s3Client(ctx context.Context) (ObjectGetter, error) {
	l.s3Once.Do(func() {
		if l.s3 != nil {
			return
		}
		var opts []func(*config.LoadOptions) error
		if l.region != "" {
			opts = append(opts, config.WithRegion(l.region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			l.s3Err = eris.Wrap(err, "artifact: load aws config")
			return
		}
		l.s3 = s3.NewFromConfig(cfg)
	})
	return l.s3, l.s3Err
}

func baseName(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

