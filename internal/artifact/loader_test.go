package artifact

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/envmon/internal/model"
	"github.com/sells-group/envmon/internal/store"
)

const airArtifact = "../ebm/testdata/air_quality.json"

type fakeS3 struct {
	objects map[string][]byte
	calls   int
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls++
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, assert.AnError
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func readFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(airArtifact)
	require.NoError(t, err)
	return data
}

func TestLoader_File(t *testing.T) {
	rec, err := NewLoader().Load(context.Background(), airArtifact)
	require.NoError(t, err)
	assert.Equal(t, "air_quality", rec.Name)
	assert.Equal(t, model.ArtifactFormatJSON, rec.Format)
	assert.Equal(t, store.Checksum(rec.Content), rec.SHA256)
}

func TestLoader_FileMissing(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "artifact: read")
}

func TestLoader_LoadModelFromFile(t *testing.T) {
	m, rec, err := NewLoader().LoadModel(context.Background(), "file://"+airArtifact)
	require.NoError(t, err)
	assert.Len(t, m.FeatureNames(), 9)
	assert.Equal(t, "air-quality", rec.Name)
	assert.Equal(t, "2024.06", rec.Version)
}

func TestLoader_S3(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"models/air/v2.json": readFixture(t)}}
	l := NewLoader(WithS3(fake))

	m, rec, err := l.LoadModel(context.Background(), "s3://models/air/v2.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"Good", "Moderate", "Poor", "Hazardous"}, m.Classes())
	assert.Equal(t, "air-quality", rec.Name)
	assert.Equal(t, 1, fake.calls)

	_, err = l.Load(context.Background(), "s3://models/missing.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://models/missing.json")
}

func TestLoader_Store(t *testing.T) {
	ctx := context.Background()
	reg, err := store.NewSQLite(filepath.Join(t.TempDir(), "reg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() }) //nolint:errcheck
	require.NoError(t, reg.Migrate(ctx))

	require.NoError(t, reg.PutArtifact(ctx, &model.ArtifactRecord{
		Name: "air", Version: "prod-1", Format: model.ArtifactFormatJSON, Content: readFixture(t),
	}))

	l := NewLoader(WithRegistry(reg))
	m, rec, err := l.LoadModel(ctx, "store://air")
	require.NoError(t, err)
	assert.Len(t, m.FeatureNames(), 9)
	// Registry metadata wins over the artifact's own name.
	assert.Equal(t, "air", rec.Name)
	assert.Equal(t, "prod-1", rec.Version)

	_, err = l.Load(ctx, "store://air@prod-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLoader_StoreWithoutRegistry(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), "store://air")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an artifact store")
}

func TestLoader_InvalidModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: bad\n"), 0o600))

	_, _, err := NewLoader().LoadModel(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build model")
}
