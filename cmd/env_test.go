//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/envmon/internal/config"
	"github.com/sells-group/envmon/internal/model"
	"github.com/sells-group/envmon/internal/pipeline"
)

const airArtifact = "../internal/ebm/testdata/air_quality.json"

var cleanAir = model.FeatureVector{18, 40, 5, 20, 15, 5, 0.5, 15, 200}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Server.Port = 8000
	c.Server.CORSOrigins = []string{"*"}
	c.Model.Backend = "local"
	c.Model.Source = airArtifact
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "envmon.db")
	c.Explain.SummaryFeatures = 3
	c.Batch.MaxConcurrency = 2
	c.Remote.TimeoutSecs = 5
	c.Remote.Retry.MaxAttempts = 1
	c.Remote.Circuit.FailureThreshold = 3
	c.Remote.Circuit.ResetTimeoutSecs = 30
	return c
}

func TestServiceEnv_Close_Nil(t *testing.T) {
	env := &serviceEnv{}
	assert.NotPanics(t, env.Close)
}

func TestInitService_LocalFile(t *testing.T) {
	cfg = testConfig(t)

	env, err := initService(context.Background(), "predict")
	require.NoError(t, err)
	defer env.Close()

	assert.Nil(t, env.Store)
	assert.Equal(t, "air-quality", env.Info.Name)
	assert.Equal(t, "2024.06", env.Info.Version)
	assert.Equal(t, "local", env.Info.Backend)
	assert.Len(t, env.Info.FeatureNames, 9)
	assert.NotEmpty(t, env.Info.SHA256)
	assert.Equal(t, "air-quality@2024.06", env.Metrics.Snapshot().Model)

	res, err := env.Pipeline.Run(context.Background(), cleanAir, pipeline.Options{Explain: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ClassLabel)
	assert.Contains(t, res.Summary, "Predicted Good")
}

func TestInitService_LocalStore(t *testing.T) {
	cfg = testConfig(t)

	ctx := context.Background()
	st, err := openStore(ctx)
	require.NoError(t, err)
	data, err := os.ReadFile(airArtifact)
	require.NoError(t, err)
	require.NoError(t, st.PutArtifact(ctx, &model.ArtifactRecord{Name: "aq", Version: "v7", Content: data}))
	require.NoError(t, st.Close())

	cfg.Model.Source = "store://aq"
	env, err := initService(ctx, "serve")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.Equal(t, "aq", env.Info.Name)
	assert.Equal(t, "v7", env.Info.Version)
}

func TestInitService_InvalidConfig(t *testing.T) {
	cfg = testConfig(t)
	cfg.Model.Backend = "onnx"

	env, err := initService(context.Background(), "predict")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.backend")
}

func TestInitService_MissingArtifact(t *testing.T) {
	cfg = testConfig(t)
	cfg.Model.Source = filepath.Join(t.TempDir(), "missing.json")

	_, err := initService(context.Background(), "predict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load model")
}

func fakeModelService(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metadata", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":          "remote-aq",
			"version":       "3",
			"feature_names": []string{"PM2.5", "NO2"},
			"classes":       []string{"Safe", "Unsafe"},
		})
	})
	mux.HandleFunc("POST /predict", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"prediction":1,"probabilities":[0.25,0.75]}`))
	})
	mux.HandleFunc("POST /explain-local", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"names":["PM2.5","NO2"],"scores":[[0.5],-0.3]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestInitService_Remote(t *testing.T) {
	srv := fakeModelService(t)
	cfg = testConfig(t)
	cfg.Model.Backend = "remote"
	cfg.Remote.BaseURL = srv.URL

	env, err := initService(context.Background(), "serve")
	require.NoError(t, err)
	defer env.Close()

	assert.Equal(t, "remote-aq", env.Info.Name)
	assert.Equal(t, []string{"PM2.5", "NO2"}, env.Info.FeatureNames)
	assert.Equal(t, "closed", env.Metrics.Snapshot().BreakerState)

	res, err := env.Pipeline.Run(context.Background(), model.FeatureVector{40, 80}, pipeline.Options{Explain: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ClassLabel)
	require.NotNil(t, res.Explanation)
	assert.Equal(t, "PM2.5", (*res.Explanation)[0].Feature)
	assert.InDelta(t, 62.5, (*res.Explanation)[0].Percent, 1e-9)
}

func TestInitService_RemoteDown(t *testing.T) {
	srv := fakeModelService(t)
	srv.Close()

	cfg = testConfig(t)
	cfg.Model.Backend = "remote"
	cfg.Remote.BaseURL = srv.URL

	_, err := initService(context.Background(), "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init remote model")
}
