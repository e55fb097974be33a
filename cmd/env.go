package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/envmon/internal/api"
	"github.com/sells-group/envmon/internal/artifact"
	"github.com/sells-group/envmon/internal/classifier"
	"github.com/sells-group/envmon/internal/db"
	"github.com/sells-group/envmon/internal/ebm"
	"github.com/sells-group/envmon/internal/model"
	"github.com/sells-group/envmon/internal/monitoring"
	"github.com/sells-group/envmon/internal/pipeline"
	"github.com/sells-group/envmon/internal/resilience"
	"github.com/sells-group/envmon/internal/store"
	"github.com/sells-group/envmon/pkg/ebmclient"
)

// serviceEnv holds the classifier, pipeline and supporting resources
// needed by the serve/predict/batch commands.
type serviceEnv struct {
	Store    store.Store // nil unless the model came from the registry
	Pipeline *pipeline.Pipeline
	Metrics  *monitoring.Collector
	Info     api.ModelInfo
}

// Close releases resources held by the environment.
func (e *serviceEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initService validates the config for mode, loads the configured model
// backend and builds the pipeline. Callers should defer env.Close().
func initService(ctx context.Context, mode string) (*serviceEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &serviceEnv{}
	var (
		capability classifier.Capability
		collOpts   []monitoring.CollectorOption
	)

	switch cfg.Model.Backend {
	case "remote":
		remote, client, err := initRemote(ctx)
		if err != nil {
			return nil, err
		}
		capability = remote
		if md := remote.Metadata(); md != nil {
			env.Info = api.ModelInfo{Name: md.Name, Version: md.Version, Units: md.Units}
		}
		collOpts = append(collOpts, monitoring.WithBreakerState(func() string {
			return client.BreakerState().String()
		}))
	default:
		m, rec, st, err := initLocal(ctx)
		if err != nil {
			return nil, err
		}
		capability = m
		env.Store = st
		env.Info = api.ModelInfo{
			Name:    rec.Name,
			Version: rec.Version,
			SHA256:  rec.SHA256,
			Units:   m.Artifact().Units,
		}
	}

	env.Info.Backend = cfg.Model.Backend
	env.Info.FeatureNames = capability.FeatureNames()
	env.Info.Classes = capability.Classes()

	collOpts = append(collOpts, monitoring.WithModel(modelLabel(env.Info)))
	env.Metrics = monitoring.NewCollector(collOpts...)
	env.Pipeline = pipeline.New(capability,
		pipeline.WithSummaryFeatures(cfg.Explain.SummaryFeatures),
		pipeline.WithCollector(env.Metrics),
	)

	zap.L().Info("model ready",
		zap.String("backend", env.Info.Backend),
		zap.String("model", modelLabel(env.Info)),
		zap.Int("features", len(env.Info.FeatureNames)),
		zap.Int("classes", len(env.Info.Classes)),
	)
	return env, nil
}

// initLocal loads the artifact named by model.source. The registry is only
// opened for store:// sources; the returned store is nil otherwise.
func initLocal(ctx context.Context) (*ebm.Model, *model.ArtifactRecord, store.Store, error) {
	opts := []artifact.Option{artifact.WithRegion(cfg.AWS.Region)}

	var st store.Store
	if strings.HasPrefix(cfg.Model.Source, "store://") {
		var err error
		st, err = openStore(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, artifact.WithRegistry(st))
	}

	m, rec, err := artifact.NewLoader(opts...).LoadModel(ctx, cfg.Model.Source)
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, nil, nil, eris.Wrap(err, "load model")
	}
	return m, rec, st, nil
}

// initRemote connects to the model service and fetches its metadata.
func initRemote(ctx context.Context) (*classifier.Remote, ebmclient.Client, error) {
	rc := cfg.Remote
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:             "ebm-service",
		FailureThreshold: rc.Circuit.FailureThreshold,
		ResetTimeout:     time.Duration(rc.Circuit.ResetTimeoutSecs) * time.Second,
	})

	client := ebmclient.NewClient(rc.BaseURL,
		ebmclient.WithHTTPClient(&http.Client{Timeout: time.Duration(rc.TimeoutSecs) * time.Second}),
		ebmclient.WithRateLimit(rc.RatePerSec, rc.Burst),
		ebmclient.WithRetry(resilience.RetryConfig{
			MaxAttempts:    rc.Retry.MaxAttempts,
			InitialBackoff: time.Duration(rc.Retry.InitialBackoffMs) * time.Millisecond,
			MaxBackoff:     time.Duration(rc.Retry.MaxBackoffMs) * time.Millisecond,
			JitterFraction: 0.2,
		}),
		ebmclient.WithBreaker(breaker),
	)

	remote := classifier.NewRemote(client)
	if err := remote.Init(ctx); err != nil {
		return nil, nil, eris.Wrap(err, "init remote model")
	}
	return remote, client, nil
}

// openStore opens and migrates the artifact registry.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &db.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

func modelLabel(info api.ModelInfo) string {
	if info.Version == "" {
		return info.Name
	}
	return info.Name + "@" + info.Version
}
