// Package ebmclient provides a client for the Python EBM model service.
package ebmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/sells-group/envmon/internal/resilience"
)

// Client defines the model service operations.
type Client interface {
	// Metadata returns the feature order and class names the model was
	// trained with.
	Metadata(ctx context.Context) (*Metadata, error)
	// Predict returns the class label and class probabilities.
	Predict(ctx context.Context, features []float64) (*PredictResponse, error)
	// ExplainLocal returns the model's local explanation for one reading.
	ExplainLocal(ctx context.Context, features []float64) (*ExplainResponse, error)
	// BreakerState reports the circuit breaker guarding the service.
	BreakerState() resilience.State
}

// Metadata describes the served model.
type Metadata struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	FeatureNames []string          `json:"feature_names"`
	Classes      []string          `json:"classes"`
	Units        map[string]string `json:"units,omitempty"`
}

// PredictResponse is the parsed /predict response.
type PredictResponse struct {
	Prediction    int       `json:"prediction"`
	Probabilities []float64 `json:"probabilities"`
}

// ExplainResponse is the parsed /explain-local response. Scores holds each
// feature's contribution as raw JSON because the service reports numbers,
// single-element arrays, or nested arrays depending on the model.
type ExplainResponse struct {
	Names  []string
	Scores []gjson.Result
}

type featuresRequest struct {
	Features []float64 `json:"features"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			if burst <= 0 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
		}
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithBreaker sets the circuit breaker guarding the service.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// NewClient creates a model service client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker: resilience.NewBreaker(resilience.BreakerConfig{Name: "ebm-service"}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *httpClient) Metadata(ctx context.Context) (*Metadata, error) {
	body, err := c.call(ctx, "metadata", http.MethodGet, "/metadata", nil)
	if err != nil {
		return nil, err
	}

	var md Metadata
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, eris.Wrap(err, "ebmclient: unmarshal metadata")
	}
	if len(md.FeatureNames) == 0 {
		return nil, eris.New("ebmclient: metadata has no feature names")
	}
	return &md, nil
}

func (c *httpClient) Predict(ctx context.Context, features []float64) (*PredictResponse, error) {
	body, err := c.call(ctx, "predict", http.MethodPost, "/predict", featuresRequest{Features: features})
	if err != nil {
		return nil, err
	}

	var resp PredictResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "ebmclient: unmarshal predict response")
	}
	return &resp, nil
}

func (c *httpClient) ExplainLocal(ctx context.Context, features []float64) (*ExplainResponse, error) {
	body, err := c.call(ctx, "explain-local", http.MethodPost, "/explain-local", featuresRequest{Features: features})
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, eris.New("ebmclient: unmarshal explain response: invalid json")
	}
	parsed := gjson.ParseBytes(body)

	names := parsed.Get("names")
	scores := parsed.Get("scores")
	if !names.IsArray() || !scores.IsArray() {
		return nil, eris.New("ebmclient: explain response needs names and scores arrays")
	}

	resp := &ExplainResponse{Scores: scores.Array()}
	for _, n := range names.Array() {
		resp.Names = append(resp.Names, n.String())
	}
	return resp, nil
}

// call sends one request through the limiter, retry policy and breaker and
// returns the body of a 200 response.
func (c *httpClient) call(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	var reqBody []byte
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, eris.Wrapf(err, "ebmclient: %s: marshal request", op)
		}
	}

	retryCfg := c.retry
	retryCfg.Operation = op

	body, err := resilience.Retry(ctx, retryCfg, func(ctx context.Context) ([]byte, error) {
		return resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
			return c.do(ctx, method, path, reqBody)
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "ebmclient: %s", op)
	}
	return body, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, reqBody []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var rdr io.Reader
	if reqBody != nil {
		rdr = bytes.NewReader(reqBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}
	return body, nil
}
