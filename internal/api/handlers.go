package api

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/envmon/internal/model"
	"github.com/sells-group/envmon/internal/pipeline"
)

var errBadFeatures = eris.New("'features' must be an array")

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	v, err := readFeatures(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(pipeline.KindInvalidInput), err.Error())
		return
	}
	s.run(w, r, v, pipeline.Options{})
}

func (s *Server) handleAirMonitoring(w http.ResponseWriter, r *http.Request) {
	topK := s.defaultTopK
	if raw := r.URL.Query().Get("top"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k < 0 {
			writeError(w, http.StatusBadRequest, string(pipeline.KindInvalidInput), "'top' must be a non-negative integer")
			return
		}
		topK = k
	}

	v, err := readFeatures(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(pipeline.KindInvalidInput), err.Error())
		return
	}
	s.run(w, r, v, pipeline.Options{Explain: true, TopK: topK})
}

func (s *Server) handleWaterMonitoring(w http.ResponseWriter, r *http.Request) {
	_, err := s.pipeline.WaterQuality(r.Context(), nil)
	s.fail(w, r, err)
}

func (s *Server) handleModel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.info)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, v model.FeatureVector, opts pipeline.Options) {
	res, err := s.pipeline.Run(r.Context(), v, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// fail maps a pipeline error onto a status code. Only invalid input echoes
// the underlying message; server-side failures stay generic.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := pipeline.Classify(err)
	status, msg := http.StatusInternalServerError, "prediction failed"
	switch kind {
	case pipeline.KindInvalidInput:
		status, msg = http.StatusBadRequest, err.Error()
	case pipeline.KindAttribution:
		msg = "explanation failed"
	case pipeline.KindProbabilities:
		msg = "model returned invalid probabilities"
	case pipeline.KindUnavailable:
		status, msg = http.StatusServiceUnavailable, "model service unavailable"
	case pipeline.KindNotImplemented:
		status, msg = http.StatusNotImplemented, "water quality prediction is not implemented yet"
	case pipeline.KindCanceled:
		status, msg = http.StatusServiceUnavailable, "request canceled"
	}

	id := RequestID(r.Context())
	if status >= http.StatusInternalServerError && kind != pipeline.KindNotImplemented {
		zap.L().Warn("api: request failed",
			zap.String("request_id", id),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: string(kind), RequestID: id})
}

// readFeatures extracts the "features" array from a JSON body.
func readFeatures(w http.ResponseWriter, r *http.Request) (model.FeatureVector, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "read body")
	}
	if !gjson.ValidBytes(body) {
		return nil, errBadFeatures
	}

	features := gjson.GetBytes(body, "features")
	if !features.IsArray() {
		return nil, errBadFeatures
	}

	items := features.Array()
	v := make(model.FeatureVector, len(items))
	for i, item := range items {
		if item.Type != gjson.Number {
			return nil, eris.Errorf("'features[%d]' must be a number", i)
		}
		f := item.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, eris.Errorf("'features[%d]' must be a finite number", i)
		}
		v[i] = f
	}
	return v, nil
}

// writeJSON encodes body before committing the status so an encode failure
// still reaches the client as a 500.
func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		zap.L().Error("api: encode response", zap.Int("status", status), zap.Error(err))
		status = http.StatusInternalServerError
		data, _ = json.Marshal(errorResponse{Error: "failed to encode response", Code: "internal"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}
