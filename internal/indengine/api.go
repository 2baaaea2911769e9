package indengine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"ohlc-indicators/internal/gateway"
	"ohlc-indicators/internal/indicator"
	"ohlc-indicators/internal/metrics"
	"ohlc-indicators/internal/model"
	redisstore "ohlc-indicators/internal/store/redis"
)

// maxBody bounds request bodies of /v1/compute and /reload.
const maxBody = 8 << 20

// Handler returns the service's HTTP routes.
func (svc *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/indicators", svc.handleIndicators)
	mux.HandleFunc("/v1/compute", svc.handleCompute)
	mux.HandleFunc("/v1/series", svc.handleSeries)
	mux.HandleFunc("/v1/configs", svc.handleConfigs)
	mux.HandleFunc("/reload", svc.handleReload)
	mux.HandleFunc("/healthz", svc.health.ServeHTTP)
	mux.Handle("/metrics", metrics.Handler(svc.deps.Gatherer))
	mux.HandleFunc("/ws", gateway.WSHandler(svc.hub))
	mux.HandleFunc("/v1/missed", gateway.MissedHandler(svc.hub))
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// apiError is the JSON error body. Field names the offending parameter
// when the error came from config validation.
type apiError struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeConfigError maps indicator errors to HTTP codes: unknown names are
// 404, invalid params are 400.
func writeConfigError(w http.ResponseWriter, err error) {
	body := apiError{Error: err.Error()}
	var ce *indicator.ConfigError
	if errors.As(err, &ce) {
		body.Field = ce.Field
	}
	code := http.StatusBadRequest
	if errors.Is(err, indicator.ErrUnknownIndicator) {
		code = http.StatusNotFound
	}
	writeJSON(w, code, body)
}

type indicatorInfo struct {
	Name     string           `json:"name"`
	Label    string           `json:"label"`
	Defaults indicator.Params `json:"defaults"`
}

// handleIndicators handles GET /v1/indicators.
func (svc *Service) handleIndicators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	reg := svc.engine.Registry()
	out := make([]indicatorInfo, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		ind, ok := reg.Get(name)
		if !ok {
			continue
		}
		defaults := ind.DefaultParams()
		out = append(out, indicatorInfo{Name: name, Label: ind.Label(defaults), Defaults: defaults})
	}
	writeJSON(w, http.StatusOK, out)
}

// ComputeRequest is the body of POST /v1/compute.
type ComputeRequest struct {
	Indicator string           `json:"indicator"`
	Params    indicator.Params `json:"params,omitempty"`
	X         []int64          `json:"x"`
	Y         [][]float64      `json:"y"`
}

// ComputeResponse is the reply of POST /v1/compute. A not_computable
// status is a normal reply, not an error.
type ComputeResponse struct {
	Status string           `json:"status"`
	Label  string           `json:"label"`
	Params indicator.Params `json:"params"`
	Series model.Series     `json:"series"`
}

// handleCompute handles POST /v1/compute: one indicator over caller data.
func (svc *Service) handleCompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req ComputeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON: " + err.Error()})
		return
	}

	reg := svc.engine.Registry()
	cfg := indicator.IndicatorConfig{Type: strings.ToLower(req.Indicator), Params: req.Params}
	if err := indicator.ValidateConfigs(reg, []indicator.IndicatorConfig{cfg}); err != nil {
		writeConfigError(w, err)
		return
	}
	ind, merged, err := reg.Resolve(cfg.Type, cfg.Params)
	if err != nil {
		writeConfigError(w, err)
		return
	}

	s, ok := ind.Compute(indicator.Input{X: req.X, Y: req.Y}, merged)
	if !ok {
		s = model.NewSeries(0)
	}
	svc.prom.ResultsTotal.WithLabelValues(cfg.Type, model.SeriesStatus(s, ok)).Inc()
	writeJSON(w, http.StatusOK, ComputeResponse{
		Status: model.SeriesStatus(s, ok),
		Label:  ind.Label(merged),
		Params: merged,
		Series: s,
	})
}

// handleSeries handles GET /v1/series?exchange=&token=&tf=&indicator=[&params=].
// The cache is consulted first, then the persisted series.
func (svc *Service) handleSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	exchange := strings.ToUpper(q.Get("exchange"))
	if exchange == "" {
		exchange = "NSE"
	}
	token, name, paramsKey := q.Get("token"), strings.ToLower(q.Get("indicator")), q.Get("params")
	tf, err := strconv.Atoi(q.Get("tf"))
	if token == "" || name == "" || err != nil || tf <= 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "token, tf and indicator are required"})
		return
	}
	if _, ok := svc.engine.Registry().Get(name); !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "unknown indicator: " + name})
		return
	}

	inst := model.Instrument{Exchange: exchange, Token: token}
	if results, ok := svc.cache.latest(inst, tf); ok {
		for _, res := range results {
			if res.Indicator == name && (paramsKey == "" || res.ParamsKey == paramsKey) {
				svc.prom.CacheHits.Inc()
				writeJSON(w, http.StatusOK, res)
				return
			}
		}
	}
	svc.prom.CacheMisses.Inc()

	redisParams := paramsKey
	if redisParams == "" {
		redisParams = svc.activeParamsKey(name)
	}
	if svc.deps.ConfigSub != nil && redisParams != "" {
		key := (&model.SeriesResult{Indicator: name, ParamsKey: redisParams, Exchange: exchange, Token: token, TF: tf}).LatestKey()
		if res, err := svc.deps.ConfigSub.ReadLatestSeries(r.Context(), key); err == nil {
			writeJSON(w, http.StatusOK, res)
			return
		} else if !errors.Is(err, model.ErrNotFound) {
			slog.Warn("redis series lookup failed", slog.String("key", key), slog.Any("error", err))
		}
	}

	if svc.deps.Series == nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "no series for " + inst.Key()})
		return
	}
	res, err := svc.deps.Series.ReadLatestSeries(r.Context(), exchange, token, tf, name, paramsKey)
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, apiError{Error: "no series for " + inst.Key()})
	case err != nil:
		slog.Error("series lookup failed", slog.String("instrument", inst.Key()), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "series lookup failed"})
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// activeParamsKey returns the merged params key of the first active config
// of the named indicator, or "" when none is active.
func (svc *Service) activeParamsKey(name string) string {
	for _, cfg := range svc.engine.Configs() {
		if cfg.Type != name {
			continue
		}
		if _, merged, err := svc.engine.Registry().Resolve(cfg.Type, cfg.Params); err == nil {
			return merged.Key()
		}
	}
	return ""
}

// handleConfigs handles GET /v1/configs: the active indicator set.
func (svc *Service) handleConfigs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, svc.engine.Configs())
}

// handleReload handles POST /reload for live config updates via HTTP.
func (svc *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var configs []indicator.IndicatorConfig
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&configs); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON: " + err.Error()})
		return
	}
	kept, added, err := svc.Reload("http", configs)
	if err != nil {
		writeConfigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"kept":   kept,
		"added":  added,
	})
}

// startConfigSubscriber listens on Redis PubSub for dynamic indicator config updates.
func (svc *Service) startConfigSubscriber(ctx context.Context) {
	if svc.deps.ConfigSub == nil {
		return
	}
	go func() {
		pubsub := svc.deps.ConfigSub.SubscribeChannel(ctx, redisstore.ConfigChannel)
		if pubsub == nil {
			slog.Warn("could not subscribe to config channel", slog.String("channel", redisstore.ConfigChannel))
			return
		}
		defer pubsub.Close()
		slog.Info("subscribed for dynamic reload", slog.String("channel", redisstore.ConfigChannel))

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				configs, err := decodeSpecs([]byte(msg.Payload))
				if err != nil {
					svc.prom.ConfigReloads.WithLabelValues("pubsub", "rejected").Inc()
					slog.Warn("bad config payload", slog.String("payload", msg.Payload), slog.Any("error", err))
					continue
				}
				svc.Reload("pubsub", configs)
			}
		}
	}()
}
