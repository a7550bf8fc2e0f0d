package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/relvacode/iso8601"

	"github.com/soilwatch/soilwatch/pkg/types"
	"github.com/soilwatch/soilwatch/pkg/wire"
	"github.com/soilwatch/soilwatch/server/internal/alerts"
	"github.com/soilwatch/soilwatch/server/internal/metrics"
	"github.com/soilwatch/soilwatch/server/internal/store"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500
	maxBodyBytes      = 64 << 10
)

// Pipeline is the alert pipeline as seen by the API.
type Pipeline interface {
	Submit(ctx context.Context, r types.SensorReading) alerts.Outcome
	CheckNow(ctx context.Context, sensorID string) alerts.Outcome
}

// AlertLister lists delivered alerts, newest first.
type AlertLister interface {
	ListAlerts(ctx context.Context, since time.Time, limit int) ([]types.AlertRecord, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the API to the rest of the server. Metrics and Stream are
// optional extra mounts (/metrics and /ws/alerts).
type Deps struct {
	Pipeline Pipeline
	Readings *store.Store
	Alerts   AlertLister
	DB       Pinger
	Metrics  http.Handler
	Stream   http.Handler
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	d   Deps
	now func() time.Time
	r   *mux.Router
}

// New creates a Handler and registers all routes. middleware is applied to
// every route, in order.
func New(d Deps, middleware ...mux.MiddlewareFunc) *Handler {
	h := &Handler{d: d, now: time.Now, r: mux.NewRouter()}

	v1 := h.r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", h.health).Methods(http.MethodGet)
	v1.HandleFunc("/readings", h.submitReading).Methods(http.MethodPost)
	v1.HandleFunc("/sensors", h.listSensors).Methods(http.MethodGet)
	v1.HandleFunc("/sensors/{id}/reading", h.getSensorReading).Methods(http.MethodGet)
	v1.HandleFunc("/sensors/{id}/check", h.checkSensor).Methods(http.MethodPost)
	v1.HandleFunc("/alerts", h.listAlerts).Methods(http.MethodGet)

	if d.Metrics != nil {
		h.r.Handle("/metrics", d.Metrics).Methods(http.MethodGet)
	}
	if d.Stream != nil {
		h.r.Handle("/ws/alerts", d.Stream)
	}

	h.r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	h.r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.r.Use(middleware...)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.r.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health. The server is degraded when the
// database does not answer a ping.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "ok",
		Database:    "ok",
		SensorCount: len(h.d.Readings.List()),
		GeneratedAt: h.now().UTC().Format(time.RFC3339),
	}
	if h.d.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.d.DB.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = err.Error()
			jsonResp(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// submitReading handles POST /api/v1/readings: one reading in the wire
// format, answered with the pipeline outcome.
func (h *Handler) submitReading(w http.ResponseWriter, r *http.Request) {
	var req wire.SubmitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	reading, err := req.Reading()
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	metrics.Readings.WithLabelValues("http").Inc()

	jsonResp(w, http.StatusOK, h.d.Pipeline.Submit(r.Context(), reading))
}

// checkSensor handles POST /api/v1/sensors/{id}/check: re-run the pipeline
// on the sensor's latest reading.
func (h *Handler) checkSensor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	metrics.Readings.WithLabelValues("check").Inc()

	out := h.d.Pipeline.CheckNow(r.Context(), id)
	if out.Status == alerts.StatusNoReading {
		jsonErr(w, http.StatusNotFound, "no reading known for sensor")
		return
	}
	jsonResp(w, http.StatusOK, out)
}

// listSensors returns GET /api/v1/sensors: every sensor with a live reading.
func (h *Handler) listSensors(w http.ResponseWriter, r *http.Request) {
	entries := h.d.Readings.List()
	out := make([]SensorResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, h.toSensorResponse(*e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	jsonResp(w, http.StatusOK, out)
}

// getSensorReading returns GET /api/v1/sensors/{id}/reading; 404 when the
// sensor is unknown or its reading is stale.
func (h *Handler) getSensorReading(w http.ResponseWriter, r *http.Request) {
	e, ok := h.d.Readings.Get(mux.Vars(r)["id"])
	if !ok {
		jsonErr(w, http.StatusNotFound, "sensor not found")
		return
	}
	jsonResp(w, http.StatusOK, h.toSensorResponse(e))
}

// listAlerts returns GET /api/v1/alerts?since=<iso8601>&limit=<n>.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var since time.Time
	if s := q.Get("since"); s != "" {
		t, err := iso8601.ParseString(s)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "since: "+err.Error())
			return
		}
		since = t
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := h.d.Alerts.ListAlerts(r.Context(), since, limit)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "list alerts failed")
		return
	}
	if recs == nil {
		recs = []types.AlertRecord{}
	}
	jsonResp(w, http.StatusOK, AlertsResponse{Alerts: recs, Count: len(recs)})
}

// --- helpers ----------------------------------------------------------------

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultAlertLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxAlertLimit {
		n = maxAlertLimit
	}
	return n, nil
}

func (h *Handler) toSensorResponse(e store.Entry) SensorResponse {
	return SensorResponse{
		SensorID:    e.Reading.SensorID,
		Parameters:  e.Reading.Parameters,
		Timestamp:   e.Reading.Timestamp.UTC().Format(time.RFC3339),
		ReceivedAt:  e.ReceivedAt.UTC().Format(time.RFC3339),
		Diagnostics: computeDiagnostics(e.Reading, e.ReceivedAt, h.now()),
	}
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
