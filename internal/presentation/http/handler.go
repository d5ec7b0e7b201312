package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	appledger "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/ledger"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability/logctx"
)

// Pinger reports whether a dependency can serve traffic.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Reconciler compares a medicine's stock with its ledger.
type Reconciler interface {
	Reconcile(ctx context.Context, medicineID int64) (appledger.Reconciliation, error)
}

// Handler serves the operational endpoints: liveness, readiness, metrics and
// ledger reconciliation.
type Handler struct {
	ready      map[string]Pinger
	metrics    http.Handler
	reconciler Reconciler
	log        observability.Logger
	tel        observability.Observability
}

const (
	componentHTTPHandler = "http_server"
	readyTimeout         = 2 * time.Second
)

func NewHandler(ready map[string]Pinger, metrics http.Handler, reconciler Reconciler, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		ready:      ready,
		metrics:    metrics,
		reconciler: reconciler,
		log:        tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:        tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	h.handle(mux, http.MethodGet, "/health", h.handleHealth)
	h.handle(mux, http.MethodGet, "/ready", h.handleReady)
	if h.reconciler != nil {
		h.handle(mux, http.MethodGet, "/ops/ledger/reconcile", h.handleReconcile)
	}
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
	return mux
}

// handle registers route for method only; other methods get 405 from the mux.
func (h *Handler) handle(mux *http.ServeMux, method, route string, fn http.HandlerFunc) {
	mux.Handle(method+" "+route, ObservabilityMiddleware(route, h.log, h.tel)(fn))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := readyResponse{Status: "ok", Checks: make(map[string]string, len(h.ready))}
	status := http.StatusOK
	for name, p := range h.ready {
		if err := p.Ping(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			logctx.FromOr(ctx, h.log).Warn("readiness_check_failed",
				observability.F("check", name),
				observability.Err(err),
			)
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

type reconcileResponse struct {
	MedicineID int64 `json:"medicine_id"`
	Stock      int64 `json:"stock"`
	LedgerSum  int64 `json:"ledger_sum"`
	Drift      int64 `json:"drift"`
	Balanced   bool  `json:"balanced"`
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("medicine_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("medicine_id must be a positive integer"))
		return
	}

	rec, err := h.reconciler.Reconcile(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !rec.Balanced() {
		logctx.FromOr(r.Context(), h.log).Error("ledger_drift",
			observability.F("medicine_id", id),
			observability.F("drift", rec.Drift),
		)
	}
	writeJSON(w, http.StatusOK, reconcileResponse{
		MedicineID: rec.MedicineID,
		Stock:      rec.Stock,
		LedgerSum:  rec.LedgerSum,
		Drift:      rec.Drift,
		Balanced:   rec.Balanced(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, medicine.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
