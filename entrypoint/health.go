package entrypoint

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/infrablocks/concourse-aws-entrypoint/internal/server"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/supervisor"
)

// HealthHandler reports the status of the supervised process. It
// answers 200 once the process is ready and 503 otherwise.
type HealthHandler struct {
	entrypoint *Entrypoint
	log        *zap.Logger
}

func NewHealthHandler(e *Entrypoint, log *zap.Logger) *HealthHandler {
	return &HealthHandler{
		entrypoint: e,
		log:        log,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := h.entrypoint.Status()

	code := http.StatusServiceUnavailable
	if status.State == supervisor.StateReady.String() {
		code = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.log.Debug("failed to write response", zap.Error(err))
	}
}

func NewHealthRoute(handler *HealthHandler) server.RouteResult {
	return server.AsRoute("/health", handler)
}
