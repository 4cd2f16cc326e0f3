package httpapi

import (
	"net/http"

	"github.com/ent0n29/studybuddy/internal/observability"
)

// handlePerfStages reports the rolling generation and stage latency window.
func (s *Server) handlePerfStages(w http.ResponseWriter, _ *http.Request) {
	var window *observability.PerfWindow
	if s.metrics != nil {
		window = s.metrics.Perf
	}
	respond(w, http.StatusOK, "", window.Snapshot())
}
