package http

import (
	"net/http"

	"github.com/staffstudy/staffstudy-lms/internal/eventlog"
)

// GET /events?after= — replay the append-only attempt feed for downstream
// consumers (audit, exports, external analytics).
func ReplayEventsHandler(log eventlog.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after := int64(parseIntDefault(r.URL.Query().Get("after"), 0))
		evs, err := log.Replay(r.Context(), after)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, http.StatusOK, evs)
	}
}
