package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/staffstudy/staffstudy-lms/internal/report"
)

// GET /reports/exams/{examID} — attempt count, mean score, pass rate.
func ExamStatsHandler(agg *report.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := agg.PerExamStats(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// GET /reports/users?role=&keyword=&page=&page_size=
// Pagination and filters apply to the user population, not the attempts.
func UserSummaryHandler(agg *report.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := report.Query{
			Role:     strings.TrimSpace(r.URL.Query().Get("role")),
			Keyword:  strings.TrimSpace(r.URL.Query().Get("keyword")),
			Page:     parseIntDefault(r.URL.Query().Get("page"), 1),
			PageSize: parseIntDefault(r.URL.Query().Get("page_size"), 20),
		}
		rows, pg, err := agg.PerUserSummary(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"users":      rows,
			"pagination": pg,
		})
	}
}

// GET /reports/users/{userID}/exams/{examID}/latest
func LatestAttemptHandler(agg *report.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok, err := agg.LatestAttempt(r.Context(),
			chi.URLParam(r, "userID"), chi.URLParam(r, "examID"))
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if !ok {
			http.Error(w, "no attempts", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}
