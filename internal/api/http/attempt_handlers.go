package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/staffstudy/staffstudy-lms/internal/exam"
	"github.com/staffstudy/staffstudy-lms/internal/rbac"
	"github.com/staffstudy/staffstudy-lms/internal/store"
)

type submitAnswer struct {
	QuestionID string   `json:"question_id" validate:"required"`
	OptionIDs  []string `json:"option_ids" validate:"required,min=1,dive,required"`
}

type submitRequest struct {
	Answers         []submitAnswer `json:"answers" validate:"required,min=1,dive"`
	DurationSeconds int64          `json:"duration_seconds" validate:"min=0"`
}

// POST /exams/{examID}/attempts — grade synchronously and record the
// write-once attempt.
func SubmitAttemptHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := decodeValid(r, &req); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		answers := make(exam.AnswerSet, len(req.Answers))
		for _, a := range req.Answers {
			answers[a.QuestionID] = a.OptionIDs
		}
		attempt, err := st.SubmitAttempt(r.Context(), store.SubmitInput{
			ExamID:   chi.URLParam(r, "examID"),
			UserID:   rbac.SubjectFromContext(r.Context()),
			Answers:  answers,
			Duration: time.Duration(req.DurationSeconds) * time.Second,
		})
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, attempt)
	}
}

// GET /attempts/{attemptID} — owners see their own; report viewers see all.
func GetAttemptHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := st.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		role := rbac.RoleFromContext(r.Context())
		sub := rbac.SubjectFromContext(r.Context())
		if a.UserID != sub && role != "admin" && role != "manager" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GET /attempts?exam_id=&user_id=&limit=&offset=
// Callers without a report permission are scoped to their own attempts.
func ListAttemptsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		sub := rbac.SubjectFromContext(r.Context())

		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if role != "admin" && role != "manager" {
			userID = sub
		}
		list, err := st.ListAttempts(r.Context(), store.AttemptListOpts{
			ExamID: strings.TrimSpace(r.URL.Query().Get("exam_id")),
			UserID: userID,
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /attempts/{attemptID}/retract — administrative override; the attempt
// row stays for audit but drops out of aggregation.
func RetractAttemptHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := st.RetractAttempt(r.Context(), chi.URLParam(r, "attemptID"),
			rbac.SubjectFromContext(r.Context()))
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}
