package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/staffstudy/staffstudy-lms/internal/exam"
	"github.com/staffstudy/staffstudy-lms/internal/grading"
	"github.com/staffstudy/staffstudy-lms/internal/store"
)

// validate checks wire-level shape; the authoring validator in internal/exam
// remains the semantic authority.
var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// writeStoreErr maps domain errors onto HTTP statuses. Authoring violations
// come back as a field-scoped list so the author can fix everything in one
// pass.
func writeStoreErr(w http.ResponseWriter, err error) {
	var vr exam.ValidationResult
	if errors.As(err, &vr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "invalid_draft",
			"violations": vr.Violations,
		})
		return
	}
	switch {
	case errors.Is(err, store.ErrExamNotFound), errors.Is(err, store.ErrAttemptNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrNotDraft), errors.Is(err, store.ErrNotPublished):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, grading.ErrLateSubmission):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "late_submission"})
	case errors.Is(err, grading.ErrUnknownQuestion),
		errors.Is(err, grading.ErrUnknownOption),
		errors.Is(err, grading.ErrIncompleteAnswerSet):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
