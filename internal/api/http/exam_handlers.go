package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/staffstudy/staffstudy-lms/internal/exam"
	"github.com/staffstudy/staffstudy-lms/internal/rbac"
	"github.com/staffstudy/staffstudy-lms/internal/store"
)

type optionUpsert struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Content   string `json:"content" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
	SortOrder int    `json:"sort_order"`
}

type questionUpsert struct {
	ID       string         `json:"id"`
	Type     string         `json:"type" validate:"required,oneof=single multiple"`
	Stem     string         `json:"stem" validate:"required"`
	Score    int            `json:"score" validate:"required,min=1"`
	Analysis string         `json:"analysis"`
	Options  []optionUpsert `json:"options" validate:"required,min=2,dive"`
}

type examUpsert struct {
	ID               string           `json:"id"`
	Title            string           `json:"title" validate:"required"`
	Description      string           `json:"description"`
	Audience         string           `json:"audience" validate:"omitempty,oneof=employee manager all"`
	TimeLimitMinutes int              `json:"time_limit_minutes" validate:"min=0"`
	PassScore        int              `json:"pass_score" validate:"required,min=1"`
	Questions        []questionUpsert `json:"questions" validate:"required,min=1,dive"`
}

func (in examUpsert) toExam(creatorID string) exam.Exam {
	e := exam.Exam{
		ID:               in.ID,
		Title:            in.Title,
		Description:      in.Description,
		Status:           exam.StatusDraft,
		Audience:         exam.Audience(in.Audience),
		TimeLimitMinutes: in.TimeLimitMinutes,
		PassScore:        in.PassScore,
		CreatorID:        creatorID,
	}
	if e.Audience == "" {
		e.Audience = exam.AudienceEmployee
	}
	for _, q := range in.Questions {
		opts := make([]exam.Option, 0, len(q.Options))
		for i, o := range q.Options {
			so := o.SortOrder
			if so == 0 {
				so = i
			}
			opts = append(opts, exam.Option{
				ID:        o.ID,
				Label:     o.Label,
				Content:   o.Content,
				Correct:   o.IsCorrect,
				SortOrder: so,
			})
		}
		e.Questions = append(e.Questions, exam.Question{
			ID:       q.ID,
			Type:     exam.QuestionType(q.Type),
			Stem:     q.Stem,
			Score:    q.Score,
			Analysis: q.Analysis,
			Options:  opts,
		})
	}
	return e
}

// POST /exams — save a draft; 422 with the full violation list when the
// draft breaks an authoring rule.
func SaveDraftHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in examUpsert
		if err := decodeValid(r, &in); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		e, err := st.SaveDraft(r.Context(), in.toExam(rbac.SubjectFromContext(r.Context())))
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

type examMetaUpdate struct {
	Title            *string `json:"title" validate:"omitempty,min=1"`
	Description      *string `json:"description"`
	Audience         *string `json:"audience" validate:"omitempty,oneof=employee manager all"`
	TimeLimitMinutes *int    `json:"time_limit_minutes" validate:"omitempty,min=0"`
	PassScore        *int    `json:"pass_score" validate:"omitempty,min=1"`
}

// PATCH /exams/{examID} — metadata-only edit, allowed in any lifecycle state.
// Publishing freezes question content, not metadata.
func UpdateExamMetaHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in examMetaUpdate
		if err := decodeValid(r, &in); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		upd := store.ExamMetaUpdate{
			Title:            in.Title,
			Description:      in.Description,
			TimeLimitMinutes: in.TimeLimitMinutes,
			PassScore:        in.PassScore,
		}
		if in.Audience != nil {
			a := exam.Audience(*in.Audience)
			upd.Audience = &a
		}
		e, err := st.UpdateExamMeta(r.Context(), chi.URLParam(r, "examID"), upd)
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// POST /exams/{examID}/publish
func PublishExamHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := st.PublishExam(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// POST /exams/{examID}/archive — archives, never deletes, so attempts keep
// a referent.
func ArchiveExamHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := st.ArchiveExam(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// GET /exams/{examID} — learner projection; correctness flags and analysis
// are withheld.
func GetExamHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := st.GetExam(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		if e.Status != exam.StatusPublished {
			http.Error(w, "exam not available", http.StatusNotFound)
			return
		}
		if !e.Audience.Allows(rbac.RoleFromContext(r.Context())) {
			http.Error(w, "exam not in your audience", http.StatusForbidden)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// GET /exams/{examID}/full — authoring view with answer keys.
func GetExamAdminHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := st.GetExamAdmin(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// GET /exams?q=&status=&limit=&offset=
func ListExamsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		opts := store.ListOpts{
			Q:      strings.TrimSpace(r.URL.Query().Get("q")),
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		}
		// non-admin viewers see only published exams for their audience
		if role != "admin" {
			opts.Status = string(exam.StatusPublished)
			opts.Audience = role
		}
		list, err := st.ListExams(r.Context(), opts)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
