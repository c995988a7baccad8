// Package store persists exams and the append-only attempt log. Two
// implementations share the Store interface: an in-memory store for tests
// and offline use, and a SQL store over sqlite or postgres.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/staffstudy/staffstudy-lms/internal/exam"
	"github.com/staffstudy/staffstudy-lms/internal/report"
)

var (
	ErrExamNotFound    = errors.New("store: exam not found")
	ErrAttemptNotFound = errors.New("store: attempt not found")
	ErrNotDraft        = errors.New("store: published exam content is frozen")
	ErrNotPublished    = errors.New("store: exam is not open for attempts")
	ErrUserNotFound    = errors.New("store: user not found")
)

type ListOpts struct {
	Q        string
	Status   string
	Audience string // filter to exams a role may sit
	Limit    int
	Offset   int
}

type AttemptListOpts struct {
	ExamID string
	UserID string
	Limit  int
	Offset int
}

// ExamSummary is the list-screen row; question content stays behind GetExam.
type ExamSummary struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Description      string        `json:"description,omitempty"`
	Status           exam.Status   `json:"status"`
	Audience         exam.Audience `json:"audience"`
	TotalScore       int           `json:"total_score"`
	PassScore        int           `json:"pass_score"`
	TimeLimitMinutes int           `json:"time_limit_minutes"`
	QuestionCount    int           `json:"question_count"`
	CreatedAt        int64         `json:"created_at"`
}

// ExamMetaUpdate is a partial metadata edit. Nil fields stay unchanged.
// Question content is deliberately absent: published content is frozen,
// metadata is not.
type ExamMetaUpdate struct {
	Title            *string
	Description      *string
	Audience         *exam.Audience
	TimeLimitMinutes *int
	PassScore        *int
}

func applyMeta(e *exam.Exam, upd ExamMetaUpdate) {
	if upd.Title != nil {
		e.Title = *upd.Title
	}
	if upd.Description != nil {
		e.Description = *upd.Description
	}
	if upd.Audience != nil {
		e.Audience = *upd.Audience
	}
	if upd.TimeLimitMinutes != nil {
		e.TimeLimitMinutes = *upd.TimeLimitMinutes
	}
	if upd.PassScore != nil {
		e.PassScore = *upd.PassScore
	}
}

// SubmitInput is one submission event from a session.
type SubmitInput struct {
	ExamID   string
	UserID   string
	Answers  exam.AnswerSet
	Duration time.Duration
}

// User is an account row. PasswordHash is bcrypt and never serialized.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	WorkNo       string `json:"work_no,omitempty"`
	Role         string `json:"role"` // employee|manager|admin
	PasswordHash string `json:"-"`
}

type Store interface {
	// Authoring. SaveDraft is validator-gated and only touches drafts;
	// Publish freezes question content; metadata stays editable in any
	// state via UpdateExamMeta; Archive never deletes.
	SaveDraft(ctx context.Context, e exam.Exam) (exam.Exam, error)
	UpdateExamMeta(ctx context.Context, id string, upd ExamMetaUpdate) (exam.Exam, error)
	PublishExam(ctx context.Context, id string) (exam.Exam, error)
	ArchiveExam(ctx context.Context, id string) (exam.Exam, error)

	// GetExam serves the learner projection with answer keys withheld.
	GetExam(ctx context.Context, id string) (exam.Exam, error)
	GetExamAdmin(ctx context.Context, id string) (exam.Exam, error)
	ListExams(ctx context.Context, opts ListOpts) ([]ExamSummary, error)

	// Attempts are graded synchronously on submit and written once.
	SubmitAttempt(ctx context.Context, in SubmitInput) (exam.Attempt, error)
	GetAttempt(ctx context.Context, id string) (exam.Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]exam.Attempt, error)
	RetractAttempt(ctx context.Context, id, retractedBy string) (exam.Attempt, error)

	// Feeds for the results aggregator.
	AttemptsByExam(ctx context.Context, examID string) ([]exam.Attempt, error)
	AttemptsByUser(ctx context.Context, userID string) ([]exam.Attempt, error)

	// User directory.
	UpsertUser(ctx context.Context, u User) error
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]report.User, error)
}
