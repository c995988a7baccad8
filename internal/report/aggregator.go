// Package report folds persisted attempts into per-user history and
// per-exam statistics for manager and admin dashboards. It is a read-only
// projection over the attempt log: adding or retracting attempts and
// recomputing always yields a consistent view.
package report

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/staffstudy/staffstudy-lms/internal/exam"
)

// User is the dashboard view of one person in the user population.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WorkNo string `json:"work_no,omitempty"`
	Role   string `json:"role"`
}

// AttemptSource feeds the aggregator from the append-only attempt log.
type AttemptSource interface {
	AttemptsByExam(ctx context.Context, examID string) ([]exam.Attempt, error)
	AttemptsByUser(ctx context.Context, userID string) ([]exam.Attempt, error)
}

// UserDirectory lists the user population for per-user summaries.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]User, error)
}

// ExamStats summarises every recorded attempt on one exam, not just the
// latest per user.
type ExamStats struct {
	ExamID       string  `json:"exam_id"`
	AttemptCount int     `json:"attempt_count"`
	AvgScore     float64 `json:"avg_score"`
	PassRate     float64 `json:"pass_rate"`
}

// ExamOutcome is the latest attempt a user made on one exam.
type ExamOutcome struct {
	ExamID      string `json:"exam_id"`
	Score       int    `json:"score"`
	Pass        bool   `json:"pass"`
	SubmittedAt int64  `json:"submitted_at"`
}

// UserSummary is one dashboard row.
type UserSummary struct {
	User  User          `json:"user"`
	Exams []ExamOutcome `json:"exams"`
}

// Query filters and paginates the user population, not the attempts.
type Query struct {
	Role     string
	Keyword  string
	Page     int
	PageSize int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (q Query) normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	return q
}

// Pagination echoes the applied window.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// counted filters out retracted attempts; everything below folds over the
// remainder only.
func counted(attempts []exam.Attempt) []exam.Attempt {
	out := make([]exam.Attempt, 0, len(attempts))
	for _, a := range attempts {
		if a.Status == exam.AttemptSubmitted {
			out = append(out, a)
		}
	}
	return out
}

// Latest picks the most recent attempt by submission timestamp.
func Latest(attempts []exam.Attempt) (exam.Attempt, bool) {
	var best exam.Attempt
	found := false
	for _, a := range counted(attempts) {
		if !found || a.SubmittedAt > best.SubmittedAt {
			best = a
			found = true
		}
	}
	return best, found
}

// Stats folds all attempts on one exam into count, mean score and pass rate.
func Stats(examID string, attempts []exam.Attempt) ExamStats {
	st := ExamStats{ExamID: examID}
	sum := 0
	passed := 0
	for _, a := range counted(attempts) {
		if a.ExamID != examID {
			continue
		}
		st.AttemptCount++
		sum += a.Score
		if a.Pass {
			passed++
		}
	}
	if st.AttemptCount > 0 {
		st.AvgScore = round1(float64(sum) / float64(st.AttemptCount))
		st.PassRate = round3(float64(passed) / float64(st.AttemptCount))
	}
	return st
}

// Outcomes reduces one user's attempts to the latest per exam, most recent
// exam first.
func Outcomes(attempts []exam.Attempt) []ExamOutcome {
	latest := map[string]exam.Attempt{}
	for _, a := range counted(attempts) {
		if prev, ok := latest[a.ExamID]; !ok || a.SubmittedAt > prev.SubmittedAt {
			latest[a.ExamID] = a
		}
	}
	out := make([]ExamOutcome, 0, len(latest))
	for _, a := range latest {
		out = append(out, ExamOutcome{
			ExamID:      a.ExamID,
			Score:       a.Score,
			Pass:        a.Pass,
			SubmittedAt: a.SubmittedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt > out[j].SubmittedAt })
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

// Aggregator binds the attempt log and user directory behind the dashboard
// read operations. No write operations.
type Aggregator struct {
	attempts AttemptSource
	users    UserDirectory
}

func NewAggregator(attempts AttemptSource, users UserDirectory) *Aggregator {
	return &Aggregator{attempts: attempts, users: users}
}

// LatestAttempt returns the user's most recent attempt on one exam.
func (g *Aggregator) LatestAttempt(ctx context.Context, userID, examID string) (exam.Attempt, bool, error) {
	all, err := g.attempts.AttemptsByUser(ctx, userID)
	if err != nil {
		return exam.Attempt{}, false, err
	}
	scoped := all[:0:0]
	for _, a := range all {
		if a.ExamID == examID {
			scoped = append(scoped, a)
		}
	}
	a, ok := Latest(scoped)
	return a, ok, nil
}

// PerExamStats computes attempt count, mean score and pass rate for an exam.
func (g *Aggregator) PerExamStats(ctx context.Context, examID string) (ExamStats, error) {
	all, err := g.attempts.AttemptsByExam(ctx, examID)
	if err != nil {
		return ExamStats{}, err
	}
	return Stats(examID, all), nil
}

// PerUserSummary pages through the user population, applying role and
// keyword filters, and attaches each user's latest outcome per exam.
func (g *Aggregator) PerUserSummary(ctx context.Context, q Query) ([]UserSummary, Pagination, error) {
	q = q.normalize()
	users, err := g.users.ListUsers(ctx)
	if err != nil {
		return nil, Pagination{}, err
	}

	filtered := make([]User, 0, len(users))
	for _, u := range users {
		if q.Role != "" && q.Role != "all" && u.Role != q.Role {
			continue
		}
		if q.Keyword != "" && !matchKeyword(u, q.Keyword) {
			continue
		}
		filtered = append(filtered, u)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })

	pg := Pagination{Page: q.Page, PageSize: q.PageSize, Total: len(filtered)}
	start := (q.Page - 1) * q.PageSize
	if start >= len(filtered) {
		return []UserSummary{}, pg, nil
	}
	end := start + q.PageSize
	if end > len(filtered) {
		end = len(filtered)
	}

	out := make([]UserSummary, 0, end-start)
	for _, u := range filtered[start:end] {
		attempts, err := g.attempts.AttemptsByUser(ctx, u.ID)
		if err != nil {
			return nil, Pagination{}, err
		}
		out = append(out, UserSummary{User: u, Exams: Outcomes(attempts)})
	}
	return out, pg, nil
}

func matchKeyword(u User, kw string) bool {
	kw = strings.ToLower(kw)
	return strings.Contains(strings.ToLower(u.Name), kw) ||
		strings.Contains(strings.ToLower(u.WorkNo), kw) ||
		strings.Contains(strings.ToLower(u.ID), kw)
}
