package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/staffstudy/staffstudy-lms/internal/eventlog"
	"github.com/staffstudy/staffstudy-lms/internal/exam"
	"github.com/staffstudy/staffstudy-lms/internal/grading"
	"github.com/staffstudy/staffstudy-lms/internal/report"
)

// Mem is the in-memory store for tests and offline single-node use.
type Mem struct {
	mu       sync.RWMutex
	exams    map[string]exam.Exam
	attempts map[string]exam.Attempt
	users    map[string]User
	log      eventlog.Log
	grace    int64 // late-submission grace, seconds
	now      func() time.Time
}

func NewMem(log eventlog.Log, graceSeconds int64) *Mem {
	if log == nil {
		log = eventlog.NewMemLog()
	}
	return &Mem{
		exams:    map[string]exam.Exam{},
		attempts: map[string]exam.Attempt{},
		users:    map[string]User{},
		log:      log,
		grace:    graceSeconds,
		now:      time.Now,
	}
}

// EventLog exposes the append-only feed for replay consumers.
func (m *Mem) EventLog() eventlog.Log { return m.log }

// ensureIDs backfills missing exam/question/option ids and labels on a draft
// arriving from the wire.
func ensureIDs(e *exam.Exam) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	for i := range e.Questions {
		q := &e.Questions[i]
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		for j := range q.Options {
			o := &q.Options[j]
			if o.ID == "" {
				o.ID = uuid.NewString()
			}
			if o.Label == "" {
				o.Label = string(rune('A' + j))
			}
		}
	}
}

func (m *Mem) SaveDraft(_ context.Context, e exam.Exam) (exam.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ensureIDs(&e)
	e.Status = exam.StatusDraft
	if res := exam.Validate(e); !res.Valid() {
		return exam.Exam{}, res
	}
	if prev, ok := m.exams[e.ID]; ok && prev.Status != exam.StatusDraft {
		return exam.Exam{}, ErrNotDraft
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = m.now().Unix()
	}
	m.exams[e.ID] = e
	return e, nil
}

// UpdateExamMeta edits title, description, audience, time limit and pass
// score in any lifecycle state. Question content is untouched, so the frozen
// published definition stays frozen.
func (m *Mem) UpdateExamMeta(_ context.Context, id string, upd ExamMetaUpdate) (exam.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.exams[id]
	if !ok {
		return exam.Exam{}, ErrExamNotFound
	}
	applyMeta(&e, upd)
	if res := exam.Validate(e); !res.Valid() {
		return exam.Exam{}, res
	}
	m.exams[id] = e
	return e, nil
}

func (m *Mem) PublishExam(_ context.Context, id string) (exam.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.exams[id]
	if !ok {
		return exam.Exam{}, ErrExamNotFound
	}
	if res := exam.Validate(e); !res.Valid() {
		return exam.Exam{}, res
	}
	e.Status = exam.StatusPublished
	m.exams[id] = e
	return e, nil
}

func (m *Mem) ArchiveExam(_ context.Context, id string) (exam.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.exams[id]
	if !ok {
		return exam.Exam{}, ErrExamNotFound
	}
	e.Status = exam.StatusArchived
	m.exams[id] = e
	return e, nil
}

func (m *Mem) GetExam(_ context.Context, id string) (exam.Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.exams[id]
	if !ok {
		return exam.Exam{}, ErrExamNotFound
	}
	return e.LearnerView(), nil
}

func (m *Mem) GetExamAdmin(_ context.Context, id string) (exam.Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.exams[id]
	if !ok {
		return exam.Exam{}, ErrExamNotFound
	}
	return e, nil
}

func (m *Mem) ListExams(_ context.Context, opts ListOpts) ([]ExamSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []ExamSummary{}
	for _, e := range m.exams {
		if !matchExam(e, opts) {
			continue
		}
		out = append(out, summarize(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return window(out, opts.Limit, opts.Offset), nil
}

func matchExam(e exam.Exam, opts ListOpts) bool {
	if opts.Status != "" && string(e.Status) != opts.Status {
		return false
	}
	if opts.Audience != "" && !e.Audience.Allows(opts.Audience) {
		return false
	}
	if opts.Q != "" {
		q := strings.ToLower(opts.Q)
		if !strings.Contains(strings.ToLower(e.Title), q) &&
			!strings.Contains(strings.ToLower(e.Description), q) {
			return false
		}
	}
	return true
}

func summarize(e exam.Exam) ExamSummary {
	return ExamSummary{
		ID:               e.ID,
		Title:            e.Title,
		Description:      e.Description,
		Status:           e.Status,
		Audience:         e.Audience,
		TotalScore:       e.TotalScore(),
		PassScore:        e.PassScore,
		TimeLimitMinutes: e.TimeLimitMinutes,
		QuestionCount:    len(e.Questions),
		CreatedAt:        e.CreatedAt,
	}
}

func window[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return []T{}
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

// buildAttempt grades a submission against the full exam definition and
// assembles the write-once record. Shared by both store backends.
func buildAttempt(e exam.Exam, in SubmitInput, now time.Time, graceSeconds int64) (exam.Attempt, error) {
	if e.Status != exam.StatusPublished {
		return exam.Attempt{}, ErrNotPublished
	}
	started := now.Add(-in.Duration)
	if err := grading.CheckDeadline(e, started.Unix(), now.Unix(), graceSeconds); err != nil {
		return exam.Attempt{}, err
	}
	res, err := grading.Grade(e, in.Answers)
	if err != nil {
		return exam.Attempt{}, err
	}
	return exam.Attempt{
		ID:              uuid.NewString(),
		ExamID:          e.ID,
		UserID:          in.UserID,
		Status:          exam.AttemptSubmitted,
		Score:           res.Score,
		Pass:            res.Pass,
		CorrectCount:    res.CorrectCount,
		TotalCount:      res.TotalCount,
		DurationSeconds: int64(in.Duration / time.Second),
		Answers:         in.Answers.Clone(),
		Review:          res.Review,
		StartedAt:       started.Unix(),
		SubmittedAt:     now.Unix(),
	}, nil
}

func submittedEvent(a exam.Attempt) eventlog.Event {
	data, _ := json.Marshal(a)
	return eventlog.Event{Type: eventlog.TypeAttemptSubmitted, Key: a.ID, DataJSON: string(data)}
}

func (m *Mem) SubmitAttempt(ctx context.Context, in SubmitInput) (exam.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.exams[in.ExamID]
	if !ok {
		return exam.Attempt{}, ErrExamNotFound
	}
	a, err := buildAttempt(e, in, m.now(), m.grace)
	if err != nil {
		return exam.Attempt{}, err
	}
	m.attempts[a.ID] = a
	_ = m.log.Append(ctx, submittedEvent(a))
	return a, nil
}

func (m *Mem) GetAttempt(_ context.Context, id string) (exam.Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.attempts[id]
	if !ok {
		return exam.Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (m *Mem) ListAttempts(_ context.Context, opts AttemptListOpts) ([]exam.Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []exam.Attempt{}
	for _, a := range m.attempts {
		if opts.ExamID != "" && a.ExamID != opts.ExamID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt > out[j].SubmittedAt })
	return window(out, opts.Limit, opts.Offset), nil
}

func (m *Mem) RetractAttempt(ctx context.Context, id, retractedBy string) (exam.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.attempts[id]
	if !ok {
		return exam.Attempt{}, ErrAttemptNotFound
	}
	a.Status = exam.AttemptRetracted
	m.attempts[id] = a
	data, _ := json.Marshal(map[string]string{"attempt_id": id, "retracted_by": retractedBy})
	_ = m.log.Append(ctx, eventlog.Event{Type: eventlog.TypeAttemptRetracted, Key: id, DataJSON: string(data)})
	return a, nil
}

func (m *Mem) AttemptsByExam(ctx context.Context, examID string) ([]exam.Attempt, error) {
	return m.ListAttempts(ctx, AttemptListOpts{ExamID: examID})
}

func (m *Mem) AttemptsByUser(ctx context.Context, userID string) ([]exam.Attempt, error) {
	return m.ListAttempts(ctx, AttemptListOpts{UserID: userID})
}

func (m *Mem) UpsertUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.users[u.ID] = u
	return nil
}

func (m *Mem) GetUserByUsername(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *Mem) ListUsers(_ context.Context) ([]report.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]report.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, report.User{ID: u.ID, Name: u.Name, WorkNo: u.WorkNo, Role: u.Role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
