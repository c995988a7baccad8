package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/staffstudy/staffstudy-lms/internal/eventlog"
	"github.com/staffstudy/staffstudy-lms/internal/exam"
	"github.com/staffstudy/staffstudy-lms/internal/grading"
	"github.com/staffstudy/staffstudy-lms/internal/report"
)

func newTestStore(t *testing.T) *Mem {
	t.Helper()
	m := NewMem(nil, 0)
	m.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return m
}

func draftExam() exam.Exam {
	return exam.Exam{
		Title:     "Fire Safety",
		Audience:  exam.AudienceEmployee,
		PassScore: 20,
		Questions: []exam.Question{
			{
				Type: exam.Single, Stem: "s1", Score: 10,
				Options: []exam.Option{
					{Content: "a"},
					{Content: "b", Correct: true},
				},
			},
			{
				Type: exam.Multiple, Stem: "s2", Score: 20,
				Options: []exam.Option{
					{Content: "a", Correct: true},
					{Content: "b"},
					{Content: "c", Correct: true},
				},
			},
		},
	}
}

func publishExam(t *testing.T, m *Mem) exam.Exam {
	t.Helper()
	e, err := m.SaveDraft(context.Background(), draftExam())
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	e, err = m.PublishExam(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("PublishExam: %v", err)
	}
	return e
}

// fullMarks builds the correct answer set off the stored definition.
func fullMarks(e exam.Exam) exam.AnswerSet {
	answers := exam.AnswerSet{}
	for _, q := range e.Questions {
		answers[q.ID] = q.CorrectOptionIDs()
	}
	return answers
}

func TestSaveDraftAssignsIDs(t *testing.T) {
	m := newTestStore(t)
	e, err := m.SaveDraft(context.Background(), draftExam())
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	if e.ID == "" || e.Status != exam.StatusDraft || e.CreatedAt == 0 {
		t.Fatalf("unexpected draft: %+v", e)
	}
	for _, q := range e.Questions {
		if q.ID == "" {
			t.Fatal("question id not assigned")
		}
		for i, o := range q.Options {
			if o.ID == "" {
				t.Fatal("option id not assigned")
			}
			if want := string(rune('A' + i)); o.Label != want {
				t.Fatalf("label backfill expected %s, got %s", want, o.Label)
			}
		}
	}
}

func TestSaveDraftRejectsInvalid(t *testing.T) {
	m := newTestStore(t)
	bad := draftExam()
	bad.Title = ""
	bad.Questions[0].Options[1].Correct = false

	_, err := m.SaveDraft(context.Background(), bad)
	var vr exam.ValidationResult
	if !errors.As(err, &vr) {
		t.Fatalf("expected ValidationResult, got %v", err)
	}
	if len(vr.Violations) < 2 {
		t.Fatalf("expected every violation reported, got %v", vr.Violations)
	}
}

func TestPublishedContentIsFrozen(t *testing.T) {
	m := newTestStore(t)
	e := publishExam(t, m)

	edited := e
	edited.Title = "edited after publish"
	if _, err := m.SaveDraft(context.Background(), edited); !errors.Is(err, ErrNotDraft) {
		t.Fatalf("expected ErrNotDraft, got %v", err)
	}
}

func TestPublishedMetadataStaysEditable(t *testing.T) {
	m := newTestStore(t)
	e := publishExam(t, m)
	ctx := context.Background()

	title := "Fire Safety 2026"
	audience := exam.AudienceAll
	limit := 45
	got, err := m.UpdateExamMeta(ctx, e.ID, ExamMetaUpdate{
		Title: &title, Audience: &audience, TimeLimitMinutes: &limit,
	})
	if err != nil {
		t.Fatalf("UpdateExamMeta: %v", err)
	}
	if got.Title != title || got.Audience != exam.AudienceAll || got.TimeLimitMinutes != 45 {
		t.Fatalf("metadata not applied: %+v", got)
	}
	if got.Status != exam.StatusPublished {
		t.Fatalf("status must survive a metadata edit, got %s", got.Status)
	}

	// Question content is untouched by a metadata edit.
	stored, err := m.GetExamAdmin(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExamAdmin: %v", err)
	}
	if !reflect.DeepEqual(stored.Questions, e.Questions) {
		t.Fatal("metadata edit must not touch question content")
	}

	// Pass score edits validate against the frozen total.
	bad := stored.TotalScore() + 1
	_, err = m.UpdateExamMeta(ctx, e.ID, ExamMetaUpdate{PassScore: &bad})
	var vr exam.ValidationResult
	if !errors.As(err, &vr) {
		t.Fatalf("expected ValidationResult, got %v", err)
	}

	if _, err := m.UpdateExamMeta(ctx, "ghost", ExamMetaUpdate{Title: &title}); !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("expected ErrExamNotFound, got %v", err)
	}
}

func TestGetExamWithholdsAnswerKeys(t *testing.T) {
	m := newTestStore(t)
	e := publishExam(t, m)

	learner, err := m.GetExam(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	for _, q := range learner.Questions {
		for _, o := range q.Options {
			if o.Correct {
				t.Fatal("learner projection leaked a correctness flag")
			}
		}
	}

	admin, err := m.GetExamAdmin(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("GetExamAdmin: %v", err)
	}
	if len(admin.Questions[0].CorrectOptionIDs()) == 0 {
		t.Fatal("authoring view must keep answer keys")
	}
}

func TestListExamsFilters(t *testing.T) {
	m := newTestStore(t)
	publishExam(t, m)

	managerOnly := draftExam()
	managerOnly.Title = "Budget Planning"
	managerOnly.Audience = exam.AudienceManager
	if _, err := m.SaveDraft(context.Background(), managerOnly); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	ctx := context.Background()

	all, err := m.ListExams(ctx, ListOpts{})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 exams, got %d err=%v", len(all), err)
	}

	published, err := m.ListExams(ctx, ListOpts{Status: "published"})
	if err != nil || len(published) != 1 || published[0].Title != "Fire Safety" {
		t.Fatalf("status filter failed: %+v err=%v", published, err)
	}

	// An employee viewer must not see the manager-audience exam.
	forEmployee, err := m.ListExams(ctx, ListOpts{Audience: "employee"})
	if err != nil || len(forEmployee) != 1 || forEmployee[0].Title != "Fire Safety" {
		t.Fatalf("audience filter failed: %+v err=%v", forEmployee, err)
	}

	byKeyword, err := m.ListExams(ctx, ListOpts{Q: "budget"})
	if err != nil || len(byKeyword) != 1 || byKeyword[0].Title != "Budget Planning" {
		t.Fatalf("keyword filter failed: %+v err=%v", byKeyword, err)
	}

	windowed, err := m.ListExams(ctx, ListOpts{Limit: 1, Offset: 1})
	if err != nil || len(windowed) != 1 {
		t.Fatalf("window failed: %+v err=%v", windowed, err)
	}
}

func TestSubmitAttemptGradesAndLogs(t *testing.T) {
	m := newTestStore(t)
	e := publishExam(t, m)
	ctx := context.Background()

	a, err := m.SubmitAttempt(ctx, SubmitInput{
		ExamID:   e.ID,
		UserID:   "u1",
		Answers:  fullMarks(e),
		Duration: 5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if a.Score != 30 || !a.Pass || a.Status != exam.AttemptSubmitted {
		t.Fatalf("unexpected attempt: %+v", a)
	}
	if a.DurationSeconds != 300 || a.SubmittedAt-a.StartedAt != 300 {
		t.Fatalf("timing not derived from duration: %+v", a)
	}

	got, err := m.GetAttempt(ctx, a.ID)
	if err != nil || got.ID != a.ID {
		t.Fatalf("GetAttempt: %+v err=%v", got, err)
	}

	evs, err := m.EventLog().Replay(ctx, 0)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(evs) != 1 || evs[0].Type != eventlog.TypeAttemptSubmitted || evs[0].Key != a.ID {
		t.Fatalf("expected one submitted event, got %+v", evs)
	}
}

func TestSubmitAttemptRejections(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	if _, err := m.SubmitAttempt(ctx, SubmitInput{ExamID: "ghost"}); !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("expected ErrExamNotFound, got %v", err)
	}

	draft, err := m.SaveDraft(ctx, draftExam())
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	if _, err := m.SubmitAttempt(ctx, SubmitInput{ExamID: draft.ID, Answers: exam.AnswerSet{}}); !errors.Is(err, ErrNotPublished) {
		t.Fatalf("draft must not accept attempts, got %v", err)
	}

	e := publishExam(t, m)
	_, err = m.SubmitAttempt(ctx, SubmitInput{ExamID: e.ID, UserID: "u1", Answers: exam.AnswerSet{}})
	if !errors.Is(err, grading.ErrIncompleteAnswerSet) {
		t.Fatalf("expected ErrIncompleteAnswerSet, got %v", err)
	}
}

func TestSubmitAttemptLate(t *testing.T) {
	m := NewMem(nil, 30) // 30s grace
	m.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	timed := draftExam()
	timed.TimeLimitMinutes = 10
	ctx := context.Background()
	e, err := m.SaveDraft(ctx, timed)
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	if e, err = m.PublishExam(ctx, e.ID); err != nil {
		t.Fatalf("PublishExam: %v", err)
	}

	// Within limit plus grace.
	if _, err := m.SubmitAttempt(ctx, SubmitInput{
		ExamID: e.ID, UserID: "u1", Answers: fullMarks(e),
		Duration: 10*time.Minute + 20*time.Second,
	}); err != nil {
		t.Fatalf("submission within grace rejected: %v", err)
	}

	// Past the grace: rejected and not recorded.
	_, err = m.SubmitAttempt(ctx, SubmitInput{
		ExamID: e.ID, UserID: "u1", Answers: fullMarks(e),
		Duration: 10*time.Minute + 31*time.Second,
	})
	if !errors.Is(err, grading.ErrLateSubmission) {
		t.Fatalf("expected ErrLateSubmission, got %v", err)
	}
	list, err := m.ListAttempts(ctx, AttemptListOpts{ExamID: e.ID})
	if err != nil || len(list) != 1 {
		t.Fatalf("late attempt must not be recorded: %d err=%v", len(list), err)
	}
}

func TestRetractAttempt(t *testing.T) {
	m := newTestStore(t)
	e := publishExam(t, m)
	ctx := context.Background()

	a, err := m.SubmitAttempt(ctx, SubmitInput{ExamID: e.ID, UserID: "u1", Answers: fullMarks(e)})
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}

	ra, err := m.RetractAttempt(ctx, a.ID, "admin-1")
	if err != nil {
		t.Fatalf("RetractAttempt: %v", err)
	}
	if ra.Status != exam.AttemptRetracted {
		t.Fatalf("expected retracted, got %s", ra.Status)
	}

	// The audit row stays readable.
	got, err := m.GetAttempt(ctx, a.ID)
	if err != nil || got.Status != exam.AttemptRetracted {
		t.Fatalf("retracted attempt must remain readable: %+v err=%v", got, err)
	}

	// Both events are on the feed, in order.
	evs, err := m.EventLog().Replay(ctx, 0)
	if err != nil || len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d err=%v", len(evs), err)
	}
	if evs[1].Type != eventlog.TypeAttemptRetracted || evs[1].Key != a.ID {
		t.Fatalf("unexpected retraction event: %+v", evs[1])
	}

	if _, err := m.RetractAttempt(ctx, "ghost", "admin-1"); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
}

func TestRetractionRecomputesAggregates(t *testing.T) {
	m := newTestStore(t)
	e := publishExam(t, m)
	ctx := context.Background()
	agg := report.NewAggregator(m, m)

	a1, err := m.SubmitAttempt(ctx, SubmitInput{ExamID: e.ID, UserID: "u1", Answers: fullMarks(e)})
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	wrong := fullMarks(e)
	wrong[e.Questions[0].ID] = []string{e.Questions[0].Options[0].ID}
	if _, err := m.SubmitAttempt(ctx, SubmitInput{ExamID: e.ID, UserID: "u2", Answers: wrong}); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}

	st, err := agg.PerExamStats(ctx, e.ID)
	if err != nil || st.AttemptCount != 2 || st.PassRate != 0.5 {
		t.Fatalf("unexpected stats before retraction: %+v err=%v", st, err)
	}

	if _, err := m.RetractAttempt(ctx, a1.ID, "admin-1"); err != nil {
		t.Fatalf("RetractAttempt: %v", err)
	}
	st, err = agg.PerExamStats(ctx, e.ID)
	if err != nil || st.AttemptCount != 1 || st.PassRate != 0 {
		t.Fatalf("retraction must drop the attempt from stats: %+v err=%v", st, err)
	}
}

func TestListAttemptsScoping(t *testing.T) {
	m := newTestStore(t)
	e := publishExam(t, m)
	ctx := context.Background()

	for _, uid := range []string{"u1", "u2", "u1"} {
		if _, err := m.SubmitAttempt(ctx, SubmitInput{ExamID: e.ID, UserID: uid, Answers: fullMarks(e)}); err != nil {
			t.Fatalf("SubmitAttempt: %v", err)
		}
	}

	mine, err := m.ListAttempts(ctx, AttemptListOpts{UserID: "u1"})
	if err != nil || len(mine) != 2 {
		t.Fatalf("user filter failed: %d err=%v", len(mine), err)
	}
	byExam, err := m.AttemptsByExam(ctx, e.ID)
	if err != nil || len(byExam) != 3 {
		t.Fatalf("exam feed failed: %d err=%v", len(byExam), err)
	}
}

func TestUsers(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	if _, err := m.GetUserByUsername(ctx, "alice"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := m.UpsertUser(ctx, User{Username: "alice", Name: "Alice", WorkNo: "W001", Role: "employee"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := m.UpsertUser(ctx, User{Username: "bob", Name: "Bob", Role: "manager"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	u, err := m.GetUserByUsername(ctx, "alice")
	if err != nil || u.ID == "" || u.Role != "employee" {
		t.Fatalf("GetUserByUsername: %+v err=%v", u, err)
	}

	list, err := m.ListUsers(ctx)
	if err != nil || len(list) != 2 || list[0].Name != "Alice" {
		t.Fatalf("ListUsers: %+v err=%v", list, err)
	}
}
