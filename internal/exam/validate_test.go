package exam

import (
	"strings"
	"testing"
)

func validExam() Exam {
	return Exam{
		ID:        "e1",
		Title:     "Safety Basics",
		Status:    StatusDraft,
		Audience:  AudienceEmployee,
		PassScore: 20,
		Questions: []Question{
			{
				ID: "q1", Type: Single, Stem: "Pick one", Score: 10,
				Options: []Option{
					{ID: "q1a", Label: "A", Content: "wrong"},
					{ID: "q1b", Label: "B", Content: "right", Correct: true},
				},
			},
			{
				ID: "q2", Type: Multiple, Stem: "Pick all that apply", Score: 20,
				Options: []Option{
					{ID: "q2a", Label: "A", Content: "yes", Correct: true},
					{ID: "q2b", Label: "B", Content: "no"},
					{ID: "q2c", Label: "C", Content: "also yes", Correct: true},
				},
			},
		},
	}
}

func TestValidateOK(t *testing.T) {
	if res := Validate(validExam()); !res.Valid() {
		t.Fatalf("expected valid exam, got: %v", res.Error())
	}
}

func hasViolation(t *testing.T, res ValidationResult, field, reasonPart string) {
	t.Helper()
	for _, v := range res.Violations {
		if v.Field == field && strings.Contains(v.Reason, reasonPart) {
			return
		}
	}
	t.Fatalf("missing violation on %s containing %q; got: %v", field, reasonPart, res.Violations)
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	e := validExam()
	e.Title = "  "
	e.PassScore = 0
	e.Questions[0].Stem = ""
	e.Questions[0].Options[1].Correct = false // no correct option left
	e.Questions[1].Score = 0

	res := Validate(e)
	if res.Valid() {
		t.Fatal("expected violations")
	}
	hasViolation(t, res, "title", "required")
	hasViolation(t, res, "pass_score", "positive")
	hasViolation(t, res, "stem", "required")
	hasViolation(t, res, "options", "correct option")
	hasViolation(t, res, "score", "positive")
	if len(res.Violations) < 5 {
		t.Fatalf("expected all violations reported, got %d: %v", len(res.Violations), res.Violations)
	}
}

func TestValidatePassScoreAboveTotal(t *testing.T) {
	e := validExam()
	e.PassScore = e.TotalScore() + 1
	hasViolation(t, Validate(e), "pass_score", "exceeds total")

	e.PassScore = e.TotalScore()
	if res := Validate(e); !res.Valid() {
		t.Fatalf("pass score equal to total must be legal: %v", res.Error())
	}
}

func TestValidateQuestionRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Exam)
		field  string
		reason string
	}{
		{"unknown type", func(e *Exam) { e.Questions[0].Type = "essay" }, "type", "unknown question type"},
		{"one option", func(e *Exam) { e.Questions[0].Options = e.Questions[0].Options[:1] }, "options", "at least two"},
		{"empty option content", func(e *Exam) { e.Questions[1].Options[0].Content = "" }, "options", "no content"},
		{"duplicate labels", func(e *Exam) { e.Questions[1].Options[1].Label = "A" }, "options", "duplicate"},
		{"no questions", func(e *Exam) { e.Questions = nil }, "questions", "at least one"},
		{"single with two correct", func(e *Exam) { e.Questions[0].Options[0].Correct = true }, "options", "exactly one"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := validExam()
			tc.mutate(&e)
			hasViolation(t, Validate(e), tc.field, tc.reason)
		})
	}
}

func TestMultipleWithSeveralCorrectIsLegal(t *testing.T) {
	// Two correct options on q2 already; flag a third.
	e := validExam()
	e.Questions[1].Options[1].Correct = true
	if res := Validate(e); !res.Valid() {
		t.Fatalf("multi-choice may have several correct options: %v", res.Error())
	}
}

func TestViolationIndexIsOneBased(t *testing.T) {
	e := validExam()
	e.Questions[1].Stem = ""
	res := Validate(e)
	for _, v := range res.Violations {
		if v.Field == "stem" {
			if v.Question != 2 {
				t.Fatalf("expected question index 2, got %d", v.Question)
			}
			return
		}
	}
	t.Fatal("stem violation not reported")
}

func TestNewQuestionRejectsInvalid(t *testing.T) {
	opts := []Option{
		{ID: "a", Label: "A", Content: "one", Correct: true},
		{ID: "b", Label: "B", Content: "two"},
	}
	if _, err := NewQuestion(Single, "", 5, "", opts); err == nil {
		t.Fatal("empty stem must be rejected")
	}
	if _, err := NewQuestion(Single, "stem", 0, "", opts); err == nil {
		t.Fatal("zero score must be rejected")
	}
	q, err := NewQuestion(Single, "stem", 5, "note", opts)
	if err != nil {
		t.Fatalf("NewQuestion: %v", err)
	}
	if q.ID == "" {
		t.Fatal("constructed question must get an id")
	}
}

func TestNewOption(t *testing.T) {
	if _, err := NewOption("A", "", false, 0); err == nil {
		t.Fatal("empty content must be rejected")
	}
	o, err := NewOption("A", "content", true, 3)
	if err != nil {
		t.Fatalf("NewOption: %v", err)
	}
	if o.ID == "" || !o.Correct || o.SortOrder != 3 {
		t.Fatalf("unexpected option: %+v", o)
	}
}

func TestLearnerViewHidesKeys(t *testing.T) {
	e := validExam()
	e.Questions[0].Analysis = "because B"
	lv := e.LearnerView()
	for _, q := range lv.Questions {
		if q.Analysis != "" {
			t.Fatal("analysis must be stripped")
		}
		for _, o := range q.Options {
			if o.Correct {
				t.Fatal("correctness flags must be stripped")
			}
		}
	}
	// Original untouched.
	if !e.Questions[0].Options[1].Correct {
		t.Fatal("learner view must not mutate the source exam")
	}
}
