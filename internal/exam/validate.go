package exam

import (
	"fmt"
	"strings"
)

// Violation is one field-scoped authoring rule failure. Question is the
// 1-based question index for user display; 0 means the violation is
// exam-wide.
type Violation struct {
	Question int    `json:"question,omitempty"`
	Field    string `json:"field"`
	Reason   string `json:"reason"`
}

func (v Violation) Error() string {
	if v.Question > 0 {
		return fmt.Sprintf("question %d: %s: %s", v.Question, v.Field, v.Reason)
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Reason)
}

// ValidationResult carries every violation found, so an author can fix the
// whole draft in one pass.
type ValidationResult struct {
	Violations []Violation `json:"violations,omitempty"`
}

func (r ValidationResult) Valid() bool { return len(r.Violations) == 0 }

func (r ValidationResult) Error() string {
	msgs := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks a draft against every authoring rule and returns all
// violations found. It is pure; callers persist only on Valid.
func Validate(e Exam) ValidationResult {
	var out []Violation

	if strings.TrimSpace(e.Title) == "" {
		out = append(out, Violation{Field: "title", Reason: "title is required"})
	}
	if e.PassScore <= 0 {
		out = append(out, Violation{Field: "pass_score", Reason: "pass score must be positive"})
	} else if total := e.TotalScore(); e.PassScore > total {
		out = append(out, Violation{Field: "pass_score",
			Reason: fmt.Sprintf("pass score %d exceeds total score %d", e.PassScore, total)})
	}
	if len(e.Questions) == 0 {
		out = append(out, Violation{Field: "questions", Reason: "at least one question is required"})
	}

	for i, q := range e.Questions {
		out = append(out, validateQuestion(i+1, q)...)
	}
	return ValidationResult{Violations: out}
}

func validateQuestion(idx int, q Question) []Violation {
	var out []Violation
	if !q.Type.Valid() {
		out = append(out, Violation{Question: idx, Field: "type",
			Reason: fmt.Sprintf("unknown question type %q", q.Type)})
	}
	if strings.TrimSpace(q.Stem) == "" {
		out = append(out, Violation{Question: idx, Field: "stem", Reason: "stem is required"})
	}
	if q.Score <= 0 {
		out = append(out, Violation{Question: idx, Field: "score", Reason: "score must be positive"})
	}
	if len(q.Options) < 2 {
		out = append(out, Violation{Question: idx, Field: "options", Reason: "at least two options are required"})
	}

	labels := make(map[string]bool, len(q.Options))
	correct := 0
	for _, o := range q.Options {
		if strings.TrimSpace(o.Content) == "" {
			out = append(out, Violation{Question: idx, Field: "options",
				Reason: fmt.Sprintf("option %s has no content", o.Label)})
		}
		if labels[o.Label] {
			out = append(out, Violation{Question: idx, Field: "options",
				Reason: fmt.Sprintf("duplicate option label %s", o.Label)})
		}
		labels[o.Label] = true
		if o.Correct {
			correct++
		}
	}
	if correct == 0 {
		out = append(out, Violation{Question: idx, Field: "options", Reason: "at least one correct option is required"})
	}
	if q.Type == Single && correct > 1 {
		out = append(out, Violation{Question: idx, Field: "options",
			Reason: "single-choice question must have exactly one correct option"})
	}
	return out
}

// NewOption builds an option, rejecting empty content rather than coercing.
func NewOption(label, content string, correct bool, sortOrder int) (Option, error) {
	if strings.TrimSpace(label) == "" {
		return Option{}, Violation{Field: "label", Reason: "label is required"}
	}
	if strings.TrimSpace(content) == "" {
		return Option{}, Violation{Field: "content", Reason: "content is required"}
	}
	return Option{ID: newID(), Label: label, Content: content, Correct: correct, SortOrder: sortOrder}, nil
}

// NewQuestion builds a question and enforces the structural invariants up
// front: non-empty stem, positive score, at least two options with unique
// labels, at least one correct option, exactly one when single-choice.
func NewQuestion(t QuestionType, stem string, score int, analysis string, opts []Option) (Question, error) {
	q := Question{ID: newID(), Type: t, Stem: stem, Score: score, Analysis: analysis, Options: opts}
	if vs := validateQuestion(0, q); len(vs) > 0 {
		return Question{}, vs[0]
	}
	return q, nil
}
