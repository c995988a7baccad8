// Package grading turns a submitted answer set into a graded result. Grading
// is a pure function over the published exam definition: deterministic, no
// side effects, persistence left to the caller.
package grading

import (
	"errors"
	"fmt"
	"sort"

	"github.com/staffstudy/staffstudy-lms/internal/exam"
)

var (
	// ErrUnknownQuestion: the answer set references a question not in the exam.
	// Caller bug, not user error.
	ErrUnknownQuestion = errors.New("grading: answer references unknown question")
	// ErrUnknownOption: a selection is not a subset of the question's options.
	ErrUnknownOption = errors.New("grading: answer references unknown option")
	// ErrIncompleteAnswerSet: an exam question has no answer entry. The
	// session's submit gate should prevent this, but grading may be invoked
	// from a different trust boundary and defends independently.
	ErrIncompleteAnswerSet = errors.New("grading: answer set does not cover every question")
	// ErrNoAnswerKey: a question has no correct option configured.
	ErrNoAnswerKey = errors.New("grading: question has no correct option")
	// ErrAmbiguousKey: a single-choice question has several correct options.
	ErrAmbiguousKey = errors.New("grading: single-choice question has multiple correct options")
	// ErrLateSubmission: the attempt overran the exam's time limit and is
	// rejected without being recorded.
	ErrLateSubmission = errors.New("grading: submission past the exam time limit")
)

// Result is the graded outcome of one attempt.
type Result struct {
	Score        int                   `json:"score"`
	TotalScore   int                   `json:"total_score"`
	Pass         bool                  `json:"pass"`
	CorrectCount int                   `json:"correct_count"`
	TotalCount   int                   `json:"total_count"`
	Review       []exam.QuestionReview `json:"review"`
}

// Grade scores answers against e. Correctness per question is exact set
// equality between selected and correct option ids; multi-select is scored
// all-or-nothing per question, never per option. Pass iff total score
// reaches the exam's pass score.
func Grade(e exam.Exam, answers exam.AnswerSet) (Result, error) {
	for qid := range answers {
		if _, ok := e.QuestionByID(qid); !ok {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, qid)
		}
	}

	res := Result{
		TotalScore: e.TotalScore(),
		TotalCount: len(e.Questions),
		Review:     make([]exam.QuestionReview, 0, len(e.Questions)),
	}

	for _, q := range e.Questions {
		selected, ok := answers[q.ID]
		if !ok || len(selected) == 0 {
			return Result{}, fmt.Errorf("%w: question %s", ErrIncompleteAnswerSet, q.ID)
		}
		for _, id := range selected {
			if !q.HasOption(id) {
				return Result{}, fmt.Errorf("%w: question %s option %s", ErrUnknownOption, q.ID, id)
			}
		}

		correct := q.CorrectOptionIDs()
		if len(correct) == 0 {
			return Result{}, fmt.Errorf("%w: question %s", ErrNoAnswerKey, q.ID)
		}
		if q.Type == exam.Single && len(correct) != 1 {
			return Result{}, fmt.Errorf("%w: question %s", ErrAmbiguousKey, q.ID)
		}

		sel := normalize(selected)
		isCorrect := sameSet(sel, correct)
		earned := 0
		if isCorrect {
			earned = q.Score
			res.CorrectCount++
		}
		res.Score += earned
		res.Review = append(res.Review, exam.QuestionReview{
			QuestionID:        q.ID,
			Type:              q.Type,
			Score:             q.Score,
			ObtainedScore:     earned,
			Correct:           isCorrect,
			SelectedOptionIDs: sel,
			CorrectOptionIDs:  correct,
		})
	}

	res.Pass = res.Score >= e.PassScore
	return res, nil
}

// CheckDeadline rejects an attempt whose submission exceeds the time limit
// (plus grace) past first load. A zero limit means unlimited.
func CheckDeadline(e exam.Exam, startedAt, submittedAt, graceSeconds int64) error {
	if e.TimeLimitMinutes <= 0 {
		return nil
	}
	deadline := startedAt + int64(e.TimeLimitMinutes)*60 + graceSeconds
	if submittedAt > deadline {
		return ErrLateSubmission
	}
	return nil
}

// normalize dedupes and sorts a selection so grading is order-insensitive.
func normalize(ids []string) []string {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	for _, id := range a {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
