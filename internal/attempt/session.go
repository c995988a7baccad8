// Package attempt holds the client-side state machine that collects one
// answer set per question during a timed attempt, from open to submit.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/staffstudy/staffstudy-lms/internal/exam"
	"github.com/staffstudy/staffstudy-lms/internal/grading"
)

// State is the session lifecycle:
// Loaded → Answering → Submitting → {Graded | Failed}.
// Failed is re-enterable into Submitting via Retry.
type State string

const (
	StateLoaded     State = "loaded"
	StateAnswering  State = "answering"
	StateSubmitting State = "submitting"
	StateGraded     State = "graded"
	StateFailed     State = "failed"
)

var (
	ErrSubmitting      = errors.New("attempt: submission already in flight")
	ErrTerminal        = errors.New("attempt: session already graded")
	ErrNotReady        = errors.New("attempt: every question needs a selection before submit")
	ErrUnknownQuestion = errors.New("attempt: selection for unknown question")
	ErrUnknownOption   = errors.New("attempt: selection names unknown option")
	ErrTooManySelected = errors.New("attempt: single-choice question takes at most one option")
	ErrNothingToRetry  = errors.New("attempt: no failed submission to retry")
)

// Submitter is the submission collaborator. A returned error wrapping
// RetryableError is transient (network); anything else is a business
// rejection such as grading.ErrLateSubmission.
type Submitter interface {
	SubmitAttempt(ctx context.Context, examID, userID string, answers exam.AnswerSet, duration time.Duration) (*grading.Result, error)
}

// RetryableError marks a transient submission failure. The session keeps the
// captured answer set and may re-enter Submitting.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return "attempt: transient failure: " + e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err allows Failed → Submitting.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Session collects answers for one learner on one published exam. All
// mutations are synchronous user actions; the only suspension point is the
// submit round-trip, during which edits are blocked. The mutex is the
// single-flight guard against a concurrent double-submit from one session.
type Session struct {
	ID     string
	ExamID string
	UserID string

	mu        sync.Mutex
	def       exam.Exam // learner-safe definition, no answer keys
	state     State
	answers   exam.AnswerSet
	captured  exam.AnswerSet // frozen at first submit, reused on retry
	result    *grading.Result
	lastErr   error
	loadedAt  time.Time
	submitter Submitter
}

// Open enters Loaded with the fetched definition. The definition is expected
// to be the learner projection; any correctness flags present are dropped.
func Open(def exam.Exam, userID string, sub Submitter) *Session {
	return &Session{
		ID:        uuid.NewString(),
		ExamID:    def.ID,
		UserID:    userID,
		def:       def.LearnerView(),
		state:     StateLoaded,
		answers:   exam.AnswerSet{},
		loadedAt:  time.Now(),
		submitter: sub,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the graded outcome, nil unless Graded.
func (s *Session) Result() *grading.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// LastErr returns the error that moved the session to Failed.
func (s *Session) LastErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Remaining reports the advisory countdown. Enforcement, if any, happens
// server-side at submit.
func (s *Session) Remaining(now time.Time) (time.Duration, bool) {
	if s.def.TimeLimitMinutes <= 0 {
		return 0, false
	}
	d := time.Duration(s.def.TimeLimitMinutes)*time.Minute - now.Sub(s.loadedAt)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Select replaces the selection for one question. Single-choice keeps at
// most one id; multiple-choice takes an arbitrary subset. Edits are blocked
// while a submission is in flight or after a terminal grade.
func (s *Session) Select(questionID string, optionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateSubmitting:
		return ErrSubmitting
	case StateGraded:
		return ErrTerminal
	}

	q, ok := s.def.QuestionByID(questionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if q.Type == exam.Single && len(optionIDs) > 1 {
		return fmt.Errorf("%w: question %s", ErrTooManySelected, questionID)
	}
	for _, id := range optionIDs {
		if !q.HasOption(id) {
			return fmt.Errorf("%w: question %s option %s", ErrUnknownOption, questionID, id)
		}
	}

	if len(optionIDs) == 0 {
		delete(s.answers, questionID)
	} else {
		ids := make([]string, len(optionIDs))
		copy(ids, optionIDs)
		s.answers[questionID] = ids
	}
	s.state = StateAnswering
	return nil
}

// Selection returns the current selection for a question.
func (s *Session) Selection(questionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.answers[questionID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// CanSubmit is true only when every question has a non-empty selection.
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete()
}

func (s *Session) complete() bool {
	for _, q := range s.def.Questions {
		if len(s.answers[q.ID]) == 0 {
			return false
		}
	}
	return len(s.def.Questions) > 0
}

// Submit captures the answer set and runs the submission round-trip.
// Re-entry while Submitting is rejected; success is terminal.
func (s *Session) Submit(ctx context.Context) (*grading.Result, error) {
	s.mu.Lock()
	switch s.state {
	case StateSubmitting:
		s.mu.Unlock()
		return nil, ErrSubmitting
	case StateGraded:
		s.mu.Unlock()
		return nil, ErrTerminal
	}
	if !s.complete() {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	s.captured = s.answers.Clone()
	return s.send(ctx)
}

// Retry re-enters Submitting from Failed with the identical captured answer
// set; no answers are re-collected. Retry is deliberately permitted after a
// non-retryable failure too: the server is the authority on business
// rejections and will simply reject again, while IsRetryable lets callers
// decide whether re-sending is worth offering.
func (s *Session) Retry(ctx context.Context) (*grading.Result, error) {
	s.mu.Lock()
	if s.state != StateFailed || s.captured == nil {
		s.mu.Unlock()
		return nil, ErrNothingToRetry
	}
	return s.send(ctx)
}

// send runs the round-trip. Entered with the lock held; the lock is released
// for the network call so State/Result stay readable, while the Submitting
// state itself blocks edits and double-submit.
func (s *Session) send(ctx context.Context) (*grading.Result, error) {
	s.state = StateSubmitting
	answers := s.captured
	duration := time.Since(s.loadedAt)
	s.mu.Unlock()

	res, err := s.submitter.SubmitAttempt(ctx, s.ExamID, s.UserID, answers, duration)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateFailed
		s.lastErr = err
		return nil, err
	}
	s.state = StateGraded
	s.result = res
	s.lastErr = nil
	return res, nil
}
