package exam

// QuestionType tags how a question collects and scores its selection.
type QuestionType string

const (
	Single   QuestionType = "single"
	Multiple QuestionType = "multiple"
)

func (t QuestionType) Valid() bool { return t == Single || t == Multiple }

// Status is the exam lifecycle. Content is mutable only while draft.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Audience restricts who may sit the exam.
type Audience string

const (
	AudienceEmployee Audience = "employee"
	AudienceManager  Audience = "manager"
	AudienceAll      Audience = "all"
)

func (a Audience) Allows(role string) bool {
	if a == AudienceAll || role == "admin" {
		return true
	}
	return string(a) == role
}

type Option struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Content   string `json:"content"`
	Correct   bool   `json:"is_correct,omitempty"`
	SortOrder int    `json:"sort_order"`
}

type Question struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Stem     string       `json:"stem"`
	Score    int          `json:"score"`
	Analysis string       `json:"analysis,omitempty"`
	Options  []Option     `json:"options"`
}

// CorrectOptionIDs returns the ids of options flagged correct, in option order.
func (q Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, len(q.Options))
	for _, o := range q.Options {
		if o.Correct {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// HasOption reports whether id names one of the question's options.
func (q Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

type Exam struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Status           Status     `json:"status"`
	Audience         Audience   `json:"audience"`
	TimeLimitMinutes int        `json:"time_limit_minutes"` // 0 = unlimited
	PassScore        int        `json:"pass_score"`
	CreatorID        string     `json:"creator_id,omitempty"`
	Questions        []Question `json:"questions"`
	CreatedAt        int64      `json:"created_at,omitempty"`
}

// TotalScore is the sum of all question scores.
func (e Exam) TotalScore() int {
	sum := 0
	for _, q := range e.Questions {
		sum += q.Score
	}
	return sum
}

// QuestionByID finds a question, ok=false if absent.
func (e Exam) QuestionByID(id string) (Question, bool) {
	for _, q := range e.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// LearnerView strips answer keys and analysis so the projection served to a
// learner never reveals which options are correct.
func (e Exam) LearnerView() Exam {
	out := e
	out.Questions = make([]Question, len(e.Questions))
	for i, q := range e.Questions {
		qc := q
		qc.Analysis = ""
		qc.Options = make([]Option, len(q.Options))
		for j, o := range q.Options {
			oc := o
			oc.Correct = false
			qc.Options[j] = oc
		}
		out.Questions[i] = qc
	}
	return out
}

// AnswerSet maps question id to the selected option ids.
type AnswerSet map[string][]string

// Clone deep-copies the answer set.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		ids := make([]string, len(v))
		copy(ids, v)
		out[k] = ids
	}
	return out
}

// QuestionReview is the per-question grading outcome kept on an attempt for
// review screens.
type QuestionReview struct {
	QuestionID        string       `json:"question_id"`
	Type              QuestionType `json:"type"`
	Score             int          `json:"score"`
	ObtainedScore     int          `json:"obtained_score"`
	Correct           bool         `json:"is_correct"`
	SelectedOptionIDs []string     `json:"selected_option_ids"`
	CorrectOptionIDs  []string     `json:"correct_option_ids"`
}

// AttemptStatus is "submitted" for the normal write-once record; "retracted"
// is the administrative override that removes an attempt from aggregation
// without deleting the audit row.
type AttemptStatus string

const (
	AttemptSubmitted AttemptStatus = "submitted"
	AttemptRetracted AttemptStatus = "retracted"
)

// Attempt is one graded submission. Immutable once written; re-attempts are
// new records.
type Attempt struct {
	ID              string           `json:"id"`
	ExamID          string           `json:"exam_id"`
	UserID          string           `json:"user_id"`
	Status          AttemptStatus    `json:"status"`
	Score           int              `json:"score"`
	Pass            bool             `json:"pass"`
	CorrectCount    int              `json:"correct_count"`
	TotalCount      int              `json:"total_count"`
	DurationSeconds int64            `json:"duration_seconds"`
	Answers         AnswerSet        `json:"answers"`
	Review          []QuestionReview `json:"review"`
	StartedAt       int64            `json:"started_at"`
	SubmittedAt     int64            `json:"submitted_at"`
}
