package exam

import (
	"github.com/google/uuid"
)

func newID() string { return uuid.NewString() }

// Draft is an exam under authoring. Every edit is a pure transformation
// returning a new Draft, so the displayed draft stays structurally legal
// without cross-field side effects outside the operation itself.
type Draft struct {
	Exam
}

func NewDraft(title, creatorID string) Draft {
	return Draft{Exam: Exam{
		ID:        newID(),
		Title:     title,
		Status:    StatusDraft,
		Audience:  AudienceEmployee,
		PassScore: 60,
		CreatorID: creatorID,
	}}
}

func (d Draft) clone() Draft {
	out := d
	out.Questions = make([]Question, len(d.Questions))
	for i, q := range d.Questions {
		qc := q
		qc.Options = make([]Option, len(q.Options))
		copy(qc.Options, q.Options)
		out.Questions[i] = qc
	}
	return out
}

// AddQuestion appends a blank question of the given type with two empty
// options labeled A and B, matching the editor's starting shape.
func (d Draft) AddQuestion(t QuestionType) Draft {
	out := d.clone()
	q := Question{
		ID:    newID(),
		Type:  t,
		Score: 5,
		Options: []Option{
			{ID: newID(), Label: "A", SortOrder: 0},
			{ID: newID(), Label: "B", SortOrder: 1},
		},
	}
	out.Questions = append(out.Questions, q)
	return out
}

func (d Draft) RemoveQuestion(qi int) Draft {
	if qi < 0 || qi >= len(d.Questions) {
		return d
	}
	out := d.clone()
	out.Questions = append(out.Questions[:qi], out.Questions[qi+1:]...)
	return out
}

// AddOption appends an option with the next sequential letter label.
func (d Draft) AddOption(qi int) Draft {
	if qi < 0 || qi >= len(d.Questions) {
		return d
	}
	out := d.clone()
	q := &out.Questions[qi]
	n := len(q.Options)
	q.Options = append(q.Options, Option{
		ID:        newID(),
		Label:     string(rune('A' + n)),
		SortOrder: n,
	})
	return out
}

func (d Draft) RemoveOption(qi, oi int) Draft {
	if qi < 0 || qi >= len(d.Questions) {
		return d
	}
	out := d.clone()
	q := &out.Questions[qi]
	if oi < 0 || oi >= len(q.Options) {
		return d
	}
	q.Options = append(q.Options[:oi], q.Options[oi+1:]...)
	// relabel so display labels stay sequential and unique
	for i := range q.Options {
		q.Options[i].Label = string(rune('A' + i))
		q.Options[i].SortOrder = i
	}
	return out
}

func (d Draft) SetStem(qi int, stem string) Draft {
	if qi < 0 || qi >= len(d.Questions) {
		return d
	}
	out := d.clone()
	out.Questions[qi].Stem = stem
	return out
}

func (d Draft) SetScore(qi, score int) Draft {
	if qi < 0 || qi >= len(d.Questions) {
		return d
	}
	out := d.clone()
	out.Questions[qi].Score = score
	return out
}

func (d Draft) SetOptionContent(qi, oi int, content string) Draft {
	if qi < 0 || qi >= len(d.Questions) {
		return d
	}
	out := d.clone()
	q := &out.Questions[qi]
	if oi < 0 || oi >= len(q.Options) {
		return d
	}
	q.Options[oi].Content = content
	return out
}

// ToggleCorrect flips correctness on one option. A single-choice question
// behaves like a radio group: the tapped option becomes correct and every
// sibling is cleared, so once an option is marked exactly one stays marked
// no matter the tap sequence. On multiple-choice only the one option flips.
func (d Draft) ToggleCorrect(qi, oi int) Draft {
	if qi < 0 || qi >= len(d.Questions) {
		return d
	}
	out := d.clone()
	q := &out.Questions[qi]
	if oi < 0 || oi >= len(q.Options) {
		return d
	}
	if q.Type == Single {
		for i := range q.Options {
			q.Options[i].Correct = false
		}
		q.Options[oi].Correct = true
		return out
	}
	q.Options[oi].Correct = !q.Options[oi].Correct
	return out
}

// SetQuestionType switches a question's type. Multiple→single with several
// correct options is repaired, not rejected: the first previously-correct
// option stays correct and the rest are cleared.
func (d Draft) SetQuestionType(qi int, t QuestionType) Draft {
	if qi < 0 || qi >= len(d.Questions) || !t.Valid() {
		return d
	}
	out := d.clone()
	q := &out.Questions[qi]
	q.Type = t
	if t == Single {
		seen := false
		for i := range q.Options {
			if q.Options[i].Correct {
				if seen {
					q.Options[i].Correct = false
				}
				seen = true
			}
		}
	}
	return out
}

// Publish freezes the draft into a published exam. Only structurally valid
// drafts may leave authoring.
func (d Draft) Publish() (Exam, error) {
	if res := Validate(d.Exam); !res.Valid() {
		return Exam{}, res
	}
	out := d.clone().Exam
	out.Status = StatusPublished
	return out, nil
}
