package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/staffstudy/staffstudy-lms/internal/eventlog"
	"github.com/staffstudy/staffstudy-lms/internal/exam"
	"github.com/staffstudy/staffstudy-lms/internal/report"
)

// SQLStore persists over sqlite or postgres (see internal/db). The exam's
// question list is written as a JSON snapshot, so a published definition is
// immutable and attempts always grade against the version they were sat on.
type SQLStore struct {
	db    *sql.DB
	log   eventlog.Log
	grace int64
	now   func() time.Time
}

func NewSQLStore(db *sql.DB, graceSeconds int64) *SQLStore {
	return &SQLStore{db: db, log: eventlog.NewSQLLog(db), grace: graceSeconds, now: time.Now}
}

// EventLog exposes the append-only feed for replay consumers.
func (s *SQLStore) EventLog() eventlog.Log { return s.log }

func (s *SQLStore) SaveDraft(ctx context.Context, e exam.Exam) (exam.Exam, error) {
	ensureIDs(&e)
	e.Status = exam.StatusDraft
	if res := exam.Validate(e); !res.Valid() {
		return exam.Exam{}, res
	}

	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM exams WHERE id=$1`, e.ID).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// new draft
	case err != nil:
		return exam.Exam{}, err
	case status != string(exam.StatusDraft):
		return exam.Exam{}, ErrNotDraft
	}

	if e.CreatedAt == 0 {
		e.CreatedAt = s.now().Unix()
	}
	qj, err := json.Marshal(e.Questions)
	if err != nil {
		return exam.Exam{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO exams
		(id,title,description,status,audience,time_limit_minutes,pass_score,creator_id,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
		  title=EXCLUDED.title, description=EXCLUDED.description,
		  audience=EXCLUDED.audience, time_limit_minutes=EXCLUDED.time_limit_minutes,
		  pass_score=EXCLUDED.pass_score, questions_json=EXCLUDED.questions_json`,
		e.ID, e.Title, e.Description, string(e.Status), string(e.Audience),
		e.TimeLimitMinutes, e.PassScore, e.CreatorID, string(qj), e.CreatedAt)
	if err != nil {
		return exam.Exam{}, err
	}
	return e, nil
}

// UpdateExamMeta edits the metadata columns only; questions_json is never
// touched, so a published definition stays frozen.
func (s *SQLStore) UpdateExamMeta(ctx context.Context, id string, upd ExamMetaUpdate) (exam.Exam, error) {
	e, err := s.GetExamAdmin(ctx, id)
	if err != nil {
		return exam.Exam{}, err
	}
	applyMeta(&e, upd)
	if res := exam.Validate(e); !res.Valid() {
		return exam.Exam{}, res
	}
	_, err = s.db.ExecContext(ctx, `UPDATE exams SET
		title=$1, description=$2, audience=$3, time_limit_minutes=$4, pass_score=$5
		WHERE id=$6`,
		e.Title, e.Description, string(e.Audience), e.TimeLimitMinutes, e.PassScore, id)
	if err != nil {
		return exam.Exam{}, err
	}
	return e, nil
}

func (s *SQLStore) setStatus(ctx context.Context, id string, to exam.Status) (exam.Exam, error) {
	e, err := s.GetExamAdmin(ctx, id)
	if err != nil {
		return exam.Exam{}, err
	}
	if to == exam.StatusPublished {
		if res := exam.Validate(e); !res.Valid() {
			return exam.Exam{}, res
		}
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE exams SET status=$1 WHERE id=$2`, string(to), id); err != nil {
		return exam.Exam{}, err
	}
	e.Status = to
	return e, nil
}

func (s *SQLStore) PublishExam(ctx context.Context, id string) (exam.Exam, error) {
	return s.setStatus(ctx, id, exam.StatusPublished)
}

func (s *SQLStore) ArchiveExam(ctx context.Context, id string) (exam.Exam, error) {
	return s.setStatus(ctx, id, exam.StatusArchived)
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (exam.Exam, error) {
	e, err := s.GetExamAdmin(ctx, id)
	if err != nil {
		return exam.Exam{}, err
	}
	return e.LearnerView(), nil
}

func (s *SQLStore) GetExamAdmin(ctx context.Context, id string) (exam.Exam, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id,title,description,status,audience,time_limit_minutes,pass_score,creator_id,questions_json,created_at
		FROM exams WHERE id=$1`, id)
	var e exam.Exam
	var status, audience, qjson string
	err := row.Scan(&e.ID, &e.Title, &e.Description, &status, &audience,
		&e.TimeLimitMinutes, &e.PassScore, &e.CreatorID, &qjson, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return exam.Exam{}, ErrExamNotFound
	}
	if err != nil {
		return exam.Exam{}, err
	}
	e.Status = exam.Status(status)
	e.Audience = exam.Audience(audience)
	if err := json.Unmarshal([]byte(qjson), &e.Questions); err != nil {
		return exam.Exam{}, fmt.Errorf("decode questions for exam %s: %w", id, err)
	}
	return e, nil
}

func (s *SQLStore) ListExams(ctx context.Context, opts ListOpts) ([]ExamSummary, error) {
	query := `SELECT id,title,description,status,audience,time_limit_minutes,pass_score,questions_json,created_at
		FROM exams WHERE 1=1`
	var args []any
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if opts.Status != "" {
		query += ` AND status=` + arg(opts.Status)
	}
	if opts.Audience != "" && opts.Audience != "admin" {
		query += ` AND (audience='all' OR audience=` + arg(opts.Audience) + `)`
	}
	if opts.Q != "" {
		p := arg("%" + strings.ToLower(opts.Q) + "%")
		query += ` AND (lower(title) LIKE ` + p + ` OR lower(description) LIKE ` + p + `)`
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ` + arg(opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ` + arg(opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ExamSummary{}
	for rows.Next() {
		var sm ExamSummary
		var status, audience, qjson string
		if err := rows.Scan(&sm.ID, &sm.Title, &sm.Description, &status, &audience,
			&sm.TimeLimitMinutes, &sm.PassScore, &qjson, &sm.CreatedAt); err != nil {
			return nil, err
		}
		sm.Status = exam.Status(status)
		sm.Audience = exam.Audience(audience)
		var qs []exam.Question
		if err := json.Unmarshal([]byte(qjson), &qs); err == nil {
			sm.QuestionCount = len(qs)
			for _, q := range qs {
				sm.TotalScore += q.Score
			}
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *SQLStore) SubmitAttempt(ctx context.Context, in SubmitInput) (exam.Attempt, error) {
	e, err := s.GetExamAdmin(ctx, in.ExamID)
	if err != nil {
		return exam.Attempt{}, err
	}
	a, err := buildAttempt(e, in, s.now(), s.grace)
	if err != nil {
		return exam.Attempt{}, err
	}

	aj, err := json.Marshal(a.Answers)
	if err != nil {
		return exam.Attempt{}, err
	}
	rj, err := json.Marshal(a.Review)
	if err != nil {
		return exam.Attempt{}, err
	}

	// Attempt row and its log event land in one transaction so the feed
	// never observes a half-written attempt.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return exam.Attempt{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO attempts
		(id,exam_id,user_id,status,score,pass,correct_count,total_count,duration_seconds,answers_json,review_json,started_at,submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.ID, a.ExamID, a.UserID, string(a.Status), a.Score, boolInt(a.Pass),
		a.CorrectCount, a.TotalCount, a.DurationSeconds, string(aj), string(rj),
		a.StartedAt, a.SubmittedAt)
	if err != nil {
		return exam.Attempt{}, err
	}
	ev := submittedEvent(a)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		ev.Type, ev.Key, ev.DataJSON, a.SubmittedAt); err != nil {
		return exam.Attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		return exam.Attempt{}, err
	}
	return a, nil
}

const attemptCols = `id,exam_id,user_id,status,score,pass,correct_count,total_count,duration_seconds,answers_json,review_json,started_at,submitted_at`

func scanAttempt(sc interface{ Scan(...any) error }) (exam.Attempt, error) {
	var a exam.Attempt
	var status, aj, rj string
	var pass int
	err := sc.Scan(&a.ID, &a.ExamID, &a.UserID, &status, &a.Score, &pass,
		&a.CorrectCount, &a.TotalCount, &a.DurationSeconds, &aj, &rj,
		&a.StartedAt, &a.SubmittedAt)
	if err != nil {
		return exam.Attempt{}, err
	}
	a.Status = exam.AttemptStatus(status)
	a.Pass = pass != 0
	if err := json.Unmarshal([]byte(aj), &a.Answers); err != nil {
		a.Answers = exam.AnswerSet{}
	}
	if err := json.Unmarshal([]byte(rj), &a.Review); err != nil {
		a.Review = nil
	}
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (exam.Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return exam.Attempt{}, ErrAttemptNotFound
	}
	return a, err
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]exam.Attempt, error) {
	query := `SELECT ` + attemptCols + ` FROM attempts WHERE 1=1`
	var args []any
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if opts.ExamID != "" {
		query += ` AND exam_id=` + arg(opts.ExamID)
	}
	if opts.UserID != "" {
		query += ` AND user_id=` + arg(opts.UserID)
	}
	query += ` ORDER BY submitted_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ` + arg(opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ` + arg(opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []exam.Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) RetractAttempt(ctx context.Context, id, retractedBy string) (exam.Attempt, error) {
	a, err := s.GetAttempt(ctx, id)
	if err != nil {
		return exam.Attempt{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return exam.Attempt{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE attempts SET status=$1 WHERE id=$2`,
		string(exam.AttemptRetracted), id); err != nil {
		return exam.Attempt{}, err
	}
	data, _ := json.Marshal(map[string]string{"attempt_id": id, "retracted_by": retractedBy})
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		eventlog.TypeAttemptRetracted, id, string(data), s.now().Unix()); err != nil {
		return exam.Attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		return exam.Attempt{}, err
	}
	a.Status = exam.AttemptRetracted
	return a, nil
}

func (s *SQLStore) AttemptsByExam(ctx context.Context, examID string) ([]exam.Attempt, error) {
	return s.ListAttempts(ctx, AttemptListOpts{ExamID: examID})
}

func (s *SQLStore) AttemptsByUser(ctx context.Context, userID string) ([]exam.Attempt, error) {
	return s.ListAttempts(ctx, AttemptListOpts{UserID: userID})
}

func (s *SQLStore) UpsertUser(ctx context.Context, u User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id,username,name,work_no,role,password_hash)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (username) DO UPDATE SET
		  name=EXCLUDED.name, work_no=EXCLUDED.work_no, role=EXCLUDED.role,
		  password_hash=CASE WHEN EXCLUDED.password_hash<>'' THEN EXCLUDED.password_hash ELSE users.password_hash END`,
		u.ID, u.Username, u.Name, u.WorkNo, u.Role, u.PasswordHash)
	return err
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,username,name,work_no,role,password_hash FROM users WHERE username=$1`, username)
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.WorkNo, &u.Role, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]report.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,work_no,role FROM users ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []report.User{}
	for rows.Next() {
		var u report.User
		if err := rows.Scan(&u.ID, &u.Name, &u.WorkNo, &u.Role); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
