package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/nazorat/core"
	"github.com/trezcool/nazorat/core/quiz"
	"github.com/trezcool/nazorat/storage/database"
)

const (
	attemptColumns  = `a.id, a.student_id, a.test_id, a.status, a.score, a.percentage, a.started_at, a.completed_at`
	questionColumns = `q.id, q.test_id, q.text, q.question_type, q.points, q.partial_credit, q.case_sensitive,
		q.tolerance, q.answer_kind, q.position`

	// a concurrent submission may close the started attempt between the insert and the select
	getOrCreateRetries = 3
)

type quizRepository struct {
	db *sqlx.DB
}

func newQuizRepository(db *sqlx.DB) *quizRepository {
	return &quizRepository{db: db}
}

func NewQuizRepository(db *sqlx.DB) quiz.Repository {
	return newQuizRepository(db)
}

func NewQuizSeeder(db *sqlx.DB) quiz.Seeder {
	return newQuizRepository(db)
}

func (repo *quizRepository) GetTest(ctx context.Context, id int) (quiz.Test, error) {
	var test quiz.Test
	err := repo.db.GetContext(ctx, &test, `SELECT id, title, teacher_id, created_at FROM tests WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return quiz.Test{}, quiz.ErrTestNotFound
	}
	if err != nil {
		return quiz.Test{}, errors.Wrap(err, "selecting test")
	}
	return test, nil
}

func (repo *quizRepository) QueryTestQuestions(ctx context.Context, testID int) ([]quiz.Question, error) {
	return queryTestQuestions(ctx, repo.db, testID)
}

func (repo *quizRepository) IsEnrolled(ctx context.Context, studentID, testID int) (bool, error) {
	var enrolled bool
	err := repo.db.GetContext(ctx, &enrolled, `
		SELECT EXISTS (
			SELECT 1 FROM course_tests ct
			JOIN enrollments e ON e.course_id = ct.course_id
			WHERE ct.test_id = $1 AND e.student_id = $2
		)`,
		testID, studentID,
	)
	if err != nil {
		return false, errors.Wrap(err, "checking enrollment")
	}
	return enrolled, nil
}

func (repo *quizRepository) QueryAvailableTests(ctx context.Context, studentID int) ([]quiz.TestSummary, error) {
	var tests []quiz.TestSummary
	err := repo.db.SelectContext(ctx, &tests, `
		SELECT t.id, t.title, t.teacher_id, t.created_at,
			(SELECT COUNT(*) FROM questions q WHERE q.test_id = t.id) AS question_count
		FROM tests t
		WHERE EXISTS (
			SELECT 1 FROM course_tests ct
			JOIN enrollments e ON e.course_id = ct.course_id
			WHERE ct.test_id = t.id AND e.student_id = $1
		)
		ORDER BY t.id`,
		studentID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "selecting available tests")
	}
	return tests, nil
}

func (repo *quizRepository) GetAttempt(ctx context.Context, id int) (quiz.Attempt, error) {
	return getAttempt(ctx, repo.db, `SELECT `+attemptColumns+` FROM attempts a WHERE a.id = $1`, id)
}

func (repo *quizRepository) GetStudentAttempt(ctx context.Context, id int) (quiz.StudentAttempt, error) {
	var attempt quiz.StudentAttempt
	err := repo.db.GetContext(ctx, &attempt, `
		SELECT `+attemptColumns+`, u.name AS student_name
		FROM attempts a
		JOIN users u ON u.id = a.student_id
		WHERE a.id = $1`,
		id,
	)
	if err == sql.ErrNoRows {
		return quiz.StudentAttempt{}, quiz.ErrAttemptNotFound
	}
	if err != nil {
		return quiz.StudentAttempt{}, errors.Wrap(err, "selecting attempt")
	}
	return attempt, nil
}

func (repo *quizRepository) QueryAttemptAnswers(ctx context.Context, attemptID int) ([]quiz.StudentAnswer, error) {
	return queryAttemptAnswers(ctx, repo.db, attemptID)
}

func (repo *quizRepository) QuerySubmittedAttempts(ctx context.Context, testID int, orderings ...core.DBOrdering) ([]quiz.StudentAttempt, error) {
	var attempts []quiz.StudentAttempt
	err := repo.db.SelectContext(ctx, &attempts, `
		SELECT `+attemptColumns+`, u.name AS student_name
		FROM attempts a
		JOIN users u ON u.id = a.student_id
		WHERE a.test_id = $1 AND a.status = $2
		ORDER BY `+resultsOrderBy(orderings),
		testID, quiz.StatusSubmitted,
	)
	if err != nil {
		return nil, errors.Wrap(err, "selecting submitted attempts")
	}
	return attempts, nil
}

func (repo *quizRepository) GetOrCreateAttempt(ctx context.Context, studentID, testID int, startedAt time.Time) (quiz.Attempt, bool, error) {
	for i := 0; i < getOrCreateRetries; i++ {
		attempt, err := getAttempt(ctx, repo.db, `
			INSERT INTO attempts AS a (student_id, test_id, status, started_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (student_id, test_id) WHERE status = 'started' DO NOTHING
			RETURNING `+attemptColumns,
			studentID, testID, quiz.StatusStarted, startedAt,
		)
		if err == nil {
			return attempt, true, nil
		}
		if errors.Cause(err) != quiz.ErrAttemptNotFound {
			return quiz.Attempt{}, false, err
		}

		// conflict: there is a started attempt already
		attempt, err = getAttempt(ctx, repo.db, `
			SELECT `+attemptColumns+` FROM attempts a
			WHERE a.student_id = $1 AND a.test_id = $2 AND a.status = $3`,
			studentID, testID, quiz.StatusStarted,
		)
		if err == nil {
			return attempt, false, nil
		}
		if errors.Cause(err) != quiz.ErrAttemptNotFound {
			return quiz.Attempt{}, false, err
		}
	}
	return quiz.Attempt{}, false, errors.Errorf("getting or creating attempt: gave up after %d tries", getOrCreateRetries)
}

func (repo *quizRepository) Transact(ctx context.Context, fn func(quiz.Store) error) error {
	return database.WithTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		return fn(&quizStore{tx: tx})
	})
}

// resultOrderColumns maps quiz.ResultOrderFields to columns.
var resultOrderColumns = map[string]string{
	"completed_at": "a.completed_at",
	"score":        "a.score",
	"percentage":   "a.percentage",
	"student_name": "u.name",
}

func resultsOrderBy(orderings []core.DBOrdering) string {
	orderings = core.FilterOrderings(orderings, resultOrderColumns)
	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "a.completed_at"}}
	}
	clauses := make([]string, 0, len(orderings)+1)
	for _, ord := range orderings {
		clauses = append(clauses, ord.String())
	}
	return strings.Join(append(clauses, "a.id DESC"), ", ")
}

// Seeding

func (repo *quizRepository) CreateCourse(ctx context.Context, course quiz.Course) (quiz.Course, error) {
	if course.CreatedAt.IsZero() {
		course.CreatedAt = time.Now().UTC()
	}
	err := repo.db.QueryRowxContext(ctx,
		`INSERT INTO courses (name, created_at) VALUES ($1, $2) RETURNING id`,
		course.Name, course.CreatedAt,
	).Scan(&course.ID)
	if err != nil {
		return quiz.Course{}, errors.Wrap(err, "inserting course")
	}
	return course, nil
}

func (repo *quizRepository) EnrollStudent(ctx context.Context, courseID, studentID int) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO enrollments (course_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		courseID, studentID,
	)
	return errors.Wrap(err, "inserting enrollment")
}

func (repo *quizRepository) CreateTest(ctx context.Context, test quiz.Test, courseIDs ...int) (quiz.Test, error) {
	if test.CreatedAt.IsZero() {
		test.CreatedAt = time.Now().UTC()
	}
	err := database.WithTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx,
			`INSERT INTO tests (title, teacher_id, created_at) VALUES ($1, $2, $3) RETURNING id`,
			test.Title, test.TeacherID, test.CreatedAt,
		).Scan(&test.ID)
		if err != nil {
			return errors.Wrap(err, "inserting test")
		}
		for _, courseID := range courseIDs {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO course_tests (course_id, test_id) VALUES ($1, $2)`,
				courseID, test.ID,
			); err != nil {
				return errors.Wrap(err, "assigning test")
			}
		}
		return nil
	})
	if err != nil {
		return quiz.Test{}, err
	}
	return test, nil
}

func (repo *quizRepository) CreateQuestion(ctx context.Context, q quiz.Question) (quiz.Question, error) {
	q.Options = append([]quiz.Option(nil), q.Options...)
	err := database.WithTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO questions (test_id, text, question_type, points, partial_credit, case_sensitive, tolerance, answer_kind, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			q.TestID, q.Text, q.Type, q.Points, q.PartialCredit, q.CaseSensitive, q.Tolerance, q.AnswerKind, q.Position,
		).Scan(&q.ID)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "foreign_key_violation" {
				return quiz.ErrTestNotFound
			}
			return errors.Wrap(err, "inserting question")
		}
		for i := range q.Options {
			q.Options[i].QuestionID = q.ID
			if err = tx.QueryRowxContext(ctx, `
				INSERT INTO options (question_id, text, is_correct, position) VALUES ($1, $2, $3, $4) RETURNING id`,
				q.ID, q.Options[i].Text, q.Options[i].IsCorrect, q.Options[i].Position,
			).Scan(&q.Options[i].ID); err != nil {
				return errors.Wrap(err, "inserting option")
			}
		}
		return nil
	})
	if err != nil {
		return quiz.Question{}, err
	}
	return q, nil
}

// quizStore runs the transactional part of the repository on a transaction.
type quizStore struct {
	tx *sqlx.Tx
}

func (s *quizStore) LockAttempt(ctx context.Context, id int) (quiz.Attempt, error) {
	return getAttempt(ctx, s.tx, `SELECT `+attemptColumns+` FROM attempts a WHERE a.id = $1 FOR UPDATE`, id)
}

func (s *quizStore) QueryTestQuestions(ctx context.Context, testID int) ([]quiz.Question, error) {
	return queryTestQuestions(ctx, s.tx, testID)
}

func (s *quizStore) QueryAttemptAnswers(ctx context.Context, attemptID int) ([]quiz.StudentAnswer, error) {
	return queryAttemptAnswers(ctx, s.tx, attemptID)
}

func (s *quizStore) DeleteAttemptAnswers(ctx context.Context, attemptID int) error {
	// selected options are deleted on cascade
	_, err := s.tx.ExecContext(ctx, `DELETE FROM student_answers WHERE attempt_id = $1`, attemptID)
	return errors.Wrap(err, "deleting answers")
}

func (s *quizStore) CreateAnswers(ctx context.Context, answers ...quiz.StudentAnswer) error {
	for _, ans := range answers {
		var id int
		err := s.tx.QueryRowxContext(ctx, `
			INSERT INTO student_answers (attempt_id, question_id, written_answer, scored_mark, is_correct, feedback)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			ans.AttemptID, ans.QuestionID, ans.WrittenAnswer, ans.ScoredMark, ans.IsCorrect, ans.Feedback,
		).Scan(&id)
		if err != nil {
			return errors.Wrapf(err, "inserting answer to question %d", ans.QuestionID)
		}
		if len(ans.SelectedOptionIDs) == 0 {
			continue
		}
		optionIDs := make(pq.Int64Array, 0, len(ans.SelectedOptionIDs))
		for _, optID := range ans.SelectedOptionIDs {
			optionIDs = append(optionIDs, int64(optID))
		}
		if _, err = s.tx.ExecContext(ctx, `
			INSERT INTO student_answer_options (answer_id, option_id)
			SELECT $1, unnest($2::INTEGER[])`,
			id, optionIDs,
		); err != nil {
			return errors.Wrapf(err, "inserting selected options of question %d", ans.QuestionID)
		}
	}
	return nil
}

func (s *quizStore) UpdateAttempt(ctx context.Context, attempt quiz.Attempt) error {
	_, err := s.tx.ExecContext(ctx, `
		UPDATE attempts SET status = $2, score = $3, percentage = $4, completed_at = $5
		WHERE id = $1`,
		attempt.ID, attempt.Status, attempt.Score, attempt.Percentage, attempt.CompletedAt,
	)
	return errors.Wrap(err, "updating attempt")
}

// Queries shared by the repository and its transactions.

func getAttempt(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (quiz.Attempt, error) {
	var attempt quiz.Attempt
	if err := sqlx.GetContext(ctx, q, &attempt, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return quiz.Attempt{}, quiz.ErrAttemptNotFound
		}
		return quiz.Attempt{}, errors.Wrap(err, "selecting attempt")
	}
	return attempt, nil
}

func queryTestQuestions(ctx context.Context, q sqlx.QueryerContext, testID int) ([]quiz.Question, error) {
	var questions []quiz.Question
	if err := sqlx.SelectContext(ctx, q, &questions, `
		SELECT `+questionColumns+`
		FROM questions q
		WHERE q.test_id = $1
		ORDER BY q.position, q.id`,
		testID,
	); err != nil {
		return nil, errors.Wrap(err, "selecting questions")
	}

	var options []quiz.Option
	if err := sqlx.SelectContext(ctx, q, &options, `
		SELECT o.id, o.question_id, o.text, o.is_correct, o.position
		FROM options o
		JOIN questions q ON q.id = o.question_id
		WHERE q.test_id = $1
		ORDER BY o.position, o.id`,
		testID,
	); err != nil {
		return nil, errors.Wrap(err, "selecting options")
	}

	idx := make(map[int]int, len(questions))
	for i := range questions {
		idx[questions[i].ID] = i
	}
	for _, opt := range options {
		if i, ok := idx[opt.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, opt)
		}
	}
	return questions, nil
}

func queryAttemptAnswers(ctx context.Context, q sqlx.QueryerContext, attemptID int) ([]quiz.StudentAnswer, error) {
	var answers []quiz.StudentAnswer
	if err := sqlx.SelectContext(ctx, q, &answers, `
		SELECT id, attempt_id, question_id, written_answer, scored_mark, is_correct, feedback
		FROM student_answers
		WHERE attempt_id = $1
		ORDER BY id`,
		attemptID,
	); err != nil {
		return nil, errors.Wrap(err, "selecting answers")
	}

	var selected []struct {
		AnswerID int `db:"answer_id"`
		OptionID int `db:"option_id"`
	}
	if err := sqlx.SelectContext(ctx, q, &selected, `
		SELECT sao.answer_id, sao.option_id
		FROM student_answer_options sao
		JOIN student_answers sa ON sa.id = sao.answer_id
		WHERE sa.attempt_id = $1
		ORDER BY sao.option_id`,
		attemptID,
	); err != nil {
		return nil, errors.Wrap(err, "selecting selected options")
	}

	idx := make(map[int]int, len(answers))
	for i := range answers {
		idx[answers[i].ID] = i
	}
	for _, sel := range selected {
		if i, ok := idx[sel.AnswerID]; ok {
			answers[i].SelectedOptionIDs = append(answers[i].SelectedOptionIDs, sel.OptionID)
		}
	}
	return answers, nil
}
