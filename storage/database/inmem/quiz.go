package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/nazorat/core"
	"github.com/trezcool/nazorat/core/quiz"
)

type quizRepository struct {
	db    *quizTables
	users *userRepository
}

func newQuizRepository(db *DB) *quizRepository {
	return &quizRepository{db: db.quiz, users: &userRepository{db: db.user}}
}

func NewQuizRepository(db *DB) quiz.Repository {
	return newQuizRepository(db)
}

func NewQuizSeeder(db *DB) quiz.Seeder {
	return newQuizRepository(db)
}

func (repo *quizRepository) GetTest(_ context.Context, id int) (quiz.Test, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if test, ok := repo.db.tests[id]; ok {
		return test, nil
	}
	return quiz.Test{}, quiz.ErrTestNotFound
}

func (repo *quizRepository) QueryTestQuestions(_ context.Context, testID int) ([]quiz.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.testQuestions(testID), nil
}

// testQuestions must be called with the read lock held.
func (repo *quizRepository) testQuestions(testID int) []quiz.Question {
	questions := make([]quiz.Question, 0)
	for _, q := range repo.db.questions {
		if q.TestID == testID {
			questions = append(questions, copyQuestion(q))
		}
	}
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].Position != questions[j].Position {
			return questions[i].Position < questions[j].Position
		}
		return questions[i].ID < questions[j].ID
	})
	return questions
}

func (repo *quizRepository) IsEnrolled(_ context.Context, studentID, testID int) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.isEnrolled(studentID, testID), nil
}

// isEnrolled must be called with the read lock held.
func (repo *quizRepository) isEnrolled(studentID, testID int) bool {
	for _, courseID := range repo.db.courseTests[testID] {
		if repo.db.enrollments[courseID][studentID] {
			return true
		}
	}
	return false
}

func (repo *quizRepository) QueryAvailableTests(_ context.Context, studentID int) ([]quiz.TestSummary, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var tests []quiz.TestSummary
	for _, test := range repo.db.tests {
		if !repo.isEnrolled(studentID, test.ID) {
			continue
		}
		tests = append(tests, quiz.TestSummary{
			ID:            test.ID,
			Title:         test.Title,
			TeacherID:     test.TeacherID,
			QuestionCount: len(repo.testQuestions(test.ID)),
			CreatedAt:     test.CreatedAt,
		})
	}
	sort.Slice(tests, func(i, j int) bool { return tests[i].ID < tests[j].ID })
	return tests, nil
}

func (repo *quizRepository) GetAttempt(_ context.Context, id int) (quiz.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if attempt, ok := repo.db.attempts[id]; ok {
		return attempt, nil
	}
	return quiz.Attempt{}, quiz.ErrAttemptNotFound
}

func (repo *quizRepository) GetStudentAttempt(ctx context.Context, id int) (quiz.StudentAttempt, error) {
	attempt, err := repo.GetAttempt(ctx, id)
	if err != nil {
		return quiz.StudentAttempt{}, err
	}
	return quiz.StudentAttempt{Attempt: attempt, StudentName: repo.users.userName(attempt.StudentID)}, nil
}

func (repo *quizRepository) QueryAttemptAnswers(_ context.Context, attemptID int) ([]quiz.StudentAnswer, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return copyAnswers(repo.db.answers[attemptID]), nil
}

func (repo *quizRepository) QuerySubmittedAttempts(_ context.Context, testID int, orderings ...core.DBOrdering) ([]quiz.StudentAttempt, error) {
	repo.db.RLock()
	var attempts []quiz.StudentAttempt
	for _, a := range repo.db.attempts {
		if a.TestID == testID && a.IsSubmitted() {
			attempts = append(attempts, quiz.StudentAttempt{Attempt: a})
		}
	}
	repo.db.RUnlock()

	for i := range attempts {
		attempts[i].StudentName = repo.users.userName(attempts[i].StudentID)
	}
	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "completed_at"}}
	}
	sort.Slice(attempts, func(i, j int) bool {
		for _, ord := range orderings {
			if c := compareAttempts(attempts[i], attempts[j], ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return attempts[i].ID > attempts[j].ID
	})
	return attempts, nil
}

// compareAttempts returns -1, 0 or 1 as a is before, level with or after b on field.
func compareAttempts(a, b quiz.StudentAttempt, field string) int {
	switch field {
	case "completed_at":
		switch {
		case a.CompletedAt.Time.Before(b.CompletedAt.Time):
			return -1
		case a.CompletedAt.Time.After(b.CompletedAt.Time):
			return 1
		}
	case "score":
		return a.Score.Cmp(b.Score)
	case "percentage":
		return a.Percentage.Cmp(b.Percentage)
	case "student_name":
		return strings.Compare(a.StudentName, b.StudentName)
	}
	return 0
}

func (repo *quizRepository) GetOrCreateAttempt(_ context.Context, studentID, testID int, startedAt time.Time) (quiz.Attempt, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, a := range repo.db.attempts {
		if a.StudentID == studentID && a.TestID == testID && a.Status == quiz.StatusStarted {
			return a, false, nil
		}
	}
	attempt := quiz.Attempt{
		ID:        repo.db.nextPK("attempts"),
		StudentID: studentID,
		TestID:    testID,
		Status:    quiz.StatusStarted,
		StartedAt: startedAt,
	}
	repo.db.attempts[attempt.ID] = attempt
	return attempt, true, nil
}

func (repo *quizRepository) Transact(ctx context.Context, fn func(quiz.Store) error) error {
	tx := &quizTx{
		repo:     repo,
		held:     make(map[int]chan struct{}),
		attempts: make(map[int]quiz.Attempt),
		answers:  make(map[int][]quiz.StudentAnswer),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// Seeding

func (repo *quizRepository) CreateCourse(_ context.Context, course quiz.Course) (quiz.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	course.ID = repo.db.nextPK("courses")
	if course.CreatedAt.IsZero() {
		course.CreatedAt = time.Now().UTC()
	}
	repo.db.courses[course.ID] = course
	return course, nil
}

func (repo *quizRepository) EnrollStudent(_ context.Context, courseID, studentID int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[courseID]; !ok {
		return errors.Errorf("course %d does not exist", courseID)
	}
	if repo.db.enrollments[courseID] == nil {
		repo.db.enrollments[courseID] = make(map[int]bool)
	}
	repo.db.enrollments[courseID][studentID] = true
	return nil
}

func (repo *quizRepository) CreateTest(_ context.Context, test quiz.Test, courseIDs ...int) (quiz.Test, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range courseIDs {
		if _, ok := repo.db.courses[id]; !ok {
			return quiz.Test{}, errors.Errorf("course %d does not exist", id)
		}
	}
	test.ID = repo.db.nextPK("tests")
	if test.CreatedAt.IsZero() {
		test.CreatedAt = time.Now().UTC()
	}
	repo.db.tests[test.ID] = test
	repo.db.courseTests[test.ID] = append([]int(nil), courseIDs...)
	return test, nil
}

func (repo *quizRepository) CreateQuestion(_ context.Context, q quiz.Question) (quiz.Question, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.tests[q.TestID]; !ok {
		return quiz.Question{}, quiz.ErrTestNotFound
	}
	q = copyQuestion(q)
	q.ID = repo.db.nextPK("questions")
	for i := range q.Options {
		q.Options[i].ID = repo.db.nextPK("options")
		q.Options[i].QuestionID = q.ID
	}
	sort.SliceStable(q.Options, func(i, j int) bool { return q.Options[i].Position < q.Options[j].Position })
	repo.db.questions[q.ID] = q
	return copyQuestion(q), nil
}

// quizTx stages its writes and applies them on commit.
// Reads see the staged writes of the transaction.
type quizTx struct {
	repo     *quizRepository
	held     map[int]chan struct{}
	attempts map[int]quiz.Attempt
	answers  map[int][]quiz.StudentAnswer
}

func (tx *quizTx) LockAttempt(ctx context.Context, id int) (quiz.Attempt, error) {
	if _, err := tx.repo.GetAttempt(ctx, id); err != nil {
		return quiz.Attempt{}, err
	}
	if _, ok := tx.held[id]; !ok {
		lock := tx.repo.db.attemptLock(id)
		select {
		case lock <- struct{}{}:
			tx.held[id] = lock
		case <-ctx.Done():
			return quiz.Attempt{}, ctx.Err()
		}
	}

	if attempt, ok := tx.attempts[id]; ok {
		return attempt, nil
	}
	// read again: the attempt may have changed while waiting for the lock
	return tx.repo.GetAttempt(ctx, id)
}

func (tx *quizTx) QueryTestQuestions(ctx context.Context, testID int) ([]quiz.Question, error) {
	return tx.repo.QueryTestQuestions(ctx, testID)
}

func (tx *quizTx) QueryAttemptAnswers(ctx context.Context, attemptID int) ([]quiz.StudentAnswer, error) {
	if answers, ok := tx.answers[attemptID]; ok {
		return copyAnswers(answers), nil
	}
	return tx.repo.QueryAttemptAnswers(ctx, attemptID)
}

func (tx *quizTx) DeleteAttemptAnswers(_ context.Context, attemptID int) error {
	tx.answers[attemptID] = []quiz.StudentAnswer{}
	return nil
}

func (tx *quizTx) CreateAnswers(ctx context.Context, answers ...quiz.StudentAnswer) error {
	for _, ans := range answers {
		staged, ok := tx.answers[ans.AttemptID]
		if !ok {
			committed, err := tx.repo.QueryAttemptAnswers(ctx, ans.AttemptID)
			if err != nil {
				return err
			}
			staged = committed
		}
		for _, other := range staged {
			if other.QuestionID == ans.QuestionID {
				return errors.Errorf("attempt %d already has an answer to question %d", ans.AttemptID, ans.QuestionID)
			}
		}
		tx.answers[ans.AttemptID] = append(staged, copyAnswer(ans))
	}
	return nil
}

func (tx *quizTx) UpdateAttempt(_ context.Context, attempt quiz.Attempt) error {
	tx.attempts[attempt.ID] = attempt
	return nil
}

func (tx *quizTx) commit() {
	db := tx.repo.db
	db.Lock()
	defer db.Unlock()

	for id, attempt := range tx.attempts {
		db.attempts[id] = attempt
	}
	for attemptID, answers := range tx.answers {
		for i := range answers {
			if answers[i].ID == 0 {
				answers[i].ID = db.nextPK("answers")
			}
		}
		db.answers[attemptID] = answers
	}
}

func (tx *quizTx) release() {
	for id, lock := range tx.held {
		<-lock
		delete(tx.held, id)
	}
}

func copyQuestion(q quiz.Question) quiz.Question {
	if q.Options != nil {
		q.Options = append([]quiz.Option(nil), q.Options...)
	}
	return q
}

func copyAnswer(ans quiz.StudentAnswer) quiz.StudentAnswer {
	if ans.SelectedOptionIDs != nil {
		ans.SelectedOptionIDs = append([]int(nil), ans.SelectedOptionIDs...)
	}
	return ans
}

func copyAnswers(answers []quiz.StudentAnswer) []quiz.StudentAnswer {
	copies := make([]quiz.StudentAnswer, 0, len(answers))
	for _, ans := range answers {
		copies = append(copies, copyAnswer(ans))
	}
	return copies
}
