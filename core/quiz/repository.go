package quiz

import (
	"context"
	"time"

	"github.com/trezcool/nazorat/core"
)

type (
	// StudentAttempt is an attempt along with its student's name.
	StudentAttempt struct {
		Attempt
		StudentName string `db:"student_name"`
	}

	// Store is the part of the Repository usable inside a transaction.
	Store interface {
		// LockAttempt returns the attempt and holds an exclusive lock on it until the transaction ends.
		LockAttempt(ctx context.Context, id int) (Attempt, error)
		QueryTestQuestions(ctx context.Context, testID int) ([]Question, error)
		QueryAttemptAnswers(ctx context.Context, attemptID int) ([]StudentAnswer, error)
		DeleteAttemptAnswers(ctx context.Context, attemptID int) error
		CreateAnswers(ctx context.Context, answers ...StudentAnswer) error
		UpdateAttempt(ctx context.Context, attempt Attempt) error
	}

	Repository interface {
		GetTest(ctx context.Context, id int) (Test, error)
		// QueryTestQuestions returns the test's questions, with their options, ordered by position.
		QueryTestQuestions(ctx context.Context, testID int) ([]Question, error)
		// IsEnrolled reports whether the student is enrolled in a course the test is assigned to.
		IsEnrolled(ctx context.Context, studentID, testID int) (bool, error)
		QueryAvailableTests(ctx context.Context, studentID int) ([]TestSummary, error)

		GetAttempt(ctx context.Context, id int) (Attempt, error)
		GetStudentAttempt(ctx context.Context, id int) (StudentAttempt, error)
		QueryAttemptAnswers(ctx context.Context, attemptID int) ([]StudentAnswer, error)
		// QuerySubmittedAttempts returns the test's submitted attempts sorted by orderings
		// (fields of ResultOrderFields), newest first by default. Ties are broken by descending id.
		QuerySubmittedAttempts(ctx context.Context, testID int, orderings ...core.DBOrdering) ([]StudentAttempt, error)
		// GetOrCreateAttempt returns the student's started attempt on the test, creating it if there is none.
		// created is true when a new attempt was created. Concurrent calls never create two started attempts.
		GetOrCreateAttempt(ctx context.Context, studentID, testID int, startedAt time.Time) (attempt Attempt, created bool, err error)

		// Transact runs fn atomically: all of its writes are committed when it returns nil, none otherwise.
		Transact(ctx context.Context, fn func(Store) error) error
	}

	// Seeder creates the courses, tests and questions attempts are made against.
	Seeder interface {
		CreateCourse(ctx context.Context, course Course) (Course, error)
		EnrollStudent(ctx context.Context, courseID, studentID int) error
		// CreateTest creates the test and assigns it to the courses.
		CreateTest(ctx context.Context, test Test, courseIDs ...int) (Test, error)
		// CreateQuestion creates the question along with its options.
		CreateQuestion(ctx context.Context, q Question) (Question, error)
	}
)
