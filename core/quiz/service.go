package quiz

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nazorat/core"
	"github.com/trezcool/nazorat/core/scoring"
)

var (
	// errors
	ErrTestNotFound    = core.NewNotFoundError("test not found")
	ErrAttemptNotFound = core.NewNotFoundError("attempt not found")
	ErrAttemptClosed   = errors.New("attempt has already been submitted")
	errNotSubmitted    = errors.New("attempt has not been submitted yet")

	errNotEnrolled    = errors.Wrap(core.ErrPermissionDenied, "student is not enrolled in this test")
	errNotYourAttempt = errors.Wrap(core.ErrPermissionDenied, "attempt belongs to another student")
	errNotYourTest    = errors.Wrap(core.ErrPermissionDenied, "test belongs to another teacher")

	NowFunc = time.Now // mockable

	// ResultOrderFields are the fields test results can be ordered by.
	ResultOrderFields = map[string]string{
		"completed_at": "completed_at",
		"score":        "score",
		"percentage":   "percentage",
		"student_name": "student_name",
	}
)

type Service struct {
	repo     Repository
	conf     *core.Config
	logger   core.Logger
	validate *validator.Validate
}

func NewService(repo Repository, conf *core.Config, logger core.Logger, validate *validator.Validate) *Service {
	return &Service{
		repo:     repo,
		conf:     conf,
		logger:   logger,
		validate: validate,
	}
}

// StartAttempt returns the student's started attempt on the test, creating it if needed.
// created is false when an attempt was already in progress.
func (svc *Service) StartAttempt(ctx context.Context, studentID, testID int) (started StartedAttempt, created bool, err error) {
	test, err := svc.repo.GetTest(ctx, testID)
	if err != nil {
		return StartedAttempt{}, false, errors.Wrap(err, "getting test")
	}
	enrolled, err := svc.repo.IsEnrolled(ctx, studentID, testID)
	if err != nil {
		return StartedAttempt{}, false, errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return StartedAttempt{}, false, errNotEnrolled
	}

	attempt, created, err := svc.repo.GetOrCreateAttempt(ctx, studentID, testID, NowFunc().UTC())
	if err != nil {
		return StartedAttempt{}, false, errors.Wrap(err, "getting or creating attempt")
	}
	questions, err := svc.repo.QueryTestQuestions(ctx, testID)
	if err != nil {
		return StartedAttempt{}, false, errors.Wrap(err, "querying questions")
	}

	if created {
		svc.logger.Info(fmt.Sprintf("attempt %d started", attempt.ID), map[string]interface{}{"student_id": studentID, "test_id": testID})
	}
	return StartedAttempt{
		AttemptID: attempt.ID,
		TestID:    test.ID,
		Title:     test.Title,
		StartedAt: attempt.StartedAt,
		Questions: NewQuestionViews(questions),
	}, created, nil
}

// NewQuestionViews strips the questions of everything revealing their correct answers.
func NewQuestionViews(questions []Question) []QuestionView {
	views := make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		view := QuestionView{
			ID:      q.ID,
			Text:    q.Text,
			Type:    q.Type,
			Points:  NewFixed(q.Points),
			Options: []OptionView{},
		}
		if q.Type == TypeWritten {
			view.InputKind = WrittenKind(q)
		} else {
			for _, opt := range q.Options {
				view.Options = append(view.Options, OptionView{ID: opt.ID, Text: opt.Text})
			}
		}
		views = append(views, view)
	}
	return views
}

// SubmitAttempt grades the student's answers and stores them as the attempt's current state,
// replacing whatever a previous submission stored.
// The request is fully validated before anything is written, and all writes happen in one transaction
// holding an exclusive lock on the attempt.
func (svc *Service) SubmitAttempt(ctx context.Context, studentID, attemptID int, req SubmitRequest) (AttemptSummary, error) {
	if err := svc.validate.Struct(req); err != nil {
		return AttemptSummary{}, err
	}

	var summary AttemptSummary
	err := svc.repo.Transact(ctx, func(store Store) error {
		attempt, err := store.LockAttempt(ctx, attemptID)
		if err != nil {
			return errors.Wrap(err, "locking attempt")
		}
		if attempt.StudentID != studentID {
			return errNotYourAttempt
		}
		if attempt.IsSubmitted() && !svc.conf.Quiz.AllowResubmission {
			return ErrAttemptClosed
		}

		questions, err := store.QueryTestQuestions(ctx, attempt.TestID)
		if err != nil {
			return errors.Wrap(err, "querying questions")
		}
		answers, err := newAnswers(attempt, questions, req)
		if err != nil {
			return err
		}

		summary, err = svc.grade(ctx, store, attempt, questions, answers, NowFunc().UTC())
		return err
	})
	if err != nil {
		return AttemptSummary{}, err
	}

	svc.logger.Info(
		fmt.Sprintf("attempt %d submitted: %s (%s%%)", summary.AttemptID, summary.Score, summary.Percentage),
		map[string]interface{}{"student_id": studentID},
	)
	return summary, nil
}

// RegradeAttempt grades the stored answers of a submitted attempt again, eg. after an answer key was fixed.
// Answers to questions no longer in the test are dropped.
func (svc *Service) RegradeAttempt(ctx context.Context, attemptID int) (AttemptSummary, error) {
	var summary AttemptSummary
	err := svc.repo.Transact(ctx, func(store Store) error {
		attempt, err := store.LockAttempt(ctx, attemptID)
		if err != nil {
			return errors.Wrap(err, "locking attempt")
		}
		if !attempt.IsSubmitted() {
			return core.NewValidationError(errNotSubmitted)
		}

		questions, err := store.QueryTestQuestions(ctx, attempt.TestID)
		if err != nil {
			return errors.Wrap(err, "querying questions")
		}
		stored, err := store.QueryAttemptAnswers(ctx, attempt.ID)
		if err != nil {
			return errors.Wrap(err, "querying answers")
		}

		byID := questionsByID(questions)
		answers := make([]StudentAnswer, 0, len(stored))
		for _, ans := range stored {
			if _, ok := byID[ans.QuestionID]; ok {
				answers = append(answers, StudentAnswer{
					AttemptID:         attempt.ID,
					QuestionID:        ans.QuestionID,
					SelectedOptionIDs: ans.SelectedOptionIDs,
					WrittenAnswer:     ans.WrittenAnswer,
				})
			}
		}

		summary, err = svc.grade(ctx, store, attempt, questions, answers, attempt.CompletedAt.Time)
		return err
	})
	if err != nil {
		return AttemptSummary{}, err
	}

	svc.logger.Info(fmt.Sprintf("attempt %d regraded: %s (%s%%)", summary.AttemptID, summary.Score, summary.Percentage))
	return summary, nil
}

// grade discards the attempt's stored answers, grades and stores the new ones, then stores the attempt's score.
// Must run inside a transaction holding the attempt lock.
func (svc *Service) grade(
	ctx context.Context,
	store Store,
	attempt Attempt,
	questions []Question,
	answers []StudentAnswer,
	completedAt time.Time,
) (AttemptSummary, error) {
	if err := store.DeleteAttemptAnswers(ctx, attempt.ID); err != nil {
		return AttemptSummary{}, errors.Wrap(err, "deleting previous answers")
	}

	byID := questionsByID(questions)
	results := make([]scoring.ScoreResult, 0, len(answers))
	for i := range answers {
		res, err := GradeAnswer(byID[answers[i].QuestionID], answers[i].Response())
		if shapeErr, ok := errors.Cause(err).(*scoring.ShapeError); ok {
			// submissions are shape checked: only stored answers to a changed question get here
			svc.logger.Warn(
				fmt.Sprintf("attempt %d: answer to question %d graded zero: %v", attempt.ID, answers[i].QuestionID, shapeErr),
				shapeErr,
			)
			res, err = scoring.Mismatched(), nil
		}
		if err != nil {
			return AttemptSummary{}, errors.Wrap(err, "grading answer")
		}
		answers[i].ScoredMark = res.AwardedPoints
		answers[i].IsCorrect = res.IsCorrect
		answers[i].Feedback = res.Feedback
		results = append(results, res)
	}
	if len(answers) > 0 {
		if err := store.CreateAnswers(ctx, answers...); err != nil {
			return AttemptSummary{}, errors.Wrap(err, "creating answers")
		}
	}

	// unanswered questions count for zero
	max, err := maxScore(questions)
	if err != nil {
		return AttemptSummary{}, err
	}
	total := scoring.TotalScore(results)
	percentage := scoring.Percentage(total, max)

	attempt.Status = StatusSubmitted
	attempt.Score = total
	attempt.Percentage = percentage
	attempt.CompletedAt = null.TimeFrom(completedAt)
	if err := store.UpdateAttempt(ctx, attempt); err != nil {
		return AttemptSummary{}, errors.Wrap(err, "updating attempt")
	}

	return AttemptSummary{
		AttemptID:      attempt.ID,
		Score:          NewFixed(total),
		Percentage:     NewFixed(percentage),
		TotalQuestions: len(questions),
		TotalAnswers:   len(answers),
	}, nil
}

// newAnswers validates the request against the test's questions and returns the answers to grade.
func newAnswers(attempt Attempt, questions []Question, req SubmitRequest) ([]StudentAnswer, error) {
	byID := questionsByID(questions)
	answers := make([]StudentAnswer, 0, len(req.Answers))
	var fields []core.FieldError

	for i, in := range req.Answers {
		prefix := fmt.Sprintf("answers[%d]", i)
		q, ok := byID[in.QuestionID]
		if !ok {
			fields = append(fields, core.FieldError{
				Field: prefix + ".question_id",
				Error: fmt.Sprintf("question %d does not belong to this test", in.QuestionID),
			})
			continue
		}
		for _, id := range in.SelectedOptionIDs {
			if !q.HasOption(id) {
				fields = append(fields, core.FieldError{
					Field: prefix + ".selected_option_ids",
					Error: fmt.Sprintf("option %d does not belong to question %d", id, q.ID),
				})
				break
			}
		}
		if err := checkShape(q, in.Response()); err != nil {
			if _, ok := err.(*scoring.ShapeError); !ok {
				return nil, errors.Wrap(err, "checking answer shape")
			}
			fields = append(fields, core.FieldError{Field: prefix, Error: err.Error()})
		}

		answers = append(answers, StudentAnswer{
			AttemptID:         attempt.ID,
			QuestionID:        q.ID,
			SelectedOptionIDs: scoring.NewOptionSet(in.SelectedOptionIDs...).Sorted(),
			WrittenAnswer:     null.StringFromPtr(in.WrittenAnswer),
		})
	}

	if len(fields) > 0 {
		return nil, core.NewValidationError(nil, fields...)
	}
	return answers, nil
}

// AttemptResult returns the current result of one of the student's attempts.
func (svc *Service) AttemptResult(ctx context.Context, studentID, attemptID int) (AttemptResult, error) {
	attempt, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return AttemptResult{}, errors.Wrap(err, "getting attempt")
	}
	if attempt.StudentID != studentID {
		return AttemptResult{}, errNotYourAttempt
	}

	questions, err := svc.repo.QueryTestQuestions(ctx, attempt.TestID)
	if err != nil {
		return AttemptResult{}, errors.Wrap(err, "querying questions")
	}
	answers, err := svc.repo.QueryAttemptAnswers(ctx, attempt.ID)
	if err != nil {
		return AttemptResult{}, errors.Wrap(err, "querying answers")
	}

	return AttemptResult{
		AttemptID:      attempt.ID,
		TestID:         attempt.TestID,
		Status:         attempt.Status,
		Score:          NewFixed(attempt.Score),
		Percentage:     NewFixed(attempt.Percentage),
		CompletedAt:    attempt.CompletedAt,
		TotalQuestions: len(questions),
		TotalAnswers:   len(answers),
	}, nil
}

// AvailableTests returns the tests assigned to the student's courses.
func (svc *Service) AvailableTests(ctx context.Context, studentID int) ([]TestSummary, error) {
	tests, err := svc.repo.QueryAvailableTests(ctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying available tests")
	}
	if tests == nil {
		tests = []TestSummary{}
	}
	return tests, nil
}

// TestResults returns the submitted attempts of one of the teacher's tests, newest first unless ordered otherwise.
// Orderings on unknown fields are ignored.
func (svc *Service) TestResults(ctx context.Context, teacherID, testID int, orderings ...core.DBOrdering) ([]AttemptRow, error) {
	test, err := svc.repo.GetTest(ctx, testID)
	if err != nil {
		return nil, errors.Wrap(err, "getting test")
	}
	if test.TeacherID != teacherID {
		return nil, errNotYourTest
	}

	questions, err := svc.repo.QueryTestQuestions(ctx, test.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	attempts, err := svc.repo.QuerySubmittedAttempts(ctx, test.ID, core.FilterOrderings(orderings, ResultOrderFields)...)
	if err != nil {
		return nil, errors.Wrap(err, "querying submitted attempts")
	}

	max, err := maxScore(questions)
	if err != nil {
		return nil, err
	}
	rows := make([]AttemptRow, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, AttemptRow{
			AttemptID:   a.ID,
			StudentID:   a.StudentID,
			StudentName: a.StudentName,
			Score:       NewFixed(a.Score),
			MaxScore:    NewFixed(max),
			Percentage:  NewFixed(a.Percentage),
			CompletedAt: a.CompletedAt,
		})
	}
	return rows, nil
}

// AttemptDetails returns every question of the attempt's test along with the student's graded answers.
func (svc *Service) AttemptDetails(ctx context.Context, teacherID, attemptID int) (AttemptDetails, error) {
	attempt, err := svc.repo.GetStudentAttempt(ctx, attemptID)
	if err != nil {
		return AttemptDetails{}, errors.Wrap(err, "getting attempt")
	}
	test, err := svc.repo.GetTest(ctx, attempt.TestID)
	if err != nil {
		return AttemptDetails{}, errors.Wrap(err, "getting test")
	}
	if test.TeacherID != teacherID {
		return AttemptDetails{}, errNotYourTest
	}

	questions, err := svc.repo.QueryTestQuestions(ctx, test.ID)
	if err != nil {
		return AttemptDetails{}, errors.Wrap(err, "querying questions")
	}
	answers, err := svc.repo.QueryAttemptAnswers(ctx, attempt.ID)
	if err != nil {
		return AttemptDetails{}, errors.Wrap(err, "querying answers")
	}
	max, err := maxScore(questions)
	if err != nil {
		return AttemptDetails{}, err
	}
	answersByQuestion := make(map[int]StudentAnswer, len(answers))
	for _, ans := range answers {
		answersByQuestion[ans.QuestionID] = ans
	}

	details := AttemptDetails{
		AttemptID:   attempt.ID,
		TestID:      test.ID,
		TestTitle:   test.Title,
		StudentID:   attempt.StudentID,
		StudentName: attempt.StudentName,
		Score:       NewFixed(attempt.Score),
		MaxScore:    NewFixed(max),
		Percentage:  NewFixed(attempt.Percentage),
		StartedAt:   attempt.StartedAt,
		CompletedAt: attempt.CompletedAt,
		Questions:   make([]AnswerDetails, 0, len(questions)),
	}
	for _, q := range questions {
		ad := AnswerDetails{
			QuestionID:      q.ID,
			Prompt:          q.Text,
			Kind:            KindLabel(q),
			Score:           NewFixed(decimal.Zero),
			MaxScore:        NewFixed(q.Points),
			SelectedAnswers: []OptionView{},
			CorrectAnswers:  []OptionView{},
		}
		if ans, ok := answersByQuestion[q.ID]; ok {
			ad.Score = NewFixed(ans.ScoredMark)
			ad.IsCorrect = ans.IsCorrect
			ad.Feedback = ans.Feedback
			ad.WrittenAnswer = ans.WrittenAnswer.String
			selected := scoring.NewOptionSet(ans.SelectedOptionIDs...)
			for _, opt := range q.Options {
				if selected.Has(opt.ID) {
					ad.SelectedAnswers = append(ad.SelectedAnswers, OptionView{ID: opt.ID, Text: opt.Text})
				}
			}
		}
		for _, opt := range q.CorrectOptions() {
			ad.CorrectAnswers = append(ad.CorrectAnswers, OptionView{ID: opt.ID, Text: opt.Text})
		}
		details.Questions = append(details.Questions, ad)
	}
	return details, nil
}

func questionsByID(questions []Question) map[int]Question {
	byID := make(map[int]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return byID
}

// maxScore is the sum of every question's points, answered or not.
// Questions the scoring engine does not grade still count.
func maxScore(questions []Question) (decimal.Decimal, error) {
	specs := make([]scoring.QuestionSpec, 0, len(questions))
	ungraded := decimal.Zero
	for _, q := range questions {
		spec, ok, err := Spec(q)
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "resolving question")
		}
		if !ok {
			ungraded = ungraded.Add(q.Points)
			continue
		}
		specs = append(specs, spec)
	}
	return scoring.MaxScore(specs).Add(ungraded).Round(scoring.Places), nil
}
