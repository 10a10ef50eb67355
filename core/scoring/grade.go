package scoring

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Feedback notes
const (
	FeedbackEmptyAnswer      = "empty answer"
	FeedbackMissingNumeric   = "missing numeric answer"
	FeedbackPartial          = "partial"
	FeedbackNoCorrectOptions = "No correct options configured"
	FeedbackUnsupportedKind  = "unsupported question kind"
	FeedbackShapeMismatch    = "answer does not fit the question kind"
)

// Places is the number of decimal places scores are rounded to.
const Places int32 = 2

var (
	// ErrNotNumeric is returned by Grade when a computational question receives text that is not a number.
	// Callers are expected to fall back to short answer grading.
	ErrNotNumeric = errors.New("answer is not a number")
)

// ShapeError reports a response whose shape does not fit the question kind,
// eg. a written answer sent to a choice question.
type ShapeError struct {
	QuestionID int
	Kind       Kind
}

func (e *ShapeError) Error() string {
	if e.Kind.IsChoice() {
		return "question expects selected options, not a written answer"
	}
	return "question expects a written answer, not selected options"
}

// Response is a student's answer to one question.
type Response struct {
	SelectedOptionIDs []int
	// Text is nil when no written answer was sent at all.
	Text *string
}

// ScoreResult is the outcome of grading one answer.
type ScoreResult struct {
	IsCorrect     bool
	AwardedPoints decimal.Decimal
	Feedback      string
}

func correct(points decimal.Decimal) ScoreResult {
	return ScoreResult{IsCorrect: true, AwardedPoints: points}
}

func incorrect(feedback string) ScoreResult {
	return ScoreResult{AwardedPoints: decimal.Zero, Feedback: feedback}
}

// Unsupported is the zero result given to questions the engine cannot grade.
func Unsupported() ScoreResult {
	return incorrect(FeedbackUnsupportedKind)
}

// Mismatched is the zero result given to a stored answer whose shape no longer fits its question,
// eg. selected options kept after the question became a written one.
func Mismatched() ScoreResult {
	return incorrect(FeedbackShapeMismatch)
}

// GradeSingleChoice is correct iff exactly one option was selected and it is a correct option.
func GradeSingleChoice(q ChoiceSpec, selected []int) ScoreResult {
	sel := NewOptionSet(selected...)
	if sel.Len() == 1 && sel.Intersect(q.CorrectOptionIDs) == 1 {
		return correct(q.Points)
	}
	return incorrect("")
}

// GradeMultipleChoiceExact is all-or-nothing: the selection must equal the correct set.
func GradeMultipleChoiceExact(q ChoiceSpec, selected []int) ScoreResult {
	if NewOptionSet(selected...).Equal(q.CorrectOptionIDs) {
		return correct(q.Points)
	}
	return incorrect("")
}

// GradeMultipleChoicePartial awards points/|correct| per hit and takes the same amount per miss,
// clamped to [0, points] and rounded to 2 decimal places.
func GradeMultipleChoicePartial(q ChoiceSpec, selected []int) ScoreResult {
	if q.CorrectOptionIDs.Len() == 0 {
		return incorrect(FeedbackNoCorrectOptions)
	}

	sel := NewOptionSet(selected...)
	hits := decimal.NewFromInt(int64(sel.Intersect(q.CorrectOptionIDs)))
	misses := decimal.NewFromInt(int64(sel.Difference(q.CorrectOptionIDs)))

	perOption := q.Points.Div(decimal.NewFromInt(int64(q.CorrectOptionIDs.Len())))
	awarded := perOption.Mul(hits).Sub(perOption.Mul(misses)).Round(Places)
	awarded = decimal.Max(decimal.Zero, decimal.Min(awarded, q.Points))

	if sel.Equal(q.CorrectOptionIDs) {
		return ScoreResult{IsCorrect: true, AwardedPoints: awarded}
	}
	var feedback string
	if awarded.IsPositive() {
		feedback = FeedbackPartial
	}
	return ScoreResult{AwardedPoints: awarded, Feedback: feedback}
}

// GradeShortAnswer compares the trimmed text against the accepted answers, exact membership only.
func GradeShortAnswer(q ShortAnswerSpec, text *string) ScoreResult {
	var submitted string
	if text != nil {
		submitted = strings.TrimSpace(*text)
	}
	if submitted == "" {
		return incorrect(FeedbackEmptyAnswer)
	}
	if !q.CaseSensitive {
		submitted = strings.ToLower(submitted)
	}
	for _, accepted := range q.AcceptedAnswers {
		accepted = strings.TrimSpace(accepted)
		if !q.CaseSensitive {
			accepted = strings.ToLower(accepted)
		}
		if submitted == accepted {
			return correct(q.Points)
		}
	}
	return incorrect("")
}

// GradeComputational is correct iff |actual - expected| <= |tolerance|.
func GradeComputational(q ComputationalSpec, actual *decimal.Decimal) ScoreResult {
	if actual == nil {
		return incorrect(FeedbackMissingNumeric)
	}
	if actual.Sub(q.ExpectedAnswer).Abs().LessThanOrEqual(q.Tolerance.Abs()) {
		return correct(q.Points)
	}
	return incorrect("")
}

type gradeFunc func(QuestionSpec, Response) (ScoreResult, error)

// graders is the single kind -> grading function table.
var graders = map[Kind]gradeFunc{
	KindSingleChoice: func(spec QuestionSpec, r Response) (ScoreResult, error) {
		return GradeSingleChoice(spec.(ChoiceSpec), r.SelectedOptionIDs), nil
	},
	KindMultipleChoice: func(spec QuestionSpec, r Response) (ScoreResult, error) {
		q := spec.(ChoiceSpec)
		if q.Partial {
			return GradeMultipleChoicePartial(q, r.SelectedOptionIDs), nil
		}
		return GradeMultipleChoiceExact(q, r.SelectedOptionIDs), nil
	},
	KindShortAnswer: func(spec QuestionSpec, r Response) (ScoreResult, error) {
		return GradeShortAnswer(spec.(ShortAnswerSpec), r.Text), nil
	},
	KindComputational: func(spec QuestionSpec, r Response) (ScoreResult, error) {
		if r.Text == nil {
			return GradeComputational(spec.(ComputationalSpec), nil), nil
		}
		actual, err := ParseDecimal(*r.Text)
		if err != nil {
			return ScoreResult{}, errors.Wrapf(ErrNotNumeric, "%q", *r.Text)
		}
		return GradeComputational(spec.(ComputationalSpec), &actual), nil
	},
}

// Grade dispatches the response to the grading function of the question's kind.
// It fails with a *ShapeError when the response shape does not match the kind,
// and with ErrNotNumeric when a computational question receives non-numeric text.
func Grade(spec QuestionSpec, r Response) (ScoreResult, error) {
	if spec == nil {
		return ScoreResult{}, errors.Wrap(ErrInvalidQuestionSpec, "nil spec")
	}
	kind := spec.Kind()
	grade, ok := graders[kind]
	if !ok {
		return ScoreResult{}, errors.Wrapf(ErrInvalidQuestionSpec, "question %d: unknown kind", spec.QuestionID())
	}
	if err := CheckShape(kind, r); err != nil {
		e := err.(*ShapeError)
		e.QuestionID = spec.QuestionID()
		return ScoreResult{}, e
	}
	return grade(spec, r)
}

// CheckShape verifies that choice kinds only get selections and written kinds only get text.
// An empty written answer on a choice question is tolerated.
func CheckShape(kind Kind, r Response) error {
	if kind.IsChoice() {
		if r.Text != nil && strings.TrimSpace(*r.Text) != "" {
			return &ShapeError{Kind: kind}
		}
		return nil
	}
	if len(r.SelectedOptionIDs) > 0 {
		return &ShapeError{Kind: kind}
	}
	return nil
}
