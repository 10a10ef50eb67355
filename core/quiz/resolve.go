package quiz

import (
	"github.com/pkg/errors"

	"github.com/trezcool/nazorat/core/scoring"
)

// Spec resolves the question into the scoring contract it is graded with.
// ok is false for question types the scoring engine does not grade (ordering, matching).
// This is the only place stored question types are mapped to scoring kinds.
func Spec(q Question) (spec scoring.QuestionSpec, ok bool, err error) {
	switch q.Type {
	case TypeOneChoice:
		spec, err = scoring.NewSingleChoice(q.ID, q.Points, correctIDs(q)...)
	case TypeMultipleChoice:
		spec, err = scoring.NewMultipleChoice(q.ID, q.Points, q.PartialCredit, correctIDs(q)...)
	case TypeWritten:
		if WrittenKind(q) == AnswerKindNumeric {
			spec, err = numericSpec(q)
		} else {
			spec, err = textSpec(q)
		}
	default:
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "question %d", q.ID)
	}
	return spec, true, nil
}

// WrittenKind returns the answer kind of a written question: numeric or text.
// An explicit AnswerKind wins; otherwise the question is numeric iff its first correct answer parses as a number.
func WrittenKind(q Question) string {
	if q.AnswerKind.Valid {
		switch q.AnswerKind.String {
		case AnswerKindNumeric, AnswerKindText:
			return q.AnswerKind.String
		}
	}
	if correct := q.CorrectOptions(); len(correct) > 0 {
		if _, err := scoring.ParseDecimal(correct[0].Text); err == nil {
			return AnswerKindNumeric
		}
	}
	return AnswerKindText
}

// KindLabel is the question kind shown to teachers: single, multiple, numeric, short or the raw type.
func KindLabel(q Question) string {
	switch q.Type {
	case TypeOneChoice:
		return scoring.KindSingleChoice.String()
	case TypeMultipleChoice:
		return scoring.KindMultipleChoice.String()
	case TypeWritten:
		if WrittenKind(q) == AnswerKindNumeric {
			return scoring.KindComputational.String()
		}
		return scoring.KindShortAnswer.String()
	default:
		return q.Type
	}
}

// GradeAnswer grades one response to the question.
// Non numeric text sent to a numeric question is graded as a short answer against the correct answers' text.
// Questions that cannot be graded get a zero result.
func GradeAnswer(q Question, r scoring.Response) (scoring.ScoreResult, error) {
	spec, ok, err := Spec(q)
	if err != nil {
		return scoring.ScoreResult{}, err
	}
	if !ok {
		return scoring.Unsupported(), nil
	}

	res, err := scoring.Grade(spec, r)
	if errors.Cause(err) == scoring.ErrNotNumeric {
		fallback, fErr := textSpec(q)
		if fErr != nil {
			return scoring.ScoreResult{}, errors.Wrapf(fErr, "question %d", q.ID)
		}
		return scoring.Grade(fallback, r)
	}
	return res, err
}

// checkShape verifies that the response shape fits the question kind.
func checkShape(q Question, r scoring.Response) error {
	spec, ok, err := Spec(q)
	if err != nil || !ok {
		return err
	}
	return scoring.CheckShape(spec.Kind(), r)
}

func correctIDs(q Question) []int {
	correct := q.CorrectOptions()
	ids := make([]int, 0, len(correct))
	for _, opt := range correct {
		ids = append(ids, opt.ID)
	}
	return ids
}

func textSpec(q Question) (scoring.ShortAnswerSpec, error) {
	correct := q.CorrectOptions()
	accepted := make([]string, 0, len(correct))
	for _, opt := range correct {
		accepted = append(accepted, opt.Text)
	}
	return scoring.NewShortAnswer(q.ID, q.Points, q.CaseSensitive, accepted...)
}

// numericSpec grades against the first correct answer.
// A forced numeric question without a numeric answer falls back to text.
func numericSpec(q Question) (scoring.QuestionSpec, error) {
	correct := q.CorrectOptions()
	if len(correct) == 0 {
		return textSpec(q)
	}
	expected, err := scoring.ParseDecimal(correct[0].Text)
	if err != nil {
		return textSpec(q)
	}
	return scoring.NewComputational(q.ID, q.Points, expected, q.Tolerance)
}
