// Package scoring grades a single answer against its question and aggregates the results.
// Everything here is pure: safe to call concurrently for any number of attempts.
package scoring

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidQuestionSpec is returned when a question cannot be graded as configured.
var ErrInvalidQuestionSpec = errors.New("invalid question spec")

// Kind is the closed set of gradable question kinds.
type Kind int

const (
	KindSingleChoice Kind = iota + 1
	KindMultipleChoice
	KindShortAnswer
	KindComputational
)

func (k Kind) String() string {
	switch k {
	case KindSingleChoice:
		return "single"
	case KindMultipleChoice:
		return "multiple"
	case KindShortAnswer:
		return "short"
	case KindComputational:
		return "numeric"
	default:
		return "unknown"
	}
}

// IsChoice reports whether answers to this kind are option selections.
func (k Kind) IsChoice() bool {
	return k == KindSingleChoice || k == KindMultipleChoice
}

// QuestionSpec is the grading contract of one question.
// It is implemented by ChoiceSpec, ShortAnswerSpec and ComputationalSpec only.
type QuestionSpec interface {
	QuestionID() int
	MaxPoints() decimal.Decimal
	Kind() Kind

	sealed()
}

type ChoiceSpec struct {
	ID               int
	Points           decimal.Decimal
	CorrectOptionIDs OptionSet
	// Partial grants per-option credit on multiple choice questions.
	Partial bool

	kind Kind
}

type ShortAnswerSpec struct {
	ID              int
	Points          decimal.Decimal
	AcceptedAnswers []string
	CaseSensitive   bool
}

type ComputationalSpec struct {
	ID             int
	Points         decimal.Decimal
	ExpectedAnswer decimal.Decimal
	Tolerance      decimal.Decimal
}

var (
	_ QuestionSpec = ChoiceSpec{}
	_ QuestionSpec = ShortAnswerSpec{}
	_ QuestionSpec = ComputationalSpec{}
)

func (s ChoiceSpec) QuestionID() int            { return s.ID }
func (s ChoiceSpec) MaxPoints() decimal.Decimal { return s.Points }
func (s ChoiceSpec) Kind() Kind                 { return s.kind }
func (ChoiceSpec) sealed()                      {}

func (s ShortAnswerSpec) QuestionID() int            { return s.ID }
func (s ShortAnswerSpec) MaxPoints() decimal.Decimal { return s.Points }
func (ShortAnswerSpec) Kind() Kind                   { return KindShortAnswer }
func (ShortAnswerSpec) sealed()                      {}

func (s ComputationalSpec) QuestionID() int            { return s.ID }
func (s ComputationalSpec) MaxPoints() decimal.Decimal { return s.Points }
func (ComputationalSpec) Kind() Kind                   { return KindComputational }
func (ComputationalSpec) sealed()                      {}

func NewSingleChoice(id int, points interface{}, correctOptionIDs ...int) (ChoiceSpec, error) {
	pts, err := nonNegative(points, "points")
	if err != nil {
		return ChoiceSpec{}, err
	}
	return ChoiceSpec{ID: id, Points: pts, CorrectOptionIDs: NewOptionSet(correctOptionIDs...), kind: KindSingleChoice}, nil
}

func NewMultipleChoice(id int, points interface{}, partial bool, correctOptionIDs ...int) (ChoiceSpec, error) {
	pts, err := nonNegative(points, "points")
	if err != nil {
		return ChoiceSpec{}, err
	}
	return ChoiceSpec{
		ID:               id,
		Points:           pts,
		CorrectOptionIDs: NewOptionSet(correctOptionIDs...),
		Partial:          partial,
		kind:             KindMultipleChoice,
	}, nil
}

func NewShortAnswer(id int, points interface{}, caseSensitive bool, acceptedAnswers ...string) (ShortAnswerSpec, error) {
	pts, err := nonNegative(points, "points")
	if err != nil {
		return ShortAnswerSpec{}, err
	}
	accepted := make([]string, len(acceptedAnswers))
	copy(accepted, acceptedAnswers)
	return ShortAnswerSpec{ID: id, Points: pts, AcceptedAnswers: accepted, CaseSensitive: caseSensitive}, nil
}

func NewComputational(id int, points, expected, tolerance interface{}) (ComputationalSpec, error) {
	pts, err := nonNegative(points, "points")
	if err != nil {
		return ComputationalSpec{}, err
	}
	exp, err := ToDecimal(expected)
	if err != nil {
		return ComputationalSpec{}, errors.Wrap(ErrInvalidQuestionSpec, "expected answer: "+err.Error())
	}
	tol, err := nonNegative(tolerance, "tolerance")
	if err != nil {
		return ComputationalSpec{}, err
	}
	return ComputationalSpec{ID: id, Points: pts, ExpectedAnswer: exp, Tolerance: tol}, nil
}

func nonNegative(v interface{}, field string) (decimal.Decimal, error) {
	d, err := ToDecimal(v)
	if err != nil {
		return decimal.Zero, errors.Wrap(ErrInvalidQuestionSpec, field+": "+err.Error())
	}
	if d.IsNegative() {
		return decimal.Zero, errors.Wrap(ErrInvalidQuestionSpec, field+" must not be negative")
	}
	return d, nil
}

// ToDecimal converts an integer, float, decimal string or decimal.Decimal into an exact decimal.
// Floats go through their shortest round-trip representation, so 0.1 becomes exactly 0.1.
func ToDecimal(v interface{}) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, errors.New("nil decimal")
		}
		return *n, nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case uint:
		return decimal.NewFromString(strconv.FormatUint(uint64(n), 10))
	case float32:
		return floatToDecimal(float64(n), 32)
	case float64:
		return floatToDecimal(n, 64)
	case string:
		return ParseDecimal(n)
	default:
		return decimal.Zero, errors.Errorf("unsupported numeric type %T", v)
	}
}

// ParseDecimal parses a trimmed decimal string such as "3.14", "-2" or "1e-3".
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errors.New("empty number")
	}
	return decimal.NewFromString(s)
}

func floatToDecimal(f float64, bitSize int) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, errors.Errorf("non-finite number %v", f)
	}
	return decimal.NewFromString(strconv.FormatFloat(f, 'g', -1, bitSize))
}
