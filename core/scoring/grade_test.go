package scoring

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func strPtr(s string) *string { return &s }

func TestGradeSingleChoice(t *testing.T) {
	q, err := NewSingleChoice(1, 2, 10)
	require.NoError(t, err)

	tests := []struct {
		name     string
		selected []int
		want     bool
	}{
		{name: "correct singleton", selected: []int{10}, want: true},
		{name: "duplicated correct id", selected: []int{10, 10}, want: true},
		{name: "empty selection", selected: nil},
		{name: "wrong option", selected: []int{11}},
		{name: "superset", selected: []int{10, 11}},
		{name: "disjoint", selected: []int{12, 13}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GradeSingleChoice(q, tt.selected)
			assert.Equal(t, tt.want, got.IsCorrect)
			if tt.want {
				assert.True(t, got.AwardedPoints.Equal(dec("2")))
			} else {
				assert.True(t, got.AwardedPoints.IsZero())
			}
		})
	}
}

func TestGradeMultipleChoiceExact(t *testing.T) {
	q, err := NewMultipleChoice(1, 3, false, 1, 2, 3)
	require.NoError(t, err)

	tests := []struct {
		name     string
		selected []int
		want     bool
	}{
		{name: "same set", selected: []int{1, 2, 3}, want: true},
		{name: "order irrelevant", selected: []int{3, 1, 2}, want: true},
		{name: "subset", selected: []int{1, 2}},
		{name: "superset", selected: []int{1, 2, 3, 4}},
		{name: "empty", selected: []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GradeMultipleChoiceExact(q, tt.selected)
			assert.Equal(t, tt.want, got.IsCorrect)
			assert.Equal(t, NewOptionSet(tt.selected...).Equal(q.CorrectOptionIDs), got.IsCorrect)
			if !tt.want {
				assert.True(t, got.AwardedPoints.IsZero())
			}
		})
	}
}

func TestGradeMultipleChoicePartial(t *testing.T) {
	q, err := NewMultipleChoice(1, 4, true, 1, 2, 3, 4)
	require.NoError(t, err)

	tests := []struct {
		name         string
		selected     []int
		wantPoints   string
		wantCorrect  bool
		wantFeedback string
	}{
		{name: "all correct", selected: []int{1, 2, 3, 4}, wantPoints: "4", wantCorrect: true},
		{name: "two hits one miss", selected: []int{1, 2, 9}, wantPoints: "1", wantFeedback: FeedbackPartial},
		{name: "one hit", selected: []int{3}, wantPoints: "1", wantFeedback: FeedbackPartial},
		{name: "more misses than hits", selected: []int{1, 7, 8, 9}, wantPoints: "0"},
		{name: "nothing selected", selected: nil, wantPoints: "0"},
		{name: "all hits plus miss", selected: []int{1, 2, 3, 4, 5}, wantPoints: "3", wantFeedback: FeedbackPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GradeMultipleChoicePartial(q, tt.selected)
			assert.Equal(t, tt.wantCorrect, got.IsCorrect)
			assert.Equal(t, tt.wantFeedback, got.Feedback)
			assert.Truef(t, got.AwardedPoints.Equal(dec(tt.wantPoints)), "awarded %s, want %s", got.AwardedPoints, tt.wantPoints)
		})
	}

	t.Run("thirds are rounded", func(t *testing.T) {
		q, err := NewMultipleChoice(2, 1, true, 1, 2, 3)
		require.NoError(t, err)
		got := GradeMultipleChoicePartial(q, []int{1})
		assert.Equal(t, "0.33", got.AwardedPoints.StringFixed(Places))
		got = GradeMultipleChoicePartial(q, []int{1, 2})
		assert.Equal(t, "0.67", got.AwardedPoints.StringFixed(Places))
	})

	t.Run("no correct options configured", func(t *testing.T) {
		q, err := NewMultipleChoice(3, 5, true)
		require.NoError(t, err)
		got := GradeMultipleChoicePartial(q, []int{1})
		assert.False(t, got.IsCorrect)
		assert.True(t, got.AwardedPoints.IsZero())
		assert.Equal(t, FeedbackNoCorrectOptions, got.Feedback)
	})

	t.Run("award stays within bounds", func(t *testing.T) {
		correct := []int{1, 2, 3}
		q, err := NewMultipleChoice(4, "2.5", true, correct...)
		require.NoError(t, err)
		pool := []int{1, 2, 3, 4, 5, 6}
		// every subset of the pool
		for mask := 0; mask < 1<<len(pool); mask++ {
			var sel []int
			for i, id := range pool {
				if mask&(1<<i) != 0 {
					sel = append(sel, id)
				}
			}
			got := GradeMultipleChoicePartial(q, sel)
			assert.False(t, got.AwardedPoints.IsNegative(), "selection %v", sel)
			assert.True(t, got.AwardedPoints.LessThanOrEqual(q.Points), "selection %v", sel)
		}
	})
}

func TestGradeShortAnswer(t *testing.T) {
	insensitive, err := NewShortAnswer(1, 1, false, "Photosynthesis")
	require.NoError(t, err)
	sensitive, err := NewShortAnswer(2, 1, true, "Photosynthesis")
	require.NoError(t, err)

	tests := []struct {
		name         string
		q            ShortAnswerSpec
		text         *string
		want         bool
		wantFeedback string
	}{
		{name: "exact", q: insensitive, text: strPtr("Photosynthesis"), want: true},
		{name: "untrimmed lower", q: insensitive, text: strPtr(" photosynthesis "), want: true},
		{name: "upper", q: insensitive, text: strPtr("PHOTOSYNTHESIS"), want: true},
		{name: "wrong word", q: insensitive, text: strPtr("respiration")},
		{name: "no fuzzy match", q: insensitive, text: strPtr("photosynthesi")},
		{name: "case sensitive match", q: sensitive, text: strPtr("  Photosynthesis"), want: true},
		{name: "case sensitive mismatch", q: sensitive, text: strPtr("photosynthesis")},
		{name: "empty", q: insensitive, text: strPtr(""), wantFeedback: FeedbackEmptyAnswer},
		{name: "blank", q: insensitive, text: strPtr("   "), wantFeedback: FeedbackEmptyAnswer},
		{name: "absent", q: insensitive, text: nil, wantFeedback: FeedbackEmptyAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GradeShortAnswer(tt.q, tt.text)
			assert.Equal(t, tt.want, got.IsCorrect)
			assert.Equal(t, tt.wantFeedback, got.Feedback)
			if !tt.want {
				assert.True(t, got.AwardedPoints.IsZero())
			}
		})
	}
}

func TestGradeComputational(t *testing.T) {
	q, err := NewComputational(1, 1, 100, 0.5)
	require.NoError(t, err)

	tests := []struct {
		name   string
		actual string
		want   bool
	}{
		{name: "exact", actual: "100", want: true},
		{name: "lower boundary", actual: "99.5", want: true},
		{name: "upper boundary", actual: "100.5", want: true},
		{name: "below", actual: "99.49"},
		{name: "above", actual: "100.51"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual := dec(tt.actual)
			got := GradeComputational(q, &actual)
			assert.Equal(t, tt.want, got.IsCorrect)
		})
	}

	t.Run("missing answer", func(t *testing.T) {
		got := GradeComputational(q, nil)
		assert.False(t, got.IsCorrect)
		assert.True(t, got.AwardedPoints.IsZero())
		assert.Equal(t, FeedbackMissingNumeric, got.Feedback)
	})

	t.Run("float tolerance is exact", func(t *testing.T) {
		q, err := NewComputational(2, 1, 0.3, 0.1)
		require.NoError(t, err)
		actual := dec("0.2")
		assert.True(t, GradeComputational(q, &actual).IsCorrect)
	})

	t.Run("pi to two places", func(t *testing.T) {
		q, err := NewComputational(3, 6, "3.14159", "0.01")
		require.NoError(t, err)
		got, err := Grade(q, Response{Text: strPtr("3.14")})
		require.NoError(t, err)
		assert.True(t, got.IsCorrect)
		assert.True(t, got.AwardedPoints.Equal(dec("6")))
	})
}

func TestGrade(t *testing.T) {
	single, _ := NewSingleChoice(1, 1, 1)
	short, _ := NewShortAnswer(2, 1, false, "yes")
	numeric, _ := NewComputational(3, 1, 2, 0)

	t.Run("dispatches by kind", func(t *testing.T) {
		got, err := Grade(single, Response{SelectedOptionIDs: []int{1}})
		require.NoError(t, err)
		assert.True(t, got.IsCorrect)

		got, err = Grade(short, Response{Text: strPtr("YES")})
		require.NoError(t, err)
		assert.True(t, got.IsCorrect)

		got, err = Grade(numeric, Response{Text: strPtr(" 2.0 ")})
		require.NoError(t, err)
		assert.True(t, got.IsCorrect)
	})

	t.Run("text sent to a choice question", func(t *testing.T) {
		_, err := Grade(single, Response{Text: strPtr("1")})
		shapeErr, ok := err.(*ShapeError)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, 1, shapeErr.QuestionID)
	})

	t.Run("blank text sent to a choice question", func(t *testing.T) {
		_, err := Grade(single, Response{SelectedOptionIDs: []int{1}, Text: strPtr(" ")})
		assert.NoError(t, err)
	})

	t.Run("selections sent to a written question", func(t *testing.T) {
		_, err := Grade(short, Response{SelectedOptionIDs: []int{5}})
		shapeErr, ok := err.(*ShapeError)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, 2, shapeErr.QuestionID)
	})

	t.Run("non numeric text", func(t *testing.T) {
		_, err := Grade(numeric, Response{Text: strPtr("two")})
		assert.Equal(t, ErrNotNumeric, errors.Cause(err))
	})

	t.Run("absent numeric answer", func(t *testing.T) {
		got, err := Grade(numeric, Response{})
		require.NoError(t, err)
		assert.Equal(t, FeedbackMissingNumeric, got.Feedback)
	})

	t.Run("nil spec", func(t *testing.T) {
		_, err := Grade(nil, Response{})
		assert.Equal(t, ErrInvalidQuestionSpec, errors.Cause(err))
	})
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
		want error
	}{
		{name: "negative points", fn: func() error { _, err := NewSingleChoice(1, -1, 1); return err }, want: ErrInvalidQuestionSpec},
		{name: "negative tolerance", fn: func() error { _, err := NewComputational(1, 1, 1, "-0.1"); return err }, want: ErrInvalidQuestionSpec},
		{name: "bad expected answer", fn: func() error { _, err := NewComputational(1, 1, "abc", 0); return err }, want: ErrInvalidQuestionSpec},
		{name: "bad points type", fn: func() error { _, err := NewShortAnswer(1, true, false); return err }, want: ErrInvalidQuestionSpec},
		{name: "zero points", fn: func() error { _, err := NewMultipleChoice(1, 0, false, 1); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, errors.Cause(err))
		})
	}
}

func TestToDecimal(t *testing.T) {
	tests := []struct {
		name    string
		in      interface{}
		want    string
		wantErr bool
	}{
		{name: "int", in: 3, want: "3"},
		{name: "int64", in: int64(-7), want: "-7"},
		{name: "float 0.1", in: 0.1, want: "0.1"},
		{name: "float32", in: float32(0.25), want: "0.25"},
		{name: "string", in: " 3.14159 ", want: "3.14159"},
		{name: "decimal", in: dec("1.5"), want: "1.5"},
		{name: "empty string", in: "  ", wantErr: true},
		{name: "not a number", in: "abc", wantErr: true},
		{name: "bool", in: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToDecimal(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Truef(t, got.Equal(dec(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}
