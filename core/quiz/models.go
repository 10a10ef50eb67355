package quiz

import (
	"bytes"
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nazorat/core/scoring"
)

// Question types, as stored.
const (
	TypeOneChoice      = "OC"
	TypeMultipleChoice = "MC"
	TypeOrdering       = "ORD"
	TypeMatching       = "MAT"
	TypeWritten        = "WR"
)

// Answer kinds of written questions.
const (
	AnswerKindNumeric = "numeric"
	AnswerKindText    = "text"
)

// Attempt statuses
const (
	StatusStarted   = "started"
	StatusSubmitted = "submitted"
)

type Course struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

type Test struct {
	ID        int       `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	TeacherID int       `json:"teacher_id" db:"teacher_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

type Question struct {
	ID     int             `db:"id"`
	TestID int             `db:"test_id"`
	Text   string          `db:"text"`
	Type   string          `db:"question_type"`
	Points decimal.Decimal `db:"points"`
	// PartialCredit grades multiple choice questions per option.
	PartialCredit bool `db:"partial_credit"`
	// CaseSensitive applies to written text answers.
	CaseSensitive bool            `db:"case_sensitive"`
	Tolerance     decimal.Decimal `db:"tolerance"`
	// AnswerKind forces a written question to be graded as numeric or text.
	// When null, the kind is inferred from the correct answer.
	AnswerKind null.String `db:"answer_kind"`
	Position   int         `db:"position"`

	Options []Option `db:"-"`
}

// CorrectOptions returns the question's correct options, in stored order.
func (q Question) CorrectOptions() []Option {
	var opts []Option
	for _, opt := range q.Options {
		if opt.IsCorrect {
			opts = append(opts, opt)
		}
	}
	return opts
}

// HasOption reports whether id is one of the question's options.
func (q Question) HasOption(id int) bool {
	for _, opt := range q.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

type Option struct {
	ID         int    `json:"id" db:"id"`
	QuestionID int    `json:"-" db:"question_id"`
	Text       string `json:"text" db:"text"`
	IsCorrect  bool   `json:"-" db:"is_correct"`
	Position   int    `json:"-" db:"position"`
}

type Attempt struct {
	ID          int             `json:"id" db:"id"`
	StudentID   int             `json:"student_id" db:"student_id"`
	TestID      int             `json:"test_id" db:"test_id"`
	Status      string          `json:"status" db:"status"`
	Score       decimal.Decimal `json:"-" db:"score"`
	Percentage  decimal.Decimal `json:"-" db:"percentage"`
	StartedAt   time.Time       `json:"started_at" db:"started_at"`     // UTC
	CompletedAt null.Time       `json:"completed_at" db:"completed_at"` // UTC
}

func (a Attempt) IsSubmitted() bool {
	return a.Status == StatusSubmitted
}

// StudentAnswer is the stored, graded answer to one question of an attempt.
type StudentAnswer struct {
	ID                int             `db:"id"`
	AttemptID         int             `db:"attempt_id"`
	QuestionID        int             `db:"question_id"`
	SelectedOptionIDs []int           `db:"-"`
	WrittenAnswer     null.String     `db:"written_answer"`
	ScoredMark        decimal.Decimal `db:"scored_mark"`
	IsCorrect         bool            `db:"is_correct"`
	Feedback          string          `db:"feedback"`
}

// Response returns the answer in the shape the scoring engine grades.
func (sa StudentAnswer) Response() scoring.Response {
	r := scoring.Response{SelectedOptionIDs: sa.SelectedOptionIDs}
	if sa.WrittenAnswer.Valid {
		text := sa.WrittenAnswer.String
		r.Text = &text
	}
	return r
}

// Fixed is a decimal rendered in JSON as a string with exactly 2 decimal places, eg. "40.00".
type Fixed decimal.Decimal

func NewFixed(d decimal.Decimal) Fixed {
	return Fixed(d.Round(scoring.Places))
}

func (f Fixed) Decimal() decimal.Decimal {
	return decimal.Decimal(f)
}

func (f Fixed) String() string {
	return decimal.Decimal(f).StringFixed(scoring.Places)
}

func (f Fixed) MarshalJSON() ([]byte, error) {
	return []byte(`"` + f.String() + `"`), nil
}

func (f *Fixed) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(bytes.TrimSpace(data)); err != nil {
		return err
	}
	*f = Fixed(d)
	return nil
}

// AttemptSummary is the outcome of grading a whole attempt.
type AttemptSummary struct {
	AttemptID      int   `json:"attempt_id"`
	Score          Fixed `json:"score"`
	Percentage     Fixed `json:"percentage"`
	TotalQuestions int   `json:"total_questions"`
	TotalAnswers   int   `json:"total_answers"`
}

// AnswerInput is one answer of a SubmitRequest.
type AnswerInput struct {
	QuestionID        int   `json:"question_id" validate:"required,gt=0"`
	SelectedOptionIDs []int `json:"selected_option_ids" validate:"omitempty,dive,gt=0"`
	// WrittenAnswer is nil when the field was not sent.
	WrittenAnswer *string `json:"written_answer"`
}

func (ai AnswerInput) Response() scoring.Response {
	return scoring.Response{SelectedOptionIDs: ai.SelectedOptionIDs, Text: ai.WrittenAnswer}
}

type SubmitRequest struct {
	Answers []AnswerInput `json:"answers" validate:"required,dive"`
}

// Views

// OptionView is an answer option stripped of its correctness.
type OptionView struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

type QuestionView struct {
	ID      int          `json:"id"`
	Text    string       `json:"text"`
	Type    string       `json:"question_type"`
	Points  Fixed        `json:"mark"`
	Options []OptionView `json:"answer_options"`
	// InputKind is set on written questions only: numeric or text.
	InputKind string `json:"input_kind,omitempty"`
}

type StartedAttempt struct {
	AttemptID int            `json:"attempt_id"`
	TestID    int            `json:"test_id"`
	Title     string         `json:"title"`
	StartedAt time.Time      `json:"started_at"`
	Questions []QuestionView `json:"questions"`
}

type TestSummary struct {
	ID            int       `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	TeacherID     int       `json:"teacher_id" db:"teacher_id"`
	QuestionCount int       `json:"question_count" db:"question_count"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type AttemptResult struct {
	AttemptID      int       `json:"attempt_id"`
	TestID         int       `json:"test_id"`
	Status         string    `json:"status"`
	Score          Fixed     `json:"score"`
	Percentage     Fixed     `json:"percentage"`
	CompletedAt    null.Time `json:"completed_at"`
	TotalQuestions int       `json:"total_questions"`
	TotalAnswers   int       `json:"total_answers"`
}

// AttemptRow is one line of a teacher's test results.
type AttemptRow struct {
	AttemptID   int       `json:"attempt_id"`
	StudentID   int       `json:"student_id"`
	StudentName string    `json:"student_name"`
	Score       Fixed     `json:"score"`
	MaxScore    Fixed     `json:"max_score"`
	Percentage  Fixed     `json:"percentage"`
	CompletedAt null.Time `json:"completed_at"`
}

type AnswerDetails struct {
	QuestionID      int          `json:"question_id"`
	Prompt          string       `json:"prompt"`
	Kind            string       `json:"question_type"`
	Score           Fixed        `json:"score"`
	MaxScore        Fixed        `json:"max_score"`
	IsCorrect       bool         `json:"is_correct"`
	Feedback        string       `json:"feedback,omitempty"`
	WrittenAnswer   string       `json:"written_answer"`
	SelectedAnswers []OptionView `json:"selected_answers"`
	CorrectAnswers  []OptionView `json:"correct_answers"`
}

type AttemptDetails struct {
	AttemptID   int             `json:"attempt_id"`
	TestID      int             `json:"test_id"`
	TestTitle   string          `json:"test_title"`
	StudentID   int             `json:"student_id"`
	StudentName string          `json:"student_name"`
	Score       Fixed           `json:"score"`
	MaxScore    Fixed           `json:"max_score"`
	Percentage  Fixed           `json:"percentage"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt null.Time       `json:"completed_at"`
	Questions   []AnswerDetails `json:"questions"`
}
