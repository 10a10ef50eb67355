package quiz

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/nazorat/core"
)

var (
	uniqueQuestionsTag  = "uniquequestions"
	uniqueQuestionsText = "each question can only be answered once"

	oneAnswerShapeTag  = "oneanswershape"
	oneAnswerShapeText = "send either selected options or a written answer, not both"
)

// InitValidators registers the quiz validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(submitRequestStructValidation, SubmitRequest{})
	core.RegisterCustomTranslation(validate, translator, uniqueQuestionsTag, uniqueQuestionsText)

	validate.RegisterStructValidation(answerInputStructValidation, AnswerInput{})
	core.RegisterCustomTranslation(validate, translator, oneAnswerShapeTag, oneAnswerShapeText)
}

// submitRequestStructValidation rejects requests answering the same question twice.
func submitRequestStructValidation(sl validator.StructLevel) {
	req, ok := sl.Current().Interface().(SubmitRequest)
	if !ok {
		return
	}
	seen := make(map[int]struct{}, len(req.Answers))
	for _, ans := range req.Answers {
		if _, dup := seen[ans.QuestionID]; dup {
			sl.ReportError(req.Answers, "answers", "Answers", uniqueQuestionsTag, "")
			return
		}
		seen[ans.QuestionID] = struct{}{}
	}
}

// answerInputStructValidation rejects answers carrying both selected options and a written answer.
func answerInputStructValidation(sl validator.StructLevel) {
	ans, ok := sl.Current().Interface().(AnswerInput)
	if !ok {
		return
	}
	if len(ans.SelectedOptionIDs) > 0 && ans.WrittenAnswer != nil && strings.TrimSpace(*ans.WrittenAnswer) != "" {
		sl.ReportError(ans.WrittenAnswer, "written_answer", "WrittenAnswer", oneAnswerShapeTag, "")
	}
}
