package app

import (
	"math"

	"quiz-results-service/internal/domain"
)

// ParseSubmission validates the untyped payload of a submitted quiz result
// and converts it into a typed Submission. It is a pure function: no I/O,
// no side effects. Any shape or type mismatch yields a ValidationError.
func ParseSubmission(payload map[string]any) (domain.Submission, error) {
	var sub domain.Submission

	categoryID, err := intField(payload, "categoryId")
	if err != nil {
		return sub, err
	}
	total, err := intField(payload, "totalQuestions")
	if err != nil {
		return sub, err
	}
	correct, err := intField(payload, "correctAnswers")
	if err != nil {
		return sub, err
	}
	incorrect, err := intField(payload, "incorrectAnswers")
	if err != nil {
		return sub, err
	}
	score, err := floatField(payload, "score")
	if err != nil {
		return sub, err
	}

	if total < 0 || correct < 0 || incorrect < 0 {
		return sub, domain.ValidationError("question counts must not be negative")
	}
	if correct+incorrect > total {
		return sub, domain.ValidationError("correctAnswers + incorrectAnswers exceeds totalQuestions")
	}

	rawQuestions, ok := payload["questions"]
	if !ok {
		return sub, domain.ValidationError("field %q is required", "questions")
	}
	list, ok := rawQuestions.([]any)
	if !ok {
		return sub, domain.ValidationError("field %q must be a list", "questions")
	}
	if len(list) == 0 {
		return sub, domain.ValidationError("field %q must not be empty", "questions")
	}

	questions := make([]domain.AnsweredQuestion, 0, len(list))
	for i, raw := range list {
		entry, ok := raw.(map[string]any)
		if !ok {
			return sub, domain.ValidationError("questions[%d] must be an object", i)
		}
		questionID, err := intField(entry, "id")
		if err != nil {
			return sub, domain.ValidationError("questions[%d]: %v", i, err)
		}
		isCorrect, ok := entry["isCorrect"].(bool)
		if !ok {
			return sub, domain.ValidationError("questions[%d]: field %q must be a boolean", i, "isCorrect")
		}
		userAnswer, ok := entry["userAnswer"].(string)
		if !ok {
			return sub, domain.ValidationError("questions[%d]: field %q must be a string", i, "userAnswer")
		}
		questions = append(questions, domain.AnsweredQuestion{
			QuestionID: questionID,
			IsCorrect:  isCorrect,
			UserAnswer: userAnswer,
		})
	}

	sub = domain.Submission{
		CategoryID:       categoryID,
		TotalQuestions:   int(total),
		CorrectAnswers:   int(correct),
		IncorrectAnswers: int(incorrect),
		Score:            score,
		Questions:        questions,
	}
	return sub, nil
}

// intField reads an integral numeric field. JSON numbers decode as float64,
// so integrality is checked explicitly.
func intField(m map[string]any, key string) (int64, error) {
	raw, ok := m[key]
	if !ok {
		return 0, domain.ValidationError("field %q is required", key)
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, domain.ValidationError("field %q must be a number", key)
	}
	if f != math.Trunc(f) {
		return 0, domain.ValidationError("field %q must be an integer", key)
	}
	return int64(f), nil
}

func floatField(m map[string]any, key string) (float64, error) {
	raw, ok := m[key]
	if !ok {
		return 0, domain.ValidationError("field %q is required", key)
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, domain.ValidationError("field %q must be a number", key)
	}
	return f, nil
}
