package app_test

import (
	"testing"

	"quiz-results-service/internal/app"
	"quiz-results-service/internal/domain"
)

func validPayload() map[string]any {
	return map[string]any{
		"categoryId":       float64(3),
		"totalQuestions":   float64(2),
		"correctAnswers":   float64(1),
		"incorrectAnswers": float64(1),
		"score":            12.5,
		"questions": []any{
			map[string]any{"id": float64(10), "isCorrect": true, "userAnswer": "Paris"},
			map[string]any{"id": float64(11), "isCorrect": false, "userAnswer": "Lyon"},
		},
	}
}

func TestParseSubmission(t *testing.T) {
	sub, err := app.ParseSubmission(validPayload())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if sub.CategoryID != 3 || sub.TotalQuestions != 2 || sub.CorrectAnswers != 1 || sub.IncorrectAnswers != 1 {
		t.Fatalf("unexpected counts: %+v", sub)
	}
	if sub.Score != 12.5 {
		t.Fatalf("expected score 12.5, got %v", sub.Score)
	}
	if len(sub.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(sub.Questions))
	}
	if sub.Questions[0].QuestionID != 10 || !sub.Questions[0].IsCorrect || sub.Questions[0].UserAnswer != "Paris" {
		t.Fatalf("unexpected first question: %+v", sub.Questions[0])
	}
}

func TestParseSubmissionRejectsBadShapes(t *testing.T) {
	cases := map[string]func(map[string]any){
		"missing category":       func(p map[string]any) { delete(p, "categoryId") },
		"string total":           func(p map[string]any) { p["totalQuestions"] = "2" },
		"fractional count":       func(p map[string]any) { p["correctAnswers"] = 1.5 },
		"negative count":         func(p map[string]any) { p["totalQuestions"] = float64(-1) },
		"counts exceed total":    func(p map[string]any) { p["correctAnswers"] = float64(5) },
		"missing questions":      func(p map[string]any) { delete(p, "questions") },
		"questions not a list":   func(p map[string]any) { p["questions"] = "nope" },
		"empty questions":        func(p map[string]any) { p["questions"] = []any{} },
		"question not an object": func(p map[string]any) { p["questions"] = []any{"nope"} },
		"question missing id":    func(p map[string]any) { p["questions"] = []any{map[string]any{"isCorrect": true, "userAnswer": "x"}} },
		"non-bool correctness": func(p map[string]any) {
			p["questions"] = []any{map[string]any{"id": float64(1), "isCorrect": "yes", "userAnswer": "x"}}
		},
		"non-string answer": func(p map[string]any) {
			p["questions"] = []any{map[string]any{"id": float64(1), "isCorrect": true, "userAnswer": 7.0}}
		},
		"non-numeric score": func(p map[string]any) { p["score"] = true },
		"missing score":     func(p map[string]any) { delete(p, "score") },
		"fractional question id": func(p map[string]any) {
			p["questions"] = []any{map[string]any{"id": 1.2, "isCorrect": true, "userAnswer": "x"}}
		},
		"missing incorrect count": func(p map[string]any) { delete(p, "incorrectAnswers") },
	}

	for name, mutate := range cases {
		payload := validPayload()
		mutate(payload)
		if _, err := app.ParseSubmission(payload); err == nil {
			t.Errorf("%s: expected error", name)
		} else if domain.KindOf(err) != domain.KindValidation {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestParseSubmissionAllowsFractionalScore(t *testing.T) {
	payload := validPayload()
	payload["score"] = 99.9
	sub, err := app.ParseSubmission(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if sub.Score != 99.9 {
		t.Fatalf("expected score 99.9, got %v", sub.Score)
	}
}
