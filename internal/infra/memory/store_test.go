package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"quiz-results-service/internal/domain"
	"quiz-results-service/internal/infra/memory"
)

func TestInsertInteractionsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.AddUser(domain.User{ID: 1})
	store.AddQuestions(10, 11)

	quiz := domain.Quiz{UserID: 1, TotalQuestions: 2, CreatedAt: time.Now()}
	if err := store.CreateQuiz(ctx, &quiz); err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	batch := []domain.Interaction{
		{UserID: 1, QuizID: quiz.ID, QuestionID: 10, IsCorrect: true, UserAnswer: "a"},
		{UserID: 1, QuizID: quiz.ID, QuestionID: 11, IsCorrect: false, UserAnswer: "b"},
	}
	stored, err := store.InsertInteractions(ctx, batch)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if stored != 2 {
		t.Fatalf("expected 2 stored, got %d", stored)
	}

	// Resubmitting the identical batch must not create duplicates.
	stored, err = store.InsertInteractions(ctx, batch)
	if err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	if stored != 0 {
		t.Fatalf("expected 0 stored on resubmit, got %d", stored)
	}
	if got := store.CountInteractions(quiz.ID); got != 2 {
		t.Fatalf("expected 2 interactions total, got %d", got)
	}
}

func TestInsertInteractionsDropsUnknownQuestions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.AddUser(domain.User{ID: 1})
	store.AddQuestions(10)

	quiz := domain.Quiz{UserID: 1, TotalQuestions: 2}
	if err := store.CreateQuiz(ctx, &quiz); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	stored, err := store.InsertInteractions(ctx, []domain.Interaction{
		{UserID: 1, QuizID: quiz.ID, QuestionID: 10},
		{UserID: 1, QuizID: quiz.ID, QuestionID: 404},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if stored != 1 {
		t.Fatalf("expected 1 stored, got %d", stored)
	}
}

func TestCreateQuizRequiresUser(t *testing.T) {
	store := memory.NewStore()
	quiz := domain.Quiz{UserID: 42}
	if err := store.CreateQuiz(context.Background(), &quiz); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestApplyQuizResultIsAtomicUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.AddUser(domain.User{ID: 1})

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.ApplyQuizResult(ctx, 1, domain.Quiz{Score: 2, TotalQuestions: 3, CorrectAnswers: 1}); err != nil {
				t.Errorf("apply: %v", err)
			}
		}()
	}
	wg.Wait()

	user, err := store.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.PlayCount != n || user.Score != 2*n || user.QuestionsAttempted != 3*n || user.CorrectAnswers != n {
		t.Fatalf("lost updates: %+v", user)
	}
}

func TestCreateQuizRejectsDuplicateIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.AddUser(domain.User{ID: 1})

	first := domain.Quiz{UserID: 1, IdempotencyKey: "key-1"}
	if err := store.CreateQuiz(ctx, &first); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	second := domain.Quiz{UserID: 1, IdempotencyKey: "key-1"}
	if err := store.CreateQuiz(ctx, &second); err == nil {
		t.Fatal("expected duplicate key to be rejected")
	}

	found, err := store.FindQuizByIdempotencyKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil || found.ID != first.ID {
		t.Fatalf("key must still resolve to the first quiz, got %+v", found)
	}
}

func TestFindQuizByIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.AddUser(domain.User{ID: 1})

	quiz := domain.Quiz{UserID: 1, IdempotencyKey: "key-1"}
	if err := store.CreateQuiz(ctx, &quiz); err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	found, err := store.FindQuizByIdempotencyKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil || found.ID != quiz.ID {
		t.Fatalf("expected quiz %d, got %+v", quiz.ID, found)
	}

	missing, err := store.FindQuizByIdempotencyKey(ctx, "key-2")
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown key, got %+v", missing)
	}
}
