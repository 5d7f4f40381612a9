package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"quiz-results-service/internal/domain"
	"quiz-results-service/internal/telemetry"
)

// TokenVerifier resolves an opaque credential into a user identity. The
// credential format and session lifecycle belong to the identity service;
// this core only consumes the resolved ID.
type TokenVerifier interface {
	Verify(ctx context.Context, credential string) (int64, error)
}

// QuizRecorder persists quiz summaries and their interaction batches.
type QuizRecorder interface {
	// CreateQuiz persists the summary row and assigns quiz.ID.
	CreateQuiz(ctx context.Context, quiz *domain.Quiz) error
	// FindQuizByIdempotencyKey returns a previously recorded quiz for the
	// key, or (nil, nil) when none exists.
	FindQuizByIdempotencyKey(ctx context.Context, key string) (*domain.Quiz, error)
	// InsertInteractions bulk-inserts the batch. Records whose identity key
	// already exists are skipped silently, as are records referencing
	// questions missing from the catalog. It returns how many rows were
	// stored, which may be less than len(interactions).
	InsertInteractions(ctx context.Context, interactions []domain.Interaction) (int, error)
}

// AggregateStore applies atomic increments to a user's lifetime counters.
type AggregateStore interface {
	// ApplyQuizResult increments PlayCount by 1, Score by quiz.Score,
	// QuestionsAttempted by quiz.TotalQuestions and CorrectAnswers by
	// quiz.CorrectAnswers, atomically against the stored values.
	ApplyQuizResult(ctx context.Context, userID int64, quiz domain.Quiz) error
	// GetUser reads a user's current aggregates.
	GetUser(ctx context.Context, userID int64) (domain.User, error)
}

// SnapshotInvalidator drops a cached leaderboard snapshot after a recompute.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context) error
}

// TelemetrySink accepts fire-and-forget outcome records.
type TelemetrySink interface {
	Record(event telemetry.Event) bool
}

// ResultService orchestrates a quiz result submission: verify identity,
// validate the payload, record the quiz, apply aggregates, recompute ranks.
type ResultService struct {
	verifier    TokenVerifier
	quizzes     QuizRecorder
	aggregates  AggregateStore
	leaderboard *LeaderboardEngine
	cache       SnapshotInvalidator
	sink        TelemetrySink
	clock       func() time.Time
}

func NewResultService(verifier TokenVerifier, quizzes QuizRecorder, aggregates AggregateStore, leaderboard *LeaderboardEngine) *ResultService {
	return &ResultService{
		verifier:    verifier,
		quizzes:     quizzes,
		aggregates:  aggregates,
		leaderboard: leaderboard,
		clock:       time.Now,
	}
}

// WithSnapshotCache registers a cache to invalidate after each committed
// recompute.
func (s *ResultService) WithSnapshotCache(cache SnapshotInvalidator) *ResultService {
	s.cache = cache
	return s
}

// WithTelemetry registers a sink for outcome records.
func (s *ResultService) WithTelemetry(sink TelemetrySink) *ResultService {
	s.sink = sink
	return s
}

// Submit records one completed quiz result for the caller identified by
// credential and returns the new quiz ID.
//
// The quiz and aggregate writes are durable once applied; a subsequent
// recompute failure leaves the leaderboard stale but never fails the
// request. An optional idempotency key (UUID) makes caller retries safe:
// resubmission with a known key returns the original quiz ID.
func (s *ResultService) Submit(ctx context.Context, credential, idempotencyKey string, payload map[string]any) (int64, error) {
	userID, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		s.record(telemetry.Event{Kind: telemetry.KindSubmissionRejected, Detail: "authentication"})
		return 0, err
	}

	sub, err := ParseSubmission(payload)
	if err != nil {
		s.record(telemetry.Event{Kind: telemetry.KindSubmissionRejected, UserID: userID, Detail: "validation"})
		return 0, err
	}

	if idempotencyKey != "" {
		if _, err := uuid.Parse(idempotencyKey); err != nil {
			return 0, domain.ValidationError("idempotency key must be a UUID")
		}
		existing, err := s.quizzes.FindQuizByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return 0, domain.PersistenceError("idempotency lookup", err)
		}
		if existing != nil {
			s.record(telemetry.Event{Kind: telemetry.KindDuplicateSubmission, UserID: userID, QuizID: existing.ID})
			return existing.ID, nil
		}
	}

	quiz := domain.Quiz{
		UserID:           userID,
		CategoryID:       sub.CategoryID,
		TotalQuestions:   sub.TotalQuestions,
		CorrectAnswers:   sub.CorrectAnswers,
		IncorrectAnswers: sub.IncorrectAnswers,
		Score:            sub.Score,
		IdempotencyKey:   idempotencyKey,
		CreatedAt:        s.clock(),
	}
	if err := s.quizzes.CreateQuiz(ctx, &quiz); err != nil {
		// A concurrent submission with the same key may have won the
		// unique-index race after our lookup; return its quiz instead.
		if idempotencyKey != "" {
			existing, findErr := s.quizzes.FindQuizByIdempotencyKey(ctx, idempotencyKey)
			if findErr == nil && existing != nil {
				s.record(telemetry.Event{Kind: telemetry.KindDuplicateSubmission, UserID: userID, QuizID: existing.ID})
				return existing.ID, nil
			}
		}
		return 0, domain.PersistenceError("quiz write", err)
	}

	now := s.clock()
	interactions := make([]domain.Interaction, 0, len(sub.Questions))
	for _, q := range sub.Questions {
		interactions = append(interactions, domain.Interaction{
			UserID:     userID,
			QuizID:     quiz.ID,
			QuestionID: q.QuestionID,
			IsCorrect:  q.IsCorrect,
			UserAnswer: q.UserAnswer,
			AnsweredAt: now,
		})
	}
	stored, err := s.quizzes.InsertInteractions(ctx, interactions)
	if err != nil {
		return 0, domain.PersistenceError("interaction write", err)
	}
	if stored < len(interactions) {
		s.record(telemetry.Event{
			Kind:   telemetry.KindInteractionsSkipped,
			UserID: userID,
			QuizID: quiz.ID,
			Detail: "stored fewer interactions than submitted",
		})
	}

	if err := s.aggregates.ApplyQuizResult(ctx, userID, quiz); err != nil {
		// The quiz row stands: scoring durability over all-or-nothing.
		return 0, domain.PersistenceError("aggregate update", err)
	}

	if _, err := s.leaderboard.Recompute(ctx); err != nil {
		log.Printf("leaderboard recompute after quiz %d: %v", quiz.ID, err)
		s.record(telemetry.Event{Kind: telemetry.KindRecomputeFailed, UserID: userID, QuizID: quiz.ID, Detail: err.Error()})
	} else if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			log.Printf("leaderboard cache invalidate: %v", err)
		}
	}

	s.record(telemetry.Event{Kind: telemetry.KindSubmissionAccepted, UserID: userID, QuizID: quiz.ID})
	return quiz.ID, nil
}

// UserStats reads the caller-visible aggregates for one user.
func (s *ResultService) UserStats(ctx context.Context, userID int64) (domain.User, error) {
	user, err := s.aggregates.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, domain.PersistenceError("user read", err)
	}
	return user, nil
}

func (s *ResultService) record(event telemetry.Event) {
	if s.sink != nil {
		s.sink.Record(event)
	}
}
