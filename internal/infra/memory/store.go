package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"quiz-results-service/internal/domain"
)

type interactionKey struct {
	quizID     int64
	questionID int64
}

// Store is an in-memory implementation of the app repositories, used for
// unit tests and for running the service without postgres.
type Store struct {
	clock func() time.Time

	mu           sync.RWMutex
	users        map[int64]*domain.User
	questions    map[int64]struct{}
	quizzes      map[int64]*domain.Quiz
	quizzesByKey map[string]int64
	interactions map[interactionKey]*domain.Interaction
	ranks        map[int64]domain.LeaderboardEntry
	updatedAt    time.Time

	nextQuizID        int64
	nextInteractionID int64
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock allows deterministic timestamps in tests.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		clock:        now,
		users:        make(map[int64]*domain.User),
		questions:    make(map[int64]struct{}),
		quizzes:      make(map[int64]*domain.Quiz),
		quizzesByKey: make(map[string]int64),
		interactions: make(map[interactionKey]*domain.Interaction),
		ranks:        make(map[int64]domain.LeaderboardEntry),
	}
}

// AddUser seeds a user record.
func (s *Store) AddUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.clock()
	}
	u := user
	s.users[user.ID] = &u
}

// AddQuestions seeds the question catalog; interactions referencing unknown
// question IDs are dropped, mirroring the foreign-key skip policy.
func (s *Store) AddQuestions(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.questions[id] = struct{}{}
	}
}

// CreateQuiz assigns an ID and stores the summary row.
func (s *Store) CreateQuiz(_ context.Context, quiz *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[quiz.UserID]; !ok {
		return fmt.Errorf("user %d not found", quiz.UserID)
	}
	if quiz.IdempotencyKey != "" {
		// Mirrors the partial unique index on quizzes.idempotency_key.
		if _, ok := s.quizzesByKey[quiz.IdempotencyKey]; ok {
			return fmt.Errorf("quiz with idempotency key %q already exists", quiz.IdempotencyKey)
		}
	}
	s.nextQuizID++
	quiz.ID = s.nextQuizID
	stored := *quiz
	s.quizzes[quiz.ID] = &stored
	if quiz.IdempotencyKey != "" {
		s.quizzesByKey[quiz.IdempotencyKey] = quiz.ID
	}
	return nil
}

func (s *Store) FindQuizByIdempotencyKey(_ context.Context, key string) (*domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.quizzesByKey[key]
	if !ok {
		return nil, nil
	}
	quiz := *s.quizzes[id]
	return &quiz, nil
}

// InsertInteractions stores the batch, skipping duplicates and records
// referencing unknown questions.
func (s *Store) InsertInteractions(_ context.Context, interactions []domain.Interaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := 0
	for _, in := range interactions {
		if _, ok := s.questions[in.QuestionID]; !ok {
			continue
		}
		key := interactionKey{quizID: in.QuizID, questionID: in.QuestionID}
		if _, ok := s.interactions[key]; ok {
			continue
		}
		s.nextInteractionID++
		in.ID = s.nextInteractionID
		record := in
		s.interactions[key] = &record
		stored++
	}
	return stored, nil
}

// ApplyQuizResult increments the user's counters under the store lock, so
// concurrent submissions by the same user never lose an update.
func (s *Store) ApplyQuizResult(_ context.Context, userID int64, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %d not found", userID)
	}
	user.PlayCount++
	user.Score += quiz.Score
	user.QuestionsAttempted += int64(quiz.TotalQuestions)
	user.CorrectAnswers += int64(quiz.CorrectAnswers)
	user.UpdatedAt = s.clock()
	return nil
}

func (s *Store) GetUser(_ context.Context, userID int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("user %d not found", userID)
	}
	return *user, nil
}

// GetQuiz reads a stored quiz summary.
func (s *Store) GetQuiz(_ context.Context, quizID int64) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, fmt.Errorf("quiz %d not found", quizID)
	}
	return *quiz, nil
}

// CountInteractions reports how many interactions are stored for a quiz.
func (s *Store) CountInteractions(quizID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for key := range s.interactions {
		if key.quizID == quizID {
			n++
		}
	}
	return n
}

// ListQualifying returns users with at least one recorded quiz.
func (s *Store) ListQualifying(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		if user.PlayCount > 0 {
			users = append(users, *user)
		}
	}
	return users, nil
}

func (s *Store) UpsertRank(_ context.Context, entry domain.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranks[entry.UserID] = entry
	s.updatedAt = s.clock()
	return nil
}

func (s *Store) Snapshot(_ context.Context) (domain.Leaderboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]domain.LeaderboardEntry, 0, len(s.ranks))
	for _, entry := range s.ranks {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })
	return domain.Leaderboard{Entries: entries, UpdatedAt: s.updatedAt}, nil
}

// StaticTokenVerifier resolves credentials from a fixed map (tests/demos).
type StaticTokenVerifier struct {
	tokens map[string]int64
}

func NewStaticTokenVerifier(tokens map[string]int64) *StaticTokenVerifier {
	return &StaticTokenVerifier{tokens: tokens}
}

func (v *StaticTokenVerifier) Verify(_ context.Context, credential string) (int64, error) {
	if credential == "" {
		return 0, domain.AuthenticationError("missing credential")
	}
	userID, ok := v.tokens[credential]
	if !ok {
		return 0, domain.AuthenticationError("unknown credential")
	}
	return userID, nil
}
