package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/uptrace/bun"

	"quiz-results-service/internal/domain"
)

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                 int64     `bun:"id,pk,autoincrement"`
	DisplayName        string    `bun:"display_name,notnull,default:''"`
	PlayCount          int64     `bun:"play_count,notnull,default:0"`
	QuestionsAttempted int64     `bun:"questions_attempted,notnull,default:0"`
	CorrectAnswers     int64     `bun:"correct_answers,notnull,default:0"`
	Score              float64   `bun:"score,notnull,default:0"`
	CreatedAt          time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt          time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:q"`

	ID               int64          `bun:"id,pk,autoincrement"`
	UserID           int64          `bun:"user_id,notnull"`
	CategoryID       int64          `bun:"category_id,notnull"`
	TotalQuestions   int            `bun:"total_questions,notnull"`
	CorrectAnswers   int            `bun:"correct_answers,notnull"`
	IncorrectAnswers int            `bun:"incorrect_answers,notnull"`
	Score            float64        `bun:"score,notnull"`
	IdempotencyKey   sql.NullString `bun:"idempotency_key"`
	CreatedAt        time.Time      `bun:"created_at,notnull"`
}

type interactionRow struct {
	bun.BaseModel `bun:"table:interactions,alias:i"`

	ID         int64     `bun:"id,pk,autoincrement"`
	UserID     int64     `bun:"user_id,notnull"`
	QuizID     int64     `bun:"quiz_id,notnull"`
	QuestionID int64     `bun:"question_id,notnull"`
	IsCorrect  bool      `bun:"is_correct,notnull"`
	UserAnswer string    `bun:"user_answer,notnull,default:''"`
	AnsweredAt time.Time `bun:"answered_at,notnull"`
}

type leaderboardRow struct {
	bun.BaseModel `bun:"table:leaderboard_entries,alias:l"`

	UserID    int64     `bun:"user_id,pk"`
	Rank      int       `bun:"rank,notnull"`
	Score     float64   `bun:"score,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// Store implements the app repositories on postgres. Writes go through bun;
// the hot read paths (qualifying users, snapshot, catalog filter) use the
// pgx pool directly.
type Store struct {
	db      *bun.DB
	pool    *pgxpool.Pool
	catalog *QuestionCatalog
}

func NewStore(db *bun.DB, pool *pgxpool.Pool) *Store {
	return &Store{db: db, pool: pool, catalog: NewQuestionCatalog(pool)}
}

// CreateQuiz inserts the summary row and assigns quiz.ID.
func (s *Store) CreateQuiz(ctx context.Context, quiz *domain.Quiz) error {
	row := &quizRow{
		UserID:           quiz.UserID,
		CategoryID:       quiz.CategoryID,
		TotalQuestions:   quiz.TotalQuestions,
		CorrectAnswers:   quiz.CorrectAnswers,
		IncorrectAnswers: quiz.IncorrectAnswers,
		Score:            quiz.Score,
		CreatedAt:        quiz.CreatedAt,
	}
	if quiz.IdempotencyKey != "" {
		row.IdempotencyKey = sql.NullString{String: quiz.IdempotencyKey, Valid: true}
	}
	if _, err := s.db.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	quiz.ID = row.ID
	return nil
}

func (s *Store) FindQuizByIdempotencyKey(ctx context.Context, key string) (*domain.Quiz, error) {
	row := new(quizRow)
	err := s.db.NewSelect().Model(row).Where("idempotency_key = ?", key).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find quiz by idempotency key: %w", err)
	}
	quiz := quizFromRow(row)
	return &quiz, nil
}

// InsertInteractions bulk-inserts the batch. Records referencing questions
// missing from the catalog are dropped before the insert; records whose
// (quiz_id, question_id) key already exists are skipped by the conflict
// clause. The remainder commits either way.
func (s *Store) InsertInteractions(ctx context.Context, interactions []domain.Interaction) (int, error) {
	if len(interactions) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(interactions))
	for _, in := range interactions {
		ids = append(ids, in.QuestionID)
	}
	known, err := s.catalog.Existing(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("filter interactions: %w", err)
	}

	rows := make([]interactionRow, 0, len(interactions))
	for _, in := range interactions {
		if _, ok := known[in.QuestionID]; !ok {
			continue
		}
		rows = append(rows, interactionRow{
			UserID:     in.UserID,
			QuizID:     in.QuizID,
			QuestionID: in.QuestionID,
			IsCorrect:  in.IsCorrect,
			UserAnswer: in.UserAnswer,
			AnsweredAt: in.AnsweredAt,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	res, err := s.db.NewInsert().
		Model(&rows).
		On("CONFLICT (quiz_id, question_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("insert interactions: %w", err)
	}
	stored, err := res.RowsAffected()
	if err != nil {
		return len(rows), nil
	}
	return int(stored), nil
}

// ApplyQuizResult increments the user's counters in a single UPDATE, so two
// concurrent submissions by the same user both apply.
func (s *Store) ApplyQuizResult(ctx context.Context, userID int64, quiz domain.Quiz) error {
	res, err := s.db.NewUpdate().
		Model((*userRow)(nil)).
		Set("play_count = play_count + 1").
		Set("score = score + ?", quiz.Score).
		Set("questions_attempted = questions_attempted + ?", quiz.TotalQuestions).
		Set("correct_answers = correct_answers + ?", quiz.CorrectAnswers).
		Set("updated_at = now()").
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("apply quiz result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("apply quiz result: user %d not found", userID)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID int64) (domain.User, error) {
	row := new(userRow)
	if err := s.db.NewSelect().Model(row).Where("id = ?", userID).Scan(ctx); err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return userFromRow(row), nil
}

// ListQualifying fetches users with play_count > 0. The recompute engine
// owns the final ordering; the query pre-sorts to keep it stable.
func (s *Store) ListQualifying(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, display_name, play_count, questions_attempted, correct_answers, score, created_at, updated_at
		FROM users
		WHERE play_count > 0
		ORDER BY score DESC, created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list qualifying users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.PlayCount, &u.QuestionsAttempted, &u.CorrectAnswers, &u.Score, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan qualifying user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list qualifying users: %w", err)
	}
	return users, nil
}

// UpsertRank writes one user's rank, creating the entry if absent.
func (s *Store) UpsertRank(ctx context.Context, entry domain.LeaderboardEntry) error {
	row := &leaderboardRow{
		UserID:    entry.UserID,
		Rank:      entry.Rank,
		Score:     entry.Score,
		UpdatedAt: time.Now(),
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (user_id) DO UPDATE").
		Set("rank = EXCLUDED.rank").
		Set("score = EXCLUDED.score").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert rank: %w", err)
	}
	return nil
}

// Snapshot reads the stored leaderboard ordered by rank.
func (s *Store) Snapshot(ctx context.Context) (domain.Leaderboard, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.user_id, l.rank, l.score, u.display_name, l.updated_at
		FROM leaderboard_entries l
		JOIN users u ON u.id = l.user_id
		ORDER BY l.rank ASC`)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("read leaderboard: %w", err)
	}
	defer rows.Close()

	lb := domain.Leaderboard{}
	for rows.Next() {
		var entry domain.LeaderboardEntry
		var updatedAt time.Time
		if err := rows.Scan(&entry.UserID, &entry.Rank, &entry.Score, &entry.DisplayName, &updatedAt); err != nil {
			return domain.Leaderboard{}, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		if updatedAt.After(lb.UpdatedAt) {
			lb.UpdatedAt = updatedAt
		}
		lb.Entries = append(lb.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("read leaderboard: %w", err)
	}
	return lb, nil
}

func quizFromRow(row *quizRow) domain.Quiz {
	quiz := domain.Quiz{
		ID:               row.ID,
		UserID:           row.UserID,
		CategoryID:       row.CategoryID,
		TotalQuestions:   row.TotalQuestions,
		CorrectAnswers:   row.CorrectAnswers,
		IncorrectAnswers: row.IncorrectAnswers,
		Score:            row.Score,
		CreatedAt:        row.CreatedAt,
	}
	if row.IdempotencyKey.Valid {
		quiz.IdempotencyKey = row.IdempotencyKey.String
	}
	return quiz
}

func userFromRow(row *userRow) domain.User {
	return domain.User{
		ID:                 row.ID,
		DisplayName:        row.DisplayName,
		PlayCount:          row.PlayCount,
		QuestionsAttempted: row.QuestionsAttempted,
		CorrectAnswers:     row.CorrectAnswers,
		Score:              row.Score,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}
