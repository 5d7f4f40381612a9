package domain

import "time"

// User carries a player's cumulative lifetime statistics. Counters are
// mutated only by atomic increments; they never decrease.
type User struct {
	ID                 int64     `json:"id"`
	DisplayName        string    `json:"displayName"`
	PlayCount          int64     `json:"playCount"`
	QuestionsAttempted int64     `json:"questionsAttempted"`
	CorrectAnswers     int64     `json:"correctAnswers"`
	Score              float64   `json:"score"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Quiz is the immutable summary of one completed play session.
type Quiz struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"userId"`
	CategoryID       int64     `json:"categoryId"`
	TotalQuestions   int       `json:"totalQuestions"`
	CorrectAnswers   int       `json:"correctAnswers"`
	IncorrectAnswers int       `json:"incorrectAnswers"`
	Score            float64   `json:"score"`
	IdempotencyKey   string    `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Interaction is one answered-question record within a quiz. Its identity
// key is (QuizID, QuestionID); duplicate inserts are skipped.
type Interaction struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	QuizID     int64     `json:"quizId"`
	QuestionID int64     `json:"questionId"`
	IsCorrect  bool      `json:"isCorrect"`
	UserAnswer string    `json:"userAnswer"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// LeaderboardEntry is one user's current rank. At most one exists per user,
// and only for users with PlayCount > 0.
type LeaderboardEntry struct {
	UserID      int64   `json:"userId"`
	DisplayName string  `json:"displayName"`
	Rank        int     `json:"rank"`
	Score       float64 `json:"score"`
}

// Leaderboard is a consistent snapshot of the full rank ordering.
// Generation increases monotonically with every committed recompute.
type Leaderboard struct {
	Entries    []LeaderboardEntry `json:"entries"`
	Generation uint64             `json:"generation"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// AnsweredQuestion is one question outcome inside a submitted result.
type AnsweredQuestion struct {
	QuestionID int64
	IsCorrect  bool
	UserAnswer string
}

// Submission is a validated quiz result ready for recording.
type Submission struct {
	CategoryID       int64
	TotalQuestions   int
	CorrectAnswers   int
	IncorrectAnswers int
	Score            float64
	Questions        []AnsweredQuestion
}
