package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"quiz-results-service/internal/domain"
)

// LeaderboardStore is the persistence surface the recompute engine drives.
type LeaderboardStore interface {
	// ListQualifying returns all users with PlayCount > 0.
	ListQualifying(ctx context.Context) ([]domain.User, error)
	// UpsertRank writes one user's rank, creating the entry if absent.
	UpsertRank(ctx context.Context, entry domain.LeaderboardEntry) error
	// Snapshot reads the stored leaderboard ordered by rank.
	Snapshot(ctx context.Context) (domain.Leaderboard, error)
}

// LeaderboardEngine maintains the dense rank ordering over qualifying users.
// Every recompute is a full rebuild: fetch, sort, upsert. The whole sequence
// runs inside one critical section so that two racing submissions cannot
// interleave a stale snapshot's ranks over a fresher one. Each committed
// pass carries a monotonically increasing generation number.
//
// Ties on score are broken by earlier account creation, then by lower user
// ID, so rank assignment is reproducible.
type LeaderboardEngine struct {
	store LeaderboardStore
	clock func() time.Time

	mu         sync.Mutex
	generation uint64

	subMu       sync.Mutex
	subscribers map[chan domain.Leaderboard]struct{}
}

func NewLeaderboardEngine(store LeaderboardStore) *LeaderboardEngine {
	return newLeaderboardEngineWithClock(store, time.Now)
}

// newLeaderboardEngineWithClock allows deterministic timestamps in tests.
func newLeaderboardEngineWithClock(store LeaderboardStore, now func() time.Time) *LeaderboardEngine {
	return &LeaderboardEngine{
		store:       store,
		clock:       now,
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
}

// Recompute rebuilds the full rank assignment. On success the committed
// snapshot is returned and broadcast to subscribers. If any individual
// upsert fails, the remaining entries are still attempted and the combined
// failure is returned as a LeaderboardError; the stored leaderboard is then
// stale-but-recoverable and the next successful recompute repairs it.
func (e *LeaderboardEngine) Recompute(ctx context.Context) (domain.Leaderboard, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	users, err := e.store.ListQualifying(ctx)
	if err != nil {
		return domain.Leaderboard{}, domain.LeaderboardError(err)
	}

	sort.SliceStable(users, func(i, j int) bool {
		if users[i].Score != users[j].Score {
			return users[i].Score > users[j].Score
		}
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})

	e.generation++
	snapshot := domain.Leaderboard{
		Entries:    make([]domain.LeaderboardEntry, 0, len(users)),
		Generation: e.generation,
		UpdatedAt:  e.clock(),
	}

	var upsertErrs []error
	for i, user := range users {
		entry := domain.LeaderboardEntry{
			UserID:      user.ID,
			DisplayName: user.DisplayName,
			Rank:        i + 1,
			Score:       user.Score,
		}
		if err := e.store.UpsertRank(ctx, entry); err != nil {
			upsertErrs = append(upsertErrs, fmt.Errorf("rank %d user %d: %w", entry.Rank, entry.UserID, err))
			continue
		}
		snapshot.Entries = append(snapshot.Entries, entry)
	}
	if len(upsertErrs) > 0 {
		return snapshot, domain.LeaderboardError(errors.Join(upsertErrs...))
	}

	e.broadcast(snapshot)
	return snapshot, nil
}

// Generation reports the number of recompute passes started so far.
func (e *LeaderboardEngine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Subscribe returns a channel receiving every committed snapshot. The caller
// must invoke the returned cancel function to avoid leaks.
func (e *LeaderboardEngine) Subscribe() (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	e.subMu.Lock()
	e.subscribers[ch] = struct{}{}
	e.subMu.Unlock()

	cancel := func() {
		e.subMu.Lock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
		e.subMu.Unlock()
	}
	return ch, cancel
}

func (e *LeaderboardEngine) broadcast(snapshot domain.Leaderboard) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for ch := range e.subscribers {
		select {
		case ch <- snapshot:
		default:
			// Drop the oldest buffered snapshot so slow subscribers
			// never block a recompute.
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}
