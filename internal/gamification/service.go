// Package gamification maintains the per-user counters behind the dashboard:
// the XP ledger, learning-path progress, guide and tutorial completions, and
// the achievement set. Every mutation is a full read-modify-write of one kv
// blob; last writer wins.
package gamification

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"skillforge/internal/kv"
)

type Service struct {
	store kv.Store
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewService(store kv.Store, log *zap.SugaredLogger) *Service {
	return &Service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// ActivitySnapshot is the aggregated view achievements are evaluated against.
type ActivitySnapshot struct {
	CompletedSteps     int
	CompletedGuides    int
	CompletedTutorials int
	Posts              int
	Discussions        int
	TotalXP            int
	StreakDays         int
}

// Snapshot aggregates the user's stored activity. Missing or corrupt blobs
// count as zero.
func (s *Service) Snapshot(ctx context.Context, userID string) ActivitySnapshot {
	ledger := s.Ledger(ctx, userID)
	return ActivitySnapshot{
		CompletedSteps:     s.completedStepCount(ctx, userID),
		CompletedGuides:    len(s.CompletedGuides(ctx, userID)),
		CompletedTutorials: len(s.CompletedTutorials(ctx, userID)),
		Posts:              s.countList(ctx, kv.UserPostsKey(userID)),
		Discussions:        s.countList(ctx, kv.UserDiscussionsKey(userID)),
		TotalXP:            ledger.TotalXP,
		StreakDays:         streakDays(ledger, s.now()),
	}
}

func (s *Service) countList(ctx context.Context, key string) int {
	var items []struct{ ID string }
	if err := kv.GetJSON(ctx, s.store, key, &items); err != nil {
		s.warnUnlessMissing(key, err)
		return 0
	}
	return len(items)
}

// warnUnlessMissing logs storage corruption; plain absence is normal.
func (s *Service) warnUnlessMissing(key string, err error) {
	if errors.Is(err, kv.ErrNotFound) {
		return
	}
	s.log.Warnw("stored value unreadable, treating as empty", "key", key, "error", err)
}
