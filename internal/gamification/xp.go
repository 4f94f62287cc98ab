package gamification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"skillforge/internal/kv"
	"skillforge/internal/model"
)

// Ledger returns the user's XP ledger; missing or corrupt data yields an
// empty ledger.
func (s *Service) Ledger(ctx context.Context, userID string) model.XPLedger {
	var ledger model.XPLedger
	if err := kv.GetJSON(ctx, s.store, kv.XPKey(userID), &ledger); err != nil {
		s.warnUnlessMissing(kv.XPKey(userID), err)
		return model.XPLedger{}
	}
	return ledger
}

// AddXP appends an activity and bumps the running total. leveledUp reports
// whether the derived level changed with this addition.
func (s *Service) AddXP(ctx context.Context, userID, kind string, xp int, details string) (model.XPLedger, bool, error) {
	ledger := s.Ledger(ctx, userID)

	before := model.Level(ledger.TotalXP)
	ledger.TotalXP += xp
	ledger.Activities = append(ledger.Activities, model.XPActivity{
		ID:        uuid.NewString(),
		Kind:      kind,
		XP:        xp,
		Timestamp: s.now(),
		Details:   details,
	})
	after := model.Level(ledger.TotalXP)

	if err := kv.PutJSON(ctx, s.store, kv.XPKey(userID), ledger); err != nil {
		return model.XPLedger{}, false, err
	}
	return ledger, after > before, nil
}

// Streak counts consecutive days with at least one XP activity, ending today
// or yesterday (an unfinished today does not break the streak).
func (s *Service) Streak(ctx context.Context, userID string) int {
	return streakDays(s.Ledger(ctx, userID), s.now())
}

func streakDays(ledger model.XPLedger, now time.Time) int {
	active := map[string]bool{}
	for _, act := range ledger.Activities {
		active[act.Timestamp.UTC().Format("2006-01-02")] = true
	}

	day := now.UTC().Truncate(24 * time.Hour)
	if !active[day.Format("2006-01-02")] {
		day = day.AddDate(0, 0, -1)
	}
	streak := 0
	for active[day.Format("2006-01-02")] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}
