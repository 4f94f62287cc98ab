package gamification

import (
	"context"
	"time"

	"skillforge/internal/kv"
	"skillforge/internal/model"
)

type achievementDef struct {
	ID     string
	Title  string
	Points int
	Met    func(ActivitySnapshot) bool
}

// The fixed catalog. Predicates are pure functions of the snapshot; whether
// one currently holds is irrelevant once the achievement has been earned.
var catalog = []achievementDef{
	{"first-steps", "First Steps", 10, func(s ActivitySnapshot) bool { return s.CompletedSteps >= 1 }},
	{"path-walker", "Path Walker", 25, func(s ActivitySnapshot) bool { return s.CompletedSteps >= 5 }},
	{"path-master", "Path Master", 100, func(s ActivitySnapshot) bool { return s.CompletedSteps >= 15 }},
	{"guide-reader", "Guide Reader", 15, func(s ActivitySnapshot) bool { return s.CompletedGuides >= 1 }},
	{"guide-devourer", "Guide Devourer", 50, func(s ActivitySnapshot) bool { return s.CompletedGuides >= 10 }},
	{"tutorial-starter", "Tutorial Starter", 15, func(s ActivitySnapshot) bool { return s.CompletedTutorials >= 1 }},
	{"conversationalist", "Conversationalist", 20, func(s ActivitySnapshot) bool { return s.Posts+s.Discussions >= 3 }},
	{"on-a-roll", "On a Roll", 30, func(s ActivitySnapshot) bool { return s.StreakDays >= 3 }},
	{"week-streak", "Week Streak", 75, func(s ActivitySnapshot) bool { return s.StreakDays >= 7 }},
	{"centurion", "Centurion", 50, func(s ActivitySnapshot) bool { return s.TotalXP >= 100 }},
	{"high-achiever", "High Achiever", 150, func(s ActivitySnapshot) bool { return s.TotalXP >= 500 }},
}

// Evaluate re-checks every catalog entry against a fresh snapshot. The earned
// set only grows: entries already persisted stay earned even if their
// predicate no longer holds. Returns the full list plus the newly earned
// subset.
func (s *Service) Evaluate(ctx context.Context, userID string) ([]model.Achievement, []model.Achievement, error) {
	earned := map[string]time.Time{}
	if err := kv.GetJSON(ctx, s.store, kv.AchievementsKey(userID), &earned); err != nil {
		s.warnUnlessMissing(kv.AchievementsKey(userID), err)
		earned = map[string]time.Time{}
	}

	snapshot := s.Snapshot(ctx, userID)

	var all, newly []model.Achievement
	changed := false
	for _, def := range catalog {
		when, was := earned[def.ID]
		if !was && def.Met(snapshot) {
			when = s.now()
			earned[def.ID] = when
			changed = true
		}
		_, is := earned[def.ID]
		ach := model.Achievement{
			ID:     def.ID,
			Title:  def.Title,
			Points: def.Points,
			Earned: is,
		}
		if is {
			date := when
			ach.EarnedDate = &date
		}
		all = append(all, ach)
		if !was && is {
			newly = append(newly, ach)
		}
	}

	if changed {
		if err := kv.PutJSON(ctx, s.store, kv.AchievementsKey(userID), earned); err != nil {
			return nil, nil, err
		}
	}
	return all, newly, nil
}
