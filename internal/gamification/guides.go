package gamification

import (
	"context"
	"fmt"

	"skillforge/internal/kv"
)

const (
	guideXP    = 50
	tutorialXP = 25
)

// CompleteGuide records a guide completion with set semantics: a repeated
// completion neither duplicates the id nor awards XP again.
func (s *Service) CompleteGuide(ctx context.Context, userID string, guideID int) (bool, error) {
	guides := s.CompletedGuides(ctx, userID)
	for _, id := range guides {
		if id == guideID {
			return false, nil
		}
	}

	guides = append(guides, guideID)
	if err := kv.PutJSON(ctx, s.store, kv.CompletedGuidesKey(userID), guides); err != nil {
		return false, err
	}
	if _, _, err := s.AddXP(ctx, userID, "guide-completed", guideXP, fmt.Sprintf("guide %d", guideID)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) CompletedGuides(ctx context.Context, userID string) []int {
	var guides []int
	if err := kv.GetJSON(ctx, s.store, kv.CompletedGuidesKey(userID), &guides); err != nil {
		s.warnUnlessMissing(kv.CompletedGuidesKey(userID), err)
		return nil
	}
	return guides
}

// CompleteTutorial mirrors CompleteGuide over the shared tutorial-completions
// blob, which is keyed by user inside a single record.
func (s *Service) CompleteTutorial(ctx context.Context, userID, tutorialID string) (bool, error) {
	completions := map[string][]string{}
	if err := kv.GetJSON(ctx, s.store, kv.KeyTutorialCompletions, &completions); err != nil {
		s.warnUnlessMissing(kv.KeyTutorialCompletions, err)
		completions = map[string][]string{}
	}

	for _, id := range completions[userID] {
		if id == tutorialID {
			return false, nil
		}
	}
	completions[userID] = append(completions[userID], tutorialID)
	if err := kv.PutJSON(ctx, s.store, kv.KeyTutorialCompletions, completions); err != nil {
		return false, err
	}
	if _, _, err := s.AddXP(ctx, userID, "tutorial-completed", tutorialXP, tutorialID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) CompletedTutorials(ctx context.Context, userID string) []string {
	completions := map[string][]string{}
	if err := kv.GetJSON(ctx, s.store, kv.KeyTutorialCompletions, &completions); err != nil {
		s.warnUnlessMissing(kv.KeyTutorialCompletions, err)
		return nil
	}
	return completions[userID]
}
