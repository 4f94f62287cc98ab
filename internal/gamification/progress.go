package gamification

import (
	"context"
	"errors"
	"fmt"

	"skillforge/internal/kv"
	"skillforge/internal/model"
)

// The whole progress table lives in one blob keyed by user id, mirroring the
// single mock-progress record the platform has always written.
type progressBlob map[string][]model.ProgressStep

var ErrInvalidPath = errors.New("gamification: unknown path type")

func (s *Service) loadProgress(ctx context.Context) progressBlob {
	blob := progressBlob{}
	if err := kv.GetJSON(ctx, s.store, kv.KeyMockProgress, &blob); err != nil {
		s.warnUnlessMissing(kv.KeyMockProgress, err)
		return progressBlob{}
	}
	return blob
}

// ToggleStep flips the completed flag of (path, step) for the user. Toggling
// twice restores the original state. Steps have no ordering dependency; any
// "locked" affordance upstream is cosmetic.
func (s *Service) ToggleStep(ctx context.Context, userID string, path model.PathType, stepIndex int) (model.ProgressStep, error) {
	if !path.Valid() {
		return model.ProgressStep{}, ErrInvalidPath
	}
	if stepIndex < 0 {
		return model.ProgressStep{}, fmt.Errorf("gamification: negative step index %d", stepIndex)
	}

	blob := s.loadProgress(ctx)
	steps := blob[userID]

	var toggled *model.ProgressStep
	for i := range steps {
		if steps[i].PathType == path && steps[i].StepIndex == stepIndex {
			steps[i].Completed = !steps[i].Completed
			if steps[i].Completed {
				now := s.now()
				steps[i].CompletedAt = &now
			} else {
				steps[i].CompletedAt = nil
			}
			toggled = &steps[i]
			break
		}
	}
	if toggled == nil {
		now := s.now()
		step := model.ProgressStep{
			UserID:      userID,
			PathType:    path,
			StepIndex:   stepIndex,
			Completed:   true,
			CompletedAt: &now,
		}
		steps = append(steps, step)
		toggled = &steps[len(steps)-1]
	}

	blob[userID] = steps
	if err := kv.PutJSON(ctx, s.store, kv.KeyMockProgress, blob); err != nil {
		return model.ProgressStep{}, err
	}
	return *toggled, nil
}

// Steps returns the touched steps for one path, in insertion order.
func (s *Service) Steps(ctx context.Context, userID string, path model.PathType) []model.ProgressStep {
	var out []model.ProgressStep
	for _, step := range s.loadProgress(ctx)[userID] {
		if step.PathType == path {
			out = append(out, step)
		}
	}
	return out
}

func (s *Service) completedStepCount(ctx context.Context, userID string) int {
	count := 0
	for _, step := range s.loadProgress(ctx)[userID] {
		if step.Completed {
			count++
		}
	}
	return count
}
