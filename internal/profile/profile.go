// Package profile resolves the denormalized user profile, preferring the
// remote row store and degrading to the local cached copy. Fetch never fails:
// a profile or nil, nothing else.
package profile

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"skillforge/internal/bound"
	"skillforge/internal/kv"
	"skillforge/internal/model"
)

// Remote is the slice of the hosted backend this cache consumes. nil means
// the backend is not configured.
type Remote interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, p *model.Profile) error
}

// Partial carries a profile edit; nil fields are left untouched.
type Partial struct {
	FullName  *string `json:"fullName,omitempty"`
	Role      *string `json:"role,omitempty"`
	Company   *string `json:"company,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

type Cache struct {
	remote  Remote
	local   kv.Store
	log     *zap.SugaredLogger
	timeout time.Duration
	now     func() time.Time
}

func NewCache(remote Remote, local kv.Store, log *zap.SugaredLogger, timeout time.Duration) *Cache {
	return &Cache{
		remote:  remote,
		local:   local,
		log:     log,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Fetch resolves a profile: remote lookup, then the local cached copy, then
// synthesis from session metadata, then nil. Remote hits refresh the local
// copy so fallback mode starts warm.
func (c *Cache) Fetch(ctx context.Context, userID string, sessionUser *model.SessionUser) *model.Profile {
	if c.remote != nil {
		p, err := bound.Run(ctx, c.timeout, func(ctx context.Context) (*model.Profile, error) {
			return c.remote.GetProfile(ctx, userID)
		})
		if err == nil && p != nil {
			if err := kv.PutJSON(ctx, c.local, kv.KeyMockProfile, p); err != nil {
				c.log.Warnw("profile cache write failed", "error", err)
			}
			return p
		}
		if err != nil {
			c.log.Warnw("remote profile lookup failed, using local copy", "userId", userID, "error", err)
		}
	}

	var cached model.Profile
	err := kv.GetJSON(ctx, c.local, kv.KeyMockProfile, &cached)
	if err == nil && cached.ID == userID {
		return &cached
	}
	if err != nil && !isAbsence(err) {
		c.log.Warnw("local profile unreadable", "error", err)
	}

	if sessionUser != nil && sessionUser.ID == userID {
		now := c.now()
		return &model.Profile{
			ID:        sessionUser.ID,
			Email:     sessionUser.Email,
			FullName:  sessionUser.FullName,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return nil
}

// Update merges the partial into the local copy first, then tries the remote
// write. A remote failure is logged, never rolled back: in fallback mode the
// local copy is authoritative.
func (c *Cache) Update(ctx context.Context, userID string, partial Partial, sessionUser *model.SessionUser) *model.Profile {
	current := c.Fetch(ctx, userID, sessionUser)
	if current == nil {
		return nil
	}

	if partial.FullName != nil {
		current.FullName = *partial.FullName
	}
	if partial.Role != nil {
		current.Role = *partial.Role
	}
	if partial.Company != nil {
		current.Company = *partial.Company
	}
	if partial.AvatarURL != nil {
		current.AvatarURL = *partial.AvatarURL
	}
	current.UpdatedAt = c.now()

	if err := kv.PutJSON(ctx, c.local, kv.KeyMockProfile, current); err != nil {
		c.log.Warnw("local profile write failed", "error", err)
	}

	if c.remote != nil {
		_, err := bound.Run(ctx, c.timeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.remote.UpdateProfile(ctx, current)
		})
		if err != nil {
			c.log.Warnw("remote profile update failed, local copy kept", "userId", userID, "error", err)
		}
	}
	return current
}

// Seed writes the initial local profile for a freshly created account.
func (c *Cache) Seed(ctx context.Context, p *model.Profile) error {
	return kv.PutJSON(ctx, c.local, kv.KeyMockProfile, p)
}

// Clear drops the local cached copy.
func (c *Cache) Clear(ctx context.Context) {
	if err := c.local.Delete(ctx, kv.KeyMockProfile); err != nil {
		c.log.Warnw("profile cache clear failed", "error", err)
	}
}

func isAbsence(err error) bool {
	return err == nil || errors.Is(err, kv.ErrNotFound)
}
