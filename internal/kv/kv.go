// Package kv is the local persistence seam. Every per-user record the
// platform keeps when the remote backend is absent lives behind Store as a
// JSON blob under a well-known key. Writes are full read-modify-write with
// last-writer-wins semantics; callers that need anything stronger do not
// belong here.
package kv

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrNotFound = errors.New("kv: key not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Well-known keys. The per-user ones are produced by the helper funcs below.
const (
	KeyMockUser            = "mock-user"
	KeyMockProfile         = "mock-profile"
	KeyMockProgress        = "mock-progress"
	KeyTutorialCompletions = "tutorial-completions"
)

func AchievementsKey(userID string) string        { return "achievements-" + userID }
func XPKey(userID string) string                  { return "xp-" + userID }
func CompletedGuidesKey(userID string) string     { return "completed-guides-" + userID }
func TemplateSubmissionsKey(userID string) string { return "template-submissions-" + userID }
func UserPostsKey(userID string) string           { return "user-posts-" + userID }
func UserDiscussionsKey(userID string) string     { return "user-discussions-" + userID }
func LikedMembersKey(userID string) string        { return "liked-members-" + userID }
func CommunityKey(userID string) string           { return "community-" + userID }
func TemplatesKey(userID string) string           { return "templates-" + userID }

// GetJSON decodes the value at key into out. A missing key returns
// ErrNotFound untouched; malformed JSON is corruption and is reported so the
// caller can treat it as absence (and log it).
func GetJSON(ctx context.Context, s Store, key string, out interface{}) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Join(ErrCorrupt, err)
	}
	return nil
}

var ErrCorrupt = errors.New("kv: malformed stored value")

func PutJSON(ctx context.Context, s Store, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, raw)
}
