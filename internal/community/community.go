// Package community stores the per-user discussion-feed records: posts,
// discussions, template submissions, and member likes.
package community

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skillforge/internal/kv"
	"skillforge/internal/model"
)

var (
	ErrTitleRequired = errors.New("community: title is required")
	ErrTopicRequired = errors.New("community: topic is required")
	ErrNameRequired  = errors.New("community: template name is required")
)

type Service struct {
	store kv.Store
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewService(store kv.Store, log *zap.SugaredLogger) *Service {
	return &Service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) CreatePost(ctx context.Context, userID, title, body string) (model.Post, error) {
	if title == "" {
		return model.Post{}, ErrTitleRequired
	}
	posts := s.Posts(ctx, userID)
	post := model.Post{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		CreatedAt: s.now(),
	}
	posts = append(posts, post)
	if err := kv.PutJSON(ctx, s.store, kv.UserPostsKey(userID), posts); err != nil {
		return model.Post{}, err
	}
	return post, nil
}

func (s *Service) Posts(ctx context.Context, userID string) []model.Post {
	var posts []model.Post
	if err := kv.GetJSON(ctx, s.store, kv.UserPostsKey(userID), &posts); err != nil {
		s.warnUnlessMissing(kv.UserPostsKey(userID), err)
		return nil
	}
	return posts
}

func (s *Service) CreateDiscussion(ctx context.Context, userID, topic, body string) (model.Discussion, error) {
	if topic == "" {
		return model.Discussion{}, ErrTopicRequired
	}
	discussions := s.Discussions(ctx, userID)
	discussion := model.Discussion{
		ID:        uuid.NewString(),
		UserID:    userID,
		Topic:     topic,
		Body:      body,
		CreatedAt: s.now(),
	}
	discussions = append(discussions, discussion)
	if err := kv.PutJSON(ctx, s.store, kv.UserDiscussionsKey(userID), discussions); err != nil {
		return model.Discussion{}, err
	}
	return discussion, nil
}

func (s *Service) Discussions(ctx context.Context, userID string) []model.Discussion {
	var discussions []model.Discussion
	if err := kv.GetJSON(ctx, s.store, kv.UserDiscussionsKey(userID), &discussions); err != nil {
		s.warnUnlessMissing(kv.UserDiscussionsKey(userID), err)
		return nil
	}
	return discussions
}

// SubmitTemplate queues a template for moderation; it is published to the
// user's template list only on approval.
func (s *Service) SubmitTemplate(ctx context.Context, userID, name, description string) (model.TemplateSubmission, error) {
	if name == "" {
		return model.TemplateSubmission{}, ErrNameRequired
	}
	subs := s.Submissions(ctx, userID)
	sub := model.TemplateSubmission{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Description: description,
		Status:      model.SubmissionPending,
		SubmittedAt: s.now(),
	}
	subs = append(subs, sub)
	if err := kv.PutJSON(ctx, s.store, kv.TemplateSubmissionsKey(userID), subs); err != nil {
		return model.TemplateSubmission{}, err
	}
	return sub, nil
}

func (s *Service) Submissions(ctx context.Context, userID string) []model.TemplateSubmission {
	var subs []model.TemplateSubmission
	if err := kv.GetJSON(ctx, s.store, kv.TemplateSubmissionsKey(userID), &subs); err != nil {
		s.warnUnlessMissing(kv.TemplateSubmissionsKey(userID), err)
		return nil
	}
	return subs
}

// ToggleMemberLike flips the liked flag for memberID in the user's liked set
// and reports the new state.
func (s *Service) ToggleMemberLike(ctx context.Context, userID, memberID string) (bool, error) {
	var liked []string
	if err := kv.GetJSON(ctx, s.store, kv.LikedMembersKey(userID), &liked); err != nil {
		s.warnUnlessMissing(kv.LikedMembersKey(userID), err)
	}

	for i, id := range liked {
		if id == memberID {
			liked = append(liked[:i], liked[i+1:]...)
			return false, kv.PutJSON(ctx, s.store, kv.LikedMembersKey(userID), liked)
		}
	}
	liked = append(liked, memberID)
	return true, kv.PutJSON(ctx, s.store, kv.LikedMembersKey(userID), liked)
}

func (s *Service) LikedMembers(ctx context.Context, userID string) []string {
	var liked []string
	if err := kv.GetJSON(ctx, s.store, kv.LikedMembersKey(userID), &liked); err != nil {
		s.warnUnlessMissing(kv.LikedMembersKey(userID), err)
		return nil
	}
	return liked
}

// FeedItem is one entry of the merged community feed.
type FeedItem struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Feed merges every user's posts and discussions, newest first.
func (s *Service) Feed(ctx context.Context) []FeedItem {
	var items []FeedItem

	postKeys, err := s.store.Keys(ctx, "user-posts-")
	if err != nil {
		s.log.Warnw("feed scan failed", "error", err)
		return nil
	}
	for _, key := range postKeys {
		var posts []model.Post
		if err := kv.GetJSON(ctx, s.store, key, &posts); err != nil {
			s.warnUnlessMissing(key, err)
			continue
		}
		for _, p := range posts {
			items = append(items, FeedItem{Kind: "post", ID: p.ID, UserID: p.UserID, Title: p.Title, Body: p.Body, CreatedAt: p.CreatedAt})
		}
	}

	discussionKeys, err := s.store.Keys(ctx, "user-discussions-")
	if err != nil {
		s.log.Warnw("feed scan failed", "error", err)
		return items
	}
	for _, key := range discussionKeys {
		var discussions []model.Discussion
		if err := kv.GetJSON(ctx, s.store, key, &discussions); err != nil {
			s.warnUnlessMissing(key, err)
			continue
		}
		for _, d := range discussions {
			items = append(items, FeedItem{Kind: "discussion", ID: d.ID, UserID: d.UserID, Title: d.Topic, Body: d.Body, CreatedAt: d.CreatedAt})
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items
}

func (s *Service) warnUnlessMissing(key string, err error) {
	if errors.Is(err, kv.ErrNotFound) {
		return
	}
	s.log.Warnw("stored value unreadable, treating as empty", "key", key, "error", err)
}
