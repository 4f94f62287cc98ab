// Package moderation is the admin console backend. Every reviewable record
// is carried as a tagged Item so each admin action can branch exhaustively
// per kind instead of poking at an untyped blob.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"skillforge/internal/kv"
	"skillforge/internal/model"
	"skillforge/internal/notify"
)

type Kind string

const (
	KindContentReport      Kind = "content-report"
	KindTemplateSubmission Kind = "template-submission"
	KindUserRecord         Kind = "user-record"
)

func (k Kind) Valid() bool {
	switch k {
	case KindContentReport, KindTemplateSubmission, KindUserRecord:
		return true
	}
	return false
}

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionRemove  Action = "remove"
)

func (a Action) Valid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionRemove:
		return true
	}
	return false
}

var (
	ErrUnknownKind   = errors.New("moderation: unknown content kind")
	ErrUnknownAction = errors.New("moderation: unknown action")
	ErrNotFound      = errors.New("moderation: item not found")
)

// Item is the tagged union flowing through the admin queue. Exactly one of
// the payload pointers is set, matching Kind.
type Item struct {
	Kind       Kind                      `json:"kind"`
	ID         string                    `json:"id"`
	UserID     string                    `json:"userId"`
	Report     *model.ContentReport      `json:"report,omitempty"`
	Submission *model.TemplateSubmission `json:"submission,omitempty"`
	Post       *model.Post               `json:"post,omitempty"`
}

type Service struct {
	store    kv.Store
	notifier *notify.Center
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewService(store kv.Store, notifier *notify.Center, log *zap.SugaredLogger) *Service {
	return &Service{store: store, notifier: notifier, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Queue lists everything awaiting review: unresolved reports, pending
// template submissions, and user posts (reviewable as user records).
func (s *Service) Queue(ctx context.Context) ([]Item, error) {
	var items []Item

	reportKeys, err := s.store.Keys(ctx, "community-")
	if err != nil {
		return nil, err
	}
	for _, key := range reportKeys {
		var reports []model.ContentReport
		if err := kv.GetJSON(ctx, s.store, key, &reports); err != nil {
			s.warnUnlessMissing(key, err)
			continue
		}
		for i := range reports {
			if reports[i].Resolved {
				continue
			}
			report := reports[i]
			items = append(items, Item{Kind: KindContentReport, ID: report.ID, UserID: report.ReporterID, Report: &report})
		}
	}

	subKeys, err := s.store.Keys(ctx, "template-submissions-")
	if err != nil {
		return nil, err
	}
	for _, key := range subKeys {
		var subs []model.TemplateSubmission
		if err := kv.GetJSON(ctx, s.store, key, &subs); err != nil {
			s.warnUnlessMissing(key, err)
			continue
		}
		for i := range subs {
			if subs[i].Status != model.SubmissionPending {
				continue
			}
			sub := subs[i]
			items = append(items, Item{Kind: KindTemplateSubmission, ID: sub.ID, UserID: sub.UserID, Submission: &sub})
		}
	}

	postKeys, err := s.store.Keys(ctx, "user-posts-")
	if err != nil {
		return nil, err
	}
	for _, key := range postKeys {
		var posts []model.Post
		if err := kv.GetJSON(ctx, s.store, key, &posts); err != nil {
			s.warnUnlessMissing(key, err)
			continue
		}
		for i := range posts {
			post := posts[i]
			items = append(items, Item{Kind: KindUserRecord, ID: post.ID, UserID: post.UserID, Post: &post})
		}
	}

	return items, nil
}

// ReportContent files a content report under the reporter's community key.
func (s *Service) ReportContent(ctx context.Context, reporterID, targetID, reason string) (model.ContentReport, error) {
	var reports []model.ContentReport
	key := kv.CommunityKey(reporterID)
	if err := kv.GetJSON(ctx, s.store, key, &reports); err != nil {
		s.warnUnlessMissing(key, err)
	}
	report := model.ContentReport{
		ID:         fmt.Sprintf("report-%d", s.now().UnixNano()),
		ReporterID: reporterID,
		TargetID:   targetID,
		Reason:     reason,
		CreatedAt:  s.now(),
	}
	reports = append(reports, report)
	if err := kv.PutJSON(ctx, s.store, key, reports); err != nil {
		return model.ContentReport{}, err
	}
	return report, nil
}

// Apply performs an admin action on one queued item. The per-kind branches
// are exhaustive: a new Kind fails loudly instead of silently passing.
func (s *Service) Apply(ctx context.Context, kind Kind, id string, action Action) error {
	if !kind.Valid() {
		return ErrUnknownKind
	}
	if !action.Valid() {
		return ErrUnknownAction
	}

	switch kind {
	case KindContentReport:
		return s.applyToReport(ctx, id, action)
	case KindTemplateSubmission:
		return s.applyToSubmission(ctx, id, action)
	case KindUserRecord:
		return s.applyToPost(ctx, id, action)
	default:
		return ErrUnknownKind
	}
}

func (s *Service) applyToReport(ctx context.Context, id string, action Action) error {
	keys, err := s.store.Keys(ctx, "community-")
	if err != nil {
		return err
	}
	for _, key := range keys {
		var reports []model.ContentReport
		if err := kv.GetJSON(ctx, s.store, key, &reports); err != nil {
			s.warnUnlessMissing(key, err)
			continue
		}
		for i := range reports {
			if reports[i].ID != id {
				continue
			}
			switch action {
			case ActionApprove, ActionReject:
				// Approving upholds the report, rejecting dismisses
				// it; either way it is resolved.
				reports[i].Resolved = true
			case ActionRemove:
				reports = append(reports[:i], reports[i+1:]...)
			}
			if err := kv.PutJSON(ctx, s.store, key, reports); err != nil {
				return err
			}
			s.notifier.Publish(model.NotifySuccess, fmt.Sprintf("Report %s %s", id, pastTense(action)))
			return nil
		}
	}
	return ErrNotFound
}

func (s *Service) applyToSubmission(ctx context.Context, id string, action Action) error {
	keys, err := s.store.Keys(ctx, "template-submissions-")
	if err != nil {
		return err
	}
	for _, key := range keys {
		var subs []model.TemplateSubmission
		if err := kv.GetJSON(ctx, s.store, key, &subs); err != nil {
			s.warnUnlessMissing(key, err)
			continue
		}
		for i := range subs {
			if subs[i].ID != id {
				continue
			}
			now := s.now()
			switch action {
			case ActionApprove:
				subs[i].Status = model.SubmissionApproved
				subs[i].ReviewedAt = &now
				if err := s.publishTemplate(ctx, subs[i]); err != nil {
					return err
				}
			case ActionReject:
				subs[i].Status = model.SubmissionRejected
				subs[i].ReviewedAt = &now
			case ActionRemove:
				subs = append(subs[:i], subs[i+1:]...)
				if err := kv.PutJSON(ctx, s.store, key, subs); err != nil {
					return err
				}
				s.notifier.Publish(model.NotifySuccess, "Submission removed")
				return nil
			}
			if err := kv.PutJSON(ctx, s.store, key, subs); err != nil {
				return err
			}
			s.notifier.Publish(model.NotifySuccess, fmt.Sprintf("Template %q %s", subs[i].Name, pastTense(action)))
			return nil
		}
	}
	return ErrNotFound
}

func (s *Service) applyToPost(ctx context.Context, id string, action Action) error {
	keys, err := s.store.Keys(ctx, "user-posts-")
	if err != nil {
		return err
	}
	for _, key := range keys {
		var posts []model.Post
		if err := kv.GetJSON(ctx, s.store, key, &posts); err != nil {
			s.warnUnlessMissing(key, err)
			continue
		}
		for i := range posts {
			if posts[i].ID != id {
				continue
			}
			switch action {
			case ActionApprove:
				// Posts are live by default; approval is a no-op ack.
			case ActionReject, ActionRemove:
				posts = append(posts[:i], posts[i+1:]...)
				if err := kv.PutJSON(ctx, s.store, key, posts); err != nil {
					return err
				}
			}
			s.notifier.Publish(model.NotifySuccess, fmt.Sprintf("Post %s handled", id))
			return nil
		}
	}
	return ErrNotFound
}

// publishTemplate copies an approved submission into the author's public
// template list.
func (s *Service) publishTemplate(ctx context.Context, sub model.TemplateSubmission) error {
	var templates []model.TemplateSubmission
	key := kv.TemplatesKey(sub.UserID)
	if err := kv.GetJSON(ctx, s.store, key, &templates); err != nil {
		s.warnUnlessMissing(key, err)
	}
	templates = append(templates, sub)
	return kv.PutJSON(ctx, s.store, key, templates)
}

func pastTense(action Action) string {
	switch action {
	case ActionApprove:
		return "approved"
	case ActionReject:
		return "rejected"
	case ActionRemove:
		return "removed"
	}
	return string(action)
}

func (s *Service) warnUnlessMissing(key string, err error) {
	if errors.Is(err, kv.ErrNotFound) {
		return
	}
	s.log.Warnw("stored value unreadable, treating as empty", "key", key, "error", err)
}
