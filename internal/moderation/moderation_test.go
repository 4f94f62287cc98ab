package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"skillforge/internal/community"
	"skillforge/internal/kv"
	"skillforge/internal/model"
	"skillforge/internal/notify"
)

type fixture struct {
	store     *kv.Memory
	svc       *Service
	community *community.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := kv.NewMemory()
	log := zap.NewNop().Sugar()
	center := notify.NewCenter(time.Minute)
	t.Cleanup(center.Close)
	return fixture{
		store:     store,
		svc:       NewService(store, center, log),
		community: community.NewService(store, log),
	}
}

func TestApplyRejectsUnknownKindAndAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.Apply(ctx, "mystery", "id", ActionApprove); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if err := f.svc.Apply(ctx, KindUserRecord, "id", "obliterate"); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if err := f.svc.Apply(ctx, KindUserRecord, "missing", ActionApprove); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApproveTemplateSubmissionPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.community.SubmitTemplate(ctx, "u1", "starter-kit", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	queue, err := f.svc.Queue(ctx)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(queue) != 1 || queue[0].Kind != KindTemplateSubmission || queue[0].Submission == nil {
		t.Fatalf("expected one tagged submission in queue, got %+v", queue)
	}

	if err := f.svc.Apply(ctx, KindTemplateSubmission, sub.ID, ActionApprove); err != nil {
		t.Fatalf("approve: %v", err)
	}

	subs := f.community.Submissions(ctx, "u1")
	if subs[0].Status != model.SubmissionApproved || subs[0].ReviewedAt == nil {
		t.Fatalf("expected approved submission, got %+v", subs[0])
	}

	var published []model.TemplateSubmission
	if err := kv.GetJSON(ctx, f.store, kv.TemplatesKey("u1"), &published); err != nil {
		t.Fatalf("expected published template: %v", err)
	}
	if len(published) != 1 || published[0].Name != "starter-kit" {
		t.Fatalf("unexpected published templates: %+v", published)
	}

	// An approved submission leaves the queue.
	queue, err = f.svc.Queue(ctx)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	for _, item := range queue {
		if item.Kind == KindTemplateSubmission {
			t.Fatalf("approved submission still queued: %+v", item)
		}
	}
}

func TestRejectTemplateSubmissionDoesNotPublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.community.SubmitTemplate(ctx, "u1", "bad-kit", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.svc.Apply(ctx, KindTemplateSubmission, sub.ID, ActionReject); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := f.store.Get(ctx, kv.TemplatesKey("u1")); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("rejected submission must not be published")
	}
}

func TestContentReportLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.svc.ReportContent(ctx, "u1", "post-9", "spam")
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	queue, err := f.svc.Queue(ctx)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(queue) != 1 || queue[0].Kind != KindContentReport {
		t.Fatalf("expected report in queue, got %+v", queue)
	}

	if err := f.svc.Apply(ctx, KindContentReport, report.ID, ActionApprove); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	queue, err = f.svc.Queue(ctx)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(queue) != 0 {
		t.Fatalf("resolved report still queued: %+v", queue)
	}
}

func TestRemoveUserPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post, err := f.community.CreatePost(ctx, "u1", "spammy", "buy things")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Apply(ctx, KindUserRecord, post.ID, ActionRemove); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if posts := f.community.Posts(ctx, "u1"); len(posts) != 0 {
		t.Fatalf("expected post removed, got %+v", posts)
	}
}
