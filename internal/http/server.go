package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"skillforge/internal/checkout"
	"skillforge/internal/community"
	"skillforge/internal/config"
	"skillforge/internal/gamification"
	"skillforge/internal/model"
	"skillforge/internal/moderation"
	"skillforge/internal/notify"
	"skillforge/internal/profile"
	"skillforge/internal/session"
)

type Server struct {
	cfg        config.Config
	resolver   *session.Resolver
	profiles   *profile.Cache
	game       *gamification.Service
	community  *community.Service
	moderation *moderation.Service
	notifier   *notify.Center
	checkout   *checkout.Client
	log        *zap.SugaredLogger
	admins     map[string]bool
}

func NewServer(
	cfg config.Config,
	resolver *session.Resolver,
	profiles *profile.Cache,
	game *gamification.Service,
	communitySvc *community.Service,
	moderationSvc *moderation.Service,
	notifier *notify.Center,
	checkoutClient *checkout.Client,
	log *zap.SugaredLogger,
) *Server {
	admins := map[string]bool{}
	for _, email := range strings.Split(cfg.AdminEmails, ",") {
		email = strings.TrimSpace(strings.ToLower(email))
		if email != "" {
			admins[email] = true
		}
	}
	return &Server{
		cfg:        cfg,
		resolver:   resolver,
		profiles:   profiles,
		game:       game,
		community:  communitySvc,
		moderation: moderationSvc,
		notifier:   notifier,
		checkout:   checkoutClient,
		log:        log,
		admins:     admins,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/signup", s.handleSignUp)
	r.Post("/auth/signin", s.handleSignIn)
	r.Get("/auth/session", s.handleGetSession)
	r.With(s.authMiddleware).Post("/auth/signout", s.handleSignOut)

	r.With(s.authMiddleware).Get("/profile", s.handleGetProfile)
	r.With(s.authMiddleware).Patch("/profile", s.handlePatchProfile)

	r.With(s.authMiddleware).Get("/progress/{pathType}", s.handleGetProgress)
	r.With(s.authMiddleware).Post("/progress/{pathType}/{step}/toggle", s.handleToggleStep)
	r.With(s.authMiddleware).Get("/xp", s.handleGetXP)
	r.With(s.authMiddleware).Get("/achievements", s.handleGetAchievements)
	r.With(s.authMiddleware).Post("/guides/complete", s.handleCompleteGuide)
	r.With(s.authMiddleware).Post("/tutorials/complete", s.handleCompleteTutorial)

	r.With(s.authMiddleware).Get("/notifications", s.handleListNotifications)
	r.With(s.authMiddleware).Delete("/notifications/{notificationId}", s.handleDismissNotification)

	r.Get("/community/feed", s.handleFeed)
	r.With(s.authMiddleware).Post("/community/posts", s.handleCreatePost)
	r.With(s.authMiddleware).Post("/community/discussions", s.handleCreateDiscussion)
	r.With(s.authMiddleware).Post("/community/templates", s.handleSubmitTemplate)
	r.With(s.authMiddleware).Post("/community/members/{memberId}/like", s.handleToggleLike)
	r.With(s.authMiddleware).Post("/community/reports", s.handleReportContent)

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireAdmin)
		r.Get("/queue", s.handleAdminQueue)
		r.Post("/items/{kind}/{itemId}/{action}", s.handleAdminAction)
	})

	r.With(s.authMiddleware).Post("/checkout", s.handleCheckout)

	return r
}

// Auth

type sessionKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		sess, err := s.resolver.SessionByToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFromContext(r.Context())
		if sess == nil || !s.admins[strings.ToLower(sess.User.Email)] {
			writeError(w, http.StatusForbidden, "admin_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionFromContext(ctx context.Context) *model.Session {
	sess, _ := ctx.Value(sessionKey{}).(*model.Session)
	return sess
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// Auth handlers

type sessionResponse struct {
	Session *model.Session     `json:"session"`
	User    *model.SessionUser `json:"user"`
	Profile *model.Profile     `json:"profile"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var params session.SignUpParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	sess, err := s.resolver.SignUp(r.Context(), params)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, session.ErrEmailTaken) {
			status = http.StatusConflict
		}
		writeError(w, status, validationCode(err))
		return
	}
	user, prof, _ := s.resolver.Current()
	writeJSON(w, http.StatusCreated, sessionResponse{Session: sess, User: user, Profile: prof})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var params session.SignInParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	sess, err := s.resolver.SignIn(r.Context(), params)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, session.ErrPasswordMismatch) {
			status = http.StatusUnauthorized
		}
		writeError(w, status, validationCode(err))
		return
	}
	user, prof, _ := s.resolver.Current()
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess, User: user, Profile: prof})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	user, prof, sess := s.resolver.Current()
	if sess != nil && bearerToken(r) != sess.AccessToken {
		// Anonymous bootstrap callers learn who is signed in, never the
		// credentials.
		redacted := *sess
		redacted.AccessToken = ""
		redacted.RefreshToken = ""
		sess = &redacted
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess, User: user, Profile: prof})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.resolver.SignOut(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Profile handlers

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	user := sess.User
	prof := s.profiles.Fetch(r.Context(), user.ID, &user)
	if prof == nil {
		writeError(w, http.StatusNotFound, "profile_not_found")
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (s *Server) handlePatchProfile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var partial profile.Partial
	if err := decodeJSON(r, &partial); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	user := sess.User
	prof := s.profiles.Update(r.Context(), user.ID, partial, &user)
	if prof == nil {
		writeError(w, http.StatusNotFound, "profile_not_found")
		return
	}
	s.notifier.Publish(model.NotifySuccess, "Profile updated")
	writeJSON(w, http.StatusOK, prof)
}

// Gamification handlers

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	path := model.PathType(chi.URLParam(r, "pathType"))
	if !path.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_path_type")
		return
	}
	steps := s.game.Steps(r.Context(), sess.User.ID, path)
	writeJSON(w, http.StatusOK, map[string]interface{}{"pathType": path, "steps": steps})
}

func (s *Server) handleToggleStep(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	path := model.PathType(chi.URLParam(r, "pathType"))
	step, err := strconv.Atoi(chi.URLParam(r, "step"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_step")
		return
	}

	toggled, err := s.game.ToggleStep(r.Context(), sess.User.ID, path, step)
	if err != nil {
		if errors.Is(err, gamification.ErrInvalidPath) {
			writeError(w, http.StatusBadRequest, "invalid_path_type")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, toggled)
}

func (s *Server) handleGetXP(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	ledger := s.game.Ledger(r.Context(), sess.User.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalXP":    ledger.TotalXP,
		"activities": ledger.Activities,
		"level":      model.Level(ledger.TotalXP),
		"streakDays": s.game.Streak(r.Context(), sess.User.ID),
	})
}

func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	all, newly, err := s.game.Evaluate(r.Context(), sess.User.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	for _, ach := range newly {
		s.notifier.Publish(model.NotifySuccess, "Achievement unlocked: "+ach.Title)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"achievements": all, "newlyEarned": newly})
}

type completeGuideRequest struct {
	GuideID int `json:"guideId"`
}

func (s *Server) handleCompleteGuide(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req completeGuideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	userID := sess.User.ID
	levelBefore := model.Level(s.game.Ledger(r.Context(), userID).TotalXP)
	awarded, err := s.game.CompleteGuide(r.Context(), userID, req.GuideID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	ledger := s.game.Ledger(r.Context(), userID)
	if level := model.Level(ledger.TotalXP); level > levelBefore {
		s.notifier.Publish(model.NotifySuccess, "Level up! You reached level "+strconv.Itoa(level))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"awarded": awarded,
		"totalXP": ledger.TotalXP,
		"level":   model.Level(ledger.TotalXP),
	})
}

type completeTutorialRequest struct {
	TutorialID string `json:"tutorialId"`
}

func (s *Server) handleCompleteTutorial(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req completeTutorialRequest
	if err := decodeJSON(r, &req); err != nil || req.TutorialID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	awarded, err := s.game.CompleteTutorial(r.Context(), sess.User.ID, req.TutorialID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"awarded": awarded})
}

// Notification handlers

func (s *Server) handleListNotifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.notifier.List())
}

func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	s.notifier.Dismiss(chi.URLParam(r, "notificationId"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Community handlers

type createPostRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req createPostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	post, err := s.community.CreatePost(r.Context(), sess.User.ID, req.Title, req.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "title_required")
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

type createDiscussionRequest struct {
	Topic string `json:"topic"`
	Body  string `json:"body"`
}

func (s *Server) handleCreateDiscussion(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req createDiscussionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	discussion, err := s.community.CreateDiscussion(r.Context(), sess.User.ID, req.Topic, req.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "topic_required")
		return
	}
	writeJSON(w, http.StatusCreated, discussion)
}

type submitTemplateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleSubmitTemplate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req submitTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	sub, err := s.community.SubmitTemplate(r.Context(), sess.User.ID, req.Name, req.Description)
	if err != nil {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}
	s.notifier.Publish(model.NotifyInfo, "Template submitted for review")
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	liked, err := s.community.ToggleMemberLike(r.Context(), sess.User.ID, chi.URLParam(r, "memberId"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liked": liked})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.community.Feed(r.Context()))
}

type reportContentRequest struct {
	TargetID string `json:"targetId"`
	Reason   string `json:"reason"`
}

func (s *Server) handleReportContent(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req reportContentRequest
	if err := decodeJSON(r, &req); err != nil || req.TargetID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	report, err := s.moderation.ReportContent(r.Context(), sess.User.ID, req.TargetID, req.Reason)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// Admin handlers

func (s *Server) handleAdminQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := s.moderation.Queue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (s *Server) handleAdminAction(w http.ResponseWriter, r *http.Request) {
	kind := moderation.Kind(chi.URLParam(r, "kind"))
	action := moderation.Action(chi.URLParam(r, "action"))
	id := chi.URLParam(r, "itemId")

	err := s.moderation.Apply(r.Context(), kind, id, action)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, moderation.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, "unknown_kind")
	case errors.Is(err, moderation.ErrUnknownAction):
		writeError(w, http.StatusBadRequest, "unknown_action")
	case errors.Is(err, moderation.ErrNotFound):
		writeError(w, http.StatusNotFound, "item_not_found")
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

// Checkout handler

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req checkout.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	url, err := s.checkout.CreateSession(r.Context(), sess.AccessToken, req)
	if err != nil {
		if errors.Is(err, checkout.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "checkout_unavailable")
			return
		}
		s.log.Warnw("checkout session failed", "error", err)
		writeError(w, http.StatusBadGateway, "checkout_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Helpers

func validationCode(err error) string {
	switch {
	case errors.Is(err, session.ErrEmailRequired):
		return "email_required"
	case errors.Is(err, session.ErrPasswordRequired):
		return "password_required"
	case errors.Is(err, session.ErrPasswordTooShort):
		return "password_too_short"
	case errors.Is(err, session.ErrPasswordMismatch):
		return "password_mismatch"
	case errors.Is(err, session.ErrEmailTaken):
		return "email_taken"
	default:
		return "invalid_request"
	}
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

