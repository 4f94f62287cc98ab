// Package session produces the (user, profile, session) triple for the rest
// of the platform. It prefers the hosted backend and degrades to the
// local-storage mock identity whenever the backend is absent, slow, or
// broken; the only errors it ever surfaces are validation errors.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skillforge/internal/bound"
	"skillforge/internal/crypto"
	"skillforge/internal/kv"
	"skillforge/internal/model"
	"skillforge/internal/notify"
	"skillforge/internal/profile"
	"skillforge/internal/remote"
)

type State string

const (
	StateUninitialized       State = "uninitialized"
	StateResolving           State = "resolving"
	StateAuthenticatedRemote State = "authenticated-remote"
	StateAuthenticatedLocal  State = "authenticated-local"
	StateSignedOut           State = "signed-out"
)

// Validation errors: the only failures callers are allowed to see.
var (
	ErrEmailRequired    = errors.New("session: email is required")
	ErrPasswordRequired = errors.New("session: password is required")
	ErrPasswordTooShort = errors.New("session: password must be at least 6 characters")
	ErrPasswordMismatch = errors.New("session: passwords do not match")
	ErrEmailTaken       = errors.New("session: email already registered")
	ErrNotAuthenticated = errors.New("session: not authenticated")
)

// Remote is the slice of the hosted backend the resolver consumes; nil means
// the backend is not configured and the local path is used directly.
// CurrentSession returns (nil, nil) when the backend is reachable but nobody
// is signed in; an error always means infrastructure failure.
type Remote interface {
	Probe(ctx context.Context) error
	CurrentSession(ctx context.Context) (*model.Session, error)
	SessionByToken(ctx context.Context, token string) (*model.Session, error)
	SignUp(ctx context.Context, email, password, fullName string) (*model.Session, error)
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context, token string) error
}

type Timeouts struct {
	Probe      time.Duration
	Session    time.Duration
	Auth       time.Duration
	LocalDelay time.Duration
	SessionTTL time.Duration
}

// localUser is the persisted mock identity record at the mock-user key.
type localUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName,omitempty"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Resolver struct {
	remote   Remote
	local    kv.Store
	profiles *profile.Cache
	notifier *notify.Center
	log      *zap.SugaredLogger
	timeouts Timeouts

	mu         sync.Mutex
	state      State
	remoteDown bool
	session    *model.Session
	profile    *model.Profile
}

func NewResolver(remote Remote, local kv.Store, profiles *profile.Cache, notifier *notify.Center, log *zap.SugaredLogger, timeouts Timeouts) *Resolver {
	if timeouts.SessionTTL <= 0 {
		timeouts.SessionTTL = 24 * time.Hour
	}
	return &Resolver{
		remote:   remote,
		local:    local,
		profiles: profiles,
		notifier: notifier,
		log:      log,
		timeouts: timeouts,
		state:    StateUninitialized,
	}
}

func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Current returns the triple. Any of the three may be nil when signed out.
func (r *Resolver) Current() (*model.SessionUser, *model.Profile, *model.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil, nil, nil
	}
	user := r.session.User
	return &user, r.profile, r.session
}

// Resolve bootstraps the triple at application start. It never returns an
// error: every remote failure mode ends in the local path or signed-out.
func (r *Resolver) Resolve(ctx context.Context) State {
	r.setState(StateResolving)

	if r.remoteAvailable() {
		if err := r.probe(ctx); err != nil {
			r.markRemoteDown("probe failed", err)
		} else {
			session, err := bound.Run(ctx, r.timeouts.Session, func(ctx context.Context) (*model.Session, error) {
				return r.remote.CurrentSession(ctx)
			})
			switch {
			case err == nil && session != nil:
				r.adopt(session, StateAuthenticatedRemote)
				r.attachProfile(ctx)
				return r.State()
			case err == nil:
				// Reachable backend, nobody signed in.
				r.setState(StateSignedOut)
				return StateSignedOut
			default:
				r.markRemoteDown("session restore failed", err)
			}
		}
	}

	// Local path: adopt the persisted mock identity if one exists.
	user, err := r.loadLocalUser(ctx)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			r.log.Warnw("stored mock user unreadable, treating as signed out", "error", err)
		}
		r.setState(StateSignedOut)
		return StateSignedOut
	}

	session, err := r.synthesizeSession(user)
	if err != nil {
		r.log.Warnw("local session synthesis failed", "error", err)
		r.setState(StateSignedOut)
		return StateSignedOut
	}
	r.adopt(session, StateAuthenticatedLocal)
	r.attachProfile(ctx)
	return r.State()
}

type SignUpParams struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
	FullName        string `json:"fullName,omitempty"`
}

func (p *SignUpParams) validate() error {
	p.Email = strings.TrimSpace(strings.ToLower(p.Email))
	if p.Email == "" {
		return ErrEmailRequired
	}
	if p.Password == "" {
		return ErrPasswordRequired
	}
	if len(p.Password) < 6 {
		return ErrPasswordTooShort
	}
	if p.ConfirmPassword != "" && p.ConfirmPassword != p.Password {
		return ErrPasswordMismatch
	}
	return nil
}

// SignUp creates an account remotely when possible, otherwise through the
// simulated local flow, which always succeeds once validation has passed.
func (r *Resolver) SignUp(ctx context.Context, params SignUpParams) (*model.Session, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	r.setState(StateResolving)

	if r.remoteAvailable() {
		session, err := bound.Run(ctx, r.timeouts.Auth, func(ctx context.Context) (*model.Session, error) {
			return r.remote.SignUp(ctx, params.Email, params.Password, params.FullName)
		})
		switch {
		case err == nil:
			r.adopt(session, StateAuthenticatedRemote)
			r.attachProfile(ctx)
			r.notifier.Publish(model.NotifySuccess, "Welcome to SkillForge, "+displayName(session.User)+"!")
			return session, nil
		case errors.Is(err, remote.ErrEmailTaken):
			// The backend answered and refused. It stays trusted, and the
			// local flow must not shadow the existing account.
			r.setState(StateSignedOut)
			r.notifier.Publish(model.NotifyError, "Sign-up failed. Please try again.")
			return nil, ErrEmailTaken
		default:
			r.markRemoteDown("remote sign-up failed", err)
		}
	}

	session, err := r.localSignUp(ctx, params)
	if err != nil {
		r.setState(StateSignedOut)
		r.notifier.Publish(model.NotifyError, "Sign-up failed. Please try again.")
		return nil, err
	}
	r.adopt(session, StateAuthenticatedLocal)
	r.attachProfile(ctx)
	r.notifier.Publish(model.NotifySuccess, "Welcome to SkillForge, "+displayName(session.User)+"!")
	return session, nil
}

type SignInParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p *SignInParams) validate() error {
	p.Email = strings.TrimSpace(strings.ToLower(p.Email))
	if p.Email == "" {
		return ErrEmailRequired
	}
	if p.Password == "" {
		return ErrPasswordRequired
	}
	return nil
}

func (r *Resolver) SignIn(ctx context.Context, params SignInParams) (*model.Session, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	r.setState(StateResolving)

	if r.remoteAvailable() {
		session, err := bound.Run(ctx, r.timeouts.Auth, func(ctx context.Context) (*model.Session, error) {
			return r.remote.SignIn(ctx, params.Email, params.Password)
		})
		switch {
		case err == nil:
			r.adopt(session, StateAuthenticatedRemote)
			r.attachProfile(ctx)
			r.notifier.Publish(model.NotifySuccess, "Signed in as "+session.User.Email)
			return session, nil
		case errors.Is(err, remote.ErrInvalidCredentials):
			// A credential rejection from a healthy backend surfaces as-is.
			// Demoting here would strand the user on the local path, and
			// the local flow would even register the rejected password.
			r.setState(StateSignedOut)
			r.notifier.Publish(model.NotifyError, "Sign-in failed. Please try again.")
			return nil, ErrPasswordMismatch
		default:
			r.markRemoteDown("remote sign-in failed", err)
		}
	}

	session, err := r.localSignIn(ctx, params)
	if err != nil {
		r.setState(StateSignedOut)
		r.notifier.Publish(model.NotifyError, "Sign-in failed. Please try again.")
		return nil, err
	}
	r.adopt(session, StateAuthenticatedLocal)
	r.attachProfile(ctx)
	r.notifier.Publish(model.NotifySuccess, "Signed in as "+session.User.Email)
	return session, nil
}

// SignOut clears in-memory state first so callers see the effect
// immediately, then best-effort clears the remote session, then always
// removes the local keys.
func (r *Resolver) SignOut(ctx context.Context) {
	r.mu.Lock()
	var token string
	if r.session != nil {
		token = r.session.AccessToken
	}
	wasRemote := r.state == StateAuthenticatedRemote
	r.session = nil
	r.profile = nil
	r.state = StateSignedOut
	r.mu.Unlock()

	if wasRemote && r.remote != nil {
		if _, err := bound.Run(ctx, r.timeouts.Session, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.remote.SignOut(ctx, token)
		}); err != nil {
			r.log.Warnw("remote sign-out failed", "error", err)
		}
	}

	if err := r.local.Delete(ctx, kv.KeyMockUser); err != nil {
		r.log.Warnw("mock user cleanup failed", "error", err)
	}
	r.profiles.Clear(ctx)
	r.notifier.Publish(model.NotifyInfo, "Signed out")
}

// SessionByToken backs the HTTP auth middleware: it accepts the token of the
// currently adopted session, and in remote mode also any token the backend
// still recognizes.
func (r *Resolver) SessionByToken(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	r.mu.Lock()
	current := r.session
	r.mu.Unlock()
	if current != nil && current.AccessToken == token && !current.Expired(time.Now().UTC()) {
		return current, nil
	}

	if r.remoteAvailable() {
		session, err := bound.Run(ctx, r.timeouts.Session, func(ctx context.Context) (*model.Session, error) {
			return r.remote.SessionByToken(ctx, token)
		})
		if err == nil && session != nil && !session.Expired(time.Now().UTC()) {
			return session, nil
		}
	}
	return nil, ErrNotAuthenticated
}

// Local path

func (r *Resolver) localSignUp(ctx context.Context, params SignUpParams) (*model.Session, error) {
	if err := bound.Sleep(ctx, r.timeouts.LocalDelay); err != nil {
		return nil, err
	}

	hash, err := crypto.HashPassword(params.Password)
	if err != nil {
		return nil, err
	}
	user := localUser{
		// Deterministic per email, so a re-registration after storage
		// loss yields the same id and the per-user keys line up again.
		ID:           uuid.NewSHA1(uuid.NameSpaceURL, []byte("skillforge:"+params.Email)).String(),
		Email:        params.Email,
		FullName:     params.FullName,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := kv.PutJSON(ctx, r.local, kv.KeyMockUser, user); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := r.profiles.Seed(ctx, &model.Profile{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		r.log.Warnw("profile seed failed", "error", err)
	}

	return r.synthesizeSession(user)
}

func (r *Resolver) localSignIn(ctx context.Context, params SignInParams) (*model.Session, error) {
	if err := bound.Sleep(ctx, r.timeouts.LocalDelay); err != nil {
		return nil, err
	}

	user, err := r.loadLocalUser(ctx)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) || errors.Is(err, kv.ErrCorrupt) {
			// The demo flow accepts any credentials when no account
			// exists yet: sign-in doubles as registration.
			return r.localSignUp(ctx, SignUpParams{Email: params.Email, Password: params.Password})
		}
		return nil, err
	}
	if user.Email != params.Email {
		return r.localSignUp(ctx, SignUpParams{Email: params.Email, Password: params.Password})
	}
	if err := crypto.CheckPassword(user.PasswordHash, params.Password); err != nil {
		return nil, ErrPasswordMismatch
	}
	return r.synthesizeSession(user)
}

func (r *Resolver) loadLocalUser(ctx context.Context) (localUser, error) {
	var user localUser
	if err := kv.GetJSON(ctx, r.local, kv.KeyMockUser, &user); err != nil {
		return localUser{}, err
	}
	if user.ID == "" || user.Email == "" {
		return localUser{}, kv.ErrCorrupt
	}
	return user, nil
}

// synthesizeSession builds the fixed-expiry local session.
func (r *Resolver) synthesizeSession(user localUser) (*model.Session, error) {
	token, err := crypto.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	return &model.Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   time.Now().UTC().Add(r.timeouts.SessionTTL),
		User: model.SessionUser{
			ID:       user.ID,
			Email:    user.Email,
			FullName: user.FullName,
		},
	}, nil
}

// Internals

func (r *Resolver) probe(ctx context.Context) error {
	_, err := bound.Run(ctx, r.timeouts.Probe, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.remote.Probe(ctx)
	})
	return err
}

func (r *Resolver) remoteAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remote != nil && !r.remoteDown
}

// markRemoteDown demotes every later operation to the local path for the
// rest of the process lifetime. Only infrastructure failures and timeouts
// reach it; a backend that answers and refuses stays trusted.
func (r *Resolver) markRemoteDown(reason string, err error) {
	r.mu.Lock()
	r.remoteDown = true
	r.mu.Unlock()
	r.log.Warnw("remote backend unavailable, using local path", "reason", reason, "error", err)
}

func (r *Resolver) adopt(session *model.Session, state State) {
	r.mu.Lock()
	r.session = session
	r.state = state
	r.mu.Unlock()
}

func (r *Resolver) attachProfile(ctx context.Context) {
	r.mu.Lock()
	session := r.session
	r.mu.Unlock()
	if session == nil {
		return
	}
	user := session.User
	prof := r.profiles.Fetch(ctx, user.ID, &user)
	r.mu.Lock()
	r.profile = prof
	r.mu.Unlock()
}

func (r *Resolver) setState(state State) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

func displayName(user model.SessionUser) string {
	if user.FullName != "" {
		return user.FullName
	}
	return user.Email
}
