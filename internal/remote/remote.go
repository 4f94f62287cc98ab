// Package remote talks to the optional hosted backend: a Postgres row store
// for users and profiles, and a Redis session store. Methods return errors
// raw; the session and profile layers bound every call and decide fallback.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"skillforge/internal/auth"
	"skillforge/internal/crypto"
	"skillforge/internal/model"
)

var (
	ErrNoSession          = errors.New("remote: no session")
	ErrInvalidCredentials = errors.New("remote: invalid credentials")
	ErrEmailTaken         = errors.New("remote: email already registered")
)

const currentSessionKey = "session:current"

type Backend struct {
	pool       *pgxpool.Pool
	rdb        *redis.Client
	log        *zap.SugaredLogger
	jwtSecret  string
	jwtIssuer  string
	sessionTTL time.Duration
}

func New(pool *pgxpool.Pool, rdb *redis.Client, log *zap.SugaredLogger, jwtSecret, jwtIssuer string, sessionTTL time.Duration) *Backend {
	return &Backend{
		pool:       pool,
		rdb:        rdb,
		log:        log,
		jwtSecret:  jwtSecret,
		jwtIssuer:  jwtIssuer,
		sessionTTL: sessionTTL,
	}
}

// Probe is the lightweight liveness check run before any remote path is
// trusted.
func (b *Backend) Probe(ctx context.Context) error {
	if err := b.pool.Ping(ctx); err != nil {
		return err
	}
	return b.rdb.Ping(ctx).Err()
}

// CurrentSession restores the session last adopted in this deployment scope.
// (nil, nil) means the store is reachable but empty; expired sessions count
// as absent.
func (b *Backend) CurrentSession(ctx context.Context) (*model.Session, error) {
	raw, err := b.rdb.Get(ctx, currentSessionKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var session model.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	if session.Expired(time.Now().UTC()) {
		_ = b.rdb.Del(ctx, currentSessionKey).Err()
		return nil, nil
	}
	return &session, nil
}

func (b *Backend) SessionByToken(ctx context.Context, token string) (*model.Session, error) {
	// Fast path: a token that does not verify as one of ours cannot have a
	// stored session, so skip the store round trip.
	if _, err := auth.ParseToken(b.jwtSecret, token); err != nil {
		return nil, ErrNoSession
	}

	raw, err := b.rdb.Get(ctx, "session:"+crypto.HashToken(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	var session model.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (b *Backend) SignUp(ctx context.Context, email, password, fullName string) (*model.Session, error) {
	if _, err := b.getUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	userID := uuid.NewString()

	_, err = b.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, userID, email, hash, fullName, now)
	if err != nil {
		return nil, err
	}
	_, err = b.pool.Exec(ctx, `
		INSERT INTO profiles (id, email, full_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, userID, email, fullName, now)
	if err != nil {
		return nil, err
	}

	return b.issueSession(ctx, userID, email, fullName)
}

func (b *Backend) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	user, err := b.getUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := crypto.CheckPassword(user.passwordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return b.issueSession(ctx, user.id, user.email, user.fullName)
}

// SignOut is best-effort: the caller has already dropped its in-memory state.
func (b *Backend) SignOut(ctx context.Context, token string) error {
	keys := []string{currentSessionKey}
	if token != "" {
		keys = append(keys, "session:"+crypto.HashToken(token))
	}
	return b.rdb.Del(ctx, keys...).Err()
}

func (b *Backend) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	row := b.pool.QueryRow(ctx, `
		SELECT id, email, COALESCE(full_name, ''), COALESCE(role, ''), COALESCE(company, ''), COALESCE(avatar_url, ''), created_at, updated_at
		FROM profiles
		WHERE id = $1
	`, userID)
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.Role, &p.Company, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (b *Backend) UpdateProfile(ctx context.Context, p *model.Profile) error {
	_, err := b.pool.Exec(ctx, `
		UPDATE profiles
		SET full_name = $2, role = $3, company = $4, avatar_url = $5, updated_at = $6
		WHERE id = $1
	`, p.ID, p.FullName, p.Role, p.Company, p.AvatarURL, time.Now().UTC())
	return err
}

type userRow struct {
	id           string
	email        string
	passwordHash string
	fullName     string
}

func (b *Backend) getUserByEmail(ctx context.Context, email string) (userRow, error) {
	var user userRow
	row := b.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, COALESCE(full_name, '')
		FROM users
		WHERE email = $1
	`, email)
	err := row.Scan(&user.id, &user.email, &user.passwordHash, &user.fullName)
	return user, err
}

func (b *Backend) issueSession(ctx context.Context, userID, email, fullName string) (*model.Session, error) {
	accessToken, err := auth.NewAccessToken(b.jwtSecret, b.jwtIssuer, b.sessionTTL, auth.Claims{
		UserID:   userID,
		Email:    email,
		FullName: fullName,
	})
	if err != nil {
		return nil, err
	}
	refreshToken, err := crypto.NewOpaqueToken()
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    time.Now().UTC().Add(b.sessionTTL),
		User:         model.SessionUser{ID: userID, Email: email, FullName: fullName},
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	pipe := b.rdb.TxPipeline()
	pipe.Set(ctx, "session:"+crypto.HashToken(accessToken), raw, b.sessionTTL)
	pipe.Set(ctx, currentSessionKey, raw, b.sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		b.log.Warnw("session store write failed", "error", err)
		return nil, err
	}
	return session, nil
}
