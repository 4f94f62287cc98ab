package model

import "time"

// SessionUser is the identity embedded in a session, distinct from the
// denormalized Profile record.
type SessionUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName,omitempty"`
}

type Session struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	TokenType    string      `json:"tokenType"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	User         SessionUser `json:"user"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)
}

type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName,omitempty"`
	Role      string    `json:"role,omitempty"`
	Company   string    `json:"company,omitempty"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
	NotifyWarning NotificationKind = "warning"
	NotifyInfo    NotificationKind = "info"
)

func (k NotificationKind) Valid() bool {
	switch k {
	case NotifySuccess, NotifyError, NotifyWarning, NotifyInfo:
		return true
	}
	return false
}

// Notification is a transient toast. Duration 0 means it never auto-dismisses.
type Notification struct {
	ID       string           `json:"id"`
	Message  string           `json:"message"`
	Kind     NotificationKind `json:"kind"`
	Duration time.Duration    `json:"durationMs"`
}

type PathType string

const (
	PathBeginner     PathType = "beginner"
	PathIntermediate PathType = "intermediate"
	PathAdvanced     PathType = "advanced"
)

func (p PathType) Valid() bool {
	switch p {
	case PathBeginner, PathIntermediate, PathAdvanced:
		return true
	}
	return false
}

// ProgressStep records that a (user, path, step) was touched; Completed carries
// the actual state.
type ProgressStep struct {
	UserID      string     `json:"userId"`
	PathType    PathType   `json:"pathType"`
	StepIndex   int        `json:"stepIndex"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type Achievement struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Points     int        `json:"points"`
	Earned     bool       `json:"earned"`
	EarnedDate *time.Time `json:"earnedDate,omitempty"`
}

type XPActivity struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	XP        int       `json:"xp"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

type XPLedger struct {
	TotalXP    int          `json:"totalXP"`
	Activities []XPActivity `json:"activities"`
}

// Level is derived, never stored.
func Level(totalXP int) int {
	if totalXP < 0 {
		return 1
	}
	return 1 + totalXP/100
}

type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type Discussion struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Topic     string    `json:"topic"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

type TemplateSubmission struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Status      SubmissionStatus `json:"status"`
	SubmittedAt time.Time        `json:"submittedAt"`
	ReviewedAt  *time.Time       `json:"reviewedAt,omitempty"`
}

type ContentReport struct {
	ID         string    `json:"id"`
	ReporterID string    `json:"reporterId"`
	TargetID   string    `json:"targetId"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"createdAt"`
	Resolved   bool      `json:"resolved"`
}
