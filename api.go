package pollcache

import "context"

// NotificationsAPI exposes the unread counters shown as header badges.
type NotificationsAPI interface {
	UnreadNotifications(ctx context.Context, userID string) (int, error)
	UnreadMessages(ctx context.Context, userID string) (int, error)
	AdminUnreadNotifications(ctx context.Context, userID string) (int, error)
}

// UserAPI loads the authenticated user's profile.
type UserAPI interface {
	GetUser(ctx context.Context, userID string) (*Profile, error)
}

// VerificationAPI loads a user's identity verification status.
type VerificationAPI interface {
	VerificationStatus(ctx context.Context, userID string) (*VerificationStatus, error)
}

// Backend is the full set of endpoints the session caches poll.
type Backend interface {
	NotificationsAPI
	UserAPI
	VerificationAPI
}
