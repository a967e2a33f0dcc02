package pollcache

import "context"

// RoleAdmin is the role allowed to see admin notification counts.
const RoleAdmin = "admin"

// Identity is who a request is made for.
type Identity struct {
	UserID string
	Role   string
}

// Counts holds the unread badge counters. AdminNotifications is nil when the admin
// count was not requested or could not be loaded.
type Counts struct {
	Notifications      int  `json:"notifications"`
	Messages           int  `json:"messages"`
	AdminNotifications *int `json:"admin_notifications,omitempty"`
}

// Profile is the persisted current user.
type Profile struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email,omitempty"`
	Role      string  `json:"role"`
	Balance   float64 `json:"balance"`
	IsBlocked bool    `json:"is_blocked"`
}

// Identity returns the identity requests for this profile are made with.
func (p *Profile) Identity() Identity {
	if p == nil {
		return Identity{}
	}
	return Identity{UserID: p.ID, Role: p.Role}
}

// VerificationRequest is the latest identity verification request of a user.
type VerificationRequest struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	DocumentType    string `json:"document_type,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// VerificationStatus reports whether a user is verified and their pending request.
type VerificationStatus struct {
	IsVerified bool                 `json:"is_verified"`
	Request    *VerificationRequest `json:"request"`
}

// IsAdmin is the default predicate deciding whether admin counts are fetched.
func IsAdmin(role string) bool {
	return role == RoleAdmin
}

type identityKey struct{}

// WithIdentity returns a context carrying id for fetchers that need the caller.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != ""
}
