package identity

import (
	"context"
	"errors"
)

var (
	// ErrProviderUnavailable wraps transport-level failures talking to the
	// remote identity provider.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrInvalidCredentials is returned for rejected sign-in attempts.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Metadata is the arbitrary per-user profile data held by the provider.
type Metadata struct {
	FullName    string `json:"full_name,omitempty"`
	Role        string `json:"role,omitempty"` // "buyer" | "seller"
	SellerPhone string `json:"seller_phone,omitempty"`
}

// User is the provider's view of an account.
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Metadata Metadata `json:"user_metadata"`
}

// Session is an issued provider session.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

// UserUpdate carries the mutable parts of an account. Nil fields are
// left untouched by the provider.
type UserUpdate struct {
	Password *string   `json:"password,omitempty"`
	Metadata *Metadata `json:"data,omitempty"`
}

// Provider is the remote identity provider surface the application
// consumes. Sessions, password storage and federated sign-in all live on
// the provider side; nothing here implements an auth protocol locally.
type Provider interface {
	SignUp(ctx context.Context, email, password string, meta Metadata) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// OAuthURL returns the provider's federated authorize URL for the
	// named external provider (e.g. "google").
	OAuthURL(oauthProvider, redirectTo string) string
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*User, error)
	UpdateUser(ctx context.Context, accessToken string, update UserUpdate) (*User, error)
	SendPasswordReset(ctx context.Context, email, redirectTo string) error
}
