package sessions

import (
	"context"
	"errors"
	"strings"
)

// ErrEmailRequired is returned by RequireEmail for a blank email.
var ErrEmailRequired = errors.New("email is required")

// Authenticator stands in for an external identity check. Login returns its
// error unchanged.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) error
}

type AuthenticatorFunc func(ctx context.Context, email, password string) error

func (f AuthenticatorFunc) Authenticate(ctx context.Context, email, password string) error {
	return f(ctx, email, password)
}

// AllowAll accepts every login; the password is never checked.
var AllowAll Authenticator = AuthenticatorFunc(func(context.Context, string, string) error { return nil })

// RequireEmail rejects logins whose email is blank.
func RequireEmail() Authenticator {
	return AuthenticatorFunc(func(_ context.Context, email, _ string) error {
		if strings.TrimSpace(email) == "" {
			return ErrEmailRequired
		}
		return nil
	})
}
