package users

import (
	"net/url"
	"strings"
	"time"

	"github.com/uikit-demo/session-service/internal/models"
)

// DefaultAvatarTemplate is used when no template is configured.
// {email} is replaced by the query-escaped email.
const DefaultAvatarTemplate = "https://api.dicebear.com/7.x/avataaars/svg?seed={email}"

// DisplayName returns the local part of an email (everything before the first '@').
func DisplayName(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}

// AvatarURL renders the avatar template for the given email
func AvatarURL(template, email string) string {
	if template == "" {
		template = DefaultAvatarTemplate
	}
	return strings.ReplaceAll(template, "{email}", url.QueryEscape(email))
}

// NewProfile builds the record for a first login.
func NewProfile(id, email string, now time.Time, avatarTemplate string) *models.User {
	return &models.User{
		ID:             id,
		Email:          email,
		Name:           DisplayName(email),
		Avatar:         AvatarURL(avatarTemplate, email),
		Bio:            "",
		AccountCreated: now,
		LastLogin:      now,
	}
}

// MergeOnLogin copies prev forward, overwriting only Email and LastLogin.
func MergeOnLogin(prev *models.User, email string, now time.Time) *models.User {
	u := prev.Clone()
	u.Email = email
	u.LastLogin = now
	return u
}

// ApplyUpdate returns a copy of u with the non-nil update fields applied.
func ApplyUpdate(u *models.User, upd models.ProfileUpdate) *models.User {
	out := u.Clone()
	if upd.Name != nil {
		out.Name = *upd.Name
	}
	if upd.Bio != nil {
		out.Bio = *upd.Bio
	}
	return out
}
