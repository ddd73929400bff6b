package models

import (
	"encoding/json"
	"time"
)

// TimestampLayout is ISO-8601 in UTC with exactly three fractional digits,
// the form persisted records and API responses use.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// User is the single persisted session record (stored as JSON under one key)
type User struct {
	ID             string    `bson:"id" json:"id"`
	Email          string    `bson:"email" json:"email"`
	Name           string    `bson:"name" json:"name"`
	Avatar         string    `bson:"avatar" json:"avatar"`
	Bio            string    `bson:"bio" json:"bio"`
	AccountCreated time.Time `bson:"accountCreated" json:"accountCreated"`
	LastLogin      time.Time `bson:"lastLogin" json:"lastLogin"`
}

// MarshalJSON writes both timestamps with TimestampLayout. Decoding goes
// through time.Time's RFC 3339 parser, which accepts that form.
func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	return json.Marshal(struct {
		plain
		AccountCreated string `json:"accountCreated"`
		LastLogin      string `json:"lastLogin"`
	}{
		plain:          plain(u),
		AccountCreated: u.AccountCreated.UTC().Format(TimestampLayout),
		LastLogin:      u.LastLogin.UTC().Format(TimestampLayout),
	})
}

// ProfileUpdate carries the mutable display fields. Nil means unchanged.
type ProfileUpdate struct {
	Name *string `json:"name,omitempty"`
	Bio  *string `json:"bio,omitempty"`
}

// Clone returns a copy of u, or nil when u is nil.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
