package models

import (
	"slices"
	"time"
)

type AccountStatus string

const (
	StatusUnverified AccountStatus = "unverified"
	StatusVerified   AccountStatus = "verified"
	StatusInactive   AccountStatus = "inactive"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case StatusUnverified, StatusVerified, StatusInactive:
		return true
	}
	return false
}

// User is one phone identity in the directory. Placeholders created for
// numbers that were referenced but never registered are inactive.
type User struct {
	UserBucket              int           `db:"user_bucket" json:"-"`
	ID                      string        `db:"user_id" json:"user_id"`
	PhoneToken              string        `db:"phone_token" json:"-"`
	Status                  AccountStatus `db:"status" json:"status"`
	TrustedNumbers          []string      `db:"trusted_numbers" json:"-"`
	SpamNumbers             []string      `db:"spam_numbers" json:"-"`
	SessionKey              string        `db:"session_key" json:"-"`
	SharedSecret            string        `db:"shared_secret" json:"-"`
	SessionKeyEstablishedAt time.Time     `db:"session_key_established_at" json:"-"`
	NonceExpected           string        `db:"nonce_expected" json:"-"`
	ExpectedCode            string        `db:"expected_code" json:"-"`
	RetryCount              int           `db:"retry_count" json:"-"`
	RecentMessageCount      int           `db:"recent_message_count" json:"-"`
	Version                 int64         `db:"version" json:"-"`
	CreatedAt               time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time     `db:"updated_at" json:"updated_at"`
}

func (u *User) IsVerified() bool {
	return u.Status == StatusVerified
}

func (u *User) Trusts(token string) bool {
	return slices.Contains(u.TrustedNumbers, token)
}

func (u *User) MarkedSpam(token string) bool {
	return slices.Contains(u.SpamNumbers, token)
}

// Clone returns a deep copy so stores never share slices with callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.TrustedNumbers = slices.Clone(u.TrustedNumbers)
	c.SpamNumbers = slices.Clone(u.SpamNumbers)
	return &c
}
