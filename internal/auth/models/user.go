package models

import (
	"slices"
	"strings"
	"time"

	id "minimizer/pkg/domain"
)

// User is an operator account. Admins may create users and see every trial;
// other users see the trials listed in Trials.
type User struct {
	Username     id.Username  `json:"username"`
	FullName     string       `json:"full_name"`
	PasswordHash string       `json:"-"`
	Admin        bool         `json:"admin"`
	Trials       []id.TrialID `json:"trials"`
	CreatedAt    time.Time    `json:"created_at"`
}

// CanAccess reports whether the user may read and modify the trial.
func (u *User) CanAccess(trialID id.TrialID) bool {
	return u.Admin || slices.Contains(u.Trials, trialID)
}

// Grant adds the trial to the access list. It reports false when the user
// already had access.
func (u *User) Grant(trialID id.TrialID) bool {
	if slices.Contains(u.Trials, trialID) {
		return false
	}
	u.Trials = append(u.Trials, trialID)
	return true
}

func (u *User) Clone() *User {
	c := *u
	c.Trials = slices.Clone(u.Trials)
	return &c
}

// CreateUserRequest is the body of POST /users and POST /auth/setup.
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	FullName string `json:"full_name" validate:"required,max=200"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Admin    bool   `json:"admin"`
}

func (r *CreateUserRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	r.FullName = strings.TrimSpace(r.FullName)
	_, err := id.ParseUsername(r.Username)
	return err
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	return nil
}

// LoginResult carries the bearer token returned by a successful login.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// RevokedSession is a logged-out token. It stays on the revocation list until
// the token would have expired anyway.
type RevokedSession struct {
	JTI       string
	SessionID id.SessionID
	Username  id.Username
	RevokedAt time.Time
	ExpiresAt time.Time
}

// Live reports whether the revoked token could still be presented at now.
func (r RevokedSession) Live(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}
