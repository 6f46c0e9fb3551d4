// Package revocation keeps the list of logged-out sessions consulted by
// RequireAuth. An entry is dropped once its token would have expired.
package revocation

import (
	"errors"
	"fmt"
	"time"

	"minimizer/internal/auth/models"
	"minimizer/pkg/platform/sentinel"
)

// Clock returns the current time.
type Clock func() time.Time

var errMissingJTI = errors.New("revoked session has no token id")

func validate(s models.RevokedSession, now time.Time) error {
	if s.JTI == "" {
		return errMissingJTI
	}
	if !s.Live(now) {
		return fmt.Errorf("session for %s already expired: %w", s.Username, sentinel.ErrExpired)
	}
	return nil
}
