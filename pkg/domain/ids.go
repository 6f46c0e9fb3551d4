package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "minimizer/pkg/domain-errors"
)

// TrialID, PatientID and Username are operator-chosen identifiers. They are
// distinct types so a patient id can never be passed where a trial id is
// expected.
type (
	TrialID   string
	PatientID string
	Username  string
)

// SessionID identifies a login session. Tokens carry it in the session_id claim.
type SessionID uuid.UUID

const maxIdentifierLength = 64

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func (id TrialID) String() string   { return string(id) }
func (id PatientID) String() string { return string(id) }
func (u Username) String() string   { return string(u) }

func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id SessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// ParseTrialID validates an identifier at a trust boundary.
func ParseTrialID(s string) (TrialID, error) {
	v, err := parseIdentifier("trial id", s)
	return TrialID(v), err
}

// ParsePatientID validates an identifier at a trust boundary.
func ParsePatientID(s string) (PatientID, error) {
	v, err := parseIdentifier("patient id", s)
	return PatientID(v), err
}

// ParseUsername validates a username. Usernames are case-insensitive and
// stored lower-cased.
func ParseUsername(s string) (Username, error) {
	v, err := parseIdentifier("username", s)
	return Username(strings.ToLower(v)), err
}

// ParseSessionID parses a non-nil UUID.
func ParseSessionID(s string) (SessionID, error) {
	if s == "" {
		return SessionID{}, dErrors.New(dErrors.CodeInvalidInput, "session id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil || u == uuid.Nil {
		return SessionID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid session id")
	}
	return SessionID(u), nil
}

func parseIdentifier(kind, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIdentifierLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" must be 64 characters or less")
	}
	if !identifierPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" may only contain letters, digits, '.', '_' and '-'")
	}
	return s, nil
}
