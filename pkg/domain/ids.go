// Package domain holds typed identifiers shared across the module.
//
// IDs are distinct types over uuid.UUID so the compiler rejects a UserID
// where an ExamID is expected. Construct via the Parse functions at trust
// boundaries; direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "invigil/pkg/domain-errors"
)

// UserID identifies a subject (student, instructor, or admin).
type UserID uuid.UUID

// ExamID identifies a proctored exam session.
type ExamID uuid.UUID

// OrgID identifies the organization an account belongs to.
type OrgID uuid.UUID

func (id UserID) String() string { return uuid.UUID(id).String() }
func (id ExamID) String() string { return uuid.UUID(id).String() }
func (id OrgID) String() string  { return uuid.UUID(id).String() }

// Text marshaling delegates to the canonical uuid form so IDs serialize as
// strings in JSON payloads and cache values.
func (id UserID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ExamID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id OrgID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = UserID(u)
	return nil
}

func (id *ExamID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ExamID(u)
	return nil
}

func (id *OrgID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = OrgID(u)
	return nil
}

func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ExamID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id OrgID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// NewUserID returns a random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewExamID returns a random ExamID.
func NewExamID() ExamID { return ExamID(uuid.New()) }

// NewOrgID returns a random OrgID.
func NewOrgID() OrgID { return OrgID(uuid.New()) }

// ParseUserID validates and returns a UserID.
// IDs must be valid, non-empty, non-nil UUIDs.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseExamID validates and returns an ExamID.
func ParseExamID(s string) (ExamID, error) {
	u, err := parseUUID(s, "exam id")
	return ExamID(u), err
}

// ParseOrgID validates and returns an OrgID.
func ParseOrgID(s string) (OrgID, error) {
	u, err := parseUUID(s, "org id")
	return OrgID(u), err
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" must not be nil")
	}
	return u, nil
}
