package shared

import (
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Identifier Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// maxIDLength limits identifiers coming from the platform (cuid / uuid / slug).
const maxIDLength = 64

// StudentID identifies a student in the surrounding platform.
type StudentID string

// TeacherID identifies a teacher in the surrounding platform.
type TeacherID string

// TeamID identifies a team (a group of students) in the surrounding platform.
type TeamID string

// String returns the string representation.
func (s StudentID) String() string { return string(s) }

// IsEmpty checks if the ID is empty.
func (s StudentID) IsEmpty() bool { return s == "" }

// String returns the string representation.
func (t TeacherID) String() string { return string(t) }

// IsEmpty checks if the ID is empty.
func (t TeacherID) IsEmpty() bool { return t == "" }

// String returns the string representation.
func (t TeamID) String() string { return string(t) }

// IsEmpty checks if the ID is empty.
func (t TeamID) IsEmpty() bool { return t == "" }

func normalizeID(op, raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", NewDomainError("shared", op, ErrEmptyValue, "identifier cannot be empty")
	}
	if len(id) > maxIDLength || strings.ContainsAny(id, " \t\n/") {
		return "", NewDomainError("shared", op, ErrInvalidID, "invalid identifier format")
	}
	return id, nil
}

// NewStudentID creates a new StudentID with validation.
func NewStudentID(raw string) (StudentID, error) {
	id, err := normalizeID("NewStudentID", raw)
	return StudentID(id), err
}

// NewTeacherID creates a new TeacherID with validation.
func NewTeacherID(raw string) (TeacherID, error) {
	id, err := normalizeID("NewTeacherID", raw)
	return TeacherID(id), err
}

// NewTeamID creates a new TeamID with validation.
func NewTeamID(raw string) (TeamID, error) {
	id, err := normalizeID("NewTeamID", raw)
	return TeamID(id), err
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize < 1 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates pagination with validation.
func NewPagination(page, pageSize int) Pagination {
	if page < 1 {
		page = 1
	}
	return Pagination{Page: page, PageSize: pageSize}
}
