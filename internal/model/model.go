package model

import (
	"strings"
	"time"
)

// Role bounds the actions an identity may perform.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole normalizes raw input into a known role.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleStudent:
		return RoleStudent, true
	case RoleTeacher:
		return RoleTeacher, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// User is an authenticated principal. Version backs the store's optimistic
// concurrency check on updates.
type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
	Version      int64
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u User) IsStudent() bool { return u.Role == RoleStudent }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }

// GradeType classifies how a grade was earned.
type GradeType string

const (
	GradeRegular      GradeType = "REGULAR"
	GradeExam         GradeType = "EXAM"
	GradeTest         GradeType = "TEST"
	GradeHomework     GradeType = "HOMEWORK"
	GradeProject      GradeType = "PROJECT"
	GradePresentation GradeType = "PRESENTATION"
)

func ParseGradeType(raw string) (GradeType, bool) {
	switch GradeType(strings.TrimSpace(strings.ToUpper(raw))) {
	case GradeRegular, GradeExam, GradeTest, GradeHomework, GradeProject, GradePresentation:
		return GradeType(strings.TrimSpace(strings.ToUpper(raw))), true
	default:
		return "", false
	}
}

const (
	GradeMin = 1
	GradeMax = 12

	MaxGradeComment = 500
)

// Grade is a single mark on the 1..12 scale. StudentID and TeacherID are the
// ownership facts consulted by the access policy.
type Grade struct {
	ID        int64
	Value     int
	Comment   string
	Type      GradeType
	StudentID int64
	TeacherID int64
	SubjectID int64
	CreatedAt time.Time
}

func (g Grade) IsExcellent() bool { return g.Value >= 10 }
func (g Grade) IsPassing() bool   { return g.Value >= 4 }

func (g Grade) Category() string {
	switch {
	case g.Value >= 10:
		return "excellent"
	case g.Value >= 7:
		return "good"
	case g.Value >= 4:
		return "satisfactory"
	default:
		return "unsatisfactory"
	}
}

// Subject is a course taught by a teacher.
type Subject struct {
	ID          int64
	Name        string
	Description string
	TeacherID   int64
	CreatedAt   time.Time
}

// UserStats is the aggregate snapshot served to administrators.
type UserStats struct {
	TotalUsers  int64
	ActiveUsers int64
	Students    int64
	Teachers    int64
}
