package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Sanstorm15/CourseWork/internal/auth"
	"github.com/Sanstorm15/CourseWork/internal/model"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, first_name, last_name, email, password_hash, role, active, created_at, last_login_at, version`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Active,
		&user.CreatedAt,
		&user.LastLoginAt,
		&user.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, auth.ErrNotFound
	}
	return user, err
}

func (s *Store) FindByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, email)
	return scanUser(row)
}

func (s *Store) FindByID(ctx context.Context, id int64) (model.User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

// Save inserts when the ID is zero, otherwise updates with an optimistic
// version check. The email uniqueness constraint maps to ErrDuplicateEmail,
// a stale version to ErrConcurrentModification.
func (s *Store) Save(ctx context.Context, user model.User) (model.User, error) {
	if user.ID == 0 {
		return s.insertUser(ctx, user)
	}
	return s.updateUser(ctx, user)
}

func (s *Store) insertUser(ctx context.Context, user model.User) (model.User, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (first_name, last_name, email, password_hash, role, active, created_at, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, version
	`, user.FirstName, user.LastName, user.Email, user.PasswordHash, user.Role, user.Active, user.CreatedAt, user.LastLoginAt)
	if err := row.Scan(&user.ID, &user.Version); err != nil {
		return model.User{}, mapUserWriteError(err)
	}
	return user, nil
}

func (s *Store) updateUser(ctx context.Context, user model.User) (model.User, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE users
		SET first_name = $1, last_name = $2, email = $3, password_hash = $4,
		    role = $5, active = $6, last_login_at = $7, version = version + 1
		WHERE id = $8 AND version = $9
		RETURNING version
	`, user.FirstName, user.LastName, user.Email, user.PasswordHash, user.Role, user.Active, user.LastLoginAt, user.ID, user.Version)
	if err := row.Scan(&user.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, findErr := s.FindByID(ctx, user.ID); errors.Is(findErr, auth.ErrNotFound) {
				return model.User{}, auth.ErrNotFound
			}
			return model.User{}, auth.ErrConcurrentModification
		}
		return model.User{}, mapUserWriteError(err)
	}
	return user, nil
}

func mapUserWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return auth.ErrDuplicateEmail
	}
	return err
}

// UserFilter narrows List results. Nil fields are ignored.
type UserFilter struct {
	Role   *model.Role
	Active *bool
	Limit  int
}

func (s *Store) ListUsers(ctx context.Context, filter UserFilter) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	args := []any{}
	where := ""
	next := func() string { return fmt.Sprintf("$%d", len(args)) }

	if filter.Role != nil {
		args = append(args, *filter.Role)
		where = " WHERE role = " + next()
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		if where == "" {
			where = " WHERE active = " + next()
		} else {
			where += " AND active = " + next()
		}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += where + " ORDER BY id LIMIT " + next()

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) DeleteUser(ctx context.Context, id int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) UserStats(ctx context.Context) (model.UserStats, error) {
	var stats model.UserStats
	row := s.db.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE active),
		       count(*) FILTER (WHERE role = 'student'),
		       count(*) FILTER (WHERE role = 'teacher')
		FROM users
	`)
	err := row.Scan(&stats.TotalUsers, &stats.ActiveUsers, &stats.Students, &stats.Teachers)
	return stats, err
}

const gradeColumns = `id, value, comment, grade_type, student_id, teacher_id, subject_id, created_at`

func scanGrade(row pgx.Row) (model.Grade, error) {
	var grade model.Grade
	err := row.Scan(
		&grade.ID,
		&grade.Value,
		&grade.Comment,
		&grade.Type,
		&grade.StudentID,
		&grade.TeacherID,
		&grade.SubjectID,
		&grade.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Grade{}, auth.ErrNotFound
	}
	return grade, err
}

func (s *Store) CreateGrade(ctx context.Context, grade model.Grade) (model.Grade, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO grades (value, comment, grade_type, student_id, teacher_id, subject_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, grade.Value, grade.Comment, grade.Type, grade.StudentID, grade.TeacherID, grade.SubjectID, grade.CreatedAt)
	if err := row.Scan(&grade.ID); err != nil {
		return model.Grade{}, err
	}
	return grade, nil
}

func (s *Store) GetGrade(ctx context.Context, id int64) (model.Grade, error) {
	row := s.db.QueryRow(ctx, `SELECT `+gradeColumns+` FROM grades WHERE id = $1`, id)
	return scanGrade(row)
}

func (s *Store) UpdateGrade(ctx context.Context, grade model.Grade) (model.Grade, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE grades
		SET value = $1, comment = $2, grade_type = $3
		WHERE id = $4
	`, grade.Value, grade.Comment, grade.Type, grade.ID)
	if err != nil {
		return model.Grade{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Grade{}, auth.ErrNotFound
	}
	return s.GetGrade(ctx, grade.ID)
}

func (s *Store) DeleteGrade(ctx context.Context, id int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM grades WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListGrades(ctx context.Context, limit int) ([]model.Grade, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(ctx, `SELECT `+gradeColumns+` FROM grades ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrades(rows)
}

func (s *Store) ListGradesByStudent(ctx context.Context, studentID int64) ([]model.Grade, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+gradeColumns+` FROM grades
		WHERE student_id = $1
		ORDER BY created_at DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrades(rows)
}

func (s *Store) ListGradesByTeacher(ctx context.Context, teacherID int64) ([]model.Grade, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+gradeColumns+` FROM grades
		WHERE teacher_id = $1
		ORDER BY created_at DESC
	`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrades(rows)
}

func collectGrades(rows pgx.Rows) ([]model.Grade, error) {
	grades := make([]model.Grade, 0)
	for rows.Next() {
		grade, err := scanGrade(rows)
		if err != nil {
			return nil, err
		}
		grades = append(grades, grade)
	}
	return grades, rows.Err()
}

// AverageGradeByStudent returns the student's mean grade, optionally scoped
// to one subject. Zero with no error when the student has no grades.
func (s *Store) AverageGradeByStudent(ctx context.Context, studentID int64, subjectID *int64) (float64, error) {
	var avg *float64
	var err error
	if subjectID != nil {
		err = s.db.QueryRow(ctx, `
			SELECT AVG(value) FROM grades WHERE student_id = $1 AND subject_id = $2
		`, studentID, *subjectID).Scan(&avg)
	} else {
		err = s.db.QueryRow(ctx, `
			SELECT AVG(value) FROM grades WHERE student_id = $1
		`, studentID).Scan(&avg)
	}
	if err != nil {
		return 0, err
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

const subjectColumns = `id, name, description, teacher_id, created_at`

func scanSubject(row pgx.Row) (model.Subject, error) {
	var subject model.Subject
	var teacherID *int64
	err := row.Scan(
		&subject.ID,
		&subject.Name,
		&subject.Description,
		&teacherID,
		&subject.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Subject{}, auth.ErrNotFound
	}
	if teacherID != nil {
		subject.TeacherID = *teacherID
	}
	return subject, err
}

func (s *Store) CreateSubject(ctx context.Context, subject model.Subject) (model.Subject, error) {
	var teacherID *int64
	if subject.TeacherID != 0 {
		teacherID = &subject.TeacherID
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO subjects (name, description, teacher_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, subject.Name, subject.Description, teacherID, subject.CreatedAt)
	if err := row.Scan(&subject.ID); err != nil {
		return model.Subject{}, err
	}
	return subject, nil
}

func (s *Store) GetSubject(ctx context.Context, id int64) (model.Subject, error) {
	row := s.db.QueryRow(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = $1`, id)
	return scanSubject(row)
}

func (s *Store) ListSubjects(ctx context.Context) ([]model.Subject, error) {
	rows, err := s.db.Query(ctx, `SELECT `+subjectColumns+` FROM subjects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subjects := make([]model.Subject, 0)
	for rows.Next() {
		subject, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, subject)
	}
	return subjects, rows.Err()
}

func (s *Store) DeleteSubject(ctx context.Context, id int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM subjects WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
