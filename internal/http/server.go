package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sanstorm15/CourseWork/internal/auth"
	"github.com/Sanstorm15/CourseWork/internal/config"
	"github.com/Sanstorm15/CourseWork/internal/model"
	"github.com/Sanstorm15/CourseWork/internal/repository"
)

var loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "journal_auth_logins_total",
	Help: "Login attempts by result.",
}, []string{"result"})

// RecordStore is the persistence surface the HTTP layer reads and writes
// outside the session service. *repository.Store satisfies it.
type RecordStore interface {
	FindByID(ctx context.Context, id int64) (model.User, error)
	ListUsers(ctx context.Context, filter repository.UserFilter) ([]model.User, error)
	DeleteUser(ctx context.Context, id int64) (bool, error)
	UserStats(ctx context.Context) (model.UserStats, error)

	CreateGrade(ctx context.Context, grade model.Grade) (model.Grade, error)
	GetGrade(ctx context.Context, id int64) (model.Grade, error)
	UpdateGrade(ctx context.Context, grade model.Grade) (model.Grade, error)
	DeleteGrade(ctx context.Context, id int64) (bool, error)
	ListGrades(ctx context.Context, limit int) ([]model.Grade, error)
	ListGradesByStudent(ctx context.Context, studentID int64) ([]model.Grade, error)
	ListGradesByTeacher(ctx context.Context, teacherID int64) ([]model.Grade, error)
	AverageGradeByStudent(ctx context.Context, studentID int64, subjectID *int64) (float64, error)

	CreateSubject(ctx context.Context, subject model.Subject) (model.Subject, error)
	GetSubject(ctx context.Context, id int64) (model.Subject, error)
	ListSubjects(ctx context.Context) ([]model.Subject, error)
	DeleteSubject(ctx context.Context, id int64) (bool, error)
}

type Server struct {
	cfg      config.Config
	sessions *auth.Service
	store    RecordStore
}

func NewServer(cfg config.Config, sessions *auth.Service, store RecordStore) *Server {
	return &Server{cfg: cfg, sessions: sessions, store: store}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.With(s.authMiddleware).Get("/auth/me", s.handleMe)
	r.With(s.authMiddleware).Post("/auth/change-password", s.handleChangePassword)
	r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)

	r.Route("/users", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/", s.handleListUsers)
		r.Get("/stats", s.handleUserStats)
		r.Get("/{userID}", s.handleGetUser)
		r.Patch("/{userID}", s.handleUpdateUser)
		r.Delete("/{userID}", s.handleDeleteUser)
		r.Post("/{userID}/activate", s.handleActivateUser)
		r.Post("/{userID}/deactivate", s.handleDeactivateUser)
		r.Post("/{userID}/role", s.handleChangeRole)
		r.Post("/{userID}/reset-password", s.handleResetPassword)
	})

	r.Route("/grades", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/", s.handleListGrades)
		r.Post("/", s.handleCreateGrade)
		r.Get("/student/{studentID}", s.handleGradesByStudent)
		r.Get("/student/{studentID}/average", s.handleStudentAverage)
		r.Get("/teacher/{teacherID}", s.handleGradesByTeacher)
		r.Get("/{gradeID}", s.handleGetGrade)
		r.Patch("/{gradeID}", s.handleUpdateGrade)
		r.Delete("/{gradeID}", s.handleDeleteGrade)
	})

	r.Route("/subjects", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/", s.handleListSubjects)
		r.Post("/", s.handleCreateSubject)
		r.Get("/{subjectID}", s.handleGetSubject)
		r.Delete("/{subjectID}", s.handleDeleteSubject)
	})

	return r
}

type authResponse struct {
	Token    string `json:"token"`
	UserID   int64  `json:"userId"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Message  string `json:"message"`
}

type userSummary struct {
	ID          int64      `json:"id"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func mapUserSummary(user model.User) userSummary {
	return userSummary{
		ID:          user.ID,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Email:       user.Email,
		Role:        string(user.Role),
		Active:      user.Active,
		CreatedAt:   user.CreatedAt,
		LastLoginAt: user.LastLoginAt,
	}
}

type gradeResponse struct {
	ID        int64     `json:"id"`
	Value     int       `json:"value"`
	Comment   string    `json:"comment,omitempty"`
	Type      string    `json:"type"`
	Category  string    `json:"category"`
	StudentID int64     `json:"studentId"`
	TeacherID int64     `json:"teacherId"`
	SubjectID int64     `json:"subjectId"`
	CreatedAt time.Time `json:"createdAt"`
}

func mapGradeResponse(grade model.Grade) gradeResponse {
	return gradeResponse{
		ID:        grade.ID,
		Value:     grade.Value,
		Comment:   grade.Comment,
		Type:      string(grade.Type),
		Category:  grade.Category(),
		StudentID: grade.StudentID,
		TeacherID: grade.TeacherID,
		SubjectID: grade.SubjectID,
		CreatedAt: grade.CreatedAt,
	}
}

type subjectResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	TeacherID   int64     `json:"teacherId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func mapSubjectResponse(subject model.Subject) subjectResponse {
	return subjectResponse{
		ID:          subject.ID,
		Name:        subject.Name,
		Description: subject.Description,
		TeacherID:   subject.TeacherID,
		CreatedAt:   subject.CreatedAt,
	}
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role, ok := model.ParseRole(req.Role)
	if !ok {
		writeMessage(w, http.StatusBadRequest, auth.ErrInvalidRole.Error())
		return
	}

	user, token, err := s.sessions.Register(r.Context(), auth.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      role,
	})
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token:    token,
		UserID:   user.ID,
		FullName: user.FullName(),
		Email:    user.Email,
		Role:     string(user.Role),
		Message:  "registration successful",
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "email and password required")
		return
	}

	user, token, err := s.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		loginsTotal.WithLabelValues("failure").Inc()
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	loginsTotal.WithLabelValues("success").Inc()

	writeJSON(w, http.StatusOK, authResponse{
		Token:    token,
		UserID:   user.ID,
		FullName: user.FullName(),
		Email:    user.Email,
		Role:     string(user.Role),
		Message:  "login successful",
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	writeJSON(w, http.StatusOK, authResponse{
		Token:    bearerToken(r.Header.Get("Authorization")),
		UserID:   caller.ID,
		FullName: caller.FullName(),
		Email:    caller.Email,
		Role:     string(caller.Role),
		Message:  "session resolved",
	})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.sessions.ChangePassword(r.Context(), caller.ID, req.OldPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrConcurrentModification):
			writeMessage(w, http.StatusConflict, err.Error())
		case errors.Is(err, auth.ErrBadPassword), errors.Is(err, auth.ErrPasswordTooShort):
			writeMessage(w, http.StatusBadRequest, err.Error())
		default:
			writeMessage(w, http.StatusInternalServerError, "server error")
		}
		return
	}

	writeMessage(w, http.StatusOK, "password changed")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Tokens are self-contained: nothing to revoke server-side.
	_ = s.sessions.Logout(bearerToken(r.Header.Get("Authorization")))
	writeMessage(w, http.StatusOK, "logged out")
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, auth.ActionViewAll, auth.ResourceRef{}) {
		return
	}

	filter := repository.UserFilter{Limit: queryInt(r, "limit", 100)}
	if raw := r.URL.Query().Get("role"); raw != "" {
		role, ok := model.ParseRole(raw)
		if !ok {
			writeMessage(w, http.StatusBadRequest, auth.ErrInvalidRole.Error())
			return
		}
		filter.Role = &role
	}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid active filter")
			return
		}
		filter.Active = &active
	}

	users, err := s.store.ListUsers(r.Context(), filter)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}

	summaries := make([]userSummary, 0, len(users))
	for _, user := range users {
		summaries = append(summaries, mapUserSummary(user))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, auth.ActionViewAll, auth.ResourceRef{}) {
		return
	}

	stats, err := s.store.UserStats(r.Context())
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{
		"totalUsers":  stats.TotalUsers,
		"activeUsers": stats.ActiveUsers,
		"students":    stats.Students,
		"teachers":    stats.Teachers,
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if !s.authorize(w, r, auth.ActionViewSelf, auth.ResourceRef{OwnerID: userID}) {
		return
	}

	user, err := s.store.FindByID(r.Context(), userID)
	if err != nil {
		writeNotFoundOrError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, mapUserSummary(user))
}

type updateUserRequest struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if !s.authorize(w, r, auth.ActionUpdateSelf, auth.ResourceRef{OwnerID: userID}) {
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.sessions.UpdateProfile(r.Context(), userID, req.FirstName, req.LastName)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUnknownIdentity):
			writeMessage(w, http.StatusNotFound, "user not found")
		case errors.Is(err, auth.ErrConcurrentModification):
			writeMessage(w, http.StatusConflict, err.Error())
		case errors.Is(err, auth.ErrInvalidInput):
			writeMessage(w, http.StatusBadRequest, err.Error())
		default:
			writeMessage(w, http.StatusInternalServerError, "server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, mapUserSummary(user))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if !s.authorize(w, r, auth.ActionDelete, auth.ResourceRef{}) {
		return
	}

	deleted, err := s.store.DeleteUser(r.Context(), userID)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}
	if !deleted {
		writeMessage(w, http.StatusNotFound, "user not found")
		return
	}
	writeMessage(w, http.StatusOK, "user deleted")
}

func (s *Server) handleActivateUser(w http.ResponseWriter, r *http.Request) {
	s.setUserActive(w, r, true)
}

func (s *Server) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	s.setUserActive(w, r, false)
}

func (s *Server) setUserActive(w http.ResponseWriter, r *http.Request, active bool) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if !s.authorize(w, r, auth.ActionUpdateOther, auth.ResourceRef{}) {
		return
	}

	user, err := s.sessions.SetActive(r.Context(), userID, active)
	if err != nil {
		writeNotFoundOrError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, mapUserSummary(user))
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if !s.authorize(w, r, auth.ActionUpdateOther, auth.ResourceRef{}) {
		return
	}

	var req changeRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role, roleOK := model.ParseRole(req.Role)
	if !roleOK {
		writeMessage(w, http.StatusBadRequest, auth.ErrInvalidRole.Error())
		return
	}

	user, err := s.sessions.ChangeRole(r.Context(), userID, role)
	if err != nil {
		writeNotFoundOrError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, mapUserSummary(user))
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if !s.authorize(w, r, auth.ActionUpdateOther, auth.ResourceRef{}) {
		return
	}

	temp, err := s.sessions.ResetPassword(r.Context(), userID)
	if err != nil {
		writeNotFoundOrError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"temporaryPassword": temp,
		"message":           "password reset",
	})
}

func (s *Server) handleListGrades(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, auth.ActionViewAll, auth.ResourceRef{}) {
		return
	}

	grades, err := s.store.ListGrades(r.Context(), queryInt(r, "limit", 200))
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}
	writeGrades(w, grades)
}

type createGradeRequest struct {
	StudentID int64  `json:"studentId"`
	SubjectID int64  `json:"subjectId"`
	TeacherID int64  `json:"teacherId,omitempty"`
	Value     int    `json:"value"`
	Comment   string `json:"comment,omitempty"`
	Type      string `json:"type,omitempty"`
}

func (s *Server) handleCreateGrade(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())

	var req createGradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Teachers grade under their own id; only an admin may assign on behalf
	// of another teacher.
	teacherID := caller.ID
	if caller.IsAdmin() && req.TeacherID != 0 {
		teacherID = req.TeacherID
	}

	if !s.authorize(w, r, auth.ActionGradeAssign, auth.ResourceRef{TeacherID: teacherID}) {
		return
	}

	if req.Value < model.GradeMin || req.Value > model.GradeMax {
		writeMessage(w, http.StatusBadRequest, "grade value must be between 1 and 12")
		return
	}
	if len(req.Comment) > model.MaxGradeComment {
		writeMessage(w, http.StatusBadRequest, "comment too long")
		return
	}
	gradeType := model.GradeRegular
	if req.Type != "" {
		parsed, typeOK := model.ParseGradeType(req.Type)
		if !typeOK {
			writeMessage(w, http.StatusBadRequest, "unknown grade type")
			return
		}
		gradeType = parsed
	}

	student, err := s.store.FindByID(r.Context(), req.StudentID)
	if err != nil || !student.IsStudent() {
		writeMessage(w, http.StatusBadRequest, "unknown student")
		return
	}
	if _, err := s.store.GetSubject(r.Context(), req.SubjectID); err != nil {
		writeMessage(w, http.StatusBadRequest, "unknown subject")
		return
	}

	grade, err := s.store.CreateGrade(r.Context(), model.Grade{
		Value:     req.Value,
		Comment:   req.Comment,
		Type:      gradeType,
		StudentID: req.StudentID,
		TeacherID: teacherID,
		SubjectID: req.SubjectID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusCreated, mapGradeResponse(grade))
}

func (s *Server) handleGradesByStudent(w http.ResponseWriter, r *http.Request) {
	studentID, ok := pathID(w, r, "studentID")
	if !ok {
		return
	}
	if !s.authorize(w, r, auth.ActionViewSelf, auth.ResourceRef{OwnerID: studentID}) {
		return
	}

	grades, err := s.store.ListGradesByStudent(r.Context(), studentID)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}
	writeGrades(w, grades)
}

func (s *Server) handleStudentAverage(w http.ResponseWriter, r *http.Request) {
	studentID, ok := pathID(w, r, "studentID")
	if !ok {
		return
	}
	if !s.authorize(w, r, auth.ActionViewSelf, auth.ResourceRef{OwnerID: studentID}) {
		return
	}

	var subjectID *int64
	if raw := r.URL.Query().Get("subjectId"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeMessage(w, http.StatusBadRequest, "invalid subjectId")
			return
		}
		subjectID = &parsed
	}

	avg, err := s.store.AverageGradeByStudent(r.Context(), studentID, subjectID)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"studentId": studentID,
		"average":   avg,
	})
}

func (s *Server) handleGradesByTeacher(w http.ResponseWriter, r *http.Request) {
	teacherID, ok := pathID(w, r, "teacherID")
	if !ok {
		return
	}
	if !s.authorize(w, r, auth.ActionViewSelf, auth.ResourceRef{OwnerID: teacherID}) {
		return
	}

	grades, err := s.store.ListGradesByTeacher(r.Context(), teacherID)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}
	writeGrades(w, grades)
}

func (s *Server) handleGetGrade(w http.ResponseWriter, r *http.Request) {
	gradeID, ok := pathID(w, r, "gradeID")
	if !ok {
		return
	}

	grade, err := s.store.GetGrade(r.Context(), gradeID)
	if err != nil {
		writeNotFoundOrError(w, err, "grade not found")
		return
	}

	caller := callerFromContext(r.Context())
	canRead := auth.Allow(caller, auth.ActionViewSelf, auth.ResourceRef{OwnerID: grade.StudentID}) ||
		auth.Allow(caller, auth.ActionGradeEdit, auth.ResourceRef{TeacherID: grade.TeacherID})
	if !canRead {
		writeMessage(w, http.StatusForbidden, auth.ErrDenied.Error())
		return
	}

	writeJSON(w, http.StatusOK, mapGradeResponse(grade))
}

type updateGradeRequest struct {
	Value   *int    `json:"value,omitempty"`
	Comment *string `json:"comment,omitempty"`
	Type    *string `json:"type,omitempty"`
}

func (s *Server) handleUpdateGrade(w http.ResponseWriter, r *http.Request) {
	gradeID, ok := pathID(w, r, "gradeID")
	if !ok {
		return
	}

	grade, err := s.store.GetGrade(r.Context(), gradeID)
	if err != nil {
		writeNotFoundOrError(w, err, "grade not found")
		return
	}
	if !s.authorize(w, r, auth.ActionGradeEdit, auth.ResourceRef{OwnerID: grade.StudentID, TeacherID: grade.TeacherID}) {
		return
	}

	var req updateGradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Value != nil {
		if *req.Value < model.GradeMin || *req.Value > model.GradeMax {
			writeMessage(w, http.StatusBadRequest, "grade value must be between 1 and 12")
			return
		}
		grade.Value = *req.Value
	}
	if req.Comment != nil {
		if len(*req.Comment) > model.MaxGradeComment {
			writeMessage(w, http.StatusBadRequest, "comment too long")
			return
		}
		grade.Comment = *req.Comment
	}
	if req.Type != nil {
		parsed, typeOK := model.ParseGradeType(*req.Type)
		if !typeOK {
			writeMessage(w, http.StatusBadRequest, "unknown grade type")
			return
		}
		grade.Type = parsed
	}

	updated, err := s.store.UpdateGrade(r.Context(), grade)
	if err != nil {
		writeNotFoundOrError(w, err, "grade not found")
		return
	}
	writeJSON(w, http.StatusOK, mapGradeResponse(updated))
}

func (s *Server) handleDeleteGrade(w http.ResponseWriter, r *http.Request) {
	gradeID, ok := pathID(w, r, "gradeID")
	if !ok {
		return
	}

	grade, err := s.store.GetGrade(r.Context(), gradeID)
	if err != nil {
		writeNotFoundOrError(w, err, "grade not found")
		return
	}
	if !s.authorize(w, r, auth.ActionGradeDelete, auth.ResourceRef{OwnerID: grade.StudentID, TeacherID: grade.TeacherID}) {
		return
	}

	deleted, err := s.store.DeleteGrade(r.Context(), gradeID)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}
	if !deleted {
		writeMessage(w, http.StatusNotFound, "grade not found")
		return
	}
	writeMessage(w, http.StatusOK, "grade deleted")
}

func (s *Server) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := s.store.ListSubjects(r.Context())
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}

	resp := make([]subjectResponse, 0, len(subjects))
	for _, subject := range subjects {
		resp = append(resp, mapSubjectResponse(subject))
	}
	writeJSON(w, http.StatusOK, resp)
}

type createSubjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TeacherID   int64  `json:"teacherId,omitempty"`
}

func (s *Server) handleCreateSubject(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, auth.ActionCreate, auth.ResourceRef{}) {
		return
	}

	var req createSubjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeMessage(w, http.StatusBadRequest, "subject name required")
		return
	}
	if req.TeacherID != 0 {
		teacher, err := s.store.FindByID(r.Context(), req.TeacherID)
		if err != nil || !teacher.IsTeacher() {
			writeMessage(w, http.StatusBadRequest, "unknown teacher")
			return
		}
	}

	subject, err := s.store.CreateSubject(r.Context(), model.Subject{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		TeacherID:   req.TeacherID,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "subject create failed")
		return
	}
	writeJSON(w, http.StatusCreated, mapSubjectResponse(subject))
}

func (s *Server) handleGetSubject(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := pathID(w, r, "subjectID")
	if !ok {
		return
	}

	subject, err := s.store.GetSubject(r.Context(), subjectID)
	if err != nil {
		writeNotFoundOrError(w, err, "subject not found")
		return
	}
	writeJSON(w, http.StatusOK, mapSubjectResponse(subject))
}

func (s *Server) handleDeleteSubject(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := pathID(w, r, "subjectID")
	if !ok {
		return
	}
	if !s.authorize(w, r, auth.ActionDelete, auth.ResourceRef{}) {
		return
	}

	deleted, err := s.store.DeleteSubject(r.Context(), subjectID)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}
	if !deleted {
		writeMessage(w, http.StatusNotFound, "subject not found")
		return
	}
	writeMessage(w, http.StatusOK, "subject deleted")
}

type callerKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeMessage(w, http.StatusUnauthorized, "missing token")
			return
		}

		user, err := s.sessions.ResolveSession(r.Context(), token)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), callerKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFromContext(ctx context.Context) model.User {
	user, _ := ctx.Value(callerKey{}).(model.User)
	return user
}

// authorize runs the policy and writes the 403 on deny. Denial is an
// authorization failure, kept distinct from the middleware's 401s.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, action auth.Action, resource auth.ResourceRef) bool {
	caller := callerFromContext(r.Context())
	if !auth.Allow(caller, action, resource) {
		writeMessage(w, http.StatusForbidden, auth.ErrDenied.Error())
		return false
	}
	return true
}

func writeGrades(w http.ResponseWriter, grades []model.Grade) {
	resp := make([]gradeResponse, 0, len(grades))
	for _, grade := range grades {
		resp = append(resp, mapGradeResponse(grade))
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeNotFoundOrError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, auth.ErrNotFound) || errors.Is(err, auth.ErrUnknownIdentity) {
		writeMessage(w, http.StatusNotFound, message)
		return
	}
	writeMessage(w, http.StatusInternalServerError, "server error")
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
