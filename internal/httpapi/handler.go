package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/account"
	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/classroom"
	"rollcall/internal/queue"
	"rollcall/internal/session"
	"rollcall/internal/stats"
)

// Handler exposes the service over HTTP. It stays thin: every pipeline
// outcome maps 1:1 to a status code, no business logic lives here.
type Handler struct {
	accounts   *account.Service
	classes    *classroom.Service
	sessions   *session.Service
	attendance *attendance.Service
	events     queue.Queue     // nil disables event publishing
	stats      *stats.Recorder // nil disables the stats endpoint

	signingKey string
	issuer     string
	tokenTTL   time.Duration
}

// Deps carries the collaborators the handler needs.
type Deps struct {
	Accounts   *account.Service
	Classes    *classroom.Service
	Sessions   *session.Service
	Attendance *attendance.Service
	Events     queue.Queue
	Stats      *stats.Recorder
	SigningKey string
	Issuer     string
	TokenTTL   time.Duration
}

func New(d Deps) *Handler {
	return &Handler{
		accounts:   d.Accounts,
		classes:    d.Classes,
		sessions:   d.Sessions,
		attendance: d.Attendance,
		events:     d.Events,
		stats:      d.Stats,
		signingKey: d.SigningKey,
		issuer:     d.Issuer,
		tokenTTL:   d.TokenTTL,
	}
}

// Routes registers the versioned API on the router.
func (h *Handler) Routes(r *gin.Engine) {
	v1 := r.Group("/v1")
	v1.POST("/auth/register", h.Register)
	v1.POST("/auth/login", h.Login)

	authed := v1.Group("", auth.Bearer(h.signingKey, h.issuer))

	instructor := authed.Group("", auth.RequireRole(auth.RoleInstructor))
	instructor.POST("/classrooms", h.CreateClassroom)
	instructor.GET("/classrooms", h.ListClassrooms)
	instructor.GET("/classrooms/:id", h.GetClassroom)
	instructor.PUT("/classrooms/:id", h.UpdateClassroom)
	instructor.DELETE("/classrooms/:id", h.DeleteClassroom)
	instructor.POST("/sessions", h.StartSession)
	instructor.POST("/sessions/:id/rotate", h.RotateSession)
	instructor.GET("/sessions/:id/attendance", h.SessionAttendance)
	instructor.GET("/sessions/:id/stats", h.SessionStats)

	student := authed.Group("", auth.RequireRole(auth.RoleStudent))
	student.POST("/checkins", h.CheckIn)
	student.GET("/me/attendance", h.MyAttendance)
}

// ---------- Auth ----------

type registerRequest struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	ExternalID string `json:"external_id"`
	Role       string `json:"role"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role := req.Role
	if role == "" {
		role = auth.RoleStudent
	}
	if role != auth.RoleStudent && role != auth.RoleInstructor {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be student or instructor"})
		return
	}
	acct, err := h.accounts.Register(c.Request.Context(), req.Name, req.Email, req.Password, req.ExternalID, role)
	if err != nil {
		if errors.Is(err, account.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, acct)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acct, err := h.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.transient(c, "login", err)
		return
	}
	token, exp, err := auth.Issue(acct.ID, acct.Role, h.issuer, h.signingKey, h.tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": exp.Unix(),
		"account":    acct,
	})
}

// ---------- Classrooms ----------

type classroomRequest struct {
	Code     string             `json:"code"`
	Name     string             `json:"name"`
	Geofence classroom.Geofence `json:"geofence"`
}

func (h *Handler) CreateClassroom(c *gin.Context) {
	var req classroomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims := auth.FromContext(c)
	cls, created, err := h.classes.Create(c.Request.Context(), claims.Subject, classroom.Classroom{
		Code:     req.Code,
		Name:     req.Name,
		Geofence: req.Geofence,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, cls)
}

func (h *Handler) ListClassrooms(c *gin.Context) {
	claims := auth.FromContext(c)
	classes, err := h.classes.List(c.Request.Context(), claims.Subject)
	if err != nil {
		h.transient(c, "list classrooms", err)
		return
	}
	if classes == nil {
		classes = []classroom.Classroom{}
	}
	c.JSON(http.StatusOK, classes)
}

func (h *Handler) GetClassroom(c *gin.Context) {
	cls, err := h.classes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.classroomError(c, err)
		return
	}
	c.JSON(http.StatusOK, cls)
}

func (h *Handler) UpdateClassroom(c *gin.Context) {
	var req classroomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims := auth.FromContext(c)
	cls, err := h.classes.Update(c.Request.Context(), claims.Subject, c.Param("id"), req.Name, req.Geofence)
	if err != nil {
		h.classroomError(c, err)
		return
	}
	c.JSON(http.StatusOK, cls)
}

func (h *Handler) DeleteClassroom(c *gin.Context) {
	claims := auth.FromContext(c)
	if err := h.classes.Delete(c.Request.Context(), claims.Subject, c.Param("id")); err != nil {
		h.classroomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ---------- Sessions ----------

type startSessionRequest struct {
	ClassroomID string              `json:"classroom_id" binding:"required"`
	Geofence    *classroom.Geofence `json:"geofence"`
}

func (h *Handler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims := auth.FromContext(c)
	sess, created, err := h.sessions.Start(c.Request.Context(), claims.Subject, req.ClassroomID, req.Geofence)
	if err != nil {
		h.sessionError(c, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, sess)
}

func (h *Handler) RotateSession(c *gin.Context) {
	claims := auth.FromContext(c)
	sess, err := h.sessions.Rotate(c.Request.Context(), claims.Subject, c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) SessionAttendance(c *gin.Context) {
	claims := auth.FromContext(c)
	records, err := h.attendance.ListSessionAttendance(c.Request.Context(), claims.Subject, c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) SessionStats(c *gin.Context) {
	claims := auth.FromContext(c)
	sess, err := h.sessions.Get(c.Request.Context(), claims.Subject, c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	if h.stats == nil {
		c.JSON(http.StatusOK, stats.SessionStats{})
		return
	}
	s, err := h.stats.Get(c.Request.Context(), sess.ID)
	if err != nil {
		h.transient(c, "session stats", err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ---------- Check-ins ----------

type checkinRequest struct {
	QRToken   string   `json:"qr_token" binding:"required"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

var outcomeStatus = map[attendance.Outcome]int{
	attendance.OutcomeAccepted:        http.StatusCreated,
	attendance.OutcomeInvalidSession:  http.StatusNotFound,
	attendance.OutcomeExpired:         http.StatusGone,
	attendance.OutcomeMissingLocation: http.StatusBadRequest,
	attendance.OutcomeOutsideGeofence: http.StatusForbidden,
	attendance.OutcomeDuplicate:       http.StatusConflict,
}

func (h *Handler) CheckIn(c *gin.Context) {
	var req checkinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims := auth.FromContext(c)

	fingerprint := c.GetHeader("X-Device-Fingerprint")
	if fingerprint == "" {
		fingerprint = c.Request.UserAgent()
	}

	decision, err := h.attendance.Mark(c.Request.Context(), attendance.CheckIn{
		Token:             req.QRToken,
		StudentID:         claims.Subject,
		Lat:               req.Latitude,
		Lng:               req.Longitude,
		NetworkAddr:       c.ClientIP(),
		DeviceFingerprint: fingerprint,
	})
	if err != nil {
		if errors.Is(err, attendance.ErrTokenRequired) || errors.Is(err, attendance.ErrInvalidCoordinates) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.transient(c, "check-in", err)
		return
	}

	if decision.Record != nil {
		h.publishCheckin(c.Request.Context(), *decision.Record)
	}

	status, ok := outcomeStatus[decision.Outcome]
	if !ok {
		status = http.StatusInternalServerError
	}
	c.JSON(status, decision)
}

func (h *Handler) MyAttendance(c *gin.Context) {
	claims := auth.FromContext(c)
	records, err := h.attendance.ListStudentAttendance(c.Request.Context(), claims.Subject)
	if err != nil {
		h.transient(c, "my attendance", err)
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) publishCheckin(ctx context.Context, rec attendance.Record) {
	if h.events == nil {
		return
	}
	evt := stats.CheckinEvent{
		SessionID:  rec.SessionID,
		StudentID:  rec.StudentID,
		Suspicious: rec.Suspicious,
		At:         rec.MarkedAt,
	}
	if err := h.events.Publish(ctx, queue.Message{Type: stats.MessageType, Body: evt.Encode()}); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}

// ---------- Error translation ----------

func (h *Handler) classroomError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, classroom.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "classroom not found"})
	case errors.Is(err, classroom.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not your classroom"})
	default:
		h.transient(c, "classroom", err)
	}
}

func (h *Handler) sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, session.ErrActiveExists):
		c.JSON(http.StatusConflict, gin.H{"error": "classroom already has an active session"})
	case errors.Is(err, classroom.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "classroom not found"})
	case errors.Is(err, classroom.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not your classroom"})
	default:
		h.transient(c, "session", err)
	}
}

// transient reports store/collaborator failures as retryable, never as a
// business rejection.
func (h *Handler) transient(c *gin.Context, op string, err error) {
	log.Printf("%s failed: %v", op, err)
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry"})
}
