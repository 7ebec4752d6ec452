package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/config"
	"github.com/edirooss/livepush/internal/domain/logevent"
	"github.com/edirooss/livepush/internal/domain/session"
	"github.com/edirooss/livepush/internal/http/dto"
	"github.com/edirooss/livepush/internal/scheduler"
)

// Sessions is the part of the scheduler the API drives.
type Sessions interface {
	Create(ctx context.Context, req scheduler.CreateRequest) (*session.Session, error)
	Schedule(ctx context.Context, id string, kind session.Kind, at *time.Time) (*session.Session, error)
	Start(ctx context.Context, id string) (*session.Session, error)
	Stop(ctx context.Context, id string) (*session.Session, bool, error)
	Cancel(ctx context.Context, id string) (*session.Session, error)
	Provision(ctx context.Context, id string) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	List(ctx context.Context, f session.Filter) []*session.Session
}

// Logs is the read side of the log sink.
type Logs interface {
	Query(ctx context.Context, f logevent.Filter) ([]*logevent.LogEvent, error)
	Tail(n int) []*logevent.LogEvent
}

// SessionsHandler provides HTTP handlers for streaming sessions.
//
// Supported operations:
//   - GET    /sessions                 → List sessions (by schedule)
//   - POST   /sessions                 → Create a session
//   - GET    /sessions/{id}            → Retrieve a session
//   - POST   /sessions/{id}/schedule   → Move a draft to scheduled/immediate
//   - POST   /sessions/{id}/start      → Launch the encoder now
//   - POST   /sessions/{id}/stop       → Stop the encoder
//   - POST   /sessions/{id}/cancel     → Cancel a draft or pending session
//   - POST   /sessions/{id}/provision  → Provision the remote broadcast
//   - GET    /sessions/{id}/logs       → Log events of the session
type SessionsHandler struct {
	log      *zap.Logger
	svc      Sessions
	logs     Logs
	defaults config.DefaultSetting
}

func NewSessionsHandler(log *zap.Logger, svc Sessions, logs Logs, defaults config.DefaultSetting) *SessionsHandler {
	return &SessionsHandler{log: log.Named("sessions"), svc: svc, logs: logs, defaults: defaults}
}

// ListSessions handles GET /sessions.
//
// Behavior:
//   - Optional filters: ?channel=<name>&status=<status>.
//   - Ordered by scheduled_at ascending; unscheduled sessions last.
//   - Adds `X-Total-Count` header.
//
// Status Codes:
//   - 200 OK → JSON array of sessions
func (h *SessionsHandler) ListSessions(c *gin.Context) {
	ss := h.svc.List(c.Request.Context(), session.Filter{
		ChannelName: c.Query("channel"),
		Status:      session.Status(c.Query("status")),
	})
	if ss == nil {
		ss = []*session.Session{}
	}
	c.Header("X-Total-Count", strconv.Itoa(len(ss)))
	c.JSON(http.StatusOK, ss)
}

// CreateSession handles POST /sessions.
//
// Behavior:
//   - Validates the request body; privacy defaults from the channel file.
//   - kind=immediate starts the encoder right away. When that launch fails
//     the session is still created and returned next to the error.
//   - Responds with resource location in `Location` header.
//
// Status Codes:
//   - 201 Created → JSON of created session
//   - 400 Bad Request → Invalid JSON or schema
//   - 409 Conflict → session_id already used, or no encoder slot
//   - 422 Unprocessable Entity → Validation failed
//   - 500 Internal Server Error
func (h *SessionsHandler) CreateSession(c *gin.Context) {
	var body dto.SessionCreate
	if err := bind(c.Request, &body); err != nil {
		badRequest(c, err)
		return
	}
	req, err := body.ToRequest(h.defaults)
	if err != nil {
		badRequest(c, err)
		return
	}

	s, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		if s != nil {
			c.Header("Location", "/api/sessions/"+s.ID)
			c.JSON(statusOf(err), gin.H{"message": err.Error(), "session": s})
			return
		}
		c.JSON(statusOf(err), gin.H{"message": err.Error()})
		return
	}

	c.Header("Location", "/api/sessions/"+s.ID)
	c.JSON(http.StatusCreated, s)
}

// GetSession handles GET /sessions/{id}.
//
// Status Codes:
//   - 200 OK → JSON of the session
//   - 404 Not Found
func (h *SessionsHandler) GetSession(c *gin.Context) {
	s, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ScheduleSession handles POST /sessions/{id}/schedule.
//
// Behavior:
//   - Body {"kind": "scheduled"|"immediate", "scheduled_at": RFC 3339}.
//   - A time not in the future is moved to one minute from now.
//   - kind=immediate also starts the encoder.
//
// Status Codes:
//   - 200 OK → JSON of the session
//   - 400 Bad Request → Invalid JSON or schema
//   - 404 Not Found
//   - 409 Conflict → another operation on the session is in flight
//   - 422 Unprocessable Entity → Illegal transition or missing time
func (h *SessionsHandler) ScheduleSession(c *gin.Context) {
	var body dto.SessionSchedule
	if err := bind(c.Request, &body); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.svc.Schedule(c.Request.Context(), c.Param("id"), session.Kind(body.Kind), body.ScheduledAt)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// StartSession handles POST /sessions/{id}/start.
//
// Status Codes:
//   - 200 OK → JSON of the now active session
//   - 401 Unauthorized → Credential unusable while provisioning
//   - 404 Not Found
//   - 409 Conflict → Busy session or no encoder slot
//   - 422 Unprocessable Entity → Missing video or ingest key, or illegal transition
//   - 502 Bad Gateway → Provisioning failed
//   - 500 Internal Server Error → Encoder missing or spawn failure
func (h *SessionsHandler) StartSession(c *gin.Context) {
	s, err := h.svc.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// StopSession handles POST /sessions/{id}/stop.
//
// Behavior:
//   - Waits until the encoder has exited.
//   - Stopping a session that is not running is not an error: stopped=false.
//
// Status Codes:
//   - 200 OK → {"session": {...}, "stopped": bool}
//   - 404 Not Found
//   - 409 Conflict → another operation on the session is in flight
func (h *SessionsHandler) StopSession(c *gin.Context) {
	s, stopped, err := h.svc.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s, "stopped": stopped})
}

// CancelSession handles POST /sessions/{id}/cancel.
//
// Status Codes:
//   - 200 OK → JSON of the cancelled session
//   - 404 Not Found
//   - 409 Conflict
//   - 422 Unprocessable Entity → Session already active or finished
func (h *SessionsHandler) CancelSession(c *gin.Context) {
	s, err := h.svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ProvisionSession handles POST /sessions/{id}/provision.
//
// Behavior:
//   - Idempotent: an already provisioned session is returned unchanged and an
//     interrupted provisioning resumes at the failed step.
//
// Status Codes:
//   - 200 OK → JSON of the session with broadcast_id, ingest_key and watch_url
//   - 401 Unauthorized
//   - 404 Not Found
//   - 409 Conflict
//   - 422 Unprocessable Entity
//   - 502 Bad Gateway
func (h *SessionsHandler) ProvisionSession(c *gin.Context) {
	s, err := h.svc.Provision(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// GetSessionLogs handles GET /sessions/{id}/logs.
//
// Behavior:
//   - Optional ?kind=INFO|ERROR|ENCODER (repeatable) and ?limit=N.
//   - Events are ordered by sequence, newest first.
//
// Status Codes:
//   - 200 OK → JSON array of log events
//   - 400 Bad Request → Bad kind or limit
//   - 404 Not Found
//   - 500 Internal Server Error
func (h *SessionsHandler) GetSessionLogs(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.svc.Get(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	f, err := logFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	f.SessionID = id

	evs, err := h.logs.Query(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	writeEvents(c, evs)
}
