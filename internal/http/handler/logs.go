package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/domain/logevent"
)

const (
	defaultTail = 100
	maxLimit    = 5000
)

// LogsHandler serves the log event collection.
//
// Supported operations:
//   - GET /logs       → Query events (?session_id, ?kind, ?limit)
//   - GET /logs/tail  → Most recent events from memory (?n, ?session_id, ?kind)
type LogsHandler struct {
	log  *zap.Logger
	logs Logs
}

func NewLogsHandler(log *zap.Logger, logs Logs) *LogsHandler {
	return &LogsHandler{log: log.Named("logs"), logs: logs}
}

// QueryLogs handles GET /logs.
//
// Status Codes:
//   - 200 OK → JSON array of log events, newest first
//   - 400 Bad Request → Bad kind or limit
//   - 500 Internal Server Error
func (h *LogsHandler) QueryLogs(c *gin.Context) {
	f, err := logFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	f.SessionID = c.Query("session_id")

	evs, err := h.logs.Query(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	writeEvents(c, evs)
}

// TailLogs handles GET /logs/tail.
//
// Behavior:
//   - Reads only the in-memory tail; never touches the durable store.
//   - Filters apply to the last n events, so fewer than n may be returned.
//
// Status Codes:
//   - 200 OK → JSON array of log events, newest first
//   - 400 Bad Request → Bad n or kind
func (h *LogsHandler) TailLogs(c *gin.Context) {
	n := defaultTail
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxLimit {
			badRequest(c, fmt.Errorf("n: must be an integer in 1..%d", maxLimit))
			return
		}
		n = v
	}
	f, err := logFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	f.SessionID = c.Query("session_id")

	evs := h.logs.Tail(n)
	if f.SessionID != "" || len(f.Kinds) > 0 {
		var out []*logevent.LogEvent
		for _, ev := range evs {
			if f.Match(ev) {
				out = append(out, ev)
			}
		}
		evs = out
	}
	writeEvents(c, evs)
}

// logFilter parses ?kind (repeatable) and ?limit.
func logFilter(c *gin.Context) (logevent.Filter, error) {
	var f logevent.Filter
	for _, k := range c.QueryArray("kind") {
		kind := logevent.Kind(k)
		if !kind.Valid() {
			return f, fmt.Errorf("kind: unknown %q", k)
		}
		f.Kinds = append(f.Kinds, kind)
	}
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxLimit {
			return f, fmt.Errorf("limit: must be an integer in 1..%d", maxLimit)
		}
		f.Limit = v
	}
	return f, nil
}

func writeEvents(c *gin.Context, evs []*logevent.LogEvent) {
	if evs == nil {
		evs = []*logevent.LogEvent{}
	}
	c.Header("X-Total-Count", strconv.Itoa(len(evs)))
	c.JSON(http.StatusOK, evs)
}
