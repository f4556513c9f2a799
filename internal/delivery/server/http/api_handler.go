package http

import (
	"net/http"
	"time"

	domain "marco/internal/domain/reminder"

	"github.com/gin-gonic/gin"
)

// APIHandler serves the read-only reminder endpoints.
type APIHandler struct {
	reminders ReminderReader
	clock     domain.Clock
	startedAt time.Time
}

func NewAPIHandler(reminders ReminderReader, clock domain.Clock) *APIHandler {
	clock = domain.ClockOrSystem(clock)
	return &APIHandler{reminders: reminders, clock: clock, startedAt: clock.Now()}
}

type healthResponse struct {
	Status    string `json:"status"`
	Reminders int    `json:"reminders"`
	Uptime    string `json:"uptime"`
}

type reminderResponse struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"user_id"`
	Task         string    `json:"task"`
	EventTime    time.Time `json:"event_time"`
	FireTime     time.Time `json:"fire_time"`
	Fired        bool      `json:"fired"`
	Attempts     int       `json:"attempts"`
	DeadLettered bool      `json:"dead_lettered"`
	CreatedAt    time.Time `json:"created_at"`
}

type reminderListResponse struct {
	Reminders []reminderResponse `json:"reminders"`
	Count     int                `json:"count"`
}

// HandleHealthCheck reports "degraded" while the registry holds changes the
// store has not accepted yet.
func (h *APIHandler) HandleHealthCheck(c *gin.Context) {
	resp := healthResponse{
		Status: "ok",
		Uptime: h.clock.Now().Sub(h.startedAt).Round(time.Second).String(),
	}
	if h.reminders != nil {
		resp.Reminders = h.reminders.Len()
		if h.reminders.Dirty() {
			resp.Status = "degraded"
		}
	}
	writeJSON(c, http.StatusOK, resp)
}

// HandleListReminders lists every reminder in fire order, optionally for one user.
func (h *APIHandler) HandleListReminders(c *gin.Context) {
	userID, err := parseUserID(c.Query("user_id"))
	if err != nil {
		writeJSONError(c, statusFor(err), err.Error())
		return
	}
	if h.reminders == nil {
		writeJSON(c, http.StatusOK, toListResponse(nil))
		return
	}
	var reminders []domain.Reminder
	if userID != 0 {
		reminders = h.reminders.ForUser(userID)
	} else {
		reminders = h.reminders.All()
	}
	writeJSON(c, http.StatusOK, toListResponse(reminders))
}

// HandleListDue lists reminders due as of now or the as_of query value.
func (h *APIHandler) HandleListDue(c *gin.Context) {
	asOf, err := parseAsOf(c.Query("as_of"), h.clock.Now())
	if err != nil {
		writeJSONError(c, statusFor(err), err.Error())
		return
	}
	if h.reminders == nil {
		writeJSON(c, http.StatusOK, toListResponse(nil))
		return
	}
	writeJSON(c, http.StatusOK, toListResponse(h.reminders.DueAsOf(asOf)))
}

func toListResponse(reminders []domain.Reminder) reminderListResponse {
	out := reminderListResponse{Reminders: make([]reminderResponse, 0, len(reminders)), Count: len(reminders)}
	for _, rem := range reminders {
		out.Reminders = append(out.Reminders, reminderResponse{
			ID:           rem.ID,
			UserID:       rem.UserID,
			Task:         rem.Task,
			EventTime:    rem.EventTime,
			FireTime:     rem.FireTime,
			Fired:        rem.Fired,
			Attempts:     rem.Attempts,
			DeadLettered: rem.DeadLettered,
			CreatedAt:    rem.CreatedAt,
		})
	}
	return out
}
