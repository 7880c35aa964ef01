package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ahmed11551/namazpro24/internal/errors"
	"github.com/ahmed11551/namazpro24/internal/logging"
	"github.com/ahmed11551/namazpro24/internal/models"
)

// maxEventBytes bounds one POST /api/events body.
const maxEventBytes = 256 << 10

// EventRecorder records offline events.
type EventRecorder interface {
	Enqueue(ctx context.Context, eventType models.EventType, payload json.RawMessage, createdAt int64) (string, error)
}

// EventHandler accepts user actions from the client.
type EventHandler struct {
	recorder EventRecorder
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(recorder EventRecorder) *EventHandler {
	return &EventHandler{recorder: recorder}
}

type createEventRequest struct {
	Type      models.EventType `json:"type"`
	Payload   json.RawMessage  `json:"payload"`
	CreatedAt int64            `json:"created_at"`
}

// Create handles POST /api/events.
func (h *EventHandler) Create(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxEventBytes)

	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Event too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	id, err := h.recorder.Enqueue(c.Request.Context(), req.Type, req.Payload, req.CreatedAt)
	if err != nil {
		respondError(c, "Failed to record event", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// respondError maps an application error to a status code: validation
// problems are the caller's, everything else is ours.
func respondError(c *gin.Context, message string, err error) {
	code := apperrors.CodeOf(err)
	switch code {
	case apperrors.ErrValidation, apperrors.ErrInvalid:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": code})
	case apperrors.ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": code})
	default:
		logging.ErrorWithCode(message, string(code), err, map[string]interface{}{
			"component": "agent",
			"path":      c.FullPath(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": message, "code": code})
	}
}
