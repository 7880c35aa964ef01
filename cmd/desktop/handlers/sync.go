// Package handlers provides the local agent's REST handlers: offline event
// recording, sync status and the auxiliary caches.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ahmed11551/namazpro24/internal/logging"
	"github.com/ahmed11551/namazpro24/internal/sync/status"
)

// SyncFacade is the part of the status facade the sync endpoints use.
type SyncFacade interface {
	Status() status.Status
	TriggerSync(ctx context.Context) status.Status
	RefreshPendingCount(ctx context.Context) int
}

// SyncHandler serves the sync status and manual triggers.
type SyncHandler struct {
	facade SyncFacade
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(facade SyncFacade) *SyncHandler {
	return &SyncHandler{facade: facade}
}

// Status handles GET /api/sync/status.
func (h *SyncHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.facade.Status())
}

// Trigger handles POST /api/sync/trigger. It waits for the run and returns
// the state afterwards. A trigger while a run is active or while offline is
// a no-op and still answers 200.
func (h *SyncHandler) Trigger(c *gin.Context) {
	st := h.facade.TriggerSync(c.Request.Context())
	logging.Debug("manual sync requested", map[string]interface{}{
		"component": "agent",
		"pending":   st.PendingEvents,
		"online":    st.IsOnline,
	})
	c.JSON(http.StatusOK, st)
}

// Refresh handles POST /api/sync/refresh: re-read the pending count without syncing.
func (h *SyncHandler) Refresh(c *gin.Context) {
	h.facade.RefreshPendingCount(c.Request.Context())
	c.JSON(http.StatusOK, h.facade.Status())
}
