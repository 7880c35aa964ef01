package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ahmed11551/namazpro24/internal/db"
	apperrors "github.com/ahmed11551/namazpro24/internal/errors"
	"github.com/ahmed11551/namazpro24/internal/models"
)

// maxSnapshotBytes bounds a prayer debt snapshot upload.
const maxSnapshotBytes = 1 << 20

// CacheSource opens the auxiliary caches.
type CacheSource interface {
	Caches(ctx context.Context) (db.CacheRepository, error)
}

// CacheHandler serves the caches the client reads while offline.
type CacheHandler struct {
	source CacheSource
}

// NewCacheHandler creates a new CacheHandler.
func NewCacheHandler(source CacheSource) *CacheHandler {
	return &CacheHandler{source: source}
}

func (h *CacheHandler) caches(c *gin.Context) (db.CacheRepository, bool) {
	repo, err := h.source.Caches(c.Request.Context())
	if err != nil {
		respondError(c, "Cache unavailable", err)
		return nil, false
	}
	return repo, true
}

// Goals handles GET /api/cache/goals.
func (h *CacheHandler) Goals(c *gin.Context) {
	repo, ok := h.caches(c)
	if !ok {
		return
	}
	goals, err := repo.CachedGoals(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to read cached goals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

// PutGoals handles PUT /api/cache/goals. The body replaces the whole list.
func (h *CacheHandler) PutGoals(c *gin.Context) {
	var req struct {
		Goals []models.Goal `json:"goals"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	for _, g := range req.Goals {
		if g.ID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "every goal needs an id"})
			return
		}
	}
	if req.Goals == nil {
		req.Goals = []models.Goal{}
	}

	repo, ok := h.caches(c)
	if !ok {
		return
	}
	if err := repo.CacheGoals(c.Request.Context(), req.Goals); err != nil {
		respondError(c, "Failed to cache goals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": req.Goals})
}

// TasbihSession handles GET /api/cache/tasbih-session. The session is null
// when none was saved.
func (h *CacheHandler) TasbihSession(c *gin.Context) {
	repo, ok := h.caches(c)
	if !ok {
		return
	}
	s, err := repo.LastTasbihSession(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to read tasbih session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s})
}

// PutTasbihSession handles PUT /api/cache/tasbih-session.
func (h *CacheHandler) PutTasbihSession(c *gin.Context) {
	var s models.TasbihSession
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if s.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	repo, ok := h.caches(c)
	if !ok {
		return
	}
	if err := repo.SaveTasbihSession(c.Request.Context(), &s); err != nil {
		respondError(c, "Failed to save tasbih session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s})
}

// PrayerDebt handles GET /api/cache/prayer-debt/:user_id.
func (h *CacheHandler) PrayerDebt(c *gin.Context) {
	repo, ok := h.caches(c)
	if !ok {
		return
	}
	cached, err := repo.PrayerDebt(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, "Failed to read prayer debt", err)
		return
	}
	if cached == nil {
		respondError(c, "", apperrors.New(apperrors.ErrNotFound, "no cached prayer debt"))
		return
	}
	c.JSON(http.StatusOK, cached)
}

// PutPrayerDebt handles PUT /api/cache/prayer-debt/:user_id. The body is the
// snapshot exactly as the server returned it.
func (h *CacheHandler) PutPrayerDebt(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSnapshotBytes+1))
	if err != nil || len(body) > maxSnapshotBytes || !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "snapshot must be a JSON document under 1 MiB"})
		return
	}

	repo, ok := h.caches(c)
	if !ok {
		return
	}
	userID := c.Param("user_id")
	if err := repo.SavePrayerDebt(c.Request.Context(), userID, json.RawMessage(body)); err != nil {
		respondError(c, "Failed to cache prayer debt", err)
		return
	}
	cached, err := repo.PrayerDebt(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "Failed to read prayer debt", err)
		return
	}
	c.JSON(http.StatusOK, cached)
}
