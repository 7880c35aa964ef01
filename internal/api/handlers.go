package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ahmed11551/namazpro24/internal/logging"
	"github.com/ahmed11551/namazpro24/internal/models"
)

// azkarPerPrayer is the tasbih count (33 x 3) that completes one prayer's azkar.
const azkarPerPrayer = 99

// Bootstrap returns the user, active goals and the day's azkar tally.
func (s *Server) Bootstrap(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := []models.Goal{}
	for _, g := range s.goals {
		if g.Status == models.GoalStatusActive {
			active = append(active, *g)
		}
	}
	var activeGoal *models.Goal
	if len(active) > 0 {
		activeGoal = &active[0]
	}

	c.JSON(http.StatusOK, models.Bootstrap{
		User:        s.user,
		ActiveGoal:  activeGoal,
		DailyAzkar:  s.azkar,
		RecentItems: []interface{}{},
		ActiveGoals: active,
		Streak:      0,
		TotalDhikr:  s.azkar.Total,
	})
}

// Tap applies a counter delta to its session, the day's azkar tally and any
// active goal linked to the counter category.
func (s *Server) Tap(c *gin.Context) {
	var req models.TapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SessionID == "" || req.Delta == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[req.SessionID] += req.Delta
	s.addAzkar(req.PrayerSegment, req.Delta)

	progress := map[string]interface{}{}
	if req.Category != "" {
		for _, g := range s.goals {
			if g.Status != models.GoalStatusActive || g.LinkedCounterType != req.Category {
				continue
			}
			g.Progress = max(0, g.Progress+req.Delta)
			if g.Progress >= g.TargetCount {
				g.Status = models.GoalStatusCompleted
				g.CompletedAt = s.timestamp()
			}
			progress[g.ID] = gin.H{"progress": g.Progress, "target_count": g.TargetCount, "status": g.Status}
		}
	}

	logging.Debug("tap applied", map[string]interface{}{
		"session_id": req.SessionID,
		"delta":      req.Delta,
		"offline_id": req.OfflineID,
	})

	c.JSON(http.StatusOK, models.TapResponse{
		ValueAfter:   s.sessions[req.SessionID],
		GoalProgress: progress,
		DailyAzkar:   s.azkar,
	})
}

// addAzkar updates the tally. Callers hold s.mu.
func (s *Server) addAzkar(segment models.PrayerSegment, delta int) {
	a := &s.azkar
	switch segment {
	case models.PrayerSegmentFajr:
		a.Fajr += delta
	case models.PrayerSegmentDhuhr:
		a.Dhuhr += delta
	case models.PrayerSegmentAsr:
		a.Asr += delta
	case models.PrayerSegmentMaghrib:
		a.Maghrib += delta
	case models.PrayerSegmentIsha:
		a.Isha += delta
	}
	a.Total += delta
	a.IsComplete = a.Fajr >= azkarPerPrayer && a.Dhuhr >= azkarPerPrayer && a.Asr >= azkarPerPrayer &&
		a.Maghrib >= azkarPerPrayer && a.Isha >= azkarPerPrayer
}

// ListGoals returns every goal.
func (s *Server) ListGoals(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	goals := make([]models.Goal, 0, len(s.goals))
	for _, g := range s.goals {
		goals = append(goals, *g)
	}
	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

type goalRequest struct {
	ID                string              `json:"id"`
	UserID            string              `json:"user_id"`
	Category          models.GoalCategory `json:"category"`
	ItemID            string              `json:"item_id"`
	GoalType          string              `json:"goal_type"`
	TargetCount       int                 `json:"target_count"`
	LinkedCounterType string              `json:"linked_counter_type"`
	Progress          *int                `json:"progress"`
	Status            models.GoalStatus   `json:"status"`
}

// SaveGoal creates a goal, or updates one when the body names an existing id.
func (s *Server) SaveGoal(c *gin.Context) {
	var req goalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID != "" {
		g := s.findGoal(req.ID)
		if g == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Goal not found"})
			return
		}
		if req.TargetCount > 0 {
			g.TargetCount = req.TargetCount
		}
		if req.Progress != nil {
			g.Progress = max(0, *req.Progress)
		}
		if req.Status != "" {
			g.Status = req.Status
		}
		if g.Status == models.GoalStatusCompleted && g.CompletedAt == "" {
			g.CompletedAt = s.timestamp()
		}
		c.JSON(http.StatusOK, gin.H{"goal": *g})
		return
	}

	if req.Category == "" || req.TargetCount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	g := &models.Goal{
		ID:                s.node.Generate().String(),
		UserID:            req.UserID,
		Category:          req.Category,
		ItemID:            req.ItemID,
		GoalType:          req.GoalType,
		TargetCount:       req.TargetCount,
		Progress:          0,
		Status:            models.GoalStatusActive,
		LinkedCounterType: req.LinkedCounterType,
		CreatedAt:         s.timestamp(),
	}
	s.goals = append(s.goals, g)
	c.JSON(http.StatusCreated, gin.H{"goal": *g})
}

// findGoal returns the goal with id, or nil. Callers hold s.mu.
func (s *Server) findGoal(id string) *models.Goal {
	for _, g := range s.goals {
		if g.ID == id {
			return g
		}
	}
	return nil
}
