package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ahmed11551/namazpro24/internal/errors"
	"github.com/ahmed11551/namazpro24/internal/logging"
	"github.com/ahmed11551/namazpro24/internal/models"
	"github.com/ahmed11551/namazpro24/internal/prayerdebt"
	"github.com/ahmed11551/namazpro24/internal/recommend"
)

// CalculateDebt runs the calculator and keeps the result as the current snapshot.
// A new calculation starts repayment from zero.
func (s *Server) CalculateDebt(c *gin.Context) {
	var req prayerdebt.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	debt, err := prayerdebt.Calculate(req, s.now())
	if err != nil {
		if apperrors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errorMessage(err)})
			return
		}
		logging.Error("prayer debt calculation failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to calculate prayer debt"})
		return
	}

	s.mu.Lock()
	s.debt = debt
	s.mu.Unlock()

	c.JSON(http.StatusOK, debt)
}

// DebtSnapshot returns the current calculation and repayment progress.
func (s *Server) DebtSnapshot(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debt == nil {
		c.JSON(http.StatusOK, gin.H{
			"debt_calculation":   nil,
			"repayment_progress": models.RepaymentProgress{},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"debt_calculation":   s.debt.DebtCalculation,
		"repayment_progress": s.debt.RepaymentProgress,
	})
}

// UpdateDebtProgress adds made-up prayers to the current snapshot.
func (s *Server) UpdateDebtProgress(c *gin.Context) {
	var req models.PrayerDebtProgress
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debt == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No prayer debt calculation"})
		return
	}
	if err := prayerdebt.ApplyProgress(s.debt, req.CompletedPrayers, s.now()); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorMessage(err)})
		return
	}

	remaining := prayerdebt.Remaining(s.debt)
	c.JSON(http.StatusOK, gin.H{
		"repayment_progress": s.debt.RepaymentProgress,
		"remaining":          remaining,
		"remaining_total":    prayerdebt.Total(remaining),
	})
}

type recommendationsRequest struct {
	UserProfile *recommend.Profile `json:"user_profile"`
}

// Recommendations analyzes the posted profile and returns advice and trends.
func (s *Server) Recommendations(c *gin.Context) {
	var req recommendationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserProfile == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing user_profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recommendations": recommend.Generate(*req.UserProfile),
		"trends":          recommend.AnalyzeTrends(*req.UserProfile),
	})
}
