// Package api is an in-memory stand-in for the NamazPro24 remote API. It serves
// the endpoints offline events are dispatched to plus the read routes the Mini
// App loads on start, so the sync agent can be exercised end to end.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	apperrors "github.com/ahmed11551/namazpro24/internal/errors"
	"github.com/ahmed11551/namazpro24/internal/middleware"
	"github.com/ahmed11551/namazpro24/internal/models"
)

// timestampLayout matches what the JavaScript client produces with toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithUser replaces the mock user returned by bootstrap.
func WithUser(u models.User) Option {
	return func(s *Server) { s.user = u }
}

// Server holds all state in memory. It is safe for concurrent use.
type Server struct {
	node *snowflake.Node
	now  func() time.Time
	user models.User

	mu       sync.Mutex
	goals    []*models.Goal
	sessions map[string]int
	azkar    models.DailyAzkar
	debt     *models.PrayerDebt
	replays  map[string]replay
}

// NewServer creates a Server whose goal ids come from snowflake node nodeID.
func NewServer(nodeID int64, opts ...Option) (*Server, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, fmt.Sprintf("snowflake node %d", nodeID), err)
	}

	s := &Server{
		node: node,
		now:  time.Now,
		user: models.User{
			ID:             1,
			TelegramUserID: 123456789,
			Locale:         "ru",
			Madhab:         models.MadhabHanafi,
			TZ:             "Europe/Moscow",
		},
		sessions: make(map[string]int),
		replays:  make(map[string]replay),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Router returns a gin engine with the shared middleware and every route registered.
func (s *Server) Router(traceServiceName string) *gin.Engine {
	router := middleware.NewEngine("api", traceServiceName)
	s.Register(router)
	return router
}

// Register mounts the routes on r.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/bootstrap", s.Bootstrap)
		v1.POST("/counter/tap", s.dedupe(), s.Tap)
		v1.GET("/goals", s.ListGoals)
		v1.POST("/goals", s.dedupe(), s.SaveGoal)
	}

	debt := r.Group("/api/prayer-debt")
	{
		debt.POST("/calculate", s.CalculateDebt)
		debt.GET("/snapshot", s.DebtSnapshot)
		debt.PATCH("/progress", s.dedupe(), s.UpdateDebtProgress)
	}

	r.POST("/api/ai/recommendations", s.Recommendations)
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

// errorMessage returns the user-facing part of an application error.
func errorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
