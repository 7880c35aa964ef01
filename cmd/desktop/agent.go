package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/ahmed11551/namazpro24/cmd/desktop/handlers"
	"github.com/ahmed11551/namazpro24/internal/config"
	"github.com/ahmed11551/namazpro24/internal/logging"
	"github.com/ahmed11551/namazpro24/internal/middleware"
	syncpkg "github.com/ahmed11551/namazpro24/internal/sync"
	"github.com/ahmed11551/namazpro24/internal/sync/connectivity"
	"github.com/ahmed11551/namazpro24/internal/sync/queue"
	"github.com/ahmed11551/namazpro24/internal/sync/status"
)

// Agent is the local sync agent: the queue, the connectivity signal, the sync
// facade and the HTTP/WebSocket surface the client talks to.
type Agent struct {
	store   *queue.Store
	monitor *connectivity.Monitor
	prober  *connectivity.Prober
	facade  *status.Facade
	hub     *WSHub
	router  *gin.Engine

	mu        sync.Mutex
	cancel    context.CancelFunc
	unsub     func()
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAgent wires an agent from cfg. dispatcher may be nil, in which case
// events are delivered to cfg.Remote.BaseURL over HTTP.
func NewAgent(cfg *config.Config, dispatcher syncpkg.Dispatcher, traceServiceName string) *Agent {
	if dispatcher == nil {
		dispatcher = syncpkg.NewRemoteClient(cfg.Remote.BaseURL)
	}

	// Without a health URL there is no connectivity signal; assume the
	// remote is reachable and let failed dispatches count as retries.
	monitor := connectivity.NewMonitor(true)
	store := queue.NewStore(cfg.DataDir)
	hub := NewWSHub()

	a := &Agent{
		store:   store,
		monitor: monitor,
		prober:  connectivity.NewProber(monitor, cfg.Remote.HealthURL, cfg.Sync.ProbeInterval, cfg.Sync.ProbeTimeout),
		hub:     hub,
	}
	a.facade = status.New(store, monitor, dispatcher,
		status.WithSyncInterval(cfg.Sync.Interval),
		status.WithDispatchTimeout(cfg.Sync.DispatchTimeout),
		status.WithMaxRetries(cfg.Sync.MaxRetries),
		status.WithRetention(cfg.Sync.Retention),
		status.WithEventHandler(hub),
	)
	a.router = a.routes(traceServiceName)
	return a
}

func (a *Agent) routes(traceServiceName string) *gin.Engine {
	router := middleware.NewEngine("agent", traceServiceName)

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "namazpro-agent"})
	})

	api := router.Group("/api")
	{
		events := handlers.NewEventHandler(a.facade)
		api.POST("/events", events.Create)

		syncHandler := handlers.NewSyncHandler(a.facade)
		api.GET("/sync/status", syncHandler.Status)
		api.POST("/sync/trigger", syncHandler.Trigger)
		api.POST("/sync/refresh", syncHandler.Refresh)

		cache := handlers.NewCacheHandler(a.facade)
		api.GET("/cache/goals", cache.Goals)
		api.PUT("/cache/goals", cache.PutGoals)
		api.GET("/cache/tasbih-session", cache.TasbihSession)
		api.PUT("/cache/tasbih-session", cache.PutTasbihSession)
		api.GET("/cache/prayer-debt/:user_id", cache.PrayerDebt)
		api.PUT("/cache/prayer-debt/:user_id", cache.PutPrayerDebt)
	}

	router.GET("/ws", HandleWebSocket(a.hub, a.facade.Status))
	return router
}

// Handler returns the HTTP handler for the local API.
func (a *Agent) Handler() http.Handler {
	return a.router
}

// Facade exposes the sync status facade.
func (a *Agent) Facade() *status.Facade {
	return a.facade
}

// Start opens the queue and starts probing, scheduling and status fan-out.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.facade.Init(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	updates, unsub := a.facade.Subscribe()
	a.unsub = unsub
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for st := range updates {
			a.hub.BroadcastStatus(st)
		}
	}()

	a.prober.Start(runCtx)
	a.facade.Start(runCtx)
	logging.Info("agent started", map[string]interface{}{
		"component": "agent",
		"status":    a.facade.Status(),
	})
	return nil
}

// ApplyConfig takes the settings that can change without a restart.
func (a *Agent) ApplyConfig(cfg *config.Config) {
	if level, err := logging.ParseLevel(cfg.Log.Level); err == nil {
		logging.SetLevel(level)
	} else {
		logging.Warn("ignoring log level", map[string]interface{}{"error": err.Error()})
	}
	a.facade.SetSyncInterval(cfg.Sync.Interval)
	logging.Info("config reloaded", map[string]interface{}{
		"component":     "agent",
		"log_level":     cfg.Log.Level,
		"sync_interval": cfg.Sync.Interval.String(),
	})
}

// Close stops every background task and releases the queue.
func (a *Agent) Close() error {
	var err error
	a.closeOnce.Do(func() {
		// cancel first so in-flight probes and dispatches abort
		a.mu.Lock()
		if a.cancel != nil {
			a.cancel()
		}
		unsub := a.unsub
		a.mu.Unlock()

		a.prober.Stop()
		a.facade.Close()
		if unsub != nil {
			unsub()
		}
		a.wg.Wait()

		a.hub.Stop()
		err = a.store.Close()
	})
	return err
}
