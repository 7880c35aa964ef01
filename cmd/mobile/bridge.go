// Package main is the mobile bridge: the sync core built as a shared library
// (libnamazpro.so on Android, namazpro.framework on iOS) and driven over FFI.
// The host app feeds connectivity from the OS network callbacks and reads
// every result as a JSON string.
package main

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ahmed11551/namazpro24/internal/config"
	apperrors "github.com/ahmed11551/namazpro24/internal/errors"
	"github.com/ahmed11551/namazpro24/internal/logging"
	"github.com/ahmed11551/namazpro24/internal/models"
	syncpkg "github.com/ahmed11551/namazpro24/internal/sync"
	"github.com/ahmed11551/namazpro24/internal/sync/connectivity"
	"github.com/ahmed11551/namazpro24/internal/sync/queue"
	"github.com/ahmed11551/namazpro24/internal/sync/status"
)

// callTimeout bounds a single FFI call; the host calls from its UI isolate.
const callTimeout = 30 * time.Second

var errNotOpen = apperrors.New(apperrors.ErrConfig, "core not initialized")

// core is the state behind the exported functions.
type core struct {
	mu      sync.Mutex
	store   *queue.Store
	monitor *connectivity.Monitor
	facade  *status.Facade
	cancel  context.CancelFunc

	lastMu  sync.RWMutex
	lastErr string
}

var bridge = &core{}

// open loads the configuration, opens the queue in dataDir and starts the
// background triggers. The host's network state seeds the monitor. A second
// open is a no-op.
func (c *core) open(configPath, dataDir string, online bool, dispatcher syncpkg.Dispatcher) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.facade != nil {
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if level, err := logging.ParseLevel(cfg.Log.Level); err == nil {
		logging.SetLevel(level)
	}
	if dispatcher == nil {
		dispatcher = syncpkg.NewRemoteClient(cfg.Remote.BaseURL)
	}

	store := queue.NewStore(cfg.DataDir)
	monitor := connectivity.NewMonitor(online)
	facade := status.New(store, monitor, dispatcher,
		status.WithSyncInterval(cfg.Sync.Interval),
		status.WithDispatchTimeout(cfg.Sync.DispatchTimeout),
		status.WithMaxRetries(cfg.Sync.MaxRetries),
		status.WithRetention(cfg.Sync.Retention),
	)

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := facade.Init(ctx); err != nil {
		facade.Close()
		store.Close()
		return err
	}

	runCtx, stop := context.WithCancel(context.Background())
	facade.Start(runCtx)

	c.store, c.monitor, c.facade, c.cancel = store, monitor, facade, stop
	logging.Info("mobile core opened", map[string]interface{}{
		"component": "mobile",
		"data_dir":  cfg.DataDir,
		"online":    online,
	})
	return nil
}

// close stops the triggers and closes the queue. Closing twice is a no-op.
func (c *core) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.facade == nil {
		return nil
	}
	c.facade.Close()
	c.cancel()
	err := c.store.Close()
	c.store, c.monitor, c.facade, c.cancel = nil, nil, nil, nil
	return err
}

func (c *core) current() (*status.Facade, *connectivity.Monitor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.facade == nil {
		return nil, nil, errNotOpen
	}
	return c.facade, c.monitor, nil
}

func (c *core) enqueue(eventType, payload string) (interface{}, error) {
	f, _, err := c.current()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var raw json.RawMessage
	if payload != "" {
		raw = json.RawMessage(payload)
	}
	id, err := f.Enqueue(ctx, models.EventType(eventType), raw, 0)
	if err != nil {
		return nil, err
	}
	return map[string]string{"id": id}, nil
}

func (c *core) status() (interface{}, error) {
	f, _, err := c.current()
	if err != nil {
		return nil, err
	}
	return f.Status(), nil
}

func (c *core) triggerSync() (interface{}, error) {
	f, _, err := c.current()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return f.TriggerSync(ctx), nil
}

func (c *core) refresh() (interface{}, error) {
	f, _, err := c.current()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	f.RefreshPendingCount(ctx)
	return f.Status(), nil
}

// setOnline forwards the OS network callback. Going online starts a run.
func (c *core) setOnline(online bool) (interface{}, error) {
	f, m, err := c.current()
	if err != nil {
		return nil, err
	}
	m.Set(online)
	return f.Status(), nil
}

func (c *core) purge() (interface{}, error) {
	f, _, err := c.current()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	n, err := f.Purge(ctx)
	if err != nil {
		return nil, err
	}
	f.RefreshPendingCount(ctx)
	return map[string]int64{"purged": n}, nil
}

// respond renders a call outcome as the JSON string handed to the host.
// Failures become {"error", "code"} and are kept for lastError.
func (c *core) respond(v interface{}, err error) string {
	if err != nil {
		c.setLastError(err.Error())
		body, _ := json.Marshal(map[string]string{
			"error": err.Error(),
			"code":  string(apperrors.CodeOf(err)),
		})
		return string(body)
	}
	if v == nil {
		v = map[string]bool{"ok": true}
	}
	body, err := json.Marshal(v)
	if err != nil {
		c.setLastError(err.Error())
		return `{"error":"encode response"}`
	}
	return string(body)
}

func (c *core) setLastError(msg string) {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	c.lastErr = msg
}

func (c *core) lastError() string {
	c.lastMu.RLock()
	defer c.lastMu.RUnlock()
	return c.lastErr
}

// main is required for the c-shared build mode and never runs.
func main() {}
