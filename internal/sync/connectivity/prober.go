package connectivity

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ahmed11551/namazpro24/internal/logging"
)

// Prober is the host's connectivity signal: it periodically requests a health
// URL and feeds the outcome into a Monitor. Any HTTP response counts as
// ONLINE, even an error status, because it proves the network path works.
// With no URL there is no signal and the Monitor is left untouched.
type Prober struct {
	monitor    *Monitor
	url        string
	interval   time.Duration
	httpClient *http.Client

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewProber creates a Prober for url.
func NewProber(monitor *Monitor, url string, interval, timeout time.Duration) *Prober {
	return &Prober{
		monitor:  monitor,
		url:      url,
		interval: interval,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    2,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// Probe performs one reachability check.
func (p *Prober) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return true
}

// Start begins probing: once immediately, then every interval.
func (p *Prober) Start(ctx context.Context) {
	if p.url == "" {
		logging.Info("connectivity probe disabled, no health URL configured", map[string]interface{}{
			"component": "connectivity",
		})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.loop(runCtx)
}

// Stop halts probing, aborting a request in flight, and waits for the loop
// to exit.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Prober) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *Prober) check(ctx context.Context) {
	online := p.Probe(ctx)
	if ctx.Err() != nil {
		return
	}
	if p.monitor.Set(online) {
		logging.Info("connectivity changed", map[string]interface{}{
			"component": "connectivity",
			"online":    online,
			"url":       p.url,
		})
	}
}
