package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jordanella.com/autoclick-go/internal/display"
)

// UnhealthyCallback is called when monitor enumeration fails
type UnhealthyCallback func(reason string, err error)

// ChangeCallback is called when the monitor layout differs from the last check
type ChangeCallback func(before, after []display.Monitor)

// HealthChecker watches the monitor layout between searches.
// A search snapshots monitors once, so a layout change only affects the next run.
type HealthChecker struct {
	enum          display.Enumerator
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	checkInterval time.Duration
	onUnhealthy   UnhealthyCallback
	onChange      ChangeCallback

	mu        sync.RWMutex
	monitors  []display.Monitor
	lastErr   error
	lastCheck time.Time
	changes   int
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(enum display.Enumerator) *HealthChecker {
	ctx, cancel := context.WithCancel(context.Background())
	return &HealthChecker{
		enum:          enum,
		ctx:           ctx,
		cancel:        cancel,
		checkInterval: 10 * time.Second, // Check every 10 seconds
	}
}

// WithUnhealthyCallback sets the callback for unhealthy events
func (hc *HealthChecker) WithUnhealthyCallback(callback UnhealthyCallback) *HealthChecker {
	hc.onUnhealthy = callback
	return hc
}

// WithChangeCallback sets the callback for layout changes
func (hc *HealthChecker) WithChangeCallback(callback ChangeCallback) *HealthChecker {
	hc.onChange = callback
	return hc
}

// WithCheckInterval sets the health check interval
func (hc *HealthChecker) WithCheckInterval(interval time.Duration) *HealthChecker {
	hc.checkInterval = interval
	return hc
}

// Start runs one check immediately, then checks periodically
func (hc *HealthChecker) Start() {
	hc.Check()
	hc.wg.Add(1)
	go hc.monitorHealth()
}

// Stop stops health monitoring
func (hc *HealthChecker) Stop() {
	hc.cancel()
	hc.wg.Wait()
}

// Check enumerates monitors once and records the outcome
func (hc *HealthChecker) Check() error {
	monitors, err := hc.enum.Monitors()
	if err == nil && len(monitors) == 0 {
		err = display.ErrNoMonitors
	}

	hc.mu.Lock()
	prev := hc.monitors
	first := hc.lastCheck.IsZero()
	hc.lastCheck = time.Now()
	hc.lastErr = err
	changed := false
	if err == nil {
		changed = !first && display.Changed(prev, monitors)
		if changed {
			hc.changes++
		}
		hc.monitors = monitors
	}
	hc.mu.Unlock()

	if err != nil {
		if hc.onUnhealthy != nil {
			hc.onUnhealthy("monitors_unavailable", err)
		}
		return err
	}
	if changed && hc.onChange != nil {
		hc.onChange(prev, monitors)
	}
	return nil
}

// Healthy returns the error of the last check, or an error if none ran yet
func (hc *HealthChecker) Healthy() error {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	if hc.lastCheck.IsZero() {
		return fmt.Errorf("no health check has run")
	}
	return hc.lastErr
}

// Monitors returns the layout seen by the last successful check
func (hc *HealthChecker) Monitors() []display.Monitor {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return append([]display.Monitor(nil), hc.monitors...)
}

// Changes counts layout changes observed since start
func (hc *HealthChecker) Changes() int {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.changes
}

// monitorHealth performs periodic health checks
func (hc *HealthChecker) monitorHealth() {
	defer hc.wg.Done()

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-hc.ctx.Done():
			return
		case <-ticker.C:
			hc.Check()
		}
	}
}
