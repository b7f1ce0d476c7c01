// Package heartbeat implements a periodic proactive check-in: on a fixed
// interval, a prompt is
// run through the agent the same way a cron job would be, independent of
// any scheduled jobs a user has created.
package heartbeat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotbot/rotbot/pkg/logger"
)

const defaultPrompt = "Perform your periodic heartbeat check-in. Review anything pending and act if needed."

// HeartbeatCallback runs the given prompt through the agent and returns its
// response (or an error).
type HeartbeatCallback func(prompt string) (string, error)

// HeartbeatService ticks HeartbeatCallback every intervalMinutes while
// enabled is true. The prompt is read from <workspace>/heartbeat.txt when
// present, falling back to a built-in default.
type HeartbeatService struct {
	mu              sync.Mutex
	workspace       string
	callback        HeartbeatCallback
	intervalMinutes int
	enabled         bool

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewHeartbeatService(workspace string, callback HeartbeatCallback, intervalMinutes int, enabled bool) *HeartbeatService {
	return &HeartbeatService{
		workspace:       workspace,
		callback:        callback,
		intervalMinutes: intervalMinutes,
		enabled:         enabled,
	}
}

// Start begins the tick loop. A no-op if the service is disabled or
// already running; an error if intervalMinutes is not positive.
func (hs *HeartbeatService) Start() error {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if !hs.enabled {
		return nil
	}
	if hs.intervalMinutes <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %d", hs.intervalMinutes)
	}
	if hs.running {
		return nil
	}

	hs.running = true
	hs.stopCh = make(chan struct{})
	stopCh := hs.stopCh

	hs.wg.Add(1)
	go hs.runLoop(stopCh)
	return nil
}

// Stop halts the tick loop and waits for it to exit. Safe to call when not
// running.
func (hs *HeartbeatService) Stop() {
	hs.mu.Lock()
	if !hs.running {
		hs.mu.Unlock()
		return
	}
	hs.running = false
	close(hs.stopCh)
	hs.mu.Unlock()

	hs.wg.Wait()
}

func (hs *HeartbeatService) runLoop(stopCh chan struct{}) {
	defer hs.wg.Done()

	hs.beat()

	ticker := time.NewTicker(time.Duration(hs.intervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			hs.beat()
		}
	}
}

func (hs *HeartbeatService) beat() {
	prompt := hs.loadPrompt()
	if _, err := hs.callback(prompt); err != nil {
		logger.WarnCF("heartbeat", "Heartbeat callback failed", map[string]interface{}{"error": err.Error()})
	}
}

func (hs *HeartbeatService) loadPrompt() string {
	path := filepath.Join(hs.workspace, "heartbeat.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultPrompt
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return defaultPrompt
	}
	return prompt
}
