// Package cron implements the scheduled-task service described in spec
// §4.9: jobs with "every"/"at"/"cron" schedules, persisted to a JSON store
// so they survive a restart, and driven by a caller-supplied callback.
package cron

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/rotbot/rotbot/pkg/logger"
)

// CronSchedule describes when a job should fire. Kind selects which of the
// remaining fields is meaningful: "every" uses EveryMS, "at" uses AtMS,
// "cron" parses Expr as a standard five-field cron expression.
type CronSchedule struct {
	Kind    string `json:"kind"`
	EveryMS *int64 `json:"every_ms,omitempty"`
	AtMS    *int64 `json:"at_ms,omitempty"`
	Expr    string `json:"expr,omitempty"`
}

// CronPayload is what a job does when it fires: a message for the agent
// loop to act on, optionally delivered to a channel/recipient afterward.
type CronPayload struct {
	Message string `json:"message"`
	Deliver bool   `json:"deliver"`
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
}

// CronJobState tracks a job's run history, mutated in place as the service
// ticks.
type CronJobState struct {
	NextRunAtMS *int64 `json:"next_run_at_ms"`
	LastRunAtMS *int64 `json:"last_run_at_ms,omitempty"`
	LastResult  string `json:"last_result,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

// CronJob is a single scheduled task.
type CronJob struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Schedule       CronSchedule `json:"schedule"`
	Payload        CronPayload  `json:"payload"`
	Enabled        bool         `json:"enabled"`
	DeleteAfterRun bool         `json:"delete_after_run"`
	State          CronJobState `json:"state"`
}

type cronStore struct {
	Jobs []*CronJob `json:"jobs"`
}

// CronService manages a set of CronJobs, persists them to storePath, and
// (once Start is called) ticks them against a supplied execute callback.
type CronService struct {
	mu        sync.Mutex
	storePath string
	store     *cronStore
	executeFn func(*CronJob) (string, error)

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewCronService loads storePath if it exists (or starts with an empty job
// set) and wires executeFn as the callback invoked for each due job.
// executeFn may be nil; jobs are still tracked and scheduled but never
// dispatched.
func NewCronService(storePath string, executeFn func(*CronJob) (string, error)) *CronService {
	cs := &CronService{
		storePath: storePath,
		store:     &cronStore{Jobs: []*CronJob{}},
		executeFn: executeFn,
	}
	cs.load()
	return cs
}

func (cs *CronService) load() {
	data, err := os.ReadFile(cs.storePath)
	if err != nil {
		return
	}
	var s cronStore
	if err := json.Unmarshal(data, &s); err != nil {
		logger.WarnCF("cron", "Failed to parse cron store, starting fresh", map[string]interface{}{"error": err.Error()})
		return
	}
	if s.Jobs == nil {
		s.Jobs = []*CronJob{}
	}
	cs.store = &s
}

func (cs *CronService) saveLocked() {
	if cs.storePath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(cs.storePath), 0o755); err != nil {
		logger.WarnCF("cron", "Failed to create cron store directory", map[string]interface{}{"error": err.Error()})
		return
	}
	data, err := json.MarshalIndent(cs.store, "", "  ")
	if err != nil {
		return
	}
	tmp := cs.storePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.WarnCF("cron", "Failed to write cron store", map[string]interface{}{"error": err.Error()})
		return
	}
	os.Rename(tmp, cs.storePath)
}

// AddJob creates and persists a new job, computing its initial next-run
// time from schedule. An "at" job in the past gets a nil NextRunAtMS and
// will never fire; an "every"/"cron" job is scheduled from now.
func (cs *CronService) AddJob(name string, schedule CronSchedule, message string, deliver bool, channel, to string) (*CronJob, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	job := &CronJob{
		ID:             uuid.NewString(),
		Name:           name,
		Schedule:       schedule,
		Payload:        CronPayload{Message: message, Deliver: deliver, Channel: channel, To: to},
		Enabled:        true,
		DeleteAfterRun: schedule.Kind == "at",
	}
	job.State.NextRunAtMS = cs.computeNextRun(&schedule, time.Now().UnixMilli())

	cs.store.Jobs = append(cs.store.Jobs, job)
	cs.saveLocked()
	return job, nil
}

// RemoveJob deletes a job by ID, reporting whether it existed.
func (cs *CronService) RemoveJob(id string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for i, j := range cs.store.Jobs {
		if j.ID == id {
			cs.store.Jobs = append(cs.store.Jobs[:i], cs.store.Jobs[i+1:]...)
			cs.saveLocked()
			return true
		}
	}
	return false
}

// EnableJob toggles a job's enabled flag, recomputing NextRunAtMS (nil when
// disabled, freshly scheduled from now when re-enabled). Returns nil if no
// job with that ID exists.
func (cs *CronService) EnableJob(id string, enabled bool) *CronJob {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	job := cs.findLocked(id)
	if job == nil {
		return nil
	}
	job.Enabled = enabled
	if !enabled {
		job.State.NextRunAtMS = nil
	} else {
		job.State.NextRunAtMS = cs.computeNextRun(&job.Schedule, time.Now().UnixMilli())
	}
	cs.saveLocked()
	return job
}

func (cs *CronService) findLocked(id string) *CronJob {
	for _, j := range cs.store.Jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// ListJobs returns all jobs (includeDisabled true) or only enabled ones.
func (cs *CronService) ListJobs(includeDisabled bool) []*CronJob {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	out := make([]*CronJob, 0, len(cs.store.Jobs))
	for _, j := range cs.store.Jobs {
		if includeDisabled || j.Enabled {
			out = append(out, j)
		}
	}
	return out
}

// Status reports the job count and whether the service loop is running.
func (cs *CronService) Status() map[string]interface{} {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return map[string]interface{}{
		"jobs":    len(cs.store.Jobs),
		"enabled": cs.running,
	}
}

// computeNextRun returns the next fire time in epoch milliseconds for
// schedule given the reference time fromMS, or nil if the job should not
// run again (zero/nil interval, past "at" time, empty or invalid cron
// expression, unknown kind).
func (cs *CronService) computeNextRun(schedule *CronSchedule, fromMS int64) *int64 {
	switch schedule.Kind {
	case "every":
		if schedule.EveryMS == nil || *schedule.EveryMS <= 0 {
			return nil
		}
		next := fromMS + *schedule.EveryMS
		return &next
	case "at":
		if schedule.AtMS == nil || *schedule.AtMS <= fromMS {
			return nil
		}
		at := *schedule.AtMS
		return &at
	case "cron":
		if schedule.Expr == "" || !gronx.IsValid(schedule.Expr) {
			return nil
		}
		next, err := gronx.NextTickAfter(schedule.Expr, time.UnixMilli(fromMS), false)
		if err != nil {
			return nil
		}
		ms := next.UnixMilli()
		return &ms
	default:
		return nil
	}
}

// Start begins the tick loop on a background goroutine. Idempotent: a
// second call while already running is a no-op.
func (cs *CronService) Start() error {
	cs.mu.Lock()
	if cs.running {
		cs.mu.Unlock()
		return nil
	}
	cs.running = true
	cs.stopCh = make(chan struct{})
	stopCh := cs.stopCh
	cs.mu.Unlock()

	cs.wg.Add(1)
	go cs.runLoop(stopCh)
	return nil
}

// Stop halts the tick loop and waits for it to exit. Idempotent.
func (cs *CronService) Stop() {
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		return
	}
	cs.running = false
	close(cs.stopCh)
	cs.mu.Unlock()

	cs.wg.Wait()
}

func (cs *CronService) runLoop(stopCh chan struct{}) {
	defer cs.wg.Done()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	cs.tick()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			cs.tick()
		}
	}
}

// tick runs every job whose NextRunAtMS is due, reschedules or removes it
// according to kind, and persists the result.
func (cs *CronService) tick() {
	cs.mu.Lock()
	nowMS := time.Now().UnixMilli()
	var due []*CronJob
	for _, j := range cs.store.Jobs {
		if j.Enabled && j.State.NextRunAtMS != nil && *j.State.NextRunAtMS <= nowMS {
			due = append(due, j)
		}
	}
	executeFn := cs.executeFn
	cs.mu.Unlock()

	if len(due) == 0 || executeFn == nil {
		return
	}

	for _, job := range due {
		result, err := executeFn(job)

		cs.mu.Lock()
		ran := time.Now().UnixMilli()
		job.State.LastRunAtMS = &ran
		if err != nil {
			job.State.LastError = err.Error()
		} else {
			job.State.LastResult = result
			job.State.LastError = ""
		}

		if job.DeleteAfterRun {
			cs.removeLocked(job.ID)
		} else {
			job.State.NextRunAtMS = cs.computeNextRun(&job.Schedule, ran)
		}
		cs.saveLocked()
		cs.mu.Unlock()
	}
}

func (cs *CronService) removeLocked(id string) {
	for i, j := range cs.store.Jobs {
		if j.ID == id {
			cs.store.Jobs = append(cs.store.Jobs[:i], cs.store.Jobs[i+1:]...)
			return
		}
	}
}
