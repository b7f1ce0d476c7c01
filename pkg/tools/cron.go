package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotbot/rotbot/pkg/bus"
	"github.com/rotbot/rotbot/pkg/cron"
)

// AgentExecutor is the subset of the agent loop a scheduled job needs to
// run a message through the normal tool-call pipeline without going
// through a channel adapter first.
type AgentExecutor interface {
	ProcessDirectWithChannel(ctx context.Context, content, sessionKey, channel, chatID string) (string, error)
}

// CronTool exposes add/list/enable/disable/remove management of scheduled
// jobs (spec §4.9) to the agent, and separately drives job execution when
// the cron service's ticker fires one.
type CronTool struct {
	service  *cron.CronService
	executor AgentExecutor
	msgBus   *bus.MessageBus
}

func NewCronTool(service *cron.CronService, executor AgentExecutor, msgBus *bus.MessageBus) *CronTool {
	return &CronTool{service: service, executor: executor, msgBus: msgBus}
}

func (t *CronTool) Name() string { return "cron" }

func (t *CronTool) Description() string {
	return "Schedule, list, enable, disable, or remove reminders and recurring tasks. " +
		"Use at_seconds for a one-time reminder, every_seconds for a recurring one, or cron_expr for a cron schedule."
}

func (t *CronTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "One of: add, list, enable, disable, remove",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "What the job should do or say when it fires (required for add)",
			},
			"at_seconds": map[string]interface{}{
				"type":        "number",
				"description": "Run once, this many seconds from now",
			},
			"every_seconds": map[string]interface{}{
				"type":        "number",
				"description": "Run repeatedly, this many seconds apart",
			},
			"cron_expr": map[string]interface{}{
				"type":        "string",
				"description": "Run on a five-field cron expression",
			},
			"deliver": map[string]interface{}{
				"type":        "boolean",
				"description": "If true, send message directly to the chat instead of routing through the agent",
			},
			"channel": map[string]interface{}{
				"type":        "string",
				"description": "Target channel; defaults to the channel the request came from",
			},
			"chat_id": map[string]interface{}{
				"type":        "string",
				"description": "Target chat id; defaults to the chat the request came from",
			},
			"job_id": map[string]interface{}{
				"type":        "string",
				"description": "Job ID for enable/disable/remove",
			},
		},
		"required": []string{"action"},
	}
}

func (t *CronTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	action, _ := args["action"].(string)

	switch action {
	case "add":
		return t.add(args)
	case "list":
		return t.list(), nil
	case "enable":
		return t.setEnabled(args, true), nil
	case "disable":
		return t.setEnabled(args, false), nil
	case "remove":
		return t.remove(args), nil
	default:
		return "", fmt.Errorf("unknown cron action: %q", action)
	}
}

func (t *CronTool) add(args map[string]interface{}) (string, error) {
	message, _ := args["message"].(string)
	if strings.TrimSpace(message) == "" {
		return "Error: message is required", nil
	}

	channel, _ := args["channel"].(string)
	chatID, _ := args["chat_id"].(string)
	ctxChannel, ctxChatID := getExecutionContext(args)
	if channel == "" {
		channel = ctxChannel
	}
	if chatID == "" {
		chatID = ctxChatID
	}
	if channel == "" && chatID == "" {
		return "Error: no session context available to schedule this job", nil
	}

	deliver, _ := args["deliver"].(bool)
	schedule := buildSchedule(args)
	if schedule.Kind == "" {
		return "Error: one of at_seconds, every_seconds, or cron_expr is required", nil
	}

	name := jobName(message)
	job, err := t.service.AddJob(name, schedule, message, deliver, channel, chatID)
	if err != nil {
		return fmt.Sprintf("Error: failed to create job: %v", err), nil
	}

	return fmt.Sprintf("Created job %q (id=%s)", job.Name, job.ID), nil
}

// buildSchedule picks a schedule kind from args, preferring an exact
// one-time "at" time over a recurring "every" interval over a cron
// expression, since a caller supplying more than one almost certainly
// means the most specific.
func buildSchedule(args map[string]interface{}) cron.CronSchedule {
	if atSeconds, ok := numberArg(args, "at_seconds"); ok {
		at := time.Now().Add(time.Duration(atSeconds) * time.Second).UnixMilli()
		return cron.CronSchedule{Kind: "at", AtMS: &at}
	}
	if everySeconds, ok := numberArg(args, "every_seconds"); ok {
		every := int64(everySeconds * 1000)
		return cron.CronSchedule{Kind: "every", EveryMS: &every}
	}
	if expr, _ := args["cron_expr"].(string); expr != "" {
		return cron.CronSchedule{Kind: "cron", Expr: expr}
	}
	return cron.CronSchedule{}
}

func numberArg(args map[string]interface{}, key string) (float64, bool) {
	v, ok := args[key].(float64)
	if !ok {
		return 0, false
	}
	return v, true
}

func jobName(message string) string {
	name := strings.TrimSpace(message)
	if len(name) > 40 {
		name = name[:40]
	}
	if name == "" {
		name = "reminder"
	}
	return name
}

func (t *CronTool) list() string {
	jobs := t.service.ListJobs(true)
	if len(jobs) == 0 {
		return "No scheduled jobs."
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })

	var sb strings.Builder
	sb.WriteString("Scheduled jobs:\n")
	for _, j := range jobs {
		status := "enabled"
		if !j.Enabled {
			status = "disabled"
		}
		next := "none"
		if j.State.NextRunAtMS != nil {
			next = time.UnixMilli(*j.State.NextRunAtMS).Format(time.RFC3339)
		}
		sb.WriteString(fmt.Sprintf("- [%s] %s (%s, %s): %s, next=%s\n", j.ID, j.Name, j.Schedule.Kind, status, j.Payload.Message, next))
	}
	return sb.String()
}

func (t *CronTool) setEnabled(args map[string]interface{}, enabled bool) string {
	jobID, _ := args["job_id"].(string)
	if jobID == "" {
		return "Error: job_id is required"
	}
	job := t.service.EnableJob(jobID, enabled)
	if job == nil {
		return fmt.Sprintf("Error: job %s not found", jobID)
	}
	if enabled {
		return fmt.Sprintf("Job %s enabled", job.ID)
	}
	return fmt.Sprintf("Job %s disabled", job.ID)
}

func (t *CronTool) remove(args map[string]interface{}) string {
	jobID, _ := args["job_id"].(string)
	if jobID == "" {
		return "Error: job_id is required"
	}
	if !t.service.RemoveJob(jobID) {
		return fmt.Sprintf("Error: job %s not found", jobID)
	}
	return fmt.Sprintf("Removed job %s", jobID)
}

// ExecuteJob runs one fired job: deliver jobs are published straight to the
// outbound bus, everything else is routed through the agent as if the user
// themselves had sent the message. cmd/rotbot passes its own callback to
// cron.NewCronService rather than this method.
func (t *CronTool) ExecuteJob(ctx context.Context, job *cron.CronJob) string {
	if job.Payload.Deliver {
		if t.msgBus != nil {
			t.msgBus.PublishOutbound(bus.OutboundMessage{
				Channel:   job.Payload.Channel,
				ChatID:    job.Payload.To,
				Content:   job.Payload.Message,
				IsFinal:   true,
				Timestamp: time.Now(),
			})
		}
		return "ok"
	}

	if t.executor == nil {
		return "Error: no executor configured"
	}

	sessionKey := "cron-" + job.ID
	result, err := t.executor.ProcessDirectWithChannel(ctx, job.Payload.Message, sessionKey, job.Payload.Channel, job.Payload.To)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}
