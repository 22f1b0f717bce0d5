package cron

import (
	"encoding/json"
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/jobhook/job"
)

// parser supports standard 5-field cron and descriptors like "@every 30s".
var parser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("cron: parse schedule %q: %w", expr, err)
	}
	return sched, nil
}

// Entry fires Trigger with Payload on every tick of Schedule.
type Entry struct {
	// Name identifies the entry in logs. Names are unique per scheduler.
	Name string `json:"name"`

	// Schedule is a cron expression (e.g., "*/5 * * * *" or "@every 30s").
	Schedule string `json:"schedule"`

	// Trigger is the event name handed to TriggerJob.
	Trigger string `json:"trigger"`

	Payload json.RawMessage `json:"payload,omitempty"`

	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
}

// NewEntry builds an Entry with a typed payload. It panics if the payload
// cannot be encoded, which only happens for types JSON does not support.
func NewEntry[T any](name, schedule, trigger string, payload T) *Entry {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("cron: encode payload for %q: %v", name, err))
	}
	return &Entry{
		Name:     name,
		Schedule: schedule,
		Trigger:  trigger,
		Payload:  raw,
	}
}

func (e *Entry) options() job.TriggerOptions {
	return job.TriggerOptions{Name: e.Trigger, Payload: e.Payload}
}
