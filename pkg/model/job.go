package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SerialParams describes the serial line a job talks over.
type SerialParams struct {
	Device string `json:"device"`
	Baud   int    `json:"baud"`

	// SttyFlags are extra stty flags applied to the device before the
	// bridge starts (e.g. "cs8 -parenb"). Validated against a blocklist
	// before use; see bridge.ValidateSttyFlags.
	SttyFlags string `json:"stty_flags,omitempty"`
}

// BridgeParams describes the TCP endpoint the serial line is bridged to.
type BridgeParams struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr returns the bridge endpoint in "host:port" form.
func (b BridgeParams) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// PowerParams describes the power-supply channel that feeds the target
// and the delay to wait after a power cycle before talking to it.
type PowerParams struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Channel      int    `json:"channel"`
	DelaySeconds int    `json:"delay_seconds"`
}

// Delay returns the configured post-cycle delay as a Duration.
func (p PowerParams) Delay() time.Duration {
	return time.Duration(p.DelaySeconds) * time.Second
}

// MemoryRegion is the target memory range to dump.
type MemoryRegion struct {
	Start  uint32 `json:"start"`
	Length uint32 `json:"length"`
}

// JobProfileSet is the frozen configuration bundle a job executes with.
// It is fully materialized before the job is enqueued; mutating the
// source profiles afterwards has no effect on an in-flight job.
type JobProfileSet struct {
	Serial     SerialParams `json:"serial"`
	Bridge     BridgeParams `json:"bridge"`
	Power      PowerParams  `json:"power"`
	Region     MemoryRegion `json:"region"`
	PayloadDir string       `json:"payload_dir"`
	OutputPath string       `json:"output_path"`
}

// ResourceKeys derives the exact set of exclusive resources a job with
// this profile set must hold while running: the serial device, the
// bridge TCP endpoint, and the power channel.
func (p JobProfileSet) ResourceKeys() []ResourceKey {
	return []ResourceKey{
		{Kind: ResourceSerial, ID: p.Serial.Device},
		{Kind: ResourceTCP, ID: p.Bridge.Addr()},
		{Kind: ResourcePower, ID: fmt.Sprintf("%s:%d:%d", p.Power.Host, p.Power.Port, p.Power.Channel)},
	}
}

// Job is one schedulable dump operation. Resources is fixed for the
// job's lifetime; it is the exact set the coordinator reserves before
// the job may run. Only the scheduler transitions State.
type Job struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Resources   []ResourceKey `json:"resources"`
	Profiles    JobProfileSet `json:"profiles"`
	State       JobState      `json:"state"`
	Detail      string        `json:"detail,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// NewJob creates a CREATED job with a fresh ID and the resource set
// derived from the given profiles.
func NewJob(name string, profiles JobProfileSet) *Job {
	return &Job{
		ID:        uuid.New(),
		Name:      name,
		Resources: profiles.ResourceKeys(),
		Profiles:  profiles,
		State:     JobStateCreated,
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy. Snapshots handed out by the scheduler are
// clones so callers cannot mutate scheduler-owned state.
func (j *Job) Clone() *Job {
	c := *j
	c.Resources = append([]ResourceKey(nil), j.Resources...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
