package model

import "time"

// SerialProfile is a stored serial-line configuration.
type SerialProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Device    string    `json:"device"`
	Baud      int       `json:"baud"`
	SttyFlags string    `json:"stty_flags,omitempty"`
	IsDefault bool      `json:"is_default"`
	ReadOnly  bool      `json:"read_only"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SocatProfile is a stored serial-to-TCP bridge configuration.
type SocatProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TCPHost   string    `json:"tcp_host"`
	TCPPort   int       `json:"tcp_port"`
	RawMode   bool      `json:"raw_mode"`
	NoEcho    bool      `json:"no_echo"`
	Verbose   bool      `json:"verbose"`
	IsDefault bool      `json:"is_default"`
	ReadOnly  bool      `json:"read_only"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PowerProfile is a stored power-supply channel configuration.
type PowerProfile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Host         string    `json:"host"`
	Port         int       `json:"port"`
	Channel      int       `json:"channel"`
	DelaySeconds int       `json:"delay_seconds"`
	IsDefault    bool      `json:"is_default"`
	ReadOnly     bool      `json:"read_only"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// JobProfile is a stored job definition. It references the collaborator
// profiles by ID rather than embedding them; references are resolved
// into a concrete JobProfileSet at submission time, not definition time.
//
// Templates (IsTemplate) are not executable directly; they are starting
// points duplicated into concrete profiles. Default and read-only
// profiles cannot be mutated or deleted.
type JobProfile struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	IsTemplate      bool         `json:"is_template"`
	IsDefault       bool         `json:"is_default"`
	ReadOnly        bool         `json:"read_only"`
	SerialProfileID string       `json:"serial_profile_id"`
	SocatProfileID  string       `json:"socat_profile_id"`
	PowerProfileID  string       `json:"power_profile_id"`
	Region          MemoryRegion `json:"region"`
	PayloadDir      string       `json:"payload_dir"`
	OutputPath      string       `json:"output_path"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Protected returns true if the profile may not be mutated or deleted.
func (p *JobProfile) Protected() bool {
	return p.IsDefault || p.ReadOnly
}
