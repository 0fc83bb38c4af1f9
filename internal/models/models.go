package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EndpointStatus is the liveness verdict for a monitored host.
type EndpointStatus string

const (
	StatusOnline  EndpointStatus = "online"
	StatusOffline EndpointStatus = "offline"
	// StatusUnknown means the endpoint has never reported a heartbeat.
	StatusUnknown EndpointStatus = "unknown"
)

// CheckStatus is the outcome of executing one check on one endpoint.
type CheckStatus string

const (
	CheckPass CheckStatus = "pass"
	CheckFail CheckStatus = "fail"
	// CheckError means the check could not be evaluated at all.
	CheckError CheckStatus = "error"
	// CheckSkipped means the check type is inapplicable on this platform.
	CheckSkipped CheckStatus = "skipped"
)

// Severity ranks how serious a failing check is considered.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// CheckType identifies one of the supported probe kinds.
type CheckType string

const (
	CheckFileExists     CheckType = "file_exists"
	CheckFileContent    CheckType = "file_content"
	CheckRegistryKey    CheckType = "registry_key"
	CheckConfigSetting  CheckType = "config_setting"
	CheckProcessRunning CheckType = "process_running"
	CheckPortOpen       CheckType = "port_open"
	CheckCommandOutput  CheckType = "command_output"
)

// KnownCheckTypes lists every supported check type.
var KnownCheckTypes = []CheckType{
	CheckFileExists,
	CheckFileContent,
	CheckRegistryKey,
	CheckConfigSetting,
	CheckProcessRunning,
	CheckPortOpen,
	CheckCommandOutput,
}

// Endpoint is a monitored host, uniquely identified by hostname.
type Endpoint struct {
	ID           uuid.UUID      `json:"id"`
	Hostname     string         `json:"hostname"`
	OS           string         `json:"os"`
	OSVersion    string         `json:"os_version"`
	AgentVersion string         `json:"agent_version"`
	IPAddresses  []string       `json:"ip_addresses"`
	LastSeen     *time.Time     `json:"last_seen,omitempty"`
	Status       EndpointStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// CheckDefinition is an operator-authored probe specification.
type CheckDefinition struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	CheckType   CheckType       `json:"check_type"`
	Parameters  json.RawMessage `json:"parameters"`
	Severity    Severity        `json:"severity"`
	Enabled     bool            `json:"enabled"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CheckResult is one execution outcome, append-only on the server.
type CheckResult struct {
	ID          uuid.UUID   `json:"id"`
	EndpointID  uuid.UUID   `json:"endpoint_id"`
	CheckID     uuid.UUID   `json:"check_id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message,omitempty"`
	CollectedAt time.Time   `json:"collected_at"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ProcessInfo describes one running process in a snapshot.
type ProcessInfo struct {
	PID         int32   `json:"pid"`
	Name        string  `json:"name"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
}

// SoftwareInfo describes one installed software package in a snapshot.
// Carried opaquely; the server never interprets it.
type SoftwareInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// SystemSnapshot is a stored point-in-time resource and inventory payload.
type SystemSnapshot struct {
	EndpointID        uuid.UUID      `json:"endpoint_id"`
	CPUPercent        float64        `json:"cpu_percent"`
	MemoryTotal       uint64         `json:"memory_total"`
	MemoryUsed        uint64         `json:"memory_used"`
	DiskTotal         uint64         `json:"disk_total"`
	DiskUsed          uint64         `json:"disk_used"`
	Processes         []ProcessInfo  `json:"processes"`
	OpenPorts         []uint32       `json:"open_ports"`
	InstalledSoftware []SoftwareInfo `json:"installed_software"`
	CollectedAt       time.Time      `json:"collected_at"`
}

// EndpointCounts aggregates endpoint liveness for reporting.
type EndpointCounts struct {
	Total   int64 `json:"total"`
	Online  int64 `json:"online"`
	Offline int64 `json:"offline"`
	Unknown int64 `json:"unknown"`
}
