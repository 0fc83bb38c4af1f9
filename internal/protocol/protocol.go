// Package protocol defines the wire messages exchanged between agents and
// the server. Messages are JSON over HTTP; every agent request carries the
// shared secret in the SecretHeader header.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/daveram1/EndpointAssessment/internal/models"
)

// SecretHeader carries the pre-distributed shared secret on every agent request.
const SecretHeader = "X-Agent-Secret"

// RegisterRequest announces an agent to the server. Registration is an
// upsert keyed on hostname, so repeating it is safe.
type RegisterRequest struct {
	Hostname     string   `json:"hostname"`
	OS           string   `json:"os"`
	OSVersion    string   `json:"os_version"`
	AgentVersion string   `json:"agent_version"`
	IPAddresses  []string `json:"ip_addresses"`
}

// RegisterResponse returns the stable endpoint identifier.
type RegisterResponse struct {
	EndpointID uuid.UUID `json:"endpoint_id"`
	Message    string    `json:"message,omitempty"`
}

// SystemSnapshotData is the snapshot payload sent inside a heartbeat.
type SystemSnapshotData struct {
	CollectedAt       time.Time             `json:"collected_at"`
	CPUPercent        float64               `json:"cpu_percent"`
	MemoryTotal       uint64                `json:"memory_total"`
	MemoryUsed        uint64                `json:"memory_used"`
	DiskTotal         uint64                `json:"disk_total"`
	DiskUsed          uint64                `json:"disk_used"`
	Processes         []models.ProcessInfo  `json:"processes"`
	OpenPorts         []uint32              `json:"open_ports"`
	InstalledSoftware []models.SoftwareInfo `json:"installed_software"`
}

// Snapshot converts the wire payload into a persistable snapshot.
func (d SystemSnapshotData) Snapshot(endpointID uuid.UUID) models.SystemSnapshot {
	return models.SystemSnapshot{
		EndpointID:        endpointID,
		CPUPercent:        d.CPUPercent,
		MemoryTotal:       d.MemoryTotal,
		MemoryUsed:        d.MemoryUsed,
		DiskTotal:         d.DiskTotal,
		DiskUsed:          d.DiskUsed,
		Processes:         d.Processes,
		OpenPorts:         d.OpenPorts,
		InstalledSoftware: d.InstalledSoftware,
		CollectedAt:       d.CollectedAt,
	}
}

// HeartbeatRequest is the periodic liveness signal from an agent.
type HeartbeatRequest struct {
	EndpointID uuid.UUID          `json:"endpoint_id"`
	Snapshot   SystemSnapshotData `json:"snapshot"`
}

// HeartbeatResponse acknowledges a heartbeat.
type HeartbeatResponse struct {
	Status     string    `json:"status"`
	ServerTime time.Time `json:"server_time"`
}

// AgentCheckDefinition is a check definition as served to agents.
type AgentCheckDefinition struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	CheckType  models.CheckType `json:"check_type"`
	Parameters json.RawMessage `json:"parameters"`
	Severity   models.Severity `json:"severity"`
}

// ChecksResponse lists the checks currently assigned to the caller.
type ChecksResponse struct {
	Checks []AgentCheckDefinition `json:"checks"`
}

// AgentCheckResult is one execution outcome, minus server-stamped fields.
type AgentCheckResult struct {
	CheckID     uuid.UUID          `json:"check_id"`
	Status      models.CheckStatus `json:"status"`
	Message     string             `json:"message,omitempty"`
	CollectedAt time.Time          `json:"collected_at"`
}

// SubmitResultsRequest carries a batch of check results.
type SubmitResultsRequest struct {
	EndpointID uuid.UUID          `json:"endpoint_id"`
	Results    []AgentCheckResult `json:"results"`
}

// SubmitResultsResponse reports how many results were accepted.
type SubmitResultsResponse struct {
	Accepted int    `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

// ErrorResponse is the JSON body returned for rejected requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
