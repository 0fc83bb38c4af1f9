// Package platform exposes the small per-OS capability surface consumed by
// the check executor and the system collector. Capabilities missing on the
// current platform report ErrUnsupported instead of failing, so callers can
// map them to a uniform skip.
package platform

import (
	"context"
	"errors"

	gnet "github.com/shirou/gopsutil/net"
	"github.com/shirou/gopsutil/process"

	"github.com/daveram1/EndpointAssessment/internal/models"
)

// ErrUnsupported signals that a capability does not exist on this platform.
var ErrUnsupported = errors.New("capability not supported on this platform")

// Capabilities is the platform capability surface.
type Capabilities interface {
	// ListProcesses returns the currently running processes.
	ListProcesses(ctx context.Context) ([]models.ProcessInfo, error)
	// ListListeningPorts returns local TCP ports with a bound listener.
	ListListeningPorts(ctx context.Context) ([]uint32, error)
	// ReadRegistryValue reads a Windows registry value. The path must start
	// with an HKLM or HKCU hive prefix. An empty valueName checks only that
	// the key exists. Returns ErrUnsupported on non-Windows platforms and
	// ErrNotFound when the key or value does not exist.
	ReadRegistryValue(path, valueName string) (string, error)
}

// ErrNotFound signals that a registry key or value does not exist.
var ErrNotFound = errors.New("registry key or value not found")

// HostCapabilities implements Capabilities for the local host.
type HostCapabilities struct{}

// NewHostCapabilities returns the capability layer for the local host.
func NewHostCapabilities() *HostCapabilities {
	return &HostCapabilities{}
}

// ListProcesses enumerates running processes. Processes that vanish or deny
// access mid-enumeration are quietly dropped from the listing.
func (h *HostCapabilities) ListProcesses(ctx context.Context) ([]models.ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]models.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}

		info := models.ProcessInfo{PID: p.Pid, Name: name}
		if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
			info.CPUPercent = cpu
		}
		if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			info.MemoryBytes = mem.RSS
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ListListeningPorts returns the distinct local TCP ports in LISTEN state.
func (h *HostCapabilities) ListListeningPorts(ctx context.Context) ([]uint32, error) {
	conns, err := gnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}

	seen := make(map[uint32]struct{})
	ports := make([]uint32, 0)
	for _, conn := range conns {
		if conn.Status != "LISTEN" {
			continue
		}
		if _, ok := seen[conn.Laddr.Port]; ok {
			continue
		}
		seen[conn.Laddr.Port] = struct{}{}
		ports = append(ports, conn.Laddr.Port)
	}
	return ports, nil
}
