// Package collector gathers the system snapshot carried by heartbeats and
// the host facts needed for registration.
package collector

import (
	"context"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"

	"github.com/daveram1/EndpointAssessment/internal/models"
	"github.com/daveram1/EndpointAssessment/internal/platform"
	"github.com/daveram1/EndpointAssessment/internal/protocol"
)

// maxProcesses caps the process inventory carried in one snapshot.
const maxProcesses = 100

// Collector produces system snapshots for the heartbeat path.
type Collector struct {
	capabilities platform.Capabilities
	logger       zerolog.Logger
}

// NewCollector creates a Collector backed by the given capability layer.
func NewCollector(capabilities platform.Capabilities, logger zerolog.Logger) *Collector {
	return &Collector{
		capabilities: capabilities,
		logger:       logger,
	}
}

// Hostname returns the host name, or "unknown" if it cannot be determined.
func (c *Collector) Hostname() string {
	info, err := host.Info()
	if err != nil || info.Hostname == "" {
		return "unknown"
	}
	return info.Hostname
}

// OSInfo returns the OS family and version.
func (c *Collector) OSInfo() (osName, osVersion string) {
	info, err := host.Info()
	if err != nil {
		return "unknown", "unknown"
	}
	return info.Platform, info.PlatformVersion
}

// IPAddresses returns the host's non-loopback, non-link-local addresses,
// sorted and deduplicated.
func (c *Collector) IPAddresses() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to enumerate interface addresses")
		return nil
	}

	seen := make(map[string]struct{})
	ips := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() {
			continue
		}
		ip := ipNet.IP.String()
		if strings.HasPrefix(ip, "fe80") {
			continue
		}
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}
		ips = append(ips, ip)
	}

	sort.Strings(ips)
	return ips
}

// Snapshot collects a point-in-time resource and inventory snapshot.
// Individual collection failures degrade to zero values rather than aborting
// the snapshot.
func (c *Collector) Snapshot(ctx context.Context) protocol.SystemSnapshotData {
	snapshot := protocol.SystemSnapshotData{
		CollectedAt:       time.Now().UTC(),
		InstalledSoftware: []models.SoftwareInfo{},
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snapshot.CPUPercent = percents[0]
	} else if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to collect CPU usage")
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snapshot.MemoryTotal = vm.Total
		snapshot.MemoryUsed = vm.Used
	} else {
		c.logger.Warn().Err(err).Msg("Failed to collect memory usage")
	}

	snapshot.DiskTotal, snapshot.DiskUsed = c.diskUsage(ctx)

	if procs, err := c.capabilities.ListProcesses(ctx); err == nil {
		if len(procs) > maxProcesses {
			procs = procs[:maxProcesses]
		}
		snapshot.Processes = procs
	} else {
		c.logger.Warn().Err(err).Msg("Failed to collect process list")
	}

	if ports, err := c.capabilities.ListListeningPorts(ctx); err == nil {
		snapshot.OpenPorts = ports
	} else {
		c.logger.Warn().Err(err).Msg("Failed to collect listening ports")
	}

	return snapshot
}

// diskUsage sums capacity and usage over the host's physical partitions.
func (c *Collector) diskUsage(ctx context.Context) (total, used uint64) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to enumerate disk partitions")
		return 0, 0
	}

	seen := make(map[string]struct{})
	for _, part := range partitions {
		if _, ok := seen[part.Device]; ok {
			continue
		}
		seen[part.Device] = struct{}{}

		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil {
			continue
		}
		total += usage.Total
		used += usage.Used
	}
	return total, used
}
