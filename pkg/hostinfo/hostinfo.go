package hostinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/docker/go-units"
	"github.com/ethpandaops/checkoor/pkg/fsutil"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"
)

// FileName is the host snapshot written into a run directory.
const FileName = "system.json"

// ErrInsufficientSpace is returned when a volume cannot hold the load target.
var ErrInsufficientSpace = errors.New("insufficient free space")

// SystemInfo describes the host a run was executed on.
type SystemInfo struct {
	Hostname           string  `json:"hostname"`
	OS                 string  `json:"os"`
	Platform           string  `json:"platform"`
	PlatformVersion    string  `json:"platform_version"`
	KernelVersion      string  `json:"kernel_version"`
	Arch               string  `json:"arch"`
	Virtualization     string  `json:"virtualization,omitempty"`
	VirtualizationRole string  `json:"virtualization_role,omitempty"`
	CPUVendor          string  `json:"cpu_vendor"`
	CPUModel           string  `json:"cpu_model"`
	CPUCores           int     `json:"cpu_cores"`
	CPUMhz             float64 `json:"cpu_mhz"`
	MemoryTotalGB      float64 `json:"memory_total_gb"`
}

// Collect gathers the host snapshot. Individual lookups that fail are
// logged and leave their fields empty.
func Collect(ctx context.Context, log logrus.FieldLogger) *SystemInfo {
	log = log.WithField("component", "hostinfo")

	info := &SystemInfo{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	if h, err := host.InfoWithContext(ctx); err != nil {
		log.WithError(err).Warn("Failed to read host info")
	} else {
		info.Hostname = h.Hostname
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		info.KernelVersion = h.KernelVersion
		info.Virtualization = h.VirtualizationSystem
		info.VirtualizationRole = h.VirtualizationRole
	}

	if cpus, err := cpu.InfoWithContext(ctx); err != nil {
		log.WithError(err).Warn("Failed to read cpu info")
	} else if len(cpus) > 0 {
		info.CPUVendor = cpus[0].VendorID
		info.CPUModel = strings.TrimSpace(cpus[0].ModelName)
		info.CPUMhz = cpus[0].Mhz
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err != nil {
		log.WithError(err).Warn("Failed to count cpus")
	} else {
		info.CPUCores = cores
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		log.WithError(err).Warn("Failed to read memory info")
	} else {
		info.MemoryTotalGB = float64(vm.Total) / units.GB
	}

	return info
}

// Write stores info as system.json in dir.
func Write(dir string, info *SystemInfo, owner *fsutil.OwnerConfig) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling system info: %w", err)
	}

	if err := fsutil.WriteFile(filepath.Join(dir, FileName), data, 0o644, owner); err != nil {
		return fmt.Errorf("writing system info: %w", err)
	}

	return nil
}

// CheckFreeSpace returns ErrInsufficientSpace when path's volume has less
// than need bytes free.
func CheckFreeSpace(ctx context.Context, path string, need int64) error {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return fmt.Errorf("reading disk usage of %s: %w", path, err)
	}

	if need > 0 && usage.Free < uint64(need) {
		return fmt.Errorf("%w on %s: need %s, have %s", ErrInsufficientSpace, path,
			units.HumanSize(float64(need)), units.HumanSize(float64(usage.Free)))
	}

	return nil
}
