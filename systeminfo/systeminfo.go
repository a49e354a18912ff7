// Package systeminfo collects platform metadata reports: one report per
// kind, sent as topic metadata_<kind>_report.
package systeminfo

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"iocscan/logger"
	"iocscan/transport"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

const (
	KindPlatform = "platform"
	KindCPU      = "cpu"
	KindMemory   = "memory"
	KindDisk     = "disk"
	KindNetwork  = "network"
	KindBootTime = "boot_time"
	KindUser     = "user"
	KindProcess  = "process"
	KindSoftware = "software"
	KindService  = "service"
)

// Kinds lists every collectable kind in collection order.
func Kinds() []string {
	return []string{
		KindPlatform, KindCPU, KindMemory, KindDisk, KindNetwork,
		KindBootTime, KindUser, KindProcess, KindSoftware, KindService,
	}
}

// Topic is the transport topic of a kind.
func Topic(kind string) string {
	return fmt.Sprintf("metadata_%s_report", kind)
}

// Options selects what Collect gathers. Full adds the expensive details:
// per-process attributes, swap, per-interface counters, per-CPU load.
type Options struct {
	Full  bool
	Kinds []string
}

// Report is one collected kind.
type Report struct {
	Kind string
	Data any
}

type collector func(ctx context.Context, full bool) (any, error)

var collectors = map[string]collector{
	KindPlatform: collectPlatform,
	KindCPU:      collectCPU,
	KindMemory:   collectMemory,
	KindDisk:     collectDisk,
	KindNetwork:  collectNetwork,
	KindBootTime: collectBootTime,
	KindUser:     collectUsers,
	KindProcess:  collectProcesses,
	KindSoftware: func(ctx context.Context, _ bool) (any, error) { return gatherInstalledApps(ctx) },
	KindService:  func(ctx context.Context, _ bool) (any, error) { return gatherRunningServices(ctx) },
}

// Collect gathers the selected kinds, all of them when none are given.
// Kinds that fail are logged and left out.
func Collect(ctx context.Context, opts Options) []Report {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = Kinds()
	}
	var reports []Report
	for _, kind := range kinds {
		kind = strings.ToLower(strings.TrimSpace(kind))
		fn, ok := collectors[kind]
		if !ok {
			logger.Warnf("Unknown metadata kind %q", kind)
			continue
		}
		data, err := fn(ctx, opts.Full)
		if err != nil {
			logger.Warnf("Failed to gather %s metadata: %v", kind, err)
			continue
		}
		reports = append(reports, Report{Kind: kind, Data: data})
	}
	return reports
}

// Publish sends every report on channel, flushing after each one.
func Publish(ctx context.Context, client transport.Client, channel string, reports []Report) error {
	var failed int
	for _, r := range reports {
		if err := client.Send(ctx, channel, Topic(r.Kind), r.Data); err != nil {
			logger.Errorf("Could not send %s metadata: %v", r.Kind, err)
			failed++
		}
		if err := client.Flush(ctx, channel); err != nil {
			logger.Errorf("Could not flush %s: %v", channel, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d metadata reports not delivered", failed, len(reports))
	}
	return nil
}

type PlatformInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Arch            string `json:"arch"`
	Platform        string `json:"platform"`
	PlatformFamily  string `json:"platform_family,omitempty"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	KernelArch      string `json:"kernel_arch,omitempty"`
	Virtualization  string `json:"virtualization,omitempty"`
	HostID          string `json:"host_id,omitempty"`
	Uptime          uint64 `json:"uptime"`
}

func collectPlatform(ctx context.Context, _ bool) (any, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := PlatformInfo{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Arch:            runtime.GOARCH,
		Platform:        info.Platform,
		PlatformFamily:  info.PlatformFamily,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		KernelArch:      info.KernelArch,
		HostID:          info.HostID,
		Uptime:          info.Uptime,
	}
	if info.VirtualizationRole == "guest" {
		out.Virtualization = info.VirtualizationSystem
	}
	return out, nil
}

type CPUInfo struct {
	ModelName    string    `json:"model_name"`
	Vendor       string    `json:"vendor,omitempty"`
	Mhz          float64   `json:"mhz,omitempty"`
	Physical     int       `json:"physical_cores"`
	Logical      int       `json:"logical_cores"`
	PerCPUGauges []float64 `json:"percent,omitempty"`
}

func collectCPU(ctx context.Context, full bool) (any, error) {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := CPUInfo{}
	if len(infos) > 0 {
		out.ModelName = infos[0].ModelName
		out.Vendor = infos[0].VendorID
		out.Mhz = infos[0].Mhz
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		out.Physical = n
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		out.Logical = n
	}
	if full {
		if pct, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, true); err == nil {
			out.PerCPUGauges = pct
		}
	}
	return out, nil
}

type MemoryInfo struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
	SwapTotal   uint64  `json:"swap_total,omitempty"`
	SwapUsed    uint64  `json:"swap_used,omitempty"`
}

func collectMemory(ctx context.Context, full bool) (any, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := MemoryInfo{
		Total:       vm.Total,
		Available:   vm.Available,
		Used:        vm.Used,
		UsedPercent: vm.UsedPercent,
	}
	if full {
		if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
			out.SwapTotal = swap.Total
			out.SwapUsed = swap.Used
		}
	}
	return out, nil
}

type DiskInfo struct {
	Device      string  `json:"device"`
	Mountpoint  string  `json:"mountpoint"`
	Fstype      string  `json:"fstype"`
	Total       uint64  `json:"total,omitempty"`
	Free        uint64  `json:"free,omitempty"`
	UsedPercent float64 `json:"used_percent,omitempty"`
}

func collectDisk(ctx context.Context, _ bool) (any, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil && len(parts) == 0 {
		return nil, err
	}
	out := make([]DiskInfo, 0, len(parts))
	for _, p := range parts {
		info := DiskInfo{Device: p.Device, Mountpoint: p.Mountpoint, Fstype: p.Fstype}
		if usage, err := disk.UsageWithContext(ctx, p.Mountpoint); err == nil {
			info.Total = usage.Total
			info.Free = usage.Free
			info.UsedPercent = usage.UsedPercent
		}
		out = append(out, info)
	}
	return out, nil
}

type InterfaceInfo struct {
	Name      string   `json:"name"`
	MAC       string   `json:"mac"`
	Addresses []string `json:"addresses"`
	Flags     []string `json:"flags,omitempty"`
	BytesSent uint64   `json:"bytes_sent,omitempty"`
	BytesRecv uint64   `json:"bytes_recv,omitempty"`
}

func collectNetwork(ctx context.Context, full bool) (any, error) {
	ifaces, err := gnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	var counters map[string]gnet.IOCountersStat
	if full {
		if stats, err := gnet.IOCountersWithContext(ctx, true); err == nil {
			counters = make(map[string]gnet.IOCountersStat, len(stats))
			for _, s := range stats {
				counters[s.Name] = s
			}
		}
	}
	out := make([]InterfaceInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		info := InterfaceInfo{Name: iface.Name, MAC: iface.HardwareAddr, Flags: iface.Flags}
		for _, addr := range iface.Addrs {
			info.Addresses = append(info.Addresses, addr.Addr)
		}
		if c, ok := counters[iface.Name]; ok {
			info.BytesSent = c.BytesSent
			info.BytesRecv = c.BytesRecv
		}
		out = append(out, info)
	}
	return out, nil
}

type BootTimeInfo struct {
	Unix uint64 `json:"unix"`
	Time string `json:"time"`
}

func collectBootTime(ctx context.Context, _ bool) (any, error) {
	boot, err := host.BootTimeWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return BootTimeInfo{
		Unix: boot,
		Time: time.Unix(int64(boot), 0).UTC().Format(time.RFC3339),
	}, nil
}

type UserInfo struct {
	User     string `json:"user"`
	Terminal string `json:"terminal,omitempty"`
	Host     string `json:"host,omitempty"`
	Started  string `json:"started,omitempty"`
}

func collectUsers(ctx context.Context, _ bool) (any, error) {
	users, err := host.UsersWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UserInfo, 0, len(users))
	for _, u := range users {
		info := UserInfo{User: u.User, Terminal: u.Terminal, Host: u.Host}
		if u.Started > 0 {
			info.Started = time.Unix(int64(u.Started), 0).UTC().Format(time.RFC3339)
		}
		out = append(out, info)
	}
	return out, nil
}

type ProcessInfo struct {
	PID           int32   `json:"pid"`
	PPID          int32   `json:"ppid,omitempty"`
	Name          string  `json:"name"`
	MemoryPercent float32 `json:"memory_percent,omitempty"`
	Cmdline       string  `json:"cmdline,omitempty"`
	Username      string  `json:"username,omitempty"`
	Exe           string  `json:"exe,omitempty"`
	StartTime     string  `json:"start_time,omitempty"`
}

func collectProcesses(ctx context.Context, full bool) (any, error) {
	processes, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get running processes: %v", err)
	}

	out := make([]ProcessInfo, 0, len(processes))
	for _, p := range processes {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		procInfo := ProcessInfo{
			PID:  p.Pid,
			Name: name,
		}

		if full {
			memPercent, err := p.MemoryPercentWithContext(ctx)
			if err == nil {
				procInfo.MemoryPercent = memPercent
			}

			cmdline, err := p.CmdlineWithContext(ctx)
			if err == nil {
				procInfo.Cmdline = cmdline
			}

			username, err := p.UsernameWithContext(ctx)
			if err == nil {
				procInfo.Username = username
			}

			exe, err := p.ExeWithContext(ctx)
			if err == nil {
				procInfo.Exe = exe
			}

			ppid, err := p.PpidWithContext(ctx)
			if err == nil {
				procInfo.PPID = ppid
			}
			startMillis, err := p.CreateTimeWithContext(ctx)
			if err == nil && startMillis > 0 {
				procInfo.StartTime = time.UnixMilli(startMillis).UTC().Format(time.RFC3339)
			}
		}

		out = append(out, procInfo)
	}
	return out, nil
}

type ServiceInfo struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}
