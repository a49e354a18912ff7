//go:build windows

package systeminfo

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/winservices"
	"golang.org/x/sys/windows/registry"
	"golang.org/x/sys/windows/svc"
)

var uninstallPaths = []string{
	`Software\Microsoft\Windows\CurrentVersion\Uninstall`,
	`Software\WOW6432Node\Microsoft\Windows\CurrentVersion\Uninstall`,
}

func gatherInstalledApps(ctx context.Context) ([]string, error) {
	var apps []string
	for _, path := range uninstallPaths {
		if ctx.Err() != nil {
			return apps, ctx.Err()
		}
		apps = append(apps, readDisplayNames(path)...)
	}
	return apps, nil
}

func readDisplayNames(path string) []string {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.READ)
	if err != nil {
		return nil
	}
	defer k.Close()

	subkeys, err := k.ReadSubKeyNames(0)
	if err != nil {
		return nil
	}
	var names []string
	for _, subkey := range subkeys {
		appKey, err := registry.OpenKey(k, subkey, registry.READ)
		if err != nil {
			continue
		}
		name, _, err := appKey.GetStringValue("DisplayName")
		if err == nil && name != "" {
			names = append(names, name)
		}
		appKey.Close()
	}
	return names
}

func gatherRunningServices(ctx context.Context) ([]ServiceInfo, error) {
	services, err := winservices.ListServices()
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %v", err)
	}
	out := make([]ServiceInfo, 0, len(services))
	for i := range services {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		svcInfo := &services[i]
		if err := svcInfo.GetServiceDetail(); err != nil {
			continue
		}
		out = append(out, ServiceInfo{Name: svcInfo.Name, Status: serviceStateToString(svcInfo.Status.State)})
	}
	return out, nil
}

func serviceStateToString(state svc.State) string {
	switch state {
	case svc.Stopped:
		return "Stopped"
	case svc.StartPending:
		return "StartPending"
	case svc.StopPending:
		return "StopPending"
	case svc.Running:
		return "Running"
	case svc.ContinuePending:
		return "ContinuePending"
	case svc.PausePending:
		return "PausePending"
	case svc.Paused:
		return "Paused"
	default:
		return fmt.Sprintf("Unknown(%d)", state)
	}
}
