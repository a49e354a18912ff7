//go:build !windows

package systeminfo

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

var applicationsDir = "/Applications"

func gatherInstalledApps(ctx context.Context) ([]string, error) {
	var apps []string
	switch runtime.GOOS {
	case "linux", "android":
		if out, err := runCommandOutput(ctx, "dpkg-query", "-f", "${Package}\n", "-W"); err == nil {
			return parseLines(out), nil
		}
		if out, err := runCommandOutput(ctx, "rpm", "-qa", "--qf", "%{NAME}\n"); err == nil {
			return parseLines(out), nil
		}
		if out, err := runCommandOutput(ctx, "pm", "list", "packages"); err == nil {
			for _, line := range parseLines(out) {
				apps = append(apps, strings.TrimPrefix(line, "package:"))
			}
		}
	case "darwin":
		if entries, err := os.ReadDir(applicationsDir); err == nil {
			for _, e := range entries {
				if strings.HasSuffix(e.Name(), ".app") {
					apps = append(apps, strings.TrimSuffix(e.Name(), ".app"))
				}
			}
		}
		if out, err := runCommandOutput(ctx, "brew", "list"); err == nil {
			apps = append(apps, parseLines(out)...)
		}
	}
	return apps, nil
}

func gatherRunningServices(ctx context.Context) ([]ServiceInfo, error) {
	switch runtime.GOOS {
	case "linux":
		out, err := runCommandOutput(ctx, "systemctl", "list-units", "--type", "service", "--state", "running", "--no-legend", "--no-pager")
		if err != nil {
			return nil, nil
		}
		return parseSystemctlUnits(out), nil
	case "darwin":
		out, err := runCommandOutput(ctx, "launchctl", "list")
		if err != nil {
			return nil, nil
		}
		return parseLaunchctlList(out), nil
	}
	return nil, nil
}

func parseSystemctlUnits(out []byte) []ServiceInfo {
	var services []ServiceInfo
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 4 {
			services = append(services, ServiceInfo{Name: fields[0], Status: fields[2]})
		}
	}
	return services
}

func parseLaunchctlList(out []byte) []ServiceInfo {
	var services []ServiceInfo
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "PID") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 3 {
			status := "stopped"
			if fields[0] != "-" && fields[0] != "0" {
				status = "running"
			}
			services = append(services, ServiceInfo{Name: fields[2], Status: status})
		}
	}
	return services
}

func safeCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "PATH=/usr/sbin:/usr/bin:/sbin:/bin:/usr/local/bin:/opt/homebrew/bin:/system/bin")
	return cmd
}

func runCommandOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return safeCommand(ctx, name, args...).Output()
}

func parseLines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
