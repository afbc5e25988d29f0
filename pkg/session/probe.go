package session

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// ExecBootTimeSource probes the OS boot time with a subprocess. The
// command is OS-specific; the probe is a single blocking call bounded
// by the caller's context.
type ExecBootTimeSource struct{}

// BootTime runs the platform probe and parses its output.
func (ExecBootTimeSource) BootTime(ctx context.Context) (time.Time, error) {
	name, args := bootTimeCommand()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return time.Time{}, fmt.Errorf("boot time probe failed: %w", err)
	}

	text := strings.TrimSpace(string(out))
	t, err := time.ParseInLocation("2006-01-02 15:04:05", text, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse boot time %q: %w", text, err)
	}
	return t, nil
}

// bootTimeCommand returns the probe command for the current OS. Every
// variant prints the boot time as "2006-01-02 15:04:05".
func bootTimeCommand() (string, []string) {
	switch runtime.GOOS {
	case "windows":
		return "powershell", []string{
			"-NoProfile", "-Command",
			"(Get-CimInstance Win32_OperatingSystem).LastBootUpTime.ToString('yyyy-MM-dd HH:mm:ss')",
		}
	case "darwin":
		return "sh", []string{"-c",
			`date -r "$(sysctl -n kern.boottime | awk -F'[ ,]' '{print $4}')" '+%Y-%m-%d %H:%M:%S'`,
		}
	default:
		return "uptime", []string{"-s"}
	}
}
