// Package device identifies the machine a client runs on.
package device

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	appDir        = "bridge_iq"
	machineIDFile = "machine_id"
)

var (
	// configDir is replaced in tests.
	configDir = os.UserConfigDir
	// osRelease is replaced in tests.
	osRelease = kernelRelease

	machineOnce sync.Once
	machineID   string
	machineErr  error
)

// MachineID returns the persistent identifier of this machine, creating it
// under the user config directory on first use.
func MachineID() (string, error) {
	machineOnce.Do(func() {
		machineID, machineErr = loadOrCreateMachineID()
	})
	return machineID, machineErr
}

func loadOrCreateMachineID() (string, error) {
	base, err := configDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	dir := filepath.Join(base, appDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	path := filepath.Join(dir, machineIDFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("read machine id: %w", err)
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id), 0o644); err != nil {
		return "", fmt.Errorf("write machine id: %w", err)
	}
	return id, nil
}

// UserAgent builds the diagnostic User-Agent sent with every request:
//
//	BridgeIQ-Client/0.1.0 (linux/6.1.0; Go/go1.24.1; Machine/1a2b3c4d)
//
// When no machine id can be stored the machine segment reads "unknown".
func UserAgent(version string) string {
	machine := "unknown"
	if id, err := MachineID(); err == nil && id != "" {
		machine = id
		if len(machine) > 8 {
			machine = machine[:8]
		}
	}
	return fmt.Sprintf("BridgeIQ-Client/%s (%s/%s; Go/%s; Machine/%s)",
		version, runtime.GOOS, osRelease(), runtime.Version(), machine)
}

func kernelRelease() string {
	data, err := os.ReadFile("/proc/sys/kernel/osrelease")
	if err != nil {
		return runtime.GOARCH
	}
	if rel := strings.TrimSpace(string(data)); rel != "" {
		return rel
	}
	return runtime.GOARCH
}
