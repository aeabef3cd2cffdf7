//go:build linux

package trigger

import (
	"os"
	"strconv"
	"strings"

	"github.com/mco-piccolo/timpani/internal/errs"
)

// resolveProcessByName scans /proc for a live process whose comm matches
// name (§4.6). Linux truncates comm to 15 bytes, matching the task name
// length cap (task.MaxNameLen).
func resolveProcessByName(name string) (int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, errs.Wrap(errs.Io, err, "read /proc")
	}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		comm, err := os.ReadFile("/proc/" + e.Name() + "/comm")
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(comm)) == name {
			return pid, nil
		}
	}
	return 0, errs.New(errs.Unavailable, "no live process named "+name)
}
