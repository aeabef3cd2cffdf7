//go:build !linux

package trigger

import "github.com/mco-piccolo/timpani/internal/errs"

// resolveProcessByName has no portable implementation: process-by-name
// lookup in §4.6 is specified against /proc, a Linux-only interface.
func resolveProcessByName(name string) (int, error) {
	return 0, errs.New(errs.Unavailable, "process resolution by name is not supported on this platform")
}
