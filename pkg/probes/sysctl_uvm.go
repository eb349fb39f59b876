//go:build netbsd || openbsd

package probes

import "golang.org/x/sys/unix"

// Uvmexp reads the uvmexp counters. unix.SysctlUvmexp checks the returned size
// against the struct for this OS.
func (unixSysctl) Uvmexp(name string) (uvmStats, error) {
	u, err := unix.SysctlUvmexp(name)
	if err != nil {
		return uvmStats{}, err
	}
	return uvmStats{
		PageSize:       nonNegative(u.Pagesize),
		SwapPages:      nonNegative(u.Swpages),
		SwapPagesInUse: nonNegative(u.Swpginuse),
	}, nil
}
