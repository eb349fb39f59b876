//go:build freebsd || netbsd || openbsd

package probes

import "golang.org/x/sys/unix"

// unixSysctl resolves sysctl names through golang.org/x/sys/unix.
type unixSysctl struct{}

func (unixSysctl) Uint32(name string) (uint32, error) {
	return unix.SysctlUint32(name)
}

func (unixSysctl) Uint64(name string) (uint64, error) {
	return unix.SysctlUint64(name)
}

func (unixSysctl) Raw(name string, args ...int) ([]byte, error) {
	return unix.SysctlRaw(name, args...)
}
