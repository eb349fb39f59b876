//go:build netbsd && !netbsd_uvmexp

package probes

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// netbsdSwapctl enumerates swap devices with swapctl(2). Builds for kernels
// without SWAP_STATS use the netbsd_uvmexp tag instead.
func netbsdSwapctl() swapctlFunc {
	return callSwapctl
}

func callSwapctl(cmd int, buf []swapent) (int, error) {
	var arg unsafe.Pointer
	if len(buf) > 0 {
		arg = unsafe.Pointer(&buf[0])
	}
	n, _, errno := unix.Syscall(unix.SYS_SWAPCTL, uintptr(cmd), uintptr(arg), uintptr(len(buf)))
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}
