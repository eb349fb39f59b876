package probes

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// sysctlReader is the sysctl access the BSD variants need. The unix-backed
// implementation lives in sysctl_bsd.go; tests substitute a map.
type sysctlReader interface {
	Uint32(name string) (uint32, error)
	Uint64(name string) (uint64, error)
	Raw(name string, args ...int) ([]byte, error)
}

// xswdev versions from FreeBSD vm/vm_param.h
const (
	xswdevVersion11 = 1
	xswdevVersion   = 2
)

// xswdev mirrors struct xswdev (XSWDEV_VERSION 2).
type xswdev struct {
	Version uint32
	Dev     uint64
	Flags   int32
	NBlks   int32
	Used    int32
}

// xswdev11 mirrors the FreeBSD 11 layout with a 32-bit dev_t.
type xswdev11 struct {
	Version uint32
	Dev     uint32
	Flags   int32
	NBlks   int32
	Used    int32
}

// vmtotal mirrors struct vmtotal from sys/vmmeter.h (NetBSD, OpenBSD).
type vmtotal struct {
	Rq     int16
	Dw     int16
	Pw     int16
	Sl     int16
	Sw     int16
	Vm     int32
	Avm    int32
	Rm     int32
	Arm    int32
	Vmshr  int32
	Avmshr int32
	Rmshr  int32
	Armshr int32
	Free   int32
}

// uvmStats holds the vm.uvmexp counters the uvm variants need. The unix-backed
// reader fills it from unix.SysctlUvmexp, whose field widths differ per OS.
type uvmStats struct {
	PageSize       uint64
	SwapPages      uint64
	SwapPagesInUse uint64
}

// uvmReader adds the decoded uvmexp lookup that NetBSD and OpenBSD provide.
type uvmReader interface {
	sysctlReader
	Uvmexp(name string) (uvmStats, error)
}

// swapctl(2) commands from NetBSD sys/swap.h
const (
	swapNSwap = 3
	swapStats = 10
)

// swapBlockSize is DEV_BSIZE, the unit of swapent block counts.
const swapBlockSize = 512

// swapent mirrors NetBSD struct swapent.
type swapent struct {
	Dev      uint64
	Flags    int32
	Nblks    int32
	Inuse    int32
	Priority int32
	Path     [1025]byte // PATH_MAX + 1
}

// decodeStruct copies the native-layout bytes in b into *dst.
func decodeStruct[T any](b []byte, dst *T) error {
	size := int(unsafe.Sizeof(*dst))
	if len(b) < size {
		return fmt.Errorf("short buffer: got %d bytes, want %d", len(b), size)
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(dst)), size), b)
	return nil
}

// decodeXswdev returns the size and usage, in pages, of one swap device.
func decodeXswdev(b []byte) (nblks, used uint64, err error) {
	if len(b) < 4 {
		return 0, 0, fmt.Errorf("short xswdev: %d bytes", len(b))
	}

	switch v := binary.NativeEndian.Uint32(b); v {
	case xswdevVersion:
		var x xswdev
		if err := decodeStruct(b, &x); err != nil {
			return 0, 0, err
		}
		return nonNegative(x.NBlks), nonNegative(x.Used), nil
	case xswdevVersion11:
		var x xswdev11
		if err := decodeStruct(b, &x); err != nil {
			return 0, 0, err
		}
		return nonNegative(x.NBlks), nonNegative(x.Used), nil
	default:
		return 0, 0, fmt.Errorf("unsupported xswdev version %d", v)
	}
}

func decodeVmtotal(b []byte) (vmtotal, error) {
	var t vmtotal
	err := decodeStruct(b, &t)
	return t, err
}

func nonNegative[T int32 | int64](v T) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
