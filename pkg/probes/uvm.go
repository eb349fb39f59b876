package probes

import (
	"errors"
	"fmt"

	"github.com/gravito-framework/quasar-sampler/pkg/types"
)

// Sysctl names read by the uvm variants. OpenBSD resolves names from a fixed
// table where hw.physmem already is the 64-bit counter and only vm.uvmexp is
// known; NetBSD resolves names through the kernel.
const (
	sysctlPhysmem   = "hw.physmem"
	sysctlPhysmem64 = "hw.physmem64"
	sysctlPageSize  = "hw.pagesize"
	sysctlUvmexp    = "vm.uvmexp"
	sysctlUvmexp2   = "vm.uvmexp2"
	sysctlVMMeter   = "vm.vmmeter"
)

// swapctlFunc calls swapctl(2). For swapNSwap buf is nil and the result is the
// device count; for swapStats the result is the number of entries filled.
type swapctlFunc func(cmd int, buf []swapent) (int, error)

// uvmProbe reads total memory from the physmem sysctl, resident pages from
// vm.vmmeter and swap from either swapctl(2) or the uvmexp counters.
//
// A failed lookup does not fail the sample: the fields it feeds are reported
// as types.Unknown. The sample only fails when nothing could be read.
type uvmProbe struct {
	sysctl uvmReader

	physmem string
	uvmexp  string

	// swapctl enumerates swap devices. When nil, swap comes from uvmexp.
	swapctl swapctlFunc

	// pageSizeFromUvmexp takes the page size from uvmexp instead of hw.pagesize.
	pageSizeFromUvmexp bool
}

func newOpenBSDUvmProbe(s uvmReader) *uvmProbe {
	return &uvmProbe{
		sysctl:             s,
		physmem:            sysctlPhysmem,
		uvmexp:             sysctlUvmexp,
		pageSizeFromUvmexp: true,
	}
}

// newNetBSDUvmProbe reads swap through swapctl, or from vm.uvmexp2 when
// swapctl is nil.
func newNetBSDUvmProbe(s uvmReader, swapctl swapctlFunc) *uvmProbe {
	return &uvmProbe{
		sysctl:  s,
		physmem: sysctlPhysmem64,
		uvmexp:  sysctlUvmexp2,
		swapctl: swapctl,
	}
}

func (p *uvmProbe) Sample() (types.MemorySwapSample, error) {
	var errs []error
	fail := func(source string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", source, err))
	}

	memTotal := types.Unknown
	if v, err := p.sysctl.Uint64(p.physmem); err == nil {
		memTotal = v >> 10
	} else {
		fail(p.physmem, err)
	}

	var uvm *uvmStats
	if p.swapctl == nil || p.pageSizeFromUvmexp {
		if u, err := p.sysctl.Uvmexp(p.uvmexp); err == nil {
			uvm = &u
		} else {
			fail(p.uvmexp, err)
		}
	}

	var pageSize uint64
	switch {
	case p.pageSizeFromUvmexp:
		if uvm != nil {
			pageSize = uvm.PageSize
		}
	default:
		if v, err := p.sysctl.Uint32(sysctlPageSize); err == nil {
			pageSize = uint64(v)
		} else {
			fail(sysctlPageSize, err)
		}
	}

	swapTotal, swapUsed := types.Unknown, types.Unknown
	switch {
	case p.swapctl != nil:
		if t, u, err := swapctlTotals(p.swapctl); err == nil {
			swapTotal, swapUsed = t, u
		} else {
			fail("swapctl", err)
		}
	case uvm != nil:
		swapTotal = uvm.PageSize * uvm.SwapPages >> 10
		swapUsed = uvm.PageSize * uvm.SwapPagesInUse >> 10
	}

	memUsed := types.Unknown
	if t, err := p.readVmtotal(); err != nil {
		fail(sysctlVMMeter, err)
	} else if pageSize != 0 {
		memUsed = nonNegative(t.Rm) * pageSize >> 10
	}

	if memTotal == types.Unknown && memUsed == types.Unknown && swapTotal == types.Unknown {
		return types.MemorySwapSample{}, sourceUnavailable("sysctl", errors.Join(errs...))
	}
	return types.NewMemorySwapSample(memTotal, memUsed, swapTotal, swapUsed), nil
}

func (p *uvmProbe) readVmtotal() (vmtotal, error) {
	b, err := p.sysctl.Raw(sysctlVMMeter)
	if err != nil {
		return vmtotal{}, err
	}
	return decodeVmtotal(b)
}

// swapctlTotals sums block counts over all swap devices and returns KiB.
// No configured devices is zero swap, not an error.
func swapctlTotals(swapctl swapctlFunc) (totalKiB, usedKiB uint64, err error) {
	n, err := swapctl(swapNSwap, nil)
	if err != nil {
		return 0, 0, err
	}
	if n <= 0 {
		return 0, 0, nil
	}

	devices := make([]swapent, n)
	got, err := swapctl(swapStats, devices)
	if err != nil {
		return 0, 0, err
	}
	if got != n {
		return 0, 0, fmt.Errorf("swap device count changed from %d to %d", n, got)
	}

	var blocks, inuse uint64
	for _, d := range devices {
		blocks += nonNegative(d.Nblks)
		inuse += nonNegative(d.Inuse)
	}
	return blocks * swapBlockSize / 1024, inuse * swapBlockSize / 1024, nil
}
