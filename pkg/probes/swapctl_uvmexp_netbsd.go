//go:build netbsd && netbsd_uvmexp

package probes

// netbsdSwapctl returns nil so swap figures come from the aggregate
// vm.uvmexp2 counters on kernels without SWAP_STATS.
func netbsdSwapctl() swapctlFunc {
	return nil
}
