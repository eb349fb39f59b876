package probes

import (
	"sync"

	"github.com/gravito-framework/quasar-sampler/pkg/types"
	"go.uber.org/zap"
)

// Sysctl names read by the page-counter variant (FreeBSD).
const (
	sysctlPageCount     = "vm.stats.vm.v_page_count"
	sysctlFreeCount     = "vm.stats.vm.v_free_count"
	sysctlInactiveCount = "vm.stats.vm.v_inactive_count"
	sysctlNSwapDev      = "vm.nswapdev"
	sysctlSwapInfo      = "vm.swap_info"
)

// vmStatsProbe derives memory usage from page counters. Used memory is
// everything neither free nor inactive. Swap comes from a swapAccounting
// handle owned by the probe.
type vmStatsProbe struct {
	sysctl   sysctlReader
	pageSize uint64
	swap     *swapAccounting
}

func newVMStatsProbe(s sysctlReader, pageSize uint64, logger *zap.Logger) *vmStatsProbe {
	return &vmStatsProbe{
		sysctl:   s,
		pageSize: pageSize,
		swap:     newXswdevAccounting(s, pageSize, logger),
	}
}

// Sample reads the three page counters. Any failed read fails the sample.
func (p *vmStatsProbe) Sample() (types.MemorySwapSample, error) {
	names := [...]string{sysctlPageCount, sysctlFreeCount, sysctlInactiveCount}
	var pages [len(names)]uint64
	for i, name := range names {
		v, err := p.sysctl.Uint32(name)
		if err != nil {
			return types.MemorySwapSample{}, counterReadFailed(name, err)
		}
		pages[i] = uint64(v)
	}
	total, free, inactive := pages[0], pages[1], pages[2]

	memUsed := uint64(0)
	if total > free+inactive {
		memUsed = (total - free - inactive) * p.pageSize >> 10
	}

	swapTotal, swapUsed := p.swap.usage()
	return types.NewMemorySwapSample(total*p.pageSize>>10, memUsed, swapTotal, swapUsed), nil
}

// swapAccounting is a process-lifetime handle on the kernel's swap
// statistics. It is opened once, on first use. An open failure sticks: every
// later query reports no swap without touching the kernel again.
type swapAccounting struct {
	once     sync.Once
	openErr  error
	open     func() error
	query    func() (totalPages, usedPages uint64, err error)
	pageSize uint64
	logger   *zap.Logger
}

func newXswdevAccounting(s sysctlReader, pageSize uint64, logger *zap.Logger) *swapAccounting {
	return &swapAccounting{
		open: func() error {
			_, err := s.Uint32(sysctlNSwapDev)
			return err
		},
		query: func() (uint64, uint64, error) {
			return sumXswdev(s)
		},
		pageSize: pageSize,
		logger:   logger,
	}
}

// usage returns swap size and usage in KiB. A failed query or a system
// without swap devices both read as zero.
func (a *swapAccounting) usage() (totalKiB, usedKiB uint64) {
	a.once.Do(func() {
		if a.openErr = a.open(); a.openErr != nil {
			a.logger.Warn("Cannot open swap accounting, swap will read as zero", zap.Error(a.openErr))
		}
	})
	if a.openErr != nil {
		return 0, 0
	}

	total, used, err := a.query()
	if err != nil || total == 0 {
		return 0, 0
	}
	return total * a.pageSize / 1024, used * a.pageSize / 1024
}

// sumXswdev totals the page counts of every configured swap device.
func sumXswdev(s sysctlReader) (total, used uint64, err error) {
	n, err := s.Uint32(sysctlNSwapDev)
	if err != nil {
		return 0, 0, err
	}

	for i := 0; i < int(n); i++ {
		b, err := s.Raw(sysctlSwapInfo, i)
		if err != nil {
			return 0, 0, err
		}
		nblks, inuse, err := decodeXswdev(b)
		if err != nil {
			return 0, 0, err
		}
		total += nblks
		used += inuse
	}
	return total, used, nil
}
