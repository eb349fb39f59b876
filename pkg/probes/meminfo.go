package probes

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"strconv"

	"github.com/gravito-framework/quasar-sampler/pkg/types"
)

const (
	defaultMeminfoPath = "/proc/meminfo"

	// meminfoBufSize bounds a single read of the meminfo file. A read that
	// fills it completely is rejected instead of parsed truncated.
	meminfoBufSize = 2 * 1024
)

// procfsProbe reads /proc/meminfo. The read buffer is reused across calls.
type procfsProbe struct {
	path string
	buf  []byte
}

func newProcfsProbe(path string) *procfsProbe {
	return &procfsProbe{
		path: path,
		buf:  make([]byte, meminfoBufSize),
	}
}

// Sample reads and parses the meminfo file.
func (p *procfsProbe) Sample() (types.MemorySwapSample, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return types.MemorySwapSample{}, sourceUnavailable(p.path, err)
	}
	defer f.Close()

	n, err := io.ReadFull(f, p.buf)
	switch {
	case err == nil:
		return types.MemorySwapSample{}, bufferTooSmall(p.path, len(p.buf))
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
	default:
		return types.MemorySwapSample{}, sourceUnavailable(p.path, err)
	}

	return ParseMeminfo(p.buf[:n]), nil
}

// meminfo holds the raw KiB figures of the six labels the probe reads.
type meminfo struct {
	memTotal  uint64
	memFree   uint64
	buffers   uint64
	cached    uint64
	swapTotal uint64
	swapFree  uint64
}

// ParseMeminfo computes a sample from the text of /proc/meminfo.
//
// A label that is missing (or whose value does not parse) counts as zero, so
// a meminfo without SwapTotal yields a sample with no swap rather than an
// error. Buffers and Cached count as free memory.
func ParseMeminfo(buf []byte) types.MemorySwapSample {
	m := scanMeminfo(buf)

	free := m.memFree + m.buffers + m.cached
	memUsed := uint64(0)
	if m.memTotal > free {
		memUsed = m.memTotal - free
	}

	swapUsed := uint64(0)
	if m.swapTotal > m.swapFree {
		swapUsed = m.swapTotal - m.swapFree
	}

	return types.NewMemorySwapSample(m.memTotal, memUsed, m.swapTotal, swapUsed)
}

func scanMeminfo(buf []byte) meminfo {
	var m meminfo
	fields := map[string]*uint64{
		"MemTotal":  &m.memTotal,
		"MemFree":   &m.memFree,
		"Buffers":   &m.buffers,
		"Cached":    &m.cached,
		"SwapTotal": &m.swapTotal,
		"SwapFree":  &m.swapFree,
	}

	scanner := bufio.NewScanner(bytes.NewReader(buf))
	for scanner.Scan() {
		key, rest, ok := bytes.Cut(scanner.Bytes(), []byte(":"))
		if !ok {
			continue
		}
		dst, wanted := fields[string(bytes.TrimSpace(key))]
		if !wanted {
			continue
		}
		// "  16318508 kB"
		value := bytes.Fields(rest)
		if len(value) == 0 {
			continue
		}
		if v, err := strconv.ParseUint(string(value[0]), 10, 64); err == nil {
			*dst = v
		}
	}

	return m
}
