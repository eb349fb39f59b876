// Package render formats one-shot samples for the command line.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gravito-framework/quasar-sampler/pkg/types"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Report is the result of one sampling pass
type Report struct {
	Hostname string                  `json:"hostname" yaml:"hostname"`
	Memory   *types.MemorySwapSample `json:"memory,omitempty" yaml:"memory,omitempty"`
	GPU      *types.GPUSample        `json:"gpu,omitempty" yaml:"gpu,omitempty"`
	Errors   []string                `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Write renders r to w in the given format
func Write(w io.Writer, format string, r Report) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		_, err := io.WriteString(w, Text(r))
		return err
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

// Text renders a report the way it reads in a status bar tooltip
func Text(r Report) string {
	var b strings.Builder
	if r.Hostname != "" {
		fmt.Fprintf(&b, "Host:   %s\n", r.Hostname)
	}
	if m := r.Memory; m != nil {
		fmt.Fprintf(&b, "Memory: %s\n", usage(m.MemUsedKiB, m.MemTotalKiB, m.MemUsedPercent))
		if m.SwapTotalKiB == 0 {
			b.WriteString("Swap:   none\n")
		} else {
			fmt.Fprintf(&b, "Swap:   %s\n", usage(m.SwapUsedKiB, m.SwapTotalKiB, m.SwapUsedPercent))
		}
	}
	if g := r.GPU; g != nil {
		fmt.Fprintf(&b, "GPU:    %d%% load, %d%% memory controller, %s / %s\n",
			g.LoadPercent, g.MemLoadPercent, humanize.IBytes(g.MemUsedMiB<<20), humanize.IBytes(g.MemTotalMiB<<20))
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "error:  %s\n", e)
	}
	return b.String()
}

// KiB renders a KiB figure, or "unknown" for the sentinel
func KiB(v uint64) string {
	if v == types.Unknown {
		return "unknown"
	}
	return humanize.IBytes(v * 1024)
}

func usage(used, total, percent uint64) string {
	if used == types.Unknown || total == types.Unknown {
		return KiB(used) + " / " + KiB(total)
	}
	return fmt.Sprintf("%s / %s (%d%%)", KiB(used), KiB(total), percent)
}
