package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gravito-framework/quasar-sampler/internal/render"
	"github.com/gravito-framework/quasar-sampler/pkg/agent"
	"github.com/gravito-framework/quasar-sampler/pkg/probes"
	"github.com/spf13/cobra"
)

var errSampleFailed = errors.New("memory/swap sample failed")

func (c *cli) newSampleCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Take one reading and print it",
		Example: `  quasar-sampler sample
  quasar-sampler sample --format json --gpu-backend none`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, _, err := c.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			mem := probes.NewMemorySwapProbe(probes.WithLogger(logger))
			gpu := agent.NewGPUProbe(cfg.GPU)
			if gpu != nil {
				defer gpu.Close()
			}
			return sampleOnce(cmd.OutOrStdout(), format, mem, gpu)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", render.FormatText, "output format: text, json or yaml")
	return cmd
}

// sampleOnce reads every probe once and renders the result. Only a failed
// memory/swap reading fails the command; GPU errors are reported inline.
func sampleOnce(w io.Writer, format string, mem probes.MemorySwapProbe, gpu probes.GPUProbe) error {
	var report render.Report
	report.Hostname, _ = os.Hostname()

	var memErr error
	if sample, err := mem.Sample(); err != nil {
		memErr = err
		report.Errors = append(report.Errors, "memory_swap: "+err.Error())
	} else {
		report.Memory = &sample
	}

	if gpu != nil {
		if sample, err := gpu.Sample(); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("gpu (%s): %v", gpu.Name(), err))
		} else {
			report.GPU = &sample
		}
	}

	if err := render.Write(w, format, report); err != nil {
		return err
	}
	if memErr != nil {
		return fmt.Errorf("%w: %w", errSampleFailed, memErr)
	}
	return nil
}
