package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-summer/internal/doctor"
	"github.com/example/go-summer/internal/runtime/tensor"
	"github.com/example/go-summer/internal/scan"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the scan, parameter and summarizer properties against this build",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			result := doctor.Run(cmd.Context(), doctor.Config{
				Seed: cfg.Model.Seed,
				ScanOptions: []scan.Option{
					scan.WithBlockSize(cfg.Scan.BlockSize),
					scan.WithWorkers(tensor.Workers()),
				},
			}, cmd.OutOrStdout())

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("checks failed")
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "checks passed in %s\n", result.Elapsed().Round(time.Millisecond))

			return nil
		},
	}

	return cmd
}
