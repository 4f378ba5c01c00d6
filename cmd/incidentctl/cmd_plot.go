package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/banshee-data/cornercase/internal/security"
	"github.com/banshee-data/cornercase/internal/telemetry"
)

func init() {
	plotCmd.Flags().String("run", "", "run id (default most recent)")
	plotCmd.Flags().StringP("out", "o", "pedal_tracking.png", "output file; the extension selects png, svg, pdf or html")
	pedalsCmd.Flags().String("run", "", "run id (default most recent)")
	rootCmd.AddCommand(plotCmd, pedalsCmd)
}

func parseRunID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run id: %w", err)
	}
	return id, nil
}

var pedalsCmd = &cobra.Command{
	Use:   "pedals",
	Short: "Summarise the pedal trace of a run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runFlag, _ := cmd.Flags().GetString("run")
		runID, err := parseRunID(runFlag)
		if err != nil {
			return err
		}
		d, err := openDB()
		if err != nil {
			return err
		}
		defer d.Close()
		samples, err := d.PedalTrace(cmd.Context(), runID)
		if err != nil {
			return err
		}
		if len(samples) == 0 {
			return telemetry.ErrNoSamples
		}

		s := telemetry.Summarise(samples)
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "run\t%s\n", samples[0].RunID)
		fmt.Fprintf(w, "samples\t%d over %s\n", s.Samples, s.Duration)
		fmt.Fprintf(w, "throttle mean\t%.2f\n", s.MeanThrottle)
		fmt.Fprintf(w, "brake mean/max\t%.2f / %.2f\n", s.MeanBrake, s.MaxBrake)
		fmt.Fprintf(w, "brake presses\t%d\n", s.BrakeOnsets)
		fmt.Fprintf(w, "override ticks\t%d\n", s.OverrideTicks)
		fmt.Fprintf(w, "override brake presses\t%d\n", s.OverrideBrakeOnsets)
		return w.Flush()
	},
}

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render the pedal trace of a run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runFlag, _ := cmd.Flags().GetString("run")
		path, _ := cmd.Flags().GetString("out")

		runID, err := parseRunID(runFlag)
		if err != nil {
			return err
		}
		format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		switch format {
		case "png", "svg", "pdf", "html":
		default:
			return fmt.Errorf("unsupported plot format %q", format)
		}

		if err := security.CheckOutputPath(path); err != nil {
			return err
		}

		d, err := openDB()
		if err != nil {
			return err
		}
		defer d.Close()
		samples, err := d.PedalTrace(cmd.Context(), runID)
		if err != nil {
			return err
		}
		if len(samples) == 0 {
			return telemetry.ErrNoSamples
		}

		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if format == "html" {
			err = telemetry.WritePedalChart(f, samples, samples[0].RunID.String())
		} else {
			err = telemetry.WritePedalPlot(f, samples, format)
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d samples to %s\n", len(samples), path)
		return nil
	},
}
