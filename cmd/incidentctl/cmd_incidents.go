package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/cornercase/internal/incident"
	"github.com/banshee-data/cornercase/internal/security"
)

func init() {
	listCmd.Flags().Int("limit", 20, "maximum incidents to show (0 for all)")
	exportCmd.Flags().String("format", "csv", "output format: csv or json")
	exportCmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(listCmd, exportCmd, runsCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List committed incidents, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		d, err := openDB()
		if err != nil {
			return err
		}
		defer d.Close()

		records, err := d.Incidents(cmd.Context(), limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintln(out, "No incidents.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSESSION\tTRIGGER\tREASON\tELAPSED\tDISTANCE\tFRAMES\tCREATED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%.1fm\t%d\t%s\n",
				r.ID, r.SessionID, r.TriggerKind, r.Reason.Label(),
				r.Elapsed.Round(time.Second), r.Distance, r.FramesWritten,
				r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all committed incidents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		path, _ := cmd.Flags().GetString("out")
		if format != "csv" && format != "json" {
			return fmt.Errorf("unknown export format %q", format)
		}

		d, err := openDB()
		if err != nil {
			return err
		}
		defer d.Close()
		records, err := d.Incidents(cmd.Context(), 0)
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if path != "" {
			if err := security.CheckOutputPath(path); err != nil {
				return err
			}
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		if format == "json" {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if records == nil {
				records = []incident.Record{}
			}
			return enc.Encode(records)
		}
		return incident.WriteCSV(w, records)
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB()
		if err != nil {
			return err
		}
		defer d.Close()
		runs, err := d.Runs(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSTARTED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\n", r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}
