package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/cornercase/internal/fsutil"
	"github.com/banshee-data/cornercase/internal/recorder"
)

func init() {
	replayCmd.Flags().Int64("from-ns", 0, "start at the first sample at or after this timestamp")
	replayCmd.Flags().Int("limit", 0, "maximum samples to print (0 for all)")
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay <recording>",
	Short: "Print the samples of a scene recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromNs, _ := cmd.Flags().GetInt64("from-ns")
		limit, _ := cmd.Flags().GetInt("limit")

		r, err := recorder.OpenSceneLog(fsutil.OSFileSystem{}, args[0])
		if err != nil {
			return err
		}
		if fromNs > 0 {
			r.SeekToTime(fromNs)
		}

		out := cmd.OutOrStdout()
		h := r.Header()
		fmt.Fprintf(out, "%d samples in %d-sample chunks\n", r.Len(), h.ChunkSize)

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TICK\tAT_NS\tSTEER\tTHROTTLE\tBRAKE\tDISTANCE\tOVERRIDE")
		for n := 0; limit == 0 || n < limit; n++ {
			s, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%d\t%d\t%.3f\t%.3f\t%.3f\t%.2f\t%t\n",
				s.Tick, s.AtNs, s.Command.Steer, s.Command.Throttle, s.Command.Brake,
				s.Distance, s.Override != nil)
		}
		return w.Flush()
	},
}
