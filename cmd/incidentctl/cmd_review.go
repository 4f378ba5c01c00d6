package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/cornercase/internal/api"
	"github.com/banshee-data/cornercase/internal/httputil"
	"github.com/banshee-data/cornercase/internal/incident"
	"github.com/banshee-data/cornercase/internal/units"
)

func init() {
	statusCmd.Flags().String("units", units.KMPH, "speed units: mps, mph, kmph or kph")
	decideCmd.Flags().String("reason", "", "incident reason, e.g. vehicle_missed (commit only)")
	decideCmd.Flags().String("comment", "", "free-text comment (commit only)")
	rootCmd.AddCommand(statusCmd, triggerCmd, reviewCmd)
	reviewCmd.AddCommand(decideCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running cornercased",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		unitFlag, _ := cmd.Flags().GetString("units")
		unit, err := units.Parse(unitFlag)
		if err != nil {
			return err
		}
		var st api.Status
		if err := httputil.GetJSON(cmd.Context(), client, endpoint("/api/status"), &st); err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "run\t%s\n", st.RunID)
		fmt.Fprintf(w, "version\t%s\n", st.Version)
		fmt.Fprintf(w, "uptime\t%.0fs\n", st.UptimeSec)
		fmt.Fprintf(w, "state\t%s (session %d)\n", st.Lifecycle.State, st.Lifecycle.SessionID)
		fmt.Fprintf(w, "buffer\t%d/%d frozen=%t\n", st.Buffer.Len, st.Buffer.Capacity, st.Buffer.Frozen)
		fmt.Fprintf(w, "tick\t%d\n", st.Drive.Tick)
		fmt.Fprintf(w, "distance\t%.1fm\n", st.Drive.Distance)
		fmt.Fprintf(w, "speed\t%s\n", units.FormatSpeed(st.Drive.Speed, unit))
		fmt.Fprintf(w, "committed\t%d\n", st.Lifecycle.Committed)
		fmt.Fprintf(w, "rolled back\t%d\n", st.Lifecycle.RolledBack)
		if st.Pending != nil {
			fmt.Fprintf(w, "pending review\t%s trigger in session %d\n", st.Pending.Kind, st.Pending.SessionID)
		}
		return w.Flush()
	},
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Raise a manual incident trigger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := httputil.PostJSON(cmd.Context(), client, endpoint("/api/trigger"), nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Trigger queued.")
		return nil
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Show the pending incident review",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var req incident.ReviewRequest
		err := httputil.GetJSON(cmd.Context(), client, endpoint("/api/review"), &req)
		var se *httputil.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			fmt.Fprintln(cmd.OutOrStdout(), "No pending review.")
			return nil
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "id\t%s\n", req.ID)
		fmt.Fprintf(w, "session\t%d\n", req.SessionID)
		fmt.Fprintf(w, "trigger\t%s\n", req.Kind)
		fmt.Fprintf(w, "elapsed\t%s\n", req.Elapsed)
		fmt.Fprintf(w, "distance\t%.1fm\n", req.Distance)
		return w.Flush()
	},
}

var decideCmd = &cobra.Command{
	Use:       "decide <commit|rollback|cancel>",
	Short:     "Answer the pending incident review",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"commit", "rollback", "cancel"},
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		comment, _ := cmd.Flags().GetString("comment")
		body := api.DecisionBody{
			Decision: strings.ToLower(args[0]),
			Reason:   reason,
			Comment:  comment,
		}
		if err := httputil.PostJSON(cmd.Context(), client, endpoint("/api/review"), body, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Review answered: %s\n", body.Decision)
		return nil
	},
}
