package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/london-crime/internal/model"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if cfg.History.Path == "" {
			return eris.New("history: disabled (history.path is empty)")
		}

		st, err := openHistory(ctx, cfg.History.Path)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.List(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "history list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRuns(os.Stdout, runs)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cfg.History.Path == "" {
			return eris.New("history: disabled (history.path is empty)")
		}

		st, err := openHistory(ctx, cfg.History.Path)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.Get(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "history show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "max number of runs to display")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

// formatRuns writes a tabular list of runs to out.
func formatRuns(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tERROR\tROWS\tSIZE\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t-----\t----\t----\t-------\t--------")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		rows, size := "-", "-"
		if r.Status == model.RunStatusComplete {
			rows = humanize.Comma(r.Rows)
			size = humanize.IBytes(uint64(r.OutputBytes))
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Status,
			r.ErrorKind,
			rows,
			size,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
