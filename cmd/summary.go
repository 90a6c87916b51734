package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/london-crime/internal/convert"
)

var summaryCmd = &cobra.Command{
	Use:   "summary [path]",
	Short: "Show the most common crime type and outcome pairs in a Parquet file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		path := cfg.Output.Path
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err != nil {
			return eris.Wrapf(err, "summary: stat %s", path)
		}

		conv, err := convert.New(convert.DefaultCodec)
		if err != nil {
			return err
		}
		defer conv.Close() //nolint:errcheck

		total, err := conv.Count(ctx, path)
		if err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		rows, err := conv.Summarize(ctx, path, limit)
		if err != nil {
			return err
		}

		formatSummary(os.Stdout, path, total, rows)
		return nil
	},
}

func init() {
	summaryCmd.Flags().Int("limit", 20, "number of crime type and outcome pairs to show")
	rootCmd.AddCommand(summaryCmd)
}

// formatSummary writes the record total and the top type/outcome counts to out.
func formatSummary(out io.Writer, path string, total int64, rows []convert.TypeOutcomeCount) {
	p := message.NewPrinter(language.BritishEnglish)

	_, _ = fmt.Fprintf(out, "%s: %s records\n\n", path, p.Sprintf("%d", total))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CRIME TYPE\tOUTCOME\tCOUNT")
	_, _ = fmt.Fprintln(w, "----------\t-------\t-----")
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.CrimeType, r.Outcome, p.Sprintf("%d", r.Count))
	}
	_ = w.Flush()
}
