package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/london-crime/internal/config"
	"github.com/sells-group/london-crime/internal/convert"
	"github.com/sells-group/london-crime/internal/fetcher"
	"github.com/sells-group/london-crime/internal/history"
	"github.com/sells-group/london-crime/internal/monitoring"
	"github.com/sells-group/london-crime/internal/pipeline"
)

var (
	runURL     string
	runOutput  string
	runRegions []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Download the archive and write the London Parquet file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("url") {
			cfg.Source.URL = runURL
		}
		if cmd.Flags().Changed("output") {
			cfg.Output.Path = runOutput
		}
		if cmd.Flags().Changed("regions") {
			cfg.Source.Regions = runRegions
		}

		return runPipeline(cmd.Context(), cfg, os.Stdout)
	},
}

func init() {
	runCmd.Flags().StringVar(&runURL, "url", "", "archive URL (overrides source.url)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "Parquet output path (overrides output.path)")
	runCmd.Flags().StringSliceVar(&runRegions, "regions", nil, "file name substrings to keep (overrides source.regions)")
	rootCmd.AddCommand(runCmd)
}

// runPipeline executes one run with the given config and prints status lines to out.
func runPipeline(ctx context.Context, c *config.Config, out io.Writer) error {
	log := zap.L().With(zap.String("component", "run"))

	if err := c.Validate(); err != nil {
		return err
	}

	conv, err := convert.New(c.Output.Compression)
	if err != nil {
		return err
	}
	defer conv.Close() //nolint:errcheck

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:        c.Fetch.UserAgent,
		Timeout:          c.Fetch.Timeout(),
		ChunkSize:        c.Fetch.ChunkSize,
		ProgressInterval: c.Fetch.ProgressInterval(),
	})

	opts := []pipeline.Option{pipeline.WithOutput(out)}
	if c.History.Path != "" {
		st, err := openHistory(ctx, c.History.Path)
		if err != nil {
			log.Warn("run history unavailable", zap.String("path", c.History.Path), zap.Error(err))
		} else {
			defer st.Close() //nolint:errcheck
			opts = append(opts, pipeline.WithRecorder(st))
		}
	}

	p := pipeline.New(pipeline.Options{
		SourceURL:  c.Source.URL,
		OutputPath: c.Output.Path,
		Regions:    c.Source.Regions,
		TempDir:    c.TempDir,
	}, f, conv, opts...)

	_, _ = fmt.Fprintln(out, "--- London Crime: Batch Data Pipeline ---")
	start := time.Now()

	metrics := monitoring.NewMetrics()
	res, runErr := p.Run(ctx)
	if runErr != nil {
		_, _ = fmt.Fprintf(out, "Pipeline failed: %v\n", runErr)
		metrics.ObserveFailure(pipeline.KindOf(runErr), float64(time.Now().Unix()))
	} else {
		_, _ = fmt.Fprintf(out, "Successfully generated optimized Parquet file: %s (%.2f MB)\n",
			res.OutputPath, float64(res.OutputBytes)/(1024*1024))
		metrics.ObserveSuccess(res, float64(time.Now().Unix()))
		log.Info("wrote parquet file",
			zap.String("path", res.OutputPath),
			zap.String("size", humanize.IBytes(uint64(res.OutputBytes))),
			zap.String("rows", humanize.Comma(res.Rows)),
		)
	}

	_, _ = fmt.Fprintf(out, "Pipeline completed in %.2f seconds.\n", time.Since(start).Seconds())

	if c.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(c.Metrics.Textfile); err != nil {
			log.Warn("failed to write metrics textfile", zap.Error(err))
		}
	}

	return runErr
}

// openHistory opens and migrates the run history database.
func openHistory(ctx context.Context, path string) (*history.Store, error) {
	st, err := history.Open(path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
