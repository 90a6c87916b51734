// Package pipeline runs the fetch-and-extract and transform-and-load stages
// that turn a police.uk archive into a Parquet file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/london-crime/internal/convert"
	"github.com/sells-group/london-crime/internal/fetcher"
	"github.com/sells-group/london-crime/internal/model"
)

// Options is the full configuration of a single run.
type Options struct {
	SourceURL  string
	OutputPath string
	Regions    []string
	TempDir    string // parent of the scoped work directory; empty uses the OS default
}

// Validate checks that the options describe a runnable pipeline.
func (o Options) Validate() error {
	if o.SourceURL == "" {
		return eris.New("pipeline: source url is required")
	}
	if o.OutputPath == "" {
		return eris.New("pipeline: output path is required")
	}
	if len(o.Regions) == 0 {
		return eris.New("pipeline: at least one region is required")
	}
	return nil
}

// Loader writes the extracted CSVs to the destination file.
type Loader interface {
	Convert(ctx context.Context, files []string, dest string) (*convert.Result, error)
}

// Recorder persists run state transitions.
type Recorder interface {
	Start(ctx context.Context, sourceURL, outputPath string) (string, error)
	SetStatus(ctx context.Context, id string, status model.RunStatus) error
	Complete(ctx context.Context, id string, result *model.RunResult) error
	Fail(ctx context.Context, id string, kind model.ErrorKind, msg string) error
}

// Pipeline wires a fetcher and a loader together for one run.
type Pipeline struct {
	opts     Options
	fetcher  fetcher.Fetcher
	loader   Loader
	recorder Recorder
	clock    clockwork.Clock
	out      io.Writer
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock sets the time source used to measure runs.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithRecorder records run state transitions.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithOutput sets where user-facing status lines are printed.
func WithOutput(w io.Writer) Option {
	return func(p *Pipeline) { p.out = w }
}

// New creates a Pipeline.
func New(opts Options, f fetcher.Fetcher, l Loader, options ...Option) *Pipeline {
	p := &Pipeline{
		opts:    opts,
		fetcher: f,
		loader:  l,
		clock:   clockwork.NewRealClock(),
		out:     io.Discard,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Run executes both stages inside a scoped temp directory, which is removed
// on every exit path. Stage failures are returned as *StageError.
func (p *Pipeline) Run(ctx context.Context) (*model.RunResult, error) {
	if err := p.opts.Validate(); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "pipeline"), zap.String("url", p.opts.SourceURL))
	start := p.clock.Now()

	runID := p.startRun(ctx, log)

	if p.opts.TempDir != "" {
		if err := os.MkdirAll(p.opts.TempDir, 0o755); err != nil {
			return nil, p.fail(ctx, log, runID, model.ErrorKindFetch, eris.Wrapf(err, "pipeline: create temp dir %s", p.opts.TempDir))
		}
	}
	workDir, err := os.MkdirTemp(p.opts.TempDir, "london-crime-*")
	if err != nil {
		return nil, p.fail(ctx, log, runID, model.ErrorKindFetch, eris.Wrap(err, "pipeline: create work dir"))
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			log.Warn("pipeline: failed to remove work dir", zap.String("dir", workDir), zap.Error(rmErr))
		}
	}()

	p.setStatus(ctx, log, runID, model.RunStatusFetching)
	files, archiveBytes, err := p.FetchAndExtract(ctx, workDir)
	if err != nil {
		var se *StageError
		if errors.As(err, &se) {
			return nil, p.fail(ctx, log, runID, se.Kind, se.Err)
		}
		return nil, p.fail(ctx, log, runID, model.ErrorKindFetch, err)
	}

	p.setStatus(ctx, log, runID, model.RunStatusLoading)
	res, err := p.loader.Convert(ctx, files, p.opts.OutputPath)
	if err != nil {
		return nil, p.fail(ctx, log, runID, model.ErrorKindTransform, err)
	}

	result := &model.RunResult{
		ArchiveBytes: archiveBytes,
		Files:        files,
		Rows:         res.Rows,
		OutputPath:   res.Path,
		OutputBytes:  res.Bytes,
		Elapsed:      p.clock.Since(start),
	}

	if p.recorder != nil && runID != "" {
		if recErr := p.recorder.Complete(ctx, runID, result); recErr != nil {
			log.Warn("pipeline: failed to record completion", zap.Error(recErr))
		}
	}

	log.Info("pipeline: run complete",
		zap.Int("files", len(files)),
		zap.Int64("rows", result.Rows),
		zap.Int64("output_bytes", result.OutputBytes),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// FetchAndExtract downloads the archive into dir and extracts the region
// CSVs. Returns the extracted paths in archive order and the archive size.
func (p *Pipeline) FetchAndExtract(ctx context.Context, dir string) ([]string, int64, error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("stage", "fetch"))

	zipPath := filepath.Join(dir, "archive.zip")
	log.Info("downloading archive", zap.String("url", p.opts.SourceURL))
	n, err := p.fetcher.DownloadToFile(ctx, p.opts.SourceURL, zipPath)
	if err != nil {
		return nil, 0, &StageError{Kind: model.ErrorKindFetch, Err: err}
	}

	files, err := fetcher.ExtractZIPMatching(zipPath, dir, fetcher.RegionMatcher(p.opts.Regions))
	if err != nil {
		kind := model.ErrorKindArchive
		if eris.Is(err, fetcher.ErrNoMatch) {
			kind = model.ErrorKindNoMatch
		}
		return nil, n, &StageError{Kind: kind, Err: err}
	}

	_, _ = fmt.Fprintf(p.out, "Found %d relevant CSV files\n", len(files))
	log.Info("extracted region files",
		zap.Int("count", len(files)),
		zap.Strings("regions", p.opts.Regions),
	)
	return files, n, nil
}

func (p *Pipeline) startRun(ctx context.Context, log *zap.Logger) string {
	if p.recorder == nil {
		return ""
	}
	id, err := p.recorder.Start(ctx, p.opts.SourceURL, p.opts.OutputPath)
	if err != nil {
		log.Warn("pipeline: failed to record run start", zap.Error(err))
		return ""
	}
	return id
}

func (p *Pipeline) setStatus(ctx context.Context, log *zap.Logger, id string, status model.RunStatus) {
	log.Info("pipeline: stage", zap.String("status", string(status)))
	if p.recorder == nil || id == "" {
		return
	}
	if err := p.recorder.SetStatus(ctx, id, status); err != nil {
		log.Warn("pipeline: failed to update status", zap.Error(err))
	}
}

func (p *Pipeline) fail(ctx context.Context, log *zap.Logger, id string, kind model.ErrorKind, err error) error {
	log.Error("pipeline: run failed", zap.String("kind", string(kind)), zap.Error(err))
	if p.recorder != nil && id != "" {
		if recErr := p.recorder.Fail(ctx, id, kind, err.Error()); recErr != nil {
			log.Warn("pipeline: failed to record failure", zap.Error(recErr))
		}
	}
	return &StageError{Kind: kind, Err: err}
}
