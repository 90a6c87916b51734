package fetcher

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultChunkSize is the copy buffer used when streaming a body to disk.
const DefaultChunkSize = 1 << 20

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent        string
	Timeout          time.Duration // 0 means no client timeout
	ChunkSize        int
	ProgressInterval time.Duration
}

// HTTPFetcher implements Fetcher using net/http. Each call makes exactly one
// request; failures are returned to the caller as-is.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 5 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "london-crime/1.0"
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "download: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "download: get %s", rawURL)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, 0, eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	return resp.Body, resp.ContentLength, nil
}

// DownloadToFile fetches the URL and streams it to path in ChunkSize pieces.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, total, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "download: create file")
	}
	defer file.Close() //nolint:errcheck

	pw := &progressWriter{
		url:       rawURL,
		total:     total,
		sometimes: &rate.Sometimes{Interval: f.opts.ProgressInterval},
	}
	buf := make([]byte, f.opts.ChunkSize)
	n, err := io.CopyBuffer(io.MultiWriter(file, pw), body, buf)
	if err != nil {
		return n, eris.Wrap(err, "download: write file")
	}
	if err := file.Sync(); err != nil {
		return n, eris.Wrap(err, "download: sync file")
	}

	zap.L().Info("download complete",
		zap.String("url", rawURL),
		zap.Int64("bytes", n),
		zap.String("size", humanize.IBytes(uint64(n))),
	)
	return n, nil
}

// progressWriter counts bytes and periodically logs download progress.
type progressWriter struct {
	url       string
	total     int64
	written   int64
	sometimes *rate.Sometimes
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	p.sometimes.Do(func() {
		fields := []zap.Field{
			zap.String("url", p.url),
			zap.String("downloaded", humanize.IBytes(uint64(p.written))),
		}
		if p.total > 0 {
			fields = append(fields,
				zap.String("total", humanize.IBytes(uint64(p.total))),
				zap.Float64("percent", float64(p.written)*100/float64(p.total)),
			)
		}
		zap.L().Info("downloading", fields...)
	})
	return len(b), nil
}
