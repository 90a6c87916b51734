// Package fetcher downloads remote archives and extracts the members a run needs.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body along with the
	// advertised content length (-1 when unknown).
	Download(ctx context.Context, url string) (io.ReadCloser, int64, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
