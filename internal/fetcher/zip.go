package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoMatch is returned when an archive opens cleanly but holds no member
// accepted by the match function.
var ErrNoMatch = eris.New("zip: no matching entries in archive")

// ErrArchive marks a zip that could not be opened or read.
var ErrArchive = eris.New("zip: unreadable archive")

// DefaultRegions are the police force substrings that make up London.
var DefaultRegions = []string{"metropolitan", "city-of-london"}

// RegionMatcher returns a match function accepting CSV members whose path
// contains any of the given substrings.
func RegionMatcher(regions []string) func(name string) bool {
	return func(name string) bool {
		if !strings.HasSuffix(strings.ToLower(name), ".csv") {
			return false
		}
		for _, r := range regions {
			if r != "" && strings.Contains(name, r) {
				return true
			}
		}
		return false
	}
}

// ExtractZIPMatching extracts every file in the archive accepted by match,
// in archive listing order. Returns the absolute paths of the extracted files.
func ExtractZIPMatching(zipPath, destDir string, match func(name string) bool) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(ErrArchive, "open %s: %v", filepath.Base(zipPath), err)
	}
	defer r.Close() //nolint:errcheck

	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return nil, eris.Wrap(err, "zip: resolve destination")
	}

	var extracted []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !match(f.Name) {
			continue
		}
		path, err := extractZIPEntry(f, absDest)
		if err != nil {
			return extracted, err
		}
		extracted = append(extracted, path)
	}

	if len(extracted) == 0 {
		return nil, eris.Wrapf(ErrNoMatch, "%s (%d entries scanned)", filepath.Base(zipPath), len(r.File))
	}
	return extracted, nil
}

// extractZIPEntry extracts a single zip.File to the destination directory.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrapf(ErrArchive, "open entry %s: %v", f.Name, err)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrapf(ErrArchive, "read entry %s: %v", f.Name, err)
	}

	return destPath, nil
}
