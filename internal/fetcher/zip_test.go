package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zipEntry struct {
	name    string
	content string
}

// createTestZIP writes entries in the given order so listing order is deterministic.
func createTestZIP(t *testing.T, entries ...zipEntry) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for _, e := range entries {
		fw, err := w.Create(e.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestRegionMatcher(t *testing.T) {
	match := RegionMatcher(DefaultRegions)

	tests := []struct {
		name string
		want bool
	}{
		{"2024-04/2024-04-metropolitan-street.csv", true},
		{"2024-04/2024-04-city-of-london-street.csv", true},
		{"2024-04/2024-04-city-of-london-outcomes.CSV", true},
		{"2024-04/2024-04-kent-street.csv", false},
		{"2024-04/2024-04-metropolitan-street.txt", false},
		{"2024-04/", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, match(tt.name))
		})
	}
}

func TestRegionMatcher_IgnoresEmptyRegion(t *testing.T) {
	match := RegionMatcher([]string{""})
	assert.False(t, match("2024-04/2024-04-kent-street.csv"))
}

func TestExtractZIPMatching_OnlyMatches(t *testing.T) {
	zipPath := createTestZIP(t,
		zipEntry{"2024-04/2024-04-avon-and-somerset-street.csv", "a"},
		zipEntry{"2024-04/2024-04-city-of-london-street.csv", "Crime ID\nc1\n"},
		zipEntry{"2024-04/2024-04-kent-street.csv", "k"},
		zipEntry{"2024-04/2024-04-metropolitan-street.csv", "Crime ID\nm1\n"},
		zipEntry{"2024-04/2024-04-metropolitan-outcomes.csv", "Crime ID\no1\n"},
	)

	destDir := t.TempDir()
	extracted, err := ExtractZIPMatching(zipPath, destDir, RegionMatcher(DefaultRegions))
	require.NoError(t, err)
	require.Len(t, extracted, 3)

	assert.Equal(t, filepath.Join(destDir, "2024-04", "2024-04-city-of-london-street.csv"), extracted[0])
	assert.Equal(t, filepath.Join(destDir, "2024-04", "2024-04-metropolitan-street.csv"), extracted[1])
	assert.Equal(t, filepath.Join(destDir, "2024-04", "2024-04-metropolitan-outcomes.csv"), extracted[2])

	for _, path := range extracted {
		assert.True(t, filepath.IsAbs(path))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}

	_, err = os.Stat(filepath.Join(destDir, "2024-04", "2024-04-kent-street.csv"))
	assert.True(t, os.IsNotExist(err), "non-matching member should not be extracted")
}

func TestExtractZIPMatching_NoMatch(t *testing.T) {
	zipPath := createTestZIP(t,
		zipEntry{"2024-04/2024-04-kent-street.csv", "k"},
		zipEntry{"2024-04/2024-04-surrey-street.csv", "s"},
	)

	extracted, err := ExtractZIPMatching(zipPath, t.TempDir(), RegionMatcher(DefaultRegions))
	require.Error(t, err)
	assert.Nil(t, extracted)
	assert.True(t, eris.Is(err, ErrNoMatch))
	assert.False(t, eris.Is(err, ErrArchive))
	assert.Contains(t, err.Error(), "no matching entries")
}

func TestExtractZIPMatching_SkipsDirectories(t *testing.T) {
	zipPath := createTestZIP(t,
		zipEntry{"2024-04-metropolitan/", ""},
		zipEntry{"2024-04-metropolitan/2024-04-metropolitan-street.csv", "x"},
	)

	extracted, err := ExtractZIPMatching(zipPath, t.TempDir(), func(string) bool { return true })
	require.NoError(t, err)
	assert.Len(t, extracted, 1)
}

func TestExtractZIPMatching_ZipSlipPrevention(t *testing.T) {
	zipPath := createTestZIP(t,
		zipEntry{"../../../tmp/metropolitan-street.csv", "malicious"},
	)

	_, err := ExtractZIPMatching(zipPath, t.TempDir(), RegionMatcher(DefaultRegions))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip slip")
}

func TestExtractZIPMatching_InvalidArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notazip.zip")
	require.NoError(t, os.WriteFile(path, []byte("this is not a zip"), 0o644))

	_, err := ExtractZIPMatching(path, t.TempDir(), RegionMatcher(DefaultRegions))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrArchive))
	assert.False(t, eris.Is(err, ErrNoMatch))
}
