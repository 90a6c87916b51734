package main

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/london-crime/internal/config"
	"github.com/sells-group/london-crime/internal/model"
)

func buildArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func testConfig(t *testing.T, url string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Source: config.SourceConfig{
			URL:     url,
			Regions: []string{"metropolitan", "city-of-london"},
		},
		Output: config.OutputConfig{
			Path:        filepath.Join(dir, "public", "london_crimes.parquet"),
			Compression: "zstd",
		},
		Fetch: config.FetchConfig{
			UserAgent:            "test",
			TimeoutSecs:          10,
			ChunkSize:            1024,
			ProgressIntervalSecs: 1,
		},
		TempDir: filepath.Join(dir, "tmp"),
		History: config.HistoryConfig{Path: filepath.Join(dir, "history.db")},
		Metrics: config.MetricsConfig{Textfile: filepath.Join(dir, "metrics", "london_crime.prom")},
		Log:     config.LogConfig{Level: "info", Format: "console"},
	}
}

func latestRun(t *testing.T, c *config.Config) model.Run {
	t.Helper()
	st, err := openHistory(context.Background(), c.History.Path)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	runs, err := st.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return runs[0]
}

func TestRunPipeline_Success(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"2024-04/2024-04-metropolitan-street.csv": "Crime ID,Month,Longitude,Latitude,Crime type\n" +
			"m1,2024-04,-0.1,51.5,Burglary\n" +
			"m2,2024-04,,,Robbery\n",
		"2024-04/2024-04-city-of-london-street.csv": "Crime ID,Month,Longitude,Latitude\n" +
			"c1,2024-04,-0.09,51.51\n",
		"2024-04/2024-04-kent-street.csv": "Crime ID,Longitude,Latitude\nk1,1.0,51.0\n",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	c := testConfig(t, srv.URL+"/2024-04.zip")

	var out bytes.Buffer
	require.NoError(t, runPipeline(context.Background(), c, &out))

	output := out.String()
	assert.Contains(t, output, "Found 2 relevant CSV files")
	assert.Contains(t, output, "Successfully generated optimized Parquet file: "+c.Output.Path)
	assert.Contains(t, output, "Pipeline completed in")
	assert.NotContains(t, output, "Pipeline failed")

	_, err := os.Stat(c.Output.Path)
	require.NoError(t, err)

	run := latestRun(t, c)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, int64(2), run.Rows)

	metrics, err := os.ReadFile(c.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "london_crime_last_run_success 1")
	assert.Contains(t, string(metrics), "london_crime_rows_written 2")
	assert.Contains(t, string(metrics), "london_crime_files_extracted 2")
}

func TestRunPipeline_FetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := testConfig(t, srv.URL+"/missing.zip")

	var out bytes.Buffer
	err := runPipeline(context.Background(), c, &out)
	require.Error(t, err)

	output := out.String()
	assert.Contains(t, output, "Pipeline failed: fetch: download: unexpected status 404")
	assert.Contains(t, output, "Pipeline completed in")
	assert.NotContains(t, output, "Successfully generated")

	_, statErr := os.Stat(c.Output.Path)
	assert.True(t, os.IsNotExist(statErr))

	run := latestRun(t, c)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, model.ErrorKindFetch, run.ErrorKind)

	metrics, err := os.ReadFile(c.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "london_crime_last_run_success 0")
	assert.Contains(t, string(metrics), `london_crime_last_run_failure{kind="fetch"} 1`)
}

func TestRunPipeline_NoHistoryOrMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buildArchive(t, map[string]string{"2024-04/2024-04-kent-street.csv": "x"}))
	}))
	defer srv.Close()

	c := testConfig(t, srv.URL)
	c.History.Path = ""
	c.Metrics.Textfile = ""

	var out bytes.Buffer
	err := runPipeline(context.Background(), c, &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), "Pipeline failed: no_match:")
}

func TestRunPipeline_InvalidConfig(t *testing.T) {
	c := testConfig(t, "")

	var out bytes.Buffer
	err := runPipeline(context.Background(), c, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.url is required")
	assert.Empty(t, out.String())
}

func TestRunPipeline_UnknownCompression(t *testing.T) {
	c := testConfig(t, "http://127.0.0.1:1/a.zip")
	c.Output.Compression = "zip"

	err := runPipeline(context.Background(), c, &bytes.Buffer{})
	require.Error(t, err)
}
