// Package convert turns police street-crime CSVs into a compressed Parquet
// file using an embedded DuckDB engine.
package convert

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultCodec is the Parquet compression used when none is configured.
const DefaultCodec = "zstd"

// Result describes a written Parquet file.
type Result struct {
	Path  string
	Rows  int64
	Bytes int64
}

// TypeOutcomeCount is one row of the crime type / outcome breakdown.
type TypeOutcomeCount struct {
	CrimeType string
	Outcome   string
	Count     int64
}

// Converter owns an in-memory DuckDB database.
type Converter struct {
	db    *sql.DB
	codec string
}

// New opens an in-memory DuckDB database. codec is one of zstd, snappy,
// gzip, lz4, brotli or uncompressed; empty selects zstd.
func New(codec string) (*Converter, error) {
	if codec == "" {
		codec = DefaultCodec
	}
	c, ok := codecs[strings.ToLower(codec)]
	if !ok {
		return nil, eris.Errorf("convert: unsupported compression %q", codec)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, eris.Wrap(err, "convert: open duckdb")
	}
	// A single connection keeps the in-memory catalog stable across calls.
	db.SetMaxOpenConns(1)

	return &Converter{db: db, codec: c}, nil
}

// Close releases the DuckDB database.
func (c *Converter) Close() error {
	return c.db.Close()
}

// Convert reads files as one union-by-name, all-text table and writes the
// geocoded rows to dest as Parquet. Any existing file at dest is replaced.
func (c *Converter) Convert(ctx context.Context, files []string, dest string) (*Result, error) {
	log := zap.L().With(zap.String("component", "convert"))

	if len(files) == 0 {
		return nil, eris.New("convert: no input files")
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, eris.Wrapf(err, "convert: create output directory for %s", dest)
	}

	available, err := c.sourceColumns(ctx, files)
	if err != nil {
		return nil, err
	}
	for _, col := range Columns {
		if !available[col.Source] {
			log.Warn("source column missing from every input", zap.String("column", col.Source))
		}
	}

	tmp := dest + ".tmp"
	log.Info("writing parquet",
		zap.Int("files", len(files)),
		zap.String("dest", dest),
		zap.String("compression", c.codec),
	)
	if _, err := c.db.ExecContext(ctx, copyQuery(files, available, tmp, c.codec)); err != nil {
		_ = os.Remove(tmp)
		return nil, eris.Wrap(err, "convert: copy to parquet")
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return nil, eris.Wrapf(err, "convert: move output into place at %s", dest)
	}

	rows, err := c.Count(ctx, dest)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dest)
	if err != nil {
		return nil, eris.Wrap(err, "convert: stat output")
	}

	return &Result{Path: dest, Rows: rows, Bytes: info.Size()}, nil
}

// sourceColumns returns the set of header names across all inputs.
func (c *Converter) sourceColumns(ctx context.Context, files []string) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, describeQuery(files))
	if err != nil {
		return nil, eris.Wrap(err, "convert: describe input")
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "convert: describe columns")
	}

	available := make(map[string]bool)
	for rows.Next() {
		dest := make([]any, len(cols))
		var name sql.NullString
		dest[0] = &name
		for i := 1; i < len(dest); i++ {
			dest[i] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "convert: scan describe row")
		}
		if name.Valid {
			available[name.String] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "convert: iterate describe rows")
	}
	return available, nil
}

// Count returns the number of rows in a Parquet file.
func (c *Converter) Count(ctx context.Context, path string) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT count(*) FROM read_parquet(%s)", quoteLiteral(path))
	if err := c.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "convert: count rows in %s", path)
	}
	return n, nil
}

// Summarize returns the most frequent crime type / outcome pairs in a
// Parquet file produced by Convert, largest first.
func (c *Converter) Summarize(ctx context.Context, path string, limit int) ([]TypeOutcomeCount, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(summaryQuery, quoteLiteral(path), limit))
	if err != nil {
		return nil, eris.Wrapf(err, "convert: summarize %s", path)
	}
	defer rows.Close() //nolint:errcheck

	var out []TypeOutcomeCount
	for rows.Next() {
		var r TypeOutcomeCount
		if err := rows.Scan(&r.CrimeType, &r.Outcome, &r.Count); err != nil {
			return nil, eris.Wrap(err, "convert: scan summary row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "convert: iterate summary rows")
	}
	return out, nil
}
