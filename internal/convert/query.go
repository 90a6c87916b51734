package convert

import (
	"fmt"
	"strings"
)

// Column maps a source CSV header onto an output column.
type Column struct {
	Source  string
	Name    string
	Numeric bool
}

// Columns is the output schema, in output order.
var Columns = []Column{
	{Source: "Crime ID", Name: "crime_id"},
	{Source: "Month", Name: "month"},
	{Source: "Reported by", Name: "reported_by"},
	{Source: "Falls within", Name: "falls_within"},
	{Source: "Longitude", Name: "longitude", Numeric: true},
	{Source: "Latitude", Name: "latitude", Numeric: true},
	{Source: "Location", Name: "location_name"},
	{Source: "LSOA code", Name: "lsoa_code"},
	{Source: "LSOA name", Name: "lsoa_name"},
	{Source: "Crime type", Name: "crime_type"},
	{Source: "Last outcome category", Name: "outcome"},
	{Source: "Context", Name: "context"},
}

var codecs = map[string]string{
	"zstd":         "ZSTD",
	"snappy":       "SNAPPY",
	"gzip":         "GZIP",
	"lz4":          "LZ4",
	"brotli":       "BROTLI",
	"uncompressed": "UNCOMPRESSED",
}

// quoteLiteral renders s as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quoteIdent renders s as a double-quoted SQL identifier.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// readCSVExpr is the table function reading every input as VARCHAR, aligned by header name.
func readCSVExpr(files []string) string {
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = quoteLiteral(f)
	}
	return fmt.Sprintf("read_csv([%s], header = true, all_varchar = true, union_by_name = true)",
		strings.Join(quoted, ", "))
}

// describeQuery lists the unioned columns of the inputs.
func describeQuery(files []string) string {
	return "DESCRIBE SELECT * FROM " + readCSVExpr(files)
}

// selectQuery projects the output schema. Source columns missing from every
// input become typed NULLs; rows without both coordinates are dropped.
func selectQuery(files []string, available map[string]bool) string {
	var b strings.Builder
	b.WriteString("WITH src AS (\n\tSELECT\n")
	for i, c := range Columns {
		var expr string
		switch {
		case !available[c.Source] && c.Numeric:
			expr = "NULL::DOUBLE"
		case !available[c.Source]:
			expr = "NULL::VARCHAR"
		case c.Numeric:
			expr = fmt.Sprintf("TRY_CAST(%s AS DOUBLE)", quoteIdent(c.Source))
		default:
			expr = quoteIdent(c.Source)
		}
		b.WriteString(fmt.Sprintf("\t\t%s AS %s", expr, c.Name))
		if i < len(Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("\tFROM ")
	b.WriteString(readCSVExpr(files))
	b.WriteString("\n)\nSELECT * FROM src\nWHERE longitude IS NOT NULL AND latitude IS NOT NULL")
	return b.String()
}

// copyQuery wraps the projection in a Parquet COPY to dest.
func copyQuery(files []string, available map[string]bool, dest, codec string) string {
	return fmt.Sprintf("COPY (\n%s\n) TO %s (FORMAT PARQUET, COMPRESSION %s)",
		selectQuery(files, available), quoteLiteral(dest), codec)
}

const summaryQuery = `
SELECT
	COALESCE(crime_type, 'Unknown Category') AS crime_type,
	COALESCE(outcome, 'Not specified') AS outcome,
	count(*) AS n
FROM read_parquet(%s)
GROUP BY 1, 2
ORDER BY n DESC, crime_type, outcome
LIMIT %d`
