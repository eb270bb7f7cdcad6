// Package export renders tabular rows as CSV and XLSX downloads.
package export

import (
	"io"
	"strings"
)

// QuoteCSV wraps a value in double quotes, doubling any embedded quotes.
func QuoteCSV(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// WriteCSV writes an unquoted header line followed by fully quoted rows.
// Lines are separated by a single newline with no trailing newline.
//
// encoding/csv only quotes fields that need it, while every exported field
// here is quoted unconditionally.
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	var b strings.Builder
	b.WriteString(strings.Join(header, ","))
	for _, row := range rows {
		b.WriteByte('\n')
		for i, value := range row {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(QuoteCSV(value))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
