package reedbase

import (
	"strings"

	"github.com/reedbase/reedbase/internal/exec"
)

// parseRows decodes a table's pipe-delimited bytes into its header and
// row set. The first line is always the header.
func parseRows(data []byte) (header []string, rows []exec.Row) {
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	header = strings.Split(lines[0], "|")

	for _, line := range lines[1:] {
		fields := strings.Split(line, "|")
		row := make(exec.Row, len(header))
		for i, h := range header {
			if i < len(fields) {
				row[h] = fields[i]
			}
		}
		rows = append(rows, row)
	}
	return header, rows
}

// serializeRows renders header and rows back into the table's
// pipe-delimited on-disk form.
func serializeRows(header []string, rows []exec.Row) []byte {
	var sb strings.Builder
	sb.WriteString(strings.Join(header, "|"))
	sb.WriteString("\n")
	for _, r := range rows {
		fields := make([]string, len(header))
		for i, h := range header {
			fields[i] = r[h]
		}
		sb.WriteString(strings.Join(fields, "|"))
		sb.WriteString("\n")
	}
	return []byte(sb.String())
}
