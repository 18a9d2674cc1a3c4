package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// OutputManager renders command results either as indented JSON (--json) or
// as human text with tabwriter tables.
type OutputManager struct {
	jsonMode bool
	w        io.Writer
}

func NewOutputManager(jsonMode bool) *OutputManager {
	return &OutputManager{jsonMode: jsonMode, w: os.Stdout}
}

// JSON reports whether machine output was requested; commands with purely
// textual sections check this to skip them.
func (om *OutputManager) JSON() bool { return om.jsonMode }

// Output renders a serializable result. In human mode the fallback is
// indented JSON too, which reads fine for structured reports.
func (om *OutputManager) Output(data interface{}) error {
	encoder := json.NewEncoder(om.w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Table renders rows under headers; in JSON mode each row becomes an object
// keyed by header.
func (om *OutputManager) Table(headers []string, rows [][]string) error {
	if om.jsonMode {
		data := make([]map[string]string, len(rows))
		for i, row := range rows {
			entry := make(map[string]string, len(headers))
			for j, header := range headers {
				if j < len(row) {
					entry[strings.ToLower(strings.ReplaceAll(header, " ", "_"))] = row[j]
				}
			}
			data[i] = entry
		}
		return om.Output(data)
	}

	tw := tabwriter.NewWriter(om.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	separators := make([]string, len(headers))
	for i, h := range headers {
		separators[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(separators, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// Line prints a human-mode status line; silent in JSON mode so command
// output stays parseable.
func (om *OutputManager) Line(format string, args ...interface{}) {
	if om.jsonMode {
		return
	}
	fmt.Fprintf(om.w, format+"\n", args...)
}
