package output

import (
	"bytes"
	"strconv"
	"strings"
	"text/tabwriter"
)

// PlainFormatter writes an unstyled, tab-aligned table for scripts. With
// Verbose, each snapshot row is followed by its files in the last column.
type PlainFormatter struct{}

var plainHeader = []string{"SNAPSHOT", "FILES", "SIZE", "DIR"}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	rows := [][]string{plainHeader}
	for _, s := range r.Snapshots {
		rows = append(rows, []string{s.ID, strconv.Itoa(len(s.Files)), strconv.FormatInt(s.Size, 10), s.Dir})
		if !r.Verbose {
			continue
		}
		for _, file := range s.Files {
			rows = append(rows, []string{"", "", "", file})
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for _, row := range rows {
		if _, err := tw.Write([]byte(strings.Join(row, "\t") + "\n")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func init() {
	Register("plain", func() Formatter { return &PlainFormatter{} })
}
