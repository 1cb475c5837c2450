package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// TableFormatter renders a styled table for terminals.
type TableFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TableFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.header(r))
	w.WriteString("\n")

	if len(r.Snapshots) == 0 {
		w.WriteString(MutedStyle.Render("  No snapshots yet"))
		w.WriteString("\n")
		return nil
	}

	idWidth := len("SNAPSHOT")
	ageWidth := len("AGE")
	for _, s := range r.Snapshots {
		idWidth = max(idWidth, len(s.ID))
		ageWidth = max(ageWidth, len(r.age(s)))
	}

	fmt.Fprintf(w, "  %s  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("SNAPSHOT", idWidth)),
		TableHeaderStyle.Render(padRight("AGE", ageWidth)),
		TableHeaderStyle.Render(padLeft("FILES", 5)),
		TableHeaderStyle.Render(padLeft("SIZE", 10)))

	for _, s := range r.Snapshots {
		fmt.Fprintf(w, "  %s  %s  %s  %s\n",
			IDStyle.Render(padRight(s.ID, idWidth)),
			MutedStyle.Render(padRight(r.age(s), ageWidth)),
			ValueStyle.Render(padLeft(fmt.Sprintf("%d", len(s.Files)), 5)),
			ValueStyle.Render(padLeft(s.SizeHuman, 10)))

		if r.Verbose {
			for _, file := range s.Files {
				fmt.Fprintf(w, "      %s\n", file)
			}
		}
	}

	return nil
}

func (f *TableFormatter) header(r *Result) string {
	lines := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Workspace:"), ValueStyle.Render(r.Workspace)),
	}

	info := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Snapshots:"), ValueStyle.Render(fmt.Sprintf("%d", len(r.Snapshots)))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Total:"), ValueStyle.Render(humanize.IBytes(uint64(r.TotalSize())))),
	}
	if r.DaemonUp {
		info = append(info, SuccessStyle.Render("daemon: watching"))
	} else {
		info = append(info, MutedStyle.Render("daemon: off"))
	}
	lines = append(lines, strings.Join(info, "  "))

	if len(r.Pending) > 0 {
		lines = append(lines, WarningStyle.Render(fmt.Sprintf("%d file(s) changed since the last snapshot", len(r.Pending))))
	}

	return HeaderBox.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func init() {
	Register("table", func() Formatter {
		return &TableFormatter{}
	})
}

var _ Formatter = (*TableFormatter)(nil)
