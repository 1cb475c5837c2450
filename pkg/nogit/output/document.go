package output

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// doc is the machine-readable shape shared by json and yaml.
type doc struct {
	Workspace string         `json:"workspace" yaml:"workspace"`
	Root      string         `json:"root" yaml:"root"`
	DaemonUp  bool           `json:"daemon_up" yaml:"daemon_up"`
	Pending   []string       `json:"pending,omitempty" yaml:"pending,omitempty"`
	TotalSize int64          `json:"total_size" yaml:"total_size"`
	Snapshots []SnapshotInfo `json:"snapshots" yaml:"snapshots"`
}

func document(r *Result) doc {
	snapshots := r.Snapshots
	if snapshots == nil {
		snapshots = []SnapshotInfo{}
	}
	return doc{
		Workspace: r.Workspace,
		Root:      r.Root,
		DaemonUp:  r.DaemonUp,
		Pending:   r.Pending,
		TotalSize: r.TotalSize(),
		Snapshots: snapshots,
	}
}

// DocumentFormatter writes the result as a single structured document.
type DocumentFormatter struct {
	encode func(*bytes.Buffer, doc) error
}

// Format writes the formatted output to the buffer.
func (f *DocumentFormatter) Format(w *bytes.Buffer, r *Result) error {
	return f.encode(w, document(r))
}

func encodeJSON(w *bytes.Buffer, d doc) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

func encodeYAML(w *bytes.Buffer, d doc) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return err
	}
	return enc.Close()
}

func init() {
	Register("json", func() Formatter { return &DocumentFormatter{encode: encodeJSON} })
	Register("yaml", func() Formatter { return &DocumentFormatter{encode: encodeYAML} })
}
