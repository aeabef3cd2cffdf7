// Package plot writes the optional per-node diagnostic scheduling-timeline
// file (§6, enable_plot): one row per observed scheduling interval, in the
// column layout a gnuplot script can consume directly.
package plot

import (
	"fmt"
	"os"
	"sync"

	"github.com/mco-piccolo/timpani/internal/errs"
)

// header is the fixed column header §6 names for <node_id>.gpdata:
// task event_ignored resource_tag priority wakeup_us start_us stop_us ignored.
const header = "# task event_ignored resource_tag priority wakeup_us start_us stop_us ignored\n"

// Row is one observed scheduling interval (§6).
type Row struct {
	Task         string
	EventIgnored int
	ResourceTag  string
	Priority     int32
	WakeupUS     int64
	StartUS      int64
	StopUS       int64
	Ignored      int
}

// Writer opens <node_id>.gpdata lazily, on the first Record call, and
// truncates any prior contents. Safe for concurrent use by many timer
// handlers recording intervals for different tasks.
type Writer struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// New returns a Writer for nodeID's plot file. No file is created until
// the first Record call (§6: "opened on first event").
func New(nodeID string) *Writer {
	return &Writer{path: nodeID + ".gpdata"}
}

// Record appends one row, opening and truncating the file on first use.
func (w *Writer) Record(r Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		f, err := os.Create(w.path)
		if err != nil {
			return errs.Wrap(errs.Io, err, "create plot file "+w.path)
		}
		if _, err := f.WriteString(header); err != nil {
			f.Close()
			return errs.Wrap(errs.Io, err, "write plot header "+w.path)
		}
		w.file = f
	}
	line := fmt.Sprintf("%s %d %s %d %d %d %d %d\n",
		r.Task, r.EventIgnored, r.ResourceTag, r.Priority, r.WakeupUS, r.StartUS, r.StopUS, r.Ignored)
	if _, err := w.file.WriteString(line); err != nil {
		return errs.Wrap(errs.Io, err, "write plot row "+w.path)
	}
	return nil
}

// Close closes the plot file if it was ever opened. Idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return errs.Wrap(errs.Io, err, "close plot file "+w.path)
	}
	return nil
}
