// Package datalog writes measurement records as delimited text: `# ` comment
// header lines, one tab-separated column header row, then numeric rows in
// acquisition order. Files are append-only and buffered; the daemon flushes
// after every row it logs and on every stop path, so a crash loses at most
// the in-flight row.
package datalog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
)

const delimiter = "\t"

// Writer is a buffered measurement data file.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
	cols int
}

// Create opens a new data file at path, writing the comment lines (each
// prefixed with "# ") and the column header row immediately.
func Create(path string, comments []string, columns []string) (*Writer, error) {
	if len(columns) == 0 {
		return nil, pkgerrors.New("data file needs at least one column")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create data directory for %s", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create data file %s", path)
	}

	w := &Writer{
		f:    f,
		w:    bufio.NewWriter(f),
		path: path,
		cols: len(columns),
	}

	for _, c := range comments {
		if _, err := fmt.Fprintf(w.w, "# %s\n", c); err != nil {
			_ = f.Close()
			return nil, pkgerrors.Wrap(err, "failed to write data file header")
		}
	}
	if _, err := fmt.Fprintln(w.w, strings.Join(columns, delimiter)); err != nil {
		_ = f.Close()
		return nil, pkgerrors.Wrap(err, "failed to write column header")
	}

	return w, nil
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// WriteRow appends one data row. The number of values must match the column
// header.
func (w *Writer) WriteRow(values ...string) error {
	if len(values) != w.cols {
		return pkgerrors.Errorf("row has %d values, file has %d columns", len(values), w.cols)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return pkgerrors.New("data file is closed")
	}
	_, err := fmt.Fprintln(w.w, strings.Join(values, delimiter))
	return pkgerrors.Wrap(err, "failed to append data row")
}

// Flush forces buffered rows to disk.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	return w.w.Flush()
}

// Close flushes and closes the file. Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	flushErr := w.w.Flush()
	closeErr := w.f.Close()
	w.w = nil
	w.f = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName builds a data file name from the sample name and job kind, e.g.
// "BFO-1_delta-rt_20240303-153045.dat". Characters unsafe in file names are
// replaced with underscores.
func FileName(sample, kind string, t time.Time) string {
	sample = unsafeChars.ReplaceAllString(strings.TrimSpace(sample), "_")
	if sample == "" {
		sample = "sample"
	}
	return fmt.Sprintf("%s_%s_%s.dat", sample, kind, t.Format("20060102-150405"))
}
