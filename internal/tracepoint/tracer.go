// Package tracepoint records structured simulation events into one
// append-only file per enabled tracepoint.
//
// Each line has the form "<tick> <json-object>". A tracepoint enabled as
// "rx.msg" also captures events logged as "rx.msg.valid".
package tracepoint

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

// ErrClosed is returned when enabling a tracepoint on a closed tracer.
var ErrClosed = errors.New("tracer closed")

// Tracer is the event sink handed to routers and protocol engines.
type Tracer interface {
	// Enable starts recording events whose name has tracepoint as prefix.
	Enable(tracepoint string) error
	// Log records payload at tick to every matching enabled tracepoint.
	// Logging to a tracepoint nobody enabled does nothing.
	Log(tracepoint string, payload any, tick int)
	// Close flushes and releases all files.
	Close() error
}

// Factory builds the tracer of one router given its trace directory.
type Factory func(dir string) (Tracer, error)

type sink struct {
	name string
	file *os.File
	w    *bufio.Writer
}

// FileTracer writes each enabled tracepoint to <dir>/<tracepoint>.
type FileTracer struct {
	mu      sync.Mutex
	dir     string
	enabled []*sink
	err     error
	closed  bool
}

// NewFileTracer creates dir if needed and enables the given tracepoints.
func NewFileTracer(dir string, enable ...string) (*FileTracer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	t := &FileTracer{dir: dir}
	for _, tp := range enable {
		if err := t.Enable(tp); err != nil {
			t.Close()
			return nil, err
		}
	}
	return t, nil
}

// FileFactory returns a Factory producing FileTracers.
func FileFactory() Factory {
	return func(dir string) (Tracer, error) {
		return NewFileTracer(dir)
	}
}

// Dir returns the directory the tracer writes to.
func (t *FileTracer) Dir() string { return t.dir }

// Enable opens the file of tracepoint in the tracer directory. Enabling
// an enabled tracepoint is a no-op.
func (t *FileTracer) Enable(tracepoint string) error {
	if tracepoint == "" || strings.ContainsRune(tracepoint, filepath.Separator) {
		return fmt.Errorf("invalid tracepoint name %q", tracepoint)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if slices.IndexFunc(t.enabled, func(s *sink) bool { return s.name == tracepoint }) >= 0 {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(t.dir, tracepoint), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open tracepoint %q: %w", tracepoint, err)
	}
	t.enabled = append(t.enabled, &sink{name: tracepoint, file: f, w: bufio.NewWriter(f)})
	return nil
}

// Enabled returns the names of the enabled tracepoints in enable order.
func (t *FileTracer) Enabled() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.enabled))
	for _, s := range t.enabled {
		out = append(out, s.name)
	}
	return out
}

// Log appends payload to tracepoint if it is enabled. Write errors are
// kept and reported by Flush and Close.
func (t *FileTracer) Log(tracepoint string, payload any, tick int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var line []byte
	for _, s := range t.enabled {
		if !strings.HasPrefix(tracepoint, s.name) {
			continue
		}
		if line == nil {
			body, err := json.Marshal(payload)
			if err != nil {
				t.setErr(fmt.Errorf("encode %s payload: %w", tracepoint, err))
				return
			}
			line = make([]byte, 0, len(body)+12)
			line = strconv.AppendInt(line, int64(tick), 10)
			line = append(line, ' ')
			line = append(line, body...)
			line = append(line, '\n')
		}
		if _, err := s.w.Write(line); err != nil {
			t.setErr(fmt.Errorf("write tracepoint %q: %w", s.name, err))
		}
	}
}

// Flush pushes buffered lines to disk.
func (t *FileTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.enabled {
		if err := s.w.Flush(); err != nil {
			t.setErr(err)
		}
	}
	return t.err
}

// Close flushes and closes every tracepoint file. It is safe to call
// more than once.
func (t *FileTracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return t.err
	}
	t.closed = true
	for _, s := range t.enabled {
		if err := s.w.Flush(); err != nil {
			t.setErr(err)
		}
		if err := s.file.Close(); err != nil {
			t.setErr(err)
		}
	}
	t.enabled = nil
	return t.err
}

// setErr keeps the first write error; callers hold t.mu.
func (t *FileTracer) setErr(err error) {
	if t.err == nil {
		t.err = err
	}
}

// Noop returns a tracer that discards everything.
func Noop() Tracer { return noopTracer{} }

// NoopFactory returns a Factory producing no-op tracers.
func NoopFactory() Factory {
	return func(string) (Tracer, error) { return noopTracer{}, nil }
}

type noopTracer struct{}

func (noopTracer) Enable(string) error  { return nil }
func (noopTracer) Log(string, any, int) {}
func (noopTracer) Close() error         { return nil }

// MinTime wraps a tracer and drops events logged before tick min.
// It is used to skip the protocol settling phase.
type MinTime struct {
	Tracer
	Min int
}

// Log forwards to the wrapped tracer from tick Min on.
func (m MinTime) Log(tracepoint string, payload any, tick int) {
	if tick < m.Min {
		return
	}
	m.Tracer.Log(tracepoint, payload, tick)
}

// MinTimeFactory wraps the tracers built by inner in MinTime.
func MinTimeFactory(inner Factory, min int) Factory {
	return func(dir string) (Tracer, error) {
		t, err := inner(dir)
		if err != nil {
			return nil, err
		}
		return MinTime{Tracer: t, Min: min}, nil
	}
}
