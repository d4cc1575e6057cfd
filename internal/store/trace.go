package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/numopt/internal/opt"
)

// TraceEntry is one optimization step, stored as a JSON line in trace.jsonl.
type TraceEntry struct {
	Step        int     `json:"step"`
	Value       float64 `json:"value"`
	Evaluations int     `json:"evaluations"`
	// Tolerance is the stop condition's current measure, not its threshold.
	Tolerance float64   `json:"tolerance"`
	Timestamp time.Time `json:"timestamp"`

	// Params is the working point in the optimizer's space (nil unless requested).
	Params []ParameterValue `json:"params,omitempty"`
}

func tracePath(baseDir, runID string) string {
	return filepath.Join(runDir(baseDir, runID), "trace.jsonl")
}

// TraceWriter writes the step trace of one run. Entries are buffered and
// reach the file on Flush or Close. It is safe for concurrent use.
type TraceWriter struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	enc     *json.Encoder
	path    string
	entries int
}

// NewTraceWriter starts a new trace at <baseDir>/runs/<runID>/trace.jsonl,
// replacing any previous one.
func NewTraceWriter(baseDir, runID string) (*TraceWriter, error) {
	if err := os.MkdirAll(runDir(baseDir, runID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	path := tracePath(baseDir, runID)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	buf := bufio.NewWriterSize(file, 64*1024)
	return &TraceWriter{file: file, buf: buf, enc: json.NewEncoder(buf), path: path}, nil
}

// Write buffers one entry.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write trace entry %d: %w", entry.Step, err)
	}
	tw.entries++
	return nil
}

// Entries returns the number of entries written so far.
func (tw *TraceWriter) Entries() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.entries
}

// Flush writes buffered entries and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace: %w", err)
	}
	return tw.file.Sync()
}

// Close flushes buffered entries and closes the file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	ferr := tw.buf.Flush()
	cerr := tw.file.Close()
	if ferr != nil {
		return fmt.Errorf("failed to flush trace: %w", ferr)
	}
	return cerr
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceListener records every optimizer step to a TraceWriter.
type TraceListener struct {
	Writer *TraceWriter
	// IncludeParams adds the working point to each entry.
	IncludeParams bool
	// FlushEvery flushes the writer every that many steps so the trace
	// can be followed while the run is going. Zero flushes only on Close.
	FlushEvery int

	now func() time.Time
}

// NewTraceListener creates a listener writing to w.
func NewTraceListener(w *TraceWriter, includeParams bool) *TraceListener {
	return &TraceListener{Writer: w, IncludeParams: includeParams}
}

func (l *TraceListener) StepPerformed(ev opt.Event) error {
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	entry := TraceEntry{
		Step:        ev.Step,
		Value:       ev.Value,
		Evaluations: ev.Optimizer.NumEvaluations(),
		Tolerance:   ev.Optimizer.StopCondition().CurrentTolerance(),
		Timestamp:   now(),
	}
	if l.IncludeParams {
		entry.Params = Values(ev.Optimizer.Parameters())
	}
	if err := l.Writer.Write(entry); err != nil {
		return err
	}
	if l.FlushEvery > 0 && ev.Step%l.FlushEvery == 0 {
		return l.Writer.Flush()
	}
	return nil
}

func (l *TraceListener) ModifiesParameters() bool { return false }

// TraceReader decodes the entries of a trace in order.
type TraceReader struct {
	file *os.File
	dec  *json.Decoder
	line int
}

// NewTraceReader opens the trace of the given run.
func NewTraceReader(baseDir, runID string) (*TraceReader, error) {
	file, err := os.Open(tracePath(baseDir, runID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	return &TraceReader{file: file, dec: json.NewDecoder(bufio.NewReader(file))}, nil
}

// Next returns the next entry, or io.EOF at the end of the trace.
func (tr *TraceReader) Next() (TraceEntry, error) {
	var entry TraceEntry
	if err := tr.dec.Decode(&entry); err != nil {
		if err == io.EOF {
			return entry, io.EOF
		}
		return entry, fmt.Errorf("trace entry %d: %w", tr.line+1, err)
	}
	tr.line++
	return entry, nil
}

// ReadAll reads all remaining entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
}

// Close closes the trace file.
func (tr *TraceReader) Close() error {
	return tr.file.Close()
}
