package tracestore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
)

// recordKind discriminates the two line shapes a trace file holds.
type recordKind string

const (
	recordKindTraceHeader recordKind = "trace"
	recordKindSpan        recordKind = "span"
)

// fileRecord is one line of the newline-delimited JSON trace file, spec.md
// §6: "one record per span, preceded by a single trace header record."
type fileRecord struct {
	Kind recordKind    `json:"kind"`
	Trace *domain.Trace `json:"trace,omitempty"`
	Span  *domain.Span  `json:"span,omitempty"`
}

// FileSink is the append-only NDJSON trace sink. It is the fatal sink per
// spec.md §7 ("failures on the file sink are fatal"): unlike the relational
// sink, errors here propagate to the caller.
//
// Grounded on the teacher's store.LocalSpecStore: atomic temp-file-then-
// rename for the file's initial creation (the trace header commit) and
// path-traversal guarding on the trace_id used as filename, adapted from a
// whole-document store to an append-only log by switching subsequent
// per-span writes to O_APPEND, which is the idiomatic Go pattern for
// streaming NDJSON logs.
type FileSink struct {
	rootDir string
}

// NewFileSink creates a FileSink rooted at dir, creating dir if necessary.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("trace directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating trace directory: %w", err)
	}
	return &FileSink{rootDir: dir}, nil
}

func (f *FileSink) path(traceID string) (string, error) {
	if traceID == "" || strings.Contains(traceID, "..") || strings.ContainsAny(traceID, `/\`) {
		return "", fmt.Errorf("invalid trace_id for file path: %q", traceID)
	}
	return filepath.Join(f.rootDir, traceID+".ndjson"), nil
}

// Exists reports whether a trace file already exists for traceID, used by
// the Store to implement "tolerates process restarts by reloading an
// existing trace file if the trace_id matches" (spec.md §4.3).
func (f *FileSink) Exists(traceID string) (bool, error) {
	path, err := f.path(traceID)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat trace file: %w", err)
	}
	return true, nil
}

// WriteHeader atomically creates the trace file with its header record as
// the first line.
func (f *FileSink) WriteHeader(trace domain.Trace) error {
	path, err := f.path(trace.TraceID)
	if err != nil {
		return err
	}

	line, err := json.Marshal(fileRecord{Kind: recordKindTraceHeader, Trace: &trace})
	if err != nil {
		return fmt.Errorf("marshal trace header: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, append(line, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing temp trace header: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming trace header: %w", err)
	}
	return nil
}

// AppendSpan appends one span record to the trace file.
func (f *FileSink) AppendSpan(traceID string, span domain.Span) error {
	path, err := f.path(traceID)
	if err != nil {
		return err
	}

	line, err := json.Marshal(fileRecord{Kind: recordKindSpan, Span: &span})
	if err != nil {
		return fmt.Errorf("marshal span: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening trace file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending span: %w", err)
	}
	return nil
}

// RewriteHeader overwrites just the header line with updated trace-level
// fields (ended_at, agent_count, total_duration_ms) once end_trace runs.
// It reads the whole file, replaces line 1, and rewrites atomically, since
// NDJSON files in this system are small (bounded by one run's span count).
func (f *FileSink) RewriteHeader(trace domain.Trace) error {
	path, err := f.path(trace.TraceID)
	if err != nil {
		return err
	}

	existing, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading trace file for header rewrite: %w", err)
	}

	lines := strings.SplitN(string(existing), "\n", 2)
	headerLine, err := json.Marshal(fileRecord{Kind: recordKindTraceHeader, Trace: &trace})
	if err != nil {
		return fmt.Errorf("marshal trace header: %w", err)
	}

	var rest string
	if len(lines) > 1 {
		rest = lines[1]
	}

	tmpPath := path + ".tmp"
	content := string(headerLine) + "\n" + rest
	if err := os.WriteFile(tmpPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing temp trace header rewrite: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming trace header rewrite: %w", err)
	}
	return nil
}

// Read reconstructs a Trace and its Spans from the NDJSON file, used both
// for process-restart reload and for the round-trip testable property
// (spec.md §8).
func (f *FileSink) Read(traceID string) (domain.Trace, []domain.Span, error) {
	path, err := f.path(traceID)
	if err != nil {
		return domain.Trace{}, nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Trace{}, nil, ErrTraceNotFound
		}
		return domain.Trace{}, nil, fmt.Errorf("opening trace file: %w", err)
	}
	defer file.Close()

	var trace domain.Trace
	var spans []domain.Span
	var haveHeader bool

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec fileRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return domain.Trace{}, nil, fmt.Errorf("parsing trace record: %w", err)
		}
		switch rec.Kind {
		case recordKindTraceHeader:
			if rec.Trace != nil {
				trace = *rec.Trace
				haveHeader = true
			}
		case recordKindSpan:
			if rec.Span != nil {
				spans = append(spans, *rec.Span)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.Trace{}, nil, fmt.Errorf("scanning trace file: %w", err)
	}
	if !haveHeader {
		return domain.Trace{}, nil, ErrTraceNotFound
	}

	return trace, spans, nil
}
