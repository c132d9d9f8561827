// Package ndjson streams newline-delimited JSON logs written by the DCS
// server and its bot. Readers are lazy and tolerant: lines that are not JSON
// objects, or that miss a required field, are skipped without error.
package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"

	"dcsstats/internal/logging"
)

// maxLineBytes bounds a single NDJSON line.
const maxLineBytes = 16 * 1024 * 1024

// Record is one parsed line with its fields left undecoded.
type Record map[string]json.RawMessage

// Has reports whether key is present and not JSON null.
func (r Record) Has(key string) bool {
	v, ok := r[key]
	if !ok {
		return false
	}
	v = bytes.TrimSpace(v)
	return len(v) > 0 && !bytes.Equal(v, []byte("null"))
}

// Stats counts what the last scan saw.
type Stats struct {
	Lines   int
	Yielded int
	Skipped int
}

// Reader reads one NDJSON file. Every iteration re-opens the file and scans
// from the first line; a Reader must not be iterated concurrently.
type Reader struct {
	path       string
	required   []string
	maxRecords int

	err   error
	stats Stats
}

// Open prepares a reader for path. The file is not touched until iteration.
func Open(path string, required ...string) *Reader {
	return &Reader{path: path, required: required}
}

// WithMaxRecords caps the number of yielded records. n <= 0 disables the cap.
func (r *Reader) WithMaxRecords(n int) *Reader {
	r.maxRecords = n
	return r
}

// Path returns the file the reader scans.
func (r *Reader) Path() string { return r.path }

// Err returns the I/O error that ended the last scan, if any. A missing file
// is not an error.
func (r *Reader) Err() error { return r.err }

// Stats returns the counters of the last scan.
func (r *Reader) Stats() Stats { return r.stats }

// Records yields every valid line as a Record.
func (r *Reader) Records() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		r.scan(func(_ []byte, rec Record) (bool, bool) {
			return true, yield(rec)
		})
	}
}

// Decode yields every valid line decoded into T. Lines that pass the
// required-field check but do not fit T are skipped.
func Decode[T any](r *Reader) iter.Seq[T] {
	return func(yield func(T) bool) {
		r.scan(func(line []byte, _ Record) (bool, bool) {
			var v T
			if err := json.Unmarshal(line, &v); err != nil {
				return false, true
			}
			return true, yield(v)
		})
	}
}

// scan walks the file. fn reports whether the line was accepted and whether
// scanning should continue.
func (r *Reader) scan(fn func(line []byte, rec Record) (accepted, cont bool)) {
	logger := logging.Logger()
	r.err = nil
	r.stats = Stats{}

	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debugf("ndjson: %s does not exist, treating as empty", r.path)
			return
		}
		r.err = fmt.Errorf("open %s: %w", r.path, err)
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		r.stats.Lines++

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil || rec == nil {
			r.stats.Skipped++
			continue
		}
		if !r.hasRequired(rec) {
			r.stats.Skipped++
			continue
		}

		accepted, cont := fn(line, rec)
		if !accepted {
			r.stats.Skipped++
			continue
		}
		r.stats.Yielded++
		if !cont {
			return
		}
		if r.maxRecords > 0 && r.stats.Yielded >= r.maxRecords {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		r.err = fmt.Errorf("scan %s: %w", r.path, err)
	}
	if r.stats.Skipped > 0 {
		logger.Debugf("ndjson: %s: %d lines, %d skipped", r.path, r.stats.Lines, r.stats.Skipped)
	}
}

func (r *Reader) hasRequired(rec Record) bool {
	for _, k := range r.required {
		if !rec.Has(k) {
			return false
		}
	}
	return true
}
