// Package archive locates raw land-sale data files inside zip archives,
// recursing into archives nested within archives.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"go.uber.org/zap"

	"landsales/internal/metrics"
)

// RawDataExt is the file extension of raw transaction data entries.
const RawDataExt = ".dat"

// DefaultMaxDepth bounds nested-archive recursion. Nesting in the source
// format is a tree (an archive cannot contain itself), so this is a guard
// against pathological inputs rather than cycle detection.
const DefaultMaxDepth = 5

// ErrTooDeep marks a nested archive skipped because it sits below the
// configured depth limit.
var ErrTooDeep = errors.New("archive: nesting too deep")

// Entry is one raw data file found during a scan.
type Entry struct {
	Name  string // entry name inside its containing archive
	Depth int    // 0 for entries of the top-level archive
	Data  []byte
}

// Scanner walks zip archives depth-first. Extraction is in-memory; nothing
// is written to disk.
type Scanner struct {
	maxDepth int
	log      *zap.Logger
}

// NewScanner returns a scanner with the given depth limit (DefaultMaxDepth
// when maxDepth <= 0).
func NewScanner(maxDepth int, log *zap.Logger) *Scanner {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{maxDepth: maxDepth, log: log}
}

// frame is one open archive on the traversal stack.
type frame struct {
	files []*zip.File
	next  int
	depth int
}

// newReader opens an in-memory zip archive. Deflate entries decode through
// klauspost/compress; the override is per-reader, the process-wide registry
// already holds the stdlib inflater for Deflate.
func newReader(data []byte) (*zip.Reader, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	reader.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
	return reader, nil
}

// Scan returns every raw-data entry in the archive, in depth-first order:
// a nested archive's entries appear immediately after the entry naming it.
// A nested archive that fails to open is skipped; entries found before and
// after it are unaffected.
func (s *Scanner) Scan(data []byte) ([]Entry, error) {
	reader, err := newReader(data)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	var entries []Entry
	stack := []frame{{files: reader.File, depth: 0}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.files) {
			stack = stack[:len(stack)-1]
			continue
		}
		file := top.files[top.next]
		top.next++

		name := strings.ToLower(file.Name)
		switch {
		case strings.HasSuffix(name, RawDataExt):
			content, err := readEntry(file)
			if err != nil {
				s.log.Warn("unreadable data entry skipped",
					zap.String("entry", file.Name), zap.Error(err))
				continue
			}
			entries = append(entries, Entry{Name: file.Name, Depth: top.depth, Data: content})

		case strings.HasSuffix(name, ".zip"):
			nested, err := s.openNested(file, top.depth)
			if err != nil {
				metrics.NestedArchivesSkipped.Inc()
				s.log.Warn("nested archive skipped",
					zap.String("entry", file.Name), zap.Error(err))
				continue
			}
			stack = append(stack, nested)
		}
	}
	return entries, nil
}

func (s *Scanner) openNested(file *zip.File, parentDepth int) (frame, error) {
	depth := parentDepth + 1
	if depth >= s.maxDepth {
		return frame{}, ErrTooDeep
	}
	content, err := readEntry(file)
	if err != nil {
		return frame{}, err
	}
	reader, err := newReader(content)
	if err != nil {
		return frame{}, err
	}
	return frame{files: reader.File, depth: depth}, nil
}

func readEntry(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
