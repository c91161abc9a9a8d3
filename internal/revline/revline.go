// Package revline reads newline-delimited text from the end of a file toward
// its start without loading the whole file.
package revline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
)

const DefaultChunkSize = 8192

// Scanner yields the lines of an io.ReaderAt in reverse order. Line splitting
// matches bufio.ScanLines: a single trailing newline does not produce an empty
// last line and a trailing carriage return is dropped.
type Scanner struct {
	r         io.ReaderAt
	chunkSize int
	pos       int64
	carry     []byte
	pending   []string
	line      string
	err       error
	started   bool
	done      bool
}

func NewScanner(r io.ReaderAt, size int64, chunkSize int) *Scanner {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Scanner{r: r, chunkSize: chunkSize, pos: size}
}

func (s *Scanner) Scan() bool {
	for len(s.pending) == 0 {
		if s.done || s.err != nil {
			return false
		}
		s.fill()
	}
	s.line = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

func (s *Scanner) Text() string {
	return s.line
}

func (s *Scanner) Err() error {
	return s.err
}

// fill reads one chunk ending at pos. The first fragment of the chunk may be
// the tail of a line that starts in an earlier chunk, so it is carried and
// joined with the next read instead of being emitted.
func (s *Scanner) fill() {
	if s.pos <= 0 {
		s.done = true
		if s.started {
			s.pending = append(s.pending, string(dropCR(s.carry)))
		}
		s.carry = nil
		return
	}
	n := int64(s.chunkSize)
	if n > s.pos {
		n = s.pos
	}
	start := s.pos - n
	buf := make([]byte, n, n+int64(len(s.carry)))
	read, err := s.r.ReadAt(buf, start)
	if int64(read) < n {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		s.err = fmt.Errorf("read chunk at %d: %w", start, err)
		return
	}
	buf = append(buf, s.carry...)
	if !s.started {
		s.started = true
		if buf[len(buf)-1] == '\n' {
			buf = buf[:len(buf)-1]
		}
	}
	s.pos = start

	parts := bytes.Split(buf, []byte{'\n'})
	s.carry = parts[0]
	for i := len(parts) - 1; i >= 1; i-- {
		s.pending = append(s.pending, string(dropCR(parts[i])))
	}
}

// Lines opens path on every iteration and yields its lines last to first.
// Breaking out of the loop closes the file. Content appended after the
// iteration starts is not seen.
func Lines(path string, chunkSize int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield("", err)
			return
		}
		defer f.Close() //nolint:errcheck
		st, err := f.Stat()
		if err != nil {
			yield("", fmt.Errorf("stat %s: %w", path, err))
			return
		}
		s := NewScanner(f, st.Size(), chunkSize)
		for s.Scan() {
			if !yield(s.Text(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield("", err)
		}
	}
}

func dropCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		return data[:len(data)-1]
	}
	return data
}
