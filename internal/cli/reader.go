package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
)

// ErrInputCancelled is returned when a read is abandoned because ctx ended.
var ErrInputCancelled = errors.New("input canceled")

type line struct {
	err   error
	value string
}

// LineReader reads trimmed lines from an input that may block indefinitely, such as a
// terminal, while still honoring context cancellation.
type LineReader struct {
	lines chan line
}

// NewLineReader starts reading r in the background.
func NewLineReader(r io.Reader) *LineReader {
	lr := &LineReader{lines: make(chan line)}
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lr.lines <- line{value: strings.TrimSpace(scanner.Text())}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		lr.lines <- line{err: err}
		close(lr.lines)
	}()
	return lr
}

// ReadLine returns the next line, io.EOF at the end of input, or ErrInputCancelled.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case l, ok := <-r.lines:
		if !ok {
			return "", io.EOF
		}
		return l.value, l.err
	}
}
