// Package sse reads Server-Sent Events streams from vendor completion APIs.
package sse

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineSize is the maximum size of a single SSE line (1 MB). The default
// bufio.Scanner limit is 64 KiB, which is too small for large events such as
// long completion deltas. A longer line surfaces as a wrapped
// bufio.ErrTooLong from Next.
const maxLineSize = 1 * 1024 * 1024

// Scanner reads Server-Sent Events from an io.Reader. It handles multi-line
// data fields, skips comments and empty lines, and treats the [DONE] sentinel
// used by OpenAI-compatible APIs as end of stream.
type Scanner struct {
	scanner *bufio.Scanner
}

// NewScanner creates a Scanner reading SSE events from reader.
func NewScanner(reader io.Reader) *Scanner {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Scanner{scanner: scanner}
}

// Next returns the next SSE data payload. Multiple consecutive "data:" lines
// of one event are joined with newlines. Returns io.EOF at end of stream and
// on the [DONE] sentinel.
func (s *Scanner) Next() (string, error) {
	var dataLines []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// Empty line ends the current event; flush accumulated data lines.
		if line == "" {
			if len(dataLines) > 0 {
				return strings.Join(dataLines, "\n"), nil
			}
			continue
		}

		// SSE comment.
		if strings.HasPrefix(line, ":") {
			continue
		}

		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return "", io.EOF
			}
			dataLines = append(dataLines, data)
			continue
		}

		// Other SSE fields (event:, id:, retry:) are ignored; vendors that
		// need event discrimination carry a type field in the JSON payload.
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("sse scanner: %w", err)
	}

	if len(dataLines) > 0 {
		return strings.Join(dataLines, "\n"), nil
	}

	return "", io.EOF
}
