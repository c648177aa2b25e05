package serialport

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

const readChunk = 256

// LineIO is handed to Exchange callbacks. It is only valid while the
// callback runs.
type LineIO struct {
	link *Link
}

// WriteLine sends s terminated by a newline.
func (io *LineIO) WriteLine(s string) error {
	l := io.link
	if _, err := l.conn.Write([]byte(s + "\n")); err != nil {
		return fmt.Errorf("write %q: %w", s, err)
	}
	serialLines.WithLabelValues("tx").Inc()
	l.log.Debug().Str("line", s).Msg("tx")
	return nil
}

// ReadLine returns the next newline-terminated line with surrounding
// whitespace and invalid UTF-8 removed. It returns "" with a nil error when
// timeout elapses first; any partial line stays buffered.
func (io *LineIO) ReadLine(timeout time.Duration) (string, error) {
	l := io.link
	deadline := time.Now().Add(timeout)
	chunk := make([]byte, readChunk)

	for {
		if i := bytes.IndexByte(l.buf, '\n'); i >= 0 {
			raw := l.buf[:i]
			line := decodeLine(raw)
			l.buf = append(l.buf[:0], l.buf[i+1:]...)
			serialLines.WithLabelValues("rx").Inc()
			l.log.Debug().Str("line", line).Msg("rx")
			return line, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", nil
		}
		if err := l.conn.SetReadTimeout(remaining); err != nil {
			return "", fmt.Errorf("set read timeout: %w", err)
		}
		n, err := l.conn.Read(chunk)
		if n > 0 {
			l.buf = append(l.buf, chunk[:n]...)
		}
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
	}
}

// Reset discards input buffered by the OS and by the link.
func (io *LineIO) Reset() error {
	l := io.link
	l.buf = l.buf[:0]
	if err := l.conn.ResetInputBuffer(); err != nil {
		return fmt.Errorf("reset input: %w", err)
	}
	return nil
}

func decodeLine(raw []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
}
