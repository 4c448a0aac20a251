// Package transport moves frames as hex text lines, one 12-byte frame
// per line (24 hex digits, spaces allowed). `harpi run` uses it to read
// frames from a CAN bridge process and write outgoing frames back.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/harpi/internal/hapcan"
)

// Writer sends frames as hex lines. Send holds the writer's lock for
// the duration of the write.
type Writer struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewWriter creates a writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Send writes f as one line and flushes it.
func (t *Writer) Send(f hapcan.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.w.WriteString(f.String() + "\n"); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := t.w.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}

// Handler receives each frame read with its receive time.
type Handler func(f hapcan.Frame, ts time.Time)

// Reader reads hex lines into frames.
type Reader struct {
	r   io.Reader
	now func() time.Time
}

// NewReader creates a reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, now: time.Now}
}

// WithClock overrides the receive timestamp source.
func (r *Reader) WithClock(now func() time.Time) *Reader {
	r.now = now
	return r
}

// Run delivers every frame to fn until the input ends or ctx is
// cancelled. Blank lines and lines starting with '#' are skipped;
// malformed lines are logged and skipped. Cancellation is noticed
// between lines.
func (r *Reader) Run(ctx context.Context, fn Handler) error {
	scanner := bufio.NewScanner(r.r)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		f, err := hapcan.ParseHex(text)
		if err != nil {
			slog.Warn("skipping malformed frame line", "line", line, "error", err)
			continue
		}
		fn(f, r.now())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read frames: %w", err)
	}
	return nil
}
