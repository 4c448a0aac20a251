package transport

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/harpi/internal/hapcan"
	harpitest "github.com/roach88/harpi/internal/testutil"
)

func TestWriter_Send(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Send(hapcan.Frame{0x10, 0xA0, 0xF0, 0xF0, 0x01, 0x03, 0x0A, 0x01, 0x00, 0xFF, 0xFF, 0xFF}))
	require.NoError(t, w.Send(hapcan.Frame{}))

	assert.Equal(t, "10A0F0F001030A0100FFFFFF\n000000000000000000000000\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("pipe closed") }

func TestWriter_SendError(t *testing.T) {
	w := NewWriter(failingWriter{})
	err := w.Send(hapcan.Frame{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipe closed")
}

func TestWriter_ConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = w.Send(hapcan.Frame{b})
			}
		}(byte(i))
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 160)
	for _, l := range lines {
		assert.Len(t, l, 24)
	}
}

func TestReader_Run(t *testing.T) {
	input := strings.Join([]string{
		"# bridge started",
		"30 20 0A 01 FF FF 01 FF FF FF FF FF",
		"",
		"not a frame",
		"302001020304050607080910",
	}, "\n")
	start := time.Unix(1700000000, 0)
	clock := harpitest.NewStepClock(start, time.Second)

	var (
		got   []hapcan.Frame
		stamp []time.Time
	)
	err := NewReader(strings.NewReader(input)).
		WithClock(clock.Now).
		Run(context.Background(), func(f hapcan.Frame, at time.Time) {
			got = append(got, f)
			stamp = append(stamp, at)
		})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, []time.Time{start, start.Add(time.Second)}, stamp, "one reading per delivered frame")
	assert.Equal(t, uint16(0x302), got[0].Type())
	assert.Equal(t, byte(0x01), got[0].Data(2))
	assert.Equal(t, hapcan.Frame{0x30, 0x20, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x10}, got[1])
}

func TestReader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := NewReader(strings.NewReader("000000000000000000000000\n")).Run(ctx, func(hapcan.Frame, time.Time) { calls++ })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}
