package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/roach88/harpi/internal/csvconfig"
	"github.com/roach88/harpi/internal/hapcan"
	"github.com/roach88/harpi/internal/ir"
	"github.com/roach88/harpi/internal/journal"
	"github.com/roach88/harpi/internal/loads"
	"github.com/roach88/harpi/internal/metrics"
	"github.com/roach88/harpi/internal/rules"
	harpitest "github.com/roach88/harpi/internal/testutil"
	"github.com/roach88/harpi/internal/timer"
)

var gatewayAddr = hapcan.Address{Node: 0xF0, Group: 0xF0}

var (
	press      = hapcan.Frame{0x30, 0x10, 0x20, 0x01, 0xAA, 0xBB, 0x01, 0xFF, 0x00, 0x00, 0x00, 0x00}
	release    = hapcan.Frame{0x30, 0x10, 0x20, 0x01, 0xAA, 0xBB, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00}
	switchOn   = hapcan.Frame{0x10, 0xA0, 0xF0, 0xF0, 0x01, 0x03, 0x0A, 0x01, 0x00, 0xFF, 0xFF, 0xFF}
	switchOff  = hapcan.Frame{0x10, 0xA0, 0xF0, 0xF0, 0x00, 0x03, 0x0A, 0x01, 0x00, 0xFF, 0xFF, 0xFF}
	statusPoll = hapcan.Frame{0x10, 0x90, 0xF0, 0xF0, 0xFF, 0xFF, 0x0A, 0x01, 0xFF, 0xFF, 0xFF, 0xFF}
)

func relayStatus(channel, state byte) hapcan.Frame {
	return hapcan.Frame{0x30, 0x20, 0x0A, 0x01, 0xFF, 0xFF, channel, state, 0xFF, 0xFF, 0xFF, 0xFF}
}

type fixture struct {
	gw  *Gateway
	bus *harpitest.RecordingTransport
	m   *metrics.Metrics
	dir string
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		bus: harpitest.NewRecordingTransport(),
		m:   metrics.New(),
		dir: t.TempDir(),
	}
	opts.Sender = gatewayAddr
	opts.Metrics = f.m
	if opts.IDs == nil {
		opts.IDs = rules.NewFixedGenerator("gen-1", "gen-2", "gen-3")
	}
	f.gw = New(f.bus, opts)
	return f
}

func (f *fixture) load(t *testing.T, lines ...string) {
	t.Helper()
	harpitest.WriteConfig(t, f.dir, "config.csv", lines...)
	_, err := f.gw.ReloadDir(context.Background(), f.dir)
	require.NoError(t, err)
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	_, err := f.gw.Drain(context.Background())
	require.NoError(t, err)
}

func TestGateway_PressAndRelease(t *testing.T) {
	f := newFixture(t, Options{})
	f.load(t, harpitest.LivingRoom...)
	ts := time.Unix(1700000000, 0)

	assert.Equal(t, 1, f.gw.OnFrame(press, ts))
	f.drain(t)
	assert.Equal(t, []hapcan.Frame{switchOn}, f.bus.Frames())
	assert.Equal(t, uint16(1), f.gw.State(0))

	f.bus.Reset()
	assert.Equal(t, 1, f.gw.OnFrame(release, ts))
	f.drain(t)
	assert.Equal(t, []hapcan.Frame{switchOff}, f.bus.Frames(), "returning to idle switches the loads off")
	assert.Equal(t, uint16(0), f.gw.State(0))

	assert.Equal(t, 2.0, testutil.ToFloat64(f.m.FramesReceived))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.m.Transitions))
}

func TestGateway_UnmatchedFrameQueuesNothing(t *testing.T) {
	f := newFixture(t, Options{})
	f.load(t, harpitest.LivingRoom...)

	other := press
	other[2] = 0x21
	assert.Equal(t, 0, f.gw.OnFrame(other, time.Now()))
	assert.Equal(t, 0, f.gw.Status().QueueDepth)
}

func TestGateway_LoadStatus(t *testing.T) {
	f := newFixture(t, Options{})
	f.load(t, harpitest.LivingRoom...)

	assert.Equal(t, loads.Undefined, f.gw.IsAnyLoadOn(0))

	f.gw.OnFrame(relayStatus(1, hapcan.RelayOff), time.Now())
	assert.Equal(t, loads.Undefined, f.gw.IsAnyLoadOn(0), "channel 2 still unknown")

	f.gw.OnFrame(relayStatus(2, hapcan.RelayOn), time.Now())
	assert.Equal(t, loads.On, f.gw.IsAnyLoadOn(0))

	f.gw.OnFrame(relayStatus(2, hapcan.RelayOff), time.Now())
	assert.Equal(t, loads.Off, f.gw.IsAnyLoadOn(0))

	assert.Equal(t, loads.NoLoads, f.gw.IsAnyLoadOn(7))
}

func TestGateway_SetLoadsOff(t *testing.T) {
	f := newFixture(t, Options{})
	f.load(t, harpitest.LivingRoom...)

	require.NoError(t, f.gw.SetLoadsOff(0))
	assert.Equal(t, []hapcan.Frame{switchOff}, f.bus.Frames())
}

func TestGateway_SendActionsFromID(t *testing.T) {
	f := newFixture(t, Options{})
	f.load(t, harpitest.LivingRoom...)

	report := f.gw.SendActionsFromID(1)
	assert.True(t, report.OK())
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, []hapcan.Frame{switchOn}, f.bus.Frames())

	report = f.gw.SendActionsFromID(9)
	assert.Equal(t, 0, report.Matched())
}

func TestGateway_PollStatus(t *testing.T) {
	f := newFixture(t, Options{})
	f.load(t, harpitest.LivingRoom...)

	assert.Equal(t, 1, f.gw.PollStatus(), "both channels share one module")
	assert.Equal(t, []hapcan.Frame{statusPoll}, f.bus.Frames())

	f.gw.OnFrame(relayStatus(1, hapcan.RelayOn), time.Now())
	f.gw.OnFrame(relayStatus(2, hapcan.RelayOff), time.Now())
	f.bus.Reset()

	assert.Equal(t, 0, f.gw.PollStatus(), "no undefined loads remain")
	assert.Empty(t, f.bus.Frames())
}

func TestGateway_PollStatusRateLimited(t *testing.T) {
	f := newFixture(t, Options{StatusRate: rate.Every(time.Hour), StatusBurst: 1})
	f.load(t,
		"State Machines and Loads,0,Relay,0A,01,1",
		"State Machines and Loads,1,Relay,0B,01,1",
		"State Machines and Loads,2,Relay,0C,01,1",
	)

	assert.Equal(t, 1, f.gw.PollStatus())
	assert.Equal(t, 0, f.gw.PollStatus(), "burst spent")
	assert.Len(t, f.bus.Frames(), 1)
}

func TestGateway_PollStatusSendFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.load(t, harpitest.LivingRoom...)
	f.bus.FailWith(func(hapcan.Frame) error { return errors.New("bus off") })

	assert.Equal(t, 0, f.gw.PollStatus())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.FramesSent.WithLabelValues(metrics.FrameStatusRequest, metrics.ResultError)))
}

func TestGateway_Timers(t *testing.T) {
	f := newFixture(t, Options{})
	f.load(t, harpitest.LivingRoom...)

	assert.Equal(t, timer.Init, f.gw.TimerStatus(0))
	assert.Equal(t, timer.Unavailable, f.gw.TimerStatus(3))

	require.True(t, f.gw.SetTimer(0, 1))
	assert.Equal(t, timer.Running, f.gw.TimerStatus(0))
	assert.Empty(t, f.gw.Periodic())
	assert.Equal(t, []uint16{0}, f.gw.Periodic())
	assert.Equal(t, timer.Expired, f.gw.TimerStatus(0))

	assert.False(t, f.gw.SetTimer(3, 1), "unknown machine")
}

func TestGateway_TimerIsCallerGuard(t *testing.T) {
	f := newFixture(t, Options{})
	f.load(t, harpitest.LivingRoom...)
	f.gw.OnFrame(press, time.Now())
	f.drain(t)
	f.bus.Reset()

	require.True(t, f.gw.SetTimer(0, 0))
	expired := f.gw.Periodic()
	assert.Equal(t, []uint16{0}, expired)
	assert.Equal(t, uint16(1), f.gw.State(0), "expiry alone does not step the machine")
	assert.Empty(t, f.bus.Frames())

	for _, id := range expired {
		if f.gw.IsAnyLoadOn(id) != loads.Off {
			require.NoError(t, f.gw.SetLoadsOff(id))
		}
	}
	assert.Equal(t, []hapcan.Frame{switchOff}, f.bus.Frames())
}

func TestReload_ParseErrorKeepsGeneration(t *testing.T) {
	f := newFixture(t, Options{})
	f.load(t, harpitest.LivingRoom...)

	_, err := f.gw.Reload(context.Background(), []csvconfig.Source{
		{Name: "broken.csv", R: strings.NewReader("Scenes,1,2\n")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, csvconfig.ErrMalformed)

	assert.Equal(t, "gen-1", f.gw.Status().Generation)
	assert.Equal(t, 1, f.gw.OnFrame(press, time.Now()), "previous event sets still match")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Reloads.WithLabelValues(reloadParseError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Reloads.WithLabelValues(reloadOK)))
}

func TestReload_ResetsMachineStates(t *testing.T) {
	f := newFixture(t, Options{})
	f.load(t, harpitest.LivingRoom...)
	f.gw.OnFrame(press, time.Now())
	f.drain(t)
	require.Equal(t, uint16(1), f.gw.State(0))

	_, err := f.gw.ReloadDir(context.Background(), f.dir)
	require.NoError(t, err)
	assert.Equal(t, "gen-2", f.gw.Status().Generation)
	assert.Equal(t, uint16(0), f.gw.State(0))
	assert.Equal(t, timer.Init, f.gw.TimerStatus(0))
}

// publishHook calls fn when the store logs a published generation.
type publishHook struct {
	slog.Handler
	fn func()
}

func (h publishHook) Handle(ctx context.Context, r slog.Record) error {
	if r.Message == "rule generation published" {
		h.fn()
	}
	return h.Handler.Handle(ctx, r)
}

func TestReload_LoadsSwapWithStore(t *testing.T) {
	f := newFixture(t, Options{})
	f.load(t, harpitest.LivingRoom...)

	moved := append([]string{
		"State Machines and Loads,0,Relay,0B,01,1",
		"State Machines and Loads,0,Relay,0B,01,2",
	}, harpitest.LivingRoom[2:]...)
	harpitest.WriteConfig(t, f.dir, "config.csv", moved...)

	type observed struct {
		store []ir.LoadBinding
		loads []loads.LoadStatus
		err   error
	}
	seen := make(chan observed, 1)

	hook := publishHook{Handler: slog.NewTextHandler(io.Discard, nil)}
	hook.fn = func() {
		go func() {
			var o observed
			o.loads = f.gw.tracker.Loads()
			o.store = f.gw.store.LoadBindings.Snapshot()
			o.err = f.gw.SetLoadsOff(0)
			seen <- o
		}()
	}
	prev := slog.Default()
	slog.SetDefault(slog.New(hook))
	t.Cleanup(func() { slog.SetDefault(prev) })

	_, err := f.gw.ReloadDir(context.Background(), f.dir)
	require.NoError(t, err)

	var o observed
	select {
	case o = <-seen:
	case <-time.After(5 * time.Second):
		t.Fatal("no observation during publish")
	}
	require.NoError(t, o.err)
	require.Len(t, o.store, 2)
	require.Len(t, o.loads, 2)
	assert.Equal(t, uint8(0x0B), o.store[0].Node)
	assert.Equal(t, uint8(0x0B), o.loads[0].Binding.Node)
	assert.Equal(t, []hapcan.Frame{
		hapcan.RelayOffFrame(gatewayAddr, hapcan.Address{Node: 0x0B, Group: 0x01}, 0x03),
	}, f.bus.Frames(), "off frames go to the new generation's module")
}

func TestReload_BuildFaultResetsEverything(t *testing.T) {
	f := newFixture(t, Options{})
	f.load(t, harpitest.LivingRoom...)
	f.gw.OnFrame(press, time.Now())
	f.drain(t)
	require.Equal(t, uint16(1), f.gw.State(0))

	prev := buildGeneration
	buildGeneration = func([]ir.Record, rules.IDGenerator) (*rules.Generation, error) {
		return nil, &rules.CapacityError{Kind: ir.KindActionSet, Capacity: 1}
	}
	t.Cleanup(func() { buildGeneration = prev })

	_, err := f.gw.ReloadDir(context.Background(), f.dir)
	require.Error(t, err)
	assert.True(t, rules.IsCapacityError(err))

	assert.Empty(t, f.gw.Status().Generation)
	assert.Equal(t, uint16(0), f.gw.State(0))
	assert.Equal(t, timer.Unavailable, f.gw.TimerStatus(0))
	assert.Equal(t, loads.NoLoads, f.gw.IsAnyLoadOn(0))
	assert.Equal(t, 0, f.gw.OnFrame(press, time.Now()), "no event sets remain")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Reloads.WithLabelValues(reloadBuildError)))
	assert.Equal(t, 0, testutil.CollectAndCount(f.m.Records))
}

func TestReload_RecordCounts(t *testing.T) {
	f := newFixture(t, Options{})
	f.load(t, harpitest.LivingRoom...)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.m.Records.WithLabelValues("load_binding")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.m.Records.WithLabelValues("event_set")))
}

func TestReloadDir_Missing(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.gw.ReloadDir(context.Background(), filepath.Join(f.dir, "nope"))
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Reloads.WithLabelValues(reloadReadError)))
	assert.Empty(t, f.gw.Status().Generation)
}

func TestReload_Journal(t *testing.T) {
	clock := harpitest.NewStepClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), time.Second)
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), journal.WithNow(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	f := newFixture(t, Options{Journal: j})
	f.load(t, harpitest.LivingRoom...)
	f.gw.OnFrame(press, time.Now())
	f.drain(t)

	ctx := context.Background()
	reloads, err := j.Reloads(ctx, journal.Filter{})
	require.NoError(t, err)
	require.Len(t, reloads, 1)
	assert.True(t, reloads[0].OK)
	assert.Equal(t, "gen-1", reloads[0].Generation)
	assert.Equal(t, []string{"config.csv"}, reloads[0].Sources)

	transitions, err := j.Transitions(ctx, journal.Filter{Generation: "gen-1"})
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, uint16(1), transitions[0].ToState)
	assert.Equal(t, []uint16{1}, transitions[0].ActionSets)
	assert.True(t, transitions[0].RecordedAt.After(reloads[0].RecordedAt))
}

func TestGateway_RunStopsOnClose(t *testing.T) {
	f := newFixture(t, Options{})
	f.load(t, harpitest.LivingRoom...)

	done := make(chan error, 1)
	go func() { done <- f.gw.Run(context.Background()) }()

	f.gw.OnFrame(press, time.Now())
	f.gw.Close()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.Equal(t, []hapcan.Frame{switchOn}, f.bus.Frames(), "queued event processed before stopping")
}
