package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/harpi/internal/csvconfig"
	"github.com/roach88/harpi/internal/journal"
	"github.com/roach88/harpi/internal/metrics"
	"github.com/roach88/harpi/internal/rules"
)

// buildGeneration is replaced in tests to inject build faults.
var buildGeneration = rules.Build

// Reload result labels.
const (
	reloadOK         = metrics.ResultOK
	reloadReadError  = "read_error"
	reloadParseError = "parse_error"
	reloadBuildError = "build_error"
)

// ReloadDir reloads from every *.csv file in dir.
func (g *Gateway) ReloadDir(ctx context.Context, dir string) (*rules.Generation, error) {
	sources, err := csvconfig.DirSources(dir)
	if err != nil {
		g.reloadMu.Lock()
		defer g.reloadMu.Unlock()
		g.reloadFailed(ctx, reloadReadError, nil, err)
		return nil, fmt.Errorf("reload: %w", err)
	}
	return g.Reload(ctx, sources)
}

// Reload ingests sources and makes the result the active generation.
//
// On a parse error the previous generation stays active. On a build
// fault the store is emptied, since no consistent generation remains.
//
// The store, load tables, timers and machine states are swapped while
// the tracker lock is held, so a tracker call never pairs one
// generation's store with another generation's loads.
func (g *Gateway) Reload(ctx context.Context, sources []csvconfig.Source) (*rules.Generation, error) {
	g.reloadMu.Lock()
	defer g.reloadMu.Unlock()

	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name
	}

	res, err := csvconfig.Ingest(sources)
	if err != nil {
		g.reloadFailed(ctx, reloadParseError, names, err)
		return nil, fmt.Errorf("reload: %w", err)
	}

	gen, err := buildGeneration(res.Records, g.ids)
	if err != nil {
		g.resetLocked()
		g.reloadFailed(ctx, reloadBuildError, names, err)
		return nil, fmt.Errorf("reload: %w", err)
	}

	tables := g.tracker.Prepare(gen.LoadBindings)
	machines := gen.MachineIDs()
	g.tracker.Install(tables, func() {
		g.store.Publish(gen)
		g.timers.CreateTimers(machines)
		g.engine.ResetStates()
	})

	counts := make(map[string]int, len(gen.Counts))
	for k, n := range gen.Counts {
		counts[k.String()] = n
		g.metrics.Records.WithLabelValues(k.String()).Set(float64(n))
	}
	g.metrics.Reloads.WithLabelValues(reloadOK).Inc()

	slog.Info("configuration reloaded",
		"generation", gen.ID,
		"sources", len(sources),
		"records", len(res.Records),
		"machines", len(machines),
	)

	g.journalReload(ctx, journal.Reload{
		Generation: gen.ID,
		Sources:    names,
		OK:         true,
		Counts:     counts,
	})
	return gen, nil
}

// resetLocked empties the store and every table derived from it.
func (g *Gateway) resetLocked() {
	g.tracker.Install(g.tracker.Prepare(nil), func() {
		g.store.Reset()
		g.timers.CreateTimers(nil)
		g.engine.ResetStates()
	})
	g.metrics.Records.Reset()
}

func (g *Gateway) reloadFailed(ctx context.Context, result string, names []string, err error) {
	g.metrics.Reloads.WithLabelValues(result).Inc()
	slog.Error("configuration reload failed",
		"result", result,
		"active_generation", g.store.Info().ID,
		"error", err,
	)
	g.journalReload(ctx, journal.Reload{
		Generation: g.store.Info().ID,
		Sources:    names,
		Error:      err.Error(),
	})
}

func (g *Gateway) journalReload(ctx context.Context, r journal.Reload) {
	if g.journal == nil {
		return
	}
	if _, err := g.journal.WriteReload(ctx, r); err != nil {
		slog.Error("journal reload failed", "error", err)
	}
}
