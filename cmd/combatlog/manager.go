package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/combatlog/combatlog/internal/configfile"
	"github.com/combatlog/combatlog/internal/statsplugin"
	"github.com/combatlog/combatlog/internal/wasmplugin"
	"github.com/combatlog/combatlog/pkg/combatlog"
)

// buildManager assembles a Manager with the built-in stats plugin always
// registered, plus whatever plugins manifestPath names. manifestPath may
// be empty, in which case only the built-in plugin runs. The returned
// cleanup function is always non-nil and must be called (e.g. via defer)
// to release any loaded Wasm plugins.
func buildManager(ctx context.Context, manifestPath string, pluginTimeout time.Duration, ntpServers []string, logger *slog.Logger) (*combatlog.Manager, func(), error) {
	noop := func() {}

	opts := []combatlog.Option{combatlog.WithLogger(logger)}
	if len(ntpServers) > 0 {
		opts = append(opts, combatlog.WithNTPServers(ntpServers...))
	}

	mgr, err := combatlog.New(opts...)
	if err != nil {
		return nil, noop, fmt.Errorf("building manager: %w", err)
	}

	stats := statsplugin.New()
	mgr.RegisterPlugin(stats)

	if manifestPath == "" {
		return mgr, noop, nil
	}

	mf, err := configfile.Load(manifestPath)
	if err != nil {
		return nil, noop, fmt.Errorf("loading plugin manifest: %w", err)
	}

	var cleanups []func()
	cleanup := func() {
		for _, c := range cleanups {
			c()
		}
	}

	for i, entry := range mf.Plugins {
		switch entry.EffectiveKind() {
		case configfile.KindBuiltin:
			if entry.ID != stats.Name() {
				cleanup()
				return nil, noop, fmt.Errorf("plugins[%d]: unknown builtin plugin %q", i, entry.ID)
			}
			stats.SetEnabled(entry.IsEnabled())

		case configfile.KindWasm:
			wp, err := wasmplugin.Load(ctx, entry.Path, entry.Priority, logger)
			if err != nil {
				cleanup()
				return nil, noop, fmt.Errorf("plugins[%d] %q: %w", i, entry.ID, err)
			}
			if pluginTimeout > 0 {
				wp.SetTimeout(pluginTimeout)
			}
			wp.SetEnabled(entry.IsEnabled())
			mgr.RegisterPlugin(wp)
			cleanups = append(cleanups, func() { wp.Close() })
		}
	}

	return mgr, cleanup, nil
}
