// Package api is the stable command-dispatch surface between a host shell
// (CLI, desktop UI) and the core engine, per spec.md §6: every command is a
// typed request/response pair, streaming commands take a channel, and every
// error collapses to a single human-readable string. Grounded in the
// teacher's cmd/modfetch/main.go, which drives every subcommand through a
// single run(ctx, args) switch against a handful of internal packages; this
// package is that dispatch table's in-process equivalent, wired for a host
// that calls Go functions directly rather than re-parsing argv.
package api

import (
	"context"
	"fmt"

	"duskrelay/internal/config"
	"duskrelay/internal/extractor"
	"duskrelay/internal/health"
	"duskrelay/internal/hostreputation"
	"duskrelay/internal/httpx"
	"duskrelay/internal/logging"
	"duskrelay/internal/pnde"
	"duskrelay/internal/router"
	"duskrelay/internal/scheduler"
	"duskrelay/internal/vault"
	"duskrelay/internal/watchdog"
)

// Core wires every component together and is the receiver for every command
// in spec.md §6's dispatch table. A host embeds one Core per running
// session.
type Core struct {
	cfg    *config.Config
	log    *logging.Logger
	rep    *hostreputation.Store
	reg    *health.Registry
	rtr    *router.Router
	engine *pnde.Engine
	ext    *extractor.Driver
	sched  *scheduler.Scheduler
	watch  *watchdog.Watchdog
	vlt    *vault.Vault
	vda    *vault.Adapter
}

// New wires a Core from a loaded config, opening the reputation store and
// constructing every downstream component. Close must be called to release
// the reputation store's database handle.
func New(cfg *config.Config, log *logging.Logger) (*Core, error) {
	rep, err := hostreputation.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("api: opening reputation store: %w", err)
	}

	reg := health.NewRegistry()
	rtr := router.New(cfg, rep)
	pndeEngine := pnde.New(cfg, rep, reg)
	extDriver := extractor.New(cfg, log)
	sched := scheduler.New(cfg.Concurrency.TotalSlots, cfg.Concurrency.NativeSlots)
	wd := watchdog.New(reg, log)

	vlt := vault.New(cfg.General.VaultRoot, cfg.Vault.MinPINLength, log)
	client := httpx.New(cfg, httpx.Options{})
	vda := vault.NewAdapter(vlt, rtr, extDriver, reg, client, cfg.General.ScratchRoot, log)

	return &Core{
		cfg:    cfg,
		log:    log,
		rep:    rep,
		reg:    reg,
		rtr:    rtr,
		engine: pndeEngine,
		ext:    extDriver,
		sched:  sched,
		watch:  wd,
		vlt:    vlt,
		vda:    vda,
	}, nil
}

// Close releases the reputation store's database handle.
func (c *Core) Close() error {
	return c.rep.Close()
}

// RunWatchdog starts the background health-monitoring loop (spec.md §4.6),
// blocking until ctx is cancelled. A host runs this in its own goroutine.
func (c *Core) RunWatchdog(ctx context.Context, emit func(watchdog.Event)) {
	c.watch.Run(ctx, c.engine.Collapse, func(id string) { c.reg.SetSafeMode(id, true) }, emit)
}
