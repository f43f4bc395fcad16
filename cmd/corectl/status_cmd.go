package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
)

func handleStatus(ctx context.Context, args []string) error {
	fs, cfgPath, logLevel, jsonOut := commonFlags("status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	core, _, err := newCoreFromFlags(*cfgPath, *logLevel, *jsonOut)
	if err != nil {
		return err
	}
	defer core.Close()

	vs, err := core.VaultStatus()
	if err != nil {
		return fmt.Errorf("vault status: %w", err)
	}
	fmt.Printf("vault:     setup=%v unlocked=%v files=%d size=%s\n",
		vs.Setup, vs.Unlocked, vs.Count, humanize.Bytes(uint64(vs.Bytes)))

	ss := core.SchedulerStatus()
	fmt.Printf("scheduler: queued=%d active=%d paused=%d completed=%d free_slots=%d\n",
		ss.QueueLength, ss.ActiveCount, ss.PausedCount, ss.CompletedCount, ss.AvailableSlots)
	return nil
}
