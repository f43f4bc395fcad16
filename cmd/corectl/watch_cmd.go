package main

import (
	"context"
	"fmt"

	"duskrelay/internal/watchdog"
)

// handleWatch runs the watchdog's background monitoring loop and prints
// each action as it fires, until ctx is cancelled (Ctrl+C).
func handleWatch(ctx context.Context, args []string) error {
	fs, cfgPath, logLevel, jsonOut := commonFlags("watch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	core, _, err := newCoreFromFlags(*cfgPath, *logLevel, *jsonOut)
	if err != nil {
		return err
	}
	defer core.Close()

	fmt.Println("watching... press Ctrl+C to stop")
	core.RunWatchdog(ctx, func(ev watchdog.Event) {
		fmt.Printf("[%s] %s: %s\n", ev.DownloadID, ev.Type, ev.Message)
	})
	return nil
}
