package main

import (
	"context"
	"errors"
	"fmt"
)

// handleExtractor drives `extractor.update` (spec.md §4.5 self-update):
// resolve the latest published tag, report whether an update is available,
// and, with --apply, install it via the write-then-rename sequence.
func handleExtractor(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("extractor subcommand required: update")
	}
	sub := args[0]
	fs, cfgPath, logLevel, jsonOut := commonFlags("extractor " + sub)
	apply := fs.Bool("apply", false, "download and install the update if one is available")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if sub != "update" {
		return fmt.Errorf("unknown extractor subcommand: %s", sub)
	}

	core, _, err := newCoreFromFlags(*cfgPath, *logLevel, *jsonOut)
	if err != nil {
		return err
	}
	defer core.Close()

	info, err := core.CheckExtractorUpdate(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("installed: %s\nlatest:    %s\nupdate available: %v\n", info.Version, info.Latest, info.UpdateAvailable)

	if info.UpdateAvailable && *apply {
		applied, err := core.ApplyExtractorUpdate(ctx)
		if err != nil {
			return fmt.Errorf("applying update: %w", err)
		}
		fmt.Printf("installed version %s\n", applied.Version)
	}
	return nil
}
